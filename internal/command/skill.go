package command

import (
	"context"
	"os"
	"path/filepath"
)

const skillsDir = ".ads/skills"

// registerSkillHandlers wires skill.init and skill.validate, opaque
// scaffolding/validation handlers over a workspace-local skill directory.
func registerSkillHandlers(r *Router, deps Dependencies) {
	r.Register("skill.init", HandlerFunc(handleSkillInit))
	r.Register("skill.validate", HandlerFunc(handleSkillValidate))
}

func handleSkillInit(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	if len(cmd.Positional) == 0 {
		return Result{}, &ValidationError{Reason: "skill.init requires a skill name"}
	}
	name := cmd.Positional[0]
	dir := filepath.Join(workspace, skillsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, err
	}
	skillFile := filepath.Join(dir, "SKILL.md")
	if _, err := os.Stat(skillFile); os.IsNotExist(err) {
		template := "---\nname: " + name + "\ndescription: TODO\n---\n"
		if err := os.WriteFile(skillFile, []byte(template), 0o644); err != nil {
			return Result{}, err
		}
	}
	return Result{OK: true, Output: "skill scaffold created at " + filepath.Join(skillsDir, name)}, nil
}

func handleSkillValidate(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	if len(cmd.Positional) == 0 {
		return Result{}, &ValidationError{Reason: "skill.validate requires a skill name"}
	}
	name := cmd.Positional[0]
	skillFile := filepath.Join(workspace, skillsDir, name, "SKILL.md")
	data, err := os.ReadFile(skillFile)
	if os.IsNotExist(err) {
		return Result{OK: false, Output: "missing SKILL.md for " + name}, nil
	}
	if err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{OK: false, Output: "SKILL.md for " + name + " is empty"}, nil
	}
	return Result{OK: true, Output: "skill " + name + " is valid"}, nil
}
