package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/Andy963/ads-sub001/internal/common/logger"
	"go.uber.org/zap"
)

// Default bounds (spec.md §4.5).
const (
	DefaultMaxDelegations      = 6
	DefaultMaxSupervisorRounds = 2
)

// Guide is injected into the supervisor's first prompt of a turn so it
// knows the delegation syntax is available.
const Guide = "You may delegate focused sub-tasks to other registered agents " +
	"by emitting a block of the form:\n<<<agent.<id>\n<prompt for that agent>\n>>>\n" +
	"Each delegation runs to completion and its result is returned to you before " +
	"you continue. Use this only when another agent is better suited for the sub-task."

// SupervisorClient sends one prompt to the supervisor adapter and returns
// its full (non-streaming, for this purpose) response text.
type SupervisorClient interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Delegate is the small interface the engine uses to reach subordinate
// adapters, decoupled from the orchestrator (spec.md §9 cyclic-reference note).
type Delegate interface {
	HasAgent(id string) bool
	InvokeAgentText(ctx context.Context, agentID, prompt string) (string, error)
}

// Config bounds one supervisor delegation session.
type Config struct {
	MaxDelegations      int
	MaxSupervisorRounds int
}

func (c Config) withDefaults() Config {
	if c.MaxDelegations <= 0 {
		c.MaxDelegations = DefaultMaxDelegations
	}
	if c.MaxSupervisorRounds <= 0 {
		c.MaxSupervisorRounds = DefaultMaxSupervisorRounds
	}
	return c
}

// Summary records one delegation outcome for reporting to the caller.
type Summary struct {
	Index   int
	Agent   string
	Prompt  string
	Result  string
	Skipped bool
}

// Result is the outcome of one supervisor run.
type Result struct {
	FinalText   string
	Delegations []Summary
	Rounds      int
}

// Engine drives the bounded-round supervisor/subordinate delegation loop
// (spec.md §4.5). It is only exercised when the active agent is the
// designated supervisor; callers skip invoking it otherwise.
type Engine struct {
	cfg      Config
	delegate Delegate
	log      *logger.Logger
}

// New builds an Engine bound to one Delegate (agent registry + invoker).
func New(cfg Config, delegate Delegate, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg.withDefaults(), delegate: delegate, log: log}
}

// Run sends prompt (with the delegation guide prepended) to the supervisor,
// drains any delegation directives it emits across bounded rounds, and
// returns the final, markup-stripped response.
func (e *Engine) Run(ctx context.Context, supervisor SupervisorClient, prompt string) (Result, error) {
	var allSummaries []Summary
	seen := map[string]bool{}

	turn := Guide + "\n\n" + prompt
	var lastResponse string
	round := 0

	for round < e.cfg.MaxSupervisorRounds {
		round++
		resp, err := supervisor.Send(ctx, turn)
		if err != nil {
			return Result{}, fmt.Errorf("collab: supervisor send failed: %w", err)
		}
		lastResponse = resp

		directives := ParseDirectives(resp)
		if len(directives) == 0 {
			break
		}

		queue := make([]Directive, 0, len(directives))
		for _, d := range directives {
			key := dedupeKey(d)
			if seen[key] {
				continue
			}
			seen[key] = true
			queue = append(queue, d)
		}

		var roundSummaries []Summary
		for len(queue) > 0 && len(allSummaries)+len(roundSummaries) < e.cfg.MaxDelegations {
			d := queue[0]
			queue = queue[1:]

			idx := len(allSummaries) + len(roundSummaries) + 1
			s := e.runOne(ctx, idx, d)
			roundSummaries = append(roundSummaries, s)

			if !s.Skipped {
				nested := ParseDirectives(s.Result)
				for _, nd := range nested {
					if key := dedupeKey(nd); !seen[key] {
						seen[key] = true
						queue = append(queue, nd)
					}
				}
			}
		}
		allSummaries = append(allSummaries, roundSummaries...)

		turn = reinjectionPrompt(roundSummaries)
	}

	return Result{
		FinalText:   StripDirectives(lastResponse),
		Delegations: allSummaries,
		Rounds:      round,
	}, nil
}

func (e *Engine) runOne(ctx context.Context, idx int, d Directive) Summary {
	if !e.delegate.HasAgent(d.Agent) {
		if e.log != nil {
			e.log.Warn("collab: delegation target not registered", zap.String("agent", d.Agent))
		}
		return Summary{Index: idx, Agent: d.Agent, Prompt: d.Prompt, Skipped: true,
			Result: fmt.Sprintf("agent %q is not registered; delegation skipped", d.Agent)}
	}

	out, err := e.delegate.InvokeAgentText(ctx, d.Agent, d.Prompt)
	if err != nil {
		if e.log != nil {
			e.log.Warn("collab: delegation failed", zap.String("agent", d.Agent), zap.Error(err))
		}
		return Summary{Index: idx, Agent: d.Agent, Prompt: d.Prompt,
			Result: fmt.Sprintf("delegation to %q failed: %v", d.Agent, err)}
	}
	return Summary{Index: idx, Agent: d.Agent, Prompt: d.Prompt, Result: out}
}

// reinjectionPrompt restates the supervisor's role, labels each subordinate
// result by index/name/prompt, and invites another round or a final answer
// (spec.md §4.5 step 4).
func reinjectionPrompt(summaries []Summary) string {
	var b strings.Builder
	b.WriteString("You delegated the following sub-tasks; here are their results:\n\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "[%d] %s (prompt: %q)\n%s\n\n", s.Index, s.Agent, s.Prompt, s.Result)
	}
	b.WriteString("You may delegate further sub-tasks using the same <<<agent.<id>>>> syntax, " +
		"or provide your final answer now.")
	return b.String()
}
