package adapter

// Phase enumerates the kinds of events an adapter's stream may emit
// (spec.md §4.2).
type Phase string

const (
	PhaseDelta   Phase = "delta"
	PhaseCommand Phase = "command"
	PhasePlan    Phase = "plan"
	PhasePatch   Phase = "patch"
	PhaseError   Phase = "error"
	PhaseDone    Phase = "done"
)

// CommandEvent describes one child command the agent ran.
type CommandEvent struct {
	ID       string
	Line     string
	Status   string
	ExitCode int
	Output   string
}

// PatchEvent describes a unified diff the agent produced.
type PatchEvent struct {
	Diff  string
	Files []string
}

// PlanStepSnapshot is one todo item in a PlanEvent.
type PlanStepSnapshot struct {
	Title  string
	Status string
}

// PlanEvent is a todo-list snapshot.
type PlanEvent struct {
	Steps []PlanStepSnapshot
}

// Event is one item in an adapter's ordered event stream.
type Event struct {
	Phase   Phase
	Text    string // PhaseDelta
	Step    bool   // true when Text is an internal chain-of-thought excerpt
	Command *CommandEvent
	Patch   *PatchEvent
	Plan    *PlanEvent
	Err     error

	// Final result fields, populated on the last event of a Send stream
	// (Phase == PhaseDone or PhaseError).
	Output   string
	ThreadID string
}
