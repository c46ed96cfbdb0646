package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/Andy963/ads-sub001/internal/common/logger"
	"go.uber.org/zap"
)

// wireEvent is the line-delimited JSON shape emitted by every CLI backend
// on stdout. The spec does not require per-vendor wire fidelity (SPEC_FULL
// §4.2), so Codex/Claude/Gemini share this one schema and differ only in
// their launch command.
type wireEvent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	Step     bool          `json:"step,omitempty"`
	Command  *CommandEvent `json:"command,omitempty"`
	Patch    *PatchEvent   `json:"patch,omitempty"`
	Plan     *PlanEvent    `json:"plan,omitempty"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output,omitempty"`
	ThreadID string        `json:"threadId,omitempty"`
}

// LaunchSpec names the executable and base arguments for one CLI backend.
type LaunchSpec struct {
	ID      string
	Name    string
	Command string
	Args    []string
}

// processAdapter is the shared implementation behind the Codex, Claude, and
// Gemini adapters: each spawns its CLI as a child process speaking
// line-delimited JSON on stdout (SPEC_FULL §4.2).
type processAdapter struct {
	spec LaunchSpec
	log  *logger.Logger

	mu       sync.Mutex
	threadID string
}

// NewProcessAdapter constructs the adapter for one CLI backend.
func NewProcessAdapter(spec LaunchSpec, log *logger.Logger) Adapter {
	return &processAdapter{spec: spec, log: log}
}

func (a *processAdapter) ID() string   { return a.spec.ID }
func (a *processAdapter) Name() string { return a.spec.Name }

func (a *processAdapter) Status(ctx context.Context) Status {
	if _, err := exec.LookPath(a.spec.Command); err != nil {
		return Status{Ready: false, Error: fmt.Sprintf("executable not found: %s", a.spec.Command)}
	}
	return Status{Ready: true}
}

func (a *processAdapter) ResumeThread(ctx context.Context, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threadID = threadID
	return nil
}

func (a *processAdapter) Close() error { return nil }

func inputText(in Input) string {
	if len(in.Parts) == 0 {
		return in.Text
	}
	out := in.Text
	for _, p := range in.Parts {
		if p.Text != "" {
			out += "\n" + p.Text
		}
		if p.LocalImagePath != "" {
			out += "\n[image: " + p.LocalImagePath + "]"
		}
	}
	return out
}

// Send spawns the backend CLI, writes the turn's input as a single JSON
// line on stdin, and translates each stdout line into an Event. The stream
// is single-producer: the returned channel is closed after the terminal
// event (done or error) or when ctx is cancelled.
func (a *processAdapter) Send(ctx context.Context, input Input, opts SendOptions) (<-chan Event, error) {
	a.mu.Lock()
	threadID := opts.ThreadID
	if threadID == "" {
		threadID = a.threadID
	}
	a.mu.Unlock()

	args := append([]string{}, a.spec.Args...)
	if threadID != "" {
		args = append(args, "--resume", threadID)
	}

	cmd := exec.CommandContext(ctx, a.spec.Command, args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("adapter %s: stdin pipe: %w", a.spec.ID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("adapter %s: stdout pipe: %w", a.spec.ID, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("adapter %s: start: %w", a.spec.ID, err)
	}

	payload, err := json.Marshal(map[string]string{"input": inputText(input)})
	if err != nil {
		return nil, fmt.Errorf("adapter %s: marshal input: %w", a.spec.ID, err)
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer func() { _ = cmd.Wait() }()

		if _, err := stdin.Write(append(payload, '\n')); err != nil {
			events <- Event{Phase: PhaseError, Err: fmt.Errorf("adapter %s: write stdin: %w", a.spec.ID, err)}
			return
		}
		_ = stdin.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var we wireEvent
			if err := json.Unmarshal(line, &we); err != nil {
				a.log.Warn("adapter: unparsable event line", zap.String("adapter", a.spec.ID))
				continue
			}
			ev := Event{Phase: Phase(we.Type), Text: we.Text, Step: we.Step, Command: we.Command, Patch: we.Patch, Plan: we.Plan, Output: we.Output, ThreadID: we.ThreadID}
			if we.Error != "" {
				ev.Err = fmt.Errorf("%s", we.Error)
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				events <- Event{Phase: PhaseError, Err: ErrCancelled}
				return
			}
			if ev.Phase == PhaseDone || ev.Phase == PhaseError {
				if ev.ThreadID != "" {
					a.mu.Lock()
					a.threadID = ev.ThreadID
					a.mu.Unlock()
				}
				return
			}
		}
		if err := ctx.Err(); err != nil {
			events <- Event{Phase: PhaseError, Err: ErrCancelled}
			return
		}
		if err := scanner.Err(); err != nil {
			events <- Event{Phase: PhaseError, Err: fmt.Errorf("adapter %s: read stdout: %w", a.spec.ID, err)}
		}
	}()

	return events, nil
}
