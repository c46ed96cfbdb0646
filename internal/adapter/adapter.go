// Package adapter defines the uniform capability surface over one external
// LLM-backed coding agent backend (Codex, Claude, Gemini), and the process
// adapter that speaks to each as a locally-spawned CLI subprocess.
package adapter

import (
	"context"
	"errors"
)

// Part is one segment of a multi-part prompt input (spec.md §4.2).
type Part struct {
	Text          string
	LocalImagePath string
}

// Input is either a plain string or an ordered sequence of Parts.
type Input struct {
	Text  string
	Parts []Part
}

// SendOptions configures one Send call.
type SendOptions struct {
	ThreadID string
	Cwd      string
}

// Status reports adapter readiness.
type Status struct {
	Ready bool
	Error string
}

// ErrCancelled is surfaced on the final result when the caller's
// cancellation token fires mid-stream (spec.md §4.2, §7).
var ErrCancelled = errors.New("cancelled")

// Adapter is the capability set every concrete agent binding exposes
// (spec.md §4.2): send, resumeThread, status, id, name.
type Adapter interface {
	// ID is the adapter's stable identifier (e.g. "codex", "claude", "gemini").
	ID() string
	// Name is the adapter's human-readable display name.
	Name() string
	// Status reports whether the adapter is ready to accept Send calls.
	Status(ctx context.Context) Status
	// Send starts one turn and returns an ordered event stream. The stream
	// is single-producer per call; closing ctx cancels the turn.
	Send(ctx context.Context, input Input, opts SendOptions) (<-chan Event, error)
	// ResumeThread rebinds the adapter to a previously persisted thread id
	// so a subsequent Send continues that conversation.
	ResumeThread(ctx context.Context, threadID string) error
	// Close releases any resources (child process, file handles) held by
	// the adapter.
	Close() error
}
