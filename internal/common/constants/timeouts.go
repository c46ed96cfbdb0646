// Package constants provides application-wide constants and timeouts.
package constants

import "time"

// Timeouts for various operations (spec.md §5 "Cancellation & timeouts").
const (
	// PromptTimeout is the maximum time to wait for an agent to complete a
	// prompt. Agent turns can involve long tool chains and large rewrites,
	// so this is generous.
	PromptTimeout = 60 * time.Minute

	// ExecTimeout is the default timeout for the exec tool when the caller
	// does not supply timeoutMs.
	ExecTimeout = 300 * time.Second

	// IdleHandoverWait is how long a starting gateway waits for a prior
	// process holding the PID file to exit before taking over.
	IdleHandoverWait = 2 * time.Second
)
