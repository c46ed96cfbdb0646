package command

import "errors"

var ErrUnknownCommand = errors.New("unknown command")

// ValidationError reports a malformed command line (bad grammar or a
// handler-rejected argument).
type ValidationError struct{ Reason string }

func (e *ValidationError) Error() string { return e.Reason }
