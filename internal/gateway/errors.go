package gateway

import (
	"errors"
	"fmt"
)

// Sentinel error kinds specific to the connection boundary (spec.md §7);
// the remaining kinds (ValidationError, NotFoundError, ...) live in
// internal/store and internal/tools and are converted to error frames by
// name rather than re-declared here.
var (
	ErrAuth     = errors.New("auth error")
	ErrCapacity = errors.New("capacity error")
)

// AuthError wraps ErrAuth with the rejection reason; the caller closes the
// socket with CloseCodeAuthRejected.
type AuthError struct{ Reason string }

func (e *AuthError) Error() string { return "auth rejected: " + e.Reason }
func (e *AuthError) Unwrap() error  { return ErrAuth }

// CapacityError wraps ErrCapacity; the caller closes the socket with
// CloseCodeAtCapacity.
type CapacityError struct{ MaxClients int }

func (e *CapacityError) Error() string {
	return fmt.Sprintf("at capacity: max %d concurrent client(s)", e.MaxClients)
}
func (e *CapacityError) Unwrap() error { return ErrCapacity }
