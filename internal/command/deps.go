package command

import "context"

// Dependencies are the collaborators the Command Router's built-in handlers
// reach into; everything is optional so a Router can run with only the
// handlers its caller actually needs.
type Dependencies struct {
	// NewTask creates a task from the "new" command and returns its id.
	NewTask func(ctx context.Context, workspace, title, prompt string) (string, error)

	// SetReviewLocked toggles the gateway's review-in-progress flag; Review
	// reports the lock state through ReviewLocked when present.
	SetReviewLocked func(locked bool)
	ReviewLocked    func() bool
}
