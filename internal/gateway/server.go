package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Serve runs the HTTP/WebSocket listener until ctx is cancelled, then drains
// in-flight connections for up to 5s before returning (spec.md §5 "PID file
// ... removed on exit").
func (gw *Gateway) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: gw.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		gw.log.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: shutdown: %w", err)
		}
		return nil
	}
}

// SetReviewLocked toggles the process-scoped review-in-progress flag
// (spec.md §4.8 "Review lock").
func (gw *Gateway) SetReviewLocked(locked bool) {
	gw.mu.Lock()
	gw.reviewLocked = locked
	gw.mu.Unlock()
	gw.log.Info("review lock changed", zap.Bool("locked", locked))
}

// ReviewLocked reports the current review-in-progress flag.
func (gw *Gateway) ReviewLocked() bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.reviewLocked
}
