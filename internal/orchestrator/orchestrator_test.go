package orchestrator

import (
	"context"
	"testing"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/stretchr/testify/require"
)

func TestSendFansOutToSubscribers(t *testing.T) {
	mock := adapter.NewMockAdapter("codex", "Codex", []adapter.Event{
		{Phase: adapter.PhaseDelta, Text: "hi"},
		{Phase: adapter.PhaseDone, Output: "hi", ThreadID: "thread-1"},
	})
	o := New(mock)

	var received []adapter.Event
	unsub := o.OnEvent(func(ev adapter.Event) { received = append(received, ev) })
	defer unsub()

	events, err := o.Send(context.Background(), adapter.Input{Text: "hi"}, adapter.SendOptions{})
	require.NoError(t, err)
	for range events {
	}

	require.Len(t, received, 2)
	require.Equal(t, "thread-1", o.GetThreadID())
}

func TestSetActiveAgentRejectsUnknown(t *testing.T) {
	o := New(adapter.NewMockAdapter("codex", "Codex", nil))
	require.Error(t, o.SetActiveAgent("claude"))
	require.Equal(t, "codex", o.ActiveAgentID())
}
