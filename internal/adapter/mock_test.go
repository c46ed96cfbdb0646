package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockAdapterReplaysScriptInOrder(t *testing.T) {
	script := []ScriptedEvent{
		{Phase: PhaseDelta, Text: "hi"},
		{Phase: PhaseDelta, Text: "!"},
		{Phase: PhaseDone, Output: "hi!"},
	}
	m := NewMockAdapter("mock", "Mock", script)

	events, err := m.Send(context.Background(), Input{Text: "say hi"}, SendOptions{})
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	require.Equal(t, "hi", got[0].Text)
	require.Equal(t, "!", got[1].Text)
	require.Equal(t, PhaseDone, got[2].Phase)
	require.Equal(t, "hi!", got[2].Output)
}

func TestMockAdapterSurfacesCancellation(t *testing.T) {
	script := []ScriptedEvent{
		{Phase: PhaseDelta, Text: "slow"},
		{Phase: PhaseDelta, Text: "more"},
		{Phase: PhaseDone, Output: "done"},
	}
	m := NewMockAdapter("mock", "Mock", script)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := m.Send(ctx, Input{Text: "x"}, SendOptions{})
	require.NoError(t, err)

	ev := <-events
	require.Equal(t, PhaseError, ev.Phase)
	require.ErrorIs(t, ev.Err, ErrCancelled)
}
