package collab

import (
	"context"
	"strings"
	"testing"

	"github.com/Andy963/ads-sub001/internal/common/logger"
)

type scriptedSupervisor struct {
	responses []string
	calls     int
}

func (s *scriptedSupervisor) Send(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[i], nil
}

type fakeDelegate struct {
	registered map[string]bool
	invocations []string
}

func (f *fakeDelegate) HasAgent(id string) bool { return f.registered[id] }

func (f *fakeDelegate) InvokeAgentText(ctx context.Context, agentID, prompt string) (string, error) {
	f.invocations = append(f.invocations, agentID+":"+prompt)
	return "done: " + prompt, nil
}

func TestRunDelegatesOneRoundAndStripsMarkup(t *testing.T) {
	sup := &scriptedSupervisor{responses: []string{
		"Let me get help.\n<<<agent.claude\nwrite the tests\n>>>\nthanks.",
		"final answer after delegation",
	}}
	del := &fakeDelegate{registered: map[string]bool{"claude": true}}
	e := New(Config{}, del, logger.Default())

	res, err := e.Run(context.Background(), sup, "build the feature")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(res.FinalText, "<<<agent.") {
		t.Fatalf("expected markup stripped, got %q", res.FinalText)
	}
	if len(res.Delegations) != 1 {
		t.Fatalf("Delegations = %d, want 1", len(res.Delegations))
	}
	if res.Delegations[0].Agent != "claude" {
		t.Fatalf("Agent = %q, want claude", res.Delegations[0].Agent)
	}
	if res.Rounds != 2 {
		t.Fatalf("Rounds = %d, want 2", res.Rounds)
	}
}

func TestRunSkipsUnregisteredAgent(t *testing.T) {
	sup := &scriptedSupervisor{responses: []string{
		"<<<agent.unknown\ndo a thing\n>>>",
	}}
	del := &fakeDelegate{registered: map[string]bool{}}
	e := New(Config{}, del, logger.Default())

	res, err := e.Run(context.Background(), sup, "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Delegations) != 1 || !res.Delegations[0].Skipped {
		t.Fatalf("expected one skipped delegation, got %+v", res.Delegations)
	}
}

func TestRunDedupesByAgentAndPrompt(t *testing.T) {
	sup := &scriptedSupervisor{responses: []string{
		"<<<agent.claude\nsame prompt\n>>>\n<<<agent.claude\nsame prompt\n>>>",
		"final",
	}}
	del := &fakeDelegate{registered: map[string]bool{"claude": true}}
	e := New(Config{}, del, logger.Default())

	res, err := e.Run(context.Background(), sup, "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Delegations) != 1 {
		t.Fatalf("expected de-duplication to one delegation, got %d", len(res.Delegations))
	}
	if len(del.invocations) != 1 {
		t.Fatalf("expected one invocation, got %d", len(del.invocations))
	}
}

func TestRunStopsWhenNoDirectivesAppear(t *testing.T) {
	sup := &scriptedSupervisor{responses: []string{"no delegation needed"}}
	del := &fakeDelegate{registered: map[string]bool{}}
	e := New(Config{}, del, logger.Default())

	res, err := e.Run(context.Background(), sup, "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rounds != 1 {
		t.Fatalf("Rounds = %d, want 1", res.Rounds)
	}
	if sup.calls != 1 {
		t.Fatalf("expected exactly one supervisor call, got %d", sup.calls)
	}
}

func TestRunBoundsTotalDelegationsAcrossRounds(t *testing.T) {
	var responses []string
	for i := 0; i < 3; i++ {
		responses = append(responses,
			"<<<agent.claude\ntask "+string(rune('a'+i))+"1\n>>>\n<<<agent.claude\ntask "+string(rune('a'+i))+"2\n>>>\n<<<agent.claude\ntask "+string(rune('a'+i))+"3\n>>>")
	}
	sup := &scriptedSupervisor{responses: responses}
	del := &fakeDelegate{registered: map[string]bool{"claude": true}}
	e := New(Config{MaxDelegations: 4, MaxSupervisorRounds: 3}, del, logger.Default())

	res, err := e.Run(context.Background(), sup, "start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Delegations) > 4 {
		t.Fatalf("expected at most 4 delegations, got %d", len(res.Delegations))
	}
}
