package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/orchestrator"
	"github.com/Andy963/ads-sub001/internal/store"
	"go.uber.org/zap"
)

// EventKind labels one task-scoped event fanned out to subscribers
// (spec.md §4.7 "fanned out as task events").
type EventKind string

const (
	EventCommand      EventKind = "command"
	EventPlan         EventKind = "plan"
	EventPatch        EventKind = "patch"
	EventMessageDelta EventKind = "message_delta"
	EventTaskStarted  EventKind = "task_started"
	EventTaskDone     EventKind = "task_done"
)

// TaskEvent is one scheduler-emitted, task-id-labeled event.
type TaskEvent struct {
	TaskID string
	Kind   EventKind
	Text   string
	Status string
	Command *adapter.CommandEvent
	Plan    *adapter.PlanEvent
	Patch   *adapter.PatchEvent
}

// Handler receives task events. Unsubscribe detaches a prior OnEvent call.
type Handler func(TaskEvent)
type Unsubscribe func()

// Config bounds scheduler behavior.
type Config struct {
	InheritContext bool
	PurgeLimit     int
	PurgeOlderThan time.Duration
}

func (c Config) withDefaults() Config {
	if c.PurgeLimit <= 0 {
		c.PurgeLimit = 50
	}
	if c.PurgeOlderThan <= 0 {
		c.PurgeOlderThan = 30 * 24 * time.Hour
	}
	return c
}

// Scheduler runs the durable task lifecycle for one workspace/session
// (spec.md §4.7 "Task Queue & Scheduler (C7)").
type Scheduler struct {
	store *store.Store
	orch  *orchestrator.Orchestrator
	log   *logger.Logger
	cfg   Config

	mu      sync.Mutex
	started bool
	tickCh  chan struct{}

	ctrlMu      sync.Mutex
	controllers map[string]context.CancelFunc

	subMu     sync.Mutex
	subs      map[int]Handler
	nextSubID int
}

// New builds a Scheduler. The orchestrator is the per-session orchestrator
// task execution is driven through.
func New(st *store.Store, orch *orchestrator.Orchestrator, log *logger.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		store:       st,
		orch:        orch,
		log:         log,
		cfg:         cfg.withDefaults(),
		tickCh:      make(chan struct{}, 1),
		controllers: make(map[string]context.CancelFunc),
		subs:        make(map[int]Handler),
	}
}

// OnEvent registers a handler for task events; the returned func detaches it.
func (s *Scheduler) OnEvent(h Handler) Unsubscribe {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = h
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Scheduler) fanOut(ev TaskEvent) {
	s.subMu.Lock()
	handlers := make([]Handler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subMu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && s.log != nil {
					s.log.Warn("queue: event handler panicked", zap.Any("recover", r))
				}
			}()
			h(ev)
		}()
	}
}

// Run starts the scheduler's background tick loop; it exits when ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tickCh:
			s.doTick(ctx)
		}
	}
}

func (s *Scheduler) requestTick() {
	select {
	case s.tickCh <- struct{}{}:
	default:
	}
}

// Start marks the queue active and ticks (spec.md §4.7 trigger (a)).
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.requestTick()
}

// Stop marks the queue inactive; in-flight tasks are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// NotifyTaskCreated ticks only if the queue is active (trigger (c)).
func (s *Scheduler) NotifyTaskCreated() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.requestTick()
	}
}

// Cancel aborts the controller for a running/planning task.
func (s *Scheduler) Cancel(taskID string) error {
	s.ctrlMu.Lock()
	cancel, ok := s.controllers[taskID]
	s.ctrlMu.Unlock()
	if !ok {
		return fmt.Errorf("queue: no active controller for task %s", taskID)
	}
	cancel()
	return nil
}

func (s *Scheduler) doTick(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	active, err := s.store.ActiveTask(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Error("queue: active task lookup failed", zap.Error(err))
		}
		return
	}
	if active != nil {
		return
	}

	task, err := s.store.ClaimNextPendingTask(ctx, time.Now())
	if err != nil {
		if s.log != nil {
			s.log.Error("queue: claim failed", zap.Error(err))
		}
		return
	}
	if task == nil {
		s.maybePurge(ctx)
		return
	}

	go s.runTask(ctx, task)
}

func (s *Scheduler) maybePurge(ctx context.Context) {
	before := time.Now().Add(-s.cfg.PurgeOlderThan)
	ids, err := s.store.PurgeArchivedCompletedTasksBatch(ctx, before, s.cfg.PurgeLimit)
	if err != nil && s.log != nil {
		s.log.Warn("queue: opportunistic purge failed", zap.Error(err))
	}
	if len(ids) > 0 && s.log != nil {
		s.log.Info("queue: purged archived tasks", zap.Int("count", len(ids)))
	}
}

func (s *Scheduler) runTask(parent context.Context, task *store.Task) {
	taskCtx, cancel := context.WithCancel(parent)
	s.ctrlMu.Lock()
	s.controllers[task.ID] = cancel
	s.ctrlMu.Unlock()
	defer func() {
		cancel()
		s.ctrlMu.Lock()
		delete(s.controllers, task.ID)
		s.ctrlMu.Unlock()
		s.requestTick()
	}()

	s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventTaskStarted})

	input, err := s.buildInput(taskCtx, task)
	if err != nil {
		s.finishFailed(taskCtx, task, err)
		return
	}

	if _, err := s.store.MarkPromptInjected(taskCtx, task.ID, time.Now()); err != nil && s.log != nil {
		s.log.Warn("queue: mark prompt injected failed", zap.String("task", task.ID), zap.Error(err))
	}

	opts := adapter.SendOptions{}
	if task.ThreadID != nil {
		opts.ThreadID = *task.ThreadID
	}

	events, err := s.orch.Send(taskCtx, input, opts)
	if err != nil {
		s.finishFailed(taskCtx, task, err)
		return
	}

	var result strings.Builder
	for ev := range events {
		switch ev.Phase {
		case adapter.PhaseDelta:
			s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventMessageDelta, Text: ev.Text})
			result.WriteString(ev.Text)
		case adapter.PhaseCommand:
			s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventCommand, Command: ev.Command})
		case adapter.PhasePlan:
			s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventPlan, Plan: ev.Plan})
			s.persistPlan(taskCtx, task.ID, ev.Plan)
		case adapter.PhasePatch:
			s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventPatch, Patch: ev.Patch})
		case adapter.PhaseError:
			if errors.Is(ev.Err, adapter.ErrCancelled) {
				s.finishCancelled(taskCtx, task)
			} else {
				s.finishFailed(taskCtx, task, ev.Err)
			}
			return
		case adapter.PhaseDone:
			if ev.Output != "" {
				result.Reset()
				result.WriteString(ev.Output)
			}
		}
	}

	s.finishCompleted(taskCtx, task, result.String())
}

func (s *Scheduler) persistPlan(ctx context.Context, taskID string, plan *adapter.PlanEvent) {
	if plan == nil {
		return
	}
	steps := make([]store.PlanStep, 0, len(plan.Steps))
	for i, st := range plan.Steps {
		steps = append(steps, store.PlanStep{
			TaskID:      taskID,
			StepNumber:  i + 1,
			Title:       st.Title,
			Status:      normalizePlanStatus(st.Status),
		})
	}
	if _, err := s.store.ReplacePlan(ctx, taskID, steps); err != nil && s.log != nil {
		s.log.Warn("queue: replace plan failed", zap.String("task", taskID), zap.Error(err))
	}
}

func normalizePlanStatus(status string) string {
	switch status {
	case store.PlanStepStatusPending, store.PlanStepStatusRunning, store.PlanStepStatusCompleted,
		store.PlanStepStatusSkipped, store.PlanStepStatusFailed:
		return status
	default:
		return store.PlanStepStatusPending
	}
}

func (s *Scheduler) buildInput(ctx context.Context, task *store.Task) (adapter.Input, error) {
	text := task.Prompt
	if s.cfg.InheritContext {
		entries, err := s.store.ListTaskContext(ctx, task.ID)
		if err != nil {
			return adapter.Input{}, fmt.Errorf("queue: load task context: %w", err)
		}
		if len(entries) > 0 {
			var b strings.Builder
			for _, e := range entries {
				fmt.Fprintf(&b, "[%s]\n%s\n\n", e.ContextType, e.Content)
			}
			b.WriteString(text)
			text = b.String()
		}
	}
	return adapter.Input{Text: text}, nil
}

func (s *Scheduler) finishCompleted(ctx context.Context, task *store.Task, result string) {
	now := time.Now()
	if _, err := s.store.AddTaskMessage(ctx, store.TaskMessage{
		TaskID:  task.ID,
		Role:    store.RoleAssistant,
		Content: result,
	}, now); err != nil && s.log != nil {
		s.log.Warn("queue: persist assistant message failed", zap.String("task", task.ID), zap.Error(err))
	}
	if err := s.store.UpdateTaskStatus(ctx, task.ID, store.TaskStatusCompleted, now, result, ""); err != nil && s.log != nil {
		s.log.Error("queue: update status completed failed", zap.String("task", task.ID), zap.Error(err))
	}
	s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventTaskDone, Status: store.TaskStatusCompleted})
}

func (s *Scheduler) finishCancelled(ctx context.Context, task *store.Task) {
	if err := s.store.CancelTask(ctx, task.ID, time.Now()); err != nil && s.log != nil {
		s.log.Error("queue: cancel task failed", zap.String("task", task.ID), zap.Error(err))
	}
	s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventTaskDone, Status: store.TaskStatusCancelled})
}

// finishFailed transitions task to failed and, per spec.md §4.7 failure
// semantics, immediately retries it in place when its retry budget allows.
func (s *Scheduler) finishFailed(ctx context.Context, task *store.Task, cause error) {
	now := time.Now()
	if err := s.store.UpdateTaskStatus(ctx, task.ID, store.TaskStatusFailed, now, "", cause.Error()); err != nil && s.log != nil {
		s.log.Error("queue: update status failed failed", zap.String("task", task.ID), zap.Error(err))
	}
	s.fanOut(TaskEvent{TaskID: task.ID, Kind: EventTaskDone, Status: store.TaskStatusFailed, Text: cause.Error()})

	if task.RetryCount < task.MaxRetries {
		if err := s.store.RetryTask(ctx, task.ID, time.Now()); err != nil && s.log != nil {
			s.log.Warn("queue: auto-retry failed", zap.String("task", task.ID), zap.Error(err))
		}
	}
}
