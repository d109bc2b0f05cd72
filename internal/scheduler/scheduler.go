/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler turns a queue of pending blocks into a night's schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/telrun/internal/condition"
	"github.com/friendsincode/telrun/internal/events"
	"github.com/friendsincode/telrun/internal/models"
	"github.com/friendsincode/telrun/internal/optimizer"
	"github.com/friendsincode/telrun/internal/priority"
	"github.com/friendsincode/telrun/internal/queue"
	"github.com/friendsincode/telrun/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

var (
	// ErrAborted is wrapped by every AbortError.
	ErrAborted = errors.New("scheduler aborted")

	// ErrBusy indicates Run was called while a run is in progress.
	ErrBusy = errors.New("scheduler already running")

	// ErrBudgetExceeded indicates the iteration budget ran out.
	ErrBudgetExceeded = errors.New("iteration budget exceeded")
)

// AbortError describes a structural failure. BlockID is empty when no single
// block triggered it.
type AbortError struct {
	BlockID string
	Reason  string
	Err     error
}

func (e *AbortError) Error() string {
	var b strings.Builder
	b.WriteString("scheduler aborted: ")
	b.WriteString(e.Reason)
	if e.BlockID != "" {
		b.WriteString(" (block ")
		b.WriteString(e.BlockID)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AbortError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAborted}
	}
	return []error{ErrAborted, e.Err}
}

// Defaults.
const (
	DefaultStep          = 5 * time.Second
	DefaultMaxIterations = 10000
)

// Config parameterizes a scheduler.
type Config struct {
	// SiteName seeds the run ID.
	SiteName string
	// Step is the optimizer's probe resolution.
	Step time.Duration
	// MaxIterations bounds the placement loop.
	MaxIterations int
	// Global conditions apply to every candidate.
	Global []condition.Condition
}

// Result is the outcome of one run. On abort Schedule holds the entries
// placed before the failure.
type Result struct {
	RunID    string
	State    State
	Schedule *models.Schedule
	Placed   []*models.Block
	Rejected []*models.Block
	Expired  []*models.Block
	Abort    *AbortError
	Elapsed  time.Duration
}

// Scheduler orchestrates queue, prioritizer and optimizer over a window.
type Scheduler struct {
	cfg         Config
	optimizer   optimizer.Optimizer
	prioritizer priority.Prioritizer
	dir         *models.Directory
	ledger      *priority.Ledger
	publisher   events.Publisher
	logger      zerolog.Logger

	mu    sync.Mutex
	state State
}

// New constructs a scheduler. dir may be nil when blocks carry no projects.
func New(cfg Config, opt optimizer.Optimizer, prio priority.Prioritizer, dir *models.Directory, logger zerolog.Logger) *Scheduler {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if prio == nil {
		prio = priority.Static{}
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cfg:         cfg,
		optimizer:   opt,
		prioritizer: prio,
		dir:         dir,
		ledger:      priority.NewLedger(dir, logger),
		publisher:   events.Discard{},
		logger:      logger,
		state:       StateIdle,
	}
}

// SetPublisher sets the event sink for run and block events.
func (s *Scheduler) SetPublisher(p events.Publisher) {
	if p == nil {
		p = events.Discard{}
	}
	s.publisher = p
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// RunID derives a stable identifier from the site, window and queued block
// IDs so identical inputs produce identical schedules. Block IDs are sorted
// within each group; group order is part of the seed.
func RunID(site string, w models.Window, groups ...*queue.Queue) string {
	seed := []string{
		site,
		w.Start.UTC().Format(time.RFC3339Nano),
		w.End.UTC().Format(time.RFC3339Nano),
	}
	for i, q := range groups {
		if i > 0 {
			seed = append(seed, fmt.Sprintf("group %d", i))
		}
		var ids []string
		if q != nil {
			for _, b := range q.All() {
				ids = append(ids, b.ID)
			}
		}
		sort.Strings(ids)
		seed = append(seed, ids...)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(seed, "\n"))).String()
}

// Run schedules the queue's pending blocks over the window.
func (s *Scheduler) Run(ctx context.Context, window models.Window, q *queue.Queue) (*Result, error) {
	return s.RunGroups(ctx, window, []*queue.Queue{q})
}

// RunGroups schedules each group in turn into one schedule. A group is
// exhausted before the next is considered; the cursor and the last placed
// block carry over between groups.
func (s *Scheduler) RunGroups(ctx context.Context, window models.Window, groups []*queue.Queue) (*Result, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.state = StateRunning
	s.mu.Unlock()

	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.Run")
	defer span.End()

	r := &run{
		Scheduler: s,
		ctx:       ctx,
		window:    window,
		groups:    groups,
		result: &Result{
			RunID: RunID(s.cfg.SiteName, window, groups...),
			State: StateRunning,
		},
	}
	r.result.Schedule = models.NewSchedule(r.result.RunID, window)
	r.log = s.logger.With().Str("run_id", r.result.RunID).Logger()

	telemetry.AddSpanAttributes(span, map[string]any{
		"run_id":       r.result.RunID,
		"site":         s.cfg.SiteName,
		"window_start": window.Start.UTC().Format(time.RFC3339),
		"window_end":   window.End.UTC().Format(time.RFC3339),
		"queue_len":    r.queued(),
		"groups":       len(groups),
		"optimizer":    s.optimizer.Name(),
	})

	err := r.execute()
	r.result.Elapsed = time.Since(started)
	telemetry.SchedulerRunDuration.Observe(r.result.Elapsed.Seconds())
	telemetry.SchedulerRunsTotal.WithLabelValues(string(r.result.State)).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"state":    string(r.result.State),
		"placed":   len(r.result.Placed),
		"rejected": len(r.result.Rejected),
		"expired":  len(r.result.Expired),
	})
	telemetry.RecordError(span, err)
	s.setState(r.result.State)
	return r.result, err
}

// run is the mutable state of one Run call.
type run struct {
	*Scheduler
	ctx         context.Context
	window      models.Window
	groups      []*queue.Queue
	result      *Result
	log         zerolog.Logger
	cursor      time.Time
	last        *models.Block
	iterations  int
	transitions int
}

func (r *run) execute() error {
	r.log.Info().
		Time("window_start", r.window.Start).
		Time("window_end", r.window.End).
		Str("optimizer", r.optimizer.Name()).
		Msg("scheduling run started")
	r.publisher.Publish(events.EventRunStarted, events.Payload{
		"run_id":       r.result.RunID,
		"window_start": r.window.Start,
		"window_end":   r.window.End,
	})

	if !r.window.Valid() {
		return r.abort("", "window end not after start", nil)
	}
	if r.queued() == 0 {
		return r.abort("", "empty queue", nil)
	}
	seen := make(map[string]bool)
	for _, q := range r.groups {
		if q == nil {
			continue
		}
		if err := q.CheckIntegrity(); err != nil {
			return r.abort("", "queue integrity", err)
		}
		for _, b := range q.All() {
			if seen[b.ID] {
				return r.abort(b.ID, "queue integrity", fmt.Errorf("block in more than one group: %w", queue.ErrIntegrity))
			}
			seen[b.ID] = true
		}
	}
	for _, b := range r.pending() {
		if err := b.Validate(); err != nil {
			return r.abort(b.ID, "invalid block", err)
		}
	}

	r.expireBefore(r.window.Start)

	r.cursor = r.window.Start
	for i, q := range r.groups {
		if q == nil || q.Len() == 0 {
			continue
		}
		if len(r.groups) > 1 {
			r.log.Debug().Int("group", i+1).Int("blocks", q.Len()).Time("cursor", r.cursor).Msg("scheduling block group")
		}
		if err := r.schedule(q); err != nil {
			return err
		}
	}

	r.finish()
	return nil
}

// schedule places blocks from one group until none fits before the window
// closes.
func (r *run) schedule(q *queue.Queue) error {
	for r.cursor.Before(r.window.End) {
		r.iterations++
		if r.iterations > r.cfg.MaxIterations {
			return r.abort("", "iteration budget", ErrBudgetExceeded)
		}
		if err := r.ctx.Err(); err != nil {
			return r.abort("", "cancelled", err)
		}

		r.expireBefore(r.cursor)
		priority.Apply(r.prioritizer, q.Pending(), priority.Context{
			Cursor:    r.cursor,
			Window:    r.window,
			Directory: r.dir,
		})
		candidates := q.Snapshot(queue.ByPriority)
		if len(candidates) == 0 {
			return nil
		}

		p, err := r.optimizer.SelectNext(r.ctx, optimizer.Request{
			Candidates: candidates,
			Cursor:     r.cursor,
			WindowEnd:  r.window.End,
			Last:       r.last,
			Step:       r.cfg.Step,
			Global:     r.cfg.Global,
		})
		if err != nil {
			if r.ctx.Err() != nil {
				return r.abort("", "cancelled", err)
			}
			return r.abort("", "optimizer", err)
		}
		if p == nil {
			return nil
		}

		if err := r.place(p, r.last); err != nil {
			return err
		}
		r.last = p.Block
		r.cursor = p.End
	}
	return nil
}

func (r *run) queued() int {
	n := 0
	for _, q := range r.groups {
		if q != nil {
			n += q.Len()
		}
	}
	return n
}

// pending lists pending blocks across groups in group order.
func (r *run) pending() []*models.Block {
	var out []*models.Block
	for _, q := range r.groups {
		if q != nil {
			out = append(out, q.Pending()...)
		}
	}
	return out
}

// place emits the transition, if any, and the chosen block.
func (r *run) place(p *optimizer.Placement, last *models.Block) error {
	sched := r.result.Schedule
	if p.Transition.Total() > 0 {
		r.transitions++
		field := &models.TransitionField{
			To:          p.Block.Target(),
			ToConfig:    p.Block.Configuration(),
			Slew:        p.Transition.Slew,
			Reconfigure: p.Transition.Reconfigure,
		}
		if last != nil {
			field.From = last.Target()
			field.FromConfig = last.Configuration()
		}
		id := fmt.Sprintf("%s/transition-%03d", r.result.RunID, r.transitions)
		tb := models.NewTransition(id, field, p.Start)
		if err := sched.Append(tb, tb.Start, tb.End); err != nil {
			return r.abort(p.Block.ID, "append transition", err)
		}
	}

	if err := p.Block.MarkScheduled(p.ObserveStart, p.End); err != nil {
		return r.abort(p.Block.ID, "mark scheduled", err)
	}
	if err := sched.Append(p.Block, p.ObserveStart, p.End); err != nil {
		return r.abort(p.Block.ID, "append block", err)
	}
	r.ledger.Record(p.Block)
	r.result.Placed = append(r.result.Placed, p.Block)

	r.log.Debug().
		Str("block_id", p.Block.ID).
		Str("project_id", p.Block.ProjectID).
		Time("start", p.ObserveStart).
		Time("end", p.End).
		Dur("transition", p.Transition.Total()).
		Float64("score", p.Score).
		Msg("block placed")
	r.publisher.Publish(events.EventBlockPlaced, events.Payload{
		"run_id":     r.result.RunID,
		"block_id":   p.Block.ID,
		"project_id": p.Block.ProjectID,
		"start":      p.ObserveStart,
		"end":        p.End,
		"priority":   p.Block.Priority,
	})
	return nil
}

// expireBefore marks pending blocks whose time window closed before t.
func (r *run) expireBefore(t time.Time) {
	for _, b := range r.pending() {
		if _, hi := b.TimeWindow(); !hi.IsZero() && hi.Before(t) {
			r.expire(b, "time window closed at "+hi.UTC().Format(time.RFC3339))
		}
	}
}

func (r *run) expire(b *models.Block, reason string) {
	if err := b.MarkExpired(reason); err != nil {
		return
	}
	r.result.Expired = append(r.result.Expired, b)
	telemetry.SchedulerUnplacedTotal.WithLabelValues(string(models.StateExpired)).Inc()
	r.log.Info().Str("block_id", b.ID).Str("reason", reason).Msg("block expired")
	r.publisher.Publish(events.EventBlockExpired, events.Payload{
		"run_id":   r.result.RunID,
		"block_id": b.ID,
		"reason":   reason,
	})
}

func (r *run) reject(b *models.Block, reason string) {
	if err := b.MarkRejected(reason); err != nil {
		return
	}
	r.result.Rejected = append(r.result.Rejected, b)
	telemetry.SchedulerUnplacedTotal.WithLabelValues(string(models.StateRejected)).Inc()
	r.log.Info().Str("block_id", b.ID).Str("reason", reason).Msg("block rejected")
	r.publisher.Publish(events.EventBlockRejected, events.Payload{
		"run_id":   r.result.RunID,
		"block_id": b.ID,
		"reason":   reason,
	})
}

// finish closes the schedule and settles every block still pending.
func (r *run) finish() {
	sched := r.result.Schedule
	sched.Fill()
	for _, b := range r.pending() {
		if _, hi := b.TimeWindow(); !hi.IsZero() && hi.Before(r.window.End) {
			r.expire(b, "time window closed at "+hi.UTC().Format(time.RFC3339))
			continue
		}
		r.reject(b, "no feasible slot before window close")
	}
	sched.Seal()
	r.result.State = StateCompleted

	for _, e := range sched.Entries {
		telemetry.SchedulerPlacementsTotal.WithLabelValues(string(e.Block.Kind)).Inc()
	}
	idle := float64(sched.Idle()) / float64(r.window.Duration())
	telemetry.SchedulerIdleFraction.Set(idle)

	r.log.Info().
		Int("placed", len(r.result.Placed)).
		Int("rejected", len(r.result.Rejected)).
		Int("expired", len(r.result.Expired)).
		Float64("idle_fraction", idle).
		Msg("scheduling run completed")
	r.publisher.Publish(events.EventRunCompleted, events.Payload{
		"run_id":   r.result.RunID,
		"placed":   len(r.result.Placed),
		"rejected": len(r.result.Rejected),
		"expired":  len(r.result.Expired),
	})
}

// abort seals the partial schedule and leaves unplaced blocks pending.
func (r *run) abort(blockID, reason string, err error) error {
	r.result.Schedule.Seal()
	r.result.State = StateAborted
	r.result.Abort = &AbortError{BlockID: blockID, Reason: reason, Err: err}

	r.log.Error().Err(err).Str("block_id", blockID).Str("reason", reason).Msg("scheduling run aborted")
	r.publisher.Publish(events.EventRunAborted, events.Payload{
		"run_id":   r.result.RunID,
		"block_id": blockID,
		"reason":   reason,
	})
	return r.result.Abort
}
