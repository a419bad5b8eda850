// Package poller keeps a local copy of the task list in step with the backend
// by re-fetching it on a schedule through the session guard.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskboard/taskboard/frontend/go-services/internal/api"
	"github.com/taskboard/taskboard/frontend/go-services/internal/models"
	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/logger"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/metrics"
)

const DefaultInterval = 30 * time.Second

// TaskSource is the task half of the REST client.
type TaskSource interface {
	ListTasks(ctx context.Context, p api.ListParams) ([]models.Task, error)
	CreateTask(ctx context.Context, in models.TaskInput) (models.Task, error)
	UpdateTask(ctx context.Context, id models.ID, in models.TaskInput) (models.Task, error)
	DeleteTask(ctx context.Context, id models.ID) error
	GetTask(ctx context.Context, id models.ID) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id models.ID, st models.Status) (models.Task, error)
}

type Options struct {
	Scheduler Scheduler
	Now       func() time.Time
	// Params filters every list fetch.
	Params api.ListParams
}

// State is a read-only snapshot for rendering.
type State struct {
	Tasks         []models.Task `json:"tasks"`
	LastCheckedAt *time.Time    `json:"lastCheckedAt,omitempty"`
	IsPolling     bool          `json:"isPolling"`
	Interval      string        `json:"interval,omitempty"`
	Refreshing    bool          `json:"refreshing"`
	LastError     string        `json:"lastError,omitempty"`
}

// Stats counts tasks per status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

type Reconciler struct {
	guard  *session.Guard
	src    TaskSource
	sched  Scheduler
	now    func() time.Time
	params api.ListParams
	log    *logger.Logger

	mu            sync.Mutex
	tasks         []models.Task
	lastCheckedAt time.Time
	lastErr       string
	handle        Handle
	interval      time.Duration
	issued        uint64
	inFlight      int
	expiredFired  bool
	expiredHooks  []func()
	subs          map[int]func(State)
	nextSub       int
}

func New(guard *session.Guard, src TaskSource, opts Options) *Reconciler {
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		guard:  guard,
		src:    src,
		sched:  opts.Scheduler,
		now:    opts.Now,
		params: opts.Params,
		log:    logger.Named("poller"),
		tasks:  []models.Task{},
		subs:   map[int]func(State){},
	}
}

// OnSessionExpired registers fn to run once each time a fetch or mutation
// finds the session gone. Use it to route the user back to login.
func (r *Reconciler) OnSessionExpired(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiredHooks = append(r.expiredHooks, fn)
}

// Subscribe registers fn to receive a snapshot after every state change.
func (r *Reconciler) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Reconciler) stateLocked() State {
	st := State{
		Tasks:      append([]models.Task(nil), r.tasks...),
		IsPolling:  r.handle != nil,
		Refreshing: r.inFlight > 0,
		LastError:  r.lastErr,
	}
	if st.IsPolling {
		st.Interval = r.interval.String()
	}
	if !r.lastCheckedAt.IsZero() {
		t := r.lastCheckedAt
		st.LastCheckedAt = &t
	}
	return st
}

func (r *Reconciler) update(mutate func()) {
	r.mu.Lock()
	mutate()
	st := r.stateLocked()
	subs := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (r *Reconciler) IsPolling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// Start begins polling: one refresh right away, then one every interval.
// It is a no-op while already polling. A non-positive interval means
// DefaultInterval.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.mu.Lock()
	if r.handle != nil {
		r.mu.Unlock()
		return
	}
	r.interval = interval
	r.expiredFired = false
	r.handle = r.sched.Every(interval, r.tick)
	r.mu.Unlock()

	r.log.Infof("polling every %s", interval)
	r.update(func() {})
	_ = r.refresh(ctx, false)
}

// Stop cancels the schedule. Fetched data stays; a fetch already in flight
// still lands if nothing newer was issued.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	h := r.handle
	r.handle = nil
	r.mu.Unlock()
	if h == nil {
		return
	}
	h.Stop()
	r.log.Infof("polling stopped")
	r.update(func() {})
}

// Toggle stops a running poll or starts a stopped one and reports whether
// polling is now on.
func (r *Reconciler) Toggle(ctx context.Context, interval time.Duration) bool {
	if r.IsPolling() {
		r.Stop()
		return false
	}
	r.Start(ctx, interval)
	return r.IsPolling()
}

func (r *Reconciler) tick() {
	if !r.IsPolling() {
		return
	}
	_ = r.refresh(context.Background(), true)
}

// Reset drops the local collection and discards any fetch still in flight.
// Call it when the session ends; Stop alone keeps the data.
func (r *Reconciler) Reset() {
	r.update(func() {
		r.issued++
		r.tasks = []models.Task{}
		r.lastCheckedAt = time.Time{}
		r.lastErr = ""
	})
}

// RefreshOnce fetches the full list now. The result replaces the local
// collection unless a later fetch was issued before it completed.
func (r *Reconciler) RefreshOnce(ctx context.Context) error {
	return r.refresh(ctx, false)
}

func (r *Reconciler) refresh(ctx context.Context, fromTimer bool) error {
	r.mu.Lock()
	if fromTimer && r.inFlight > 0 {
		r.mu.Unlock()
		metrics.PollRefreshes.WithLabelValues("skipped").Inc()
		r.log.Debugf("tick skipped, fetch already in flight")
		return nil
	}
	r.issued++
	seq := r.issued
	r.inFlight++
	params := r.params
	r.mu.Unlock()
	r.update(func() {})

	tasks, err := session.WithAuthCheck(ctx, r.guard, func(ctx context.Context) ([]models.Task, error) {
		return r.src.ListTasks(ctx, params)
	})

	if errors.Is(err, session.ErrSessionExpired) {
		r.update(func() { r.inFlight-- })
		metrics.PollRefreshes.WithLabelValues("expired").Inc()
		r.sessionExpired()
		return err
	}

	superseded := false
	r.update(func() {
		r.inFlight--
		if seq != r.issued {
			superseded = true
			return
		}
		if err != nil {
			r.lastErr = err.Error()
			return
		}
		r.tasks = dedupe(tasks)
		r.lastCheckedAt = r.now()
		r.lastErr = ""
		r.expiredFired = false
	})
	switch {
	case superseded:
		metrics.PollRefreshes.WithLabelValues("superseded").Inc()
		r.log.Debugf("discarded response #%d, a newer fetch was issued", seq)
	case err != nil:
		metrics.PollRefreshes.WithLabelValues("failed").Inc()
		r.log.Warnf("refresh failed: %v", err)
	default:
		metrics.PollRefreshes.WithLabelValues("applied").Inc()
		r.log.Debugf("refreshed %d tasks", len(tasks))
	}
	return err
}

// sessionExpired stops polling, drops the signed-out user's tasks and fires
// the expiry hooks, at most once per expiry.
func (r *Reconciler) sessionExpired() {
	r.mu.Lock()
	h := r.handle
	r.handle = nil
	fire := !r.expiredFired
	r.expiredFired = true
	hooks := append([]func(){}, r.expiredHooks...)
	r.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	r.Reset()
	if !fire {
		return
	}
	r.log.Infof("session expired, polling stopped")
	for _, fn := range hooks {
		fn()
	}
}

// mutate runs a task mutation through the guard, handling expiry and the
// error banner the same way refreshes do.
func mutate[T any](ctx context.Context, r *Reconciler, op string, action func(context.Context) (T, error)) (T, error) {
	v, err := session.WithAuthCheck(ctx, r.guard, action)
	if errors.Is(err, session.ErrSessionExpired) {
		r.sessionExpired()
		return v, err
	}
	if err != nil {
		r.log.Warnf("%s failed: %v", op, err)
		r.update(func() { r.lastErr = err.Error() })
	}
	return v, err
}

// UpdateStatus changes one task's status on the backend and then patches
// only that field locally.
func (r *Reconciler) UpdateStatus(ctx context.Context, id models.ID, st models.Status) error {
	if !st.Valid() {
		return fmt.Errorf("poller: invalid status %q", st)
	}
	_, err := mutate(ctx, r, "status update", func(ctx context.Context) (models.Task, error) {
		return r.src.UpdateTaskStatus(ctx, id, st)
	})
	if err != nil {
		return err
	}
	r.update(func() {
		for i := range r.tasks {
			if r.tasks[i].ID == id {
				r.tasks[i].Status = st
				return
			}
		}
	})
	return nil
}

// CreateTask creates a task and puts the stored record first in the list.
func (r *Reconciler) CreateTask(ctx context.Context, in models.TaskInput) (models.Task, error) {
	t, err := mutate(ctx, r, "create", func(ctx context.Context) (models.Task, error) {
		return r.src.CreateTask(ctx, in)
	})
	if err != nil {
		return models.Task{}, err
	}
	r.update(func() {
		r.tasks = dedupe(append([]models.Task{t}, r.tasks...))
	})
	return t, nil
}

// UpdateTask replaces a task and merges the backend's record into the list.
func (r *Reconciler) UpdateTask(ctx context.Context, id models.ID, in models.TaskInput) (models.Task, error) {
	t, err := mutate(ctx, r, "update", func(ctx context.Context) (models.Task, error) {
		return r.src.UpdateTask(ctx, id, in)
	})
	if err != nil {
		return models.Task{}, err
	}
	if t.ID == "" {
		t.ID = id
	}
	r.update(func() {
		for i := range r.tasks {
			if r.tasks[i].ID == id {
				r.tasks[i] = t
				return
			}
		}
	})
	return t, nil
}

// GetTask loads one task for a detail view. A task that is already listed
// is replaced by the fresh copy; others are not added.
func (r *Reconciler) GetTask(ctx context.Context, id models.ID) (models.Task, error) {
	t, err := session.WithAuthCheck(ctx, r.guard, func(ctx context.Context) (models.Task, error) {
		return r.src.GetTask(ctx, id)
	})
	if errors.Is(err, session.ErrSessionExpired) {
		r.sessionExpired()
		return models.Task{}, err
	}
	if err != nil {
		return models.Task{}, err
	}
	if t.ID == "" {
		t.ID = id
	}
	r.update(func() {
		for i := range r.tasks {
			if r.tasks[i].ID == id {
				r.tasks[i] = t
				return
			}
		}
	})
	return t, nil
}

func (r *Reconciler) DeleteTask(ctx context.Context, id models.ID) error {
	_, err := mutate(ctx, r, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.src.DeleteTask(ctx, id)
	})
	if err != nil {
		return err
	}
	r.update(func() {
		kept := r.tasks[:0]
		for _, t := range r.tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		r.tasks = kept
	})
	return nil
}

func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Total: len(r.tasks)}
	for _, t := range r.tasks {
		switch t.EffectiveStatus() {
		case models.StatusPending:
			s.Pending++
		case models.StatusInProgress:
			s.InProgress++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Filter returns the local tasks with the given status; "" returns all.
func (r *Reconciler) Filter(st models.Status) []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Task{}
	for _, t := range r.tasks {
		if st == "" || t.EffectiveStatus() == st {
			out = append(out, t)
		}
	}
	return out
}

// dedupe keeps the first record per id.
func dedupe(in []models.Task) []models.Task {
	seen := make(map[models.ID]struct{}, len(in))
	out := make([]models.Task, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
