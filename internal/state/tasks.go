package state

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"taskdeck/internal/service"
)

const (
	// fetchFailed is shown when a fetch error carries no message.
	fetchFailed = "Failed to fetch tasks"

	// maxFetchAttempts bounds how often Fetch re-reads a list that raced a mutation.
	maxFetchAttempts = 3
)

// TasksState is a point-in-time view of the task collection.
type TasksState struct {
	Tasks   []service.Task
	Loading bool
	// Error is set only by a failed Fetch.
	Error string
}

// Stats summarizes completion across the collection.
type Stats struct {
	Total     int
	Completed int
	Pending   int
}

// Tasks is the locally cached, server-acknowledged task list.
//
// Mutations for the same task id run one at a time in call order, so a
// response for an older request can never land after a newer one. A
// replacement is dropped when the task has left the list or when the cached
// copy is newer than the response.
type Tasks struct {
	svc     service.TaskService
	logger  *slog.Logger
	subs    subscribers[TasksState]
	fetches singleflight.Group
	entity  keyedMutex

	mu           sync.Mutex
	tasks        []service.Task
	err          string
	fetchPending bool
	inflight     int
	gen          uint64 // bumped when a mutation completes
}

// NewTasks creates an empty task container in the loading state.
func NewTasks(svc service.TaskService, opts ...Option) *Tasks {
	o := buildOptions(opts)
	return &Tasks{
		svc:          svc,
		logger:       o.logger,
		tasks:        []service.Task{},
		fetchPending: true,
	}
}

// Fetch replaces the list with the server's. On failure the list is kept and
// Error is set. Concurrent calls share one request. A listing read while a
// mutation completed is read again, up to maxFetchAttempts times, and never
// applied over the newer local state.
func (t *Tasks) Fetch(ctx context.Context) error {
	t.begin(func() { t.err = "" })

	v, err, shared := t.fetches.Do("tasks", func() (any, error) {
		return t.list(ctx)
	})

	t.finish(func() {
		if err != nil {
			t.err = service.Message(err, fetchFailed)
			return
		}
		res := v.(listing)
		if res.gen != t.gen {
			t.logger.Debug("dropping listing older than local changes")
			return
		}
		t.tasks = slices.Clone(res.tasks)
	})

	if err != nil {
		t.logger.Debug("fetch failed", "error", err, "shared", shared)
	}
	return err
}

// listing is a server task list and the mutation generation it was read at.
type listing struct {
	tasks []service.Task
	gen   uint64
}

// list reads the server list until no mutation completes during the read.
func (t *Tasks) list(ctx context.Context) (listing, error) {
	var res listing
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		gen := t.generation()
		tasks, err := t.svc.ListTasks(ctx)
		if err != nil {
			return listing{}, err
		}
		res = listing{tasks: tasks, gen: gen}
		if t.generation() == gen {
			return res, nil
		}
		t.logger.Debug("task list changed during fetch, reading again", "attempt", attempt)
	}
	return res, nil
}

func (t *Tasks) generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

// Create adds a task and appends the server copy.
func (t *Tasks) Create(ctx context.Context, in service.TaskInput) error {
	t.begin(nil)
	task, err := t.svc.CreateTask(ctx, in)
	t.finishMutation(func() {
		if err != nil {
			return
		}
		// A concurrent fetch may already have picked the task up.
		if i := t.indexLocked(task.ID); i >= 0 {
			t.tasks[i] = task
			return
		}
		t.tasks = append(t.tasks, task)
	})
	return err
}

// Update applies a partial update and replaces the task in place.
func (t *Tasks) Update(ctx context.Context, id string, patch service.TaskPatch) error {
	unlock := t.entity.lock(id)
	defer unlock()

	t.begin(nil)
	task, err := t.svc.UpdateTask(ctx, id, patch)
	t.finishMutation(func() {
		if err == nil {
			t.replaceLocked(id, task)
		}
	})
	return err
}

// Delete removes a task.
func (t *Tasks) Delete(ctx context.Context, id string) error {
	unlock := t.entity.lock(id)
	defer unlock()

	t.begin(nil)
	_, err := t.svc.DeleteTask(ctx, id)
	t.finishMutation(func() {
		if err != nil {
			return
		}
		if i := t.indexLocked(id); i >= 0 {
			t.tasks = slices.Delete(t.tasks, i, i+1)
		}
	})
	return err
}

// Toggle flips a task's completion and replaces it in place.
func (t *Tasks) Toggle(ctx context.Context, id string) error {
	unlock := t.entity.lock(id)
	defer unlock()

	t.begin(nil)
	task, err := t.svc.ToggleTaskCompletion(ctx, id)
	t.finishMutation(func() {
		if err == nil {
			t.replaceLocked(id, task)
		}
	})
	return err
}

// Snapshot returns the current state. The task slice is a copy.
func (t *Tasks) Snapshot() TasksState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Get returns the cached task with id.
func (t *Tasks) Get(id string) (service.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.tasks[i], true
	}
	return service.Task{}, false
}

// Stats counts tasks by completion.
func (t *Tasks) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Total: len(t.tasks)}
	for _, task := range t.tasks {
		if task.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}

// Subscribe registers fn to receive every state change and returns a
// function that cancels the subscription.
func (t *Tasks) Subscribe(fn func(TasksState)) (cancel func()) {
	return t.subs.add(fn)
}

func (t *Tasks) begin(update func()) {
	t.mu.Lock()
	if update != nil {
		update()
	}
	t.inflight++
	st := t.snapshotLocked()
	t.mu.Unlock()
	t.subs.notify(st)
}

func (t *Tasks) finish(update func()) {
	t.mu.Lock()
	update()
	t.fetchPending = false
	t.inflight--
	st := t.snapshotLocked()
	t.mu.Unlock()
	t.subs.notify(st)
}

// finishMutation is finish for Create, Update, Delete and Toggle. Any
// listing read before it completes is treated as stale.
func (t *Tasks) finishMutation(update func()) {
	t.finish(func() {
		t.gen++
		update()
	})
}

func (t *Tasks) indexLocked(id string) int {
	return slices.IndexFunc(t.tasks, func(task service.Task) bool {
		return task.ID == id
	})
}

// replaceLocked swaps in task for id unless id is gone or the cached copy is newer.
func (t *Tasks) replaceLocked(id string, task service.Task) {
	i := t.indexLocked(id)
	if i < 0 {
		t.logger.Debug("dropping response for task no longer listed", "id", id)
		return
	}
	cached := t.tasks[i].UpdatedAt
	if !cached.IsZero() && !task.UpdatedAt.IsZero() && cached.After(task.UpdatedAt.Time) {
		t.logger.Debug("dropping stale task response", "id", id)
		return
	}
	t.tasks[i] = task
}

func (t *Tasks) snapshotLocked() TasksState {
	return TasksState{
		Tasks:   slices.Clone(t.tasks),
		Loading: t.fetchPending || t.inflight > 0,
		Error:   t.err,
	}
}
