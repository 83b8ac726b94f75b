package state_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/service"
	"taskdeck/internal/state"
	"taskdeck/internal/testutil"
)

func signedInFake(t *testing.T) *testutil.FakeBackend {
	t.Helper()
	fb := testutil.NewFakeBackend()
	fb.AddUser("ann@example.com", "")
	fb.SignIn("ann@example.com")
	return fb
}

func titles(tasks []service.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Title
	}
	return out
}

func strPtr(s string) *string { return &s }

func TestTasks_StartsLoadingAndEmpty(t *testing.T) {
	c := state.NewTasks(signedInFake(t).Tasks())

	st := c.Snapshot()
	assert.True(t, st.Loading)
	assert.NotNil(t, st.Tasks)
	assert.Empty(t, st.Tasks)
	assert.Empty(t, st.Error)
}

func TestTasks_FetchKeepsServerOrder(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	fb.AddTask("two", true)
	fb.AddTask("three", false)
	c := state.NewTasks(fb.Tasks())

	require.NoError(t, c.Fetch(context.Background()))

	st := c.Snapshot()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, []string{"one", "two", "three"}, titles(st.Tasks))
}

func TestTasks_FetchFailureKeepsList(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	fb.ListTasksErr = service.Errorf(service.KindAPI, "database unavailable")
	require.Error(t, c.Fetch(context.Background()))

	st := c.Snapshot()
	assert.Equal(t, "database unavailable", st.Error)
	assert.Equal(t, []string{"one"}, titles(st.Tasks))
	assert.False(t, st.Loading)

	// The next successful fetch clears the error.
	fb.ListTasksErr = nil
	require.NoError(t, c.Fetch(context.Background()))
	assert.Empty(t, c.Snapshot().Error)
}

func TestTasks_FetchFailureWithoutMessage(t *testing.T) {
	fb := signedInFake(t)
	fb.ListTasksErr = errors.New("boom")
	c := state.NewTasks(fb.Tasks())

	require.Error(t, c.Fetch(context.Background()))
	assert.Equal(t, "Failed to fetch tasks", c.Snapshot().Error)
}

func TestTasks_FetchSharesInFlightRequest(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fb.BeforeCall = func(op, id string) {
		if op == "list" {
			once.Do(func() { close(started) })
			<-release
		}
	}
	c := state.NewTasks(fb.Tasks())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Fetch(context.Background()))
	}()
	<-started
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Fetch(context.Background()))
	}()

	// Give the second caller time to join the first request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, fb.Calls("list"))
	st := c.Snapshot()
	assert.False(t, st.Loading)
	assert.Equal(t, []string{"one"}, titles(st.Tasks))
}

func TestTasks_CreateAppends(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	require.NoError(t, c.Create(context.Background(), service.TaskInput{Title: "two"}))

	assert.Equal(t, []string{"one", "two"}, titles(c.Snapshot().Tasks))
	assert.Equal(t, 1, fb.Calls("list"), "create does not refetch")
}

func TestTasks_CreateFailureLeavesList(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	fb.CreateTaskErr = service.Errorf(service.KindValidation, "Field required")
	err := c.Create(context.Background(), service.TaskInput{Title: "two"})
	require.Error(t, err)
	assert.Equal(t, "Field required", err.Error())

	st := c.Snapshot()
	assert.Equal(t, []string{"one"}, titles(st.Tasks))
	assert.Empty(t, st.Error, "mutation failures are returned, not stored")
}

func TestTasks_UpdateReplacesInPlace(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	two := fb.AddTask("two", false)
	fb.AddTask("three", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	require.NoError(t, c.Update(context.Background(), two.ID, service.TaskPatch{Title: strPtr("TWO")}))

	assert.Equal(t, []string{"one", "TWO", "three"}, titles(c.Snapshot().Tasks))
}

func TestTasks_UpdateForUnlistedTaskIsDropped(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	other := fb.AddTask("not cached", false)
	require.NoError(t, c.Update(context.Background(), other.ID, service.TaskPatch{Title: strPtr("x")}))

	assert.Equal(t, []string{"one"}, titles(c.Snapshot().Tasks))
}

func TestTasks_Delete(t *testing.T) {
	fb := signedInFake(t)
	one := fb.AddTask("one", false)
	fb.AddTask("two", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	require.NoError(t, c.Delete(context.Background(), one.ID))
	assert.Equal(t, []string{"two"}, titles(c.Snapshot().Tasks))

	_, ok := c.Get(one.ID)
	assert.False(t, ok)
}

func TestTasks_DeleteFailureKeepsTask(t *testing.T) {
	fb := signedInFake(t)
	one := fb.AddTask("one", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	fb.DeleteTaskErr = service.Errorf(service.KindAPI, "Failed to delete task")
	require.Error(t, c.Delete(context.Background(), one.ID))

	assert.Equal(t, []string{"one"}, titles(c.Snapshot().Tasks))
}

func TestTasks_ToggleAndStats(t *testing.T) {
	fb := signedInFake(t)
	one := fb.AddTask("one", false)
	fb.AddTask("two", true)
	fb.AddTask("three", false)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	assert.Equal(t, state.Stats{Total: 3, Completed: 1, Pending: 2}, c.Stats())

	require.NoError(t, c.Toggle(context.Background(), one.ID))
	got, ok := c.Get(one.ID)
	require.True(t, ok)
	assert.True(t, got.Completed)
	assert.Equal(t, state.Stats{Total: 3, Completed: 2, Pending: 1}, c.Stats())
}

func TestTasks_SameTaskMutationsRunInOrder(t *testing.T) {
	fb := signedInFake(t)
	task := fb.AddTask("one", false)

	var active, maxActive atomic.Int32
	fb.BeforeCall = func(op, id string) {
		if op != "toggle" {
			return
		}
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	}
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Toggle(context.Background(), task.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	got, ok := c.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, fb.ServerTasks()[0].Completed, got.Completed)
	assert.True(t, got.Completed, "five toggles end completed")
}

// staleTasks answers updates with a copy older than anything cached.
type staleTasks struct {
	service.TaskService
}

func (s staleTasks) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (service.Task, error) {
	return service.Task{
		ID:        id,
		Title:     "stale",
		UpdatedAt: service.Timestamp{Time: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}, nil
}

func TestTasks_StaleResponseIsDropped(t *testing.T) {
	fb := signedInFake(t)
	task := fb.AddTask("fresh", false)
	c := state.NewTasks(staleTasks{fb.Tasks()})
	require.NoError(t, c.Fetch(context.Background()))

	require.NoError(t, c.Update(context.Background(), task.ID, service.TaskPatch{Title: strPtr("x")}))

	got, _ := c.Get(task.ID)
	assert.Equal(t, "fresh", got.Title)
}

func TestTasks_PublishesLoadingAroundMutations(t *testing.T) {
	fb := signedInFake(t)
	c := state.NewTasks(fb.Tasks())
	require.NoError(t, c.Fetch(context.Background()))

	var rec recorder[state.TasksState]
	cancel := c.Subscribe(rec.record)
	require.NoError(t, c.Create(context.Background(), service.TaskInput{Title: "one"}))
	cancel()
	require.NoError(t, c.Create(context.Background(), service.TaskInput{Title: "two"}))

	states := rec.all()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.Empty(t, states[0].Tasks)
	assert.False(t, states[1].Loading)
	assert.Equal(t, []string{"one"}, titles(states[1].Tasks))
}

func TestTasks_NotAuthenticated(t *testing.T) {
	fb := testutil.NewFakeBackend()
	c := state.NewTasks(fb.Tasks())

	err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotAuthenticated))
	assert.Equal(t, "not authenticated", c.Snapshot().Error)
}

func TestTasks_MutationsWithoutFetchEndLoading(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		run  func(c *state.Tasks, id string) error
	}{
		{"create", func(c *state.Tasks, _ string) error { return c.Create(ctx, service.TaskInput{Title: "A"}) }},
		{"update", func(c *state.Tasks, id string) error {
			return c.Update(ctx, id, service.TaskPatch{Title: strPtr("B")})
		}},
		{"delete", func(c *state.Tasks, id string) error { return c.Delete(ctx, id) }},
		{"toggle", func(c *state.Tasks, id string) error { return c.Toggle(ctx, id) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := signedInFake(t)
			task := fb.AddTask("one", false)
			c := state.NewTasks(fb.Tasks())

			require.NoError(t, tt.run(c, task.ID))
			assert.False(t, c.Snapshot().Loading)
		})
	}
}

func TestTasks_FailedMutationWithoutFetchEndsLoading(t *testing.T) {
	fb := signedInFake(t)
	fb.CreateTaskErr = service.Errorf(service.KindAPI, "Failed to create task")
	c := state.NewTasks(fb.Tasks())

	require.Error(t, c.Create(context.Background(), service.TaskInput{Title: "A"}))
	assert.False(t, c.Snapshot().Loading)
}

// pausedList holds the first ListTasks response until release is closed.
type pausedList struct {
	service.TaskService
	read    chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newPausedList(svc service.TaskService) *pausedList {
	return &pausedList{TaskService: svc, read: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausedList) ListTasks(ctx context.Context) ([]service.Task, error) {
	tasks, err := p.TaskService.ListTasks(ctx)
	if p.calls.Add(1) == 1 {
		close(p.read)
		<-p.release
	}
	return tasks, err
}

func TestTasks_FetchDoesNotResurrectDeletedTask(t *testing.T) {
	fb := signedInFake(t)
	one := fb.AddTask("one", false)
	fb.AddTask("two", false)
	svc := newPausedList(fb.Tasks())
	c := state.NewTasks(svc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Fetch(ctx) }()
	<-svc.read

	require.NoError(t, c.Delete(ctx, one.ID))
	close(svc.release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"two"}, titles(fb.ServerTasks()))
	assert.Equal(t, []string{"two"}, titles(c.Snapshot().Tasks))
	assert.Equal(t, int32(2), svc.calls.Load(), "the raced listing is read again")
}

func TestTasks_FetchKeepsTaskCreatedDuringRead(t *testing.T) {
	fb := signedInFake(t)
	fb.AddTask("one", false)
	svc := newPausedList(fb.Tasks())
	c := state.NewTasks(svc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Fetch(ctx) }()
	<-svc.read

	require.NoError(t, c.Create(ctx, service.TaskInput{Title: "two"}))
	close(svc.release)
	require.NoError(t, <-done)

	st := c.Snapshot()
	assert.Equal(t, []string{"one", "two"}, titles(st.Tasks))
	assert.False(t, st.Loading)
}
