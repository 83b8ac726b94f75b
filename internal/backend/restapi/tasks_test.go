package restapi_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/backend/restapi"
	"taskdeck/internal/config"
	"taskdeck/internal/service"
	"taskdeck/internal/testutil"
	"taskdeck/internal/tokenstore"
)

func ptr[T any](v T) *T { return &v }

func TestTasks_NotAuthenticatedFailsFast(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b, _ := newBackend(t, api, "")
	ctx := context.Background()

	calls := []func() error{
		func() error { _, err := b.Tasks().ListTasks(ctx); return err },
		func() error { _, err := b.Tasks().CreateTask(ctx, service.TaskInput{Title: "x"}); return err },
		func() error { _, err := b.Tasks().UpdateTask(ctx, "id", service.TaskPatch{Title: ptr("x")}); return err },
		func() error { _, err := b.Tasks().DeleteTask(ctx, "id"); return err },
		func() error { _, err := b.Tasks().ToggleTaskCompletion(ctx, "id"); return err },
	}
	for _, call := range calls {
		err := call()
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrNotAuthenticated))
		assert.Equal(t, service.KindNotAuthenticated, kindOf(t, err))
	}
	assert.Empty(t, api.Requests())
}

func TestTasks_MalformedTokenFailsFast(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b, _ := newBackend(t, api, "not-a-jwt")

	_, err := b.Tasks().ListTasks(context.Background())
	require.Error(t, err)
	assert.Equal(t, service.KindNotAuthenticated, kindOf(t, err))
	assert.Empty(t, api.Requests())
}

func TestTasks_ListEmpty(t *testing.T) {
	b, _, api, uid := signedInBackend(t)

	tasks, err := b.Tasks().ListTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
	assert.Equal(t, "/"+uid+"/tasks", api.LastRequest().Path)
}

func TestTasks_RoundTrip(t *testing.T) {
	b, _, api, uid := signedInBackend(t)
	ctx := context.Background()
	svc := b.Tasks()

	created, err := svc.CreateTask(ctx, service.TaskInput{Title: "Buy milk", Description: "2 litres"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, uid, created.UserID)
	assert.False(t, created.Completed)
	assert.False(t, created.CreatedAt.IsZero())
	assert.JSONEq(t, `{"title":"Buy milk","description":"2 litres"}`, api.LastRequest().Body)

	updated, err := svc.UpdateTask(ctx, created.ID, service.TaskPatch{Title: ptr("Buy oat milk")})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", updated.Title)
	assert.Equal(t, "2 litres", updated.Description, "unset fields are left alone")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt.Time))
	last := api.LastRequest()
	assert.Equal(t, http.MethodPut, last.Method)
	assert.Equal(t, "/"+uid+"/tasks/"+created.ID, last.Path)
	assert.JSONEq(t, `{"title":"Buy oat milk"}`, last.Body)

	toggled, err := svc.ToggleTaskCompletion(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.Equal(t, http.MethodPatch, api.LastRequest().Method)
	assert.Equal(t, "/"+uid+"/tasks/"+created.ID+"/complete", api.LastRequest().Path)

	list, err := svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, toggled.ID, list[0].ID)
	assert.True(t, list[0].Completed)

	msg, err := svc.DeleteTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task deleted successfully", msg)
	assert.Equal(t, 0, api.TaskCount(uid))
}

func TestTasks_ToggleTwiceRestores(t *testing.T) {
	b, _, api, uid := signedInBackend(t)
	id := api.AddTask(uid, "Task", false)
	ctx := context.Background()

	first, err := b.Tasks().ToggleTaskCompletion(ctx, id)
	require.NoError(t, err)
	second, err := b.Tasks().ToggleTaskCompletion(ctx, id)
	require.NoError(t, err)

	assert.True(t, first.Completed)
	assert.False(t, second.Completed)
}

func TestTasks_UpdateCompletedFalseIsSent(t *testing.T) {
	b, _, api, uid := signedInBackend(t)
	id := api.AddTask(uid, "Task", true)

	task, err := b.Tasks().UpdateTask(context.Background(), id, service.TaskPatch{Completed: ptr(false)})
	require.NoError(t, err)
	assert.False(t, task.Completed)
	assert.JSONEq(t, `{"completed":false}`, api.LastRequest().Body)
}

func TestTasks_DeleteMissing(t *testing.T) {
	b, _, _, _ := signedInBackend(t)

	_, err := b.Tasks().DeleteTask(context.Background(), "missing")
	require.Error(t, err)

	var se *service.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, service.KindAPI, se.Kind)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "Task not found", se.Message)
}

func TestTasks_DeleteWithoutMessage(t *testing.T) {
	b, _, api, uid := signedInBackend(t)
	id := api.AddTask(uid, "Task", false)
	api.FailNext(http.StatusNoContent, ``)

	msg, err := b.Tasks().DeleteTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Task deleted successfully", msg)
}

func TestTasks_CreateValidation(t *testing.T) {
	b, _, _, _ := signedInBackend(t)

	_, err := b.Tasks().CreateTask(context.Background(), service.TaskInput{Title: " "})
	require.Error(t, err)
	assert.Equal(t, service.KindValidation, kindOf(t, err))
	assert.Equal(t, "String should have at least 1 character", err.Error())
}

func TestTasks_FallbackMessages(t *testing.T) {
	b, _, api, uid := signedInBackend(t)
	id := api.AddTask(uid, "Task", false)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{"create", func() error { _, err := b.Tasks().CreateTask(ctx, service.TaskInput{Title: "x"}); return err }, "Failed to create task"},
		{"update", func() error { _, err := b.Tasks().UpdateTask(ctx, id, service.TaskPatch{Title: ptr("x")}); return err }, "Failed to update task"},
		{"delete", func() error { _, err := b.Tasks().DeleteTask(ctx, id); return err }, "Failed to delete task"},
		{"toggle", func() error { _, err := b.Tasks().ToggleTaskCompletion(ctx, id); return err }, "Failed to toggle task completion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api.FailNext(http.StatusInternalServerError, `not json`)
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestNew_PersistsTokenInConfigDir(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.AddUser(testEmail, testPassword, "")

	cfg := &config.Config{Dir: t.TempDir(), BaseURL: api.URL(), Timeout: config.DefaultTimeout}
	b, err := restapi.New(context.Background(), cfg)
	require.NoError(t, err)

	_, err = b.Auth().Login(context.Background(), service.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	// A fresh backend on the same directory picks the session up.
	again, err := restapi.New(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, again.Auth().IsAuthenticated())

	raw, ok := tokenstore.NewFileStore(filepath.Join(cfg.Dir, config.TokenFile)).Get()
	require.True(t, ok)
	assert.Equal(t, b.Auth().Token(), raw)
}
