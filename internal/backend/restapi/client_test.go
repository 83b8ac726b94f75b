package restapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/backend/restapi"
	"taskdeck/internal/service"
	"taskdeck/internal/state"
	"taskdeck/internal/testutil"
	"taskdeck/internal/tokenstore"
)

const (
	testEmail    = "ann@example.com"
	testPassword = "correct-horse"
)

// newBackend returns a backend talking to api with an in-memory store.
func newBackend(t *testing.T, api *testutil.FakeAPI, token string, opts ...restapi.Option) (*restapi.Backend, *tokenstore.MemoryStore) {
	t.Helper()
	store := tokenstore.NewMemoryStore(token)
	b, err := restapi.NewWithStore(api.URL(), store, opts...)
	require.NoError(t, err)
	return b, store
}

// signedInBackend registers a user on api and returns a backend holding its token.
func signedInBackend(t *testing.T, opts ...restapi.Option) (*restapi.Backend, *tokenstore.MemoryStore, *testutil.FakeAPI, string) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	uid := api.AddUser(testEmail, testPassword, "Ann")
	b, store := newBackend(t, api, api.IssueToken(testEmail), opts...)
	return b, store, api, uid
}

func kindOf(t *testing.T, err error) service.Kind {
	t.Helper()
	var se *service.Error
	require.True(t, errors.As(err, &se), "expected *service.Error, got %T: %v", err, err)
	return se.Kind
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := restapi.NewClient("localhost:8000", tokenstore.NewMemoryStore(""))
	assert.Error(t, err)

	_, err = restapi.NewClient("http://localhost:8000/api", nil)
	assert.Error(t, err)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	b, store, api, _ := signedInBackend(t)
	token, _ := store.Get()

	_, err := b.Tasks().ListTasks(context.Background())
	require.NoError(t, err)

	last := api.LastRequest()
	assert.Equal(t, "Bearer "+token, last.Authorization)
	assert.NotEmpty(t, last.RequestID)
}

func TestClient_RequestIDsAreUnique(t *testing.T) {
	b, _, api, _ := signedInBackend(t)
	ctx := context.Background()

	_, err := b.Tasks().ListTasks(ctx)
	require.NoError(t, err)
	_, err = b.Tasks().ListTasks(ctx)
	require.NoError(t, err)

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
}

func TestClient_StoreTokenWinsOverDefaultHeader(t *testing.T) {
	b, store, api, _ := signedInBackend(t)
	token, _ := store.Get()
	b.Client().SetAuthorization("stale")

	_, err := b.Tasks().ListTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, api.LastRequest().Authorization)
}

func TestClient_UnauthorizedClearsSession(t *testing.T) {
	b, store, api, _ := signedInBackend(t)
	token, _ := store.Get()
	b.Client().SetAuthorization(token)

	var hookCalls int
	b.Client().OnUnauthorized(func() { hookCalls++ })

	api.FailNext(http.StatusUnauthorized, `{"detail":"Token expired"}`)
	_, err := b.Tasks().ListTasks(context.Background())
	require.Error(t, err)

	assert.Equal(t, service.KindUnauthorized, kindOf(t, err))
	assert.Equal(t, "Token expired", err.Error())
	_, held := store.Get()
	assert.False(t, held, "token should be removed")
	assert.Empty(t, b.Client().Authorization(), "default header should be cleared")
	assert.Equal(t, 1, hookCalls)
	assert.False(t, b.Auth().IsAuthenticated())
}

func TestBackend_UnauthorizedInvalidatesSession(t *testing.T) {
	b, _, api, _ := signedInBackend(t)
	ctx := context.Background()

	var notifier service.UnauthorizedNotifier = b
	s := state.NewSession(b.Auth())
	notifier.OnUnauthorized(s.Invalidate)
	s.Init(ctx)
	require.True(t, s.Snapshot().Authenticated)

	var seen []state.SessionState
	cancel := s.Subscribe(func(st state.SessionState) { seen = append(seen, st) })
	defer cancel()

	api.FailNext(http.StatusUnauthorized, `{"detail":"Token expired"}`)
	_, err := b.Tasks().ListTasks(ctx)
	require.Error(t, err)

	// Subscribers hear about it without anyone reading a snapshot.
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Authenticated)
	assert.Nil(t, seen[0].User)
}

func TestClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    service.Kind
		message string
	}{
		{"detail string", 404, `{"detail":"Task not found"}`, service.KindAPI, "Task not found"},
		{"detail list", 422, `{"detail":[{"loc":["body","title"],"msg":"Field required"},{"msg":"Too long"}]}`, service.KindValidation, "Field required, Too long"},
		{"detail list without msg", 500, `{"detail":[{"loc":["body"]},"raw text"]}`, service.KindValidation, "Validation error, raw text"},
		{"message", 500, `{"message":"database unavailable"}`, service.KindAPI, "database unavailable"},
		{"bad request detail", 400, `{"detail":"Bad input"}`, service.KindValidation, "Bad input"},
		{"unknown json", 500, `{"oops":true}`, service.KindAPI, "Failed to fetch tasks"},
		{"plain text", 502, `Bad Gateway`, service.KindAPI, "Failed to fetch tasks"},
		{"empty body", 503, ``, service.KindAPI, "Failed to fetch tasks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, api, _ := signedInBackend(t)
			api.FailNext(tt.status, tt.body)

			_, err := b.Tasks().ListTasks(context.Background())
			require.Error(t, err)

			var se *service.Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, tt.message, se.Message)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	b, _, api, _ := signedInBackend(t, restapi.WithTimeout(50*time.Millisecond))
	api.Delay = 500 * time.Millisecond

	_, err := b.Tasks().ListTasks(context.Background())
	require.Error(t, err)
	assert.Equal(t, service.KindTransport, kindOf(t, err))
	assert.Equal(t, "request timed out", err.Error())
}

func TestClient_TransportFailure(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.AddUser(testEmail, testPassword, "")
	store := tokenstore.NewMemoryStore(api.IssueToken(testEmail))

	// Nothing listens on port 1.
	b, err := restapi.NewWithStore("http://127.0.0.1:1/api", store)
	require.NoError(t, err)

	_, err = b.Tasks().CreateTask(context.Background(), service.TaskInput{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, service.KindTransport, kindOf(t, err))
	assert.Equal(t, "Failed to create task", err.Error())

	_, held := store.Get()
	assert.True(t, held, "transport failures must not clear the token")
}

func TestClient_RateLimit(t *testing.T) {
	b, _, api, _ := signedInBackend(t, restapi.WithRateLimit(20, 1))
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, err := b.Tasks().ListTasks(ctx)
		require.NoError(t, err)
	}
	// Burst of one, then 50ms per request.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Len(t, api.Requests(), 3)
}

func TestClient_CancelledContext(t *testing.T) {
	b, _, _, _ := signedInBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Tasks().ListTasks(ctx)
	require.Error(t, err)
	assert.Equal(t, service.KindTransport, kindOf(t, err))
	assert.Equal(t, "request cancelled", err.Error())
}
