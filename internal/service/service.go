// Package service defines the backend-agnostic interface for auth and task operations.
package service

import "context"

// AuthService defines session operations against the backend.
// Implementations never panic; failures come back as *Error values.
type AuthService interface {
	// Login authenticates and persists the returned token.
	Login(ctx context.Context, creds Credentials) (Session, error)

	// Signup registers a new account and persists the returned token.
	Signup(ctx context.Context, reg Registration) (Session, error)

	// Logout forgets the persisted token. It always succeeds.
	Logout(ctx context.Context)

	// CurrentUser re-validates the persisted token.
	// Returns false without network I/O when no token is held,
	// and clears the token when the server rejects it.
	CurrentUser(ctx context.Context) (User, bool)

	// IsAuthenticated reports whether a token is held.
	IsAuthenticated() bool

	// Token returns the held token, or "" if none.
	Token() string
}

// TaskService defines task operations for the authenticated user.
// Every method fails fast with ErrNotAuthenticated when no token is held.
type TaskService interface {
	// ListTasks returns all tasks in server order.
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateTask creates a task and returns the server copy.
	CreateTask(ctx context.Context, in TaskInput) (Task, error)

	// UpdateTask applies a partial update and returns the server copy.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error)

	// DeleteTask deletes a task and returns the server's confirmation message.
	DeleteTask(ctx context.Context, id string) (string, error)

	// ToggleTaskCompletion flips the completed flag and returns the server copy.
	ToggleTaskCompletion(ctx context.Context, id string) (Task, error)
}

// Backend bundles the services a command may need.
type Backend interface {
	Auth() AuthService
	Tasks() TaskService
}

// UnauthorizedNotifier is implemented by backends that can report a session
// the server has rejected.
type UnauthorizedNotifier interface {
	// OnUnauthorized registers fn to run after a rejected token was cleared.
	OnUnauthorized(fn func())
}
