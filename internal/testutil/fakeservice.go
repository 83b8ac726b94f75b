// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/service"
)

// DefaultPassword is the password of users added with AddUser.
const DefaultPassword = "secret123"

// FakeBackend is an in-memory implementation of service.Backend for testing.
// It behaves like a client talking to a well-behaved server: calls without a
// token fail with KindNotAuthenticated, and a token the server no longer
// accepts (see Expire) fails with KindUnauthorized and is dropped.
type FakeBackend struct {
	mu        sync.RWMutex
	users     map[string]fakeUser // email -> user
	sessions  map[string]string   // token -> email
	token     string
	tasks     []service.Task
	clock     time.Time
	calls     map[string]int
	lastPatch service.TaskPatch
	hooks     []func()
	rejected  bool // set when a call dropped a token the server refused

	// Error injection for testing
	LoginErr      error
	SignupErr     error
	CurrentErr    error
	ListTasksErr  error
	CreateTaskErr error
	UpdateTaskErr error
	DeleteTaskErr error
	ToggleTaskErr error

	// BeforeCall, when set, runs at the start of every call with the
	// operation name and task id (if any), outside the lock.
	BeforeCall func(op, id string)
}

type fakeUser struct {
	user     service.User
	password string
}

// NewFakeBackend creates an empty FakeBackend with no session.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		users:    make(map[string]fakeUser),
		sessions: make(map[string]string),
		calls:    make(map[string]int),
		clock:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddUser registers a user with DefaultPassword.
func (f *FakeBackend) AddUser(email, name string) service.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := service.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Name:      name,
		CreatedAt: service.Timestamp{Time: f.tick()},
	}
	u.UpdatedAt = u.CreatedAt
	f.users[u.Email] = fakeUser{user: u, password: DefaultPassword}
	return u
}

// SignIn starts a session for email as if a token had been persisted.
func (f *FakeBackend) SignIn(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := "tok-" + uuid.NewString()
	f.sessions[tok] = strings.ToLower(email)
	f.token = tok
}

// Expire makes the server reject the current token. The client still holds it.
func (f *FakeBackend) Expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, f.token)
}

// AddTask adds a task to the signed-in user's list and returns it.
func (f *FakeBackend) AddTask(title string, completed bool) service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := service.Timestamp{Time: f.tick()}
	t := service.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Completed: completed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.tasks = append(f.tasks, t)
	return t
}

// ServerTasks returns a copy of the server-side task list.
func (f *FakeBackend) ServerTasks() []service.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.tasks)
}

// Calls returns how many times op was invoked.
func (f *FakeBackend) Calls(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[op]
}

// LastPatch returns the most recent UpdateTask patch.
func (f *FakeBackend) LastPatch() service.TaskPatch {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastPatch
}

// Auth implements service.Backend.
func (f *FakeBackend) Auth() service.AuthService { return fakeAuth{f} }

// Tasks implements service.Backend.
func (f *FakeBackend) Tasks() service.TaskService { return fakeTasks{f} }

// OnUnauthorized implements service.UnauthorizedNotifier.
func (f *FakeBackend) OnUnauthorized(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
}

// unlock releases f.mu and then runs the unauthorized hooks if the call
// just dropped a rejected token.
func (f *FakeBackend) unlock() {
	rejected := f.rejected
	f.rejected = false
	hooks := slices.Clone(f.hooks)
	f.mu.Unlock()
	if !rejected {
		return
	}
	for _, fn := range hooks {
		fn()
	}
}

func (f *FakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// enter records a call and runs BeforeCall.
func (f *FakeBackend) enter(op, id string) {
	f.mu.Lock()
	f.calls[op]++
	hook := f.BeforeCall
	f.mu.Unlock()
	if hook != nil {
		hook(op, id)
	}
}

// authorizedLocked returns the session email or the error a client would see.
func (f *FakeBackend) authorizedLocked() (string, error) {
	if f.token == "" {
		return "", service.NotAuthenticated()
	}
	email, ok := f.sessions[f.token]
	if !ok {
		f.token = ""
		f.rejected = true
		return "", &service.Error{Kind: service.KindUnauthorized, Status: 401, Message: "Could not validate credentials"}
	}
	return email, nil
}

func (f *FakeBackend) indexLocked(id string) int {
	return slices.IndexFunc(f.tasks, func(t service.Task) bool { return t.ID == id })
}

func notFound(id string) error {
	return &service.Error{Kind: service.KindAPI, Status: 404, Message: fmt.Sprintf("Task %s not found", id)}
}

type fakeAuth struct{ f *FakeBackend }

func (a fakeAuth) Login(ctx context.Context, creds service.Credentials) (service.Session, error) {
	f := a.f
	f.enter("login", "")
	if f.LoginErr != nil {
		return service.Session{}, f.LoginErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[strings.ToLower(creds.Email)]
	if !ok || u.password != creds.Password {
		return service.Session{}, &service.Error{Kind: service.KindUnauthorized, Status: 401, Message: "Incorrect email or password"}
	}
	tok := "tok-" + uuid.NewString()
	f.sessions[tok] = u.user.Email
	f.token = tok
	return service.Session{User: u.user, Token: tok}, nil
}

func (a fakeAuth) Signup(ctx context.Context, reg service.Registration) (service.Session, error) {
	f := a.f
	f.enter("signup", "")
	if f.SignupErr != nil {
		return service.Session{}, f.SignupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email := strings.ToLower(reg.Email)
	if _, exists := f.users[email]; exists {
		return service.Session{}, &service.Error{Kind: service.KindValidation, Status: 400, Message: "Email already registered"}
	}
	now := service.Timestamp{Time: f.tick()}
	u := service.User{ID: uuid.NewString(), Email: email, Name: reg.Name, CreatedAt: now, UpdatedAt: now}
	f.users[email] = fakeUser{user: u, password: reg.Password}
	tok := "tok-" + uuid.NewString()
	f.sessions[tok] = email
	f.token = tok
	return service.Session{User: u, Token: tok}, nil
}

func (a fakeAuth) Logout(ctx context.Context) {
	f := a.f
	f.enter("logout", "")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, f.token)
	f.token = ""
}

func (a fakeAuth) CurrentUser(ctx context.Context) (service.User, bool) {
	f := a.f
	f.mu.RLock()
	held := f.token != ""
	f.mu.RUnlock()
	if !held {
		return service.User{}, false
	}

	f.enter("me", "")
	f.mu.Lock()
	defer f.unlock()
	if f.CurrentErr != nil {
		f.token = ""
		return service.User{}, false
	}
	email, err := f.authorizedLocked()
	if err != nil {
		return service.User{}, false
	}
	return f.users[email].user, true
}

func (a fakeAuth) IsAuthenticated() bool {
	return a.Token() != ""
}

func (a fakeAuth) Token() string {
	a.f.mu.RLock()
	defer a.f.mu.RUnlock()
	return a.f.token
}

type fakeTasks struct{ f *FakeBackend }

func (s fakeTasks) ListTasks(ctx context.Context) ([]service.Task, error) {
	f := s.f
	f.enter("list", "")
	f.mu.Lock()
	defer f.unlock()
	if _, err := f.authorizedLocked(); err != nil {
		return nil, err
	}
	if f.ListTasksErr != nil {
		return nil, f.ListTasksErr
	}
	return append([]service.Task{}, f.tasks...), nil
}

func (s fakeTasks) CreateTask(ctx context.Context, in service.TaskInput) (service.Task, error) {
	f := s.f
	f.enter("create", "")
	f.mu.Lock()
	defer f.unlock()
	if _, err := f.authorizedLocked(); err != nil {
		return service.Task{}, err
	}
	if f.CreateTaskErr != nil {
		return service.Task{}, f.CreateTaskErr
	}
	now := service.Timestamp{Time: f.tick()}
	t := service.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (s fakeTasks) UpdateTask(ctx context.Context, id string, patch service.TaskPatch) (service.Task, error) {
	f := s.f
	f.enter("update", id)
	f.mu.Lock()
	defer f.unlock()
	if _, err := f.authorizedLocked(); err != nil {
		return service.Task{}, err
	}
	if f.UpdateTaskErr != nil {
		return service.Task{}, f.UpdateTaskErr
	}
	f.lastPatch = patch
	i := f.indexLocked(id)
	if i < 0 {
		return service.Task{}, notFound(id)
	}
	t := &f.tasks[i]
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	t.UpdatedAt = service.Timestamp{Time: f.tick()}
	return *t, nil
}

func (s fakeTasks) DeleteTask(ctx context.Context, id string) (string, error) {
	f := s.f
	f.enter("delete", id)
	f.mu.Lock()
	defer f.unlock()
	if _, err := f.authorizedLocked(); err != nil {
		return "", err
	}
	if f.DeleteTaskErr != nil {
		return "", f.DeleteTaskErr
	}
	i := f.indexLocked(id)
	if i < 0 {
		return "", notFound(id)
	}
	f.tasks = slices.Delete(f.tasks, i, i+1)
	return "Task deleted successfully", nil
}

func (s fakeTasks) ToggleTaskCompletion(ctx context.Context, id string) (service.Task, error) {
	f := s.f
	f.enter("toggle", id)
	f.mu.Lock()
	defer f.unlock()
	if _, err := f.authorizedLocked(); err != nil {
		return service.Task{}, err
	}
	if f.ToggleTaskErr != nil {
		return service.Task{}, f.ToggleTaskErr
	}
	i := f.indexLocked(id)
	if i < 0 {
		return service.Task{}, notFound(id)
	}
	f.tasks[i].Completed = !f.tasks[i].Completed
	f.tasks[i].UpdatedAt = service.Timestamp{Time: f.tick()}
	return f.tasks[i], nil
}
