package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// naiveLayout is how the API writes timestamps: ISO-8601 without a zone.
const naiveLayout = "2006-01-02T15:04:05.000000"

// FakeAPI is an httptest server speaking the task REST API.
// Tokens are HS256 JWTs whose subject is the user id.
type FakeAPI struct {
	srv *httptest.Server
	key []byte

	mu       sync.Mutex
	users    map[string]apiUser   // email -> user
	tasks    map[string][]apiTask // user id -> tasks
	revoked  map[string]bool      // token -> revoked
	requests []RecordedRequest
	failures []cannedResponse
	clock    time.Time

	// OmitToken makes login and register answer without access_token.
	OmitToken bool

	// Delay, when set, is applied to every request before it is handled.
	Delay time.Duration
}

// RecordedRequest is what the server saw for one request.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

type cannedResponse struct {
	status int
	body   string
}

type apiUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	hash      []byte
}

type apiTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	UserID      string `json:"user_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// NewFakeAPI starts a server and stops it when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		key:     []byte("fake-api-signing-key"),
		users:   make(map[string]apiUser),
		tasks:   make(map[string][]apiTask),
		revoked: make(map[string]bool),
		clock:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(f.record)
	api.HandleFunc("/auth/login", f.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", f.register).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(f.authenticate)
	authed.HandleFunc("/auth/me", f.me).Methods(http.MethodGet)
	authed.HandleFunc("/auth/logout", f.logout).Methods(http.MethodPost)
	authed.HandleFunc("/{uid}/tasks", f.listTasks).Methods(http.MethodGet)
	authed.HandleFunc("/{uid}/tasks", f.createTask).Methods(http.MethodPost)
	authed.HandleFunc("/{uid}/tasks/{id}", f.updateTask).Methods(http.MethodPut)
	authed.HandleFunc("/{uid}/tasks/{id}", f.deleteTask).Methods(http.MethodDelete)
	authed.HandleFunc("/{uid}/tasks/{id}/complete", f.toggleTask).Methods(http.MethodPatch)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeAPI) URL() string {
	return f.srv.URL + "/api"
}

// AddUser registers a user and returns its id.
func (f *FakeAPI) AddUser(email, password, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password, name).ID
}

// IssueToken returns a valid token for the user with email.
func (f *FakeAPI) IssueToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[strings.ToLower(email)]
	if !ok {
		panic("fakeapi: unknown user " + email)
	}
	return f.sign(u.ID)
}

// Revoke makes the server reject token from now on.
func (f *FakeAPI) Revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = true
}

// AddTask stores a task for user id and returns the task id.
func (f *FakeAPI) AddTask(userID, title string, completed bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	t := apiTask{
		ID:        uuid.NewString(),
		Title:     title,
		Completed: completed,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.tasks[userID] = append(f.tasks[userID], t)
	return t.ID
}

// TaskCount returns how many tasks user id has.
func (f *FakeAPI) TaskCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks[userID])
}

// FailNext makes the next request answer with status and a raw body.
// Calls queue in order.
func (f *FakeAPI) FailNext(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, cannedResponse{status: status, body: body})
}

// Requests returns every request seen so far.
func (f *FakeAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// LastRequest returns the most recent request.
func (f *FakeAPI) LastRequest() RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return RecordedRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *FakeAPI) tick() string {
	f.clock = f.clock.Add(time.Second)
	return f.clock.Format(naiveLayout)
}

func (f *FakeAPI) addUserLocked(email, password, name string) apiUser {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	now := f.tick()
	u := apiUser{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		hash:      hash,
	}
	f.users[u.Email] = u
	return u
}

func (f *FakeAPI) sign(userID string) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.key)
	if err != nil {
		panic(err)
	}
	return s
}

func (f *FakeAPI) userByID(id string) (apiUser, bool) {
	for _, u := range f.users {
		if u.ID == id {
			return u, true
		}
	}
	return apiUser{}, false
}

// record logs the request and serves a queued failure if there is one.
func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          string(body),
		})
		var canned *cannedResponse
		if len(f.failures) > 0 {
			c := f.failures[0]
			f.failures = f.failures[1:]
			canned = &c
		}
		delay := f.Delay
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if canned != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.status)
			fmt.Fprint(w, canned.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

type session struct {
	userID string
	token  string
}

func sessionFrom(r *http.Request) session {
	s, _ := r.Context().Value(ctxKey{}).(session)
	return s
}

// authenticate verifies the bearer token and stores the session in the context.
func (f *FakeAPI) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			detail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return f.key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		f.mu.Lock()
		revoked := f.revoked[raw]
		_, known := f.userByID(claims.Subject)
		f.mu.Unlock()

		if err != nil || !token.Valid || revoked || !known {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		if uid, ok := mux.Vars(r)["uid"]; ok && uid != claims.Subject {
			detail(w, http.StatusForbidden, "Not authorized to access these tasks")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, session{userID: claims.Subject, token: raw})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	f.mu.Lock()
	u, ok := f.users[strings.ToLower(req.Email)]
	f.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		detail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	f.respondToken(w, http.StatusOK, u)
}

func (f *FakeAPI) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.Password) < 8 {
		respond(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body", "password"},
				"msg":  "String should have at least 8 characters",
				"type": "string_too_short",
			}},
		})
		return
	}

	f.mu.Lock()
	if _, exists := f.users[strings.ToLower(req.Email)]; exists {
		f.mu.Unlock()
		detail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := f.addUserLocked(req.Email, req.Password, req.Name)
	f.mu.Unlock()

	f.respondToken(w, http.StatusCreated, u)
}

func (f *FakeAPI) respondToken(w http.ResponseWriter, status int, u apiUser) {
	body := map[string]any{"token_type": "bearer", "user": u}
	if !f.OmitToken {
		body["access_token"] = f.sign(u.ID)
	}
	respond(w, status, body)
}

func (f *FakeAPI) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	u, _ := f.userByID(sessionFrom(r).userID)
	f.mu.Unlock()
	respond(w, http.StatusOK, u)
}

func (f *FakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.Revoke(sessionFrom(r).token)
	respond(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (f *FakeAPI) listTasks(w http.ResponseWriter, r *http.Request) {
	uid := sessionFrom(r).userID
	f.mu.Lock()
	tasks := slices.Clone(f.tasks[uid])
	f.mu.Unlock()
	if tasks == nil {
		tasks = []apiTask{}
	}
	respond(w, http.StatusOK, tasks)
}

func (f *FakeAPI) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respond(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body", "title"},
				"msg":  "String should have at least 1 character",
				"type": "string_too_short",
			}},
		})
		return
	}

	uid := sessionFrom(r).userID
	f.mu.Lock()
	now := f.tick()
	t := apiTask{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		UserID:      uid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.tasks[uid] = append(f.tasks[uid], t)
	f.mu.Unlock()

	respond(w, http.StatusCreated, t)
}

func (f *FakeAPI) updateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Completed   *bool   `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	f.mutate(w, r, func(t *apiTask) {
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}
	})
}

func (f *FakeAPI) toggleTask(w http.ResponseWriter, r *http.Request) {
	f.mutate(w, r, func(t *apiTask) {
		t.Completed = !t.Completed
	})
}

func (f *FakeAPI) deleteTask(w http.ResponseWriter, r *http.Request) {
	uid, id := sessionFrom(r).userID, mux.Vars(r)["id"]
	f.mu.Lock()
	i := slices.IndexFunc(f.tasks[uid], func(t apiTask) bool { return t.ID == id })
	if i >= 0 {
		f.tasks[uid] = slices.Delete(f.tasks[uid], i, i+1)
	}
	f.mu.Unlock()

	if i < 0 {
		detail(w, http.StatusNotFound, "Task not found")
		return
	}
	respond(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

// mutate applies fn to the task named in the path and writes it back.
func (f *FakeAPI) mutate(w http.ResponseWriter, r *http.Request, fn func(*apiTask)) {
	uid, id := sessionFrom(r).userID, mux.Vars(r)["id"]
	f.mu.Lock()
	i := slices.IndexFunc(f.tasks[uid], func(t apiTask) bool { return t.ID == id })
	var t apiTask
	if i >= 0 {
		fn(&f.tasks[uid][i])
		f.tasks[uid][i].UpdatedAt = f.tick()
		t = f.tasks[uid][i]
	}
	f.mu.Unlock()

	if i < 0 {
		detail(w, http.StatusNotFound, "Task not found")
		return
	}
	respond(w, http.StatusOK, t)
}

func detail(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"detail": msg})
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
