package state

import (
	"context"
	"log/slog"
	"sync"

	"taskdeck/internal/service"
)

// SessionState is a point-in-time view of the session.
type SessionState struct {
	// User is nil unless Authenticated.
	User          *service.User
	Loading       bool
	Authenticated bool
}

// Session tracks whether the client is authenticated.
//
// It starts loading; any completed call ends the loading state. Login and
// Signup only change the user on success. Logout always ends unauthenticated.
// Overlapping calls are not deduplicated and the last one to finish wins.
type Session struct {
	auth   service.AuthService
	logger *slog.Logger
	subs   subscribers[SessionState]

	mu            sync.Mutex
	user          *service.User
	authenticated bool
	checkPending  bool
	inflight      int
}

// NewSession creates a session container in the loading state.
func NewSession(auth service.AuthService, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{
		auth:         auth,
		logger:       o.logger,
		checkPending: true,
	}
}

// Init re-validates the persisted session against the server.
func (s *Session) Init(ctx context.Context) {
	s.begin()
	user, ok := s.auth.CurrentUser(ctx)
	s.finish(func() {
		s.checkPending = false
		if ok {
			s.setUser(user)
		} else {
			s.clearUser()
		}
	})
	s.logger.Debug("session checked", "authenticated", ok)
}

// Login authenticates with email and password. On failure the returned
// error carries a displayable message and the session is unchanged.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.begin()
	sess, err := s.auth.Login(ctx, service.Credentials{Email: email, Password: password})
	s.finish(func() {
		s.checkPending = false
		if err == nil {
			s.setUser(sess.User)
		}
	})
	return err
}

// Signup registers an account and authenticates with it. Same contract as Login.
func (s *Session) Signup(ctx context.Context, email, password, name string) error {
	s.begin()
	sess, err := s.auth.Signup(ctx, service.Registration{Email: email, Password: password, Name: name})
	s.finish(func() {
		s.checkPending = false
		if err == nil {
			s.setUser(sess.User)
		}
	})
	return err
}

// Logout ends the session. It cannot fail.
func (s *Session) Logout(ctx context.Context) {
	s.begin()
	s.auth.Logout(ctx)
	s.finish(func() {
		s.checkPending = false
		s.clearUser()
	})
}

// Invalidate drops the cached user without any network I/O. Used when a
// call reports that the server no longer accepts the session.
func (s *Session) Invalidate() {
	s.mu.Lock()
	changed := s.authenticated
	s.clearUser()
	st := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.logger.Debug("session invalidated")
		s.subs.notify(st)
	}
}

// Snapshot returns the current state. A session that believes it is
// authenticated while no token is held is invalidated first.
func (s *Session) Snapshot() SessionState {
	if !s.auth.IsAuthenticated() {
		s.Invalidate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every state change and returns a
// function that cancels the subscription.
func (s *Session) Subscribe(fn func(SessionState)) (cancel func()) {
	return s.subs.add(fn)
}

func (s *Session) begin() {
	s.mu.Lock()
	s.inflight++
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.subs.notify(st)
}

func (s *Session) finish(update func()) {
	s.mu.Lock()
	update()
	s.inflight--
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.subs.notify(st)
}

func (s *Session) setUser(u service.User) {
	s.user = &u
	s.authenticated = true
}

func (s *Session) clearUser() {
	s.user = nil
	s.authenticated = false
}

func (s *Session) snapshotLocked() SessionState {
	st := SessionState{
		Loading:       s.checkPending || s.inflight > 0,
		Authenticated: s.authenticated,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}
