package commands

import (
	"context"
	"testing"

	"taskdeck/internal/config"
	"taskdeck/internal/state"
	"taskdeck/internal/testutil"
)

func TestNewSession_FollowsRejectedToken(t *testing.T) {
	fb := testutil.NewFakeBackend()
	fb.AddUser("ann@example.com", "")
	fb.SignIn("ann@example.com")
	ctx := context.Background()

	s := newSession(&config.Config{Dir: t.TempDir()}, fb)
	s.Init(ctx)
	if !s.Snapshot().Authenticated {
		t.Fatal("expected an authenticated session")
	}

	var seen []state.SessionState
	cancel := s.Subscribe(func(st state.SessionState) { seen = append(seen, st) })
	defer cancel()

	fb.Expire()
	if _, err := fb.Tasks().ListTasks(ctx); err == nil {
		t.Fatal("expected the rejected token to fail the call")
	}

	if len(seen) != 1 || seen[0].Authenticated {
		t.Fatalf("expected one unauthenticated notification, got %+v", seen)
	}
}

func TestNewSession_ValidCallsLeaveSessionAlone(t *testing.T) {
	fb := testutil.NewFakeBackend()
	fb.AddUser("ann@example.com", "")
	fb.SignIn("ann@example.com")
	ctx := context.Background()

	s := newSession(&config.Config{Dir: t.TempDir()}, fb)
	s.Init(ctx)

	var seen []state.SessionState
	cancel := s.Subscribe(func(st state.SessionState) { seen = append(seen, st) })
	defer cancel()

	if _, err := fb.Tasks().ListTasks(ctx); err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("expected no notifications, got %+v", seen)
	}
}
