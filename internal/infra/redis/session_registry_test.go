package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"arena-session-service/internal/app"
	"arena-session-service/internal/domain"
)

func buildSession(code string) *app.Session {
	return app.NewSession(app.SessionConfig{
		Code:            code,
		Questions:       []domain.Question{{Text: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: "a"}},
		DurationSeconds: 60,
	})
}

func TestSessionRegistryClaimsAndReleasesCodes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	registry := NewSessionRegistry(newClient(mr), time.Minute)

	session, err := registry.Create(buildSession)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("session:" + session.Code() + ":live") {
		t.Fatalf("expected liveness key for %s", session.Code())
	}

	got, ok := registry.Get(session.Code())
	if !ok || got != session {
		t.Fatalf("expected stored session")
	}

	registry.MarkEnded(session.Code())
	if mr.Exists("session:" + session.Code() + ":live") {
		t.Fatalf("expected liveness key removed")
	}
	// The session itself remains readable for results.
	if _, ok := registry.Get(session.Code()); !ok {
		t.Fatalf("expected ended session to remain readable")
	}
}

func TestSessionRegistrySkipsForeignClaims(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	first := NewSessionRegistry(client, time.Minute)
	second := NewSessionRegistry(client, time.Minute)

	a, err := first.Create(buildSession)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := second.Create(buildSession)
	if err != nil {
		t.Fatalf("create on second instance: %v", err)
	}
	if a.Code() == b.Code() {
		t.Fatalf("expected distinct codes across instances, both got %s", a.Code())
	}
}
