package convctx

import (
	"testing"
	"time"

	"coursebot/internal/nlu"
)

func TestUpdateAndGet(t *testing.T) {
	s := NewStore(time.Minute, 10)

	if s.HasValidContext("u1") {
		t.Fatal("fresh store should have no context")
	}

	s.UpdateContext("u1", nlu.IntentRecordCourse, nlu.Entities{CourseName: "數學課"}, &nlu.AnalysisResult{Success: true})

	pending, ok := s.GetPendingContext("u1")
	if !ok {
		t.Fatal("expected pending context")
	}
	if pending.Entities.CourseName != "數學課" {
		t.Fatalf("course name = %q", pending.Entities.CourseName)
	}
	if pending.Intent != nlu.IntentRecordCourse {
		t.Fatalf("intent = %q", pending.Intent)
	}
	if !pending.ExpiresAt.After(pending.CreatedAt) {
		t.Fatal("ExpiresAt must trail CreatedAt by the TTL")
	}
}

func TestLastWriteWins(t *testing.T) {
	s := NewStore(time.Minute, 10)
	s.UpdateContext("u1", nlu.IntentRecordCourse, nlu.Entities{CourseName: "數學課", Location: "線上"}, nil)
	s.UpdateContext("u1", nlu.IntentModifyCourse, nlu.Entities{CourseName: "法語課"}, nil)

	pending, ok := s.GetPendingContext("u1")
	if !ok {
		t.Fatal("expected context")
	}
	// Overwritten, not merged: the first turn's location must be gone.
	if pending.Entities.CourseName != "法語課" || pending.Entities.Location != "" {
		t.Fatalf("context was merged instead of overwritten: %+v", pending.Entities)
	}
}

func TestExpiryOnRead(t *testing.T) {
	s := NewStore(time.Minute, 10)
	base := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.UpdateContext("u1", nlu.IntentRecordCourse, nlu.Entities{CourseName: "數學課"}, nil)
	if !s.HasValidContext("u1") {
		t.Fatal("context should be valid before expiry")
	}

	s.now = func() time.Time { return base.Add(61 * time.Second) }
	if s.HasValidContext("u1") {
		t.Fatal("expired context must behave identically to no context")
	}
	if _, ok := s.GetPendingContext("u1"); ok {
		t.Fatal("expired context must not be returned")
	}
}

func TestClear(t *testing.T) {
	s := NewStore(time.Minute, 10)
	s.UpdateContext("u1", nlu.IntentRecordCourse, nlu.Entities{CourseName: "數學課"}, nil)
	s.Clear("u1")
	if s.HasValidContext("u1") {
		t.Fatal("cleared context still present")
	}
}

func TestPerUserIsolation(t *testing.T) {
	s := NewStore(time.Minute, 10)
	s.UpdateContext("u1", nlu.IntentRecordCourse, nlu.Entities{CourseName: "數學課"}, nil)
	if s.HasValidContext("u2") {
		t.Fatal("contexts must be scoped per user")
	}
}

func TestLockSameUserSerializes(t *testing.T) {
	s := NewStore(time.Minute, 10)

	unlock := s.Lock("u1")
	done := make(chan struct{})
	go func() {
		inner := s.Lock("u1")
		inner()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
