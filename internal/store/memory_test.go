package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreFilters(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 8, 22, 12, 0, 0, 0, time.Local)
	s.now = func() time.Time { return now }

	s.AddCourse(Course{ID: "c1", UserID: "u1", Name: "數學課", Schedule: now.Add(24 * time.Hour)})
	s.AddCourse(Course{ID: "c2", UserID: "u1", Name: "法語課", Schedule: now.Add(-24 * time.Hour)})
	s.AddCourse(Course{ID: "c3", UserID: "u1", Name: "鋼琴課", Status: "cancelled"})
	s.AddCourse(Course{ID: "c4", UserID: "u2", Name: "英語課", Schedule: now.Add(time.Hour)})

	ctx := context.Background()

	all, err := s.GetUserCourses(ctx, "u1", CourseFilter{})
	if err != nil {
		t.Fatalf("GetUserCourses: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 courses, got %d", len(all))
	}

	active, err := s.GetUserCourses(ctx, "u1", CourseFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("GetUserCourses active: %v", err)
	}
	if len(active) != 1 || active[0].ID != "c1" {
		t.Fatalf("expected only c1 active, got %+v", active)
	}

	named, err := s.GetUserCourses(ctx, "u1", CourseFilter{NameContains: "法語"})
	if err != nil {
		t.Fatalf("GetUserCourses named: %v", err)
	}
	if len(named) != 1 || named[0].ID != "c2" {
		t.Fatalf("expected c2, got %+v", named)
	}
}

func TestMemoryStoreUsageLog(t *testing.T) {
	s := NewMemoryStore()
	err := s.LogTokenUsage(context.Background(), TokenUsageRecord{
		UserID: "u1", Model: "gpt-4o-mini", Method: "openai", TotalTokens: 120,
	})
	if err != nil {
		t.Fatalf("LogTokenUsage: %v", err)
	}
	records := s.UsageRecords()
	if len(records) != 1 || records[0].TotalTokens != 120 {
		t.Fatalf("unexpected records %+v", records)
	}
	if records[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped")
	}
}
