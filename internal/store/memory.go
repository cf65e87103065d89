package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements CourseStore for tests, the CLI, and local demos.
type MemoryStore struct {
	mu      sync.RWMutex
	courses map[string][]Course // userID -> courses
	usage   []TokenUsageRecord
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses: make(map[string][]Course),
		now:     time.Now,
	}
}

// AddCourse seeds a course record for the user.
func (s *MemoryStore) AddCourse(course Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.UserID] = append(s.courses[course.UserID], course)
}

// GetUserCourses returns the user's courses matching the filter.
func (s *MemoryStore) GetUserCourses(_ context.Context, userID string, filter CourseFilter) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Course
	for _, course := range s.courses[userID] {
		if filter.ActiveOnly {
			if course.Status == "cancelled" {
				continue
			}
			if course.Recurrence == "" && !course.Schedule.IsZero() && course.Schedule.Before(s.now()) {
				continue
			}
		}
		if filter.NameContains != "" && !strings.Contains(course.Name, filter.NameContains) {
			continue
		}
		results = append(results, course)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// LogTokenUsage appends the record; it never fails.
func (s *MemoryStore) LogTokenUsage(_ context.Context, record TokenUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.usage = append(s.usage, record)
	return nil
}

// UsageRecords returns a copy of the logged usage, newest last.
func (s *MemoryStore) UsageRecords() []TokenUsageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TokenUsageRecord, len(s.usage))
	copy(out, s.usage)
	return out
}
