// Package convctx keeps the per-user, TTL-bounded memory of the last
// successful record/modify/cancel turn, used to resolve correction
// follow-ups ("不對，是4點") against the immediately preceding request.
package convctx

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"coursebot/internal/nlu"
)

const (
	// DefaultTTL bounds how long a turn stays correctable.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxUsers bounds the number of concurrently tracked users;
	// least-recently-active users are evicted first.
	DefaultMaxUsers = 10000

	lockStripes = 64
)

// Store implements nlu.ContextStore. One context slot per user,
// last-write-wins, expiry evaluated on every read.
type Store struct {
	ttl   time.Duration
	cache *expirable.LRU[string, *nlu.PendingContext]
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

// NewStore builds a context store. Non-positive ttl or maxUsers fall back to
// the defaults.
func NewStore(ttl time.Duration, maxUsers int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	return &Store{
		ttl:   ttl,
		cache: expirable.NewLRU[string, *nlu.PendingContext](maxUsers, nil, ttl),
		now:   time.Now,
	}
}

// GetPendingContext returns the user's pending context when one exists and
// has not expired. The explicit ExpiresAt check is authoritative; an expired
// entry is dropped and behaves identically to no context.
func (s *Store) GetPendingContext(userID string) (*nlu.PendingContext, bool) {
	pending, ok := s.cache.Get(userID)
	if !ok || pending == nil {
		return nil, false
	}
	if s.now().After(pending.ExpiresAt) {
		s.cache.Remove(userID)
		return nil, false
	}
	return pending, true
}

// HasValidContext reports whether a non-expired context exists for the user.
func (s *Store) HasValidContext(userID string) bool {
	_, ok := s.GetPendingContext(userID)
	return ok
}

// UpdateContext overwrites (never merges) the user's context slot.
func (s *Store) UpdateContext(userID string, intent nlu.Intent, entities nlu.Entities, result *nlu.AnalysisResult) {
	created := s.now()
	s.cache.Add(userID, &nlu.PendingContext{
		UserID:    userID,
		Intent:    intent,
		Entities:  entities,
		Result:    result,
		CreatedAt: created,
		ExpiresAt: created.Add(s.ttl),
	})
}

// Clear discards the user's context slot.
func (s *Store) Clear(userID string) {
	s.cache.Remove(userID)
}

// Lock serializes the read-then-write window for one user. Locks are striped
// by userID hash, so different users rarely contend and the same user always
// maps to the same stripe.
func (s *Store) Lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	stripe := &s.locks[h.Sum32()%lockStripes]
	stripe.Lock()
	return stripe.Unlock
}
