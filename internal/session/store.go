package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/pkg/logger"
)

const (
	DefaultTTL = 2 * time.Hour
	keyPrefix  = "interview_session:"
)

// Backend is the shared primary store, normally redis.
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// fallbackEntry is either a session snapshot or, when deleted is set, a
// tombstone for a primary delete that failed.
type fallbackEntry struct {
	data     []byte
	deleted  bool
	storedAt time.Time
	seq      uint64
}

// Store keeps one Session per connection. Primary failures are logged and
// served from an in-process map instead; no method returns a storage error.
type Store struct {
	primary Backend
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	fallback map[string]fallbackEntry
	seq      uint64
}

// NewStore builds a store over primary. A nil primary keeps every session
// in process memory.
func NewStore(primary Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		primary:  primary,
		ttl:      ttl,
		now:      time.Now,
		fallback: make(map[string]fallbackEntry),
	}
}

func key(connID string) string {
	return keyPrefix + connID
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create starts a fresh session for connID, replacing any previous one.
func (s *Store) Create(ctx context.Context, connID string, interviewID int64, userID string) *Session {
	sess := New(interviewID, userID)
	s.Update(ctx, connID, sess)

	logger.Info("Session created",
		zap.String("connection_id", connID),
		zap.Int64("interview_id", interviewID),
	)
	return sess
}

// Get returns the stored session, or false when it was never created, has
// expired, was deleted or cannot be decoded. A fallback entry is always
// newer than the primary copy, since a successful primary write drops it,
// so it wins and is written back once the primary answers again.
func (s *Store) Get(ctx context.Context, connID string) (*Session, bool) {
	k := key(connID)

	s.mu.Lock()
	entry, pending := s.fallback[k]
	s.mu.Unlock()
	if pending {
		s.reconcile(ctx, connID, entry)
		if entry.deleted {
			return nil, false
		}
		return s.decode(connID, entry.data)
	}

	if s.primary == nil {
		return nil, false
	}
	data, found, err := s.primary.Get(ctx, k)
	if err != nil {
		s.degraded("get", connID, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return s.decode(connID, data)
}

// reconcile replays a fallback entry onto the primary and drops it on
// success. Entries written after the snapshot was taken are left alone.
func (s *Store) reconcile(ctx context.Context, connID string, entry fallbackEntry) {
	if s.primary == nil {
		return
	}
	k := key(connID)

	var err error
	if entry.deleted {
		err = s.primary.Delete(ctx, k)
	} else {
		err = s.primary.Set(ctx, k, entry.data, s.ttl)
	}
	if err != nil {
		s.degraded("reconcile", connID, err)
		return
	}

	s.mu.Lock()
	if cur, ok := s.fallback[k]; ok && cur.seq == entry.seq {
		delete(s.fallback, k)
		metrics.SessionFallbackEntries.Set(float64(len(s.fallback)))
	}
	s.mu.Unlock()

	logger.Info("Session reconciled with primary store", zap.String("connection_id", connID))
}

// Update overwrites the session and refreshes its TTL.
func (s *Store) Update(ctx context.Context, connID string, sess *Session) {
	k := key(connID)

	data, err := encode(sess)
	if err != nil {
		logger.Error("Failed to encode session", zap.String("connection_id", connID), zap.Error(err))
		return
	}

	if s.primary != nil {
		err := s.primary.Set(ctx, k, data, s.ttl)
		if err == nil {
			s.dropFallback(k)
			return
		}
		s.degraded("set", connID, err)
	}

	s.putFallback(k, fallbackEntry{data: data, storedAt: s.now()})
}

// Delete removes the session. When the primary cannot be reached a
// tombstone keeps the old primary copy hidden until it can be deleted.
func (s *Store) Delete(ctx context.Context, connID string) {
	k := key(connID)

	if s.primary != nil {
		if err := s.primary.Delete(ctx, k); err != nil {
			s.degraded("delete", connID, err)
			s.putFallback(k, fallbackEntry{deleted: true, storedAt: s.now()})
			return
		}
	}
	s.dropFallback(k)

	logger.Debug("Session deleted", zap.String("connection_id", connID))
}

// AddAnswerDraft appends draft to the session's answer list. It returns
// false when there is no session for connID.
func (s *Store) AddAnswerDraft(ctx context.Context, connID string, draft AnswerDraft) bool {
	sess, ok := s.Get(ctx, connID)
	if !ok {
		return false
	}
	if draft.SubmittedAt.IsZero() {
		draft.SubmittedAt = s.now().UTC()
	}
	sess.Answers = append(sess.Answers, draft)
	s.Update(ctx, connID, sess)
	return true
}

func (s *Store) MarkCompleted(ctx context.Context, connID string) bool {
	sess, ok := s.Get(ctx, connID)
	if !ok {
		return false
	}
	sess.Status = StatusCompleted
	s.Update(ctx, connID, sess)
	return true
}

// SweepFallback removes fallback entries stored more than maxAge ago and
// returns how many were removed.
func (s *Store) SweepFallback(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, entry := range s.fallback {
		if entry.storedAt.Before(cutoff) {
			delete(s.fallback, k)
			removed++
		}
	}
	metrics.SessionFallbackEntries.Set(float64(len(s.fallback)))

	return removed
}

func (s *Store) FallbackSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fallback)
}

func (s *Store) putFallback(k string, entry fallbackEntry) {
	s.mu.Lock()
	s.seq++
	entry.seq = s.seq
	s.fallback[k] = entry
	metrics.SessionFallbackEntries.Set(float64(len(s.fallback)))
	s.mu.Unlock()
}

func (s *Store) dropFallback(k string) {
	s.mu.Lock()
	if _, ok := s.fallback[k]; ok {
		delete(s.fallback, k)
		metrics.SessionFallbackEntries.Set(float64(len(s.fallback)))
	}
	s.mu.Unlock()
}

func (s *Store) decode(connID string, data []byte) (*Session, bool) {
	sess, err := decode(data)
	if err != nil {
		logger.Warn("Discarding unreadable session",
			zap.String("connection_id", connID),
			zap.Error(err),
		)
		return nil, false
	}
	return sess, true
}

func (s *Store) degraded(op, connID string, err error) {
	metrics.SessionFallbacks.WithLabelValues(op).Inc()
	logger.Warn("Session store primary failed, using in-memory fallback",
		zap.String("operation", op),
		zap.String("connection_id", connID),
		zap.Error(err),
	)
}
