// Package session keeps per-browser state for the dashboard: the diagnosis
// currently on screen and the history the user chose to record. Nothing here
// is persisted.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sirupsen/logrus"
)

// HistoryEntry is one recorded diagnosis as displayed in the history table.
type HistoryEntry struct {
	Timestamp  string `json:"timestamp"`
	Label      string `json:"label"`
	Confidence string `json:"confidence"`
}

// Diagnosis is the upload currently shown to a session.
type Diagnosis struct {
	ID          string
	Filename    string
	ContentType string
	Image       []byte
	Result      diagnosis.Result
	CreatedAt   time.Time
}

type Session struct {
	ID string

	mu       sync.Mutex
	current  *Diagnosis
	history  []HistoryEntry
	lastSeen time.Time
}

// SetCurrent replaces the diagnosis on screen and returns its new id.
func (s *Session) SetCurrent(d Diagnosis) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = uuid.New().String()
	s.current = &d
	return d.ID
}

// Current returns the diagnosis on screen, if any.
func (s *Session) Current() (Diagnosis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Diagnosis{}, false
	}
	return *s.current, true
}

// Record appends r to the history. Every call appends, even for the same
// result.
func (s *Session) Record(r diagnosis.Result, now time.Time) HistoryEntry {
	e := HistoryEntry{
		Timestamp:  now.Format("15:04:05"),
		Label:      r.Label,
		Confidence: fmt.Sprintf("%.1f%%", r.Confidence),
	}
	s.mu.Lock()
	s.history = append(s.history, e)
	s.mu.Unlock()
	return e
}

// RecordCurrent records the diagnosis on screen if its id is still id.
func (s *Session) RecordCurrent(id string, now time.Time) (HistoryEntry, bool) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur.ID != id {
		return HistoryEntry{}, false
	}
	return s.Record(cur.Result, now), true
}

// History returns a copy of the recorded entries in append order.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Store maps session ids to sessions. It holds at most limit sessions; when
// full, making a new one evicts the session idle the longest.
type Store struct {
	ttl   time.Duration
	limit int
	now   func() time.Time

	lock     sync.Mutex
	sessions map[string]*Session
}

func NewStore(ttl time.Duration, limit int) *Store {
	if limit < 1 {
		limit = 1
	}
	return &Store{
		ttl:      ttl,
		limit:    limit,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating a fresh one when id is unknown
// or malformed. The returned bool reports whether a new session was made.
func (s *Store) Get(id string) (*Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.now()

	if _, err := uuid.Parse(id); err == nil {
		if sess, present := s.sessions[id]; present {
			sess.touch(now)
			return sess, false
		}
	}

	if len(s.sessions) >= s.limit {
		s.evictOldest(now)
	}
	sess := &Session{ID: uuid.New().String(), lastSeen: now}
	s.sessions[sess.ID] = sess
	logrus.WithField("session", sess.ID).Debug("new session")
	return sess, true
}

// Lookup returns the existing session for id without creating one.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	sess, present := s.sessions[id]
	if !present {
		return nil, false
	}
	sess.touch(s.now())
	return sess, true
}

// evictOldest must be called with s.lock held.
func (s *Store) evictOldest(now time.Time) {
	var (
		oldest string
		idle   time.Duration = -1
	)
	for key, val := range s.sessions {
		if d := val.idle(now); d > idle {
			oldest, idle = key, d
		}
	}
	if idle < 0 {
		return
	}
	delete(s.sessions, oldest)
	logrus.WithField("session", oldest).
		WithField("idle", idle).
		Warn("session limit reached, evicting")
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle longer than the store's ttl and returns how
// many were removed.
func (s *Store) Sweep() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.now()
	tmp := make(map[string]*Session, len(s.sessions))
	for key, val := range s.sessions {
		if val.idle(now) < s.ttl {
			tmp[key] = val
		}
	}
	removed := len(s.sessions) - len(tmp)
	s.sessions = tmp
	return removed
}

// RunCleaner sweeps every interval until ctx is done.
func (s *Store) RunCleaner(ctx context.Context, interval time.Duration) {
	logrus.Info("starting session cleaner")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep()
			logrus.WithField("removed", removed).
				WithField("count", s.Len()).
				Info("session cleanup")
		}
	}
}
