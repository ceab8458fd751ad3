package conversation

import (
	"context"
	"sync"

	list "github.com/bahlo/generic-list-go"
)

// DefaultSessionID names the session used when a request carries none.
const DefaultSessionID = "default"

// Session bundles a transcript with a pipeline lock. Holding the lock for a
// whole exchange keeps each user/assistant pair contiguous in the transcript.
type Session struct {
	ID         string
	transcript *Transcript
	sem        chan struct{}

	// elem is the session's place in the store's recency list, guarded by
	// the store's mutex.
	elem *list.Element[*Session]
	// evicted is set while holding sem, once the store has dropped the session.
	evicted bool
}

// Transcript returns the session's transcript.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// Acquire takes the pipeline lock, giving up when ctx is done.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release gives the pipeline lock back.
func (s *Session) Release() {
	<-s.sem
}

// Store hands out sessions by ID, creating them on first use. With a
// session limit, creating a session beyond it evicts the least recently
// used idle session.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	recent      *list.List[*Session]
	maxSessions int
	policy      Policy
	counter     TokenCounter
}

// NewStore creates an empty store whose sessions share policy and counter.
// It keeps any number of sessions until SetMaxSessions is called.
func NewStore(policy Policy, counter TokenCounter) *Store {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Store{
		sessions: make(map[string]*Session),
		recent:   list.New[*Session](),
		policy:   policy,
		counter:  counter,
	}
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// Session returns the session for id, creating it if needed, and marks it
// as most recently used. An empty id selects DefaultSessionID.
func (s *Store) Session(id string) *Session {
	id = normalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		s.recent.MoveToFront(sess.elem)
		return sess
	}

	sess := &Session{
		ID:         id,
		transcript: NewTranscript(s.policy, s.counter),
		sem:        make(chan struct{}, 1),
	}
	sess.elem = s.recent.PushFront(sess)
	s.sessions[id] = sess
	s.evict(sess)
	return sess
}

// Acquire returns the session for id with its pipeline lock held. A session
// evicted while the caller waited is replaced by a fresh one.
func (s *Store) Acquire(ctx context.Context, id string) (*Session, error) {
	for {
		sess := s.Session(id)
		if err := sess.Acquire(ctx); err != nil {
			return nil, err
		}
		if !sess.evicted {
			return sess, nil
		}
		sess.Release()
	}
}

// evict drops least recently used sessions other than keep until the limit
// holds. Sessions whose lock is held are skipped, so the store may briefly
// exceed the limit while every older session is busy. The caller holds s.mu.
func (s *Store) evict(keep *Session) {
	if s.maxSessions <= 0 {
		return
	}
	for e := s.recent.Back(); e != nil && len(s.sessions) > s.maxSessions; {
		prev := e.Prev()
		sess := e.Value
		if sess != keep && sess.tryAcquire() {
			sess.evicted = true
			s.recent.Remove(e)
			delete(s.sessions, sess.ID)
			sess.Release()
		}
		e = prev
	}
}

// Lookup returns the session for id without creating it.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[normalizeID(id)]
	return sess, ok
}

// Reset clears the transcript of id once any exchange running on it has
// finished. Unknown sessions are left uncreated.
func (s *Store) Reset(ctx context.Context, id string) error {
	for {
		sess, ok := s.Lookup(id)
		if !ok {
			return nil
		}
		if err := sess.Acquire(ctx); err != nil {
			return err
		}
		if sess.evicted {
			sess.Release()
			continue
		}
		sess.transcript.Reset()
		sess.Release()
		return nil
	}
}

// Sessions returns the number of live sessions.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetMaxSessions changes the session limit, evicting idle sessions if the
// store is over it. n <= 0 removes the limit.
func (s *Store) SetMaxSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = n
	s.evict(nil)
}

// SetPolicy changes the retention policy of the store and every session.
func (s *Store) SetPolicy(policy Policy) {
	s.mu.Lock()
	s.policy = policy
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.transcript.SetPolicy(policy)
	}
}
