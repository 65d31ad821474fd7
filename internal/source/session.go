package source

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session identifies the caller of source operations. Administrative
// sessions are used by the synchronization job. A session must be closed
// once the caller is done with it.
type Session struct {
	id      string
	admin   bool
	tracker *SessionTracker
	closed  atomic.Bool
}

// ID returns the unique session ID.
func (s *Session) ID() string {
	return s.id
}

// IsAdmin reports whether the session is administrative.
func (s *Session) IsAdmin() bool {
	return s.admin
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Close releases the session. Calling it more than once has no effect.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.tracker != nil {
		s.tracker.release(s)
	}
	return nil
}

// check returns ErrSessionClosed for a closed session. A nil session is
// accepted for callers outside any session.
func (s *Session) check() error {
	if s != nil && s.IsClosed() {
		return ErrSessionClosed
	}
	return nil
}

// CheckSession returns ErrSessionClosed if s has been closed.
func CheckSession(s *Session) error {
	return s.check()
}

// SessionTracker creates sessions and keeps track of the open ones.
type SessionTracker struct {
	mu   sync.Mutex
	open map[string]*Session
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{open: make(map[string]*Session)}
}

// NewSession opens a session.
func (t *SessionTracker) NewSession(admin bool) *Session {
	s := &Session{id: uuid.NewString(), admin: admin, tracker: t}
	t.mu.Lock()
	t.open[s.id] = s
	t.mu.Unlock()
	return s
}

// Open returns the IDs of the sessions that have not been closed, sorted.
func (t *SessionTracker) Open() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *SessionTracker) release(s *Session) {
	t.mu.Lock()
	delete(t.open, s.id)
	t.mu.Unlock()
}
