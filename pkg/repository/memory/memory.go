package memory

import (
	"context"
	"sync"

	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
)

// Store is the registry of live recording sessions. Sessions are
// shared live objects synchronized internally, so the store hands out
// the stored pointer rather than a copy.
type Store struct {
	mu       sync.RWMutex
	sessions map[types.SessionID]*recording.Session
}

func New() *Store {
	return &Store{
		sessions: make(map[types.SessionID]*recording.Session),
	}
}

func (r *Store) PutSession(ctx context.Context, sess *recording.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sess.ID()] = sess
	return nil
}

// GetSession returns nil without error when the session is absent
func (r *Store) GetSession(ctx context.Context, id types.SessionID) (*recording.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[id], nil
}

// PopSession atomically removes and returns the session. Exactly one
// caller can claim a given session; later calls get nil.
func (r *Store) PopSession(ctx context.Context, id types.SessionID) (*recording.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	delete(r.sessions, id)
	return sess, nil
}

// PopSessionsByConn atomically removes and returns every session that
// was started on the given connection.
func (r *Store) PopSessionsByConn(ctx context.Context, connID types.ConnID) ([]*recording.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []*recording.Session
	for id, sess := range r.sessions {
		if sess.ConnID() == connID {
			sessions = append(sessions, sess)
			delete(r.sessions, id)
		}
	}
	return sessions, nil
}

// PopAllSessions atomically removes and returns every live session
func (r *Store) PopAllSessions(ctx context.Context) ([]*recording.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*recording.Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	return sessions, nil
}

func (r *Store) CountSessions(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
