package recording

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/telemetry-lab/magpie/pkg/domain/types"
	"github.com/telemetry-lab/magpie/pkg/utils/clock"
)

// Session is a live recording session. Data points accumulate in
// memory until the session ends, at which point a Document snapshot is
// taken exactly once. Methods are safe for concurrent use; messages
// for the same session may arrive over different connections.
type Session struct {
	mu sync.Mutex

	id        types.SessionID
	connID    types.ConnID
	owner     Owner
	target    Target
	startedAt time.Time

	state  types.SessionState
	points []json.RawMessage
}

// NewSession creates a session bound to the connection that started it
// and to its pre-allocated archive target. The session does not accept
// data until Activate is called.
func NewSession(ctx context.Context, connID types.ConnID, owner Owner, target Target) *Session {
	return &Session{
		id:        types.NewSessionID(),
		connID:    connID,
		owner:     owner,
		target:    target,
		startedAt: clock.Now(ctx),
		state:     types.SessionStateCreated,
	}
}

func (s *Session) ID() types.SessionID {
	return s.id
}

func (s *Session) ConnID() types.ConnID {
	return s.connID
}

func (s *Session) Owner() Owner {
	return s.owner
}

func (s *Session) Target() Target {
	return s.target
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Count returns the number of data points accumulated so far
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// Activate marks a freshly created session ready to accept data. The
// registry calls it before the session becomes observable; it does
// nothing when the session has already moved on.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == types.SessionStateCreated {
		s.state = types.SessionStateActive
	}
}

// Append adds a batch of data points in arrival order and returns the
// new total. It reports false unless the session is active.
func (s *Session) Append(points []json.RawMessage) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != types.SessionStateActive {
		return len(s.points), false
	}

	s.points = append(s.points, points...)
	return len(s.points), true
}

// End performs the terminal state transition from any earlier state
// and returns the document snapshot to persist. The second return
// value is false when the session has already ended; the transition
// happens at most once.
func (s *Session) End(ctx context.Context) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == types.SessionStateEnded {
		return nil, false
	}
	s.state = types.SessionStateEnded

	endedAt := clock.Now(ctx)
	doc := &Document{
		SessionID:       s.id,
		User:            s.owner.Raw,
		StartedAt:       s.startedAt,
		EndedAt:         endedAt,
		DurationMS:      endedAt.Sub(s.startedAt).Milliseconds(),
		TotalDataPoints: len(s.points),
		TrainingData:    s.points,
	}
	return doc, true
}
