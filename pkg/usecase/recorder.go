package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
	"github.com/telemetry-lab/magpie/pkg/repository/memory"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
	"github.com/telemetry-lab/magpie/pkg/utils/metrics"
)

// Recorder owns the lifecycle of recording sessions: creation with a
// reserved archive target, data accumulation, and the once-only flush
// to disk when a session ends or its connection goes away.
type Recorder struct {
	store   *memory.Store
	alloc   *archive.Allocator
	writer  *archive.Writer
	metrics *metrics.Metrics

	// createMu serializes allocation and registry insertion so a
	// session is always observable by the time the next allocation
	// against the same directory proceeds.
	createMu sync.Mutex
}

type Option func(*Recorder)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func New(store *memory.Store, alloc *archive.Allocator, writer *archive.Writer, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		alloc:   alloc,
		writer:  writer,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession validates the user object against the active naming
// policy, reserves an output file name, and registers a new live
// session bound to the connection.
func (uc *Recorder) StartSession(ctx context.Context, connID types.ConnID, rawUser json.RawMessage) (*recording.Session, error) {
	owner, err := uc.alloc.Naming().ResolveOwner(rawUser)
	if err != nil {
		return nil, err
	}

	uc.createMu.Lock()
	defer uc.createMu.Unlock()

	target, err := uc.alloc.Allocate(ctx, owner)
	if err != nil {
		errs.Handle(ctx, err)
		return nil, err
	}

	sess := recording.NewSession(ctx, connID, owner, target)
	sess.Activate()
	if err := uc.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}

	uc.metrics.SessionsStarted.Inc()
	uc.metrics.SessionsActive.Inc()

	logging.From(ctx).Info("session started",
		"session_id", sess.ID(),
		"owner", owner,
		"path", target.Path)

	return sess, nil
}

// AppendData adds a batch of data points to a live session and returns
// the accumulated total.
func (uc *Recorder) AppendData(ctx context.Context, id types.SessionID, points []json.RawMessage) (int, error) {
	sess, err := uc.store.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return 0, goerr.Wrap(errs.ErrSessionNotFound, "unknown session for training_data",
			goerr.V("session_id", id), goerr.T(errs.TagNotFound))
	}

	total, ok := sess.Append(points)
	if !ok {
		return 0, goerr.Wrap(errs.ErrSessionNotFound, "session already ended",
			goerr.V("session_id", id), goerr.T(errs.TagInvalidState))
	}

	uc.metrics.DataPointsTotal.Add(float64(len(points)))

	logging.From(ctx).Debug("data points received",
		"session_id", id,
		"batch", len(points),
		"total", total)

	return total, nil
}

// EndSession removes the session from the registry and flushes its
// document. The session is gone afterwards in every case; a flush
// failure is reported but cannot resurrect it.
func (uc *Recorder) EndSession(ctx context.Context, id types.SessionID) (string, error) {
	sess, err := uc.store.PopSession(ctx, id)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", goerr.Wrap(errs.ErrSessionNotFound, "unknown session for end_session",
			goerr.V("session_id", id), goerr.T(errs.TagNotFound))
	}

	if err := uc.flush(ctx, sess, metrics.EndTriggerRequest); err != nil {
		return "", err
	}
	return sess.Target().Path, nil
}

// SweepConn ends every session that is still live on a closed
// connection, persisting partial data best-effort. It returns the
// number of sessions successfully archived.
func (uc *Recorder) SweepConn(ctx context.Context, connID types.ConnID) int {
	sessions, err := uc.store.PopSessionsByConn(ctx, connID)
	if err != nil {
		errs.Handle(ctx, err)
		return 0
	}
	if len(sessions) == 0 {
		return 0
	}

	logging.From(ctx).Warn("sweeping sessions left open by closed connection",
		"count", len(sessions))

	flushed := 0
	for _, sess := range sessions {
		if uc.flush(ctx, sess, metrics.EndTriggerSweep) == nil {
			flushed++
		}
	}
	return flushed
}

// SweepAll ends every live session. Used on server shutdown so
// in-flight recordings are not lost.
func (uc *Recorder) SweepAll(ctx context.Context) int {
	sessions, err := uc.store.PopAllSessions(ctx)
	if err != nil {
		errs.Handle(ctx, err)
		return 0
	}
	if len(sessions) == 0 {
		return 0
	}

	logging.From(ctx).Warn("flushing live sessions on shutdown", "count", len(sessions))

	flushed := 0
	for _, sess := range sessions {
		if uc.flush(ctx, sess, metrics.EndTriggerShutdown) == nil {
			flushed++
		}
	}
	return flushed
}

// flush performs the terminal transition and writes the document.
// Safe to call for a session that already ended; only the first caller
// does the write.
func (uc *Recorder) flush(ctx context.Context, sess *recording.Session, trigger string) error {
	doc, ok := sess.End(ctx)
	if !ok {
		return nil
	}

	uc.metrics.SessionsActive.Dec()
	uc.metrics.SessionsEnded.WithLabelValues(trigger).Inc()

	n, err := uc.writer.Write(ctx, sess.Target(), doc)
	if err != nil {
		uc.metrics.DocumentWriteError.Inc()
		if goerr.HasTag(err, errs.TagInvariant) {
			uc.metrics.AllocatorCollision.Inc()
		}
		errs.Handle(ctx, err)
		return err
	}

	uc.metrics.DocumentsWritten.Inc()

	logging.From(ctx).Info("session archived",
		"session_id", sess.ID(),
		"path", sess.Target().Path,
		"data_points", doc.TotalDataPoints,
		"size", humanize.Bytes(uint64(n)),
		"duration_ms", doc.DurationMS,
		"trigger", trigger)

	return nil
}
