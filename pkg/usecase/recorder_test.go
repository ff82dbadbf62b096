package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/types"
	"github.com/telemetry-lab/magpie/pkg/repository/memory"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/telemetry-lab/magpie/pkg/usecase"
	"github.com/telemetry-lab/magpie/pkg/utils/clock"
)

type testRecorder struct {
	*usecase.Recorder
	store *memory.Store
	base  string
}

func newTestRecorder(t *testing.T, naming archive.Naming) *testRecorder {
	t.Helper()
	base := t.TempDir()
	store := memory.New()
	rec := usecase.New(store, archive.NewAllocator(base, naming), archive.NewWriter())
	return &testRecorder{Recorder: rec, store: store, base: base}
}

func fixedCtx(at time.Time) context.Context {
	return clock.With(context.Background(), func() time.Time { return at })
}

var aliceRaw = json.RawMessage(`{"uid":"u1","displayName":"Alice"}`)

func TestRecorderRoundTrip(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := fixedCtx(start)

	sess := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)
	gt.Value(t, sess.Target().File).Equal("Alice_20250314_01.json")

	total := gt.R1(rec.AppendData(ctx, sess.ID(), []json.RawMessage{
		json.RawMessage(`{"seq":"a"}`),
		json.RawMessage(`{"seq":"b"}`),
	})).NoError(t)
	gt.Value(t, total).Equal(2)

	total = gt.R1(rec.AppendData(ctx, sess.ID(), []json.RawMessage{
		json.RawMessage(`{"seq":"c"}`),
	})).NoError(t)
	gt.Value(t, total).Equal(3)

	endCtx := fixedCtx(start.Add(2 * time.Second))
	path := gt.R1(rec.EndSession(endCtx, sess.ID())).NoError(t)
	gt.Value(t, path).Equal(filepath.Join(rec.base, "u1", "Alice_20250314_01.json"))
	gt.Value(t, rec.store.CountSessions(ctx)).Equal(0)

	raw := gt.R1(os.ReadFile(path)).NoError(t)
	var doc struct {
		SessionID       string           `json:"session_id"`
		User            map[string]any   `json:"user"`
		DurationMS      int64            `json:"session_duration_ms"`
		TotalDataPoints int              `json:"total_data_points"`
		TrainingData    []map[string]any `json:"training_data"`
	}
	gt.NoError(t, json.Unmarshal(raw, &doc))

	gt.Value(t, doc.SessionID).Equal(sess.ID().String())
	gt.Value(t, doc.User["uid"]).Equal("u1")
	gt.Value(t, doc.DurationMS).Equal(int64(2000))
	gt.Value(t, doc.TotalDataPoints).Equal(3)

	// Insertion order survives the round trip
	gt.Array(t, doc.TrainingData).Length(3)
	gt.Value(t, doc.TrainingData[0]["seq"]).Equal("a")
	gt.Value(t, doc.TrainingData[1]["seq"]).Equal("b")
	gt.Value(t, doc.TrainingData[2]["seq"]).Equal("c")
}

func TestRecorderEndTwice(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	sess := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)

	_, err := rec.EndSession(ctx, sess.ID())
	gt.NoError(t, err)

	_, err = rec.EndSession(ctx, sess.ID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, errs.ErrSessionNotFound))
}

func TestRecorderAppendAfterEnd(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	sess := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)
	gt.R1(rec.EndSession(ctx, sess.ID())).NoError(t)

	_, err := rec.AppendData(ctx, sess.ID(), []json.RawMessage{json.RawMessage(`{}`)})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, errs.ErrSessionNotFound))
}

func TestRecorderEndUnknownSession(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	_, err := rec.EndSession(ctx, types.NewSessionID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, errs.ErrSessionNotFound))

	// No document was produced
	entries := gt.R1(os.ReadDir(rec.base)).NoError(t)
	gt.Array(t, entries).Length(0)
}

func TestRecorderRequiresOwner(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	_, err := rec.StartSession(ctx, "conn-1", nil)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, errs.ErrOwnerRequired))
	gt.Value(t, rec.store.CountSessions(ctx)).Equal(0)

	// The rejected start left nothing behind on disk
	entries := gt.R1(os.ReadDir(rec.base)).NoError(t)
	gt.Array(t, entries).Length(0)
}

func TestRecorderGlobalPolicyWithoutOwner(t *testing.T) {
	rec := newTestRecorder(t, archive.NewGlobalNaming())
	ctx := context.Background()

	sess := gt.R1(rec.StartSession(ctx, "conn-1", nil)).NoError(t)
	gt.Value(t, sess.Target().File).Equal("training_data_001.json")

	path := gt.R1(rec.EndSession(ctx, sess.ID())).NoError(t)

	raw := gt.R1(os.ReadFile(path)).NoError(t)
	var doc map[string]any
	gt.NoError(t, json.Unmarshal(raw, &doc))
	user := gt.Cast[map[string]any](t, doc["user"])
	gt.Value(t, user["uid"]).Equal("anonymous")
}

func TestRecorderSweepConn(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	abandoned := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)
	points := make([]json.RawMessage, 5)
	for i := range points {
		points[i] = json.RawMessage(`{"roll":0.1}`)
	}
	gt.R1(rec.AppendData(ctx, abandoned.ID(), points)).NoError(t)

	other := gt.R1(rec.StartSession(ctx, "conn-2", aliceRaw)).NoError(t)

	gt.Value(t, rec.SweepConn(ctx, "conn-1")).Equal(1)
	gt.Value(t, rec.store.CountSessions(ctx)).Equal(1)

	// Partial data was persisted
	raw := gt.R1(os.ReadFile(abandoned.Target().Path)).NoError(t)
	var doc map[string]any
	gt.NoError(t, json.Unmarshal(raw, &doc))
	gt.Value(t, doc["total_data_points"]).Equal(float64(5))

	// The other connection's session is untouched and still usable
	gt.R1(rec.AppendData(ctx, other.ID(), points[:1])).NoError(t)

	// Sweeping an idle connection is a no-op
	gt.Value(t, rec.SweepConn(ctx, "conn-1")).Equal(0)
}

func TestRecorderSweepAll(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	s1 := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)
	s2 := gt.R1(rec.StartSession(ctx, "conn-2", aliceRaw)).NoError(t)

	gt.Value(t, rec.SweepAll(ctx)).Equal(2)
	gt.Value(t, rec.store.CountSessions(ctx)).Equal(0)

	for _, path := range []string{s1.Target().Path, s2.Target().Path} {
		_, err := os.Stat(path)
		gt.NoError(t, err)
	}
}

func TestRecorderEndWithWriteFailure(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	ctx := context.Background()

	sess := gt.R1(rec.StartSession(ctx, "conn-1", aliceRaw)).NoError(t)

	// Occupy the reserved path so the create-exclusive write collides
	gt.NoError(t, os.WriteFile(sess.Target().Path, []byte("collision"), 0644))

	_, err := rec.EndSession(ctx, sess.ID())
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, errs.TagInvariant))

	// The session is removed even though the flush failed
	gt.Value(t, rec.store.CountSessions(ctx)).Equal(0)
	_, err = rec.EndSession(ctx, sess.ID())
	gt.True(t, errors.Is(err, errs.ErrSessionNotFound))

	// The colliding file is never clobbered
	raw := gt.R1(os.ReadFile(sess.Target().Path)).NoError(t)
	gt.Value(t, string(raw)).Equal("collision")
}

func TestRecorderConcurrentStarts(t *testing.T) {
	rec := newTestRecorder(t, archive.NewUserNaming())
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := fixedCtx(start)

	const n = 10
	paths := make(chan string, n)
	seqs := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := rec.StartSession(ctx, "conn-1", aliceRaw)
			if err != nil {
				t.Error(err)
				return
			}
			paths <- sess.Target().Path
			seqs <- sess.Target().Seq
		}()
	}
	wg.Wait()
	close(paths)
	close(seqs)

	seen := map[string]bool{}
	for p := range paths {
		gt.False(t, seen[p])
		seen[p] = true
	}
	gt.Value(t, len(seen)).Equal(n)

	var ordered []int
	for s := range seqs {
		ordered = append(ordered, s)
	}
	sort.Ints(ordered)
	for i, seq := range ordered {
		gt.Value(t, seq).Equal(i + 1)
	}

	gt.Value(t, rec.store.CountSessions(ctx)).Equal(n)
}
