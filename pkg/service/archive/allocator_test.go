package archive_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
	"github.com/telemetry-lab/magpie/pkg/service/archive"
	"github.com/telemetry-lab/magpie/pkg/utils/clock"
)

func aliceOwner(t *testing.T) recording.Owner {
	t.Helper()
	return gt.R1(archive.NewUserNaming().ResolveOwner(
		json.RawMessage(`{"uid":"u1","displayName":"Alice"}`))).NoError(t)
}

func TestAllocateFirstFile(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	alloc := archive.NewAllocator(base, archive.NewUserNaming())
	target := gt.R1(alloc.Allocate(ctx, aliceOwner(t))).NoError(t)

	gt.Value(t, target.File).Equal("Alice_20250314_01.json")
	gt.Value(t, target.Dir).Equal(filepath.Join(base, "u1"))
	gt.Value(t, target.Path).Equal(filepath.Join(base, "u1", "Alice_20250314_01.json"))
	gt.Value(t, target.Seq).Equal(1)

	// The scope directory is created eagerly so the reservation is
	// writable even before any data arrives.
	info := gt.R1(os.Stat(target.Dir)).NoError(t)
	gt.True(t, info.IsDir())
}

func TestAllocateContinuesFromExisting(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	dir := filepath.Join(base, "u1")
	gt.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range []string{
		"Alice_20250314_01.json",
		"Alice_20250314_02.json",
		"Alice_20250314_07.json", // gap before it must not be refilled
	} {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	alloc := archive.NewAllocator(base, archive.NewUserNaming())
	target := gt.R1(alloc.Allocate(ctx, aliceOwner(t))).NoError(t)
	gt.Value(t, target.File).Equal("Alice_20250314_08.json")
}

func TestAllocateIgnoresForeignFiles(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	dir := filepath.Join(base, "u1")
	gt.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range []string{
		"Bob_20250314_05.json",       // other user prefix
		"Alice_20250313_09.json",     // other date
		"Alice_20250314_02.txt",      // other extension
		"Alice_20250314_notes.json",  // non-numeric suffix
		"Alice_20250314_01.json.bak", // trailing junk
	} {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	alloc := archive.NewAllocator(base, archive.NewUserNaming())
	target := gt.R1(alloc.Allocate(ctx, aliceOwner(t))).NoError(t)
	gt.Value(t, target.File).Equal("Alice_20250314_01.json")
}

func TestAllocateDoesNotReuseDeleted(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	alloc := archive.NewAllocator(base, archive.NewUserNaming())
	owner := aliceOwner(t)

	first := gt.R1(alloc.Allocate(ctx, owner)).NoError(t)
	gt.Value(t, first.Seq).Equal(1)

	// Nothing was ever written for the first reservation; the number
	// is still consumed.
	second := gt.R1(alloc.Allocate(ctx, owner)).NoError(t)
	gt.Value(t, second.Seq).Equal(2)
}

func TestAllocateGlobalSequence(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	naming := archive.NewGlobalNaming()
	alloc := archive.NewAllocator(base, naming)
	owner := gt.R1(naming.ResolveOwner(nil)).NoError(t)

	first := gt.R1(alloc.Allocate(ctx, owner)).NoError(t)
	gt.Value(t, first.File).Equal("training_data_001.json")
	gt.Value(t, first.Dir).Equal(base)

	second := gt.R1(alloc.Allocate(ctx, owner)).NoError(t)
	gt.Value(t, second.File).Equal("training_data_002.json")
}

func TestAllocateConcurrent(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	dir := filepath.Join(base, "u1")
	gt.NoError(t, os.MkdirAll(dir, 0755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "Alice_20250314_03.json"), []byte("{}"), 0644))

	alloc := archive.NewAllocator(base, archive.NewUserNaming())
	owner := aliceOwner(t)

	const n = 20
	targets := make(chan recording.Target, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			target, err := alloc.Allocate(ctx, owner)
			if err != nil {
				t.Error(err)
				return
			}
			targets <- target
		}()
	}
	wg.Wait()
	close(targets)

	var seqs []int
	seen := map[string]bool{}
	for target := range targets {
		gt.False(t, seen[target.File])
		seen[target.File] = true
		seqs = append(seqs, target.Seq)
	}
	gt.Array(t, seqs).Length(n)

	sort.Ints(seqs)
	for i, seq := range seqs {
		gt.Value(t, seq).Equal(4 + i) // contiguous run above the pre-existing max
	}
}

func TestAllocatePerUserIsolation(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), fixedClock(at))

	naming := archive.NewUserNaming()
	alloc := archive.NewAllocator(base, naming)

	alice := gt.R1(naming.ResolveOwner(json.RawMessage(`{"uid":"u1","displayName":"Alice"}`))).NoError(t)
	bob := gt.R1(naming.ResolveOwner(json.RawMessage(`{"uid":"u2","displayName":"Bob"}`))).NoError(t)

	first := gt.R1(alloc.Allocate(ctx, alice)).NoError(t)
	second := gt.R1(alloc.Allocate(ctx, bob)).NoError(t)

	gt.Value(t, first.File).Equal("Alice_20250314_01.json")
	gt.Value(t, second.File).Equal("Bob_20250314_01.json")
	gt.NotEqual(t, first.Dir, second.Dir)
}
