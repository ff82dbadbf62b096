package archive

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/domain/model/errs"
	"github.com/telemetry-lab/magpie/pkg/domain/model/recording"
)

// Allocator reserves collision-free file names inside scope
// directories. The highest sequence number per (directory, prefix) is
// cached after a lazy directory scan, so each allocation after the
// first is a pure counter increment under the directory lock. Sequence
// numbers are monotonic: a gap left by a deleted file is never reused.
//
// The lock only serializes allocations within this process. Two
// processes sharing one base directory can still race; deployment is
// single-process.
type Allocator struct {
	base   string
	naming Naming

	mu   sync.Mutex
	dirs map[string]*dirState
}

type dirState struct {
	mu   sync.Mutex
	last map[string]int // highest sequence observed or allocated, per prefix
}

func NewAllocator(base string, naming Naming) *Allocator {
	return &Allocator{
		base:   base,
		naming: naming,
		dirs:   make(map[string]*dirState),
	}
}

func (a *Allocator) Naming() Naming {
	return a.naming
}

func (a *Allocator) Base() string {
	return a.base
}

// Allocate reserves the next file name for the owner. The reservation
// is permanent: the sequence number is consumed even if the session is
// later abandoned without data.
func (a *Allocator) Allocate(ctx context.Context, owner recording.Owner) (recording.Target, error) {
	dir := a.naming.ScopeDir(a.base, owner)
	prefix := a.naming.Prefix(ctx, owner)

	ds := a.dirState(dir)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return recording.Target{}, goerr.Wrap(err, "failed to create scope directory",
			goerr.V("dir", dir), goerr.T(errs.TagPersistence))
	}

	last, ok := ds.last[prefix]
	if !ok {
		scanned, err := scanMaxSeq(dir, prefix)
		if err != nil {
			return recording.Target{}, goerr.Wrap(err, "failed to scan scope directory",
				goerr.V("dir", dir), goerr.V("prefix", prefix), goerr.T(errs.TagPersistence))
		}
		last = scanned
	}

	seq := last + 1
	ds.last[prefix] = seq

	file := a.naming.FileName(prefix, seq)
	return recording.Target{
		Dir:  dir,
		File: file,
		Path: filepath.Join(dir, file),
		Seq:  seq,
	}, nil
}

func (a *Allocator) dirState(dir string) *dirState {
	a.mu.Lock()
	defer a.mu.Unlock()

	ds, ok := a.dirs[dir]
	if !ok {
		ds = &dirState{last: make(map[string]int)}
		a.dirs[dir] = ds
	}
	return ds
}

// scanMaxSeq returns the highest numeric suffix among files matching
// prefix in dir, or 0 when none match. Entries with a non-numeric
// middle, a different extension, or a different prefix are ignored.
func scanMaxSeq(dir string, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	maxSeq := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		middle := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		seq, err := strconv.Atoi(middle)
		if err != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}
