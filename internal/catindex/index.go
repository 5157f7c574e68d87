// Package catindex builds a fuzzy-searchable snapshot over the category
// reference and serves ranked candidate sets for defect texts. Snapshots are
// immutable; a rebuild prepares the new snapshot off to the side and
// publishes it with a single pointer swap, so readers never observe a
// half-built index.
package catindex

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/avelichko/defect-classifier/internal/common"
)

// Source supplies the ordered category reference and a content fingerprint
// for staleness detection.
type Source interface {
	// Load returns the ordered category names and the fingerprint of the
	// content they were read from.
	Load() (categories []string, fingerprint string, err error)
	// Fingerprint recomputes the current content fingerprint without a full
	// load.
	Fingerprint() (string, error)
}

// Snapshot is one immutable build of the index.
type Snapshot struct {
	Categories  []string
	Fingerprint string
	prepared    []prepared
}

// Index serves candidate lookups against the current snapshot and swaps in
// fresh snapshots when the reference changes.
type Index struct {
	source Source
	logger *slog.Logger
	snap   atomic.Pointer[Snapshot]

	mu        sync.Mutex // serializes rebuilds and hook registration
	onRebuild []func()
}

// New loads the reference and builds the initial snapshot. An empty or
// unreadable reference is a configuration error: the service must not start
// without categories.
func New(source Source, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{source: source, logger: logger}

	snap, err := ix.build()
	if err != nil {
		return nil, err
	}
	ix.snap.Store(snap)
	logger.Info("catindex.built", "categories", len(snap.Categories), "fingerprint", snap.Fingerprint)
	return ix, nil
}

func (ix *Index) build() (*Snapshot, error) {
	categories, fingerprint, err := ix.source.Load()
	if err != nil {
		return nil, common.ConfigurationError("loading category reference", err)
	}
	if len(categories) == 0 {
		return nil, common.ConfigurationError("category reference is empty", nil)
	}
	snap := &Snapshot{
		Categories:  categories,
		Fingerprint: fingerprint,
		prepared:    make([]prepared, len(categories)),
	}
	for i, c := range categories {
		snap.prepared[i] = prepare(c)
	}
	return snap, nil
}

// OnRebuild registers fn to run after every snapshot swap. Used by the
// classify stage to drop cached results that were computed against the old
// candidate sets.
func (ix *Index) OnRebuild(fn func()) {
	ix.mu.Lock()
	ix.onRebuild = append(ix.onRebuild, fn)
	ix.mu.Unlock()
}

// Categories returns the current snapshot's category list.
func (ix *Index) Categories() []string {
	return ix.snap.Load().Categories
}

// FindTopN returns up to n categories ranked by fuzzy similarity to text,
// descending; ties keep the reference-list order. Empty input gets the first
// n categories, matching the behavior of the reference matcher.
func (ix *Index) FindTopN(text string, n int) []string {
	snap := ix.snap.Load()
	if n <= 0 {
		return nil
	}
	if n > len(snap.Categories) {
		n = len(snap.Categories)
	}

	q := prepare(text)
	if q.norm == "" {
		return append([]string(nil), snap.Categories[:n]...)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(snap.prepared))
	for i := range snap.prepared {
		scores[i] = ranked{idx: i, score: score(q, snap.prepared[i])}
	}
	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].score != scores[b].score {
			return scores[a].score > scores[b].score
		}
		return scores[a].idx < scores[b].idx
	})

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = snap.Categories[scores[i].idx]
	}
	return out
}

// RefreshIfStale recomputes the reference fingerprint and, if it changed,
// builds a new snapshot and atomically swaps it in. In-flight reads keep the
// old snapshot; no read ever blocks on a rebuild. Returns whether a rebuild
// happened.
func (ix *Index) RefreshIfStale() (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	current, err := ix.source.Fingerprint()
	if err != nil {
		return false, common.ConfigurationError("fingerprinting category reference", err)
	}
	if current == ix.snap.Load().Fingerprint {
		return false, nil
	}

	snap, err := ix.build()
	if err != nil {
		return false, err
	}
	ix.snap.Store(snap)
	ix.logger.Info("catindex.rebuilt", "categories", len(snap.Categories), "fingerprint", snap.Fingerprint)

	for _, fn := range ix.onRebuild {
		fn()
	}
	return true, nil
}
