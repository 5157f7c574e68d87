// Package classify assigns a category to each defect: the category index
// proposes a ranked candidate set, the LLM picks from it, and the pick is
// validated before it is trusted. Anything unvalidatable becomes the
// UNDETERMINED sentinel — never a raw model string.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/catindex"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
	"github.com/avelichko/defect-classifier/internal/llm"
	"github.com/avelichko/defect-classifier/internal/reqcache"
)

// Config holds the classify-stage tuning knobs.
type Config struct {
	BatchSize   int
	Concurrency int
	MaxRetries  int
	BaseBackoff time.Duration
	TopN        int
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
}

type Service struct {
	client llm.Client
	index  *catindex.Index
	cache  *reqcache.Cache[string]
	logger *slog.Logger
	cfg    Config
}

// NewService wires the classifier to the index; an index rebuild clears this
// stage's cache, because cached picks were made against the old candidate
// sets.
func NewService(client llm.Client, index *catindex.Index, cfg Config, logger *slog.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client: client,
		index:  index,
		cache:  reqcache.New[string](),
		logger: logger,
		cfg:    cfg,
	}
	index.OnRebuild(s.cache.Clear)
	return s
}

// CacheLen reports the number of cached defects, for the status surface.
func (s *Service) CacheLen() int { return s.cache.Len() }

type slot struct {
	idx        int
	text       string
	candidates []string
	flight     *reqcache.Flight[string]
}

// ClassifyAll returns one classified defect per input, in input order.
// Caching, coalescing, concurrency and retry semantics mirror the split
// stage.
func (s *Service) ClassifyAll(ctx context.Context, defects []entity.DefectText, onBatch func(done, total int)) []entity.ClassifiedDefect {
	out := make([]entity.ClassifiedDefect, len(defects))
	resolved := make([]bool, len(defects))
	for i, d := range defects {
		out[i].Defect = d
	}

	var leaders, followers []slot
	for i, d := range defects {
		if strings.TrimSpace(d.Text) == "" {
			out[i].Category = constants.CategoryUndetermined
			resolved[i] = true
			continue
		}
		key := reqcache.Key(d.Text)
		if v, ok := s.cache.Lookup(key); ok {
			out[i].Category = v
			resolved[i] = true
			continue
		}
		f, leader := s.cache.Begin(key)
		if leader {
			leaders = append(leaders, slot{idx: i, text: d.Text, flight: f})
		} else {
			followers = append(followers, slot{idx: i, text: d.Text, flight: f})
		}
	}

	// Candidate sets come from one snapshot read per leader. A rebuild that
	// lands mid-job clears the cache afterwards, so stale picks don't
	// outlive the old snapshot.
	for i := range leaders {
		candidates := s.index.FindTopN(leaders[i].text, s.cfg.TopN)
		if !containsFold(candidates, constants.CategoryUndetermined) {
			candidates = append(candidates, constants.CategoryUndetermined)
		}
		leaders[i].candidates = candidates
	}

	batches := chunkSlots(leaders, s.cfg.BatchSize)
	total := len(batches)
	var done atomic.Int32

	callCtx := context.WithoutCancel(ctx)

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, batch := range batches {
		if ctx.Err() != nil {
			for _, sl := range batch {
				sl.flight.Abandon(ctx.Err())
			}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(batch []slot) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processBatch(callCtx, batch)
			if onBatch != nil {
				onBatch(int(done.Add(1)), total)
			}
		}(batch)
	}
	wg.Wait()

	for _, sl := range append(leaders, followers...) {
		if resolved[sl.idx] {
			continue
		}
		v, err := sl.flight.Wait(ctx)
		if err != nil {
			s.logger.Warn("classify.flight_unresolved", "row", sl.idx, "error", err)
			v = constants.CategoryUndetermined
		}
		out[sl.idx].Category = v
		resolved[sl.idx] = true
	}
	return out
}

func (s *Service) processBatch(ctx context.Context, batch []slot) {
	items := make([]llm.ClassifyItem, len(batch))
	for i, sl := range batch {
		items[i] = llm.ClassifyItem{Defect: sl.text, Candidates: sl.candidates}
	}

	var resp []llm.ClassifyResult
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = s.client.Classify(ctx, items)
		if err == nil || !errors.Is(err, common.ErrExternalService) || attempt >= s.cfg.MaxRetries {
			break
		}
		backoff := s.cfg.BaseBackoff << attempt
		s.logger.Warn("classify.batch.retry", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		s.logger.Warn("classify.batch.degraded", "size", len(batch), "error", err)
		for _, sl := range batch {
			sl.flight.Complete(constants.CategoryUndetermined)
		}
		return
	}

	for i, sl := range batch {
		sl.flight.Complete(s.validateChoice(sl.text, resp[i].Chosen, sl.candidates))
	}
}

// validateChoice accepts the model's pick only as a case-normalized exact
// match against the supplied candidates, and returns the candidate in its
// reference casing. Everything else is the sentinel.
func (s *Service) validateChoice(defect, chosen string, candidates []string) string {
	chosen = strings.TrimSpace(chosen)
	for _, c := range candidates {
		if strings.EqualFold(chosen, c) {
			return c
		}
	}
	s.logger.Warn("classify.choice_rejected",
		"chosen", chosen,
		"defect", truncate(defect, 60),
	)
	return constants.CategoryUndetermined
}

func containsFold(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func chunkSlots(slots []slot, size int) [][]slot {
	var batches [][]slot
	for start := 0; start < len(slots); start += size {
		end := start + size
		if end > len(slots) {
			end = len(slots)
		}
		batches = append(batches, slots[start:end])
	}
	return batches
}
