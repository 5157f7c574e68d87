// Package split turns free-text inspection comments into discrete defect
// statements via the LLM, with content-hash caching and request coalescing so
// identical comments cost one upstream call.
package split

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/entity"
	"github.com/avelichko/defect-classifier/internal/llm"
	"github.com/avelichko/defect-classifier/internal/reqcache"
)

// Comments matching any of these short-circuit to zero defects without a
// model call.
var noDefectsRe = regexp.MustCompile(`(?i)нет\s+замечаний|без\s+замечаний|замечания\s+отсутствуют`)

// Config holds the split-stage tuning knobs. Zero values fall back to the
// defaults below.
type Config struct {
	BatchSize   int
	Concurrency int
	MaxRetries  int
	BaseBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 30
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
}

type Service struct {
	client llm.Client
	cache  *reqcache.Cache[[]string]
	logger *slog.Logger
	cfg    Config
}

func NewService(client llm.Client, cfg Config, logger *slog.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		cache:  reqcache.New[[]string](),
		logger: logger,
		cfg:    cfg,
	}
}

// CacheLen reports the number of cached comments, for the status surface.
func (s *Service) CacheLen() int { return s.cache.Len() }

// slot ties one input comment to its cache flight.
type slot struct {
	idx    int
	text   string
	flight *reqcache.Flight[[]string]
}

// SplitAll splits every comment, one result list per input, in input order.
// Batches run concurrently under the configured limit; onBatch reports
// (completed, total) for progress. Cancelling ctx stops new batches from
// being dispatched but lets in-flight ones finish.
func (s *Service) SplitAll(ctx context.Context, comments []string, onBatch func(done, total int)) [][]entity.DefectText {
	results := make([][]string, len(comments))
	resolved := make([]bool, len(comments))

	var leaders, followers []slot
	for i, comment := range comments {
		if s.isNoDefects(comment) {
			resolved[i] = true
			continue
		}
		key := reqcache.Key(comment)
		if v, ok := s.cache.Lookup(key); ok {
			results[i] = v
			resolved[i] = true
			continue
		}
		f, leader := s.cache.Begin(key)
		if leader {
			leaders = append(leaders, slot{idx: i, text: comment, flight: f})
		} else {
			followers = append(followers, slot{idx: i, text: comment, flight: f})
		}
	}

	batches := chunkSlots(leaders, s.cfg.BatchSize)
	total := len(batches)
	var done atomic.Int32

	// In-flight calls keep running after a cancellation; only scheduling
	// stops. Hence the detached context for the actual dispatch.
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
			s.logger.Warn("split.flight_unresolved", "row", sl.idx, "error", err)
			v = nil
		}
		results[sl.idx] = v
		resolved[sl.idx] = true
	}

	out := make([][]entity.DefectText, len(comments))
	for i, texts := range results {
		for pos, txt := range texts {
			out[i] = append(out[i], entity.DefectText{Text: txt, Row: i, Position: pos})
		}
	}
	return out
}

// processBatch issues one model call for the batch, retrying external
// failures with exponential backoff. Exhaustion and parse failures degrade
// every item in the batch to zero defects; the job keeps going.
func (s *Service) processBatch(ctx context.Context, batch []slot) {
	texts := make([]string, len(batch))
	for i, sl := range batch {
		texts[i] = sl.text
	}

	var resp []llm.SplitResult
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = s.client.Split(ctx, texts)
		if err == nil || !errors.Is(err, common.ErrExternalService) || attempt >= s.cfg.MaxRetries {
			break
		}
		backoff := s.cfg.BaseBackoff << attempt
		s.logger.Warn("split.batch.retry", "attempt", attempt+1, "backoff", backoff, "error", err)
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
		s.logger.Warn("split.batch.degraded", "size", len(batch), "error", err)
		for _, sl := range batch {
			sl.flight.Complete(nil)
		}
		return
	}

	for i, sl := range batch {
		var defects []string
		for _, d := range resp[i].Defects {
			if cleaned := cleanDefectText(d.Text); cleaned != "" {
				defects = append(defects, cleaned)
			}
		}
		defects = s.validateResult(sl.text, defects)
		sl.flight.Complete(defects)
	}
}

// validateResult patches up known model failure modes: an empty answer for a
// clearly numbered list, and junk fragments (bare numbers, two-letter
// scraps).
func (s *Service) validateResult(comment string, defects []string) []string {
	if len(defects) == 0 {
		if hasNumberedLines(comment) {
			s.logger.Warn("split.empty_result_with_numbered_lines", "fallback", "local")
			return localSplitByNumbers(comment)
		}
		return defects
	}

	kept := defects[:0]
	for _, d := range defects {
		if len([]rune(d)) <= 3 || isAllDigits(d) {
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) < len(defects) {
		s.logger.Warn("split.filtered_invalid_defects", "dropped", len(defects)-len(kept))
	}
	return kept
}

func (s *Service) isNoDefects(comment string) bool {
	if strings.TrimSpace(comment) == "" {
		return true
	}
	return noDefectsRe.MatchString(comment)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
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
