package fpgov

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/argus-soc/argus/pkg/models"
)

// PatternInvalidationChannel is the Redis pub/sub channel governance
// operations publish on after any pattern status transition.
const PatternInvalidationChannel = "fp_patterns:invalidate"

// defaultRefreshInterval bounds snapshot staleness when no invalidation
// message arrives.
const defaultRefreshInterval = 30 * time.Second

// PatternSource lists the patterns the snapshot should hold. Backed by the
// pattern store; pre-filtered to matchable statuses server-side.
type PatternSource interface {
	ListMatchablePatterns(ctx context.Context) ([]models.FPPattern, error)
}

// Snapshot is the hot in-memory pattern cache. Multi-reader, single-writer:
// readers get an immutable slice swapped atomically under the lock, so one
// alert's evaluation sees one consistent snapshot. Staleness is bounded by
// the refresh interval; governance invalidations via Redis pub/sub shorten
// it to near-zero.
type Snapshot struct {
	source  PatternSource
	rdb     *redis.Client
	refresh time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	patterns []*compiledPattern

	group  singleflight.Group
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSnapshot creates an empty snapshot. Call Start to load and follow
// invalidations, or Reload directly in tests.
func NewSnapshot(source PatternSource, rdb *redis.Client, refresh time.Duration) *Snapshot {
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	return &Snapshot{
		source:  source,
		rdb:     rdb,
		refresh: refresh,
		logger:  slog.Default().With("component", "fp-snapshot"),
	}
}

// Patterns returns the current compiled snapshot. The returned slice is
// never mutated after the swap; callers iterate without copying.
func (s *Snapshot) Patterns() []*compiledPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patterns
}

// Len returns the number of patterns currently cached.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Reload fetches and compiles the matchable patterns, collapsed through
// singleflight so concurrent invalidations trigger one store query.
func (s *Snapshot) Reload(ctx context.Context) error {
	_, err, _ := s.group.Do("reload", func() (any, error) {
		patterns, err := s.source.ListMatchablePatterns(ctx)
		if err != nil {
			return nil, err
		}
		compiled := make([]*compiledPattern, 0, len(patterns))
		for _, p := range patterns {
			if cp, ok := compilePattern(p, s.logger); ok {
				compiled = append(compiled, cp)
			}
		}
		s.mu.Lock()
		s.patterns = compiled
		s.mu.Unlock()
		s.logger.Debug("Pattern snapshot reloaded", "patterns", len(compiled))
		return nil, nil
	})
	return err
}

// Start loads the snapshot, then follows Redis invalidations and the
// interval ticker until Stop. The initial load failing is fatal; later
// refresh failures keep the previous snapshot (stale reads are tolerated
// for up to one refresh interval by contract).
func (s *Snapshot) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.follow(runCtx)
	return nil
}

// Stop halts the background refresh.
func (s *Snapshot) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Snapshot) follow(ctx context.Context) {
	defer close(s.done)

	var invalidations <-chan *redis.Message
	if s.rdb != nil {
		sub := s.rdb.Subscribe(ctx, PatternInvalidationChannel)
		defer func() { _ = sub.Close() }()
		invalidations = sub.Channel()
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reloadLogged(ctx)
		case _, ok := <-invalidations:
			if !ok {
				invalidations = nil
				continue
			}
			s.reloadLogged(ctx)
		}
	}
}

func (s *Snapshot) reloadLogged(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.logger.Error("Pattern snapshot refresh failed, keeping previous snapshot", "error", err)
	}
}

// Invalidate publishes an invalidation so every replica's snapshot
// converges ahead of its next tick. Best-effort.
func Invalidate(ctx context.Context, rdb *redis.Client, logger *slog.Logger) {
	if rdb == nil {
		return
	}
	if err := rdb.Publish(ctx, PatternInvalidationChannel, "reload").Err(); err != nil && logger != nil {
		logger.Error("Failed to publish pattern invalidation", "error", err)
	}
}
