// Package engine wires the store, write pipeline, verifier, dedup passes,
// ranker and response cache into the one facade collaborators call.
//
// # Critical Patterns
//
// CP-1: Startup Is A Convergence Sequence
//   - Structural dedup, primary-key migration, direct-channel consolidation
//     and the verification sweeps run in a strict order, and every step is
//     non-fatal: a failing step is logged and the next one still runs. The
//     store converges a little on every start instead of all-or-nothing.
//
// CP-2: Maintenance Yields To The UI
//   - Cleanup is gated by a cooldown and a render guard. While a render is
//     marked in progress, maintenance refuses to run rather than compete
//     for the single writer.
//
// CP-3: Batched Sweeps
//   - Verification walks the record set in small batches with a delay in
//     between, so a large store never monopolizes the authority or the
//     write lock. One bad record never aborts its batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castlight/rolodex/internal/clock"
	"github.com/castlight/rolodex/internal/dedupe"
	"github.com/castlight/rolodex/internal/rank"
	"github.com/castlight/rolodex/internal/record"
	"github.com/castlight/rolodex/internal/remote"
	"github.com/castlight/rolodex/internal/respcache"
	"github.com/castlight/rolodex/internal/store"
	"github.com/castlight/rolodex/internal/upsert"
	"github.com/castlight/rolodex/internal/verify"
)

// Tunables and their defaults.
const (
	DefaultCleanupCooldown = 60 * time.Second
	DefaultBatchSize       = 10
	DefaultBatchDelay      = 100 * time.Millisecond
	DefaultRecentLimit     = 8
)

// Sub-cache sizing. Search results go stale fast; channel metadata is
// comparatively stable.
const (
	searchTTL          = 30 * time.Second
	searchEntries      = 128
	profileTTL         = time.Minute
	profileEntries     = 256
	channelMetaTTL     = 5 * time.Minute
	channelMetaEntries = 256
	convMapTTL         = 30 * time.Second
	convMapEntries     = 16
)

type config struct {
	clk             clock.Clock
	cleanupCooldown time.Duration
	batchSize       int
	batchDelay      time.Duration
	recentLimit     int
	verifyOpts      []verify.Option
}

// Option configures an Engine.
type Option func(*config)

// WithClock substitutes the wall clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clk = clk }
}

// WithCleanupCooldown overrides the minimum gap between cleanup runs.
func WithCleanupCooldown(d time.Duration) Option {
	return func(c *config) { c.cleanupCooldown = d }
}

// WithBatchSize overrides the verification sweep batch size.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBatchDelay overrides the pause between sweep batches.
func WithBatchDelay(d time.Duration) Option {
	return func(c *config) { c.batchDelay = d }
}

// WithRecentLimit overrides the recent-conversations bound.
func WithRecentLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.recentLimit = n
		}
	}
}

// WithVerifierOptions forwards options to the embedded verifier.
func WithVerifierOptions(opts ...verify.Option) Option {
	return func(c *config) { c.verifyOpts = append(c.verifyOpts, opts...) }
}

// Engine is the public face of the identity cache.
type Engine struct {
	store    *store.Store
	pipeline *upsert.Pipeline
	verifier *verify.Verifier
	dedupe   *dedupe.Engine
	ranker   *rank.Ranker
	cache    *respcache.Cache
	clk      clock.Clock

	cleanupCooldown time.Duration
	batchSize       int
	batchDelay      time.Duration
	recentLimit     int

	renders   atomic.Int64
	cleanupMu sync.Mutex
}

// New assembles an engine over an open store and a remote authority.
// currentUserID identifies the signed-in user to the verifier. The
// authority is wrapped with the channel-metadata response cache and
// request collapsing.
func New(st *store.Store, authority remote.Authority, currentUserID string, opts ...Option) *Engine {
	cfg := config{
		clk:             clock.System{},
		cleanupCooldown: DefaultCleanupCooldown,
		batchSize:       DefaultBatchSize,
		batchDelay:      DefaultBatchDelay,
		recentLimit:     DefaultRecentLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cache := respcache.New(cfg.clk)
	cache.Configure(respcache.CacheSearch, searchTTL, searchEntries)
	cache.Configure(respcache.CacheProfile, profileTTL, profileEntries)
	cache.Configure(respcache.CacheChannelMeta, channelMetaTTL, channelMetaEntries)
	cache.Configure(respcache.CacheConversationMap, convMapTTL, convMapEntries)

	cached := remote.NewCachedAuthority(authority, cache)
	verifier := verify.New(cached, cfg.clk, currentUserID, cfg.verifyOpts...)

	return &Engine{
		store:           st,
		pipeline:        upsert.New(st, verifier, cached, cfg.clk),
		verifier:        verifier,
		dedupe:          dedupe.New(st, cfg.clk),
		ranker:          rank.New(cfg.clk),
		cache:           cache,
		clk:             cfg.clk,
		cleanupCooldown: cfg.cleanupCooldown,
		batchSize:       cfg.batchSize,
		batchDelay:      cfg.batchDelay,
		recentLimit:     cfg.recentLimit,
	}
}

// Startup runs the convergence sequence. Each step logs its own failure and
// the sequence continues; only context cancellation is returned.
func (e *Engine) Startup(ctx context.Context) error {
	slog.Info("engine startup")

	if n, err := e.store.RemoveStructuralDuplicates(ctx); err != nil {
		slog.Warn("structural duplicate removal failed", "error", err)
	} else if n > 0 {
		slog.Info("structural duplicates removed", "count", n)
	}

	if stats, err := e.store.MigratePrimaryKeys(ctx); err != nil {
		slog.Warn("primary key migration failed", "error", err)
	} else if stats.Rewritten+stats.Merged+stats.Deleted+stats.Flagged > 0 {
		slog.Info("primary keys migrated",
			"rewritten", stats.Rewritten,
			"merged", stats.Merged,
			"deleted", stats.Deleted,
			"flagged", stats.Flagged)
	}

	if n, err := e.dedupe.ConsolidateDirectChannels(ctx); err != nil {
		slog.Warn("direct channel consolidation failed", "error", err)
	} else if n > 0 {
		slog.Info("direct channels consolidated", "removed", n)
	}

	if pending, err := e.store.GetMeta(ctx, store.MetaPendingFullVerification); err != nil {
		slog.Warn("pending verification flag unreadable", "error", err)
	} else if pending != "" {
		if err := e.fullSweep(ctx); err != nil {
			slog.Warn("pending full verification sweep failed", "error", err)
		} else if err := e.store.DeleteMeta(ctx, store.MetaPendingFullVerification); err != nil {
			slog.Warn("pending verification flag not cleared", "error", err)
		}
	}

	if err := e.verifyUnverified(ctx); err != nil {
		slog.Warn("unverified sweep failed", "error", err)
	}
	return ctx.Err()
}

// IngestSearchResults merges raw search results; see upsert.Pipeline.
func (e *Engine) IngestSearchResults(ctx context.Context, term string, items []upsert.SearchItem) (int, error) {
	n, err := e.pipeline.IngestSearchResults(ctx, term, items)
	if n > 0 {
		e.invalidateReadCaches()
	}
	return n, err
}

// RecordInteraction merges one chat-opened event; see upsert.Pipeline.
func (e *Engine) RecordInteraction(ctx context.Context, chat upsert.ChatData) error {
	if err := e.pipeline.RecordInteraction(ctx, chat); err != nil {
		return err
	}
	e.invalidateReadCaches()
	return nil
}

// Pin appends a record to the end of the pinned list with the next dense
// order value. Unresolved no-name groups cannot be pinned. Pinning an
// already-pinned record is a no-op.
func (e *Engine) Pin(ctx context.Context, id string) error {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	if r == nil {
		return fmt.Errorf("pin: record %q not found", id)
	}
	if r.IsNoNameGroup {
		return fmt.Errorf("pin: %q is an unresolved no-name group", id)
	}
	if r.IsPinned {
		return nil
	}

	maxOrder, err := e.store.MaxPinnedOrder(ctx)
	if err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	now := e.clk.Now()
	r.IsPinned = true
	r.PinnedAt = now
	r.PinnedOrder = maxOrder + 1
	r.UpdatedAt = now
	if err := e.store.Put(ctx, r); err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	e.invalidateReadCaches()
	return nil
}

// Unpin removes a record from the pinned list. Unpinning a record that is
// not pinned is a no-op.
func (e *Engine) Unpin(ctx context.Context, id string) error {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	if r == nil {
		return fmt.Errorf("unpin: record %q not found", id)
	}
	if !r.IsPinned {
		return nil
	}

	r.IsPinned = false
	r.PinnedAt = time.Time{}
	r.PinnedOrder = 0
	r.UpdatedAt = e.clk.Now()
	if err := e.store.Put(ctx, r); err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	e.invalidateReadCaches()
	return nil
}

// Pinned returns the pinned records, explicit order first and recency as
// the fallback for records pinned before explicit ordering existed.
func (e *Engine) Pinned(ctx context.Context) ([]*record.Record, error) {
	return e.store.ListPinned(ctx)
}

// Recent returns the most recently opened conversations, deduplicated by
// normalized name and bounded.
func (e *Engine) Recent(ctx context.Context) ([]*record.Record, error) {
	key := "recent:" + strconv.Itoa(e.recentLimit)
	if v, ok := e.cache.Get(respcache.CacheConversationMap, key); ok {
		if recs, ok := v.([]*record.Record); ok {
			return recs, nil
		}
	}

	// Overfetch: name-level dedup can only shrink the list.
	rows, err := e.store.ListRecent(ctx, e.recentLimit*4)
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	out := make([]*record.Record, 0, e.recentLimit)
	for _, r := range rows {
		name := record.NormalizeName(r.Name)
		if name == "" {
			name = r.ID
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, r)
		if len(out) == e.recentLimit {
			break
		}
	}
	e.cache.Put(respcache.CacheConversationMap, key, out)
	return out, nil
}

// Profile returns one record by primary key, serving repeats from the
// profile sub-cache. An unknown id returns nil without error.
func (e *Engine) Profile(ctx context.Context, id string) (*record.Record, error) {
	if v, ok := e.cache.Get(respcache.CacheProfile, id); ok {
		if r, ok := v.(*record.Record); ok {
			return r, nil
		}
	}

	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	if r != nil {
		e.cache.Put(respcache.CacheProfile, id, r)
	}
	return r, nil
}

// Search ranks the record set against term and returns at most limit
// matches, serving repeats from the search sub-cache.
func (e *Engine) Search(ctx context.Context, term string, limit int) ([]rank.Match, error) {
	q := record.NormalizeName(term)
	if q == "" {
		return nil, nil
	}
	key := q + "|" + strconv.Itoa(limit)
	if v, ok := e.cache.Get(respcache.CacheSearch, key); ok {
		if matches, ok := v.([]rank.Match); ok {
			return matches, nil
		}
	}

	all, err := e.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	matches := e.ranker.Search(all, term, limit)
	e.cache.Put(respcache.CacheSearch, key, matches)
	return matches, nil
}

// Stats summarizes the cache for diagnostics.
type Stats struct {
	Records      int
	StorageBytes int64
	CacheHitRate float64
	Caches       []respcache.Stats
}

// Stats returns record count, estimated on-disk size and response-cache
// efficiency.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	size, err := e.store.EstimatedSize(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	caches := e.cache.StatsSnapshot()
	sort.Slice(caches, func(i, j int) bool { return caches[i].Name < caches[j].Name })
	return Stats{
		Records:      count,
		StorageBytes: size,
		CacheHitRate: e.cache.HitRate(),
		Caches:       caches,
	}, nil
}

// BeginRender marks a UI-critical render in progress; maintenance defers
// until the matching EndRender.
func (e *Engine) BeginRender() {
	e.renders.Add(1)
}

// EndRender releases one BeginRender. Unbalanced calls clamp at zero.
func (e *Engine) EndRender() {
	if e.renders.Add(-1) < 0 {
		e.renders.Store(0)
	}
}

// RunCleanup runs the dedup passes and no-name-group recovery, unless a
// render is in progress or the previous run was under the cooldown ago.
func (e *Engine) RunCleanup(ctx context.Context) error {
	if e.renders.Load() > 0 {
		slog.Debug("cleanup deferred: render in progress")
		return nil
	}
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()

	now := e.clk.Now()
	last, err := e.lastCleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if !last.IsZero() && now.Sub(last) < e.cleanupCooldown {
		slog.Debug("cleanup skipped: cooldown", "since", now.Sub(last))
		return nil
	}

	removed := 0
	if n, err := e.dedupe.ByChannelIdentifier(ctx); err != nil {
		slog.Warn("channel identifier dedup failed", "error", err)
	} else {
		removed += n
	}
	if n, err := e.dedupe.ByName(ctx); err != nil {
		slog.Warn("name dedup failed", "error", err)
	} else {
		removed += n
	}

	recovered, err := e.pipeline.RecoverNoNameGroups(ctx)
	if err != nil {
		slog.Warn("no-name group recovery failed", "error", err)
	}

	if err := e.store.SetMeta(ctx, store.MetaLastCleanupTime,
		strconv.FormatInt(now.UnixNano(), 10)); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if removed > 0 || recovered > 0 {
		e.invalidateReadCaches()
	}
	slog.Info("cleanup complete", "removed", removed, "recovered", recovered)
	return nil
}

// ForceFullVerification marks a full sweep pending and runs it now. If the
// sweep fails the pending flag survives, so the next startup retries it.
func (e *Engine) ForceFullVerification(ctx context.Context) error {
	// The flag is durable intent: write it even if the caller is already
	// cancelled, so an interrupted sweep is retried at the next startup.
	if err := e.store.SetMeta(context.WithoutCancel(ctx), store.MetaPendingFullVerification, "1"); err != nil {
		return fmt.Errorf("force verification: %w", err)
	}
	if err := e.fullSweep(ctx); err != nil {
		return fmt.Errorf("force verification: %w", err)
	}
	if err := e.store.DeleteMeta(ctx, store.MetaPendingFullVerification); err != nil {
		return fmt.Errorf("force verification: %w", err)
	}
	e.invalidateReadCaches()
	return nil
}

func (e *Engine) fullSweep(ctx context.Context) error {
	recs, err := e.store.All(ctx)
	if err != nil {
		return err
	}
	return e.sweep(ctx, recs, true)
}

func (e *Engine) verifyUnverified(ctx context.Context) error {
	recs, err := e.store.ListUnverified(ctx)
	if err != nil {
		return err
	}
	return e.sweep(ctx, recs, false)
}

// sweep verifies records in batches with a pause between batches. A single
// record's failure is logged and never aborts the batch; only context
// cancellation stops the sweep.
func (e *Engine) sweep(ctx context.Context, recs []*record.Record, force bool) error {
	for start := 0; start < len(recs); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+e.batchSize, len(recs))
		for _, r := range recs[start:end] {
			e.verifyOne(ctx, r, force)
		}
		if end < len(recs) && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}
	}
	return nil
}

func (e *Engine) verifyOne(ctx context.Context, r *record.Record, force bool) {
	var out verify.Outcome
	if force {
		out = e.verifier.Recheck(ctx, r)
	} else {
		out = e.verifier.Check(ctx, r)
	}

	switch out.Verdict {
	case verify.VerdictSkip:
	case verify.VerdictDelete:
		if err := e.store.Delete(ctx, r.ID); err != nil {
			slog.Warn("sweep delete failed", "id", r.ID, "error", err)
			return
		}
		slog.Info("record deleted by verification", "id", r.ID, "reason", out.Reason)
	default:
		r.UpdatedAt = e.clk.Now()
		if err := e.store.Put(ctx, r); err != nil {
			slog.Warn("sweep write failed", "id", r.ID, "error", err)
		}
	}
}

// invalidateReadCaches drops derived read results after any write. Channel
// metadata stays: it reflects the authority, not the store.
func (e *Engine) invalidateReadCaches() {
	e.cache.Reset(respcache.CacheSearch)
	e.cache.Reset(respcache.CacheProfile)
	e.cache.Reset(respcache.CacheConversationMap)
}

func (e *Engine) lastCleanup(ctx context.Context) (time.Time, error) {
	raw, err := e.store.GetMeta(ctx, store.MetaLastCleanupTime)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unparseable timestamp: treat as never cleaned rather than wedge.
		slog.Warn("last cleanup timestamp unreadable", "value", raw)
		return time.Time{}, nil
	}
	return time.Unix(0, ns), nil
}
