package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	pkgerrors "actioner/pkg/errors"
	"actioner/pkg/health"
	"actioner/pkg/metrics"
	"actioner/pkg/tracing"
)

var configTypes = []string{
	constants.ConfigTypeActionRule,
	constants.ConfigTypeAction,
	constants.ConfigTypeActionPerformer,
	constants.ConfigTypeReactingPolicy,
	constants.ConfigTypeReactionRule,
}

// Catalog serves the current Snapshot and refreshes it from a Store.
// Readers never block on the store; a failed reload keeps the previous
// snapshot and marks the catalog degraded.
type Catalog struct {
	store    Store
	cfg      config.ReloadConfig
	logger   logger.Logger
	snapshot atomic.Pointer[Snapshot]

	reloadMu   sync.Mutex
	generation uint64
	degraded   atomic.Bool
	lastErr    atomic.Pointer[error]
}

func New(store Store, cfg config.ReloadConfig, log logger.Logger) *Catalog {
	return &Catalog{
		store:  store,
		cfg:    cfg,
		logger: log,
	}
}

// Snapshot returns the current snapshot, or ErrCatalogUnavailable when no
// reload has succeeded yet.
func (c *Catalog) Snapshot() (*Snapshot, error) {
	s := c.snapshot.Load()
	if s == nil {
		return nil, pkgerrors.ErrCatalogUnavailable
	}
	return s, nil
}

func (c *Catalog) ListActionRules() ([]ActionRule, error) {
	s, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.ActionRules(), nil
}

func (c *Catalog) ListActions() ([]Action, error) {
	s, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.Actions(), nil
}

func (c *Catalog) Degraded() bool {
	return c.degraded.Load()
}

// Reload reads every entry from the store and swaps in a new snapshot.
// Reloads are serialized; the jitter spreads simultaneous reloads of many
// instances reacting to one config update event.
func (c *Catalog) Reload(ctx context.Context, skipJitter ...bool) error {
	ctx, span := tracing.StartSpan(ctx, "catalog", "reload")
	defer span.End()

	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]
	if err := c.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	c.observeAge()

	entries, err := c.store.List(ctx)
	if err != nil {
		c.markDegraded(ctx, err)
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	snapshot := NewSnapshot(entries)
	c.generation++
	snapshot.Generation = c.generation

	for _, skipped := range snapshot.Skipped() {
		metrics.RuleEvaluationErrorsTotal.WithLabelValues(skipped.ConfigType, skipped.Name).Inc()
		c.logger.WarnwCtx(ctx, "Skipping malformed catalog entry",
			"config_type", skipped.ConfigType,
			"name", skipped.Name,
			"error", skipped.Err,
		)
	}

	c.snapshot.Store(snapshot)
	c.clearDegraded(ctx)

	for _, t := range configTypes {
		metrics.SetCatalogEntries(t, snapshot.Count(t))
	}
	metrics.CatalogReloadsTotal.WithLabelValues("success").Inc()

	c.logger.InfowCtx(ctx, "Successfully reloaded catalog",
		"generation", snapshot.Generation,
		"action_rules", snapshot.Count(constants.ConfigTypeActionRule),
		"actions", snapshot.Count(constants.ConfigTypeAction),
		"performers", snapshot.Count(constants.ConfigTypeActionPerformer),
		"skipped", len(snapshot.Skipped()),
	)
	return nil
}

func (c *Catalog) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || c.cfg.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(c.cfg.JitterMaxMilliseconds)) * time.Millisecond
	c.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) observeAge() {
	if s := c.snapshot.Load(); s != nil {
		metrics.CatalogSnapshotAge.Set(time.Since(s.LoadedAt).Seconds())
	}
}

func (c *Catalog) markDegraded(ctx context.Context, err error) {
	metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
	c.lastErr.Store(&err)

	if c.snapshot.Load() == nil {
		c.logger.ErrorwCtx(ctx, "Catalog store unreachable and no snapshot loaded",
			"error", err,
		)
		return
	}

	if !c.degraded.Swap(true) {
		metrics.SetCatalogDegraded(true)
	}
	c.logger.WarnwCtx(ctx, "Catalog reload failed, serving last good snapshot",
		"generation", c.snapshot.Load().Generation,
		"error", err,
	)
}

func (c *Catalog) clearDegraded(ctx context.Context) {
	c.lastErr.Store(nil)
	if c.degraded.Swap(false) {
		metrics.SetCatalogDegraded(false)
		c.logger.InfowCtx(ctx, "Catalog recovered from degraded mode")
	}
}

// StartReloader loads the catalog immediately and then on every tick until
// ctx is cancelled. Reload failures are logged, never returned.
func (c *Catalog) StartReloader(ctx context.Context) error {
	interval := time.Duration(c.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = constants.DefaultReloadIntervalSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Reload(ctx, true); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to reload catalog",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := c.Reload(ctx); err != nil {
				c.logger.ErrorwCtx(ctx, "Failed to reload catalog",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HealthChecker reports the catalog as unhealthy before the first load and
// degraded while serving a stale snapshot.
func (c *Catalog) HealthChecker() health.Checker {
	return &healthChecker{catalog: c}
}

type healthChecker struct {
	catalog *Catalog
}

func (h *healthChecker) Name() string {
	return "catalog"
}

func (h *healthChecker) Check(ctx context.Context) error {
	if _, err := h.catalog.Snapshot(); err != nil {
		return err
	}
	if h.catalog.Degraded() {
		cause := errors.New("serving stale catalog snapshot")
		if last := h.catalog.lastErr.Load(); last != nil {
			cause = fmt.Errorf("serving stale catalog snapshot: %w", *last)
		}
		return health.Degraded(cause)
	}
	return nil
}
