package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/subkit/internal/billing/domain"
	"github.com/smallbiznis/subkit/internal/clock"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	plandomain "github.com/smallbiznis/subkit/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcileSweep = "reconcile_sweep"
	JobCatalogSync    = "catalog_sync"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Sweeper repairs ledger rows that drifted from the processor.
type Sweeper interface {
	ReconcileOrphans(ctx context.Context, limit int) (billingdomain.SweepResult, error)
}

// CatalogSyncer mirrors the processor's prices into the plan catalog.
type CatalogSyncer interface {
	Sync(ctx context.Context) (plandomain.SyncResult, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Sweeper Sweeper
	Catalog CatalogSyncer
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
	Config  Config              `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	sweeper Sweeper
	catalog CatalogSyncer
	metrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Sweeper == nil || p.Catalog == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		sweeper: p.Sweeper,
		catalog: p.Catalog,
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startRun(ctx, name)
	err := fn(ctx)
	s.finishRun(ctx, run, err)
	s.metrics.RecordJobRun(name, err)
	if err == nil {
		return nil
	}

	// a run cut short by its deadline resumes on the next tick
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// ReconcileSweep runs one reconciliation pass over the sweep candidates.
func (s *Scheduler) ReconcileSweep(ctx context.Context) error {
	return s.runJob(ctx, JobReconcileSweep, s.cfg.SweepTimeout, func(ctx context.Context) error {
		result, err := s.sweeper.ReconcileOrphans(ctx, s.cfg.SweepBatchSize)
		run := jobRunFromContext(ctx)
		run.count("batch_size", s.cfg.SweepBatchSize)
		run.count("visited", result.Visited)
		run.count("adopted", result.Adopted)
		run.count("skipped", result.Skipped)
		run.fail(result.Failed)
		return err
	})
}

// CatalogSync refreshes the plan catalog from the processor.
func (s *Scheduler) CatalogSync(ctx context.Context) error {
	return s.runJob(ctx, JobCatalogSync, s.cfg.CatalogSyncTimeout, func(ctx context.Context) error {
		result, err := s.catalog.Sync(ctx)
		run := jobRunFromContext(ctx)
		run.count("created", result.Created)
		run.count("updated", result.Updated)
		run.count("deactivated", result.Deactivated)
		return err
	})
}

// RunForever drives both jobs on their own intervals until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()
	catalog := time.NewTicker(s.cfg.CatalogSyncInterval)
	defer catalog.Stop()

	if s.cfg.CatalogSyncOnStart {
		s.report(s.CatalogSync(ctx))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			s.report(s.ReconcileSweep(ctx))
		case <-catalog.C:
			s.report(s.CatalogSync(ctx))
		}
	}
}

func (s *Scheduler) report(err error) {
	if err != nil {
		s.log.Warn("scheduler run failed", zap.Error(err))
	}
}
