package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/subkit/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun collects the outcome of one job execution. Jobs reach it through
// their context and report counts as they go.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	counts    []zap.Field
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) count(name string, n int) {
	if r == nil {
		return
	}
	r.counts = append(r.counts, zap.Int(name, n))
}

func (r *jobRun) fail(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.failures += n
}

func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	s.logger(ctx).Debug("job started", zap.String("job", job), zap.String("run_id", run.runID))
	return ctx, run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	fields := append([]zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)),
		zap.Int("failures", run.failures),
	}, run.counts...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	log := s.logger(ctx)
	if err != nil || run.failures > 0 {
		log.Warn("job finished with failures", fields...)
		return
	}
	log.Info("job finished", fields...)
}
