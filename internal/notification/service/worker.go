package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/notification/domain"
	"github.com/smallbiznis/subkit/internal/notification/render"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	"github.com/smallbiznis/subkit/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WorkerParams struct {
	fx.In

	Log      *zap.Logger
	Repo     domain.Repository
	Renderer *render.Renderer
	Provider email.Provider
	Clock    clock.Clock
	Policy   *config.NotificationConfigHolder
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Worker drains the notification queue. Delivery is at least once: a job
// whose worker dies mid-send is picked up again once its lease expires.
type Worker struct {
	log      *zap.Logger
	repo     domain.Repository
	renderer *render.Renderer
	provider email.Provider
	clock    clock.Clock
	policy   *config.NotificationConfigHolder
	metrics  *obsmetrics.Metrics

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		log:      p.Log.Named("notification.worker"),
		repo:     p.Repo,
		renderer: p.Renderer,
		provider: p.Provider,
		clock:    p.Clock,
		policy:   p.Policy,
		metrics:  p.Metrics,
		stop:     make(chan struct{}),
	}
}

// RegisterWorker ties the polling loop to the application lifecycle.
func RegisterWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
	w.log.Info("notification worker started")
}

// Stop signals the loop and waits for it. It is safe to call more than once.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("notification poll failed", zap.Error(err))
		}
		select {
		case <-w.stop:
			return
		case <-time.After(w.policy.Get().PollInterval):
		}
	}
}

// RunOnce claims one batch of due jobs and attempts each. It returns how many
// jobs were attempted.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	policy := w.policy.Get()
	jobs, err := w.repo.ClaimDue(ctx, w.clock.Now(), policy.Lease, policy.BatchSize)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.process(ctx, &jobs[i], policy)
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job *domain.Job, policy config.NotificationConfig) {
	log := w.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
	)
	attempts := job.Attempts + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = policy.MaxAttempts
	}

	msg, err := w.renderer.Render(job.Kind, job.Args)
	if err != nil {
		// a job that cannot render will never succeed
		w.markDead(ctx, log, job, attempts, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, policy.SendTimeout)
	err = w.provider.Send(sendCtx, []string{job.Recipient}, msg.Subject, msg.HTML)
	cancel()

	now := w.clock.Now()
	if err == nil {
		if err := w.repo.MarkSent(ctx, job.ID, now); err != nil {
			log.Error("mark notification sent", zap.Error(err))
		}
		w.metrics.RecordNotification(string(job.Kind), "sent")
		log.Info("notification sent", zap.Int("attempt", attempts))
		return
	}

	if attempts >= maxAttempts {
		w.markDead(ctx, log, job, attempts, err)
		return
	}

	delay := Backoff(policy.BaseDelay, policy.MaxDelay, attempts)
	if markErr := w.repo.MarkRetry(ctx, job.ID, attempts, now.Add(delay), err.Error(), now); markErr != nil {
		log.Error("schedule notification retry", zap.Error(markErr))
	}
	w.metrics.RecordNotification(string(job.Kind), "retry")
	log.Warn("notification delivery failed, retrying",
		zap.Int("attempt", attempts),
		zap.Duration("retry_in", delay),
		zap.Error(err),
	)
}

func (w *Worker) markDead(ctx context.Context, log *zap.Logger, job *domain.Job, attempts int, cause error) {
	if err := w.repo.MarkDead(ctx, job.ID, attempts, cause.Error(), w.clock.Now()); err != nil {
		log.Error("mark notification dead", zap.Error(err))
	}
	w.metrics.RecordNotification(string(job.Kind), "dead")
	log.Error("notification abandoned",
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
}

// Backoff returns base * 2^(attempt-1), capped at ceiling.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return min(delay, ceiling)
}
