package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	obsmetrics "github.com/smallbiznis/subkit/internal/observability/metrics"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxErrorLength = 1024

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       domain.Repository
	Parser     processor.EventParser
	Reconciler domain.Reconciler
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       domain.Repository
	parser     processor.EventParser
	reconciler domain.Reconciler
	genID      *snowflake.Node
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("webhook.service"),
		repo:       p.Repo,
		parser:     p.Parser,
		reconciler: p.Reconciler,
		genID:      p.GenID,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}
}

// Receive verifies a processor delivery, records it once and applies it.
// Deliveries already processed or ignored are acknowledged without being
// applied again. A failed apply leaves the record failed and returns the
// error so the processor redelivers.
func (s *Service) Receive(ctx context.Context, payload []byte, signature string) (domain.Result, error) {
	if len(payload) == 0 {
		return domain.Result{}, domain.ErrEmptyPayload
	}
	if strings.TrimSpace(signature) == "" {
		return domain.Result{}, domain.ErrMissingSignature
	}

	event, err := s.parser.ParseEvent(payload, signature)
	if err != nil {
		s.metrics.RecordWebhookEvent("unknown", "rejected")
		s.log.Warn("webhook rejected", zap.Error(err))
		return domain.Result{}, err
	}
	if event.ID == "" {
		s.metrics.RecordWebhookEvent("unknown", "rejected")
		return domain.Result{}, processor.ErrMalformedEvent
	}

	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)
	kind := event.Kind.String()
	result := domain.Result{EventID: event.ID, EventType: event.Type}

	record := &domain.Event{
		ID:              s.genID.Generate(),
		Provider:        domain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Status:          domain.StatusReceived,
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, record)
	if err != nil {
		return result, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		existing, err := s.repo.Find(ctx, record.Provider, record.ProviderEventID)
		if err != nil {
			return result, fmt.Errorf("load webhook event: %w", err)
		}
		if existing.Status.Settled() {
			log.Info("duplicate webhook delivery", zap.String("status", string(existing.Status)))
			s.metrics.RecordWebhookEvent(kind, "duplicate")
			result.Status = existing.Status
			result.Duplicate = true
			return result, nil
		}
		// an earlier attempt failed or died mid-flight; apply again
		record = existing
	}

	if err := s.reconciler.Reconcile(ctx, event); err != nil {
		reason := err.Error()
		if len(reason) > maxErrorLength {
			reason = reason[:maxErrorLength]
		}
		if markErr := s.repo.MarkFailed(ctx, record.ID, reason); markErr != nil {
			log.Warn("mark webhook event failed", zap.Error(markErr))
		}
		s.metrics.RecordWebhookEvent(kind, "failure")
		log.Error("webhook processing failed", zap.Error(err))
		return result, fmt.Errorf("process %s: %w", event.Type, err)
	}

	status := domain.StatusProcessed
	if event.Kind == processor.EventIgnored {
		status = domain.StatusIgnored
	}
	if err := s.repo.MarkDone(ctx, record.ID, status, s.clock.Now()); err != nil {
		// the event was applied; a redelivery is harmless
		log.Warn("mark webhook event done", zap.Error(err))
	}
	s.metrics.RecordWebhookEvent(kind, string(status))
	result.Status = status
	return result, nil
}
