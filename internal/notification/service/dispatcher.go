package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/config"
	"github.com/smallbiznis/subkit/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type DispatcherParams struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.NotificationConfigHolder
}

// Dispatcher queues notifications for the Worker.
type Dispatcher struct {
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.NotificationConfigHolder
}

func NewDispatcher(p DispatcherParams) domain.Dispatcher {
	return &Dispatcher{
		log:    p.Log.Named("notification.dispatcher"),
		repo:   p.Repo,
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (d *Dispatcher) Send(ctx context.Context, kind domain.Kind, recipient string, args map[string]any) error {
	if !kind.Valid() {
		return domain.ErrUnknownKind
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return domain.ErrMissingRecipient
	}
	if _, err := mail.ParseAddress(recipient); err != nil {
		return domain.ErrMissingRecipient
	}
	if args == nil {
		args = map[string]any{}
	}

	now := d.clock.Now()
	job := &domain.Job{
		ID:            d.genID.Generate(),
		Kind:          kind,
		Recipient:     recipient,
		Args:          datatypes.JSONMap(args),
		Status:        domain.JobStatusPending,
		MaxAttempts:   d.policy.Get().MaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.repo.Enqueue(ctx, job); err != nil {
		return err
	}
	d.log.Debug("notification queued",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(kind)),
	)
	return nil
}
