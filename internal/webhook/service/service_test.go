package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/clock"
	"github.com/smallbiznis/subkit/internal/processor"
	"github.com/smallbiznis/subkit/internal/webhook/domain"
	"github.com/smallbiznis/subkit/internal/webhook/repository"
	"github.com/smallbiznis/subkit/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubParser treats the payload as the event id and looks the event up.
type stubParser struct {
	events map[string]processor.Event
}

func (p stubParser) ParseEvent(payload []byte, signature string) (processor.Event, error) {
	if signature != "valid" {
		return processor.Event{}, processor.ErrInvalidSignature
	}
	event, ok := p.events[string(payload)]
	if !ok {
		return processor.Event{}, processor.ErrMalformedEvent
	}
	return event, nil
}

type stubReconciler struct {
	applied []string
	err     error
}

func (r *stubReconciler) Reconcile(_ context.Context, event processor.Event) error {
	if r.err != nil {
		return r.err
	}
	r.applied = append(r.applied, event.ID)
	return nil
}

func newTestService(t *testing.T, reconciler *stubReconciler) (domain.Service, domain.Repository) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Event{})
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	repo := repository.New(conn)
	parser := stubParser{events: map[string]processor.Event{
		"evt_sub": {ID: "evt_sub", Type: "customer.subscription.updated", Kind: processor.EventSubscriptionUpdated},
		"evt_x":   {ID: "evt_x", Type: "charge.refunded", Kind: processor.EventIgnored},
	}}
	svc := New(Params{
		Log:        zap.NewNop(),
		Repo:       repo,
		Parser:     parser,
		Reconciler: reconciler,
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	})
	return svc, repo
}

func TestReceiveProcessesEventOnce(t *testing.T) {
	reconciler := &stubReconciler{}
	svc, repo := newTestService(t, reconciler)
	ctx := context.Background()

	result, err := svc.Receive(ctx, []byte("evt_sub"), "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, result.Status)
	assert.False(t, result.Duplicate)

	again, err := svc.Receive(ctx, []byte("evt_sub"), "valid")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, []string{"evt_sub"}, reconciler.applied)

	stored, err := repo.Find(ctx, domain.ProviderStripe, "evt_sub")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestReceiveMarksIgnoredEvents(t *testing.T) {
	reconciler := &stubReconciler{}
	svc, repo := newTestService(t, reconciler)

	result, err := svc.Receive(context.Background(), []byte("evt_x"), "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, result.Status)

	stored, err := repo.Find(context.Background(), domain.ProviderStripe, "evt_x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, stored.Status)
}

func TestReceiveRetriesFailedEvents(t *testing.T) {
	boom := errors.New("database is down")
	reconciler := &stubReconciler{err: boom}
	svc, repo := newTestService(t, reconciler)
	ctx := context.Background()

	_, err := svc.Receive(ctx, []byte("evt_sub"), "valid")
	require.ErrorIs(t, err, boom)

	stored, err := repo.Find(ctx, domain.ProviderStripe, "evt_sub")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "database is down")

	reconciler.err = nil
	result, err := svc.Receive(ctx, []byte("evt_sub"), "valid")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, domain.StatusProcessed, result.Status)
	assert.Equal(t, []string{"evt_sub"}, reconciler.applied)

	stored, err = repo.Find(ctx, domain.ProviderStripe, "evt_sub")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, stored.Status)
	assert.Empty(t, stored.Error)
}

func TestReceiveRejectsUnverifiedDeliveries(t *testing.T) {
	reconciler := &stubReconciler{}
	svc, _ := newTestService(t, reconciler)
	ctx := context.Background()

	_, err := svc.Receive(ctx, nil, "valid")
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)

	_, err = svc.Receive(ctx, []byte("evt_sub"), " ")
	assert.ErrorIs(t, err, domain.ErrMissingSignature)

	_, err = svc.Receive(ctx, []byte("evt_sub"), "forged")
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)

	_, err = svc.Receive(ctx, []byte("garbage"), "valid")
	assert.ErrorIs(t, err, processor.ErrMalformedEvent)

	assert.Empty(t, reconciler.applied)
}
