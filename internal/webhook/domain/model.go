package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subkit/internal/processor"
)

const ProviderStripe = "stripe"

type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

// Settled reports whether a delivery with this status needs no further work.
func (s Status) Settled() bool {
	return s == StatusProcessed || s == StatusIgnored
}

// Event is the audit and dedup record of one processor delivery. The payload
// itself is not kept.
type Event struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider        string       `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_events_provider_event"`
	ProviderEventID string       `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string       `json:"event_type" gorm:"type:varchar(128);not null"`
	Status          Status       `json:"status" gorm:"type:varchar(16);not null;index"`
	Error           string       `json:"error,omitempty" gorm:"type:text"`
	ReceivedAt      time.Time    `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
}

func (Event) TableName() string { return "webhook_events" }

// Result tells the caller what happened to a delivery.
type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    Status `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type Repository interface {
	// Insert stores the event unless (provider, provider_event_id) exists and
	// reports whether a row was written.
	Insert(ctx context.Context, event *Event) (bool, error)
	Find(ctx context.Context, provider, providerEventID string) (*Event, error)
	MarkDone(ctx context.Context, id snowflake.ID, status Status, at time.Time) error
	MarkFailed(ctx context.Context, id snowflake.ID, reason string) error
}

type Service interface {
	Receive(ctx context.Context, payload []byte, signature string) (Result, error)
}

// Reconciler applies a verified processor event to local state.
type Reconciler interface {
	Reconcile(ctx context.Context, event processor.Event) error
}
