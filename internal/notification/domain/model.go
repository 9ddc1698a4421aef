// Package domain defines notification kinds and the persisted job queue.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindWelcome                  Kind = "welcome"
	KindSubscriptionConfirmation Kind = "subscription_confirmation"
	KindCancellation             Kind = "cancellation"
	KindPaymentFailed            Kind = "payment_failed"
)

func (k Kind) Valid() bool {
	switch k {
	case KindWelcome, KindSubscriptionConfirmation, KindCancellation, KindPaymentFailed:
		return true
	default:
		return false
	}
}

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSent    JobStatus = "sent"
	JobStatusDead    JobStatus = "dead"
)

// Job is one queued email. A job is claimed by setting LockedUntil; a worker
// that dies mid-send releases it implicitly when the lease runs out.
type Job struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	Kind          Kind              `json:"kind" gorm:"type:text;not null"`
	Recipient     string            `json:"recipient" gorm:"type:text;not null"`
	Args          datatypes.JSONMap `json:"args" gorm:"not null"`
	Status        JobStatus         `json:"status" gorm:"type:varchar(32);not null;index:idx_notification_jobs_due,priority:1"`
	Attempts      int               `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts   int               `json:"max_attempts" gorm:"not null"`
	NextAttemptAt time.Time         `json:"next_attempt_at" gorm:"not null;index:idx_notification_jobs_due,priority:2"`
	LockedUntil   *time.Time        `json:"locked_until"`
	LastError     string            `json:"last_error" gorm:"type:text"`
	SentAt        *time.Time        `json:"sent_at"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null"`
}

func (Job) TableName() string { return "notification_jobs" }

// Dispatcher enqueues a notification. It returns once the job is stored;
// delivery happens later and its failures never reach the caller.
type Dispatcher interface {
	Send(ctx context.Context, kind Kind, recipient string, args map[string]any) error
}

type Repository interface {
	Enqueue(ctx context.Context, job *Job) error
	// ClaimDue leases up to limit pending jobs due at now.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error)
	MarkSent(ctx context.Context, id snowflake.ID, now time.Time) error
	MarkRetry(ctx context.Context, id snowflake.ID, attempts int, next time.Time, lastErr string, now time.Time) error
	MarkDead(ctx context.Context, id snowflake.ID, attempts int, lastErr string, now time.Time) error
	Get(ctx context.Context, id snowflake.ID) (*Job, error)
}
