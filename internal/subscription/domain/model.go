// Package domain holds the per-account subscription record mirrored from the
// payment processor.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusInactive          Status = "inactive"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusCanceled          Status = "canceled"
)

// ParseStatus maps a processor status string onto the ledger enum.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	return status, status.Valid()
}

func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusIncomplete, StatusIncompleteExpired, StatusTrialing,
		StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status grants access.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusTrialing
}

// IsTerminal reports whether the processor will never move the subscription
// out of this status.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// Cancelable reports whether a soft cancel is allowed from this status.
func (s Status) Cancelable() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusUnpaid:
		return true
	default:
		return false
	}
}

type Subscription struct {
	ID                     snowflake.ID  `json:"id" gorm:"primaryKey"`
	AccountID              snowflake.ID  `json:"account_id" gorm:"not null;uniqueIndex"`
	PlanID                 *snowflake.ID `json:"plan_id"`
	ExternalSubscriptionID *string       `json:"external_subscription_id" gorm:"type:varchar(255);uniqueIndex"`
	Status                 Status        `json:"status" gorm:"type:varchar(32);not null;index"`
	CurrentPeriodStart     *time.Time    `json:"current_period_start"`
	CurrentPeriodEnd       *time.Time    `json:"current_period_end"`
	CancelAtPeriodEnd      bool          `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CanceledAt             *time.Time    `json:"canceled_at"`
	TrialEnd               *time.Time    `json:"trial_end"`
	LastEventAt            *time.Time    `json:"-"`
	ReconciledAt           *time.Time    `json:"-"`
	// Version counts committed mutations of the row.
	Version                int64         `json:"-" gorm:"not null;default:0"`
	CreatedAt              time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time     `json:"updated_at" gorm:"not null"`

	IsActive bool `json:"is_active" gorm:"-"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Refresh recomputes derived fields after a load or write.
func (s *Subscription) Refresh() {
	s.IsActive = s.Status.IsActive()
}

func (s *Subscription) HasExternal() bool {
	return s.ExternalSubscriptionID != nil && *s.ExternalSubscriptionID != ""
}

// Fields is the full set of mutable columns written by Upsert.
type Fields struct {
	PlanID                 *snowflake.ID
	ExternalSubscriptionID *string
	Status                 Status
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	TrialEnd               *time.Time
}

// Apply replaces every mutable field of s with f.
func (f Fields) Apply(s *Subscription) {
	s.PlanID = f.PlanID
	s.ExternalSubscriptionID = f.ExternalSubscriptionID
	s.Status = f.Status
	s.CurrentPeriodStart = f.CurrentPeriodStart
	s.CurrentPeriodEnd = f.CurrentPeriodEnd
	s.CancelAtPeriodEnd = f.CancelAtPeriodEnd
	s.CanceledAt = f.CanceledAt
	s.TrialEnd = f.TrialEnd
}
