package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// MutateFunc edits a locked row in place. Returning an error aborts the write.
type MutateFunc func(sub *Subscription) error

// Ledger is the single writer of subscription rows.
type Ledger interface {
	// Get returns the account's row, creating an inactive placeholder when
	// none exists yet.
	Get(ctx context.Context, accountID snowflake.ID) (*Subscription, error)
	// Find returns nil, nil when the account has no row.
	Find(ctx context.Context, accountID snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	Upsert(ctx context.Context, accountID snowflake.ID, fields Fields) (*Subscription, error)
	Mutate(ctx context.Context, accountID snowflake.ID, fn MutateFunc) (*Subscription, error)
	MutateByExternalID(ctx context.Context, externalID string, fn MutateFunc) (*Subscription, error)
	// ListSweepCandidates returns inactive or incomplete rows of accounts
	// linked to a processor customer, least recently reconciled first.
	ListSweepCandidates(ctx context.Context, limit int) ([]Subscription, error)
	MarkReconciled(ctx context.Context, id snowflake.ID, at time.Time) error
}
