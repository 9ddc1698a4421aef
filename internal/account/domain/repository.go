package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id snowflake.ID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalCustomerID(ctx context.Context, customerID string) (*Account, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	// SetExternalCustomerID writes the link only if none exists yet and
	// reports whether this call wrote it.
	SetExternalCustomerID(ctx context.Context, id snowflake.ID, customerID string, now time.Time) (bool, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
	RevokeAccountSessions(ctx context.Context, accountID snowflake.ID, except snowflake.ID, revokedAt time.Time) error
}
