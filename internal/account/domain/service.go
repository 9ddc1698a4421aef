package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Account, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	Get(ctx context.Context, id snowflake.ID) (*Account, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (*Account, error)
	ChangePassword(ctx context.Context, id snowflake.ID, req ChangePasswordRequest) error

	// EnsureExternalCustomer returns the account's processor customer id,
	// creating it at the processor on first use.
	EnsureExternalCustomer(ctx context.Context, id snowflake.ID) (string, error)
	FindByExternalCustomerID(ctx context.Context, customerID string) (*Account, error)
}

type RegisterRequest struct {
	Email    string
	Password string
	FullName string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Account   *Account
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}

type UpdateProfileRequest struct {
	FullName string
}

type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
	// KeepSessionID stays valid; every other session of the account is revoked.
	KeepSessionID snowflake.ID
}
