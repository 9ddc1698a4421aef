// Package domain contains the account, session and customer-link types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is a registered user. ExternalCustomerID links the account to the
// payment processor and is written at most once.
type Account struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	Email              string       `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	FullName           string       `json:"full_name" gorm:"type:text;not null;default:''"`
	PasswordHash       string       `json:"-" gorm:"type:text;not null"`
	ExternalCustomerID *string      `json:"-" gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) HasExternalCustomer() bool {
	return a != nil && a.ExternalCustomerID != nil && *a.ExternalCustomerID != ""
}

// Session is a persisted login. Only the sha256 of the bearer token is stored.
type Session struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	AccountID  snowflake.ID `gorm:"not null;index"`
	TokenHash  string       `gorm:"type:varchar(255);not null;uniqueIndex"`
	UserAgent  string       `gorm:"type:text"`
	IPAddress  string       `gorm:"type:text"`
	ExpiresAt  time.Time    `gorm:"not null;index"`
	LastSeenAt time.Time    `gorm:"not null"`
	RevokedAt  *time.Time
	CreatedAt  time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "account_sessions" }
