package email

import (
	"context"
	"errors"
)

var (
	ErrNoRecipients  = errors.New("email_no_recipients")
	ErrInvalidConfig = errors.New("email_invalid_config")
	ErrSendFailed    = errors.New("email_send_failed")
)

// Provider delivers one rendered HTML message.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	return nil
}
