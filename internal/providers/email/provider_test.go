package email

import (
	"context"
	"strings"
	"testing"

	"github.com/smallbiznis/subkit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFromConfigSelectsProvider(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{
		From:                "billing@example.com",
		SMTPHost:            "smtp.example.com",
		SMTPPort:            587,
		PostmarkServerToken: "server-token",
	}}

	cfg.Email.Provider = "noop"
	p, err := NewFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &NoOpProvider{}, p)

	cfg.Email.Provider = "smtp"
	p, err = NewFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &SMTPProvider{}, p)

	cfg.Email.Provider = "postmark"
	p, err = NewFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &PostmarkProvider{}, p)

	cfg.Email.Provider = "carrier-pigeon"
	_, err = NewFromConfig(cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{Host: "", Port: 25, From: "a@example.com"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewSMTP(SMTPConfig{Host: "localhost", Port: 25, From: "not an address"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPostmark(PostmarkConfig{From: "a@example.com"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNoOpRequiresRecipient(t *testing.T) {
	p := &NoOpProvider{}
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
	assert.NoError(t, p.Send(context.Background(), []string{"a@example.com"}, "s", "b"))
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("Billing <billing@example.com>", []string{"a@example.com", "b@example.com"}, "Your subscription is active", "<p>hi</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: Billing <billing@example.com>\r\n"))
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n<p>hi</p>")
}
