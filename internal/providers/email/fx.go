package email

import (
	"fmt"

	"github.com/smallbiznis/subkit/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig picks the provider named by EMAIL_PROVIDER.
func NewFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	switch cfg.Email.Provider {
	case "", "noop":
		log.Named("providers.email").Warn("email delivery disabled; notifications are discarded")
		return &NoOpProvider{}, nil
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		})
	case "postmark":
		return NewPostmark(PostmarkConfig{
			ServerToken:  cfg.Email.PostmarkServerToken,
			AccountToken: cfg.Email.PostmarkAccountToken,
			From:         cfg.Email.From,
		})
	default:
		return nil, fmt.Errorf("%w: unknown email provider %q", ErrInvalidConfig, cfg.Email.Provider)
	}
}
