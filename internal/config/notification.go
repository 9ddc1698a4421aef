package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NotificationConfig is the retry policy of the notification worker.
type NotificationConfig struct {
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	BaseDelay    time.Duration `mapstructure:"baseDelay"`
	MaxDelay     time.Duration `mapstructure:"maxDelay"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	BatchSize    int           `mapstructure:"batchSize"`
	SendTimeout  time.Duration `mapstructure:"sendTimeout"`
	Lease        time.Duration `mapstructure:"lease"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		MaxAttempts:  4,
		BaseDelay:    time.Minute,
		MaxDelay:     time.Hour,
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		SendTimeout:  30 * time.Second,
		Lease:        2 * time.Minute,
	}
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

// NewStaticNotificationConfigHolder returns a holder that never reloads.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewNotificationConfigHolder(log *zap.Logger) (*NotificationConfigHolder, error) {
	log = log.Named("config.notifications")
	v := viper.New()

	v.SetConfigName("notifications")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subkit")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUBKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultNotificationConfig()
	v.SetDefault("notifications.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("notifications.baseDelay", defaults.BaseDelay)
	v.SetDefault("notifications.maxDelay", defaults.MaxDelay)
	v.SetDefault("notifications.pollInterval", defaults.PollInterval)
	v.SetDefault("notifications.batchSize", defaults.BatchSize)
	v.SetDefault("notifications.sendTimeout", defaults.SendTimeout)
	v.SetDefault("notifications.lease", defaults.Lease)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var cfg NotificationConfig
	if err := v.UnmarshalKey("notifications", &cfg); err != nil {
		return nil, err
	}
	if err := validateNotificationConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticNotificationConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotificationConfig
		if err := v.UnmarshalKey("notifications", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateNotificationConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	if h == nil {
		return DefaultNotificationConfig()
	}
	cfg, ok := h.current.Load().(NotificationConfig)
	if !ok {
		return DefaultNotificationConfig()
	}
	return cfg
}

func validateNotificationConfig(cfg NotificationConfig) error {
	if cfg.MaxAttempts < 1 {
		return errors.New("notifications.maxAttempts must be at least 1")
	}
	if cfg.BaseDelay <= 0 {
		return errors.New("notifications.baseDelay must be positive")
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		return errors.New("notifications.maxDelay must not be less than baseDelay")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("notifications.pollInterval must be positive")
	}
	if cfg.BatchSize < 1 {
		return errors.New("notifications.batchSize must be at least 1")
	}
	return nil
}
