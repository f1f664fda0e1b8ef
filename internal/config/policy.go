package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig carries the tunable business limits for payable resources.
type PolicyConfig struct {
	Retry        RetryPolicyConfig        `mapstructure:"retry"`
	Banner       BannerPolicyConfig       `mapstructure:"banner"`
	Subscription SubscriptionPolicyConfig `mapstructure:"subscription"`
}

type RetryPolicyConfig struct {
	BannerMaxAttempts int `mapstructure:"banner_max_attempts"`
	// SubscriptionMaxAttempts of zero leaves subscription retries unbounded.
	SubscriptionMaxAttempts int `mapstructure:"subscription_max_attempts"`
}

type BannerPolicyConfig struct {
	MaxActive  int `mapstructure:"max_active"`
	ActiveDays int `mapstructure:"active_days"`
}

type SubscriptionPolicyConfig struct {
	PeriodDays int `mapstructure:"period_days"`
}

// PolicySource yields the policy snapshot in effect right now.
type PolicySource interface {
	Get() PolicyConfig
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Retry: RetryPolicyConfig{
			BannerMaxAttempts:       5,
			SubscriptionMaxAttempts: 0,
		},
		Banner: BannerPolicyConfig{
			MaxActive:  3,
			ActiveDays: 30,
		},
		Subscription: SubscriptionPolicyConfig{
			PeriodDays: 30,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewStaticPolicy returns a holder that never reloads.
func NewStaticPolicy(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(withPolicyDefaults(cfg))
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/marketpay")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MARKETPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return NewStaticPolicy(DefaultPolicyConfig()), nil
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Printf("[payments-config] reload ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payments-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func decodePolicy(v *viper.Viper) (PolicyConfig, error) {
	var cfg PolicyConfig
	if err := v.UnmarshalKey("payments", &cfg); err != nil {
		return PolicyConfig{}, err
	}
	cfg = withPolicyDefaults(cfg)
	if err := validatePolicy(cfg); err != nil {
		return PolicyConfig{}, err
	}
	return cfg, nil
}

func withPolicyDefaults(cfg PolicyConfig) PolicyConfig {
	defaults := DefaultPolicyConfig()
	if cfg.Retry.BannerMaxAttempts == 0 {
		cfg.Retry.BannerMaxAttempts = defaults.Retry.BannerMaxAttempts
	}
	if cfg.Banner.MaxActive == 0 {
		cfg.Banner.MaxActive = defaults.Banner.MaxActive
	}
	if cfg.Banner.ActiveDays == 0 {
		cfg.Banner.ActiveDays = defaults.Banner.ActiveDays
	}
	if cfg.Subscription.PeriodDays == 0 {
		cfg.Subscription.PeriodDays = defaults.Subscription.PeriodDays
	}
	return cfg
}

func validatePolicy(cfg PolicyConfig) error {
	if cfg.Retry.BannerMaxAttempts < 1 {
		return errors.New("payments.retry.banner_max_attempts must be positive")
	}
	if cfg.Retry.SubscriptionMaxAttempts < 0 {
		return errors.New("payments.retry.subscription_max_attempts cannot be negative")
	}
	if cfg.Banner.MaxActive < 1 {
		return errors.New("payments.banner.max_active must be positive")
	}
	if cfg.Banner.ActiveDays < 1 || cfg.Subscription.PeriodDays < 1 {
		return errors.New("payments period days must be positive")
	}
	return nil
}
