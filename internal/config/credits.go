package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	GrantModeSet = "set"
	GrantModeAdd = "add"
)

// CreditsConfig is the credit policy applied by consumption, webhooks and the
// daily reset job.
type CreditsConfig struct {
	PackSize          int           `mapstructure:"packSize"`
	GrantMode         string        `mapstructure:"grantMode"`
	FreeDailyLimit    int           `mapstructure:"freeDailyLimit"`
	FreeResetInterval time.Duration `mapstructure:"freeResetInterval"`
	HighResProductID  string        `mapstructure:"highResProductId"`
	AssetURLTTL       time.Duration `mapstructure:"assetUrlTtl"`
}

func DefaultCreditsConfig() CreditsConfig {
	return CreditsConfig{
		PackSize:          10,
		GrantMode:         GrantModeSet,
		FreeDailyLimit:    10,
		FreeResetInterval: 24 * time.Hour,
		AssetURLTTL:       time.Hour,
	}
}

type CreditsConfigHolder struct {
	current atomic.Value // holds CreditsConfig
}

// NewCreditsConfigHolder reads credits.yml from the usual config locations and
// keeps it hot-reloaded.
func NewCreditsConfigHolder(log *zap.Logger, cfg Config) (*CreditsConfigHolder, error) {
	rules := creditsRules{webhooksEnabled: cfg.LemonSqueezy.WebhookSecret != ""}
	return newCreditsConfigHolder(log.Named("config.credits"), rules, "/var/lib/logoforge/config", "/etc/logoforge", ".")
}

// creditsRules carries the parts of the process config that decide which
// credits settings are mandatory.
type creditsRules struct {
	// webhooksEnabled requires highResProductId: without it every paid
	// high-res order would be classified as a generation pack.
	webhooksEnabled bool
}

// NewStaticCreditsConfigHolder wraps a fixed policy.
func NewStaticCreditsConfigHolder(cfg CreditsConfig) *CreditsConfigHolder {
	holder := &CreditsConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func newCreditsConfigHolder(log *zap.Logger, rules creditsRules, paths ...string) (*CreditsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("credits")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("LOGOFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCreditsConfig()
	v.SetDefault("credits.packSize", defaults.PackSize)
	v.SetDefault("credits.grantMode", defaults.GrantMode)
	v.SetDefault("credits.freeDailyLimit", defaults.FreeDailyLimit)
	v.SetDefault("credits.freeResetInterval", defaults.FreeResetInterval)
	v.SetDefault("credits.highResProductId", defaults.HighResProductID)
	v.SetDefault("credits.assetUrlTtl", defaults.AssetURLTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeCreditsConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateCreditsConfig(cfg, rules); err != nil {
		return nil, err
	}
	if cfg.HighResProductID == "" {
		log.Warn("credits.highResProductId is empty, every order will be treated as a generation pack")
	}

	holder := &CreditsConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCreditsConfig(v)
		if err != nil {
			log.Error("credits config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateCreditsConfig(updated, rules); err != nil {
			log.Warn("invalid credits config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("credits config reloaded",
			zap.String("file", e.Name),
			zap.String("grant_mode", updated.GrantMode),
			zap.Int("pack_size", updated.PackSize),
		)
	})

	return holder, nil
}

// decodeCreditsConfig goes through AllSettings so keys missing from the file
// still pick up their registered defaults.
func decodeCreditsConfig(v *viper.Viper) (CreditsConfig, error) {
	var wrapper struct {
		Credits CreditsConfig `mapstructure:"credits"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return CreditsConfig{}, err
	}
	return wrapper.Credits.withDefaults(), nil
}

func (h *CreditsConfigHolder) Get() CreditsConfig {
	if h == nil {
		return DefaultCreditsConfig()
	}
	cfg, ok := h.current.Load().(CreditsConfig)
	if !ok {
		return DefaultCreditsConfig()
	}
	return cfg
}

func (c CreditsConfig) withDefaults() CreditsConfig {
	defaults := DefaultCreditsConfig()
	c.GrantMode = strings.ToLower(strings.TrimSpace(c.GrantMode))
	if c.GrantMode == "" {
		c.GrantMode = defaults.GrantMode
	}
	if c.FreeResetInterval <= 0 {
		c.FreeResetInterval = defaults.FreeResetInterval
	}
	if c.AssetURLTTL <= 0 {
		c.AssetURLTTL = defaults.AssetURLTTL
	}
	c.HighResProductID = strings.TrimSpace(c.HighResProductID)
	return c
}

func validateCreditsConfig(cfg CreditsConfig, rules creditsRules) error {
	if cfg.PackSize <= 0 {
		return errors.New("credits.packSize must be positive")
	}
	if cfg.FreeDailyLimit < 0 {
		return errors.New("credits.freeDailyLimit cannot be negative")
	}
	switch cfg.GrantMode {
	case GrantModeSet, GrantModeAdd:
	default:
		return fmt.Errorf("credits.grantMode %q must be %q or %q", cfg.GrantMode, GrantModeSet, GrantModeAdd)
	}
	if rules.webhooksEnabled && cfg.HighResProductID == "" {
		return errors.New("credits.highResProductId is required when LEMONSQUEEZY_WEBHOOK_SECRET is set")
	}
	return nil
}
