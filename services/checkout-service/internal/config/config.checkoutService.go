// services/checkout-service/internal/config/config.checkoutService.go
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/rfay/uc-stripe/shared/config"
)

// ErrMissingSecretKey is returned when the secret key of the active mode is blank.
var ErrMissingSecretKey = errors.New("stripe secret key for the active mode is not configured")

const (
	ModeTest = "test"
	ModeLive = "live"
)

// GatewayConfig is what the payment method settings supply: the four Stripe
// keys and which pair is active.
type GatewayConfig struct {
	TestMode           bool
	TestSecretKey      string
	TestPublishableKey string
	LiveSecretKey      string
	LivePublishableKey string
	WebhookSecret      string // signing secret for /webhooks/stripe
}

// Mode returns "test" or "live".
func (g GatewayConfig) Mode() string {
	if g.TestMode {
		return ModeTest
	}
	return ModeLive
}

// SecretKey returns the secret key of the active mode.
func (g GatewayConfig) SecretKey() string {
	if g.TestMode {
		return g.TestSecretKey
	}
	return g.LiveSecretKey
}

// PublishableKey returns the publishable key of the active mode. It is the
// only key ever handed to the checkout page.
func (g GatewayConfig) PublishableKey() string {
	if g.TestMode {
		return g.TestPublishableKey
	}
	return g.LivePublishableKey
}

// CheckActive fails when the active mode cannot make API calls.
func (g GatewayConfig) CheckActive() error {
	if g.SecretKey() == "" {
		return fmt.Errorf("%w (mode: %s)", ErrMissingSecretKey, g.Mode())
	}
	return nil
}

// Provider supplies the gateway settings at charge time. Settings may change
// between charges so callers must not cache the result.
type Provider interface {
	GatewayConfig(ctx context.Context) (GatewayConfig, error)
}

// StaticProvider serves a fixed GatewayConfig.
type StaticProvider struct {
	Config GatewayConfig
}

func (p StaticProvider) GatewayConfig(ctx context.Context) (GatewayConfig, error) {
	return p.Config, nil
}

// CheckoutConfig is the full service configuration.
type CheckoutConfig struct {
	CommonConfig *config.CommonConfig // DB, Kafka and RabbitMQ settings shared with the notifier
	Gateway      GatewayConfig

	HTTPAddr          string
	StoreBackend      string        // "pg" or "mem"
	ChargeTimeout     time.Duration // upper bound on one Stripe round trip
	TokenTTL          time.Duration // how long a pending card token stays usable
	ReconcileInterval time.Duration // orphan customer sweep period
}

// LoadConfig reads the service configuration from the environment, optionally
// layered over a YAML file named by CHECKOUT_CONFIG_FILE. Environment wins.
func LoadConfig() (*CheckoutConfig, error) {
	v := viper.New()
	v.SetDefault("STRIPE_TEST_MODE", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORE_BACKEND", "pg")
	v.SetDefault("CHARGE_TIMEOUT", 30*time.Second)
	v.SetDefault("TOKEN_TTL", 30*time.Minute)
	v.SetDefault("RECONCILE_INTERVAL", 5*time.Minute)
	v.AutomaticEnv()

	if path := os.Getenv("CHECKOUT_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &CheckoutConfig{
		CommonConfig: config.LoadCommonConfig(),
		Gateway: GatewayConfig{
			TestMode:           v.GetBool("STRIPE_TEST_MODE"),
			TestSecretKey:      SanitizeKey(v.GetString("STRIPE_TEST_SECRET_KEY")),
			TestPublishableKey: SanitizeKey(v.GetString("STRIPE_TEST_PUBLISHABLE_KEY")),
			LiveSecretKey:      SanitizeKey(v.GetString("STRIPE_LIVE_SECRET_KEY")),
			LivePublishableKey: SanitizeKey(v.GetString("STRIPE_LIVE_PUBLISHABLE_KEY")),
			WebhookSecret:      v.GetString("STRIPE_WEBHOOK_SECRET"),
		},
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		StoreBackend:      v.GetString("STORE_BACKEND"),
		ChargeTimeout:     v.GetDuration("CHARGE_TIMEOUT"),
		TokenTTL:          v.GetDuration("TOKEN_TTL"),
		ReconcileInterval: v.GetDuration("RECONCILE_INTERVAL"),
	}

	switch cfg.StoreBackend {
	case "pg", "mem":
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND=%s", cfg.StoreBackend)
	}
	if cfg.ChargeTimeout <= 0 {
		return nil, fmt.Errorf("CHARGE_TIMEOUT must be positive, got %s", cfg.ChargeTimeout)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}

	return cfg, nil
}
