package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "sk_test_abc123", "sk_test_abc123"},
		{"surrounding whitespace", "  sk_test_abc123\n", "sk_test_abc123"},
		{"markup escaped", "<b>sk</b>", "&lt;b&gt;sk&lt;/b&gt;"},
		{"ampersand and quotes", `a&b"c'`, "a&amp;b&#34;c&#39;"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeKey(tt.raw))
		})
	}
}

func TestValidateKeyFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sk_test_abc123", true},
		{"pk_live_XYZ_9", true},
		{"  sk_test_abc123  ", true},
		{"", false},
		{"   ", false},
		{"sk-test-abc", false},
		{"sk test", false},
		{"sk_test_<script>", false},
		{"ключ", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateKeyFormat(tt.key))
		})
	}
}

func TestValidateGatewayKeys(t *testing.T) {
	good := GatewayConfig{
		TestSecretKey:      "sk_test_1",
		TestPublishableKey: "pk_test_1",
		LiveSecretKey:      "sk_live_1",
		LivePublishableKey: "pk_live_1",
	}
	assert.Empty(t, ValidateGatewayKeys(good))

	bad := good
	bad.TestPublishableKey = "pk test"
	bad.LiveSecretKey = ""

	errs := ValidateGatewayKeys(bad)
	require.Len(t, errs, 2)
	assert.Equal(t, FieldTestPublishableKey, errs[0].Field)
	assert.Equal(t, FieldLiveSecretKey, errs[1].Field)
	assert.Contains(t, errs[1].Error(), "does not appear to be a valid stripe key")
}

func TestGatewayConfig_ActiveMode(t *testing.T) {
	g := GatewayConfig{
		TestMode:           true,
		TestSecretKey:      "sk_test_1",
		TestPublishableKey: "pk_test_1",
		LivePublishableKey: "pk_live_1",
	}

	assert.Equal(t, ModeTest, g.Mode())
	assert.Equal(t, "sk_test_1", g.SecretKey())
	assert.Equal(t, "pk_test_1", g.PublishableKey())
	require.NoError(t, g.CheckActive())

	g.TestMode = false
	assert.Equal(t, ModeLive, g.Mode())
	assert.Equal(t, "pk_live_1", g.PublishableKey())
	err := g.CheckActive()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSecretKey))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("STRIPE_TEST_MODE", "false")
	t.Setenv("STRIPE_LIVE_SECRET_KEY", "  sk_live_abc  ")
	t.Setenv("STORE_BACKEND", "mem")
	t.Setenv("CHARGE_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Gateway.TestMode)
	assert.Equal(t, "sk_live_abc", cfg.Gateway.SecretKey())
	assert.Equal(t, "mem", cfg.StoreBackend)
	assert.Equal(t, "5s", cfg.ChargeTimeout.String())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.NotNil(t, cfg.CommonConfig)
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported STORE_BACKEND")
}
