package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticPolicyFillsDefaults(t *testing.T) {
	holder := NewStaticPolicy(PolicyConfig{})
	cfg := holder.Get()

	assert.Equal(t, 5, cfg.Retry.BannerMaxAttempts)
	assert.Equal(t, 0, cfg.Retry.SubscriptionMaxAttempts)
	assert.Equal(t, 3, cfg.Banner.MaxActive)
	assert.Equal(t, 30, cfg.Banner.ActiveDays)
	assert.Equal(t, 30, cfg.Subscription.PeriodDays)
}

func TestDecodePolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payments.yml")
	content := []byte("payments:\n  retry:\n    banner_max_attempts: 2\n    subscription_max_attempts: 7\n  banner:\n    max_active: 1\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := decodePolicy(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retry.BannerMaxAttempts)
	assert.Equal(t, 7, cfg.Retry.SubscriptionMaxAttempts)
	assert.Equal(t, 1, cfg.Banner.MaxActive)
	assert.Equal(t, 30, cfg.Subscription.PeriodDays)
}

func TestDecodePolicyRejectsNegativeCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payments.yml")
	require.NoError(t, os.WriteFile(path, []byte("payments:\n  retry:\n    subscription_max_attempts: -1\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	_, err := decodePolicy(v)
	assert.Error(t, err)
}
