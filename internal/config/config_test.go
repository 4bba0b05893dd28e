package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("PRICING_UNIT_PRICE", "")
	t.Setenv("PRICING_MULTIPLIER", "")
	t.Setenv("AUTH_ACCESS_TTL", "")

	cfg := Load()

	assert.Equal(t, 60*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.True(t, cfg.Pricing.UnitPrice.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.Pricing.Multiplier.Equal(decimal.NewFromInt(3)))
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsProductionWithoutSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("PRICING_UNIT_PRICE", "")
	t.Setenv("PRICING_MULTIPLIER", "")
	t.Setenv("PROVIDER_API_KEY", "")

	cfg := Load()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
	assert.Contains(t, err.Error(), "PROVIDER_API_KEY")
	assert.Contains(t, err.Error(), "unit price")
}

func TestParsePricing(t *testing.T) {
	p, err := parsePricing(pricingFile{UnitPrice: "0.002", Multiplier: "1.5"})
	require.NoError(t, err)
	assert.Equal(t, "0.002", p.UnitPrice.String())
	assert.Equal(t, "1.5", p.Multiplier.String())

	_, err = parsePricing(pricingFile{UnitPrice: "abc", Multiplier: "1"})
	assert.Error(t, err)

	_, err = parsePricing(pricingFile{UnitPrice: "0.01", Multiplier: "0"})
	assert.Error(t, err)
}

func TestStaticPricingHolder(t *testing.T) {
	holder := NewStaticPricing(PricingConfig{
		UnitPrice:  decimal.RequireFromString("0.01"),
		Multiplier: decimal.NewFromInt(3),
	})
	got := holder.Get()
	assert.Equal(t, "0.01", got.UnitPrice.String())
	assert.Equal(t, "3", got.Multiplier.String())
}

func pricingBase() Config {
	return Config{Pricing: PricingConfig{
		UnitPrice:  decimal.RequireFromString("0.01"),
		Multiplier: decimal.NewFromInt(3),
	}}
}

func TestPricingHolderEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOLLGATE_PRICING_UNIT_PRICE", "0.02")
	t.Setenv("TOLLGATE_PRICING_MULTIPLIER", "")

	holder, err := NewPricingHolder(pricingBase(), zap.NewNop())
	require.NoError(t, err)
	got := holder.Get()
	assert.Equal(t, "0.02", got.UnitPrice.String())
	assert.Equal(t, "3", got.Multiplier.String())
}

func TestPricingHolderFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TOLLGATE_PRICING_UNIT_PRICE", "")
	t.Setenv("TOLLGATE_PRICING_MULTIPLIER", "")
	body := "pricing:\n  unitPrice: \"0.005\"\n  multiplier: \"2\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.yml"), []byte(body), 0o600))

	holder, err := NewPricingHolder(pricingBase(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "0.005", holder.Get().UnitPrice.String())
	assert.Equal(t, "2", holder.Get().Multiplier.String())

	t.Setenv("TOLLGATE_PRICING_MULTIPLIER", "1.5")
	holder, err = NewPricingHolder(pricingBase(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "0.005", holder.Get().UnitPrice.String())
	assert.Equal(t, "1.5", holder.Get().Multiplier.String())
}

func TestPricingHolderRejectsInvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOLLGATE_PRICING_UNIT_PRICE", "-1")

	_, err := NewPricingHolder(pricingBase(), zap.NewNop())
	assert.Error(t, err)
}
