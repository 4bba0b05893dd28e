package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	pricingUnitPriceKey  = "pricing.unitPrice"
	pricingMultiplierKey = "pricing.multiplier"
)

type pricingFile struct {
	UnitPrice  string
	Multiplier string
}

// PricingHolder serves the active pricing and swaps it when pricing.yml changes on disk.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricing returns a holder that never reloads.
func NewStaticPricing(p PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(p)
	return holder
}

func NewPricingHolder(cfg Config, log *zap.Logger) (*PricingHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.pricing")

	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tollgate/config")
	v.AddConfigPath("/etc/tollgate")
	v.AddConfigPath(".")

	// Env wins over the file, the file over PRICING_* from Config.
	if err := v.BindEnv(pricingUnitPriceKey, "TOLLGATE_PRICING_UNIT_PRICE"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(pricingMultiplierKey, "TOLLGATE_PRICING_MULTIPLIER"); err != nil {
		return nil, err
	}

	v.SetDefault(pricingUnitPriceKey, cfg.Pricing.UnitPrice.String())
	v.SetDefault(pricingMultiplierKey, cfg.Pricing.Multiplier.String())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	pricing, err := readPricing(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPricing(pricing)
	log.Info("pricing loaded",
		zap.String("unit_price", pricing.UnitPrice.String()),
		zap.String("multiplier", pricing.Multiplier.String()),
		zap.Bool("from_file", fileFound),
	)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPricing(v)
		if err != nil {
			log.Warn("invalid pricing ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing reloaded",
			zap.String("file", e.Name),
			zap.String("unit_price", updated.UnitPrice.String()),
			zap.String("multiplier", updated.Multiplier.String()),
		)
	})

	return holder, nil
}

// Get returns a consistent snapshot of the active pricing.
func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

// readPricing reads each key on its own so bound env vars are honoured.
func readPricing(v *viper.Viper) (PricingConfig, error) {
	return parsePricing(pricingFile{
		UnitPrice:  v.GetString(pricingUnitPriceKey),
		Multiplier: v.GetString(pricingMultiplierKey),
	})
}

func parsePricing(raw pricingFile) (PricingConfig, error) {
	unitPrice, err := decimal.NewFromString(strings.TrimSpace(raw.UnitPrice))
	if err != nil {
		return PricingConfig{}, fmt.Errorf("pricing.unitPrice: %w", err)
	}
	multiplier, err := decimal.NewFromString(strings.TrimSpace(raw.Multiplier))
	if err != nil {
		return PricingConfig{}, fmt.Errorf("pricing.multiplier: %w", err)
	}
	p := PricingConfig{UnitPrice: unitPrice, Multiplier: multiplier}
	if err := p.Validate(); err != nil {
		return PricingConfig{}, err
	}
	return p, nil
}
