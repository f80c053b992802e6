package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadE()
	require.NoError(t, err)

	assert.Equal(t, "0.2", cfg.TaxRate.String())
	assert.Equal(t, "20000", cfg.TaxThreshold.String())
	assert.Equal(t, int32(2), cfg.TaxDecimalPlaces)
	assert.Equal(t, 3, cfg.MaxErrors)
	assert.False(t, cfg.PerSymbol)
	assert.False(t, cfg.DatabaseEnabled)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TAX_RATE", "0.15")
	t.Setenv("PER_SYMBOL", "true")
	t.Setenv("MAX_ERRORS", "0")
	t.Setenv("WORKERS", "0")

	cfg, err := LoadE()
	require.NoError(t, err)

	assert.Equal(t, "0.15", cfg.TaxRate.String())
	assert.True(t, cfg.PerSymbol)
	assert.Equal(t, 0, cfg.MaxErrors)
	assert.Equal(t, 1, cfg.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "rate above one", env: map[string]string{"TAX_RATE": "1.5"}},
		{name: "negative rate", env: map[string]string{"TAX_RATE": "-0.1"}},
		{name: "negative threshold", env: map[string]string{"TAX_THRESHOLD": "-1"}},
		{name: "three decimal places", env: map[string]string{"TAX_DECIMAL_PLACES": "3"}},
		{name: "negative max errors", env: map[string]string{"MAX_ERRORS": "-1"}},
		{name: "unparsable rate", env: map[string]string{"TAX_RATE": "vinte"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadE()
			assert.Error(t, err)
			assert.Panics(t, func() { Load() })
		})
	}
}
