package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig("papertrade")
	assert.Equal(t, "papertrade", cfg.ServiceName)
	assert.Equal(t, "AAPL", cfg.Symbol)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, ":50051", cfg.GRPCAddr())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "MSFT")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("GUARD_AUTO_RESUME", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STARTING_BALANCE", "50000")

	cfg := LoadConfig("papertrade")
	assert.Equal(t, "MSFT", cfg.Symbol)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.AutoResume)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
	assert.Equal(t, 50000.0, cfg.StartingBalance)
}

func TestValidate_RejectsInvertedSMAPeriods(t *testing.T) {
	cfg := LoadConfig("papertrade")
	cfg.FastPeriod = 30
	cfg.SlowPeriod = 10
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := LoadConfig("papertrade")
	cfg.Symbol = ""
	assert.Error(t, cfg.Validate())

	cfg = LoadConfig("papertrade")
	cfg.OrderQuantity = -1
	assert.Error(t, cfg.Validate())

	cfg = LoadConfig("papertrade")
	cfg.StartingBalance = 0
	assert.Error(t, cfg.Validate())
}
