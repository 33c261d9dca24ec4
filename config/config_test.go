package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Meter: MeterConfig{
			URL:     "http://127.0.0.1/api/v1/data",
			Timeout: 10 * time.Second,
		},
		Inverter: InverterConfig{
			URL:      "http://127.0.0.1",
			Protocol: "sensor",
			Model:    "PowerFlex2000",
			Timeout:  10 * time.Second,
		},
		Battery: SafetyEnvelope{
			RatedCapacityKWh:      12.0,
			MinSOCPercent:         10.0,
			MaxSOCPercent:         100.0,
			MaxChargePowerW:       2400,
			MaxDischargePowerW:    2400,
			MaxDesiredGridPeakW:   3381,
			MinPriceSpreadPercent: 25.0,
			RoundTripEfficiency:   0.80,
		},
		Loop: LoopConfig{Interval: 30 * time.Second},
	}
}

func TestUsableCapacity(t *testing.T) {
	env := SafetyEnvelope{RatedCapacityKWh: 12.0, MinSOCPercent: 10, MaxSOCPercent: 100}
	assert.InDelta(t, 10.8, env.UsableCapacityKWh(), 1e-9)

	env = SafetyEnvelope{RatedCapacityKWh: 12.0, MinSOCPercent: 50, MaxSOCPercent: 50}
	assert.Zero(t, env.UsableCapacityKWh())

	// An inverted SOC band yields a negative usable capacity; Validate must
	// catch this before the value is ever used.
	env = SafetyEnvelope{RatedCapacityKWh: 12.0, MinSOCPercent: 90, MaxSOCPercent: 10}
	assert.Less(t, env.UsableCapacityKWh(), 0.0)
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("InvertedSOCBand", func(t *testing.T) {
		cfg := validConfig()
		cfg.Battery.MinSOCPercent = 90
		cfg.Battery.MaxSOCPercent = 10
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min_soc_percent")
	})

	t.Run("SOCOutOfRange", func(t *testing.T) {
		cfg := validConfig()
		cfg.Battery.MaxSOCPercent = 120
		require.Error(t, cfg.Validate())
	})

	t.Run("UnknownProtocol", func(t *testing.T) {
		cfg := validConfig()
		cfg.Inverter.Protocol = "modbus"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inverter.protocol")
	})

	t.Run("NonPositiveInterval", func(t *testing.T) {
		cfg := validConfig()
		cfg.Loop.Interval = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("NegativeChargePower", func(t *testing.T) {
		cfg := validConfig()
		cfg.Battery.MaxChargePowerW = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("EfficiencyOutOfRange", func(t *testing.T) {
		cfg := validConfig()
		cfg.Battery.RoundTripEfficiency = 0
		require.Error(t, cfg.Validate())

		cfg.Battery.RoundTripEfficiency = 1.2
		require.Error(t, cfg.Validate())
	})

	t.Run("MissingMeterURL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Meter.URL = ""
		require.Error(t, cfg.Validate())
	})
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("DefaultsMerged", func(t *testing.T) {
		path := writeConfigFile(t, `
meter:
  url: http://192.168.1.10/api/v1/data
inverter:
  url: http://192.168.1.20
  protocol: rpc
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "http://192.168.1.10/api/v1/data", cfg.Meter.URL)
		assert.Equal(t, "rpc", cfg.Inverter.Protocol)
		assert.Equal(t, "PowerFlex2000", cfg.Inverter.Model)
		assert.Equal(t, 30*time.Second, cfg.Loop.Interval)
		assert.Equal(t, 12.0, cfg.Battery.RatedCapacityKWh)
		assert.Equal(t, 2400, cfg.Battery.MaxChargePowerW)
		assert.Equal(t, 0.80, cfg.Battery.RoundTripEfficiency)
	})

	t.Run("MissingFileIsFatal", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("MalformedFileIsFatal", func(t *testing.T) {
		path := writeConfigFile(t, "meter: [not: valid")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("InvalidEnvelopeRejected", func(t *testing.T) {
		path := writeConfigFile(t, `
battery:
  min_soc_percent: 90
  max_soc_percent: 10
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min_soc_percent")
	})
}
