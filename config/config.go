package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Meter    MeterConfig    `mapstructure:"meter"`
	Inverter InverterConfig `mapstructure:"inverter"`
	Battery  SafetyEnvelope `mapstructure:"battery"`
	Loop     LoopConfig     `mapstructure:"loop"`
	API      APIConfig      `mapstructure:"api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Log      LogConfig      `mapstructure:"log"`
}

type MeterConfig struct {
	// URL is the HomeWizard P1 local API endpoint, e.g.
	// "http://192.168.1.x/api/v1/data".
	URL string `mapstructure:"url"`
	// Timezone is the IANA zone the meter's compact timestamps are encoded
	// in. Empty means the process-local zone.
	Timezone string        `mapstructure:"timezone"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type InverterConfig struct {
	// URL is the Indevolt base URL, e.g. "http://192.168.1.y".
	URL string `mapstructure:"url"`
	// Protocol selects the wire protocol matching the device firmware
	// generation: "sensor" (per-key string API) or "rpc" (batched
	// numeric-ID API). The two are not auto-detectable.
	Protocol string        `mapstructure:"protocol"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SafetyEnvelope holds the operator-configured battery limits. It is loaded
// once at startup and shared read-only with every component.
type SafetyEnvelope struct {
	// RatedCapacityKWh is the nameplate capacity of the battery cluster.
	RatedCapacityKWh float64 `mapstructure:"rated_capacity_kwh"`
	// MinSOCPercent is the reserve the optimiser must never discharge below.
	MinSOCPercent float64 `mapstructure:"min_soc_percent"`
	// MaxSOCPercent caps charging; lower than 100 extends cycle life.
	MaxSOCPercent      float64 `mapstructure:"max_soc_percent"`
	MaxChargePowerW    int     `mapstructure:"max_charge_power_w"`
	MaxDischargePowerW int     `mapstructure:"max_discharge_power_w"`
	// MaxDesiredGridPeakW is the capacity-tariff peak the optimiser should
	// keep grid import under.
	MaxDesiredGridPeakW int `mapstructure:"max_desired_grid_peak_w"`
	// MinPriceSpreadPercent is the buy/sell spread needed to make a
	// charge/discharge cycle profitable after round-trip losses.
	MinPriceSpreadPercent float64 `mapstructure:"min_price_spread_percent"`
	RoundTripEfficiency   float64 `mapstructure:"round_trip_efficiency"`
}

// UsableCapacityKWh is the capacity left after reserving the SOC band.
func (s SafetyEnvelope) UsableCapacityKWh() float64 {
	return s.RatedCapacityKWh * (s.MaxSOCPercent - s.MinSOCPercent) / 100.0
}

type LoopConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads and validates the YAML configuration. A missing or malformed
// file is a fatal startup condition: the caller must not run without a
// validated config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/indevolt-ems")
	}

	// Set defaults
	v.SetDefault("meter.url", "http://127.0.0.1/api/v1/data")
	v.SetDefault("meter.timezone", "")
	v.SetDefault("meter.timeout", "10s")
	v.SetDefault("inverter.url", "http://127.0.0.1")
	v.SetDefault("inverter.protocol", "sensor")
	v.SetDefault("inverter.model", "PowerFlex2000")
	v.SetDefault("inverter.timeout", "10s")
	v.SetDefault("battery.rated_capacity_kwh", 12.0)
	v.SetDefault("battery.min_soc_percent", 10.0)
	v.SetDefault("battery.max_soc_percent", 100.0)
	v.SetDefault("battery.max_charge_power_w", 2400)
	v.SetDefault("battery.max_discharge_power_w", 2400)
	v.SetDefault("battery.max_desired_grid_peak_w", 3381)
	v.SetDefault("battery.min_price_spread_percent", 25.0)
	v.SetDefault("battery.round_trip_efficiency", 0.80)
	v.SetDefault("loop.interval", "30s")
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8045)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "indevolt")
	v.SetDefault("mqtt.client_id", "indevolt-ems")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations that would produce a nonsensical safety
// envelope or an unrunnable loop.
func (c *Config) Validate() error {
	if c.Meter.URL == "" {
		return fmt.Errorf("meter.url must be set")
	}
	if c.Inverter.URL == "" {
		return fmt.Errorf("inverter.url must be set")
	}
	if c.Inverter.Protocol != "sensor" && c.Inverter.Protocol != "rpc" {
		return fmt.Errorf("inverter.protocol must be \"sensor\" or \"rpc\", got %q", c.Inverter.Protocol)
	}
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive, got %s", c.Loop.Interval)
	}
	b := c.Battery
	if b.RatedCapacityKWh < 0 {
		return fmt.Errorf("battery.rated_capacity_kwh must be >= 0, got %g", b.RatedCapacityKWh)
	}
	if b.MinSOCPercent < 0 || b.MaxSOCPercent > 100 {
		return fmt.Errorf("battery SOC bounds must lie within 0-100, got %g-%g", b.MinSOCPercent, b.MaxSOCPercent)
	}
	if b.MinSOCPercent > b.MaxSOCPercent {
		// A min above max would make the usable capacity negative.
		return fmt.Errorf("battery.min_soc_percent %g exceeds battery.max_soc_percent %g", b.MinSOCPercent, b.MaxSOCPercent)
	}
	if b.MaxChargePowerW < 0 || b.MaxDischargePowerW < 0 {
		return fmt.Errorf("battery power limits must be >= 0")
	}
	if b.MaxDesiredGridPeakW < 0 {
		return fmt.Errorf("battery.max_desired_grid_peak_w must be >= 0, got %d", b.MaxDesiredGridPeakW)
	}
	if b.RoundTripEfficiency <= 0 || b.RoundTripEfficiency > 1 {
		return fmt.Errorf("battery.round_trip_efficiency must be in (0, 1], got %g", b.RoundTripEfficiency)
	}
	return nil
}
