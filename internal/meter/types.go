package meter

import (
	"encoding/json"
	"time"
)

// FlexString decodes a JSON value that may arrive as either a string or a
// number, depending on the meter firmware version.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// ExternalMeasurement is an external (slave) meter attached to the P1 port.
type ExternalMeasurement struct {
	UniqueID  string     `json:"unique_id"`
	Type      string     `json:"type"`
	Timestamp FlexString `json:"timestamp"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
}

// Data is the full response from GET /api/v1/data on a HomeWizard P1
// dongle. Field names match the HomeWizard local API spec exactly.
type Data struct {
	WifiSSID                 string  `json:"wifi_ssid"`
	WifiStrength             uint8   `json:"wifi_strength"`
	SMRVersion               uint8   `json:"smr_version"`
	MeterModel               string  `json:"meter_model"`
	UniqueID                 string  `json:"unique_id"`
	ActiveTariff             uint8   `json:"active_tariff"`
	TotalPowerImportKWh      float64 `json:"total_power_import_kwh"`
	TotalPowerImportT1KWh    float64 `json:"total_power_import_t1_kwh"`
	TotalPowerImportT2KWh    float64 `json:"total_power_import_t2_kwh"`
	TotalPowerExportKWh      float64 `json:"total_power_export_kwh"`
	TotalPowerExportT1KWh    float64 `json:"total_power_export_t1_kwh"`
	TotalPowerExportT2KWh    float64 `json:"total_power_export_t2_kwh"`
	ActivePowerW             float64 `json:"active_power_w"`
	ActivePowerL1W           float64 `json:"active_power_l1_w"`
	ActivePowerL2W           float64 `json:"active_power_l2_w"`
	ActivePowerL3W           float64 `json:"active_power_l3_w"`
	ActiveVoltageL1V         float64 `json:"active_voltage_l1_v"`
	ActiveVoltageL2V         float64 `json:"active_voltage_l2_v"`
	ActiveVoltageL3V         float64 `json:"active_voltage_l3_v"`
	ActiveCurrentA           float64 `json:"active_current_a"`
	ActiveCurrentL1A         float64 `json:"active_current_l1_a"`
	ActiveCurrentL2A         float64 `json:"active_current_l2_a"`
	ActiveCurrentL3A         float64 `json:"active_current_l3_a"`
	ActivePowerAverageW      float64 `json:"active_power_average_w"`
	MonthlyPowerPeakW        float64 `json:"montly_power_peak_w"` // HomeWizard typo kept intentionally
	MonthlyPowerPeakTimeRaw  FlexString `json:"montly_power_peak_timestamp"`
	TotalGasM3               float64    `json:"total_gas_m3"`
	GasTimeRaw               FlexString `json:"gas_timestamp"`
	GasUniqueID              string     `json:"gas_unique_id"`
	External                 []ExternalMeasurement `json:"external"`
}

// Reading is a fully resolved meter reading with the compact local-time
// stamps already converted to UTC. It is built fresh each cycle and never
// mutated afterwards.
type Reading struct {
	Data                 Data      `json:"data"`
	MonthlyPowerPeakTime time.Time `json:"monthly_power_peak_time"`
	GasTime              time.Time `json:"gas_time"`
	// TimestampFallbacks lists the fields whose device timestamp could not
	// be resolved and was substituted with the current wall clock.
	TimestampFallbacks []string `json:"timestamp_fallbacks,omitempty"`
}
