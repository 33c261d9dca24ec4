package inverter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"indevolt-ems/config"
	"indevolt-ems/internal/httpclient"
	"indevolt-ems/internal/logging"
)

// SensorAdapter speaks the per-key firmware protocol: one GET per named
// sensor key, fanned out concurrently, plus a key/value control endpoint.
type SensorAdapter struct {
	http    *httpclient.Client
	baseURL string
	model   string
}

func NewSensorAdapter(cfg config.InverterConfig) *SensorAdapter {
	return &SensorAdapter{
		http:    httpclient.New(cfg.Timeout),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
	}
}

type sensorReading struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// fetchAll reads the given keys concurrently and merges the successful
// responses by key. A failed or unparseable key is dropped from the result,
// never aborting the batch.
func (a *SensorAdapter) fetchAll(ctx context.Context, keys []string) map[string]string {
	values := make(map[string]string, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			u := fmt.Sprintf("%s/device/sensor?key=%s", a.baseURL, url.QueryEscape(key))
			var sr sensorReading
			if err := a.http.GetJSON(ctx, u, &sr); err != nil {
				logging.Ctx(ctx).Warn("inverter sensor read failed", "key", key, "error", err)
				return
			}
			mu.Lock()
			values[sr.Key] = sr.Value
			mu.Unlock()
		}(key)
	}
	wg.Wait()
	return values
}

// floatOr parses the value for key as a float, or returns def when the key
// is missing or unparseable.
func floatOr(values map[string]string, key string, def float64) float64 {
	if v, ok := values[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func intOr(values map[string]string, key string, def int) int {
	if v, ok := values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func stringOr(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok {
		return v
	}
	return def
}

func (a *SensorAdapter) ReadSnapshot(ctx context.Context) *BatterySnapshot {
	values := a.fetchAll(ctx, snapshotKeys)
	return &BatterySnapshot{
		DeviceModel:             a.model,
		BatterySOC:              floatOr(values, KeySOC, 0),
		BatteryState:            BatteryState(stringOr(values, KeyBatteryState, "")),
		WorkingMode:             WorkingMode(stringOr(values, KeyWorkingMode, "")),
		BatteryPowerW:           intOr(values, KeyBatteryPower, 0),
		DCInputPower1W:          intOr(values, KeyDCInputPower1, 0),
		DCInputPower2W:          intOr(values, KeyDCInputPower2, 0),
		TotalDCOutputPowerW:     intOr(values, KeyTotalDCOutputPower, 0),
		TotalACOutputPowerW:     intOr(values, KeyTotalACOutputPower, 0),
		TotalACInputPowerW:      intOr(values, KeyTotalACInputPower, 0),
		MeterPowerW:             intOr(values, KeyMeterPower, 0),
		DailyProductionKWh:      floatOr(values, KeyDailyProduction, 0),
		CumulativeProductionKWh: floatOr(values, KeyCumulativeProduction, 0),
		DailyChargingKWh:        floatOr(values, KeyDailyCharging, 0),
		DailyDischargingKWh:     floatOr(values, KeyDailyDischarging, 0),
		TotalChargingKWh:        floatOr(values, KeyTotalCharging, 0),
		TotalDischargingKWh:     floatOr(values, KeyTotalDischarging, 0),
		TotalACInputEnergyKWh:   floatOr(values, KeyTotalACInputEnergy, 0),
	}
}

func (a *SensorAdapter) ReadLimits(ctx context.Context) *StaticLimits {
	values := a.fetchAll(ctx, limitKeys)
	return &StaticLimits{
		DeviceModel:        a.model,
		RatedCapacityKWh:   floatOr(values, KeyRatedCapacity, 0),
		MinSOCPercent:      floatOr(values, KeyMinSOC, 0),
		MaxSOCPercent:      floatOr(values, KeyMaxSOC, 0),
		MaxChargePowerW:    intOr(values, KeyMaxChargePower, 0),
		MaxDischargePowerW: intOr(values, KeyMaxDischargePower, 0),
	}
}

// encodeSensorCommand maps an intent onto the key/value control form.
func encodeSensorCommand(intent ControlIntent) (key, value string) {
	switch intent.Action {
	case ActionSetMode:
		return KeyWorkingMode, string(intent.Mode)
	case ActionCharge:
		return "RealtimeControl", fmt.Sprintf("charge,%d,%d", intent.PowerW, intent.SOCLimitPercent)
	case ActionDischarge:
		return "RealtimeControl", fmt.Sprintf("discharge,%d,%d", intent.PowerW, intent.SOCLimitPercent)
	default:
		return "RealtimeControl", "stop,0,0"
	}
}

func (a *SensorAdapter) Send(ctx context.Context, intent ControlIntent) error {
	key, value := encodeSensorCommand(intent)
	body, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("%s: encode command: %w", intent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/device/control", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", intent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", intent, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: rejected with http %d: %s", intent, resp.StatusCode, bytes.TrimSpace(b))
	}

	logging.Ctx(ctx).Info("inverter command accepted", "command", intent.String(), "key", key, "value", value)
	return nil
}
