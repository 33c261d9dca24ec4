package inverter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"indevolt-ems/config"
	"indevolt-ems/internal/httpclient"
	"indevolt-ems/internal/logging"
)

// RPCAdapter speaks the batched firmware protocol: one GET carrying every
// numeric sensor ID, answered with a flat id-to-value map. There is no
// partial-success granularity; a failed exchange zeroes the whole snapshot
// for that cycle.
type RPCAdapter struct {
	http    *httpclient.Client
	baseURL string
	model   string
}

func NewRPCAdapter(cfg config.InverterConfig) *RPCAdapter {
	return &RPCAdapter{
		http:    httpclient.New(cfg.Timeout),
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
	}
}

type rpcReadConfig struct {
	T []int `json:"t"`
}

type rpcWriteConfig struct {
	F int     `json:"f"`
	T int     `json:"t"`
	V []int64 `json:"v"`
}

// fetch reads the given IDs in one exchange. On any failure it returns nil,
// which reads as zero for every field.
func (a *RPCAdapter) fetch(ctx context.Context, ids []int) map[int]float64 {
	cfg, err := json.Marshal(rpcReadConfig{T: ids})
	if err != nil {
		logging.Ctx(ctx).Error("inverter batched read: encode config", "error", err)
		return nil
	}
	u := fmt.Sprintf("%s/rpc/Indevolt.GetData?config=%s", a.baseURL, url.QueryEscape(string(cfg)))

	var raw map[string]float64
	if err := a.http.GetJSON(ctx, u, &raw); err != nil {
		logging.Ctx(ctx).Error("inverter batched read failed, zeroing snapshot", "error", err)
		return nil
	}

	values := make(map[int]float64, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			logging.Ctx(ctx).Warn("inverter batched read: non-numeric sensor id", "id", k)
			continue
		}
		values[id] = v
	}
	return values
}

func (a *RPCAdapter) ReadSnapshot(ctx context.Context) *BatterySnapshot {
	values := a.fetch(ctx, snapshotIDs)
	return &BatterySnapshot{
		DeviceModel:             a.model,
		BatterySOC:              values[IDSOC],
		BatteryState:            BatteryStateFromCode(int64(values[IDBatteryState])),
		WorkingMode:             WorkingModeFromCode(int64(values[IDWorkingMode])),
		BatteryPowerW:           int(values[IDBatteryPower]),
		DCInputPower1W:          int(values[IDDCInputPower1]),
		DCInputPower2W:          int(values[IDDCInputPower2]),
		TotalDCOutputPowerW:     int(values[IDTotalDCOutputPower]),
		TotalACOutputPowerW:     int(values[IDTotalACOutputPower]),
		TotalACInputPowerW:      int(values[IDTotalACInputPower]),
		MeterPowerW:             int(values[IDMeterPower]),
		DailyProductionKWh:      values[IDDailyProduction],
		CumulativeProductionKWh: values[IDCumulativeProduction] * cumulativeProductionScale,
		DailyChargingKWh:        values[IDDailyCharging],
		DailyDischargingKWh:     values[IDDailyDischarging],
		TotalChargingKWh:        values[IDTotalCharging],
		TotalDischargingKWh:     values[IDTotalDischarging],
		TotalACInputEnergyKWh:   values[IDTotalACInputEnergy],
	}
}

func (a *RPCAdapter) ReadLimits(ctx context.Context) *StaticLimits {
	values := a.fetch(ctx, limitIDs)
	return &StaticLimits{
		DeviceModel:        a.model,
		RatedCapacityKWh:   values[IDRatedCapacity],
		MinSOCPercent:      values[IDMinSOC],
		MaxSOCPercent:      values[IDMaxSOC],
		MaxChargePowerW:    int(values[IDMaxChargePower]),
		MaxDischargePowerW: int(values[IDMaxDischargePower]),
	}
}

// encodeRPCCommand maps an intent onto a register write. Every command is a
// Modbus function-16 write carried over the RPC API.
func encodeRPCCommand(intent ControlIntent) (rpcWriteConfig, error) {
	switch intent.Action {
	case ActionSetMode:
		v, ok := intent.Mode.RegisterValue()
		if !ok {
			return rpcWriteConfig{}, fmt.Errorf("working mode %q has no register encoding", intent.Mode)
		}
		return rpcWriteConfig{F: FuncWriteMultiple, T: RegWorkingMode, V: []int64{v}}, nil
	case ActionCharge:
		return rpcWriteConfig{F: FuncWriteMultiple, T: RegRealtimeControl,
			V: []int64{rpcActionCharge, int64(intent.PowerW), int64(intent.SOCLimitPercent)}}, nil
	case ActionDischarge:
		return rpcWriteConfig{F: FuncWriteMultiple, T: RegRealtimeControl,
			V: []int64{rpcActionDischarge, int64(intent.PowerW), int64(intent.SOCLimitPercent)}}, nil
	case ActionStop:
		return rpcWriteConfig{F: FuncWriteMultiple, T: RegRealtimeControl,
			V: []int64{rpcActionStop, 0, 0}}, nil
	default:
		return rpcWriteConfig{}, fmt.Errorf("unknown control action %d", intent.Action)
	}
}

func (a *RPCAdapter) Send(ctx context.Context, intent ControlIntent) error {
	write, err := encodeRPCCommand(intent)
	if err != nil {
		return fmt.Errorf("%s: %w", intent, err)
	}
	cfg, err := json.Marshal(write)
	if err != nil {
		return fmt.Errorf("%s: encode command: %w", intent, err)
	}
	u := fmt.Sprintf("%s/rpc/Indevolt.SetData?config=%s", a.baseURL, url.QueryEscape(string(cfg)))

	// The device acknowledges writes with an empty or arbitrary 2xx body;
	// only the status matters.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", intent, err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", intent, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: rejected with http %d: %s", intent, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	logging.Ctx(ctx).Info("inverter command accepted", "command", intent.String(),
		"register", write.T, "values", write.V)
	return nil
}
