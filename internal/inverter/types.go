package inverter

import (
	"context"
	"fmt"
)

// BatteryState is the inverter's reported battery activity.
type BatteryState string

const (
	StateStatic      BatteryState = "Static"
	StateCharging    BatteryState = "Charging"
	StateDischarging BatteryState = "Discharging"
)

// BatteryStateFromCode maps a batched-API state code to its label.
// Unrecognized codes are preserved as Unknown(<code>).
func BatteryStateFromCode(code int64) BatteryState {
	switch code {
	case StateCodeStatic:
		return StateStatic
	case StateCodeCharging:
		return StateCharging
	case StateCodeDischarging:
		return StateDischarging
	default:
		return BatteryState(fmt.Sprintf("Unknown(%d)", code))
	}
}

// WorkingMode is the inverter's top-level control-authority setting.
type WorkingMode string

const (
	// ModeSelfConsumedPrioritized is the device default: solar first,
	// battery as buffer.
	ModeSelfConsumedPrioritized WorkingMode = "Self-consumed Prioritized"
	// ModeRealtimeControl hands charge/discharge authority to this EMS.
	ModeRealtimeControl WorkingMode = "Real-time Control"
	// ModeSchedule runs the device's own time-based plan.
	ModeSchedule WorkingMode = "Schedule"
	// ModeManual is only ever reported by the per-key firmware; it has no
	// known register value and cannot be commanded.
	ModeManual WorkingMode = "Manual"
)

// WorkingModeFromCode maps a working-mode register value to its label.
// Unrecognized values are preserved as Mode(<code>).
func WorkingModeFromCode(code int64) WorkingMode {
	switch code {
	case modeCodeSelfConsumed:
		return ModeSelfConsumedPrioritized
	case modeCodeRealtime:
		return ModeRealtimeControl
	case modeCodeSchedule:
		return ModeSchedule
	default:
		return WorkingMode(fmt.Sprintf("Mode(%d)", code))
	}
}

// RegisterValue returns the working-mode register encoding, or false when
// the mode has no writable encoding.
func (m WorkingMode) RegisterValue() (int64, bool) {
	switch m {
	case ModeSelfConsumedPrioritized:
		return modeCodeSelfConsumed, true
	case ModeRealtimeControl:
		return modeCodeRealtime, true
	case ModeSchedule:
		return modeCodeSchedule, true
	default:
		return 0, false
	}
}

// BatterySnapshot is the canonical, protocol-independent view of the
// inverter, rebuilt fully each poll cycle. Any field whose source value
// could not be obtained holds its zero value; stale values are never
// carried forward.
type BatterySnapshot struct {
	DeviceModel  string       `json:"device_model"`
	BatterySOC   float64      `json:"battery_soc"`
	BatteryState BatteryState `json:"battery_state"`
	WorkingMode  WorkingMode  `json:"working_mode"`
	// BatteryPowerW is negative while discharging, positive while charging.
	BatteryPowerW       int `json:"battery_power_w"`
	DCInputPower1W      int `json:"dc_input_power1_w"`
	DCInputPower2W      int `json:"dc_input_power2_w"`
	TotalDCOutputPowerW int `json:"total_dc_output_power_w"`
	TotalACOutputPowerW int `json:"total_ac_output_power_w"`
	TotalACInputPowerW  int `json:"total_ac_input_power_w"`
	// MeterPowerW is the inverter's own grid-meter observation: positive =
	// import, negative = export.
	MeterPowerW             int     `json:"meter_power_w"`
	DailyProductionKWh      float64 `json:"daily_production_kwh"`
	CumulativeProductionKWh float64 `json:"cumulative_production_kwh"`
	DailyChargingKWh        float64 `json:"daily_charging_kwh"`
	DailyDischargingKWh     float64 `json:"daily_discharging_kwh"`
	TotalChargingKWh        float64 `json:"total_charging_kwh"`
	TotalDischargingKWh     float64 `json:"total_discharging_kwh"`
	TotalACInputEnergyKWh   float64 `json:"total_ac_input_energy_kwh"`
}

// StaticLimits are the hardware limits as reported by the inverter itself.
// They are distinct from the operator-configured safety envelope and are not
// automatically reconciled with it.
type StaticLimits struct {
	DeviceModel        string  `json:"device_model"`
	RatedCapacityKWh   float64 `json:"rated_capacity_kwh"`
	MinSOCPercent      float64 `json:"min_soc_percent"`
	MaxSOCPercent      float64 `json:"max_soc_percent"`
	MaxChargePowerW    int     `json:"max_charge_power_w"`
	MaxDischargePowerW int     `json:"max_discharge_power_w"`
}

// ControlAction identifies the kind of a ControlIntent.
type ControlAction int

const (
	ActionSetMode ControlAction = iota
	ActionCharge
	ActionDischarge
	ActionStop
)

// ControlIntent is exactly one atomic device command. Each intent becomes
// one HTTP exchange.
type ControlIntent struct {
	Action ControlAction
	// Mode is only meaningful for ActionSetMode.
	Mode WorkingMode
	// PowerW is the commanded power for ActionCharge / ActionDischarge.
	PowerW int
	// SOCLimitPercent is the ceiling for a charge and the floor for a
	// discharge.
	SOCLimitPercent int
}

// SetMode returns an intent switching the inverter's working mode.
// Switching to ModeRealtimeControl is required before sending charge,
// discharge, or stop intents; that sequencing is the caller's contract.
func SetMode(mode WorkingMode) ControlIntent {
	return ControlIntent{Action: ActionSetMode, Mode: mode}
}

// Charge returns an intent charging at watts up to the SOC ceiling.
func Charge(watts, socCeilingPercent int) ControlIntent {
	return ControlIntent{Action: ActionCharge, PowerW: watts, SOCLimitPercent: socCeilingPercent}
}

// Discharge returns an intent discharging at watts down to the SOC floor.
func Discharge(watts, socFloorPercent int) ControlIntent {
	return ControlIntent{Action: ActionDischarge, PowerW: watts, SOCLimitPercent: socFloorPercent}
}

// Stop returns an intent halting real-time charge/discharge (standby).
func Stop() ControlIntent {
	return ControlIntent{Action: ActionStop}
}

func (i ControlIntent) String() string {
	switch i.Action {
	case ActionSetMode:
		return fmt.Sprintf("set working mode %s", i.Mode)
	case ActionCharge:
		return fmt.Sprintf("charge %dW up to %d%% SOC", i.PowerW, i.SOCLimitPercent)
	case ActionDischarge:
		return fmt.Sprintf("discharge %dW down to %d%% SOC", i.PowerW, i.SOCLimitPercent)
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("unknown action %d", i.Action)
	}
}

// Adapter is the capability interface both firmware generations implement.
// Exactly one concrete implementation is selected at configuration time;
// there is no runtime fallback between them.
type Adapter interface {
	// ReadSnapshot polls the device and always returns a fully populated
	// snapshot; fields whose source failed hold zero values.
	ReadSnapshot(ctx context.Context) *BatterySnapshot

	// ReadLimits polls the device's static hardware limits.
	ReadLimits(ctx context.Context) *StaticLimits

	// Send encodes one control intent, issues one HTTP write, and returns
	// an error annotated with the offending command on any non-2xx status
	// or transport failure. Commands are never retried here beyond the
	// transport-level policy.
	Send(ctx context.Context, intent ControlIntent) error
}
