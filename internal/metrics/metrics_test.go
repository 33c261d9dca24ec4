package metrics

import (
	"strings"
	"testing"
	"time"

	"indevolt-ems/internal/ems"
	"indevolt-ems/internal/inverter"
	"indevolt-ems/internal/meter"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	state   ems.CycleState
	running bool
}

func (s stubSource) State() ems.CycleState { return s.state }
func (s stubSource) Running() bool         { return s.running }

func TestCollectFullCycle(t *testing.T) {
	src := stubSource{
		running: true,
		state: ems.CycleState{
			CycleStart:    time.Now(),
			CycleDuration: 250 * time.Millisecond,
			Meter: &meter.Reading{
				Data: meter.Data{
					ActivePowerW:        1250,
					TotalPowerImportKWh: 300.5,
					TotalPowerExportKWh: 42.25,
				},
			},
			Battery: &inverter.BatterySnapshot{
				DeviceModel:        "PowerFlex2000",
				BatterySOC:         73.5,
				BatteryPowerW:      -600,
				MeterPowerW:        1180,
				DailyProductionKWh: 4.2,
			},
			Reconciliation: &ems.Reconciliation{
				MeterPowerW: 1250, InverterMeterPowerW: 1180, DiffW: 70,
			},
			Cycles:   17,
			Overruns: 2,
		},
	}

	expected := `
# HELP indevolt_ems_battery_power_watts Battery power (positive = charging, negative = discharging)
# TYPE indevolt_ems_battery_power_watts gauge
indevolt_ems_battery_power_watts{device_model="PowerFlex2000"} -600
# HELP indevolt_ems_battery_soc_percent Battery state of charge
# TYPE indevolt_ems_battery_soc_percent gauge
indevolt_ems_battery_soc_percent{device_model="PowerFlex2000"} 73.5
# HELP indevolt_ems_cycle_duration_seconds Wall-clock duration of the last reconciliation cycle
# TYPE indevolt_ems_cycle_duration_seconds gauge
indevolt_ems_cycle_duration_seconds 0.25
# HELP indevolt_ems_cycle_overruns_total Cycles that exceeded the configured interval
# TYPE indevolt_ems_cycle_overruns_total counter
indevolt_ems_cycle_overruns_total 2
# HELP indevolt_ems_cycles_total Reconciliation cycles completed since start
# TYPE indevolt_ems_cycles_total counter
indevolt_ems_cycles_total 17
# HELP indevolt_ems_loop_running Whether the reconciliation loop is active (1=yes, 0=no)
# TYPE indevolt_ems_loop_running gauge
indevolt_ems_loop_running 1
# HELP indevolt_ems_meter_active_power_watts Instantaneous grid power reported by the P1 meter (positive = import)
# TYPE indevolt_ems_meter_active_power_watts gauge
indevolt_ems_meter_active_power_watts 1250
# HELP indevolt_ems_meter_up Whether the last cycle obtained a meter reading (1=yes, 0=no)
# TYPE indevolt_ems_meter_up gauge
indevolt_ems_meter_up 1
# HELP indevolt_ems_reconciliation_diff_watts P1 grid power minus inverter-observed grid power for the last cycle
# TYPE indevolt_ems_reconciliation_diff_watts gauge
indevolt_ems_reconciliation_diff_watts 70
`
	err := testutil.CollectAndCompare(NewCollector(src), strings.NewReader(expected),
		"indevolt_ems_battery_power_watts",
		"indevolt_ems_battery_soc_percent",
		"indevolt_ems_cycle_duration_seconds",
		"indevolt_ems_cycle_overruns_total",
		"indevolt_ems_cycles_total",
		"indevolt_ems_loop_running",
		"indevolt_ems_meter_active_power_watts",
		"indevolt_ems_meter_up",
		"indevolt_ems_reconciliation_diff_watts",
	)
	require.NoError(t, err)
}

func TestCollectDegradedCycleDropsMeterSeries(t *testing.T) {
	src := stubSource{
		running: true,
		state: ems.CycleState{
			CycleStart: time.Now(),
			Battery:    &inverter.BatterySnapshot{DeviceModel: "PowerFlex2000", BatterySOC: 50},
			Cycles:     3,
		},
	}

	expected := `
# HELP indevolt_ems_meter_up Whether the last cycle obtained a meter reading (1=yes, 0=no)
# TYPE indevolt_ems_meter_up gauge
indevolt_ems_meter_up 0
`
	err := testutil.CollectAndCompare(NewCollector(src), strings.NewReader(expected),
		"indevolt_ems_meter_up",
		"indevolt_ems_meter_active_power_watts",
		"indevolt_ems_reconciliation_diff_watts",
	)
	require.NoError(t, err)
}

func TestCollectorLintClean(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(stubSource{}))
	require.NoError(t, err)
	require.Empty(t, problems)
}
