package metrics

import (
	"indevolt-ems/internal/ems"

	"github.com/prometheus/client_golang/prometheus"
)

// StateSource exposes the latest cycle outcome; satisfied by *ems.Loop.
type StateSource interface {
	State() ems.CycleState
	Running() bool
}

// Collector implements prometheus.Collector over the most recent
// reconciliation cycle. It never triggers device I/O of its own; scrapes
// only read the state the loop already holds.
type Collector struct {
	source StateSource

	meterPower        *prometheus.Desc
	meterImportEnergy *prometheus.Desc
	meterExportEnergy *prometheus.Desc
	meterUp           *prometheus.Desc
	batterySOC        *prometheus.Desc
	batteryPower      *prometheus.Desc
	inverterMeter     *prometheus.Desc
	dailyProduction   *prometheus.Desc
	reconcileDiff     *prometheus.Desc
	cycleSeconds      *prometheus.Desc
	cyclesTotal       *prometheus.Desc
	overrunsTotal     *prometheus.Desc
	loopRunning       *prometheus.Desc
}

func NewCollector(source StateSource) *Collector {
	return &Collector{
		source: source,
		meterPower: prometheus.NewDesc(
			"indevolt_ems_meter_active_power_watts",
			"Instantaneous grid power reported by the P1 meter (positive = import)",
			nil, nil,
		),
		meterImportEnergy: prometheus.NewDesc(
			"indevolt_ems_meter_import_kwh_total",
			"Cumulative grid import energy reported by the P1 meter",
			nil, nil,
		),
		meterExportEnergy: prometheus.NewDesc(
			"indevolt_ems_meter_export_kwh_total",
			"Cumulative grid export energy reported by the P1 meter",
			nil, nil,
		),
		meterUp: prometheus.NewDesc(
			"indevolt_ems_meter_up",
			"Whether the last cycle obtained a meter reading (1=yes, 0=no)",
			nil, nil,
		),
		batterySOC: prometheus.NewDesc(
			"indevolt_ems_battery_soc_percent",
			"Battery state of charge",
			[]string{"device_model"}, nil,
		),
		batteryPower: prometheus.NewDesc(
			"indevolt_ems_battery_power_watts",
			"Battery power (positive = charging, negative = discharging)",
			[]string{"device_model"}, nil,
		),
		inverterMeter: prometheus.NewDesc(
			"indevolt_ems_inverter_meter_power_watts",
			"Grid power as observed by the inverter's meter input",
			[]string{"device_model"}, nil,
		),
		dailyProduction: prometheus.NewDesc(
			"indevolt_ems_battery_daily_production_kwh",
			"Daily production reported by the inverter",
			[]string{"device_model"}, nil,
		),
		reconcileDiff: prometheus.NewDesc(
			"indevolt_ems_reconciliation_diff_watts",
			"P1 grid power minus inverter-observed grid power for the last cycle",
			nil, nil,
		),
		cycleSeconds: prometheus.NewDesc(
			"indevolt_ems_cycle_duration_seconds",
			"Wall-clock duration of the last reconciliation cycle",
			nil, nil,
		),
		cyclesTotal: prometheus.NewDesc(
			"indevolt_ems_cycles_total",
			"Reconciliation cycles completed since start",
			nil, nil,
		),
		overrunsTotal: prometheus.NewDesc(
			"indevolt_ems_cycle_overruns_total",
			"Cycles that exceeded the configured interval",
			nil, nil,
		),
		loopRunning: prometheus.NewDesc(
			"indevolt_ems_loop_running",
			"Whether the reconciliation loop is active (1=yes, 0=no)",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.meterPower
	ch <- c.meterImportEnergy
	ch <- c.meterExportEnergy
	ch <- c.meterUp
	ch <- c.batterySOC
	ch <- c.batteryPower
	ch <- c.inverterMeter
	ch <- c.dailyProduction
	ch <- c.reconcileDiff
	ch <- c.cycleSeconds
	ch <- c.cyclesTotal
	ch <- c.overrunsTotal
	ch <- c.loopRunning
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	state := c.source.State()

	running := 0.0
	if c.source.Running() {
		running = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.loopRunning, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.cyclesTotal, prometheus.CounterValue, float64(state.Cycles))
	ch <- prometheus.MustNewConstMetric(c.overrunsTotal, prometheus.CounterValue, float64(state.Overruns))
	ch <- prometheus.MustNewConstMetric(c.cycleSeconds, prometheus.GaugeValue, state.CycleDuration.Seconds())

	if state.Meter != nil {
		ch <- prometheus.MustNewConstMetric(c.meterUp, prometheus.GaugeValue, 1)
		ch <- prometheus.MustNewConstMetric(c.meterPower, prometheus.GaugeValue, state.Meter.Data.ActivePowerW)
		ch <- prometheus.MustNewConstMetric(c.meterImportEnergy, prometheus.CounterValue, state.Meter.Data.TotalPowerImportKWh)
		ch <- prometheus.MustNewConstMetric(c.meterExportEnergy, prometheus.CounterValue, state.Meter.Data.TotalPowerExportKWh)
	} else {
		ch <- prometheus.MustNewConstMetric(c.meterUp, prometheus.GaugeValue, 0)
	}

	if snap := state.Battery; snap != nil {
		ch <- prometheus.MustNewConstMetric(c.batterySOC, prometheus.GaugeValue, snap.BatterySOC, snap.DeviceModel)
		ch <- prometheus.MustNewConstMetric(c.batteryPower, prometheus.GaugeValue, float64(snap.BatteryPowerW), snap.DeviceModel)
		ch <- prometheus.MustNewConstMetric(c.inverterMeter, prometheus.GaugeValue, float64(snap.MeterPowerW), snap.DeviceModel)
		ch <- prometheus.MustNewConstMetric(c.dailyProduction, prometheus.GaugeValue, snap.DailyProductionKWh, snap.DeviceModel)
	}

	if rec := state.Reconciliation; rec != nil {
		ch <- prometheus.MustNewConstMetric(c.reconcileDiff, prometheus.GaugeValue, float64(rec.DiffW))
	}
}
