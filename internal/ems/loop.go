package ems

import (
	"context"
	"sync"
	"time"

	"indevolt-ems/config"
	"indevolt-ems/internal/inverter"
	"indevolt-ems/internal/logging"
	"indevolt-ems/internal/meter"
	"indevolt-ems/internal/mqtt"
)

// Optimiser decides control intents from one cycle's readings. No
// implementation ships yet; the loop only dispatches what a configured
// optimiser returns.
type Optimiser interface {
	Decide(reading *meter.Reading, battery *inverter.BatterySnapshot, envelope config.SafetyEnvelope) []inverter.ControlIntent
}

// Reconciliation compares the two grid-power observations from one cycle.
type Reconciliation struct {
	// MeterPowerW is the grid power as reported by the P1 meter.
	MeterPowerW int `json:"meter_power_w"`
	// InverterMeterPowerW is the grid power as seen by the inverter's own
	// meter input.
	InverterMeterPowerW int `json:"inverter_meter_power_w"`
	DiffW               int `json:"diff_w"`
}

// CycleState is the outcome of the most recent cycle. A new value replaces
// the old one wholesale; nothing is carried forward between cycles.
type CycleState struct {
	CycleStart    time.Time     `json:"cycle_start"`
	CycleDuration time.Duration `json:"cycle_duration"`
	// Meter is nil on a degraded cycle.
	Meter          *meter.Reading            `json:"meter,omitempty"`
	Battery        *inverter.BatterySnapshot `json:"battery,omitempty"`
	Reconciliation *Reconciliation           `json:"reconciliation,omitempty"`
	Overrun        bool                      `json:"overrun"`
	Cycles         uint64                    `json:"cycles"`
	Overruns       uint64                    `json:"overruns"`
}

// Loop owns cycle sequencing: meter fetch, battery fetch, reconciliation,
// and cadence. It is the system's single control goroutine.
type Loop struct {
	meter     *meter.Client
	battery   inverter.Adapter
	publisher *mqtt.Publisher
	optimiser Optimiser
	envelope  config.SafetyEnvelope
	interval  time.Duration

	mu      sync.RWMutex
	state   CycleState
	running bool
}

type LoopConfig struct {
	Meter     *meter.Client
	Battery   inverter.Adapter
	Publisher *mqtt.Publisher
	Optimiser Optimiser
	Envelope  config.SafetyEnvelope
	Interval  time.Duration
}

func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		meter:     cfg.Meter,
		battery:   cfg.Battery,
		publisher: cfg.Publisher,
		optimiser: cfg.Optimiser,
		envelope:  cfg.Envelope,
		interval:  cfg.Interval,
	}
}

// Start runs cycles until the context is cancelled. The meter and battery
// fetches stay sequential so any dispatch decision sees a battery reading
// no older than the same cycle's meter reading.
func (l *Loop) Start(ctx context.Context) error {
	log := logging.Ctx(ctx)

	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	log.Info("reconciliation loop starting", "interval", l.interval,
		"usable_capacity_kwh", l.envelope.UsableCapacityKWh())

	// The device's own limits are read once; they are logged against the
	// operator envelope but never reconciled automatically.
	limits := l.battery.ReadLimits(ctx)
	log.Info("inverter static limits",
		"device_rated_kwh", limits.RatedCapacityKWh,
		"device_soc_band", [2]float64{limits.MinSOCPercent, limits.MaxSOCPercent},
		"device_max_charge_w", limits.MaxChargePowerW,
		"device_max_discharge_w", limits.MaxDischargePowerW,
		"envelope_rated_kwh", l.envelope.RatedCapacityKWh,
		"envelope_soc_band", [2]float64{l.envelope.MinSOCPercent, l.envelope.MaxSOCPercent})

	for {
		if ctx.Err() != nil {
			log.Info("reconciliation loop stopped")
			return nil
		}

		start := time.Now()
		l.runCycle(ctx, start)

		elapsed := time.Since(start)
		if elapsed < l.interval {
			log.Debug("cycle done, sleeping", "elapsed", elapsed, "sleep", l.interval-elapsed)
			select {
			case <-ctx.Done():
				log.Info("reconciliation loop stopped")
				return nil
			case <-time.After(l.interval - elapsed):
			}
		} else {
			// Cadence drifts under sustained overrun rather than
			// accumulating a sleep debt.
			log.Warn("cycle overran interval, starting next immediately",
				"elapsed", elapsed, "interval", l.interval)
			l.mu.Lock()
			l.state.Overrun = true
			l.state.Overruns++
			l.mu.Unlock()
		}
	}
}

func (l *Loop) runCycle(ctx context.Context, start time.Time) {
	log := logging.Ctx(ctx)

	reading, err := l.meter.Fetch(ctx)
	if err != nil {
		// A lost meter reading degrades the cycle; it never aborts it.
		log.Error("meter fetch failed, continuing without reading", "error", err)
		reading = nil
	}

	snap := l.battery.ReadSnapshot(ctx)

	l.mu.RLock()
	cycles := l.state.Cycles + 1
	overruns := l.state.Overruns
	l.mu.RUnlock()

	state := CycleState{
		CycleStart: start,
		Meter:      reading,
		Battery:    snap,
		Cycles:     cycles,
		Overruns:   overruns,
	}

	if reading != nil {
		rec := &Reconciliation{
			MeterPowerW:         int(reading.Data.ActivePowerW),
			InverterMeterPowerW: snap.MeterPowerW,
		}
		rec.DiffW = rec.MeterPowerW - rec.InverterMeterPowerW
		state.Reconciliation = rec

		log.Info("cycle reconciled",
			"p1_power_w", rec.MeterPowerW,
			"inverter_meter_w", rec.InverterMeterPowerW,
			"diff_w", rec.DiffW,
			"battery_soc", snap.BatterySOC,
			"battery_state", snap.BatteryState,
			"working_mode", snap.WorkingMode,
			"battery_power_w", snap.BatteryPowerW)
	} else {
		log.Warn("degraded cycle: no meter reading")
	}

	log.Debug("battery telemetry",
		"dc1_w", snap.DCInputPower1W, "dc2_w", snap.DCInputPower2W,
		"ac_out_w", snap.TotalACOutputPowerW, "ac_in_w", snap.TotalACInputPowerW,
		"daily_production_kwh", snap.DailyProductionKWh,
		"daily_charging_kwh", snap.DailyChargingKWh,
		"daily_discharging_kwh", snap.DailyDischargingKWh)

	state.CycleDuration = time.Since(start)

	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	if l.publisher != nil {
		if err := l.publisher.PublishSnapshot(snap); err != nil {
			log.Warn("mqtt snapshot publish failed", "error", err)
		}
		if err := l.publisher.PublishMeter(reading); err != nil {
			log.Warn("mqtt meter publish failed", "error", err)
		}
	}

	if l.optimiser != nil && reading != nil {
		for _, intent := range l.optimiser.Decide(reading, snap, l.envelope) {
			if err := l.battery.Send(ctx, intent); err != nil {
				// Dispatch failures are reported, never retried.
				log.Error("control dispatch failed", "error", err)
			}
		}
	}
}

// State returns the most recent cycle outcome.
func (l *Loop) State() CycleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// Stop releases held connections. The loop itself stops via its context.
func (l *Loop) Stop() {
	if l.publisher != nil {
		l.publisher.Close()
	}
}
