package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"indevolt-ems/config"
	"indevolt-ems/internal/inverter"
	"indevolt-ems/internal/meter"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes each cycle's readings to an MQTT broker. A disabled
// publisher is a no-op so callers never need to branch.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			slog.Info("mqtt connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// PublishSnapshot publishes per-field topics plus the full snapshot as a
// retained JSON status message.
func (p *Publisher) PublishSnapshot(snap *inverter.BatterySnapshot) error {
	if !p.enabled || snap == nil {
		return nil
	}

	topics := map[string]interface{}{
		"battery_soc":           snap.BatterySOC,
		"battery_state":         snap.BatteryState,
		"working_mode":          snap.WorkingMode,
		"battery_power":         snap.BatteryPowerW,
		"meter_power":           snap.MeterPowerW,
		"daily_production":      snap.DailyProductionKWh,
		"cumulative_production": snap.CumulativeProductionKWh,
		"daily_charging":        snap.DailyChargingKWh,
		"daily_discharging":     snap.DailyDischargingKWh,
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/%s/%s", p.topicPrefix, snap.DeviceModel, name)
		payload := fmt.Sprintf("%v", value)
		token := p.client.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			slog.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
		}
	}

	statusJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	statusTopic := fmt.Sprintf("%s/%s/status", p.topicPrefix, snap.DeviceModel)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish snapshot status: %w", token.Error())
	}
	return nil
}

// PublishMeter publishes the grid meter's headline numbers plus the full
// reading as retained JSON.
func (p *Publisher) PublishMeter(r *meter.Reading) error {
	if !p.enabled || r == nil {
		return nil
	}

	topics := map[string]interface{}{
		"active_power":       r.Data.ActivePowerW,
		"active_tariff":      r.Data.ActiveTariff,
		"total_power_import": r.Data.TotalPowerImportKWh,
		"total_power_export": r.Data.TotalPowerExportKWh,
	}
	for name, value := range topics {
		topic := fmt.Sprintf("%s/p1/%s", p.topicPrefix, name)
		token := p.client.Publish(topic, 0, false, fmt.Sprintf("%v", value))
		token.Wait()
		if token.Error() != nil {
			slog.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
		}
	}

	statusJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal meter reading: %w", err)
	}
	token := p.client.Publish(p.topicPrefix+"/p1/status", 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish meter status: %w", token.Error())
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
