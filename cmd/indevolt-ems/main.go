package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"indevolt-ems/config"
	"indevolt-ems/internal/api"
	"indevolt-ems/internal/ems"
	"indevolt-ems/internal/inverter"
	"indevolt-ems/internal/logging"
	"indevolt-ems/internal/meter"
	"indevolt-ems/internal/metrics"
	"indevolt-ems/internal/mqtt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "indevolt-ems",
		Short: "Home energy management node",
		Long:  "Polls a HomeWizard P1 meter and an Indevolt PowerFlex inverter and reconciles the two readings each cycle",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(controlCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *meter.Client, inverter.Adapter, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.SetLevel(cfg.Log.Level)

	meterClient, err := meter.NewClient(cfg.Meter)
	if err != nil {
		return nil, nil, nil, err
	}
	adapter, err := inverter.New(cfg.Inverter)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, meterClient, adapter, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the reconciliation loop",
		Long:  "Start the reconciliation loop, the status API, and the MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meterClient, adapter, err := setup()
			if err != nil {
				return err
			}

			publisher, err := mqtt.NewPublisher(cfg.MQTT)
			if err != nil {
				slog.Warn("mqtt connection failed, continuing without publisher", "error", err)
				publisher = nil
			} else if cfg.MQTT.Enabled {
				slog.Info("mqtt connected", "broker", cfg.MQTT.Broker)
			}

			loop := ems.NewLoop(ems.LoopConfig{
				Meter:     meterClient,
				Battery:   adapter,
				Publisher: publisher,
				Envelope:  cfg.Battery,
				Interval:  cfg.Loop.Interval,
			})

			prometheus.MustRegister(metrics.NewCollector(loop))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := loop.Start(ctx); err != nil {
					slog.Error("loop error", "error", err)
				}
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port: cfg.API.Port,
					Loop: loop,
				})
				go func() {
					if err := server.Start(); err != nil {
						slog.Error("api server error", "error", err)
					}
				}()
			}

			slog.Info("energy management system started",
				"p1_url", cfg.Meter.URL,
				"inverter_url", cfg.Inverter.URL,
				"protocol", cfg.Inverter.Protocol,
				"interval", cfg.Loop.Interval)

			<-sigChan
			slog.Info("shutting down")
			cancel()
			if server != nil {
				_ = server.Shutdown()
			}
			loop.Stop()

			return nil
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read both devices once",
		Long:  "Fetch one meter reading and one battery snapshot and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, meterClient, adapter, err := setup()
			if err != nil {
				return err
			}
			ctx := context.Background()

			out := struct {
				Meter        *meter.Reading            `json:"meter,omitempty"`
				MeterError   string                    `json:"meter_error,omitempty"`
				Battery      *inverter.BatterySnapshot `json:"battery"`
				StaticLimits *inverter.StaticLimits    `json:"static_limits"`
			}{}

			reading, err := meterClient.Fetch(ctx)
			if err != nil {
				out.MeterError = err.Error()
			} else {
				out.Meter = reading
			}
			out.Battery = adapter.ReadSnapshot(ctx)
			out.StaticLimits = adapter.ReadLimits(ctx)

			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))

			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity to both devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meterClient, adapter, err := setup()
			if err != nil {
				return err
			}
			ctx := context.Background()

			fmt.Printf("Testing P1 meter at %s...\n", cfg.Meter.URL)
			if _, err := meterClient.Fetch(ctx); err != nil {
				fmt.Printf("P1 meter FAILED: %v\n", err)
				return err
			}
			fmt.Println("P1 meter SUCCESS!")

			fmt.Printf("Testing inverter at %s (%s protocol)...\n", cfg.Inverter.URL, cfg.Inverter.Protocol)
			snap := adapter.ReadSnapshot(ctx)
			fmt.Println("Inverter polled.")
			fmt.Printf("  SOC:          %.1f%%\n", snap.BatterySOC)
			fmt.Printf("  State:        %s\n", snap.BatteryState)
			fmt.Printf("  Working mode: %s\n", snap.WorkingMode)
			fmt.Printf("  Power:        %+d W\n", snap.BatteryPowerW)
			fmt.Printf("  Grid meter:   %+d W\n", snap.MeterPowerW)

			return nil
		},
	}
}

func controlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Send a one-off control command to the inverter",
	}
	cmd.AddCommand(controlModeCmd())
	cmd.AddCommand(controlPowerCmd("charge"))
	cmd.AddCommand(controlPowerCmd("discharge"))
	cmd.AddCommand(controlStopCmd())
	return cmd
}

func controlModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode {self|realtime|schedule}",
		Short: "Set the inverter working mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode inverter.WorkingMode
			switch args[0] {
			case "self":
				mode = inverter.ModeSelfConsumedPrioritized
			case "realtime":
				mode = inverter.ModeRealtimeControl
			case "schedule":
				mode = inverter.ModeSchedule
			default:
				return fmt.Errorf("unknown mode %q (want self, realtime, or schedule)", args[0])
			}

			_, _, adapter, err := setup()
			if err != nil {
				return err
			}
			return adapter.Send(context.Background(), inverter.SetMode(mode))
		},
	}
}

func controlPowerCmd(direction string) *cobra.Command {
	var socLimit int
	short := "Charge the battery at the given power (W)"
	defaultLimit := 100
	if direction == "discharge" {
		short = "Discharge the battery at the given power (W)"
		defaultLimit = 10
	}
	cmd := &cobra.Command{
		Use:   direction + " <watts>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watts, err := strconv.Atoi(args[0])
			if err != nil || watts < 0 {
				return fmt.Errorf("invalid power %q", args[0])
			}

			cfg, _, adapter, err := setup()
			if err != nil {
				return err
			}
			if direction == "charge" && watts > cfg.Battery.MaxChargePowerW {
				return fmt.Errorf("%d W exceeds configured max charge power %d W", watts, cfg.Battery.MaxChargePowerW)
			}
			if direction == "discharge" && watts > cfg.Battery.MaxDischargePowerW {
				return fmt.Errorf("%d W exceeds configured max discharge power %d W", watts, cfg.Battery.MaxDischargePowerW)
			}

			ctx := context.Background()
			// The device only honors charge/discharge commands in real-time
			// control mode.
			if err := adapter.Send(ctx, inverter.SetMode(inverter.ModeRealtimeControl)); err != nil {
				return err
			}
			intent := inverter.Charge(watts, socLimit)
			if direction == "discharge" {
				intent = inverter.Discharge(watts, socLimit)
			}
			return adapter.Send(ctx, intent)
		},
	}
	cmd.Flags().IntVar(&socLimit, "soc-limit", defaultLimit, "SOC ceiling (charge) or floor (discharge) in percent")
	return cmd
}

func controlStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop real-time charge/discharge (standby)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, adapter, err := setup()
			if err != nil {
				return err
			}
			return adapter.Send(context.Background(), inverter.Stop())
		},
	}
}
