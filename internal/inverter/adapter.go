package inverter

import (
	"fmt"

	"indevolt-ems/config"
)

// New selects the protocol variant for the configured firmware generation.
// The selection is static; the two generations are not self-describing, so
// no auto-detection is attempted.
func New(cfg config.InverterConfig) (Adapter, error) {
	switch cfg.Protocol {
	case "sensor":
		return NewSensorAdapter(cfg), nil
	case "rpc":
		return NewRPCAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown inverter protocol %q (want \"sensor\" or \"rpc\")", cfg.Protocol)
	}
}
