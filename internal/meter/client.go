package meter

import (
	"context"
	"fmt"
	"time"

	"indevolt-ems/config"
	"indevolt-ems/internal/httpclient"
	"indevolt-ems/internal/logging"
)

// Client fetches readings from the P1 meter's local API.
type Client struct {
	http *httpclient.Client
	url  string
	loc  *time.Location
}

func NewClient(cfg config.MeterConfig) (*Client, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("meter timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Client{
		http: httpclient.New(cfg.Timeout),
		url:  cfg.URL,
		loc:  loc,
	}, nil
}

// Fetch performs one GET against the meter and resolves the two compact
// timestamps. A transport, status, or decode failure loses the whole
// reading; an unresolvable timestamp only loses that one field, which falls
// back to the current wall clock and is noted on the Reading.
func (c *Client) Fetch(ctx context.Context) (*Reading, error) {
	var data Data
	if err := c.http.GetJSON(ctx, c.url, &data); err != nil {
		return nil, fmt.Errorf("meter: %w", err)
	}

	r := &Reading{Data: data}
	r.MonthlyPowerPeakTime = c.resolveTimestamp(ctx, r, "montly_power_peak_timestamp", string(data.MonthlyPowerPeakTimeRaw))
	r.GasTime = c.resolveTimestamp(ctx, r, "gas_timestamp", string(data.GasTimeRaw))
	return r, nil
}

func (c *Client) resolveTimestamp(ctx context.Context, r *Reading, field, raw string) time.Time {
	t, err := ParseTimestamp(raw, c.loc)
	if err != nil {
		logging.Ctx(ctx).Warn("meter timestamp unusable, substituting current time",
			"field", field, "error", err)
		r.TimestampFallbacks = append(r.TimestampFallbacks, field)
		return time.Now().UTC()
	}
	return t
}
