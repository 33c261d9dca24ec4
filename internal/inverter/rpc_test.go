package inverter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"indevolt-ems/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcValues is what a healthy batched device reports, keyed by sensor ID.
var rpcValues = map[int]float64{
	IDSOC:                  57.5,
	IDBatteryState:         1002,
	IDWorkingMode:          4,
	IDBatteryPower:         -1450,
	IDDCInputPower1:        0,
	IDDCInputPower2:        0,
	IDTotalDCOutputPower:   0,
	IDTotalACOutputPower:   1430,
	IDTotalACInputPower:    0,
	IDMeterPower:           310,
	IDDailyProduction:      7.4,
	IDCumulativeProduction: 12345, // raw counter; snapshot must apply x0.001
	IDDailyCharging:        5.1,
	IDDailyDischarging:     3.9,
	IDTotalCharging:        890,
	IDTotalDischarging:     770.5,
	IDTotalACInputEnergy:   512.3,

	IDRatedCapacity:     12,
	IDMinSOC:            10,
	IDMaxSOC:            100,
	IDMaxChargePower:    2400,
	IDMaxDischargePower: 2400,
}

func rpcServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rpc/Indevolt.GetData", r.URL.Path)

		var query rpcReadConfig
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("config")), &query))
		require.NotEmpty(t, query.T)

		resp := make(map[string]float64, len(query.T))
		for _, id := range query.T {
			if v, ok := rpcValues[id]; ok {
				resp[fmt.Sprint(id)] = v
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newRPCAdapter(url string) *RPCAdapter {
	return NewRPCAdapter(config.InverterConfig{
		URL:     url,
		Model:   "PowerFlex2000",
		Timeout: 2 * time.Second,
	})
}

func TestRPCReadSnapshot(t *testing.T) {
	t.Run("DecodesBatchedResponse", func(t *testing.T) {
		ts := rpcServer(t)
		defer ts.Close()

		snap := newRPCAdapter(ts.URL).ReadSnapshot(context.Background())

		assert.Equal(t, 57.5, snap.BatterySOC)
		assert.Equal(t, StateDischarging, snap.BatteryState)
		assert.Equal(t, ModeRealtimeControl, snap.WorkingMode)
		assert.Equal(t, -1450, snap.BatteryPowerW)
		assert.Equal(t, 310, snap.MeterPowerW)
		assert.Equal(t, 7.4, snap.DailyProductionKWh)
		assert.InDelta(t, 12.345, snap.CumulativeProductionKWh, 1e-9,
			"raw cumulative production counter must be scaled to kWh")
	})

	t.Run("TransportFailureZeroesEverything", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rebooting", http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		snap := newRPCAdapter(ts.URL).ReadSnapshot(context.Background())

		// No partial success exists in this variant: every numeric field is
		// zero and the enumerations decode their zero code.
		assert.Zero(t, snap.BatterySOC)
		assert.Equal(t, BatteryState("Unknown(0)"), snap.BatteryState)
		assert.Equal(t, WorkingMode("Mode(0)"), snap.WorkingMode)
		assert.Zero(t, snap.BatteryPowerW)
		assert.Zero(t, snap.MeterPowerW)
		assert.Zero(t, snap.CumulativeProductionKWh)
	})

	t.Run("MalformedBodyZeroesEverything", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"20481": "not a number"}`))
		}))
		defer ts.Close()

		snap := newRPCAdapter(ts.URL).ReadSnapshot(context.Background())
		assert.Zero(t, snap.BatterySOC)
		assert.Equal(t, BatteryState("Unknown(0)"), snap.BatteryState)
	})
}

func TestRPCReadLimits(t *testing.T) {
	ts := rpcServer(t)
	defer ts.Close()

	limits := newRPCAdapter(ts.URL).ReadLimits(context.Background())

	assert.Equal(t, 12.0, limits.RatedCapacityKWh)
	assert.Equal(t, 10.0, limits.MinSOCPercent)
	assert.Equal(t, 100.0, limits.MaxSOCPercent)
	assert.Equal(t, 2400, limits.MaxChargePowerW)
	assert.Equal(t, 2400, limits.MaxDischargePowerW)
}

func TestRPCSend(t *testing.T) {
	t.Run("EncodesRegisterWrites", func(t *testing.T) {
		var got rpcWriteConfig
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/rpc/Indevolt.SetData", r.URL.Path)
			require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("config")), &got))
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		adapter := newRPCAdapter(ts.URL)
		ctx := context.Background()

		require.NoError(t, adapter.Send(ctx, SetMode(ModeRealtimeControl)))
		assert.Equal(t, rpcWriteConfig{F: 16, T: RegWorkingMode, V: []int64{4}}, got)

		require.NoError(t, adapter.Send(ctx, Charge(2000, 95)))
		assert.Equal(t, rpcWriteConfig{F: 16, T: RegRealtimeControl, V: []int64{1, 2000, 95}}, got)

		require.NoError(t, adapter.Send(ctx, Discharge(1200, 15)))
		assert.Equal(t, rpcWriteConfig{F: 16, T: RegRealtimeControl, V: []int64{2, 1200, 15}}, got)

		require.NoError(t, adapter.Send(ctx, Stop()))
		assert.Equal(t, rpcWriteConfig{F: 16, T: RegRealtimeControl, V: []int64{0, 0, 0}}, got)
	})

	t.Run("UnencodableMode", func(t *testing.T) {
		adapter := newRPCAdapter("http://127.0.0.1:1")
		err := adapter.Send(context.Background(), SetMode(ModeManual))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no register encoding")
	})

	t.Run("RejectionCarriesCommand", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad register", http.StatusBadRequest)
		}))
		defer ts.Close()

		err := newRPCAdapter(ts.URL).Send(context.Background(), Stop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stop")
		assert.Contains(t, err.Error(), "bad register")
	})
}
