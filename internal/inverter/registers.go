package inverter

// Indevolt sensor catalogue. The same logical values are addressed by string
// key on the per-key firmware generation and by numeric sensor ID on the
// batched RPC generation. Neither API is discoverable at runtime; both
// tables are fixed here.

// Sensor keys (per-key firmware, GET /device/sensor?key=<KEY>)
const (
	KeySOC                  = "BatterySOC"
	KeyBatteryState         = "BatteryState"
	KeyWorkingMode          = "WorkingMode"
	KeyBatteryPower         = "BatteryPower"
	KeyDCInputPower1        = "DCInputPower1"
	KeyDCInputPower2        = "DCInputPower2"
	KeyTotalDCOutputPower   = "TotalDCOutputPower"
	KeyTotalACOutputPower   = "TotalACOutputPower"
	KeyTotalACInputPower    = "TotalACInputPower"
	KeyMeterPower           = "MeterPower"
	KeyDailyProduction      = "DailyProduction"
	KeyCumulativeProduction = "CumulativeProduction"
	KeyDailyCharging        = "DailyCharging"
	KeyDailyDischarging     = "DailyDischarging"
	KeyTotalCharging        = "TotalCharging"
	KeyTotalDischarging     = "TotalDischarging"
	KeyTotalACInputEnergy   = "TotalACInputEnergy"

	KeyRatedCapacity     = "RatedCapacity"
	KeyMinSOC            = "MinSOC"
	KeyMaxSOC            = "MaxSOC"
	KeyMaxChargePower    = "MaxChargePower"
	KeyMaxDischargePower = "MaxDischargePower"
)

// All snapshot keys batched together for one poll cycle.
var snapshotKeys = []string{
	KeySOC, KeyBatteryState, KeyWorkingMode,
	KeyBatteryPower, KeyDCInputPower1, KeyDCInputPower2,
	KeyTotalDCOutputPower, KeyTotalACOutputPower, KeyTotalACInputPower,
	KeyMeterPower, KeyDailyProduction, KeyCumulativeProduction,
	KeyDailyCharging, KeyDailyDischarging,
	KeyTotalCharging, KeyTotalDischarging, KeyTotalACInputEnergy,
}

var limitKeys = []string{
	KeyRatedCapacity, KeyMinSOC, KeyMaxSOC,
	KeyMaxChargePower, KeyMaxDischargePower,
}

// Numeric sensor IDs (batched firmware, GET /rpc/Indevolt.GetData)
const (
	IDSOC                  = 20481
	IDBatteryState         = 20482
	IDWorkingMode          = 20483
	IDBatteryPower         = 20484
	IDDCInputPower1        = 20485
	IDDCInputPower2        = 20486
	IDTotalDCOutputPower   = 20487
	IDTotalACOutputPower   = 20488
	IDTotalACInputPower    = 20489
	IDMeterPower           = 20490
	IDDailyProduction      = 20497
	IDCumulativeProduction = 20498
	IDDailyCharging        = 20499
	IDDailyDischarging     = 20500
	IDTotalCharging        = 20501
	IDTotalDischarging     = 20502
	IDTotalACInputEnergy   = 20503

	IDRatedCapacity     = 20513
	IDMinSOC            = 20514
	IDMaxSOC            = 20515
	IDMaxChargePower    = 20516
	IDMaxDischargePower = 20517
)

var snapshotIDs = []int{
	IDSOC, IDBatteryState, IDWorkingMode,
	IDBatteryPower, IDDCInputPower1, IDDCInputPower2,
	IDTotalDCOutputPower, IDTotalACOutputPower, IDTotalACInputPower,
	IDMeterPower, IDDailyProduction, IDCumulativeProduction,
	IDDailyCharging, IDDailyDischarging,
	IDTotalCharging, IDTotalDischarging, IDTotalACInputEnergy,
}

var limitIDs = []int{
	IDRatedCapacity, IDMinSOC, IDMaxSOC,
	IDMaxChargePower, IDMaxDischargePower,
}

// Writable registers (GET /rpc/Indevolt.SetData)
const (
	RegWorkingMode     = 47005 // working mode (1=Self-consumed, 4=Realtime, 5=Schedule)
	RegRealtimeControl = 47015 // real-time charge/discharge commands
	FuncWriteMultiple  = 16    // Modbus function 16 (write multiple registers)
)

// v[0] action codes for RegRealtimeControl
const (
	rpcActionStop      = 0
	rpcActionCharge    = 1
	rpcActionDischarge = 2
)

// Working-mode register values
const (
	modeCodeSelfConsumed = 1
	modeCodeRealtime     = 4
	modeCodeSchedule     = 5
)

// Battery state codes reported by the batched API
const (
	StateCodeStatic      = 1000
	StateCodeCharging    = 1001
	StateCodeDischarging = 1002
)

// The batched API reports cumulative production as a raw counter in Wh;
// scale before treating the value as kWh.
const cumulativeProductionScale = 0.001
