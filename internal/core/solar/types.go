package solar

import (
	"context"
	"time"
)

// Anomaly ceilings for delta tracking. A single update larger than the
// ceiling is treated as a spurious absolute-value injection, not real energy.
const (
	MaxEnergyDeltaKWh   = 50.0
	MaxHeatPumpDeltaKWh = 200.0

	// Restored heat-pump totals above this are discarded as corrupted
	// (an absolute meter reading stored where a delta total belongs).
	heatPumpRestoreCeilingKWh = 50000.0
)

// CO2FactorGrid is the grid-mix emission factor in kg CO2 per kWh used for
// the lifetime CO2-saved figure.
const CO2FactorGrid = 0.4

// Calendar approximations used for savings extrapolation. Deliberately not
// calendar-accurate; the derived figures are estimates.
const (
	daysPerMonth = 30.44
	daysPerYear  = 365.0
)

// quotaDaysTotal is the length of a quota period in days.
const quotaDaysTotal = 365

// Price units accepted in configuration.
const (
	PriceUnitEUR  = "eur"
	PriceUnitCent = "cent"
)

// benchmarkConsumption holds average yearly household consumption WITHOUT a
// heat pump, in kWh, per country and household size (1-6 persons).
var benchmarkConsumption = map[string]map[int]int{
	"AT": {1: 2200, 2: 3500, 3: 4000, 4: 4500, 5: 5500, 6: 6500},
	"DE": {1: 2000, 2: 3200, 3: 3900, 4: 4400, 5: 5400, 6: 6300},
	"CH": {1: 2500, 2: 3800, 3: 4400, 4: 5000, 5: 6000, 6: 7000},
}

// benchmarkHeatPumpConsumption is the average yearly heat-pump consumption in
// kWh for a single-family house, per country.
var benchmarkHeatPumpConsumption = map[string]int{
	"AT": 4000,
	"DE": 4500,
	"CH": 3500,
}

// benchmarkCO2Factors is the grid-mix emission factor in kg CO2/kWh per country.
var benchmarkCO2Factors = map[string]float64{
	"AT": 0.150,
	"DE": 0.380,
	"CH": 0.030,
}

// StateReader supplies the current numeric value of a host entity.
// Unavailable, unknown, missing and non-numeric states are indistinguishable:
// all return ok=false.
type StateReader interface {
	GetNumericState(ctx context.Context, entityID string) (float64, bool)
}

// EventFirer emits a named event with a payload on the host's event bus.
// Delivery is best-effort; a failed emission is not retried.
type EventFirer interface {
	FireEvent(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// Listener is notified after every committed accounting update so
// presentation surfaces can re-render.
type Listener func()

// Reading tracks the last observed absolute cumulative value of one channel.
type Reading struct {
	Value float64
	Seen  bool
}

// accumulators is the persisted system of record. Lifetime fields only ever
// grow; windowed fields are zeroed lazily when their tag no longer matches
// the host clock.
type accumulators struct {
	// Lifetime
	TotalSelfConsumptionKWh float64
	TotalFeedInKWh          float64
	AccumulatedSavingsSelf  float64
	AccumulatedEarningsFeed float64
	FirstSeenDate           time.Time

	// Grid-import cost tracking for the consumption-weighted average price
	TrackedGridImportKWh float64
	TotalGridImportCost  float64

	// Daily window, tagged with the date it covers
	DailyGridImportKWh  float64
	DailyGridImportCost float64
	DailyFeedInKWh      float64
	DailyFeedInEarnings float64
	DailyDate           time.Time

	// Monthly window, keyed by (year, month)
	MonthlyGridImportKWh  float64
	MonthlyGridImportCost float64
	MonthlyYear           int
	MonthlyMonth          time.Month

	// Grid-import meter reading captured at the start of today, for a
	// restart-proof "consumed today" figure
	QuotaDayStartMeter float64
	QuotaDayStartDate  time.Time

	// Heat pump
	TrackedHeatPumpKWh    float64
	HeatPumpFirstSeenDate time.Time

	// Per-string tracking, keyed by energy/power entity id
	StringTrackedKWh    map[string]float64
	StringFirstSeenDate time.Time
	StringPeakW         map[string]float64
	StringDailyPeakW    map[string]float64
	StringDailyPeakDate time.Time
}

func newAccumulators() accumulators {
	return accumulators{
		StringTrackedKWh: make(map[string]float64),
		StringPeakW:      make(map[string]float64),
		StringDailyPeakW: make(map[string]float64),
	}
}

// sameDay reports whether two timestamps fall on the same calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dateOnly truncates a timestamp to midnight local time.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
