package solar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory SnapshotRepository.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (s *memStore) Load(_ context.Context, instance string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, v := range s.data[instance] {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, instance string, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	s.data[instance] = cp
	return nil
}

func (s *memStore) Delete(_ context.Context, instance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, instance)
	return nil
}

func testSolarConfig() config.SolarConfig {
	return config.SolarConfig{
		Instance: "default",
		Entities: config.EntitiesConfig{
			PVProduction: "sensor.pv_total",
			GridExport:   "sensor.export_total",
			GridImport:   "sensor.import_total",
			Consumption:  "sensor.consumption_total",
		},
		Prices: config.PricesConfig{
			ImportPrice:      0.125,
			ImportPriceUnit:  PriceUnitEUR,
			FeedInTariff:     0.08,
			FeedInTariffUnit: PriceUnitEUR,
			MarkupFactor:     2.0, // gross import price 0.25
		},
		Installation: config.InstallationConfig{Cost: 10000},
	}
}

func newTestEngine(cfg config.SolarConfig, reader *fakeReader) (*Engine, *fakeFirer) {
	log := testLogger()
	firer := &fakeFirer{}
	prices := NewPriceResolver(cfg.Prices, reader, log)
	gate := NewNotificationGate(cfg.Instance, firer, nil, log)
	e := NewEngine(cfg, reader, prices, gate, newMemStore(), log)
	e.now = func() time.Time {
		return time.Date(2025, time.June, 10, 12, 0, 0, 0, time.Local)
	}
	return e, firer
}

// commitReadings injects one combined update of the three main channels so a
// single accounting commit sees all deltas together.
func commitReadings(e *Engine, pv, export, imp float64) {
	e.mu.Lock()
	e.currentPV = Reading{Value: pv, Seen: true}
	e.currentExport = Reading{Value: export, Seen: true}
	e.currentImport = Reading{Value: imp, Seen: true}
	e.applyEnergyUpdateLocked()
	e.mu.Unlock()
	e.afterUpdate()
}

func TestBasicAccountingScenario(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})

	// Establish baselines.
	e.pvTracker.Rebase(100)
	e.exportTracker.Rebase(50)
	e.importTracker.Rebase(10)

	// PV +10, export +3, import +0 at gross 0.25 and tariff 0.08.
	commitReadings(e, 110, 53, 10)

	r := e.Report(context.Background())
	assert.InDelta(t, 7.0, e.acc.TotalSelfConsumptionKWh, 1e-9)
	assert.InDelta(t, 3.0, e.acc.TotalFeedInKWh, 1e-9)
	assert.InDelta(t, 1.75, r.Amortisation.SavingsSelf, 1e-9)
	assert.InDelta(t, 0.24, r.Amortisation.EarningsFeedIn, 1e-9)
	assert.InDelta(t, 1.99, r.Amortisation.TotalSavings, 1e-9)
}

func TestImportDeltaBooksCostInAllWindows(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.pvTracker.Rebase(100)
	e.exportTracker.Rebase(50)
	e.importTracker.Rebase(10)

	commitReadings(e, 100, 50, 14) // import +4 at gross 0.25 = 1.00 EUR

	assert.InDelta(t, 4.0, e.acc.TrackedGridImportKWh, 1e-9)
	assert.InDelta(t, 1.0, e.acc.TotalGridImportCost, 1e-9)
	assert.InDelta(t, 4.0, e.acc.DailyGridImportKWh, 1e-9)
	assert.InDelta(t, 4.0, e.acc.MonthlyGridImportKWh, 1e-9)
	assert.InDelta(t, 1.0, e.acc.MonthlyGridImportCost, 1e-9)
}

func TestCounterResetDoesNotCorruptTotals(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})

	e.HandleStateChange("sensor.pv_total", 500.0) // baseline
	before := e.acc.TotalSelfConsumptionKWh

	// Device replaced, counter restarts near zero.
	e.HandleStateChange("sensor.pv_total", 0.3)
	assert.Equal(t, before, e.acc.TotalSelfConsumptionKWh)

	// Production resumes from the new baseline.
	e.HandleStateChange("sensor.pv_total", 2.3)
	assert.InDelta(t, 2.0, e.acc.TotalSelfConsumptionKWh, 1e-9)
}

func TestDayRolloverZeroesDailyWindowBeforeApplying(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.importTracker.Rebase(100)
	e.pvTracker.Rebase(0)
	e.exportTracker.Rebase(0)

	day1 := time.Date(2025, time.June, 10, 20, 0, 0, 0, time.Local)
	day2 := time.Date(2025, time.June, 11, 8, 0, 0, 0, time.Local)

	e.now = func() time.Time { return day1 }
	commitReadings(e, 0, 0, 105) // +5 kWh on day 1
	assert.InDelta(t, 5.0, e.acc.DailyGridImportKWh, 1e-9)

	e.now = func() time.Time { return day2 }
	commitReadings(e, 0, 0, 107) // +2 kWh on day 2

	assert.InDelta(t, 2.0, e.acc.DailyGridImportKWh, 1e-9)
	assert.InDelta(t, 7.0, e.acc.TrackedGridImportKWh, 1e-9)
	assert.True(t, sameDay(e.acc.DailyDate, day2))

	// The day-2 start meter was captured before the delta applied.
	assert.InDelta(t, 105.0, e.acc.QuotaDayStartMeter, 1e-9)
	assert.True(t, sameDay(e.acc.QuotaDayStartDate, day2))
}

func TestMonthRolloverKeyedByYearAndMonth(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.importTracker.Rebase(0)
	e.pvTracker.Rebase(0)
	e.exportTracker.Rebase(0)

	jan2025 := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return jan2025 }
	commitReadings(e, 0, 0, 10)
	require.InDelta(t, 10.0, e.acc.MonthlyGridImportKWh, 1e-9)

	// Same month number, next year: the window must still roll over.
	jan2026 := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return jan2026 }
	commitReadings(e, 0, 0, 13)

	assert.InDelta(t, 3.0, e.acc.MonthlyGridImportKWh, 1e-9)
	assert.Equal(t, 2026, e.acc.MonthlyYear)
	assert.Equal(t, time.January, e.acc.MonthlyMonth)
	assert.InDelta(t, 13.0, e.acc.TrackedGridImportKWh, 1e-9)
}

func TestBootstrapFromSensorTotals(t *testing.T) {
	reader := &fakeReader{}
	reader.set("sensor.pv_total", 1000.0)
	reader.set("sensor.export_total", 200.0)

	e, _ := newTestEngine(testSolarConfig(), reader)
	e.primeReadings(context.Background())
	e.maybeBootstrap(context.Background())

	assert.InDelta(t, 800.0, e.acc.TotalSelfConsumptionKWh, 1e-9)
	assert.InDelta(t, 200.0, e.acc.TotalFeedInKWh, 1e-9)
	assert.InDelta(t, 200.0, e.acc.AccumulatedSavingsSelf, 1e-9)  // 800 × 0.25
	assert.InDelta(t, 16.0, e.acc.AccumulatedEarningsFeed, 1e-9) // 200 × 0.08
	assert.False(t, e.acc.FirstSeenDate.IsZero())
}

func TestBootstrapSkippedAfterRestore(t *testing.T) {
	reader := &fakeReader{}
	reader.set("sensor.pv_total", 1000.0)

	e, _ := newTestEngine(testSolarConfig(), reader)
	e.primeReadings(context.Background())
	e.restored = true

	e.maybeBootstrap(context.Background())
	assert.Equal(t, 0.0, e.acc.TotalSelfConsumptionKWh)
}

func TestBootstrapWithoutHistoricalData(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.maybeBootstrap(context.Background())
	assert.Equal(t, 0.0, e.acc.TotalSelfConsumptionKWh)
	assert.Equal(t, 0.0, e.acc.AccumulatedSavingsSelf)
}

func TestResetGridImportTrackingLeavesSavingsAlone(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.pvTracker.Rebase(0)
	e.exportTracker.Rebase(0)
	e.importTracker.Rebase(0)
	commitReadings(e, 10, 2, 5)
	require.Greater(t, e.acc.TotalGridImportCost, 0.0)
	savings := e.acc.AccumulatedSavingsSelf

	e.ResetGridImportTracking()

	assert.Equal(t, 0.0, e.acc.TrackedGridImportKWh)
	assert.Equal(t, 0.0, e.acc.TotalGridImportCost)
	assert.Equal(t, 0.0, e.acc.DailyGridImportKWh)
	assert.Equal(t, 0.0, e.acc.MonthlyGridImportKWh)
	assert.Equal(t, savings, e.acc.AccumulatedSavingsSelf)

	// Baseline rebased to the current meter: no phantom delta afterwards.
	e.HandleStateChange("sensor.import_total", 5.0)
	assert.Equal(t, 0.0, e.acc.TrackedGridImportKWh)
}

func TestResetBenchmarkTracking(t *testing.T) {
	cfg := testSolarConfig()
	cfg.Benchmark = config.BenchmarkConfig{
		Enabled: true, HouseholdSize: 3, Country: "AT",
		HeatPump: true, HeatPumpEntity: "sensor.heat_pump_total",
	}
	e, _ := newTestEngine(cfg, &fakeReader{})

	e.HandleStateChange("sensor.heat_pump_total", 100.0)
	e.HandleStateChange("sensor.heat_pump_total", 104.0)
	require.InDelta(t, 4.0, e.acc.TrackedHeatPumpKWh, 1e-9)

	e.ResetBenchmarkTracking()

	assert.Equal(t, 0.0, e.acc.TrackedHeatPumpKWh)
	assert.True(t, e.acc.HeatPumpFirstSeenDate.IsZero())
	assert.True(t, e.acc.FirstSeenDate.IsZero())
}

func TestResetStringTracking(t *testing.T) {
	cfg := testSolarConfig()
	cfg.Strings = []config.StringConfig{
		{Name: "East", EnergyEntity: "sensor.string_east_kwh", PowerEntity: "sensor.string_east_w"},
	}
	e, _ := newTestEngine(cfg, &fakeReader{})

	e.HandleStateChange("sensor.string_east_kwh", 10.0)
	e.HandleStateChange("sensor.string_east_kwh", 12.5)
	e.HandleStateChange("sensor.string_east_w", 3200.0)
	require.InDelta(t, 2.5, e.acc.StringTrackedKWh["sensor.string_east_kwh"], 1e-9)
	require.InDelta(t, 3200.0, e.acc.StringPeakW["sensor.string_east_w"], 1e-9)

	e.ResetStringTracking()

	assert.Empty(t, e.acc.StringTrackedKWh)
	assert.Empty(t, e.acc.StringPeakW)
	assert.True(t, e.acc.StringFirstSeenDate.IsZero())
}

func TestRebootstrapReseedsFromSensors(t *testing.T) {
	reader := &fakeReader{}
	reader.set("sensor.pv_total", 1000.0)
	reader.set("sensor.export_total", 200.0)

	e, _ := newTestEngine(testSolarConfig(), reader)
	e.primeReadings(context.Background())
	e.maybeBootstrap(context.Background())
	require.InDelta(t, 800.0, e.acc.TotalSelfConsumptionKWh, 1e-9)

	// Meters moved on; a re-bootstrap reads the fresh totals.
	reader.set("sensor.pv_total", 1500.0)
	reader.set("sensor.export_total", 400.0)
	e.Rebootstrap(context.Background())

	assert.InDelta(t, 1100.0, e.acc.TotalSelfConsumptionKWh, 1e-9)
	assert.InDelta(t, 400.0, e.acc.TotalFeedInKWh, 1e-9)
	assert.InDelta(t, 275.0, e.acc.AccumulatedSavingsSelf, 1e-9)
}

func TestListenerPanicDoesNotStarveSiblings(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})

	called := 0
	e.RegisterListener(func() { panic("broken observer") })
	unregister := e.RegisterListener(func() { called++ })

	e.HandleStateChange("sensor.pv_total", 100.0)
	assert.Equal(t, 1, called)

	unregister()
	e.HandleStateChange("sensor.pv_total", 101.0)
	assert.Equal(t, 1, called)
}

func TestMilestoneFiresOnUpdate(t *testing.T) {
	cfg := testSolarConfig()
	cfg.Installation.Cost = 2.0 // tiny system, amortised almost instantly
	e, firer := newTestEngine(cfg, &fakeReader{})
	e.pvTracker.Rebase(0)
	e.exportTracker.Rebase(0)
	e.importTracker.Rebase(0)

	commitReadings(e, 10, 0, 0) // savings 2.50 ≥ cost

	types := firer.typesFired()
	require.Len(t, types, 4)
	assert.Equal(t, "amortisation_complete", types[3])

	// Feeding the same state again fires nothing new.
	commitReadings(e, 10, 0, 0)
	assert.Equal(t, 4, firer.count())
}

func TestConsumptionUpdateDoesNotTouchAccumulators(t *testing.T) {
	e, _ := newTestEngine(testSolarConfig(), &fakeReader{})
	e.HandleStateChange("sensor.consumption_total", 4321.0)

	assert.True(t, e.currentConsumption.Seen)
	assert.Equal(t, 4321.0, e.currentConsumption.Value)
	assert.Equal(t, 0.0, e.acc.TotalSelfConsumptionKWh)
}

func TestMonitoredEntitiesDeduplicated(t *testing.T) {
	cfg := testSolarConfig()
	cfg.Battery.SOCEntity = "sensor.battery_soc"
	cfg.Strings = []config.StringConfig{
		{Name: "East", EnergyEntity: "sensor.string_east_kwh", PowerEntity: "sensor.string_east_w"},
		{Name: "West", EnergyEntity: "sensor.string_east_kwh"}, // shared meter
	}
	e, _ := newTestEngine(cfg, &fakeReader{})

	ids := e.MonitoredEntities()
	seen := make(map[string]int)
	for _, id := range ids {
		seen[id]++
	}
	assert.Equal(t, 1, seen["sensor.string_east_kwh"])
	assert.Contains(t, ids, "sensor.battery_soc")
	assert.Contains(t, ids, "sensor.pv_total")
	assert.NotContains(t, ids, "")
}
