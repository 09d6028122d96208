package solar

import (
	"context"
	"sync"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/frostdev-ops/pma-solar-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// Engine owns the accumulator state and applies every accepted energy delta
// through the price resolver into the running totals. One Engine exists per
// configured installation instance; it is handed its collaborators
// explicitly and holds no global state.
//
// State-change notifications are delivered serially by the host client, but
// the HTTP and WebSocket surfaces read concurrently, so all state is guarded
// by a RWMutex. An update commits atomically under the write lock; the
// persistence write and event emissions are detached and never block the
// update path.
type Engine struct {
	cfg    config.SolarConfig
	reader StateReader
	prices *PriceResolver
	gate   *NotificationGate
	store  repositories.SnapshotRepository
	logger *logrus.Logger

	// now supplies "today"; injectable for tests.
	now func() time.Time

	mu       sync.RWMutex
	acc      accumulators
	restored bool

	// Last observed absolute readings per channel
	currentPV          Reading
	currentExport      Reading
	currentImport      Reading
	currentConsumption Reading

	pvTracker       *DeltaTracker
	exportTracker   *DeltaTracker
	importTracker   *DeltaTracker
	heatPumpTracker *DeltaTracker
	stringTrackers  map[string]*DeltaTracker

	// quotaStartMeter starts from configuration and may be auto-captured
	// once when the configured value is zero.
	quotaStartMeter float64

	listenerSeq int
	listeners   map[int]Listener

	persistCh      chan struct{}
	stopCh         chan struct{}
	stopOnce       sync.Once
	bootstrapTimer *time.Timer
}

// NewEngine creates an engine with empty accumulators.
func NewEngine(cfg config.SolarConfig, reader StateReader, prices *PriceResolver, gate *NotificationGate, store repositories.SnapshotRepository, logger *logrus.Logger) *Engine {
	e := &Engine{
		cfg:             cfg,
		reader:          reader,
		prices:          prices,
		gate:            gate,
		store:           store,
		logger:          logger,
		now:             time.Now,
		acc:             newAccumulators(),
		pvTracker:       NewDeltaTracker(MaxEnergyDeltaKWh),
		exportTracker:   NewDeltaTracker(MaxEnergyDeltaKWh),
		importTracker:   NewDeltaTracker(MaxEnergyDeltaKWh),
		heatPumpTracker: NewDeltaTracker(MaxHeatPumpDeltaKWh),
		stringTrackers:  make(map[string]*DeltaTracker),
		quotaStartMeter: cfg.Quota.StartMeter,
		listeners:       make(map[int]Listener),
		persistCh:       make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
	for _, s := range cfg.Strings {
		if s.EnergyEntity != "" {
			e.stringTrackers[s.EnergyEntity] = NewDeltaTracker(MaxEnergyDeltaKWh)
		}
	}
	return e
}

// Start primes the current readings from the host, restores the persisted
// snapshot, and arms the bootstrap grace timer. It must be called before
// state changes are delivered.
func (e *Engine) Start(ctx context.Context) error {
	e.primeReadings(ctx)

	if err := e.RestoreFromStore(ctx); err != nil {
		e.logger.WithError(err).Warn("Snapshot restore failed, starting from empty state")
	}

	e.mu.Lock()
	e.captureQuotaStartMeter()
	e.captureQuotaDayStart()
	e.mu.Unlock()

	go e.persistLoop()

	grace := e.cfg.Persistence.BootstrapGraceDuration()
	e.bootstrapTimer = time.AfterFunc(grace, func() {
		e.maybeBootstrap(context.Background())
	})

	e.logger.WithFields(logrus.Fields{
		"instance":        e.cfg.Instance,
		"bootstrap_grace": grace,
	}).Info("Accounting engine started")
	return nil
}

// Stop cancels timers, stops the persistence loop and writes a final
// snapshot.
func (e *Engine) Stop(ctx context.Context) {
	e.stopOnce.Do(func() {
		if e.bootstrapTimer != nil {
			e.bootstrapTimer.Stop()
		}
		close(e.stopCh)
		if err := e.SaveSnapshot(ctx); err != nil {
			e.logger.WithError(err).Warn("Final snapshot write failed")
		}
		e.logger.Info("Accounting engine stopped")
	})
}

// primeReadings loads the current absolute values of all monitored channels
// and establishes delta baselines so the first live change does not book the
// whole historical total.
func (e *Engine) primeReadings(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prime := func(entityID string, r *Reading, t *DeltaTracker) {
		if entityID == "" {
			return
		}
		if v, ok := e.reader.GetNumericState(ctx, entityID); ok {
			r.Value = v
			r.Seen = true
			if t != nil {
				t.Rebase(v)
			}
		}
	}

	prime(e.cfg.Entities.PVProduction, &e.currentPV, e.pvTracker)
	prime(e.cfg.Entities.GridExport, &e.currentExport, e.exportTracker)
	prime(e.cfg.Entities.GridImport, &e.currentImport, e.importTracker)
	prime(e.cfg.Entities.Consumption, &e.currentConsumption, nil)

	if e.cfg.Benchmark.HeatPumpEntity != "" {
		if v, ok := e.reader.GetNumericState(ctx, e.cfg.Benchmark.HeatPumpEntity); ok {
			e.heatPumpTracker.Rebase(v)
			if e.acc.HeatPumpFirstSeenDate.IsZero() {
				e.acc.HeatPumpFirstSeenDate = dateOnly(e.now())
			}
		}
	}

	for _, s := range e.cfg.Strings {
		if s.EnergyEntity != "" {
			if v, ok := e.reader.GetNumericState(ctx, s.EnergyEntity); ok {
				e.stringTrackers[s.EnergyEntity].Rebase(v)
			}
		}
		if s.PowerEntity != "" {
			if v, ok := e.reader.GetNumericState(ctx, s.PowerEntity); ok {
				if v > e.acc.StringPeakW[s.PowerEntity] {
					e.acc.StringPeakW[s.PowerEntity] = v
				}
			}
		}
	}
	if len(e.cfg.Strings) > 0 && e.acc.StringFirstSeenDate.IsZero() {
		e.acc.StringFirstSeenDate = dateOnly(e.now())
	}
}

// captureQuotaStartMeter records the current import meter as the quota start
// meter, once, when the configured start meter is zero and the period has
// begun. A manually configured value is never overwritten. Caller holds the
// write lock.
func (e *Engine) captureQuotaStartMeter() {
	if !e.cfg.Quota.Enabled || e.quotaStartMeter != 0 || !e.currentImport.Seen || e.currentImport.Value <= 0 {
		return
	}
	start, ok := parseDate(e.cfg.Quota.StartDate)
	if !ok || dateOnly(e.now()).Before(start) {
		return
	}
	e.quotaStartMeter = e.currentImport.Value
	e.logger.WithField("start_meter_kwh", e.quotaStartMeter).Info("Quota start meter captured automatically")
}

// captureQuotaDayStart records today's starting import meter reading if none
// is recorded for today yet. Caller holds the write lock.
func (e *Engine) captureQuotaDayStart() {
	today := dateOnly(e.now())
	if sameDay(e.acc.QuotaDayStartDate, today) {
		return
	}
	if e.currentImport.Seen && e.currentImport.Value > 0 {
		e.acc.QuotaDayStartMeter = e.currentImport.Value
		e.acc.QuotaDayStartDate = today
	}
}

// HandleStateChange dispatches a numeric state change from the host to the
// channel it belongs to. It is the single entry point for live updates.
func (e *Engine) HandleStateChange(entityID string, value float64) {
	e.mu.Lock()

	if e.acc.FirstSeenDate.IsZero() {
		e.acc.FirstSeenDate = dateOnly(e.now())
	}

	switch entityID {
	case e.cfg.Entities.PVProduction:
		e.currentPV = Reading{Value: value, Seen: true}
		e.applyEnergyUpdateLocked()
	case e.cfg.Entities.GridExport:
		e.currentExport = Reading{Value: value, Seen: true}
		e.applyEnergyUpdateLocked()
	case e.cfg.Entities.GridImport:
		e.currentImport = Reading{Value: value, Seen: true}
		e.applyEnergyUpdateLocked()
	case e.cfg.Entities.Consumption:
		e.currentConsumption = Reading{Value: value, Seen: true}
		e.mu.Unlock()
		return
	case e.cfg.Benchmark.HeatPumpEntity:
		e.applyHeatPumpDeltaLocked(value)
	case e.cfg.Prices.ImportPriceEntity, e.cfg.Prices.FeedInTariffEntity:
		// Prices are resolved live on the next read; the change still
		// warrants a re-render.
	default:
		if _, ok := e.stringTrackers[entityID]; ok {
			e.applyStringDeltaLocked(entityID, value)
			break
		}
		if e.isStringPowerEntity(entityID) {
			e.applyStringPeakLocked(entityID, value)
			break
		}
		if e.isBatteryEntity(entityID) {
			break // battery values are read through live, just re-render
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.afterUpdate()
}

// applyEnergyUpdateLocked books the deltas of the three main channels into
// the accumulators. Caller holds the write lock.
func (e *Engine) applyEnergyUpdateLocked() {
	deltaPV := e.pvTracker.Apply(e.currentPV.Value)
	deltaExport := e.exportTracker.Apply(e.currentExport.Value)
	deltaImport := e.importTracker.Apply(e.currentImport.Value)

	e.rolloverWindowsLocked()

	// Export cannot exceed production after anomaly filtering; clamp anyway.
	deltaSelf := deltaPV - deltaExport
	if deltaSelf < 0 {
		deltaSelf = 0
	}

	ctx := context.Background()

	if deltaSelf > 0 || deltaExport > 0 {
		grossPrice := e.prices.GrossImportPrice(ctx)
		tariff := e.prices.ExportTariff(ctx)

		savingsDelta := deltaSelf * grossPrice
		earningsDelta := deltaExport * tariff

		e.acc.TotalSelfConsumptionKWh += deltaSelf
		e.acc.TotalFeedInKWh += deltaExport
		e.acc.AccumulatedSavingsSelf += savingsDelta
		e.acc.AccumulatedEarningsFeed += earningsDelta
		e.acc.DailyFeedInKWh += deltaExport
		e.acc.DailyFeedInEarnings += earningsDelta
	}

	if deltaImport > 0 {
		cost := deltaImport * e.prices.GrossImportPrice(ctx)

		e.acc.TrackedGridImportKWh += deltaImport
		e.acc.TotalGridImportCost += cost
		e.acc.DailyGridImportKWh += deltaImport
		e.acc.DailyGridImportCost += cost
		e.acc.MonthlyGridImportKWh += deltaImport
		e.acc.MonthlyGridImportCost += cost
	}
}

// rolloverWindowsLocked lazily zeroes the daily and monthly windows when
// their tags no longer match the host clock, before the current delta is
// applied. Caller holds the write lock.
func (e *Engine) rolloverWindowsLocked() {
	today := dateOnly(e.now())

	if !sameDay(e.acc.DailyDate, today) {
		e.acc.DailyGridImportKWh = 0
		e.acc.DailyGridImportCost = 0
		e.acc.DailyFeedInKWh = 0
		e.acc.DailyFeedInEarnings = 0
		e.acc.DailyDate = today

		if e.currentImport.Seen && e.currentImport.Value > 0 {
			e.acc.QuotaDayStartMeter = e.currentImport.Value
			e.acc.QuotaDayStartDate = today
		}
	}

	if e.acc.MonthlyYear != today.Year() || e.acc.MonthlyMonth != today.Month() {
		e.acc.MonthlyGridImportKWh = 0
		e.acc.MonthlyGridImportCost = 0
		e.acc.MonthlyYear = today.Year()
		e.acc.MonthlyMonth = today.Month()
	}
}

// applyHeatPumpDeltaLocked books a heat-pump meter change into its isolated
// accumulator. Caller holds the write lock.
func (e *Engine) applyHeatPumpDeltaLocked(value float64) {
	if e.acc.HeatPumpFirstSeenDate.IsZero() {
		e.acc.HeatPumpFirstSeenDate = dateOnly(e.now())
	}
	e.acc.TrackedHeatPumpKWh += e.heatPumpTracker.Apply(value)
}

// applyStringDeltaLocked books a PV-string meter change. Caller holds the
// write lock.
func (e *Engine) applyStringDeltaLocked(entityID string, value float64) {
	if e.acc.StringFirstSeenDate.IsZero() {
		e.acc.StringFirstSeenDate = dateOnly(e.now())
	}
	e.acc.StringTrackedKWh[entityID] += e.stringTrackers[entityID].Apply(value)
}

// applyStringPeakLocked tracks lifetime and daily peak power of a string.
// Caller holds the write lock.
func (e *Engine) applyStringPeakLocked(entityID string, watts float64) {
	if watts > e.acc.StringPeakW[entityID] {
		e.acc.StringPeakW[entityID] = watts
	}

	today := dateOnly(e.now())
	if !sameDay(e.acc.StringDailyPeakDate, today) {
		e.acc.StringDailyPeakW = make(map[string]float64)
		e.acc.StringDailyPeakDate = today
	}
	if watts > e.acc.StringDailyPeakW[entityID] {
		e.acc.StringDailyPeakW[entityID] = watts
	}
}

func (e *Engine) isStringPowerEntity(entityID string) bool {
	for _, s := range e.cfg.Strings {
		if s.PowerEntity != "" && s.PowerEntity == entityID {
			return true
		}
	}
	return false
}

func (e *Engine) isBatteryEntity(entityID string) bool {
	b := e.cfg.Battery
	return entityID != "" &&
		(entityID == b.SOCEntity || entityID == b.ChargeEntity || entityID == b.DischargeEntity)
}

// afterUpdate runs the post-commit hooks in fixed order: listener fan-out,
// persist signal, milestone check, quota warnings, monthly summary. Each
// hook is isolated so a failure cannot abort the accounting update that
// triggered it.
func (e *Engine) afterUpdate() {
	e.notifyListeners()
	e.signalPersist()

	ctx := context.Background()
	report := e.Report(ctx)

	e.runHook("milestones", func() {
		e.gate.CheckMilestones(ctx, e.cfg.Installation.Cost, report.Amortisation.Percent, report.Amortisation.TotalSavings, report.Amortisation.RemainingCost)
	})
	if e.cfg.Quota.Enabled && report.Quota != nil {
		q := report.Quota
		e.runHook("quota warnings", func() {
			e.gate.CheckQuotaWarnings(ctx, q.ConsumedPercent, q.ReserveKWh, q.RemainingKWh, e.cfg.Quota.YearlyKWh)
		})
	}
	e.runHook("monthly summary", func() {
		e.gate.CheckMonthlySummary(ctx, e.now(), report.Windows.MonthlyGridImportKWh, report.Windows.MonthlyGridImportCost, report.Amortisation.Percent, report.Amortisation.TotalSavings)
	})
}

func (e *Engine) runHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("hook", name).Warnf("Post-update hook panicked: %v", r)
		}
	}()
	fn()
}

// RegisterListener adds an observer invoked after every committed update.
// The returned function removes it again.
func (e *Engine) RegisterListener(l Listener) func() {
	e.mu.Lock()
	e.listenerSeq++
	id := e.listenerSeq
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// notifyListeners invokes all observers synchronously, isolating each so one
// failing observer cannot starve its siblings.
func (e *Engine) notifyListeners() {
	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Debugf("Listener panicked (ignored): %v", r)
				}
			}()
			l()
		}()
	}
}

// maybeBootstrap seeds the accumulators once from the currently observed
// absolute sensor totals when no valid snapshot was restored. All historical
// production is treated as self-consumed minus exported, priced once at the
// current gross price and tariff; an acknowledged approximation when tariffs
// changed historically.
func (e *Engine) maybeBootstrap(ctx context.Context) {
	e.mu.Lock()
	if e.restored || e.acc.TotalSelfConsumptionKWh > 0 {
		e.mu.Unlock()
		return
	}
	e.bootstrapLocked(ctx)
	e.mu.Unlock()

	e.afterUpdate()
}

// bootstrapLocked does the actual seeding. Caller holds the write lock.
func (e *Engine) bootstrapLocked(ctx context.Context) {
	pvTotal := 0.0
	exportTotal := 0.0
	if e.currentPV.Seen {
		pvTotal = e.currentPV.Value
	}
	if e.currentExport.Seen {
		exportTotal = e.currentExport.Value
	}

	if pvTotal <= 0 {
		e.logger.Info("No historical PV data available, starting from zero")
		return
	}

	selfConsumption := pvTotal - exportTotal
	if selfConsumption < 0 {
		selfConsumption = 0
	}

	grossPrice := e.prices.GrossImportPrice(ctx)
	tariff := e.prices.ExportTariff(ctx)

	e.acc.TotalSelfConsumptionKWh = selfConsumption
	e.acc.TotalFeedInKWh = exportTotal
	e.acc.AccumulatedSavingsSelf = selfConsumption * grossPrice
	e.acc.AccumulatedEarningsFeed = exportTotal * tariff
	e.acc.FirstSeenDate = dateOnly(e.now())

	e.logger.WithFields(logrus.Fields{
		"self_consumption_kwh": selfConsumption,
		"feed_in_kwh":          exportTotal,
		"savings_eur":          e.acc.AccumulatedSavingsSelf,
		"earnings_eur":         e.acc.AccumulatedEarningsFeed,
	}).Info("Accumulators bootstrapped from current sensor totals")
}

// ResetGridImportTracking zeroes the grid-import cost tracking, including the
// daily and monthly windows, and rebases the import baseline.
func (e *Engine) ResetGridImportTracking() {
	e.mu.Lock()
	e.logger.WithFields(logrus.Fields{
		"tracked_kwh": e.acc.TrackedGridImportKWh,
		"total_cost":  e.acc.TotalGridImportCost,
	}).Info("Resetting grid-import tracking")

	e.acc.TrackedGridImportKWh = 0
	e.acc.TotalGridImportCost = 0
	e.acc.DailyGridImportKWh = 0
	e.acc.DailyGridImportCost = 0
	e.acc.MonthlyGridImportKWh = 0
	e.acc.MonthlyGridImportCost = 0
	if e.currentImport.Seen {
		e.importTracker.Rebase(e.currentImport.Value)
	}
	e.mu.Unlock()

	e.afterUpdate()
}

// ResetBenchmarkTracking zeroes the heat-pump delta tracking and the
// first-seen tracking dates the benchmark extrapolations run on.
func (e *Engine) ResetBenchmarkTracking() {
	e.mu.Lock()
	e.logger.WithField("tracked_heat_pump_kwh", e.acc.TrackedHeatPumpKWh).Info("Resetting benchmark tracking")

	e.acc.TrackedHeatPumpKWh = 0
	e.acc.HeatPumpFirstSeenDate = time.Time{}
	e.acc.FirstSeenDate = time.Time{}
	e.heatPumpTracker.Reset()
	e.mu.Unlock()

	e.afterUpdate()
}

// ResetStringTracking clears all per-string counters and peaks.
func (e *Engine) ResetStringTracking() {
	e.mu.Lock()
	e.logger.Info("Resetting PV string tracking")

	e.acc.StringTrackedKWh = make(map[string]float64)
	e.acc.StringPeakW = make(map[string]float64)
	e.acc.StringDailyPeakW = make(map[string]float64)
	e.acc.StringFirstSeenDate = time.Time{}
	e.acc.StringDailyPeakDate = time.Time{}
	for _, t := range e.stringTrackers {
		t.Reset()
	}
	e.mu.Unlock()

	e.afterUpdate()
}

// Rebootstrap discards the lifetime accounting state and seeds it again from
// the currently observed absolute sensor totals. Destructive and
// user-triggered only.
func (e *Engine) Rebootstrap(ctx context.Context) {
	e.mu.Lock()
	e.logger.Warn("Re-bootstrapping accounting state from sensors")

	e.acc.TotalSelfConsumptionKWh = 0
	e.acc.TotalFeedInKWh = 0
	e.acc.AccumulatedSavingsSelf = 0
	e.acc.AccumulatedEarningsFeed = 0
	e.gate.Reset()
	e.primeReadingsLockedRefresh(ctx)
	e.bootstrapLocked(ctx)
	e.mu.Unlock()

	e.afterUpdate()
}

// primeReadingsLockedRefresh refreshes the main channel readings from the
// host. Caller holds the write lock.
func (e *Engine) primeReadingsLockedRefresh(ctx context.Context) {
	refresh := func(entityID string, r *Reading, t *DeltaTracker) {
		if entityID == "" {
			return
		}
		if v, ok := e.reader.GetNumericState(ctx, entityID); ok {
			r.Value = v
			r.Seen = true
			if t != nil {
				t.Rebase(v)
			}
		}
	}
	refresh(e.cfg.Entities.PVProduction, &e.currentPV, e.pvTracker)
	refresh(e.cfg.Entities.GridExport, &e.currentExport, e.exportTracker)
	refresh(e.cfg.Entities.GridImport, &e.currentImport, e.importTracker)
}

// MonitoredEntities lists every entity id the engine needs change
// notifications for.
func (e *Engine) MonitoredEntities() []string {
	return MonitoredEntitiesFor(e.cfg)
}

// MonitoredEntitiesFor derives the change-notification entity set from a
// solar configuration, deduplicated, without empty ids.
func MonitoredEntitiesFor(cfg config.SolarConfig) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	add(cfg.Entities.PVProduction)
	add(cfg.Entities.GridExport)
	add(cfg.Entities.GridImport)
	add(cfg.Entities.Consumption)
	add(cfg.Prices.ImportPriceEntity)
	add(cfg.Prices.FeedInTariffEntity)
	add(cfg.Battery.SOCEntity)
	add(cfg.Battery.ChargeEntity)
	add(cfg.Battery.DischargeEntity)
	add(cfg.Benchmark.HeatPumpEntity)
	for _, s := range cfg.Strings {
		add(s.EnergyEntity)
		add(s.PowerEntity)
	}
	return ids
}

// Restored reports whether a persisted snapshot was applied. Metric readers
// should treat pre-restore values as not yet meaningful.
func (e *Engine) Restored() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.restored
}

// parseDate parses an ISO date (YYYY-MM-DD), tolerating a full timestamp.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return dateOnly(t), true
	}
	return time.Time{}, false
}
