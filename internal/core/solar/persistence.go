package solar

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshot keys. The snapshot is a flat string map so partial corruption of
// one field never invalidates the rest.
const (
	keyTotalSelfConsumption = "total_self_consumption_kwh"
	keyTotalFeedIn          = "total_feed_in_kwh"
	keySavingsSelf          = "accumulated_savings_self"
	keyEarningsFeed         = "accumulated_earnings_feed"
	keyFirstSeenDate        = "first_seen_date"

	keyTrackedGridImport = "tracked_grid_import_kwh"
	keyTotalImportCost   = "total_grid_import_cost"

	keyDailyImportKWh     = "daily_grid_import_kwh"
	keyDailyImportCost    = "daily_grid_import_cost"
	keyDailyFeedInKWh     = "daily_feed_in_kwh"
	keyDailyFeedInEarning = "daily_feed_in_earnings"
	keyDailyResetDate     = "daily_reset_date"

	keyMonthlyImportKWh  = "monthly_grid_import_kwh"
	keyMonthlyImportCost = "monthly_grid_import_cost"
	keyMonthlyResetMonth = "monthly_reset_month"
	keyMonthlyResetYear  = "monthly_reset_year"

	keyQuotaDayStartMeter = "quota_day_start_meter"
	keyQuotaStartMeter    = "quota_start_meter"

	keyHeatPumpTracked   = "tracked_heat_pump_kwh"
	keyHeatPumpFirstSeen = "heat_pump_first_seen_date"

	keyStringTracked       = "string_tracked_kwh"
	keyStringFirstSeen     = "string_first_seen_date"
	keyStringPeakW         = "string_peak_w"
	keyStringDailyPeakW    = "string_daily_peak_w"
	keyStringDailyPeakDate = "string_daily_peak_date"
)

const dateLayout = "2006-01-02"

// Snapshot captures the accumulator state as a flat string map. The daily
// and monthly windows carry the date tags they cover so a restore on a later
// day discards them instead of resurrecting a stale window.
func (e *Engine) Snapshot() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	// Window tags come from the tracked window itself, not the wall clock,
	// so a snapshot written after midnight with no intervening delta cannot
	// relabel yesterday's window as today's.
	dailyTag := e.acc.DailyDate
	if dailyTag.IsZero() {
		dailyTag = dateOnly(e.now())
	}
	monthlyYear, monthlyMonth := e.acc.MonthlyYear, e.acc.MonthlyMonth
	if monthlyYear == 0 {
		now := e.now()
		monthlyYear, monthlyMonth = now.Year(), now.Month()
	}

	snap := map[string]string{
		keyTotalSelfConsumption: f(e.acc.TotalSelfConsumptionKWh),
		keyTotalFeedIn:          f(e.acc.TotalFeedInKWh),
		keySavingsSelf:          f(e.acc.AccumulatedSavingsSelf),
		keyEarningsFeed:         f(e.acc.AccumulatedEarningsFeed),

		keyTrackedGridImport: f(e.acc.TrackedGridImportKWh),
		keyTotalImportCost:   f(e.acc.TotalGridImportCost),

		keyDailyImportKWh:     f(e.acc.DailyGridImportKWh),
		keyDailyImportCost:    f(e.acc.DailyGridImportCost),
		keyDailyFeedInKWh:     f(e.acc.DailyFeedInKWh),
		keyDailyFeedInEarning: f(e.acc.DailyFeedInEarnings),
		keyDailyResetDate:     dailyTag.Format(dateLayout),

		keyMonthlyImportKWh:  f(e.acc.MonthlyGridImportKWh),
		keyMonthlyImportCost: f(e.acc.MonthlyGridImportCost),
		keyMonthlyResetMonth: strconv.Itoa(int(monthlyMonth)),
		keyMonthlyResetYear:  strconv.Itoa(monthlyYear),

		keyQuotaDayStartMeter: f(e.acc.QuotaDayStartMeter),
		keyQuotaStartMeter:    f(e.quotaStartMeter),

		keyHeatPumpTracked: f(e.acc.TrackedHeatPumpKWh),
	}

	if !e.acc.FirstSeenDate.IsZero() {
		snap[keyFirstSeenDate] = e.acc.FirstSeenDate.Format(dateLayout)
	}
	if !e.acc.HeatPumpFirstSeenDate.IsZero() {
		snap[keyHeatPumpFirstSeen] = e.acc.HeatPumpFirstSeenDate.Format(dateLayout)
	}
	if !e.acc.StringFirstSeenDate.IsZero() {
		snap[keyStringFirstSeen] = e.acc.StringFirstSeenDate.Format(dateLayout)
	}
	if !e.acc.StringDailyPeakDate.IsZero() {
		snap[keyStringDailyPeakDate] = e.acc.StringDailyPeakDate.Format(dateLayout)
	}

	snap[keyStringTracked] = encodeFloatMap(e.acc.StringTrackedKWh)
	snap[keyStringPeakW] = encodeFloatMap(e.acc.StringPeakW)
	snap[keyStringDailyPeakW] = encodeFloatMap(e.acc.StringDailyPeakW)

	return snap
}

// Restore applies a snapshot. Lifetime fields are taken unconditionally; the
// daily window only when its date tag is today, the monthly window only when
// its (year, month) tags match the current month. Every field parses
// defensively and falls back to zero so one corrupt value cannot block the
// rest of the restore.
func (e *Engine) Restore(snap map[string]string) {
	if len(snap) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	today := dateOnly(e.now())
	f := func(key string) float64 { return parseFloatOr(snap[key], 0) }

	e.acc.TotalSelfConsumptionKWh = f(keyTotalSelfConsumption)
	e.acc.TotalFeedInKWh = f(keyTotalFeedIn)
	e.acc.AccumulatedSavingsSelf = f(keySavingsSelf)
	e.acc.AccumulatedEarningsFeed = f(keyEarningsFeed)

	e.acc.TrackedGridImportKWh = f(keyTrackedGridImport)
	e.acc.TotalGridImportCost = f(keyTotalImportCost)

	if d, ok := parseDate(snap[keyDailyResetDate]); ok && sameDay(d, today) {
		e.acc.DailyGridImportKWh = f(keyDailyImportKWh)
		e.acc.DailyGridImportCost = f(keyDailyImportCost)
		e.acc.DailyFeedInKWh = f(keyDailyFeedInKWh)
		e.acc.DailyFeedInEarnings = f(keyDailyFeedInEarning)
		e.acc.DailyDate = today
		if m := f(keyQuotaDayStartMeter); m > 0 {
			e.acc.QuotaDayStartMeter = m
			e.acc.QuotaDayStartDate = today
		}
	}

	month, merr := strconv.Atoi(snap[keyMonthlyResetMonth])
	year, yerr := strconv.Atoi(snap[keyMonthlyResetYear])
	if merr == nil && yerr == nil && month == int(today.Month()) && year == today.Year() {
		e.acc.MonthlyGridImportKWh = f(keyMonthlyImportKWh)
		e.acc.MonthlyGridImportCost = f(keyMonthlyImportCost)
		e.acc.MonthlyYear = year
		e.acc.MonthlyMonth = time.Month(month)
	}

	if d, ok := parseDate(snap[keyFirstSeenDate]); ok {
		e.acc.FirstSeenDate = d
	}

	// A configured quota start meter always wins over the captured one.
	if e.cfg.Quota.StartMeter == 0 {
		if m := f(keyQuotaStartMeter); m > 0 {
			e.quotaStartMeter = m
		}
	}

	// A heat-pump total above the ceiling means an absolute meter reading
	// was stored where a delta total belongs; discard it.
	if hp := f(keyHeatPumpTracked); hp < heatPumpRestoreCeilingKWh {
		e.acc.TrackedHeatPumpKWh = hp
	}
	if d, ok := parseDate(snap[keyHeatPumpFirstSeen]); ok {
		e.acc.HeatPumpFirstSeenDate = d
	}

	e.acc.StringTrackedKWh = decodeFloatMap(snap[keyStringTracked])
	e.acc.StringPeakW = decodeFloatMap(snap[keyStringPeakW])
	if d, ok := parseDate(snap[keyStringFirstSeen]); ok {
		e.acc.StringFirstSeenDate = d
	}
	if d, ok := parseDate(snap[keyStringDailyPeakDate]); ok && sameDay(d, today) {
		e.acc.StringDailyPeakW = decodeFloatMap(snap[keyStringDailyPeakW])
		e.acc.StringDailyPeakDate = d
	}

	e.restored = true
	e.logger.WithFields(logrus.Fields{
		"self_consumption_kwh": e.acc.TotalSelfConsumptionKWh,
		"feed_in_kwh":          e.acc.TotalFeedInKWh,
		"savings_eur":          e.acc.AccumulatedSavingsSelf + e.acc.AccumulatedEarningsFeed,
	}).Info("Accumulator state restored from snapshot")
}

// RestoreFromStore loads the latest snapshot for this instance and applies it.
func (e *Engine) RestoreFromStore(ctx context.Context) error {
	snap, err := e.store.Load(ctx, e.cfg.Instance)
	if err != nil {
		return err
	}
	e.Restore(snap)
	return nil
}

// SaveSnapshot writes the current snapshot to the store.
func (e *Engine) SaveSnapshot(ctx context.Context) error {
	return e.store.Save(ctx, e.cfg.Instance, e.Snapshot())
}

// signalPersist requests an asynchronous snapshot write. The channel holds
// one pending signal; coalescing further requests is fine since the writer
// always captures the latest state.
func (e *Engine) signalPersist() {
	select {
	case e.persistCh <- struct{}{}:
	default:
	}
}

// persistLoop services persist signals off the update path with a short
// debounce so bursts of sensor updates produce one write.
func (e *Engine) persistLoop() {
	const debounce = 2 * time.Second
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.persistCh:
			select {
			case <-e.stopCh:
				return
			case <-time.After(debounce):
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.SaveSnapshot(ctx); err != nil {
				e.logger.WithError(err).Warn("Snapshot write failed")
			}
			cancel()
		}
	}
}

func parseFloatOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func encodeFloatMap(m map[string]float64) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeFloatMap(s string) map[string]float64 {
	m := make(map[string]float64)
	if s == "" {
		return m
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return make(map[string]float64)
	}
	return m
}
