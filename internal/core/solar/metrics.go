package solar

import (
	"context"
	"fmt"
	"time"
)

// Report is the full derived-metrics tree rendered from the current
// accumulator state. Optional sections are nil when their feature is
// disabled; pointer-typed scalar fields are nil when the value cannot be
// computed, which is distinct from zero.
type Report struct {
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	Restored  bool      `json:"restored"`

	Energy       EnergyMetrics       `json:"energy"`
	Prices       PriceMetrics        `json:"prices"`
	Windows      WindowMetrics       `json:"windows"`
	Amortisation AmortisationMetrics `json:"amortisation"`
	Environment  EnvironmentMetrics  `json:"environment"`

	Quota     *QuotaMetrics     `json:"quota,omitempty"`
	Benchmark *BenchmarkMetrics `json:"benchmark,omitempty"`
	Battery   *BatteryMetrics   `json:"battery,omitempty"`
	Strings   []StringMetrics   `json:"strings,omitempty"`
}

type EnergyMetrics struct {
	// Current absolute meter readings, nil until first observed.
	PVProductionKWh *float64 `json:"pv_production_kwh"`
	GridExportKWh   *float64 `json:"grid_export_kwh"`
	GridImportKWh   *float64 `json:"grid_import_kwh"`
	ConsumptionKWh  *float64 `json:"consumption_kwh"`

	// Lifetime tracked totals including configured offsets.
	SelfConsumptionKWh float64 `json:"self_consumption_kwh"`
	FeedInKWh          float64 `json:"feed_in_kwh"`

	SelfConsumptionRatioPercent float64  `json:"self_consumption_ratio_percent"`
	AutarkyRatePercent          *float64 `json:"autarky_rate_percent"`
}

type PriceMetrics struct {
	ImportNetEURPerKWh    float64 `json:"import_net_eur_per_kwh"`
	ImportGrossEURPerKWh  float64 `json:"import_gross_eur_per_kwh"`
	FeedInTariffEURPerKWh float64 `json:"feed_in_tariff_eur_per_kwh"`
	ImportSensorAvailable bool    `json:"import_sensor_available"`
	TariffSensorAvailable bool    `json:"tariff_sensor_available"`

	// Consumption-weighted average gross import prices in ct/kWh.
	AverageCtPerKWh        *float64 `json:"average_ct_per_kwh"`
	DailyAverageCtPerKWh   *float64 `json:"daily_average_ct_per_kwh"`
	MonthlyAverageCtPerKWh *float64 `json:"monthly_average_ct_per_kwh"`
}

type WindowMetrics struct {
	DailyGridImportKWh    float64 `json:"daily_grid_import_kwh"`
	DailyGridImportCost   float64 `json:"daily_grid_import_cost"`
	DailyFeedInKWh        float64 `json:"daily_feed_in_kwh"`
	DailyFeedInEarnings   float64 `json:"daily_feed_in_earnings"`
	DailyNetCost          float64 `json:"daily_net_cost"`
	MonthlyGridImportKWh  float64 `json:"monthly_grid_import_kwh"`
	MonthlyGridImportCost float64 `json:"monthly_grid_import_cost"`
}

type AmortisationMetrics struct {
	InstallationCost     float64  `json:"installation_cost"`
	SavingsSelf          float64  `json:"savings_self_consumption"`
	EarningsFeedIn       float64  `json:"earnings_feed_in"`
	TotalSavings         float64  `json:"total_savings"`
	Percent              float64  `json:"percent"`
	RemainingCost        float64  `json:"remaining_cost"`
	IsAmortised          bool     `json:"is_amortised"`
	StatusText           string   `json:"status_text"`
	DaysSinceInstall     int      `json:"days_since_installation"`
	DaysTracking         int      `json:"days_tracking"`
	AverageDailySavings  float64  `json:"average_daily_savings"`
	AverageMonthly       float64  `json:"average_monthly_savings"`
	AverageYearly        float64  `json:"average_yearly_savings"`
	ROIPercent           *float64 `json:"roi_percent"`
	AnnualROIPercent     *float64 `json:"annual_roi_percent"`
	RemainingDays        *int     `json:"estimated_remaining_days"`
	EstimatedPaybackDate *string  `json:"estimated_payback_date"`
}

type EnvironmentMetrics struct {
	CO2SavedKg float64 `json:"co2_saved_kg"`
}

type QuotaMetrics struct {
	YearlyKWh         float64  `json:"yearly_kwh"`
	MonthlyRateEUR    float64  `json:"monthly_rate_eur"`
	StartDate         string   `json:"start_date"`
	EndDate           *string  `json:"end_date"`
	DaysElapsed       int      `json:"days_elapsed"`
	DaysRemaining     int      `json:"days_remaining"`
	ConsumedKWh       float64  `json:"consumed_kwh"`
	ConsumedPercent   float64  `json:"consumed_percent"`
	RemainingKWh      float64  `json:"remaining_kwh"`
	ExpectedKWh       float64  `json:"expected_kwh"`
	ReserveKWh        float64  `json:"reserve_kwh"`
	DailyBudgetKWh    *float64 `json:"daily_budget_kwh"`
	TodayConsumedKWh  float64  `json:"today_consumed_kwh"`
	TodayRemainingKWh *float64 `json:"today_remaining_kwh"`
	ForecastKWh       *float64 `json:"forecast_kwh"`
	StatusText        string   `json:"status_text"`
}

type BenchmarkMetrics struct {
	Country                 string   `json:"country"`
	HouseholdSize           int      `json:"household_size"`
	ReferenceKWh            int      `json:"reference_kwh"`
	ReferenceHeatPumpKWh    *int     `json:"reference_heat_pump_kwh"`
	OwnAnnualKWh            *float64 `json:"own_annual_kwh"`
	OwnHeatPumpAnnualKWh    *float64 `json:"own_heat_pump_annual_kwh"`
	ConsumptionVsAveragePct *float64 `json:"consumption_vs_average_percent"`
	CO2AvoidedKgPerYear     *float64 `json:"co2_avoided_kg_per_year"`
	EfficiencyScore         *int     `json:"efficiency_score"`
	Rating                  *string  `json:"rating"`
}

type BatteryMetrics struct {
	SOCPercent        *float64 `json:"soc_percent"`
	ChargeTotalKWh    *float64 `json:"charge_total_kwh"`
	DischargeTotalKWh *float64 `json:"discharge_total_kwh"`
	EfficiencyPercent *float64 `json:"efficiency_percent"`
	CyclesEstimate    *float64 `json:"cycles_estimate"`
	CapacityKWh       float64  `json:"capacity_kwh"`
}

type StringMetrics struct {
	Name            string   `json:"name"`
	RatedKWp        float64  `json:"rated_kwp,omitempty"`
	ProductionKWh   float64  `json:"production_kwh"`
	DailyAverageKWh *float64 `json:"daily_average_kwh"`
	SharePercent    *float64 `json:"share_percent"`
	PeakKW          *float64 `json:"peak_kw"`
	DailyPeakKW     *float64 `json:"daily_peak_kw"`
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func sptr(v string) *string   { return &v }

// Report renders the complete derived-metrics tree from the current state.
// Pure except for live price and battery entity reads.
func (e *Engine) Report(ctx context.Context) *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()

	today := dateOnly(e.now())

	r := &Report{
		Instance:  e.cfg.Instance,
		Timestamp: e.now(),
		Restored:  e.restored,
	}

	r.Energy = e.energyMetricsLocked()
	r.Prices = e.priceMetricsLocked(ctx)
	r.Windows = e.windowMetricsLocked()
	r.Amortisation = e.amortisationMetricsLocked(today)
	r.Environment = EnvironmentMetrics{
		CO2SavedKg: e.selfConsumptionTotalLocked() * CO2FactorGrid,
	}

	if e.cfg.Quota.Enabled {
		r.Quota = e.quotaMetricsLocked(today)
	}
	if e.cfg.Benchmark.Enabled {
		r.Benchmark = e.benchmarkMetricsLocked(today, r.Energy)
	}
	if e.cfg.Battery.SOCEntity != "" || e.cfg.Battery.ChargeEntity != "" || e.cfg.Battery.DischargeEntity != "" {
		r.Battery = e.batteryMetricsLocked(ctx)
	}
	r.Strings = e.stringMetricsLocked(today)

	return r
}

// selfConsumptionTotalLocked is the lifetime self-consumption including the
// configured pre-tracking offset.
func (e *Engine) selfConsumptionTotalLocked() float64 {
	return e.acc.TotalSelfConsumptionKWh + e.cfg.Installation.EnergyOffsetSelf
}

func (e *Engine) feedInTotalLocked() float64 {
	return e.acc.TotalFeedInKWh + e.cfg.Installation.EnergyOffsetExport
}

// currentSelfConsumptionLocked estimates the lifetime self-consumed energy
// from current absolute readings. With a battery, consumption minus import is
// the correct figure; PV minus export over-counts round-trip losses.
func (e *Engine) currentSelfConsumptionLocked() float64 {
	if e.cfg.Entities.Consumption != "" && e.currentConsumption.Seen && e.currentConsumption.Value > 0 &&
		e.cfg.Entities.GridImport != "" && e.currentImport.Seen {
		v := e.currentConsumption.Value - e.currentImport.Value
		if v < 0 {
			return 0
		}
		return v
	}
	v := 0.0
	if e.currentPV.Seen {
		v = e.currentPV.Value
	}
	if e.currentExport.Seen {
		v -= e.currentExport.Value
	}
	if v < 0 {
		return 0
	}
	return v
}

func (e *Engine) energyMetricsLocked() EnergyMetrics {
	m := EnergyMetrics{
		SelfConsumptionKWh: e.selfConsumptionTotalLocked(),
		FeedInKWh:          e.feedInTotalLocked(),
	}
	if e.currentPV.Seen {
		m.PVProductionKWh = fptr(e.currentPV.Value)
	}
	if e.currentExport.Seen {
		m.GridExportKWh = fptr(e.currentExport.Value)
	}
	if e.currentImport.Seen {
		m.GridImportKWh = fptr(e.currentImport.Value)
	}
	if e.currentConsumption.Seen {
		m.ConsumptionKWh = fptr(e.currentConsumption.Value)
	}

	self := e.currentSelfConsumptionLocked()
	if e.currentPV.Seen && e.currentPV.Value > 0 {
		m.SelfConsumptionRatioPercent = clampPercent(self / e.currentPV.Value * 100)
	}
	m.AutarkyRatePercent = e.autarkyRateLocked(self)
	return m
}

// autarkyRateLocked prefers a direct consumption signal and falls back to
// deriving consumption as self-consumption plus grid import. PV and export
// alone cannot distinguish a missing consumption signal from zero grid
// dependency, so without either signal the rate is undefined.
func (e *Engine) autarkyRateLocked(selfConsumption float64) *float64 {
	if selfConsumption <= 0 {
		return nil
	}
	if e.cfg.Entities.Consumption != "" && e.currentConsumption.Seen && e.currentConsumption.Value > 0 {
		return fptr(clampPercent(selfConsumption / e.currentConsumption.Value * 100))
	}
	if e.cfg.Entities.GridImport != "" && e.currentImport.Seen && e.currentImport.Value > 0 {
		total := selfConsumption + e.currentImport.Value
		return fptr(clampPercent(selfConsumption / total * 100))
	}
	return nil
}

func (e *Engine) priceMetricsLocked(ctx context.Context) PriceMetrics {
	importOK, tariffOK := e.prices.Available()
	m := PriceMetrics{
		ImportNetEURPerKWh:    e.prices.ImportPrice(ctx),
		ImportGrossEURPerKWh:  e.prices.GrossImportPrice(ctx),
		FeedInTariffEURPerKWh: e.prices.ExportTariff(ctx),
		ImportSensorAvailable: importOK,
		TariffSensorAvailable: tariffOK,
	}
	if e.acc.TrackedGridImportKWh > 0 {
		m.AverageCtPerKWh = fptr(e.acc.TotalGridImportCost / e.acc.TrackedGridImportKWh * 100)
	}
	if e.acc.DailyGridImportKWh > 0 {
		m.DailyAverageCtPerKWh = fptr(e.acc.DailyGridImportCost / e.acc.DailyGridImportKWh * 100)
	}
	if e.acc.MonthlyGridImportKWh > 0 {
		m.MonthlyAverageCtPerKWh = fptr(e.acc.MonthlyGridImportCost / e.acc.MonthlyGridImportKWh * 100)
	}
	return m
}

func (e *Engine) windowMetricsLocked() WindowMetrics {
	return WindowMetrics{
		DailyGridImportKWh:    e.acc.DailyGridImportKWh,
		DailyGridImportCost:   e.acc.DailyGridImportCost,
		DailyFeedInKWh:        e.acc.DailyFeedInKWh,
		DailyFeedInEarnings:   e.acc.DailyFeedInEarnings,
		DailyNetCost:          e.acc.DailyGridImportCost - e.acc.DailyFeedInEarnings,
		MonthlyGridImportKWh:  e.acc.MonthlyGridImportKWh,
		MonthlyGridImportCost: e.acc.MonthlyGridImportCost,
	}
}

func (e *Engine) amortisationMetricsLocked(today time.Time) AmortisationMetrics {
	cost := e.cfg.Installation.Cost
	totalSavings := e.acc.AccumulatedSavingsSelf + e.acc.AccumulatedEarningsFeed + e.cfg.Installation.SavingsOffset

	m := AmortisationMetrics{
		InstallationCost: cost,
		SavingsSelf:      e.acc.AccumulatedSavingsSelf,
		EarningsFeedIn:   e.acc.AccumulatedEarningsFeed,
		TotalSavings:     totalSavings,
		IsAmortised:      totalSavings >= cost,
	}

	if cost <= 0 {
		m.Percent = 100
	} else {
		m.Percent = clampPercent(totalSavings / cost * 100)
	}
	m.RemainingCost = cost - totalSavings
	if m.RemainingCost < 0 {
		m.RemainingCost = 0
	}

	m.DaysTracking = daysBetween(e.acc.FirstSeenDate, today)
	m.DaysSinceInstall = m.DaysTracking
	if install, ok := parseDate(e.cfg.Installation.Date); ok {
		m.DaysSinceInstall = daysBetween(install, today)
	}

	if m.DaysSinceInstall > 0 {
		m.AverageDailySavings = totalSavings / float64(m.DaysSinceInstall)
	}
	m.AverageMonthly = m.AverageDailySavings * daysPerMonth
	m.AverageYearly = m.AverageDailySavings * daysPerYear

	if cost > 0 {
		m.ROIPercent = fptr((totalSavings - cost) / cost * 100)
		if m.DaysSinceInstall > 0 {
			years := float64(m.DaysSinceInstall) / daysPerYear
			annualSavings := totalSavings / years
			m.AnnualROIPercent = fptr((annualSavings - cost/years) / cost * 100)
		}
	}

	if m.IsAmortised {
		m.RemainingDays = iptr(0)
		m.EstimatedPaybackDate = sptr(today.Format("2006-01-02"))
		m.StatusText = statusAmortised(totalSavings - cost)
	} else {
		if m.AverageDailySavings > 0 {
			days := int(m.RemainingCost / m.AverageDailySavings)
			m.RemainingDays = iptr(days)
			m.EstimatedPaybackDate = sptr(today.AddDate(0, 0, days).Format("2006-01-02"))
		}
		m.StatusText = statusInProgress(m.Percent)
	}
	return m
}

func (e *Engine) quotaMetricsLocked(today time.Time) *QuotaMetrics {
	q := &QuotaMetrics{
		YearlyKWh:      e.cfg.Quota.YearlyKWh,
		StartDate:      e.cfg.Quota.StartDate,
		MonthlyRateEUR: e.cfg.Quota.MonthlyRate,
	}

	start, ok := parseDate(e.cfg.Quota.StartDate)
	if !ok {
		q.StatusText = "not configured"
		return q
	}
	q.EndDate = sptr(start.AddDate(0, 0, quotaDaysTotal).Format("2006-01-02"))

	// The start day counts as day 1.
	elapsed := daysBetween(start, today)
	if elapsed < 0 {
		elapsed = -1 // period not started
	}
	q.DaysElapsed = clampInt(elapsed+1, 0, quotaDaysTotal)
	q.DaysRemaining = quotaDaysTotal - q.DaysElapsed

	if e.quotaStartMeter > 0 && e.currentImport.Seen {
		q.ConsumedKWh = e.currentImport.Value - e.quotaStartMeter
		if q.ConsumedKWh < 0 {
			q.ConsumedKWh = 0
		}
	}
	q.RemainingKWh = e.cfg.Quota.YearlyKWh - q.ConsumedKWh
	if e.cfg.Quota.YearlyKWh > 0 {
		q.ConsumedPercent = clampPercent(q.ConsumedKWh / e.cfg.Quota.YearlyKWh * 100)
	}

	if !today.Before(start) {
		q.ExpectedKWh = float64(q.DaysElapsed) / float64(quotaDaysTotal) * e.cfg.Quota.YearlyKWh
	}
	q.ReserveKWh = q.ExpectedKWh - q.ConsumedKWh

	if q.DaysRemaining > 0 {
		q.DailyBudgetKWh = fptr(q.RemainingKWh / float64(q.DaysRemaining))
	}

	if e.acc.QuotaDayStartMeter > 0 && sameDay(e.acc.QuotaDayStartDate, today) &&
		e.currentImport.Seen && e.currentImport.Value > 0 {
		consumed := e.currentImport.Value - e.acc.QuotaDayStartMeter
		if consumed > 0 {
			q.TodayConsumedKWh = consumed
		}
	}
	if q.DailyBudgetKWh != nil {
		q.TodayRemainingKWh = fptr(*q.DailyBudgetKWh - q.TodayConsumedKWh)
	}

	if q.DaysElapsed > 0 {
		q.ForecastKWh = fptr(q.ConsumedKWh / float64(q.DaysElapsed) * float64(quotaDaysTotal))
	}

	if q.ReserveKWh >= 0 {
		q.StatusText = statusQuotaUnder(q.ReserveKWh)
	} else {
		q.StatusText = statusQuotaOver(q.ReserveKWh)
	}
	return q
}

func (e *Engine) benchmarkMetricsLocked(today time.Time, energy EnergyMetrics) *BenchmarkMetrics {
	country := e.cfg.Benchmark.Country
	table, ok := benchmarkConsumption[country]
	if !ok {
		country = "AT"
		table = benchmarkConsumption[country]
	}
	size := clampInt(e.cfg.Benchmark.HouseholdSize, 1, 6)

	m := &BenchmarkMetrics{
		Country:       country,
		HouseholdSize: size,
		ReferenceKWh:  table[size],
	}
	if e.cfg.Benchmark.HeatPump {
		m.ReferenceHeatPumpKWh = iptr(benchmarkHeatPumpConsumption[country])
	}

	days := daysBetween(e.acc.FirstSeenDate, today)
	if e.acc.FirstSeenDate.IsZero() || days < 1 {
		return m
	}

	// Heat-pump consumption annualized over its own tracking window, which
	// may differ from the household window.
	if e.cfg.Benchmark.HeatPump && e.cfg.Benchmark.HeatPumpEntity != "" &&
		!e.acc.HeatPumpFirstSeenDate.IsZero() && e.acc.TrackedHeatPumpKWh > 0 {
		hpDays := daysBetween(e.acc.HeatPumpFirstSeenDate, today)
		if hpDays < 1 {
			hpDays = 1
		}
		m.OwnHeatPumpAnnualKWh = fptr(e.acc.TrackedHeatPumpKWh / float64(hpDays) * daysPerYear)
	}

	total := e.selfConsumptionTotalLocked() + e.acc.TrackedGridImportKWh
	if total > 0 {
		annual := total / float64(days) * daysPerYear
		if m.OwnHeatPumpAnnualKWh != nil {
			annual -= *m.OwnHeatPumpAnnualKWh
			if annual < 0 {
				annual = 0
			}
		}
		m.OwnAnnualKWh = fptr(annual)
		if m.ReferenceKWh > 0 {
			m.ConsumptionVsAveragePct = fptr((annual - float64(m.ReferenceKWh)) / float64(m.ReferenceKWh) * 100)
		}
	}

	if e.currentPV.Seen && e.currentPV.Value > 0 {
		annualPV := e.currentPV.Value / float64(days) * daysPerYear
		m.CO2AvoidedKgPerYear = fptr(annualPV * benchmarkCO2Factors[country])
	}

	if m.ConsumptionVsAveragePct != nil {
		score := e.efficiencyScoreLocked(*m.ConsumptionVsAveragePct, energy)
		m.EfficiencyScore = iptr(score)
		m.Rating = sptr(efficiencyRating(score))
	}
	return m
}

// efficiencyScoreLocked blends consumption-vs-reference (40 points, where
// -50% earns full marks and +50% earns none), autarky (30 points) and
// self-consumption ratio (30 points) into a 0-100 composite.
func (e *Engine) efficiencyScoreLocked(vsAveragePct float64, energy EnergyMetrics) int {
	consumptionScore := 20 - vsAveragePct*0.4
	if consumptionScore < 0 {
		consumptionScore = 0
	}
	if consumptionScore > 40 {
		consumptionScore = 40
	}

	autarkyScore := 0.0
	if energy.AutarkyRatePercent != nil {
		autarkyScore = *energy.AutarkyRatePercent * 0.3
		if autarkyScore > 30 {
			autarkyScore = 30
		}
	}

	ratioScore := energy.SelfConsumptionRatioPercent * 0.3
	if ratioScore > 30 {
		ratioScore = 30
	}

	return int(consumptionScore + autarkyScore + ratioScore)
}

func efficiencyRating(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "very good"
	case score >= 40:
		return "good"
	case score >= 20:
		return "average"
	default:
		return "room for improvement"
	}
}

func (e *Engine) batteryMetricsLocked(ctx context.Context) *BatteryMetrics {
	b := e.cfg.Battery
	m := &BatteryMetrics{CapacityKWh: b.CapacityKWh}

	read := func(entityID string) *float64 {
		if entityID == "" {
			return nil
		}
		if v, ok := e.reader.GetNumericState(ctx, entityID); ok {
			return fptr(v)
		}
		return nil
	}

	m.SOCPercent = read(b.SOCEntity)
	m.ChargeTotalKWh = read(b.ChargeEntity)
	m.DischargeTotalKWh = read(b.DischargeEntity)

	if m.ChargeTotalKWh != nil && m.DischargeTotalKWh != nil && *m.ChargeTotalKWh > 0 {
		m.EfficiencyPercent = fptr(*m.DischargeTotalKWh / *m.ChargeTotalKWh * 100)
	}
	if m.ChargeTotalKWh != nil && b.CapacityKWh > 0 {
		m.CyclesEstimate = fptr(*m.ChargeTotalKWh / b.CapacityKWh)
	}
	return m
}

func (e *Engine) stringMetricsLocked(today time.Time) []StringMetrics {
	if len(e.cfg.Strings) == 0 {
		return nil
	}

	totalTracked := 0.0
	for _, kwh := range e.acc.StringTrackedKWh {
		totalTracked += kwh
	}

	days := 0
	if !e.acc.StringFirstSeenDate.IsZero() {
		days = daysBetween(e.acc.StringFirstSeenDate, today)
		if days < 1 {
			days = 1
		}
	}

	out := make([]StringMetrics, 0, len(e.cfg.Strings))
	for _, s := range e.cfg.Strings {
		m := StringMetrics{
			Name:          s.Name,
			RatedKWp:      s.RatedKWp,
			ProductionKWh: e.acc.StringTrackedKWh[s.EnergyEntity],
		}
		if days > 0 && m.ProductionKWh > 0 {
			m.DailyAverageKWh = fptr(m.ProductionKWh / float64(days))
		}
		if totalTracked > 0 {
			m.SharePercent = fptr(m.ProductionKWh / totalTracked * 100)
		}
		if s.PowerEntity != "" {
			if peak := e.acc.StringPeakW[s.PowerEntity]; peak > 0 {
				m.PeakKW = fptr(round1(peak / 1000))
			}
			if sameDay(e.acc.StringDailyPeakDate, today) {
				if peak := e.acc.StringDailyPeakW[s.PowerEntity]; peak > 0 {
					m.DailyPeakKW = fptr(round1(peak / 1000))
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func statusAmortised(profit float64) string {
	return fmt.Sprintf("amortised, %.2f EUR profit", profit)
}

func statusInProgress(percent float64) string {
	return fmt.Sprintf("%.1f%% amortised", percent)
}

func statusQuotaUnder(reserve float64) string {
	return fmt.Sprintf("within budget (+%.0f kWh reserve)", reserve)
}

func statusQuotaOver(reserve float64) string {
	return fmt.Sprintf("over budget (%.0f kWh)", reserve)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// daysBetween counts whole calendar days from a to b; zero a yields 0.
// Both dates are re-anchored to UTC midnights so a DST transition between
// them cannot shave the difference below a full day.
func daysBetween(a, b time.Time) int {
	if a.IsZero() {
		return 0
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
