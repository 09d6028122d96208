package solar

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/database/models"
	"github.com/frostdev-ops/pma-solar-go/internal/database/repositories"
	"github.com/sirupsen/logrus"
)

// EventTypeSolar is the host event type every notification is fired under.
const EventTypeSolar = "pv_management_event"

// overBudgetToleranceKWh is how far past the linear pace the quota may drift
// before the over-budget warning fires.
const overBudgetToleranceKWh = 10.0

// NotificationGate fires one-shot notification events: amortisation
// milestones, quota warnings and the monthly summary. Every threshold is a
// latch that never re-arms within an engine lifetime; a manual reset clears
// all latches. Firing is fire-and-forget, a failed emission is logged and
// not retried.
type NotificationGate struct {
	instance string
	firer    EventFirer
	eventLog repositories.EventLogRepository
	logger   *logrus.Logger

	mu                  sync.Mutex
	milestonesFired     map[int]bool
	quotaWarning80Sent  bool
	quotaWarning100Sent bool
	quotaOverBudgetSent bool
	summaryYear         int
	summaryMonth        time.Month
}

// NewNotificationGate creates a gate with all latches unfired. eventLog may
// be nil; fired events are then not recorded locally.
func NewNotificationGate(instance string, firer EventFirer, eventLog repositories.EventLogRepository, logger *logrus.Logger) *NotificationGate {
	return &NotificationGate{
		instance:        instance,
		firer:           firer,
		eventLog:        eventLog,
		logger:          logger,
		milestonesFired: make(map[int]bool),
	}
}

// CheckMilestones fires the 25/50/75/100 percent amortisation milestones at
// most once each.
func (g *NotificationGate) CheckMilestones(ctx context.Context, installationCost, percent, totalSavings, remainingCost float64) {
	if installationCost <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, milestone := range []int{25, 50, 75, 100} {
		if percent < float64(milestone) || g.milestonesFired[milestone] {
			continue
		}
		g.milestonesFired[milestone] = true

		var eventType, message string
		if milestone == 100 {
			profit := totalSavings - installationCost
			eventType = "amortisation_complete"
			message = fmt.Sprintf("PV system fully amortised! %.2f EUR profit so far.", profit)
		} else {
			eventType = "amortisation_milestone"
			message = fmt.Sprintf("%d%% of the PV system amortised, %.2f EUR to go.", milestone, remainingCost)
		}

		g.fire(ctx, eventType, message, map[string]interface{}{
			"milestone":         milestone,
			"total_savings":     round2(totalSavings),
			"remaining":         round2(remainingCost),
			"installation_cost": installationCost,
		})
	}
}

// CheckQuotaWarnings fires the 80%, 100% and over-budget quota warnings,
// each an independent one-shot latch.
func (g *NotificationGate) CheckQuotaWarnings(ctx context.Context, consumedPercent, reserveKWh, remainingKWh, yearlyKWh float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if consumedPercent >= 80 && !g.quotaWarning80Sent {
		g.quotaWarning80Sent = true
		message := fmt.Sprintf("80%% of the electricity quota consumed, %.0f kWh remaining.", remainingKWh)
		g.fire(ctx, "quota_warning_80", message, map[string]interface{}{
			"consumed_percent": round1(consumedPercent),
			"remaining_kwh":    math.Round(remainingKWh),
			"reserve_kwh":      math.Round(reserveKWh),
		})
	}

	if consumedPercent >= 100 && !g.quotaWarning100Sent {
		g.quotaWarning100Sent = true
		message := fmt.Sprintf("Electricity quota exhausted: %.0f kWh reached.", yearlyKWh)
		g.fire(ctx, "quota_warning_100", message, map[string]interface{}{
			"consumed_percent": round1(consumedPercent),
			"remaining_kwh":    0,
		})
	}

	if reserveKWh < -overBudgetToleranceKWh && !g.quotaOverBudgetSent {
		g.quotaOverBudgetSent = true
		message := fmt.Sprintf("Electricity quota exceeded by %.0f kWh.", math.Abs(reserveKWh))
		g.fire(ctx, "quota_over_budget", message, map[string]interface{}{
			"consumed_percent": round1(consumedPercent),
			"over_budget_kwh":  math.Round(math.Abs(reserveKWh)),
		})
	}
}

// CheckMonthlySummary fires the monthly report on the first day of a month,
// at most once per calendar month.
func (g *NotificationGate) CheckMonthlySummary(ctx context.Context, today time.Time, monthlyKWh, monthlyCost, amortPercent, totalSavings float64) {
	if today.Day() != 1 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.summaryYear == today.Year() && g.summaryMonth == today.Month() {
		return
	}
	g.summaryYear = today.Year()
	g.summaryMonth = today.Month()

	lastMonth := today.AddDate(0, 0, -1)
	monthName := lastMonth.Format("January 2006")

	message := fmt.Sprintf("PV report %s: %.0f kWh grid import, %.1f%% amortised.", monthName, monthlyKWh, amortPercent)
	g.fire(ctx, "monthly_summary", message, map[string]interface{}{
		"month":                monthName,
		"grid_import_kwh":      round1(monthlyKWh),
		"grid_import_cost":     round2(monthlyCost),
		"amortisation_percent": round1(amortPercent),
		"total_savings":        round2(totalSavings),
	})
}

// Reset clears all latches so thresholds can fire again.
func (g *NotificationGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.milestonesFired = make(map[int]bool)
	g.quotaWarning80Sent = false
	g.quotaWarning100Sent = false
	g.quotaOverBudgetSent = false
	g.summaryYear = 0
	g.summaryMonth = 0
}

// MilestonesFired returns the milestones that have already fired, for
// diagnostics.
func (g *NotificationGate) MilestonesFired() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	var fired []int
	for _, m := range []int{25, 50, 75, 100} {
		if g.milestonesFired[m] {
			fired = append(fired, m)
		}
	}
	return fired
}

func (g *NotificationGate) fire(ctx context.Context, eventType, message string, payload map[string]interface{}) {
	payload["type"] = eventType
	payload["message"] = message

	g.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"instance":   g.instance,
	}).Info(message)

	if g.firer != nil {
		if err := g.firer.FireEvent(ctx, EventTypeSolar, payload); err != nil {
			g.logger.WithError(err).WithField("event_type", eventType).Warn("Failed to fire notification event")
		}
	}

	if g.eventLog != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = []byte("{}")
		}
		entry := &models.EventLogEntry{
			Instance:  g.instance,
			EventType: eventType,
			Message:   message,
			Payload:   string(raw),
		}
		if err := g.eventLog.Append(ctx, entry); err != nil {
			g.logger.WithError(err).Debug("Failed to append notification to event log")
		}
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
