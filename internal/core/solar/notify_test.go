package solar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFirer records every fired event.
type fakeFirer struct {
	mu     sync.Mutex
	events []firedEvent
}

type firedEvent struct {
	eventType string
	payload   map[string]interface{}
}

func (f *fakeFirer) FireEvent(_ context.Context, eventType string, payload map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, firedEvent{eventType: eventType, payload: payload})
	return nil
}

func (f *fakeFirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeFirer) typesFired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.payload["type"].(string))
	}
	return out
}

func TestMilestonesFireOnceEach(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())
	ctx := context.Background()

	g.CheckMilestones(ctx, 10000, 30.0, 3000, 7000)
	require.Equal(t, []string{"amortisation_milestone"}, firer.typesFired())
	assert.Equal(t, []int{25}, g.MilestonesFired())

	// Same percentage again: nothing new fires.
	g.CheckMilestones(ctx, 10000, 30.0, 3000, 7000)
	assert.Equal(t, 1, firer.count())

	// Jumping past several thresholds fires each pending one.
	g.CheckMilestones(ctx, 10000, 80.0, 8000, 2000)
	assert.Equal(t, []int{25, 50, 75}, g.MilestonesFired())
	assert.Equal(t, 3, firer.count())
}

func TestMilestoneCompleteAtHundredPercent(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())

	g.CheckMilestones(context.Background(), 10000, 100.0, 10500, 0)

	types := firer.typesFired()
	require.Len(t, types, 4)
	assert.Equal(t, "amortisation_complete", types[3])
}

func TestMilestonesSkippedWithoutInstallationCost(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())

	g.CheckMilestones(context.Background(), 0, 100.0, 500, 0)
	assert.Equal(t, 0, firer.count())
}

func TestQuotaWarningsAreIndependentLatches(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())
	ctx := context.Background()

	g.CheckQuotaWarnings(ctx, 85.0, 50.0, 600, 4000)
	assert.Equal(t, []string{"quota_warning_80"}, firer.typesFired())

	g.CheckQuotaWarnings(ctx, 85.0, 50.0, 600, 4000)
	assert.Equal(t, 1, firer.count())

	g.CheckQuotaWarnings(ctx, 100.0, -5.0, 0, 4000)
	assert.Equal(t, []string{"quota_warning_80", "quota_warning_100"}, firer.typesFired())

	// Over-budget only fires beyond the tolerance.
	g.CheckQuotaWarnings(ctx, 100.0, -9.9, -20, 4000)
	assert.Equal(t, 2, firer.count())
	g.CheckQuotaWarnings(ctx, 100.0, -10.1, -20, 4000)
	assert.Equal(t, 3, firer.count())
	assert.Equal(t, "quota_over_budget", firer.typesFired()[2])
}

func TestMonthlySummaryOncePerMonth(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())
	ctx := context.Background()

	firstOfJune := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.Local)
	g.CheckMonthlySummary(ctx, firstOfJune, 120, 40, 42.5, 4250)
	assert.Equal(t, 1, firer.count())

	// Later the same day: no duplicate.
	g.CheckMonthlySummary(ctx, firstOfJune.Add(6*time.Hour), 121, 41, 42.5, 4250)
	assert.Equal(t, 1, firer.count())

	// Mid-month: nothing.
	g.CheckMonthlySummary(ctx, time.Date(2025, time.June, 15, 9, 0, 0, 0, time.Local), 200, 70, 43, 4300)
	assert.Equal(t, 1, firer.count())

	// Next month's first day fires again.
	g.CheckMonthlySummary(ctx, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.Local), 5, 2, 44, 4400)
	assert.Equal(t, 2, firer.count())
}

func TestGateResetRearmsThresholds(t *testing.T) {
	firer := &fakeFirer{}
	g := NewNotificationGate("default", firer, nil, testLogger())
	ctx := context.Background()

	g.CheckMilestones(ctx, 10000, 30.0, 3000, 7000)
	g.CheckQuotaWarnings(ctx, 85.0, 50.0, 600, 4000)
	require.Equal(t, 2, firer.count())

	g.Reset()
	assert.Empty(t, g.MilestonesFired())

	g.CheckMilestones(ctx, 10000, 30.0, 3000, 7000)
	g.CheckQuotaWarnings(ctx, 85.0, 50.0, 600, 4000)
	assert.Equal(t, 4, firer.count())
}
