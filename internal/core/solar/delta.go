package solar

// DeltaTracker converts successive absolute cumulative-energy readings into
// non-negative deltas. Metering sensors occasionally report a full cumulative
// total instead of an increment, or reset to zero after a firmware update;
// naive subtraction would corrupt the lifetime accumulators permanently, so
// anomalous readings rebase the baseline and yield a zero delta instead.
type DeltaTracker struct {
	last     float64
	seen     bool
	maxDelta float64
}

// NewDeltaTracker creates a tracker with the given plausibility ceiling.
func NewDeltaTracker(maxDelta float64) *DeltaTracker {
	return &DeltaTracker{maxDelta: maxDelta}
}

// Apply feeds a new absolute reading and returns the accepted delta.
// The first observation establishes the baseline and yields zero. A negative
// delta is a counter reset; a delta above the ceiling is a spurious absolute
// value. Both rebase to the new reading and yield zero.
func (t *DeltaTracker) Apply(reading float64) float64 {
	if !t.seen {
		t.last = reading
		t.seen = true
		return 0
	}

	delta := reading - t.last
	t.last = reading

	if delta < 0 || delta > t.maxDelta {
		return 0
	}
	return delta
}

// Rebase sets the baseline without producing a delta. Used after reset
// operations so the drop back is not booked as negative energy.
func (t *DeltaTracker) Rebase(reading float64) {
	t.last = reading
	t.seen = true
}

// Reset clears the baseline entirely; the next reading re-establishes it.
func (t *DeltaTracker) Reset() {
	t.last = 0
	t.seen = false
}

// Baseline returns the current baseline and whether one is established.
func (t *DeltaTracker) Baseline() (float64, bool) {
	return t.last, t.seen
}
