package solar

import (
	"context"
	"testing"

	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeReader serves canned entity values; entities not in the map read as
// unavailable.
type fakeReader struct {
	values map[string]float64
}

func (f *fakeReader) GetNumericState(_ context.Context, entityID string) (float64, bool) {
	v, ok := f.values[entityID]
	return v, ok
}

func (f *fakeReader) set(entityID string, v float64) {
	if f.values == nil {
		f.values = make(map[string]float64)
	}
	f.values[entityID] = v
}

func (f *fakeReader) unset(entityID string) {
	delete(f.values, entityID)
}

func TestNormalizePriceExplicitUnit(t *testing.T) {
	assert.InDelta(t, 0.125, normalizePrice(12.5, PriceUnitCent, false), 1e-9)
	assert.InDelta(t, 12.5, normalizePrice(12.5, PriceUnitEUR, false), 1e-9)
	assert.InDelta(t, 0.1092, normalizePrice(0.1092, PriceUnitEUR, false), 1e-9)
}

func TestNormalizePriceAutoDetect(t *testing.T) {
	// Above 1.0 is assumed to be ct/kWh.
	assert.InDelta(t, 0.25, normalizePrice(25.0, PriceUnitEUR, true), 1e-9)
	// At or below 1.0 is never divided.
	assert.InDelta(t, 0.8, normalizePrice(0.8, PriceUnitCent, true), 1e-9)
	assert.InDelta(t, 1.0, normalizePrice(1.0, PriceUnitCent, true), 1e-9)
}

func TestPriceResolverStaticOnly(t *testing.T) {
	r := NewPriceResolver(config.PricesConfig{
		ImportPrice:      12.5,
		ImportPriceUnit:  PriceUnitCent,
		FeedInTariff:     0.08,
		FeedInTariffUnit: PriceUnitEUR,
		MarkupFactor:     2.0,
	}, nil, testLogger())

	ctx := context.Background()
	assert.InDelta(t, 0.125, r.ImportPrice(ctx), 1e-9)
	assert.InDelta(t, 0.08, r.ExportTariff(ctx), 1e-9)
	assert.InDelta(t, 0.25, r.GrossImportPrice(ctx), 1e-9)
}

func TestPriceResolverLiveEntityAutoDetects(t *testing.T) {
	reader := &fakeReader{}
	reader.set("sensor.price", 22.4)

	r := NewPriceResolver(config.PricesConfig{
		ImportPrice:       0.10,
		ImportPriceUnit:   PriceUnitEUR,
		ImportPriceEntity: "sensor.price",
		MarkupFactor:      1.0,
	}, reader, testLogger())

	assert.InDelta(t, 0.224, r.ImportPrice(context.Background()), 1e-9)
	importOK, _ := r.Available()
	assert.True(t, importOK)
}

func TestPriceResolverFallsBackToLastKnownGood(t *testing.T) {
	reader := &fakeReader{}
	reader.set("sensor.price", 30.0)

	r := NewPriceResolver(config.PricesConfig{
		ImportPrice:       0.10,
		ImportPriceUnit:   PriceUnitEUR,
		ImportPriceEntity: "sensor.price",
	}, reader, testLogger())

	ctx := context.Background()
	assert.InDelta(t, 0.30, r.ImportPrice(ctx), 1e-9)

	// Sensor drops out; last known good survives.
	reader.unset("sensor.price")
	assert.InDelta(t, 0.30, r.ImportPrice(ctx), 1e-9)
	importOK, _ := r.Available()
	assert.False(t, importOK)
}

func TestPriceResolverFallsBackToStaticWithoutCache(t *testing.T) {
	reader := &fakeReader{} // entity never readable

	r := NewPriceResolver(config.PricesConfig{
		ImportPrice:       0.18,
		ImportPriceUnit:   PriceUnitEUR,
		ImportPriceEntity: "sensor.price",
	}, reader, testLogger())

	assert.InDelta(t, 0.18, r.ImportPrice(context.Background()), 1e-9)
}

func TestGrossImportPriceMarkup(t *testing.T) {
	ctx := context.Background()

	r := NewPriceResolver(config.PricesConfig{
		ImportPrice: 0.10, ImportPriceUnit: PriceUnitEUR, MarkupFactor: 2.0,
	}, nil, testLogger())
	assert.InDelta(t, 0.20, r.GrossImportPrice(ctx), 1e-9)

	// A missing or nonsense markup degrades to net = gross.
	r = NewPriceResolver(config.PricesConfig{
		ImportPrice: 0.10, ImportPriceUnit: PriceUnitEUR, MarkupFactor: 0,
	}, nil, testLogger())
	assert.InDelta(t, 0.10, r.GrossImportPrice(ctx), 1e-9)

	r = NewPriceResolver(config.PricesConfig{
		ImportPrice: 0.10, ImportPriceUnit: PriceUnitEUR, MarkupFactor: -3,
	}, nil, testLogger())
	assert.InDelta(t, 0.10, r.GrossImportPrice(ctx), 1e-9)
}
