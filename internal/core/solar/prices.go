package solar

import (
	"context"
	"sync"

	"github.com/frostdev-ops/pma-solar-go/internal/config"
	"github.com/sirupsen/logrus"
)

// PriceResolver resolves the effective import price and export tariff in
// EUR/kWh, from a live price entity when configured, with a last-known-good
// cache for transient sensor loss and the static configured value as the
// final fallback.
type PriceResolver struct {
	cfg    config.PricesConfig
	reader StateReader
	logger *logrus.Logger

	mu              sync.Mutex
	lastKnownImport float64
	hasKnownImport  bool
	lastKnownTariff float64
	hasKnownTariff  bool
	importAvailable bool
	tariffAvailable bool
}

// NewPriceResolver creates a resolver. reader may be nil when no live price
// entities are configured.
func NewPriceResolver(cfg config.PricesConfig, reader StateReader, logger *logrus.Logger) *PriceResolver {
	return &PriceResolver{
		cfg:             cfg,
		reader:          reader,
		logger:          logger,
		importAvailable: true,
		tariffAvailable: true,
	}
}

// normalizePrice converts a raw price to EUR/kWh. With autoDetect, any value
// above 1.0 is assumed to be ct/kWh; otherwise the explicit unit tag decides.
func normalizePrice(raw float64, unit string, autoDetect bool) float64 {
	if autoDetect {
		if raw > 1.0 {
			return raw / 100.0
		}
		return raw
	}
	if unit == PriceUnitCent {
		return raw / 100.0
	}
	return raw
}

// ImportPrice returns the current net import price in EUR/kWh.
func (r *PriceResolver) ImportPrice(ctx context.Context) float64 {
	staticPrice := normalizePrice(r.cfg.ImportPrice, r.cfg.ImportPriceUnit, false)

	if r.cfg.ImportPriceEntity == "" || r.reader == nil {
		r.setImportAvailable(true)
		return staticPrice
	}

	raw, ok := r.reader.GetNumericState(ctx, r.cfg.ImportPriceEntity)
	if ok {
		price := normalizePrice(raw, r.cfg.ImportPriceUnit, true)
		r.mu.Lock()
		r.lastKnownImport = price
		r.hasKnownImport = true
		r.importAvailable = true
		r.mu.Unlock()
		return price
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.importAvailable = false
	if r.hasKnownImport {
		return r.lastKnownImport
	}
	return staticPrice
}

// ExportTariff returns the current feed-in tariff in EUR/kWh.
func (r *PriceResolver) ExportTariff(ctx context.Context) float64 {
	staticTariff := normalizePrice(r.cfg.FeedInTariff, r.cfg.FeedInTariffUnit, false)

	if r.cfg.FeedInTariffEntity == "" || r.reader == nil {
		r.setTariffAvailable(true)
		return staticTariff
	}

	raw, ok := r.reader.GetNumericState(ctx, r.cfg.FeedInTariffEntity)
	if ok {
		tariff := normalizePrice(raw, r.cfg.FeedInTariffUnit, true)
		r.mu.Lock()
		r.lastKnownTariff = tariff
		r.hasKnownTariff = true
		r.tariffAvailable = true
		r.mu.Unlock()
		return tariff
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tariffAvailable = false
	if r.hasKnownTariff {
		return r.lastKnownTariff
	}
	return staticTariff
}

// GrossImportPrice returns what the user actually pays per kWh: the net
// import price multiplied by the markup factor covering grid fees and taxes.
// Savings calculations must use this, not the raw resolved price.
func (r *PriceResolver) GrossImportPrice(ctx context.Context) float64 {
	markup := r.cfg.MarkupFactor
	if markup <= 0 {
		markup = 1.0
	}
	return r.ImportPrice(ctx) * markup
}

// Available reports whether the live import price and tariff sensors were
// readable on their most recent resolution.
func (r *PriceResolver) Available() (importOK, tariffOK bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.importAvailable, r.tariffAvailable
}

func (r *PriceResolver) setImportAvailable(ok bool) {
	r.mu.Lock()
	r.importAvailable = ok
	r.mu.Unlock()
}

func (r *PriceResolver) setTariffAvailable(ok bool) {
	r.mu.Lock()
	r.tariffAvailable = ok
	r.mu.Unlock()
}
