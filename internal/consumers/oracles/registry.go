// Package oracles keeps the price feed configuration of the platform. Feeds
// are added, removed and paused only through confirmed timelock actions;
// prices themselves are reported directly.
package oracles

import (
	"math/bits"
	"sort"
	"sync"

	"timelock/internal/timelock/models"
	dErrors "timelock/pkg/domain-errors"
)

// Feed is a registered price feed and its latest report.
type Feed struct {
	Asset     string      `json:"asset"`
	Source    string      `json:"source"`
	Heartbeat models.Tick `json:"heartbeat"`
	Paused    bool        `json:"paused"`
	Price     uint64      `json:"price,omitempty"`
	UpdatedAt models.Tick `json:"updated_at,omitempty"`
}

// Registry holds feeds by asset.
type Registry struct {
	mu           sync.RWMutex
	feeds        map[string]*Feed
	deviationBps uint64
}

// New creates an empty registry with the given deviation threshold.
func New(deviationBps uint64) *Registry {
	return &Registry{feeds: make(map[string]*Feed), deviationBps: deviationBps}
}

func (r *Registry) DeviationThreshold() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deviationBps
}

// Feed returns a copy of the feed for asset.
func (r *Registry) Feed(asset string) (Feed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[asset]
	if !ok {
		return Feed{}, false
	}
	return *f, true
}

// Feeds lists feeds by asset.
func (r *Registry) Feeds() []Feed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Report records a new price. A report that moves the price by more than the
// deviation threshold is rejected.
func (r *Registry) Report(asset string, price uint64, at models.Tick) error {
	if price == 0 {
		return dErrors.New(dErrors.CodeValidation, "price must be non-zero")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[asset]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "no feed for %s", asset)
	}
	if f.Paused {
		return dErrors.Newf(dErrors.CodeConflict, "feed for %s is paused", asset)
	}
	if f.Price != 0 && exceedsDeviation(f.Price, price, r.deviationBps) {
		return dErrors.Newf(dErrors.CodeConflict, "price for %s moved beyond %d bps", asset, r.deviationBps)
	}
	f.Price = price
	f.UpdatedAt = at
	return nil
}

// Price returns the latest price for asset if the feed is live and fresh at
// now. A report stamped after now counts as fresh.
func (r *Registry) Price(asset string, now models.Tick) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[asset]
	switch {
	case !ok:
		return 0, dErrors.Newf(dErrors.CodeNotFound, "no feed for %s", asset)
	case f.Paused:
		return 0, dErrors.Newf(dErrors.CodeConflict, "feed for %s is paused", asset)
	case f.Price == 0 || now > f.UpdatedAt && now-f.UpdatedAt > f.Heartbeat:
		return 0, dErrors.Newf(dErrors.CodeConflict, "price for %s is stale", asset)
	}
	return f.Price, nil
}

// exceedsDeviation reports whether |next-prev|/prev > bps/BasisPoints. Both
// sides are compared as 128-bit products.
func exceedsDeviation(prev, next, bps uint64) bool {
	diff := next - prev
	if next < prev {
		diff = prev - next
	}
	dHi, dLo := bits.Mul64(diff, models.BasisPoints)
	pHi, pLo := bits.Mul64(prev, bps)
	return dHi > pHi || dHi == pHi && dLo > pLo
}
