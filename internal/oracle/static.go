package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// StaticFeed is an in-process oracle backed by pinned quotes. The server
// and the simulation move prices through SetQuote; tests pin exact values.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[string]Quote)}
}

// SetQuote pins the valuation for an asset with full confidence and a fresh
// timestamp.
func (f *StaticFeed) SetQuote(asset types.AssetRef, value types.Amount) {
	f.SetQuoteAt(asset, value, time.Now(), 100)
}

// SetQuoteAt pins a valuation with an explicit observation time and
// confidence, for exercising the staleness and confidence guards.
func (f *StaticFeed) SetQuoteAt(asset types.AssetRef, value types.Amount, at time.Time, confidencePct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[asset.String()] = Quote{
		Asset:         asset,
		Value:         value,
		Timestamp:     at,
		ConfidencePct: confidencePct,
	}
}

func (f *StaticFeed) LatestValuation(_ context.Context, asset types.AssetRef) (*Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[asset.String()]
	if !ok {
		return nil, types.E(types.ErrOracleUnavailable, "no valuation for asset %s", asset)
	}
	out := q
	return &out, nil
}
