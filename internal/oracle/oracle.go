// Package oracle defines the price feed consumed by transition guards that
// need a valuation of the underlying NFT.
package oracle

import (
	"context"
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Quote is a single valuation of an asset: the appraised value, when it was
// observed, and the feed's confidence in it. The engine rejects guards that
// depend on quotes below the configured confidence floor or older than the
// staleness bound.
type Quote struct {
	Asset         types.AssetRef `json:"asset"`
	Value         types.Amount   `json:"value"`
	Timestamp     time.Time      `json:"timestamp"`
	ConfidencePct float64        `json:"confidence_pct"`
}

// Client is the external price oracle.
type Client interface {
	LatestValuation(ctx context.Context, asset types.AssetRef) (*Quote, error)
}
