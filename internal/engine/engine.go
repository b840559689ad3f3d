// Package engine is the transaction coordinator: the single writer through
// which every lifecycle transition flows. Per operation it acquires the
// entity lock, runs the pure state machine, applies the new state
// optimistically, submits the intent to the Ledger, and commits or rolls
// back on finality. The local store is a cache; the Ledger is the truth.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/fraction"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/lending"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/oracle"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/rental"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/store"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
	"gorm.io/gorm"
)

// Engine coordinates every product operation against the shared lock
// table, the product databases, the Price Oracle, and the Ledger.
type Engine struct {
	cfg   Config
	db    *gorm.DB
	locks *store.LockTable

	loans       *lending.Database
	rentals     *rental.Database
	fractions   *fraction.Database
	derivatives *derivative.Database

	ledger   ledger.Client
	oracle   oracle.Client
	notifier *Notifier

	// now is swappable so tests can pin the clock.
	now func() time.Time

	// sleep is swappable so the submit-retry backoff does not stall tests.
	sleep func(time.Duration)
}

func New(db *gorm.DB, ledgerClient ledger.Client, oracleClient oracle.Client, cfg Config) *Engine {
	locks := store.NewLockTable()
	return &Engine{
		cfg:         cfg,
		db:          db,
		locks:       locks,
		loans:       lending.NewDatabase(db, locks),
		rentals:     rental.NewDatabase(db, locks),
		fractions:   fraction.NewDatabase(db, locks),
		derivatives: derivative.NewDatabase(db, locks),
		ledger:      ledgerClient,
		oracle:      oracleClient,
		notifier:    NewNotifier(),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Notifier exposes the change feed for presentation-layer subscribers.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// quoteFor fetches the latest valuation of the asset and enforces the
// staleness and confidence bounds before any guard may depend on it.
func (e *Engine) quoteFor(ctx context.Context, asset types.AssetRef) (types.Amount, error) {
	quote, err := e.oracle.LatestValuation(ctx, asset)
	if err != nil {
		if types.KindOf(err) != "" {
			return types.Amount{}, err
		}
		return types.Amount{}, types.E(types.ErrOracleUnavailable, "valuation of %s: %v", asset, err)
	}

	age := e.now().Sub(quote.Timestamp)
	if age > e.cfg.OracleMaxAge {
		return types.Amount{}, types.E(types.ErrStaleOracleData,
			"quote for %s is %s old, staleness bound %s", asset, age.Round(time.Second), e.cfg.OracleMaxAge)
	}
	if quote.ConfidencePct < e.cfg.OracleMinConfidence {
		return types.Amount{}, types.E(types.ErrStaleOracleData,
			"quote confidence %.1f%% for %s below floor %.1f%%", quote.ConfidencePct, asset, e.cfg.OracleMinConfidence)
	}
	return quote.Value, nil
}

// submitAndAwait pushes the intent to the Ledger and blocks for finality
// within the configured timeout. A submit that fails with a network error
// is retried exactly once after a backoff; every other failure surfaces
// immediately. A deadline expiry is returned as a Timeout, after which the
// caller must roll back and flag the record for reconciliation, since the
// transaction may still land.
func (e *Engine) submitAndAwait(ctx context.Context, intent *ledger.Intent, logger zerolog.Logger) (*ledger.Finality, error) {
	handle, err := e.ledger.Submit(ctx, intent)
	if err != nil && types.IsKind(err, types.ErrNetworkError) {
		logger.Warn().Err(err).Msg("ledger submit failed, retrying once")
		e.sleep(e.cfg.SubmitRetryBackoff)
		handle, err = e.ledger.Submit(ctx, intent)
	}
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.LedgerTimeout)
	defer cancel()

	finality, err := e.ledger.AwaitFinality(waitCtx, handle)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, types.E(types.ErrTimeout,
				"no finality for intent %s within %s", intent.IntentID, e.cfg.LedgerTimeout)
		}
		return nil, err
	}
	return finality, nil
}

// record emits the committed-transition notification.
func (e *Engine) record(entityKind, entityID, action, newStatus string) {
	e.notifier.publish(RecordChanged{
		EntityKind: entityKind,
		EntityID:   entityID,
		Action:     action,
		NewStatus:  newStatus,
		Timestamp:  e.now(),
	})
}
