package engine

import "time"

// Config tunes the transaction coordinator's interaction with the
// external services.
type Config struct {
	// LedgerTimeout bounds the wait for finality after an intent is
	// submitted. Past it the local state is rolled back and the record
	// flagged for reconciliation.
	LedgerTimeout time.Duration
	// SubmitRetryBackoff is the pause before the single retry of a
	// submit that failed with a network error.
	SubmitRetryBackoff time.Duration
	// OracleMaxAge is the staleness bound on quotes feeding transition
	// guards.
	OracleMaxAge time.Duration
	// OracleMinConfidence is the confidence floor, in percent.
	OracleMinConfidence float64
	// ReconcileInterval is the background reconciler's tick.
	ReconcileInterval time.Duration
	// IdempotencyTTL is how long a create's idempotency key keeps
	// returning the original record.
	IdempotencyTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		LedgerTimeout:       5 * time.Second,
		SubmitRetryBackoff:  250 * time.Millisecond,
		OracleMaxAge:        5 * time.Minute,
		OracleMinConfidence: 80.0,
		ReconcileInterval:   30 * time.Second,
		IdempotencyTTL:      24 * time.Hour,
	}
}
