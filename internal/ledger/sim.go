package ledger

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Entity id prefixes assigned by the chain, keyed by entity kind.
var idPrefixes = map[string]string{
	types.EntityLoan:       "LN_",
	types.EntityRental:     "RNT_",
	types.EntityFraction:   "FRX_",
	types.EntityDerivative: "DRV_",
}

// SimulatorConfig tunes the simulated chain's behavior.
type SimulatorConfig struct {
	MinLatency  time.Duration // earliest confirmation after submit
	MaxLatency  time.Duration
	SuccessRate float64 // probability an intent confirms rather than reverts
}

// DefaultSimulatorConfig mirrors a fast devnet: quick blocks, occasional
// reverts.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		MinLatency:  5 * time.Millisecond,
		MaxLatency:  50 * time.Millisecond,
		SuccessRate: 0.97,
	}
}

type pendingTx struct {
	intent  *Intent
	readyAt time.Time
	outcome *Finality
}

// Simulator is an in-process Ledger with configurable confirmation latency
// and success rate. The outcome of an intent is fixed at submission but
// only observable once the simulated confirmation time has passed — a
// locally timed-out transaction can still land afterwards, which is what
// the reconciler exists to absorb.
type Simulator struct {
	cfg SimulatorConfig

	mu       sync.Mutex
	pending  map[TxHandle]*pendingTx
	entities map[string]*EntityState
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &Simulator{
		cfg:      cfg,
		pending:  make(map[TxHandle]*pendingTx),
		entities: make(map[string]*EntityState),
	}
}

// Submit accepts an intent and schedules its confirmation. Creation
// intents are assigned their on-chain entity id here.
func (s *Simulator) Submit(_ context.Context, intent *Intent) (TxHandle, error) {
	if intent == nil {
		return "", types.E(types.ErrNetworkError, "nil intent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entityID := intent.EntityID
	if entityID == "" {
		prefix, ok := idPrefixes[intent.EntityKind]
		if !ok {
			return "", types.E(types.ErrLedgerRejected, "unknown entity kind %q", intent.EntityKind)
		}
		entityID = prefix + uuid.New().String()
	}

	latency := s.cfg.MinLatency
	if spread := s.cfg.MaxLatency - s.cfg.MinLatency; spread > 0 {
		latency += time.Duration(rand.Int63n(int64(spread)))
	}

	outcome := &Finality{
		Status: FinalityConfirmed,
		State: &EntityState{
			EntityID:   entityID,
			EntityKind: intent.EntityKind,
			Status:     intent.NewStatus,
			UpdatedAt:  time.Now().Add(latency),
		},
	}
	if rand.Float64() > s.cfg.SuccessRate {
		outcome = &Finality{Status: FinalityReverted, Reason: "execution reverted"}
	}

	handle := TxHandle("TX_" + uuid.New().String())
	s.pending[handle] = &pendingTx{
		intent:  intent,
		readyAt: time.Now().Add(latency),
		outcome: outcome,
	}

	log.Debug().
		Str("component", "ledger_sim").
		Str("tx", string(handle)).
		Str("entity_id", entityID).
		Str("action", intent.Action).
		Dur("latency", latency).
		Msg("intent accepted")

	return handle, nil
}

// AwaitFinality blocks until the intent's confirmation time passes or the
// context expires. The tx keeps its scheduled outcome either way: a caller
// that gave up can still observe the landed state via ReadEntity.
func (s *Simulator) AwaitFinality(ctx context.Context, handle TxHandle) (*Finality, error) {
	s.mu.Lock()
	tx, ok := s.pending[handle]
	s.mu.Unlock()
	if !ok {
		return nil, types.E(types.ErrNotFound, "unknown tx handle %s", handle)
	}

	wait := time.Until(tx.readyAt)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(time.Now())
	return tx.outcome, nil
}

// ReadEntity returns the chain's authoritative state for the entity.
func (s *Simulator) ReadEntity(_ context.Context, entityID string) (*EntityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(time.Now())

	state, ok := s.entities[entityID]
	if !ok {
		return nil, types.E(types.ErrNotFound, "entity %s not on ledger", entityID)
	}
	out := *state
	return &out, nil
}

// settleLocked applies every pending tx whose confirmation time has passed.
func (s *Simulator) settleLocked(now time.Time) {
	for handle, tx := range s.pending {
		if tx.readyAt.After(now) {
			continue
		}
		if tx.outcome.Status == FinalityConfirmed && tx.outcome.State != nil {
			state := *tx.outcome.State
			s.entities[state.EntityID] = &state
		}
		delete(s.pending, handle)
	}
}
