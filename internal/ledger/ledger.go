// Package ledger defines the engine's view of the external authoritative
// settlement layer. The Ledger executes atomic custody transfers and
// contract-state changes; it is the only source of truth for money
// movement, and it confirms asynchronously. Everything the engine holds
// locally is a cache to be reconciled against it.
package ledger

import (
	"context"
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// TxHandle identifies a submitted intent while it awaits finality.
type TxHandle string

// Intent is a proposed state change: the entity it targets, the lifecycle
// event that produced it, and the declarative effects the Ledger must apply
// atomically. Creation intents carry an empty EntityID; the Ledger mints
// the on-chain identifier and returns it with the confirmation.
type Intent struct {
	IntentID   string         `json:"intent_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Action     string         `json:"action"`
	NewStatus  string         `json:"new_status"`
	Initiator  string         `json:"initiator"`
	Effects    []types.Effect `json:"effects,omitempty"`
}

// Finality statuses.
const (
	FinalityConfirmed = "CONFIRMED"
	FinalityReverted  = "REVERTED"
)

// Finality is the terminal outcome of a submitted intent.
type Finality struct {
	Status string       `json:"status"`
	Reason string       `json:"reason,omitempty"`
	State  *EntityState `json:"state,omitempty"`
}

// EntityState is the Ledger's authoritative record for an entity, used
// both on confirmation and for reconciliation reads.
type EntityState struct {
	EntityID   string    `json:"entity_id"`
	EntityKind string    `json:"entity_kind"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Client is the Ledger consumed by the transaction coordinator. Submit is
// synchronous intake only; AwaitFinality blocks until the intent confirms,
// reverts, or the context deadline expires (the coordinator treats a
// deadline expiry as a local timeout and rolls back pending state).
type Client interface {
	Submit(ctx context.Context, intent *Intent) (TxHandle, error)
	AwaitFinality(ctx context.Context, handle TxHandle) (*Finality, error)
	ReadEntity(ctx context.Context, entityID string) (*EntityState, error)
}
