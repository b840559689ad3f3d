package engine

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PendingTransition preserves the optimistic post-transition record of a
// transaction that timed out locally. The coordinator rolls the entity
// back to its snapshot; if reconciliation later finds the intent landed on
// the Ledger, the stored payload is what the record must become. Adopting
// the ledger status alone would drop the transition's data (a matched loan
// with no lender, principal, or start time).
type PendingTransition struct {
	gorm.Model
	EntityID   string `gorm:"uniqueIndex" json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	NewStatus  string `json:"new_status"`
	Payload    []byte `json:"payload"`
}

// stashPendingTransition records the post-transition state under the
// entity id, replacing any earlier stash.
func (e *Engine) stashPendingTransition(kind, entityID, newStatus string, record interface{}, logger zerolog.Logger) {
	payload, err := json.Marshal(record)
	if err != nil {
		logger.Error().Err(err).Str("entity_id", entityID).Msg("failed to encode pending transition")
		return
	}

	e.clearPendingTransition(entityID)
	row := &PendingTransition{
		EntityID:   entityID,
		EntityKind: kind,
		NewStatus:  newStatus,
		Payload:    payload,
	}
	if err := e.db.Create(row).Error; err != nil {
		logger.Error().Err(err).Str("entity_id", entityID).Msg("failed to store pending transition")
	}
}

// restorePendingTransition loads the stashed post-transition record into
// dest when the status the Ledger reports matches the stash. Returns false
// when no usable stash exists and the caller must fall back to adopting
// the status alone.
func (e *Engine) restorePendingTransition(entityID, ledgerStatus string, dest interface{}, logger zerolog.Logger) bool {
	var row PendingTransition
	if err := e.db.Where("entity_id = ?", entityID).First(&row).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Err(err).Str("entity_id", entityID).Msg("failed to load pending transition")
		}
		return false
	}
	if row.NewStatus != ledgerStatus {
		logger.Warn().
			Str("entity_id", entityID).
			Str("stashed_status", row.NewStatus).
			Str("ledger_status", ledgerStatus).
			Msg("pending transition does not match ledger state, adopting status only")
		return false
	}
	if err := json.Unmarshal(row.Payload, dest); err != nil {
		logger.Error().Err(err).Str("entity_id", entityID).Msg("failed to decode pending transition")
		return false
	}
	return true
}

// clearPendingTransition drops the stash once reconciliation has resolved
// the entity. The delete is hard so a later stash can reuse the entity id.
func (e *Engine) clearPendingTransition(entityID string) {
	e.db.Unscoped().Where("entity_id = ?", entityID).Delete(&PendingTransition{})
}
