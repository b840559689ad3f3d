package engine

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord pins a client-supplied key to the entity a create
// operation produced, so a retried create returns the original record
// instead of submitting a second intent to the Ledger.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// lookupIdempotent returns the resource id previously stored under the
// key, if the record exists and has not expired.
func (e *Engine) lookupIdempotent(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	var record IdempotencyRecord
	err := e.db.Where("idempotency_key = ?", key).First(&record).Error
	if err != nil {
		return "", false
	}
	if record.ExpiresAt.Before(e.now()) {
		return "", false
	}
	return record.ResourceID, true
}

func (e *Engine) saveIdempotent(key, resourceType, resourceID string) error {
	if key == "" {
		return nil
	}
	record := &IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		ExpiresAt:      e.now().Add(e.cfg.IdempotencyTTL),
	}
	err := e.db.Create(record).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}
