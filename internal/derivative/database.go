package derivative

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/store"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Database is the derivative slice of the entity store.
type Database struct {
	db    *gorm.DB
	locks *store.LockTable
}

func NewDatabase(db *gorm.DB, locks *store.LockTable) *Database {
	return &Database{db: db, locks: locks}
}

func (d *Database) Create(deriv *Derivative) error {
	var existing Derivative
	err := d.db.Where("derivative_id = ?", deriv.DerivativeID).First(&existing).Error
	if err == nil {
		return types.E(types.ErrDuplicateID, "derivative %s already exists", deriv.DerivativeID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(deriv).Error
}

func (d *Database) Get(derivativeID string) (*Derivative, error) {
	var deriv Derivative
	if err := d.db.Where("derivative_id = ?", derivativeID).First(&deriv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrNotFound, "derivative %s not found", derivativeID)
		}
		return nil, err
	}
	return &deriv, nil
}

// Update persists a mutated derivative. The caller must hold the entity
// lock.
func (d *Database) Update(deriv *Derivative) error {
	if !d.locks.Held(deriv.DerivativeID) {
		return types.E(types.ErrNotLocked, "derivative %s is not locked for update", deriv.DerivativeID)
	}
	return d.db.Save(deriv).Error
}

func (d *Database) ListByParticipant(address string) ([]Derivative, error) {
	var derivs []Derivative
	if err := d.db.Where("creator = ? OR buyer = ?", address, address).Find(&derivs).Error; err != nil {
		return nil, err
	}
	return derivs, nil
}

func (d *Database) ListNeedingReconciliation() ([]Derivative, error) {
	var derivs []Derivative
	if err := d.db.Where("needs_reconciliation = ?", true).Find(&derivs).Error; err != nil {
		return nil, err
	}
	return derivs, nil
}

// ListExpiredActive returns contracts still stored as ACTIVE whose
// expiration has passed, for the background sweep to settle as EXPIRED.
func (d *Database) ListExpiredActive(now time.Time) ([]Derivative, error) {
	var derivs []Derivative
	err := d.db.Where("status = ? AND expiration_time <= ? AND pending_confirmation = ?",
		StatusActive, now, false).Find(&derivs).Error
	if err != nil {
		return nil, err
	}
	return derivs, nil
}
