package fraction

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/store"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Database is the fraction slice of the entity store.
type Database struct {
	db    *gorm.DB
	locks *store.LockTable
}

func NewDatabase(db *gorm.DB, locks *store.LockTable) *Database {
	return &Database{db: db, locks: locks}
}

func (d *Database) Create(frac *Fraction) error {
	var existing Fraction
	err := d.db.Where("fraction_id = ?", frac.FractionID).First(&existing).Error
	if err == nil {
		return types.E(types.ErrDuplicateID, "fraction %s already exists", frac.FractionID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(frac).Error
}

func (d *Database) Get(fractionID string) (*Fraction, error) {
	var frac Fraction
	if err := d.db.Where("fraction_id = ?", fractionID).First(&frac).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrNotFound, "fraction %s not found", fractionID)
		}
		return nil, err
	}
	return &frac, nil
}

// Update persists a mutated fraction. The caller must hold the entity lock.
func (d *Database) Update(frac *Fraction) error {
	if !d.locks.Held(frac.FractionID) {
		return types.E(types.ErrNotLocked, "fraction %s is not locked for update", frac.FractionID)
	}
	return d.db.Save(frac).Error
}

func (d *Database) ListByParticipant(address string) ([]Fraction, error) {
	var fracs []Fraction
	if err := d.db.Where("original_owner = ? OR redeemer = ?", address, address).Find(&fracs).Error; err != nil {
		return nil, err
	}
	return fracs, nil
}

func (d *Database) ListNeedingReconciliation() ([]Fraction, error) {
	var fracs []Fraction
	if err := d.db.Where("needs_reconciliation = ?", true).Find(&fracs).Error; err != nil {
		return nil, err
	}
	return fracs, nil
}
