package rental

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/store"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Database is the rental slice of the entity store.
type Database struct {
	db    *gorm.DB
	locks *store.LockTable
}

func NewDatabase(db *gorm.DB, locks *store.LockTable) *Database {
	return &Database{db: db, locks: locks}
}

func (d *Database) Create(rental *Rental) error {
	var existing Rental
	err := d.db.Where("rental_id = ?", rental.RentalID).First(&existing).Error
	if err == nil {
		return types.E(types.ErrDuplicateID, "rental %s already exists", rental.RentalID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(rental).Error
}

func (d *Database) Get(rentalID string) (*Rental, error) {
	var rental Rental
	if err := d.db.Where("rental_id = ?", rentalID).First(&rental).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrNotFound, "rental %s not found", rentalID)
		}
		return nil, err
	}
	return &rental, nil
}

// Update persists a mutated rental. The caller must hold the entity lock.
func (d *Database) Update(rental *Rental) error {
	if !d.locks.Held(rental.RentalID) {
		return types.E(types.ErrNotLocked, "rental %s is not locked for update", rental.RentalID)
	}
	return d.db.Save(rental).Error
}

func (d *Database) ListByParticipant(address string) ([]Rental, error) {
	var rentals []Rental
	if err := d.db.Where("owner = ? OR renter = ?", address, address).Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}

func (d *Database) ListNeedingReconciliation() ([]Rental, error) {
	var rentals []Rental
	if err := d.db.Where("needs_reconciliation = ?", true).Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}
