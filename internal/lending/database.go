package lending

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/store"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Database is the loan slice of the entity store. Updates are only
// accepted while the coordinator holds the entity's lock.
type Database struct {
	db    *gorm.DB
	locks *store.LockTable
}

func NewDatabase(db *gorm.DB, locks *store.LockTable) *Database {
	return &Database{db: db, locks: locks}
}

// Create inserts a new loan record under its Ledger-assigned id.
func (d *Database) Create(loan *Loan) error {
	var existing Loan
	err := d.db.Where("loan_id = ?", loan.LoanID).First(&existing).Error
	if err == nil {
		return types.E(types.ErrDuplicateID, "loan %s already exists", loan.LoanID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.Create(loan).Error
}

func (d *Database) Get(loanID string) (*Loan, error) {
	var loan Loan
	if err := d.db.Where("loan_id = ?", loanID).First(&loan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.E(types.ErrNotFound, "loan %s not found", loanID)
		}
		return nil, err
	}
	return &loan, nil
}

// Update persists a mutated loan. The caller must hold the entity lock.
func (d *Database) Update(loan *Loan) error {
	if !d.locks.Held(loan.LoanID) {
		return types.E(types.ErrNotLocked, "loan %s is not locked for update", loan.LoanID)
	}
	return d.db.Save(loan).Error
}

// ListByParticipant returns every loan the address takes part in, as
// borrower or lender.
func (d *Database) ListByParticipant(address string) ([]Loan, error) {
	var loans []Loan
	if err := d.db.Where("borrower = ? OR lender = ?", address, address).Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// ListNeedingReconciliation returns loans rolled back after a local
// timeout and still awaiting an authoritative Ledger read.
func (d *Database) ListNeedingReconciliation() ([]Loan, error) {
	var loans []Loan
	if err := d.db.Where("needs_reconciliation = ?", true).Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}
