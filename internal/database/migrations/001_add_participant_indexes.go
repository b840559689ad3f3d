package migrations

import "gorm.io/gorm"

// AddParticipantIndexes creates the composite secondary indexes behind the
// portfolio and reconciliation queries: participant columns paired with
// status, plus the reconciliation flags.
func AddParticipantIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_loans_borrower_status ON loans(borrower, status)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_lender_status ON loans(lender, status)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_reconcile ON loans(needs_reconciliation)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_owner_status ON rentals(owner, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_renter_status ON rentals(renter, status)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_reconcile ON rentals(needs_reconciliation)`,
		`CREATE INDEX IF NOT EXISTS idx_fractions_owner_status ON fractions(original_owner, status)`,
		`CREATE INDEX IF NOT EXISTS idx_fractions_reconcile ON fractions(needs_reconciliation)`,
		`CREATE INDEX IF NOT EXISTS idx_derivatives_creator_status ON derivatives(creator, status)`,
		`CREATE INDEX IF NOT EXISTS idx_derivatives_buyer_status ON derivatives(buyer, status)`,
		`CREATE INDEX IF NOT EXISTS idx_derivatives_expiration ON derivatives(status, expiration_time)`,
		`CREATE INDEX IF NOT EXISTS idx_derivatives_reconcile ON derivatives(needs_reconciliation)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
