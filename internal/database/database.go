package database

import (
	"fmt"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/database/migrations"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/engine"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/fraction"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/lending"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/rental"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite store at the given path and migrates the
// product schemas. Pass "file::memory:?cache=shared" for an ephemeral
// database.
func NewDatabase(path string) (*gorm.DB, error) {
	// TranslateError maps the driver's unique-constraint error to
	// gorm.ErrDuplicatedKey, which the idempotency save relies on.
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&lending.Loan{},
		&rental.Rental{},
		&fraction.Fraction{},
		&derivative.Derivative{},
		&engine.IdempotencyRecord{},
		&engine.PendingTransition{},
	)
	if err != nil {
		return nil, err
	}

	if err := migrations.AddParticipantIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
