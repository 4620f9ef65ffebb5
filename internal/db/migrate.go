package db

import (
	"finquest/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Portfolio{},
		&models.Instrument{},
		&models.Transaction{},
		&models.InstrumentPriceLatest{},
		&models.InstrumentPriceEOD{},
		&models.FxRateSnapshot{},
		&models.ValuationSnapshot{},
	)
}
