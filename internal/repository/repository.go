package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finquest/internal/models"
)

// Repository is the storage surface of the valuation backend. Lookups
// return (nil, nil) when the row does not exist.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users & portfolios.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByAuthID(ctx context.Context, authUserID uuid.UUID) (*models.User, error)
	GetPortfolioByID(ctx context.Context, id uuid.UUID) (*models.Portfolio, error)
	GetPortfolioByUserID(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, item *models.Portfolio) error
	ListActivePortfolios(ctx context.Context) ([]models.Portfolio, error)

	// Instruments.
	GetInstrumentByID(ctx context.Context, id uuid.UUID) (*models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	ListInstrumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Instrument, error)
	CreateInstrument(ctx context.Context, item *models.Instrument) error

	// Ledger. ListActiveTransactions is the single ledger read path: it
	// excludes soft-deleted rows and orders by (executed_at, created_at, id)
	// so replays are total-ordered with insertion-order tie-breaks; a non-nil
	// asOf restricts to executed_at <= asOf.
	InsertTransaction(ctx context.Context, item *models.Transaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListActiveTransactions(ctx context.Context, portfolioID uuid.UUID, asOf *time.Time) ([]models.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, id uuid.UUID, at time.Time) error
	ListHeldInstrumentIDs(ctx context.Context, portfolioID *uuid.UUID) ([]uuid.UUID, error)

	// Price cache.
	GetLatestPrice(ctx context.Context, instrumentID uuid.UUID) (*models.InstrumentPriceLatest, error)
	UpsertLatestPrice(ctx context.Context, item *models.InstrumentPriceLatest) error
	GetEODPrice(ctx context.Context, instrumentID uuid.UUID, priceDate time.Time) (*models.InstrumentPriceEOD, error)
	UpsertEODPrice(ctx context.Context, item *models.InstrumentPriceEOD) error

	// FX cache.
	GetLatestFxRate(ctx context.Context, baseCcy, quoteCcy string) (*models.FxRateSnapshot, error)
	GetFxRateAt(ctx context.Context, baseCcy, quoteCcy string, when time.Time) (*models.FxRateSnapshot, error)
	InsertFxRate(ctx context.Context, item *models.FxRateSnapshot) error

	// Valuation snapshots.
	InsertSnapshot(ctx context.Context, item *models.ValuationSnapshot) error
	GetSnapshotAt(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (*models.ValuationSnapshot, error)
	FindSnapshotNear(ctx context.Context, portfolioID uuid.UUID, asOf time.Time, window time.Duration) (*models.ValuationSnapshot, error)
	ListSnapshotsInRange(ctx context.Context, portfolioID uuid.UUID, params ListSnapshotsParams) ([]models.ValuationSnapshot, error)
	UpdateSnapshotTotalValue(ctx context.Context, id uuid.UUID, totalValue decimal.Decimal) error
}

type ListSnapshotsParams struct {
	Since *time.Time
	Until *time.Time
	Limit int
	Asc   bool
}
