package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finquest/internal/models"
	"finquest/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users & portfolios -----------------------------------------------------

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByAuthID(ctx context.Context, authUserID uuid.UUID) (*models.User, error) {
	if s == nil || s.db == nil || authUserID == uuid.Nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).
		Where("auth_user_id = ?", authUserID).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPortfolioByID(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil, nil
	}
	var item models.Portfolio
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPortfolioByUserID(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error) {
	if s == nil || s.db == nil || userID == uuid.Nil {
		return nil, nil
	}
	var item models.Portfolio
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreatePortfolio(ctx context.Context, item *models.Portfolio) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListActivePortfolios(ctx context.Context) ([]models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Portfolio
	if err := s.db.WithContext(ctx).
		Model(&models.Portfolio{}).
		Where("deleted_at IS NULL").
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Instruments ------------------------------------------------------------

func (s *Store) GetInstrumentByID(ctx context.Context, id uuid.UUID) (*models.Instrument, error) {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil, nil
	}
	var item models.Instrument
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, nil
	}
	var item models.Instrument
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInstrumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Instrument, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.Instrument
	if err := s.db.WithContext(ctx).
		Model(&models.Instrument{}).
		Where("id IN ?", ids).
		Where("deleted_at IS NULL").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateInstrument(ctx context.Context, item *models.Instrument) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Symbol) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- Ledger -----------------------------------------------------------------

func (s *Store) InsertTransaction(ctx context.Context, item *models.Transaction) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil, nil
	}
	var item models.Transaction
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActiveTransactions(ctx context.Context, portfolioID uuid.UUID, asOf *time.Time) ([]models.Transaction, error) {
	if s == nil || s.db == nil || portfolioID == uuid.Nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("portfolio_id = ?", portfolioID).
		Where("deleted_at IS NULL")
	if asOf != nil && !asOf.IsZero() {
		query = query.Where("executed_at <= ?", asOf.UTC())
	}
	var items []models.Transaction
	if err := query.
		Order("executed_at asc, created_at asc, id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SoftDeleteTransaction(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Update("deleted_at", at.UTC()).Error
}

func (s *Store) ListHeldInstrumentIDs(ctx context.Context, portfolioID *uuid.UUID) ([]uuid.UUID, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Distinct("instrument_id").
		Where("deleted_at IS NULL")
	if portfolioID != nil && *portfolioID != uuid.Nil {
		query = query.Where("portfolio_id = ?", *portfolioID)
	}
	var ids []uuid.UUID
	if err := query.Pluck("instrument_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Price cache ------------------------------------------------------------

func (s *Store) GetLatestPrice(ctx context.Context, instrumentID uuid.UUID) (*models.InstrumentPriceLatest, error) {
	if s == nil || s.db == nil || instrumentID == uuid.Nil {
		return nil, nil
	}
	var item models.InstrumentPriceLatest
	err := s.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertLatestPrice(ctx context.Context, item *models.InstrumentPriceLatest) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.InstrumentID == uuid.Nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price",
			"ts",
			"day_change_abs",
			"day_change_pct",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetEODPrice(ctx context.Context, instrumentID uuid.UUID, priceDate time.Time) (*models.InstrumentPriceEOD, error) {
	if s == nil || s.db == nil || instrumentID == uuid.Nil {
		return nil, nil
	}
	var item models.InstrumentPriceEOD
	err := s.db.WithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Where("price_date = ?", priceDate.UTC().Truncate(24*time.Hour)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertEODPrice(ctx context.Context, item *models.InstrumentPriceEOD) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.InstrumentID == uuid.Nil {
		return nil
	}
	item.PriceDate = item.PriceDate.UTC().Truncate(24 * time.Hour)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument_id"}, {Name: "price_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open",
			"high",
			"low",
			"close",
			"volume",
		}),
	}).Create(item).Error
}

// --- FX cache ---------------------------------------------------------------

func (s *Store) GetLatestFxRate(ctx context.Context, baseCcy, quoteCcy string) (*models.FxRateSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	baseCcy = strings.ToUpper(strings.TrimSpace(baseCcy))
	quoteCcy = strings.ToUpper(strings.TrimSpace(quoteCcy))
	if baseCcy == "" || quoteCcy == "" {
		return nil, nil
	}
	var item models.FxRateSnapshot
	err := s.db.WithContext(ctx).
		Where("base_ccy = ?", baseCcy).
		Where("quote_ccy = ?", quoteCcy).
		Order("as_of desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetFxRateAt(ctx context.Context, baseCcy, quoteCcy string, when time.Time) (*models.FxRateSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	baseCcy = strings.ToUpper(strings.TrimSpace(baseCcy))
	quoteCcy = strings.ToUpper(strings.TrimSpace(quoteCcy))
	if baseCcy == "" || quoteCcy == "" {
		return nil, nil
	}
	var item models.FxRateSnapshot
	err := s.db.WithContext(ctx).
		Where("base_ccy = ?", baseCcy).
		Where("quote_ccy = ?", quoteCcy).
		Where("as_of <= ?", when.UTC()).
		Order("as_of desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertFxRate(ctx context.Context, item *models.FxRateSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.BaseCcy = strings.ToUpper(strings.TrimSpace(item.BaseCcy))
	item.QuoteCcy = strings.ToUpper(strings.TrimSpace(item.QuoteCcy))
	if item.BaseCcy == "" || item.QuoteCcy == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- Valuation snapshots ----------------------------------------------------

func (s *Store) InsertSnapshot(ctx context.Context, item *models.ValuationSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.AsOf = item.AsOf.UTC()
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSnapshotAt(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (*models.ValuationSnapshot, error) {
	if s == nil || s.db == nil || portfolioID == uuid.Nil {
		return nil, nil
	}
	var item models.ValuationSnapshot
	err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Where("as_of = ?", asOf.UTC()).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindSnapshotNear(ctx context.Context, portfolioID uuid.UUID, asOf time.Time, window time.Duration) (*models.ValuationSnapshot, error) {
	if s == nil || s.db == nil || portfolioID == uuid.Nil {
		return nil, nil
	}
	if window < 0 {
		window = -window
	}
	at := asOf.UTC()
	var item models.ValuationSnapshot
	err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Where("as_of >= ?", at.Add(-window)).
		Where("as_of <= ?", at.Add(window)).
		Order("as_of desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSnapshotsInRange(ctx context.Context, portfolioID uuid.UUID, params repository.ListSnapshotsParams) ([]models.ValuationSnapshot, error) {
	if s == nil || s.db == nil || portfolioID == uuid.Nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.ValuationSnapshot{}).
		Where("portfolio_id = ?", portfolioID)
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("as_of >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("as_of <= ?", params.Until.UTC())
	}
	query = applyOrder(query, "as_of", params.Asc, "as_of")
	limit := normalizeLimit(params.Limit, 5000)
	var items []models.ValuationSnapshot
	if err := query.Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateSnapshotTotalValue(ctx context.Context, id uuid.UUID, totalValue decimal.Decimal) error {
	if s == nil || s.db == nil || id == uuid.Nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.ValuationSnapshot{}).
		Where("id = ?", id).
		Update("total_value", totalValue).Error
}

// --- Helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}
