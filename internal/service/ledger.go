package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/repository"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidSide         = errors.New("side must be buy or sell")
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNonPositivePrice    = errors.New("price must be positive")
	ErrUnknownCurrency     = errors.New("unknown currency code")
)

type CreateTransactionInput struct {
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Currency   string
	ExecutedAt *time.Time
	Notes      *string
}

// LedgerService owns the append-only transaction ledger and the portfolio
// rows it hangs off. Entries are validated, FX-stamped, and inserted; the
// snapshot service handles any retroactive consequences.
type LedgerService struct {
	Repo        repository.Repository
	Instruments *InstrumentService
	Fx          *FxService
	Logger      *zap.Logger
}

// GetOrCreatePortfolio returns the user's single portfolio, creating it on
// first use.
func (s *LedgerService) GetOrCreatePortfolio(ctx context.Context, userID uuid.UUID) (*models.Portfolio, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	existing, err := s.Repo.GetPortfolioByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	item := &models.Portfolio{
		ID:     uuid.New(),
		UserID: userID,
		Name:   "My Portfolio",
	}
	if err := s.Repo.CreatePortfolio(ctx, item); err != nil {
		raced, gerr := s.Repo.GetPortfolioByUserID(ctx, userID)
		if gerr == nil && raced != nil {
			return raced, nil
		}
		return nil, err
	}
	return item, nil
}

// CreateTransaction validates and appends one ledger entry. The trade
// currency defaults to the instrument's currency; the trade -> base FX
// rate is captured at execution time and stored nil when unavailable.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID uuid.UUID, input CreateTransactionInput) (*models.Transaction, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	side := strings.ToLower(strings.TrimSpace(input.Side))
	if side != models.SideBuy && side != models.SideSell {
		return nil, ErrInvalidSide
	}
	if !input.Quantity.IsPositive() {
		return nil, ErrNonPositiveQuantity
	}
	if !input.Price.IsPositive() {
		return nil, ErrNonPositivePrice
	}

	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	portfolio, err := s.GetOrCreatePortfolio(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	instrument, err := s.Instruments.EnsureInstrument(ctx, input.Symbol)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = instrument.Currency
	}
	if !IsValidCurrency(currency) {
		return nil, ErrUnknownCurrency
	}

	executedAt := time.Now().UTC()
	if input.ExecutedAt != nil && !input.ExecutedAt.IsZero() {
		executedAt = input.ExecutedAt.UTC()
	}

	var fxRate *decimal.Decimal
	if s.Fx != nil {
		fxRate = s.Fx.FxAt(ctx, user.BaseCurrency, currency, executedAt)
	}

	tx := &models.Transaction{
		ID:               uuid.New(),
		PortfolioID:      portfolio.ID,
		InstrumentID:     instrument.ID,
		Side:             side,
		Quantity:         input.Quantity,
		Price:            input.Price,
		TradeCurrency:    currency,
		ExecutedAt:       executedAt,
		FxRateToUserBase: fxRate,
		Notes:            input.Notes,
	}
	if err := s.Repo.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("transaction recorded",
			zap.String("portfolio", portfolio.ID.String()),
			zap.String("symbol", instrument.Symbol),
			zap.String("side", side),
			zap.String("quantity", input.Quantity.String()))
	}
	return tx, nil
}

// DeleteTransaction soft-deletes one ledger entry belonging to the user.
// Returns the deleted row so the caller can recompute from its timestamp.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	portfolio, err := s.Repo.GetPortfolioByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return nil, ErrTransactionNotFound
	}
	tx, err := s.Repo.GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.PortfolioID != portfolio.ID {
		return nil, ErrTransactionNotFound
	}
	if err := s.Repo.SoftDeleteTransaction(ctx, tx.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return tx, nil
}
