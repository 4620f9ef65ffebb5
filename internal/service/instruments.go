package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/oracle"
	"finquest/internal/repository"
)

var ErrUnknownSymbol = errors.New("symbol cannot be resolved")

// InstrumentService maintains the instrument catalog, creating rows on
// first sight of a symbol from the oracle's metadata.
type InstrumentService struct {
	Repo   repository.Repository
	Oracle oracle.Oracle
	Logger *zap.Logger
}

// EnsureInstrument returns the instrument for a symbol, resolving and
// creating it when unseen. An unresolvable symbol is ErrUnknownSymbol.
func (s *InstrumentService) EnsureInstrument(ctx context.Context, symbol string) (*models.Instrument, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}
	existing, err := s.Repo.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if s.Oracle == nil {
		return nil, ErrUnknownSymbol
	}
	resolved, err := s.Oracle.ResolveSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, ErrUnknownSymbol
	}
	if !IsValidCurrency(resolved.Currency) {
		resolved.Currency = "USD"
	}

	item := &models.Instrument{
		ID:          uuid.New(),
		Type:        resolved.Type,
		Symbol:      symbol,
		Name:        resolved.Name,
		ExchangeMIC: resolved.ExchangeMIC,
		Currency:    strings.ToUpper(resolved.Currency),
		Sector:      resolved.Sector,
		Industry:    resolved.Industry,
		Country:     resolved.Country,
	}
	if err := s.Repo.CreateInstrument(ctx, item); err != nil {
		// Lost a creation race; the winner's row is the instrument.
		raced, gerr := s.Repo.GetInstrumentBySymbol(ctx, symbol)
		if gerr == nil && raced != nil {
			return raced, nil
		}
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("instrument created",
			zap.String("symbol", item.Symbol),
			zap.String("type", item.Type))
	}
	return item, nil
}

// IsValidCurrency reports whether code is a known ISO-4217 currency.
func IsValidCurrency(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return false
	}
	return money.GetCurrency(code) != nil
}
