package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/oracle"
	"finquest/internal/repository"
)

const (
	fxNowMaxAge = 24 * time.Hour
	fxAtWindow  = 24 * time.Hour
)

// FxService converts trade currencies into a user's base currency, caching
// observed rates in fx_rate_snapshots. A nil rate from every source means
// the conversion is unavailable; callers decide what that costs them.
type FxService struct {
	Repo   repository.Repository
	Oracle oracle.Oracle
	Logger *zap.Logger
}

// FxNow returns the current quote -> base rate. Cached rates younger than
// 24h are served without touching the oracle.
func (s *FxService) FxNow(ctx context.Context, base, quote string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	if base == quote {
		one := decimal.NewFromInt(1)
		return &one
	}
	if s.Repo != nil {
		cached, err := s.Repo.GetLatestFxRate(ctx, base, quote)
		if err == nil && cached != nil && time.Since(cached.AsOf) < fxNowMaxAge {
			rate := cached.Rate
			return &rate
		}
	}
	return s.fetchAndStore(ctx, base, quote, time.Now().UTC())
}

// FxAt returns the quote -> base rate at a historical instant: the nearest
// stored rate at or before `when` within 24h, else the oracle at `when`,
// else the current rate as a last resort.
func (s *FxService) FxAt(ctx context.Context, base, quote string, when time.Time) *decimal.Decimal {
	if s == nil {
		return nil
	}
	if base == quote {
		one := decimal.NewFromInt(1)
		return &one
	}
	when = when.UTC()
	if s.Repo != nil {
		cached, err := s.Repo.GetFxRateAt(ctx, base, quote, when)
		if err == nil && cached != nil && when.Sub(cached.AsOf) <= fxAtWindow {
			rate := cached.Rate
			return &rate
		}
	}
	if rate := s.fetchAndStore(ctx, base, quote, when); rate != nil {
		return rate
	}
	return s.FxNow(ctx, base, quote)
}

func (s *FxService) fetchAndStore(ctx context.Context, base, quote string, asOf time.Time) *decimal.Decimal {
	if s.Oracle == nil {
		return nil
	}
	rate, err := s.Oracle.GetFxRate(ctx, base, quote, asOf)
	if err != nil || rate == nil || !rate.IsPositive() {
		if err != nil && s.Logger != nil {
			s.Logger.Debug("fx rate unavailable",
				zap.String("base", base),
				zap.String("quote", quote),
				zap.Error(err))
		}
		return nil
	}
	if s.Repo != nil {
		item := &models.FxRateSnapshot{
			BaseCcy:  base,
			QuoteCcy: quote,
			AsOf:     asOf,
			Rate:     *rate,
		}
		if err := s.Repo.InsertFxRate(ctx, item); err != nil && s.Logger != nil {
			s.Logger.Warn("failed to cache fx rate", zap.Error(err))
		}
	}
	return rate
}
