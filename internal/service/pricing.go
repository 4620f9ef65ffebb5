package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/oracle"
	"finquest/internal/repository"
)

const (
	latestPriceMaxAge = time.Hour

	// Slots this close to now are still worth an intraday quote; older
	// slots go straight to daily history.
	intradayLookback = 6 * time.Hour
)

// PricingService resolves instrument prices through a DB cache backed by
// the oracle. Every lookup degrades along an explicit fallback chain and
// returns nil only when the whole chain comes up empty.
type PricingService struct {
	Repo   repository.Repository
	Oracle oracle.Oracle
	Logger *zap.Logger
}

// LatestPrice returns the freshest known price for an instrument: the DB
// cache when younger than 1h, else a live oracle quote (persisted on
// success), else the stale cache row, else the previous close.
func (s *PricingService) LatestPrice(ctx context.Context, inst models.Instrument) *oracle.PriceRecord {
	if s == nil {
		return nil
	}
	var cached *models.InstrumentPriceLatest
	if s.Repo != nil {
		cached, _ = s.Repo.GetLatestPrice(ctx, inst.ID)
		if cached != nil && time.Since(cached.TS) < latestPriceMaxAge {
			return latestToRecord(cached)
		}
	}

	rec := oracle.FirstPrice(ctx,
		s.liveQuote(inst),
		staticRecord(latestToRecord(cached)),
		s.previousClose(inst),
	)
	if rec == nil {
		return nil
	}
	if s.Repo != nil && (cached == nil || rec.TS.After(cached.TS)) {
		item := &models.InstrumentPriceLatest{
			InstrumentID: inst.ID,
			Price:        rec.Price,
			TS:           rec.TS,
			DayChangeAbs: rec.DayChangeAbs,
			DayChangePct: rec.DayChangePct,
		}
		if err := s.Repo.UpsertLatestPrice(ctx, item); err != nil && s.Logger != nil {
			s.Logger.Warn("failed to cache latest price",
				zap.String("symbol", inst.Symbol),
				zap.Error(err))
		}
	}
	return rec
}

// HistoricalPrice returns the best price for an instrument at a past
// instant: an intraday quote when the target is recent, else the last
// daily close at or before the target date, else whatever LatestPrice
// still knows.
func (s *PricingService) HistoricalPrice(ctx context.Context, inst models.Instrument, asOf time.Time) *oracle.PriceRecord {
	if s == nil {
		return nil
	}
	asOf = asOf.UTC()

	strategies := make([]oracle.PriceStrategy, 0, 3)
	if time.Since(asOf) <= intradayLookback {
		strategies = append(strategies, s.liveQuote(inst))
	}
	strategies = append(strategies,
		s.dailyClose(inst, asOf),
		func(ctx context.Context) (*oracle.PriceRecord, error) {
			return s.LatestPrice(ctx, inst), nil
		},
	)
	return oracle.FirstPrice(ctx, strategies...)
}

// RefreshLatest forces an oracle refresh of the cached latest price.
func (s *PricingService) RefreshLatest(ctx context.Context, inst models.Instrument) error {
	if s == nil || s.Oracle == nil || s.Repo == nil {
		return nil
	}
	rec, err := s.Oracle.GetPrice(ctx, inst.Symbol, nil)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return s.Repo.UpsertLatestPrice(ctx, &models.InstrumentPriceLatest{
		InstrumentID: inst.ID,
		Price:        rec.Price,
		TS:           rec.TS,
		DayChangeAbs: rec.DayChangeAbs,
		DayChangePct: rec.DayChangePct,
	})
}

func (s *PricingService) liveQuote(inst models.Instrument) oracle.PriceStrategy {
	return func(ctx context.Context) (*oracle.PriceRecord, error) {
		if s.Oracle == nil {
			return nil, nil
		}
		return s.Oracle.GetPrice(ctx, inst.Symbol, nil)
	}
}

// dailyClose prefers the stored EOD row for the target date, then the
// oracle's daily history at or before it. Persisted bars make the next
// backfill over the same range oracle-free.
func (s *PricingService) dailyClose(inst models.Instrument, asOf time.Time) oracle.PriceStrategy {
	return func(ctx context.Context) (*oracle.PriceRecord, error) {
		day := asOf.Truncate(24 * time.Hour)
		if s.Repo != nil {
			row, err := s.Repo.GetEODPrice(ctx, inst.ID, day)
			if err == nil && row != nil {
				return &oracle.PriceRecord{Price: row.Close, TS: row.PriceDate}, nil
			}
		}
		if s.Oracle == nil {
			return nil, nil
		}
		rec, err := s.Oracle.GetPrice(ctx, inst.Symbol, &asOf)
		if err != nil || rec == nil {
			return rec, err
		}
		if s.Repo != nil {
			bar := &models.InstrumentPriceEOD{
				InstrumentID: inst.ID,
				PriceDate:    rec.TS.UTC().Truncate(24 * time.Hour),
				Close:        rec.Price,
			}
			if uerr := s.Repo.UpsertEODPrice(ctx, bar); uerr != nil && s.Logger != nil {
				s.Logger.Warn("failed to cache eod price",
					zap.String("symbol", inst.Symbol),
					zap.Error(uerr))
			}
		}
		return rec, nil
	}
}

func (s *PricingService) previousClose(inst models.Instrument) oracle.PriceStrategy {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	return s.dailyClose(inst, yesterday)
}

func staticRecord(rec *oracle.PriceRecord) oracle.PriceStrategy {
	return func(context.Context) (*oracle.PriceRecord, error) {
		return rec, nil
	}
}

func latestToRecord(item *models.InstrumentPriceLatest) *oracle.PriceRecord {
	if item == nil {
		return nil
	}
	return &oracle.PriceRecord{
		Price:        item.Price,
		TS:           item.TS,
		DayChangeAbs: item.DayChangeAbs,
		DayChangePct: item.DayChangePct,
	}
}
