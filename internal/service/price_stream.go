package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/client/marketdata"
	"finquest/internal/models"
	"finquest/internal/repository"
)

// PriceStreamService feeds live quote ticks into the latest-price cache so
// held instruments stay marked without polling the oracle.
type PriceStreamService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

type PriceStreamOptions struct {
	URL             string
	RefreshInterval time.Duration
	MaxSymbols      int
}

func (s *PriceStreamService) Run(ctx context.Context, opts PriceStreamOptions) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if s.Logger != nil {
		s.Logger.Info("price stream starting",
			zap.String("url", opts.URL),
			zap.Duration("refresh_interval", opts.RefreshInterval))
	}
	stream := marketdata.NewQuoteStream(marketdata.QuoteStreamOptions{
		URL:             opts.URL,
		RefreshInterval: opts.RefreshInterval,
		SymbolProvider: func(ctx context.Context) ([]string, error) {
			return s.heldSymbols(ctx, opts.MaxSymbols)
		},
		Logger: s.Logger,
	})
	return stream.Run(ctx, func(tick marketdata.QuoteTick) {
		s.handleTick(ctx, tick)
	})
}

func (s *PriceStreamService) heldSymbols(ctx context.Context, maxSymbols int) ([]string, error) {
	ids, err := s.Repo.ListHeldInstrumentIDs(ctx, nil)
	if err != nil {
		return nil, err
	}
	instruments, err := s.Repo.ListInstrumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if maxSymbols <= 0 {
		maxSymbols = 200
	}
	symbols := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if len(symbols) >= maxSymbols {
			break
		}
		symbols = append(symbols, inst.Symbol)
	}
	return symbols, nil
}

func (s *PriceStreamService) handleTick(ctx context.Context, tick marketdata.QuoteTick) {
	price, err := decimal.NewFromString(tick.Price)
	if err != nil || !price.IsPositive() {
		return
	}
	inst, err := s.Repo.GetInstrumentBySymbol(ctx, tick.Symbol)
	if err != nil || inst == nil {
		return
	}
	ts := time.Now().UTC()
	if tick.TS > 0 {
		ts = time.Unix(tick.TS, 0).UTC()
	}
	if err := s.Repo.UpsertLatestPrice(ctx, &models.InstrumentPriceLatest{
		InstrumentID: inst.ID,
		Price:        price,
		TS:           ts,
	}); err != nil && s.Logger != nil {
		s.Logger.Warn("tick upsert failed",
			zap.String("symbol", tick.Symbol),
			zap.Error(err))
	}
}
