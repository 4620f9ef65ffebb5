package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finquest/internal/models"
	"finquest/internal/oracle"
	"finquest/internal/repository"
)

// fakeRepo is an in-memory Repository for service tests. Only the methods
// the services under test reach are implemented; anything else panics via
// the embedded nil interface.
type fakeRepo struct {
	repository.Repository

	users       map[uuid.UUID]*models.User
	portfolios  map[uuid.UUID]*models.Portfolio
	instruments map[uuid.UUID]*models.Instrument
	txs         []models.Transaction
	latest      map[uuid.UUID]*models.InstrumentPriceLatest
	eod         map[string]*models.InstrumentPriceEOD
	fx          []models.FxRateSnapshot
	snapshots   []*models.ValuationSnapshot

	insertSnapshotErr error
	getSnapshotAtErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       map[uuid.UUID]*models.User{},
		portfolios:  map[uuid.UUID]*models.Portfolio{},
		instruments: map[uuid.UUID]*models.Instrument{},
		latest:      map[uuid.UUID]*models.InstrumentPriceLatest{},
		eod:         map[string]*models.InstrumentPriceEOD{},
	}
}

func (f *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}

func (f *fakeRepo) GetPortfolioByID(_ context.Context, id uuid.UUID) (*models.Portfolio, error) {
	return f.portfolios[id], nil
}

func (f *fakeRepo) GetPortfolioByUserID(_ context.Context, userID uuid.UUID) (*models.Portfolio, error) {
	for _, p := range f.portfolios {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreatePortfolio(_ context.Context, item *models.Portfolio) error {
	f.portfolios[item.ID] = item
	return nil
}

func (f *fakeRepo) GetInstrumentByID(_ context.Context, id uuid.UUID) (*models.Instrument, error) {
	return f.instruments[id], nil
}

func (f *fakeRepo) GetInstrumentBySymbol(_ context.Context, symbol string) (*models.Instrument, error) {
	for _, inst := range f.instruments {
		if inst.Symbol == symbol {
			return inst, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListInstrumentsByIDs(_ context.Context, ids []uuid.UUID) ([]models.Instrument, error) {
	var out []models.Instrument
	for _, id := range ids {
		if inst, ok := f.instruments[id]; ok {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateInstrument(_ context.Context, item *models.Instrument) error {
	f.instruments[item.ID] = item
	return nil
}

func (f *fakeRepo) InsertTransaction(_ context.Context, item *models.Transaction) error {
	item.CreatedAt = time.Now().UTC()
	f.txs = append(f.txs, *item)
	return nil
}

func (f *fakeRepo) ListActiveTransactions(_ context.Context, portfolioID uuid.UUID, asOf *time.Time) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range f.txs {
		if tx.PortfolioID != portfolioID || tx.DeletedAt != nil {
			continue
		}
		if asOf != nil && tx.ExecutedAt.After(*asOf) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out, nil
}

func (f *fakeRepo) GetTransactionByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	for i := range f.txs {
		if f.txs[i].ID == id && f.txs[i].DeletedAt == nil {
			tx := f.txs[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) SoftDeleteTransaction(_ context.Context, id uuid.UUID, at time.Time) error {
	for i := range f.txs {
		if f.txs[i].ID == id && f.txs[i].DeletedAt == nil {
			f.txs[i].DeletedAt = &at
		}
	}
	return nil
}

func (f *fakeRepo) GetLatestPrice(_ context.Context, instrumentID uuid.UUID) (*models.InstrumentPriceLatest, error) {
	return f.latest[instrumentID], nil
}

func (f *fakeRepo) UpsertLatestPrice(_ context.Context, item *models.InstrumentPriceLatest) error {
	f.latest[item.InstrumentID] = item
	return nil
}

func eodKey(id uuid.UUID, day time.Time) string {
	return id.String() + "|" + day.UTC().Truncate(24*time.Hour).Format("2006-01-02")
}

func (f *fakeRepo) GetEODPrice(_ context.Context, instrumentID uuid.UUID, priceDate time.Time) (*models.InstrumentPriceEOD, error) {
	return f.eod[eodKey(instrumentID, priceDate)], nil
}

func (f *fakeRepo) UpsertEODPrice(_ context.Context, item *models.InstrumentPriceEOD) error {
	f.eod[eodKey(item.InstrumentID, item.PriceDate)] = item
	return nil
}

func (f *fakeRepo) GetLatestFxRate(_ context.Context, baseCcy, quoteCcy string) (*models.FxRateSnapshot, error) {
	var best *models.FxRateSnapshot
	for i := range f.fx {
		r := &f.fx[i]
		if r.BaseCcy != baseCcy || r.QuoteCcy != quoteCcy {
			continue
		}
		if best == nil || r.AsOf.After(best.AsOf) {
			best = r
		}
	}
	return best, nil
}

func (f *fakeRepo) GetFxRateAt(_ context.Context, baseCcy, quoteCcy string, when time.Time) (*models.FxRateSnapshot, error) {
	var best *models.FxRateSnapshot
	for i := range f.fx {
		r := &f.fx[i]
		if r.BaseCcy != baseCcy || r.QuoteCcy != quoteCcy || r.AsOf.After(when) {
			continue
		}
		if best == nil || r.AsOf.After(best.AsOf) {
			best = r
		}
	}
	return best, nil
}

func (f *fakeRepo) InsertFxRate(_ context.Context, item *models.FxRateSnapshot) error {
	f.fx = append(f.fx, *item)
	return nil
}

func (f *fakeRepo) InsertSnapshot(_ context.Context, item *models.ValuationSnapshot) error {
	if f.insertSnapshotErr != nil {
		return f.insertSnapshotErr
	}
	for _, snap := range f.snapshots {
		if snap.PortfolioID == item.PortfolioID && snap.AsOf.Equal(item.AsOf) {
			return gorm.ErrDuplicatedKey
		}
	}
	f.snapshots = append(f.snapshots, item)
	return nil
}

func (f *fakeRepo) GetSnapshotAt(_ context.Context, portfolioID uuid.UUID, asOf time.Time) (*models.ValuationSnapshot, error) {
	if f.getSnapshotAtErr != nil {
		return nil, f.getSnapshotAtErr
	}
	for _, snap := range f.snapshots {
		if snap.PortfolioID == portfolioID && snap.AsOf.Equal(asOf.UTC()) {
			return snap, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindSnapshotNear(_ context.Context, portfolioID uuid.UUID, asOf time.Time, window time.Duration) (*models.ValuationSnapshot, error) {
	for _, snap := range f.snapshots {
		if snap.PortfolioID != portfolioID {
			continue
		}
		diff := snap.AsOf.Sub(asOf.UTC())
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return snap, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListSnapshotsInRange(_ context.Context, portfolioID uuid.UUID, params repository.ListSnapshotsParams) ([]models.ValuationSnapshot, error) {
	var out []models.ValuationSnapshot
	for _, snap := range f.snapshots {
		if snap.PortfolioID != portfolioID {
			continue
		}
		if params.Since != nil && snap.AsOf.Before(*params.Since) {
			continue
		}
		if params.Until != nil && snap.AsOf.After(*params.Until) {
			continue
		}
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if params.Asc {
			return out[i].AsOf.Before(out[j].AsOf)
		}
		return out[i].AsOf.After(out[j].AsOf)
	})
	return out, nil
}

func (f *fakeRepo) UpdateSnapshotTotalValue(_ context.Context, id uuid.UUID, totalValue decimal.Decimal) error {
	for _, snap := range f.snapshots {
		if snap.ID == id {
			snap.TotalValue = totalValue
			return nil
		}
	}
	return nil
}

// fakeOracle serves one flat price for every symbol.
type fakeOracle struct {
	price      decimal.Decimal
	fxRate     decimal.Decimal
	priceCalls int
}

func (o *fakeOracle) GetPrice(_ context.Context, _ string, asOf *time.Time) (*oracle.PriceRecord, error) {
	o.priceCalls++
	if !o.price.IsPositive() {
		return nil, nil
	}
	ts := time.Now().UTC()
	if asOf != nil {
		ts = asOf.UTC()
	}
	return &oracle.PriceRecord{Price: o.price, TS: ts}, nil
}

func (o *fakeOracle) GetDailyHistory(context.Context, string, time.Time, time.Time) ([]oracle.EODBar, error) {
	return nil, nil
}

func (o *fakeOracle) GetFxRate(_ context.Context, _, _ string, _ time.Time) (*decimal.Decimal, error) {
	if !o.fxRate.IsPositive() {
		return nil, nil
	}
	rate := o.fxRate
	return &rate, nil
}

func (o *fakeOracle) ResolveSymbol(_ context.Context, raw string) (*oracle.ResolvedInstrument, error) {
	return &oracle.ResolvedInstrument{Type: "equity", Symbol: raw, Currency: "USD"}, nil
}
