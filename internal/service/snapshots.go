package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"finquest/internal/models"
	"finquest/internal/repository"
)

var (
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidRange       = errors.New("invalid time range")
)

type Granularity string

const (
	GranularityHourly  Granularity = "hourly"
	Granularity6Hourly Granularity = "6hourly"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
)

func ParseGranularity(raw string) (Granularity, error) {
	switch Granularity(raw) {
	case GranularityHourly, Granularity6Hourly, GranularityDaily, GranularityWeekly:
		return Granularity(raw), nil
	}
	return "", ErrInvalidGranularity
}

// Step returns the distance between consecutive slots.
func (g Granularity) Step() time.Duration {
	switch g {
	case GranularityHourly:
		return time.Hour
	case Granularity6Hourly:
		return 6 * time.Hour
	case GranularityWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

const (
	// A snapshot within this distance of a slot satisfies it.
	slotTolerance = 60 * time.Second

	// Manual snapshots this close together collapse into one.
	dedupWindow = time.Minute

	// Local wall-clock time of the end-of-day snapshot.
	eodHour   = 0
	eodMinute = 15
)

// RangeReport is the explicit outcome of one reconciliation pass. Failed
// slots are reported, never silently dropped; the pass itself only errors
// when it cannot even enumerate the work.
type RangeReport struct {
	Created []time.Time `json:"created"`
	Skipped []time.Time `json:"skipped"`
	Failed  []time.Time `json:"failed"`
}

// SnapshotService writes and reconciles the portfolio value time series.
type SnapshotService struct {
	Repo      repository.Repository
	Ledger    *LedgerService
	Valuation *ValuationService
	Pricing   *PricingService
	Fx        *FxService
	Logger    *zap.Logger
}

// SnapshotNow persists a live valuation snapshot. With a nil asOf the
// snapshot lands on today's end-of-day slot (00:15 in the owner's
// timezone, stored UTC) and an existing row there is returned as is. An
// explicit asOf instead collapses onto any snapshot within one minute.
func (s *SnapshotService) SnapshotNow(ctx context.Context, userID uuid.UUID, asOf *time.Time) (*models.ValuationSnapshot, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	portfolio, err := s.Ledger.GetOrCreatePortfolio(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var target time.Time
	if asOf == nil {
		target = eodSlot(*user, time.Now().UTC())
		existing, err := s.Repo.GetSnapshotAt(ctx, portfolio.ID, target)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		target = asOf.UTC()
		near, err := s.Repo.FindSnapshotNear(ctx, portfolio.ID, target, dedupWindow)
		if err != nil {
			return nil, err
		}
		if near != nil {
			return near, nil
		}
	}

	txs, err := s.Repo.ListActiveTransactions(ctx, portfolio.ID, nil)
	if err != nil {
		return nil, err
	}
	valuation, err := s.Valuation.Value(ctx, *user, ComputePositions(txs))
	if err != nil {
		return nil, err
	}

	snap := &models.ValuationSnapshot{
		ID:             uuid.New(),
		PortfolioID:    portfolio.ID,
		AsOf:           target,
		TotalValue:     valuation.TotalValue,
		TotalCostBasis: valuation.TotalCostBasis,
		UnrealizedPL:   valuation.UnrealizedPL,
		DailyPL:        &valuation.DailyPL,
	}
	snap.AllocationByType = marshalJSON(valuation.AllocationByType)
	snap.AllocationBySector = marshalJSON(valuation.AllocationBySector)
	snap.TopMovers = marshalJSON(valuation.TopMovers())

	if err := s.Repo.InsertSnapshot(ctx, snap); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent writer claimed the slot first; its row wins.
			return s.Repo.GetSnapshotAt(ctx, portfolio.ID, target)
		}
		return nil, err
	}
	return snap, nil
}

// SnapshotRange backfills one end-of-day snapshot per day in
// [startDate, endDate]. Days that already have their slot are skipped and
// a failed day never stops the rest. Returns the number created.
func (s *SnapshotService) SnapshotRange(ctx context.Context, userID uuid.UUID, startDate, endDate time.Time) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	if endDate.Before(startDate) {
		return 0, ErrInvalidRange
	}
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrUserNotFound
	}
	portfolio, err := s.Ledger.GetOrCreatePortfolio(ctx, user.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	for day := startDate.UTC().Truncate(24 * time.Hour); !day.After(endDate.UTC()); day = day.AddDate(0, 0, 1) {
		target := eodSlotForDate(*user, day.Year(), day.Month(), day.Day())
		existing, err := s.Repo.GetSnapshotAt(ctx, portfolio.ID, target)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("eod backfill failed",
					zap.Time("slot", target),
					zap.Error(err))
			}
			continue
		}
		if existing != nil {
			continue
		}
		if err := s.backfillSlot(ctx, *user, portfolio.ID, target); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("eod backfill failed",
					zap.Time("slot", target),
					zap.Error(err))
			}
			continue
		}
		created++
	}
	return created, nil
}

// RequiredSlots enumerates the granularity boundaries inside [from, to].
// Boundaries are UTC: top of hour, hours 0/6/12/18, midnight, and Monday
// midnight respectively. Inputs without a zone are treated as UTC.
func RequiredSlots(from, to time.Time, granularity Granularity) []time.Time {
	from = from.UTC()
	to = to.UTC()
	if to.Before(from) {
		return nil
	}
	slot := truncateToSlot(from, granularity)
	if slot.Before(from) {
		slot = nextSlot(slot, granularity)
	}
	var slots []time.Time
	for !slot.After(to) {
		slots = append(slots, slot)
		slot = nextSlot(slot, granularity)
	}
	return slots
}

// EnsureSnapshotsForRange makes the snapshot series dense over [from, to]
// at the given granularity. A slot already holding a snapshot within 60s
// is satisfied; every other slot gets a value-only snapshot computed from
// the as-of ledger and historical prices. Each slot is its own failure
// domain.
func (s *SnapshotService) EnsureSnapshotsForRange(ctx context.Context, user models.User, portfolioID uuid.UUID, from, to time.Time, granularity Granularity) (RangeReport, error) {
	report := RangeReport{}
	if s == nil || s.Repo == nil {
		return report, nil
	}
	slots := RequiredSlots(from, to, granularity)
	if len(slots) == 0 {
		return report, nil
	}

	lo := slots[0].Add(-slotTolerance)
	hi := slots[len(slots)-1].Add(slotTolerance)
	existing, err := s.Repo.ListSnapshotsInRange(ctx, portfolioID, repository.ListSnapshotsParams{
		Since: &lo,
		Until: &hi,
		Asc:   true,
	})
	if err != nil {
		return report, err
	}
	existingTimes := make([]time.Time, len(existing))
	for i := range existing {
		existingTimes[i] = existing[i].AsOf
	}

	for _, slot := range slots {
		if satisfied(slot, existingTimes) {
			report.Skipped = append(report.Skipped, slot)
			continue
		}
		// The bulk read above may be stale by now; recheck the exact slot
		// before paying for a historical valuation.
		row, err := s.Repo.GetSnapshotAt(ctx, portfolioID, slot)
		if err == nil && row != nil {
			report.Skipped = append(report.Skipped, slot)
			continue
		}
		if err := s.backfillSlot(ctx, user, portfolioID, slot); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				report.Skipped = append(report.Skipped, slot)
				continue
			}
			if s.Logger != nil {
				s.Logger.Warn("slot backfill failed",
					zap.Time("slot", slot),
					zap.String("granularity", string(granularity)),
					zap.Error(err))
			}
			report.Failed = append(report.Failed, slot)
			continue
		}
		report.Created = append(report.Created, slot)
	}
	return report, nil
}

// RecalculateAfterTransaction recomputes total_value for every snapshot at
// or after txTime, ascending. Snapshots before txTime are never touched.
// Only total_value changes; backfilled rows stay value-only and live rows
// keep their frozen breakdowns. Returns the number updated.
func (s *SnapshotService) RecalculateAfterTransaction(ctx context.Context, portfolioID uuid.UUID, txTime time.Time) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	portfolio, err := s.Repo.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return 0, err
	}
	if portfolio == nil {
		return 0, ErrPortfolioNotFound
	}
	user, err := s.Repo.GetUserByID(ctx, portfolio.UserID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrUserNotFound
	}

	since := txTime.UTC()
	snaps, err := s.Repo.ListSnapshotsInRange(ctx, portfolioID, repository.ListSnapshotsParams{
		Since: &since,
		Asc:   true,
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, snap := range snaps {
		value, err := s.ValueAtTime(ctx, *user, portfolioID, snap.AsOf)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("snapshot recompute failed",
					zap.Time("asOf", snap.AsOf),
					zap.Error(err))
			}
			continue
		}
		if err := s.Repo.UpdateSnapshotTotalValue(ctx, snap.ID, value); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("snapshot update failed",
					zap.Time("asOf", snap.AsOf),
					zap.Error(err))
			}
			continue
		}
		updated++
	}
	return updated, nil
}

// ValueAtTime computes the portfolio's total value at a past instant:
// as-of ledger fold, historical price per position, FX at the instant with
// the current rate as fallback. Positions with no resolvable price are
// omitted.
func (s *SnapshotService) ValueAtTime(ctx context.Context, user models.User, portfolioID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	if s == nil || s.Repo == nil {
		return total, nil
	}
	asOf = asOf.UTC()
	txs, err := s.Repo.ListActiveTransactions(ctx, portfolioID, &asOf)
	if err != nil {
		return total, err
	}
	positions := ComputePositions(txs)
	if len(positions) == 0 {
		return total, nil
	}

	ids := make([]uuid.UUID, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	instruments, err := s.Repo.ListInstrumentsByIDs(ctx, ids)
	if err != nil {
		return total, err
	}

	for _, inst := range instruments {
		pos, ok := positions[inst.ID]
		if !ok {
			continue
		}
		rec := s.Pricing.HistoricalPrice(ctx, inst, asOf)
		if rec == nil {
			if s.Logger != nil {
				s.Logger.Debug("no historical price",
					zap.String("symbol", inst.Symbol),
					zap.Time("asOf", asOf))
			}
			continue
		}
		fx := s.Fx.FxAt(ctx, user.BaseCurrency, pos.TradeCurrency, asOf)
		if fx == nil {
			continue
		}
		total = total.Add(pos.Quantity.Mul(rec.Price).Mul(*fx))
	}
	return total, nil
}

func (s *SnapshotService) backfillSlot(ctx context.Context, user models.User, portfolioID uuid.UUID, slot time.Time) error {
	value, err := s.ValueAtTime(ctx, user, portfolioID, slot)
	if err != nil {
		return err
	}
	return s.Repo.InsertSnapshot(ctx, &models.ValuationSnapshot{
		ID:             uuid.New(),
		PortfolioID:    portfolioID,
		AsOf:           slot,
		TotalValue:     value,
		TotalCostBasis: decimal.Zero,
		UnrealizedPL:   decimal.Zero,
	})
}

// eodSlot maps an instant to its end-of-day snapshot slot: 00:15 on the
// instant's calendar day in the owner's timezone, stored UTC. A broken
// timezone string degrades to UTC.
func eodSlot(user models.User, now time.Time) time.Time {
	local := now.In(userLocation(user))
	return eodSlotForDate(user, local.Year(), local.Month(), local.Day())
}

// eodSlotForDate is eodSlot for an explicit calendar date.
func eodSlotForDate(user models.User, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, eodHour, eodMinute, 0, 0, userLocation(user)).UTC()
}

func userLocation(user models.User) *time.Location {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func truncateToSlot(t time.Time, granularity Granularity) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch granularity {
	case GranularityHourly:
		return midnight.Add(time.Duration(t.Hour()) * time.Hour)
	case Granularity6Hourly:
		return midnight.Add(time.Duration(t.Hour()-t.Hour()%6) * time.Hour)
	case GranularityWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	default:
		return midnight
	}
}

func nextSlot(slot time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityHourly:
		return slot.Add(time.Hour)
	case Granularity6Hourly:
		return slot.Add(6 * time.Hour)
	case GranularityWeekly:
		return slot.AddDate(0, 0, 7)
	default:
		return slot.AddDate(0, 0, 1)
	}
}

func satisfied(slot time.Time, existing []time.Time) bool {
	for _, at := range existing {
		diff := at.Sub(slot)
		if diff < 0 {
			diff = -diff
		}
		if diff <= slotTolerance {
			return true
		}
	}
	return false
}

func marshalJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
