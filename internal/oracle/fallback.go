package oracle

import (
	"context"
)

// PriceStrategy is one step of a price-lookup fallback chain. A strategy
// reports "no data" by returning (nil, nil); errors are treated the same.
type PriceStrategy func(ctx context.Context) (*PriceRecord, error)

// FirstPrice runs strategies in order and returns the first usable record,
// or nil when the whole chain comes up empty. Unavailability of one step
// never aborts the chain.
func FirstPrice(ctx context.Context, strategies ...PriceStrategy) *PriceRecord {
	for _, strategy := range strategies {
		if strategy == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		rec, err := strategy(ctx)
		if err != nil || rec == nil {
			continue
		}
		if rec.Price.IsPositive() {
			return rec
		}
	}
	return nil
}
