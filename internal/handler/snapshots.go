package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/models"
	"finquest/internal/repository"
	"finquest/internal/service"
)

const defaultHistoryDays = 90

type SnapshotHandler struct {
	Repo      repository.Repository
	Snapshots *service.SnapshotService
	Logger    *zap.Logger

	// MaxRangeDays caps POST generate ranges; zero means 366.
	MaxRangeDays int
}

func (h *SnapshotHandler) Register(r *gin.Engine) {
	p := r.Group("/api/v1/portfolio/snapshots")
	p.GET("", h.list)
	p.POST("/generate", h.generate)
}

type seriesPoint struct {
	AsOf       time.Time       `json:"asOf"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

type seriesResponse struct {
	BaseCurrency string        `json:"baseCurrency"`
	Series       []seriesPoint `json:"series"`
}

// @Summary Portfolio value history
// @Tags snapshots
// @Param X-User-ID header string true "User id"
// @Param from query string false "RFC3339 or YYYY-MM-DD, default now-90d"
// @Param to query string false "RFC3339 or YYYY-MM-DD, default now"
// @Param granularity query string false "hourly|6hourly|daily|weekly"
// @Success 200 {object} seriesResponse
// @Router /api/v1/portfolio/snapshots [get]
func (h *SnapshotHandler) list(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.Repo.GetUserByID(ctx, userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}

	now := time.Now().UTC()
	from, ok := timeQuery(c, "from", now.AddDate(0, 0, -defaultHistoryDays))
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to", now)
	if !ok {
		return
	}
	if to.Before(from) {
		Error(c, http.StatusBadRequest, "to precedes from", nil)
		return
	}

	portfolio, err := h.Repo.GetPortfolioByUserID(ctx, user.ID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if portfolio == nil {
		Ok(c, seriesResponse{BaseCurrency: user.BaseCurrency, Series: []seriesPoint{}}, nil)
		return
	}

	var meta map[string]any
	rawGranularity := strings.TrimSpace(c.Query("granularity"))
	if rawGranularity != "" {
		granularity, err := service.ParseGranularity(rawGranularity)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		report, err := h.Snapshots.EnsureSnapshotsForRange(ctx, *user, portfolio.ID, from, to, granularity)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if len(report.Failed) > 0 && h.Logger != nil {
			h.Logger.Warn("series has unfilled slots",
				zap.String("portfolio", portfolio.ID.String()),
				zap.Int("failed", len(report.Failed)))
		}
		meta = map[string]any{
			"created": len(report.Created),
			"skipped": len(report.Skipped),
			"failed":  len(report.Failed),
		}
	}

	snaps, err := h.Repo.ListSnapshotsInRange(ctx, portfolio.ID, repository.ListSnapshotsParams{
		Since: &from,
		Until: &to,
		Asc:   true,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	series := make([]seriesPoint, 0, len(snaps))
	if rawGranularity != "" {
		granularity, _ := service.ParseGranularity(rawGranularity)
		series = thinToGranularity(snaps, from, to, granularity)
	} else {
		for _, snap := range snaps {
			series = append(series, seriesPoint{AsOf: snap.AsOf, TotalValue: snap.TotalValue})
		}
	}
	Ok(c, seriesResponse{BaseCurrency: user.BaseCurrency, Series: series}, meta)
}

// @Summary Generate snapshots
// @Tags snapshots
// @Param X-User-ID header string true "User id"
// @Param from query string false "Range start (YYYY-MM-DD)"
// @Param to query string false "Range end (YYYY-MM-DD)"
// @Success 200 {object} map[string]any
// @Router /api/v1/portfolio/snapshots/generate [post]
func (h *SnapshotHandler) generate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rawFrom := strings.TrimSpace(c.Query("from"))
	rawTo := strings.TrimSpace(c.Query("to"))
	if rawFrom == "" && rawTo == "" {
		snap, err := h.Snapshots.SnapshotNow(ctx, userID, nil)
		if err != nil {
			Error(c, errStatus(err), err.Error(), nil)
			return
		}
		Ok(c, snap, nil)
		return
	}

	from, ok := timeQuery(c, "from", time.Time{})
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to", time.Time{})
	if !ok {
		return
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		Error(c, http.StatusBadRequest, "invalid range", nil)
		return
	}
	maxDays := h.MaxRangeDays
	if maxDays <= 0 {
		maxDays = 366
	}
	if int(to.Sub(from).Hours()/24) > maxDays {
		Error(c, http.StatusBadRequest, "range too large", nil)
		return
	}

	created, err := h.Snapshots.SnapshotRange(ctx, userID, from, to)
	if err != nil {
		Error(c, errStatus(err), err.Error(), nil)
		return
	}
	Ok(c, gin.H{"created": created}, nil)
}

// thinToGranularity keeps one snapshot per slot so a dense store never
// over-delivers points for a coarse granularity.
func thinToGranularity(snaps []models.ValuationSnapshot, from, to time.Time, granularity service.Granularity) []seriesPoint {
	slots := service.RequiredSlots(from, to, granularity)
	out := make([]seriesPoint, 0, len(slots))
	i := 0
	for _, slot := range slots {
		var best *seriesPoint
		for ; i < len(snaps); i++ {
			diff := snaps[i].AsOf.Sub(slot)
			if diff < 0 {
				diff = -diff
			}
			if diff <= time.Minute {
				best = &seriesPoint{AsOf: snaps[i].AsOf, TotalValue: snaps[i].TotalValue}
				i++
				break
			}
			if snaps[i].AsOf.After(slot) {
				break
			}
		}
		if best != nil {
			out = append(out, *best)
		}
	}
	return out
}

func timeQuery(c *gin.Context, name string, fallback time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true
	}
	Error(c, http.StatusBadRequest, "invalid "+name+" parameter", nil)
	return time.Time{}, false
}
