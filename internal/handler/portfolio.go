package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finquest/internal/repository"
	"finquest/internal/service"
)

// userHeader carries the id already resolved by the identity provider in
// front of this service.
const userHeader = "X-User-ID"

type PortfolioHandler struct {
	Repo      repository.Repository
	Ledger    *service.LedgerService
	Valuation *service.ValuationService
	Snapshots *service.SnapshotService
	Logger    *zap.Logger
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	p := r.Group("/api/v1/portfolio")
	p.GET("", h.get)
	p.POST("/positions", h.createPosition)
	p.POST("/transactions", h.createTransaction)
	p.DELETE("/transactions/:id", h.deleteTransaction)
}

type createPositionRequest struct {
	Symbol     string          `json:"symbol" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	AvgCost    decimal.Decimal `json:"avgCost" binding:"required"`
	Currency   string          `json:"currency"`
	ExecutedAt *time.Time      `json:"executedAt"`
}

type createTransactionRequest struct {
	Symbol     string          `json:"symbol" binding:"required"`
	Side       string          `json:"side" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	Price      decimal.Decimal `json:"price" binding:"required"`
	Currency   string          `json:"currency"`
	ExecutedAt *time.Time      `json:"executedAt"`
	Notes      *string         `json:"notes"`
}

// @Summary Live portfolio view
// @Tags portfolio
// @Param X-User-ID header string true "User id"
// @Success 200 {object} service.Valuation
// @Router /api/v1/portfolio [get]
func (h *PortfolioHandler) get(c *gin.Context) {
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
	portfolio, err := h.Repo.GetPortfolioByUserID(ctx, user.ID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	positions := map[uuid.UUID]service.Position{}
	if portfolio != nil {
		txs, err := h.Repo.ListActiveTransactions(ctx, portfolio.ID, nil)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		positions = service.ComputePositions(txs)
	}
	valuation, err := h.Valuation.Value(ctx, *user, positions)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, valuation, nil)
}

// @Summary Record an existing holding
// @Tags portfolio
// @Param X-User-ID header string true "User id"
// @Param request body createPositionRequest true "Holding"
// @Success 201 {object} map[string]any
// @Router /api/v1/portfolio/positions [post]
func (h *PortfolioHandler) createPosition(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	tx, err := h.Ledger.CreateTransaction(c.Request.Context(), userID, service.CreateTransactionInput{
		Symbol:     req.Symbol,
		Side:       "buy",
		Quantity:   req.Quantity,
		Price:      req.AvgCost,
		Currency:   req.Currency,
		ExecutedAt: req.ExecutedAt,
	})
	if err != nil {
		Error(c, errStatus(err), err.Error(), nil)
		return
	}
	updated := h.recalculate(c, tx.PortfolioID, tx.ExecutedAt)
	Created(c, gin.H{"transactionId": tx.ID, "snapshotsUpdated": updated})
}

// @Summary Record a buy or sell
// @Tags portfolio
// @Param X-User-ID header string true "User id"
// @Param request body createTransactionRequest true "Transaction"
// @Success 201 {object} map[string]any
// @Router /api/v1/portfolio/transactions [post]
func (h *PortfolioHandler) createTransaction(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	tx, err := h.Ledger.CreateTransaction(c.Request.Context(), userID, service.CreateTransactionInput{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Currency:   req.Currency,
		ExecutedAt: req.ExecutedAt,
		Notes:      req.Notes,
	})
	if err != nil {
		Error(c, errStatus(err), err.Error(), nil)
		return
	}
	updated := h.recalculate(c, tx.PortfolioID, tx.ExecutedAt)
	Created(c, gin.H{"transactionId": tx.ID, "snapshotsUpdated": updated})
}

// @Summary Remove a ledger entry
// @Tags portfolio
// @Param X-User-ID header string true "User id"
// @Param id path string true "Transaction id"
// @Success 200 {object} map[string]any
// @Router /api/v1/portfolio/transactions/{id} [delete]
func (h *PortfolioHandler) deleteTransaction(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	txID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid transaction id", nil)
		return
	}
	tx, err := h.Ledger.DeleteTransaction(c.Request.Context(), userID, txID)
	if err != nil {
		Error(c, errStatus(err), err.Error(), nil)
		return
	}
	updated := h.recalculate(c, tx.PortfolioID, tx.ExecutedAt)
	Ok(c, gin.H{"transactionId": tx.ID, "snapshotsUpdated": updated}, nil)
}

// recalculate repairs snapshots dated at or after the changed entry. The
// write already succeeded, so a recompute failure is logged, not surfaced.
func (h *PortfolioHandler) recalculate(c *gin.Context, portfolioID uuid.UUID, since time.Time) int {
	updated, err := h.Snapshots.RecalculateAfterTransaction(c.Request.Context(), portfolioID, since)
	if err != nil && h.Logger != nil {
		h.Logger.Warn("snapshot recalculation failed",
			zap.String("portfolio", portfolioID.String()),
			zap.Error(err))
	}
	return updated
}

func requireUser(c *gin.Context) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.GetHeader(userHeader))
	if raw == "" {
		Error(c, http.StatusUnauthorized, "missing "+userHeader+" header", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		Error(c, http.StatusUnauthorized, "invalid "+userHeader+" header", nil)
		return uuid.Nil, false
	}
	return id, true
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrPortfolioNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownSymbol),
		errors.Is(err, service.ErrInvalidSide),
		errors.Is(err, service.ErrNonPositiveQuantity),
		errors.Is(err, service.ErrNonPositivePrice),
		errors.Is(err, service.ErrUnknownCurrency),
		errors.Is(err, service.ErrInvalidGranularity),
		errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
