package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/httpx"
)

// Handler serves the read side of the ledger
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// AvailableResponse is the body of GET /credits/available
type AvailableResponse struct {
	Credits []domain.CreditBatch `json:"credits"`
	Count   int                  `json:"count"`
}

// BalanceResponse is the body of GET /credits/balance
type BalanceResponse struct {
	BuyerID uuid.UUID       `json:"buyer_id"`
	Balance decimal.Decimal `json:"balance"`
}

// RegisterRoutes mounts the public listing routes and the authenticated
// balance route
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/credits/available", h.listAvailable)
	public.GET("/credits/stats", h.stats)
	protected.GET("/credits/balance", auth.RequireRole(h.logger, auth.RoleBuyer), h.balance)
}

// listAvailable handles GET /credits/available
func (h *Handler) listAvailable(c *gin.Context) {
	batches, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, AvailableResponse{Credits: batches, Count: len(batches)})
}

// stats handles GET /credits/stats
func (h *Handler) stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// balance handles GET /credits/balance
func (h *Handler) balance(c *gin.Context) {
	p, _ := auth.FromContext(c)
	balance, err := h.service.Balance(c.Request.Context(), p.UserID)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{BuyerID: p.UserID, Balance: balance})
}
