package payments

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/httpx"
)

// SignatureHeader carries the gateway's HMAC of the raw webhook body
const SignatureHeader = "X-Razorpay-Signature"

const maxWebhookBytes = 1 << 20

// Handler handles HTTP requests for payment orders and gateway callbacks
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the buyer order routes on protected and the
// gateway webhook on public
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/payment/webhook", h.webhook)

	payment := protected.Group("/payment", auth.RequireRole(h.logger, auth.RoleBuyer))
	{
		payment.POST("/create-order", h.createOrder)
		payment.GET("/orders/:id", h.getOrder)
	}
}

// createOrder handles POST /payment/create-order
func (h *Handler) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	p, _ := auth.FromContext(c)
	resp, err := h.service.CreateOrder(c.Request.Context(), p, req)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// getOrder handles GET /payment/orders/:id
func (h *Handler) getOrder(c *gin.Context) {
	p, _ := auth.FromContext(c)
	order, err := h.service.GetOrder(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// webhook handles POST /payment/webhook. The body is read raw because the
// signature covers the exact bytes sent.
func (h *Handler) webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		httpx.RespondError(c, h.logger, apperr.Validation("invalid webhook body"))
		return
	}

	ack, err := h.service.HandleWebhook(c.Request.Context(), c.GetHeader(SignatureHeader), body)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}
