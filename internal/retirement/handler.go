package retirement

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/httpx"
)

var exportContentTypes = map[Format]string{
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatCSV:  "text/csv",
}

// Handler handles HTTP requests for credit retirement
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the buyer retirement routes; router must already authenticate
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	credits := router.Group("/credits", auth.RequireRole(h.logger, auth.RoleBuyer))
	{
		credits.POST("/retire", h.retire)
		credits.GET("/retirements", h.listRetirements)
		credits.GET("/retirements/export", h.exportRetirements)
		credits.GET("/retirements/:id", h.getRetirement)
		credits.GET("/retirements/:id/certificate", h.certificate)
	}
}

// retire handles POST /credits/retire
func (h *Handler) retire(c *gin.Context) {
	var req RetireRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	p, _ := auth.FromContext(c)
	retirement, err := h.service.Retire(c.Request.Context(), p, req)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, retirement)
}

// listRetirements handles GET /credits/retirements
func (h *Handler) listRetirements(c *gin.Context) {
	p, _ := auth.FromContext(c)
	retirements, err := h.service.List(c.Request.Context(), p)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{
		Retirements: retirements,
		Count:       len(retirements),
		Total:       Total(retirements),
	})
}

// getRetirement handles GET /credits/retirements/:id
func (h *Handler) getRetirement(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	p, _ := auth.FromContext(c)
	retirement, err := h.service.Get(c.Request.Context(), p, id)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, retirement)
}

// exportRetirements handles GET /credits/retirements/export?format=xlsx|csv
func (h *Handler) exportRetirements(c *gin.Context) {
	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	p, _ := auth.FromContext(c)
	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), p, format, &buf); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	filename := fmt.Sprintf("retirements-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, exportContentTypes[format], buf.Bytes())
}

// certificate handles GET /credits/retirements/:id/certificate
func (h *Handler) certificate(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	p, _ := auth.FromContext(c)
	retirement, doc, err := h.service.Certificate(c.Request.Context(), p, id)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", retirement.CertificateNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", doc)
}
