package mrv

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/httpx"
)

// Handler handles HTTP requests for MRV submission and verification
type Handler struct {
	tracker *Tracker
	gate    *Gate
	logger  *zap.Logger
}

func NewHandler(tracker *Tracker, gate *Gate, logger *zap.Logger) *Handler {
	return &Handler{tracker: tracker, gate: gate, logger: logger}
}

// RegisterRoutes mounts the MRV routes; router must already authenticate
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	mrv := router.Group("/mrv")
	{
		mrv.POST("", auth.RequireRole(h.logger, auth.RoleManager), h.submitReport)
		mrv.POST("/attachments", auth.RequireRole(h.logger, auth.RoleManager), h.uploadAttachment)
		mrv.GET("/pending", auth.RequireRole(h.logger, auth.RoleVerifier), h.listPending)
		mrv.GET("/:id", h.getReport)
		mrv.POST("/:id/approve", auth.RequireRole(h.logger, auth.RoleVerifier), h.decide)
	}
}

// submitReport handles POST /mrv
func (h *Handler) submitReport(c *gin.Context) {
	var req SubmitRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	p, _ := auth.FromContext(c)
	report, err := h.tracker.Submit(c.Request.Context(), p, req)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// uploadAttachment handles POST /mrv/attachments (multipart: project_id, file)
func (h *Handler) uploadAttachment(c *gin.Context) {
	projectID, err := uuid.Parse(c.PostForm("project_id"))
	if err != nil {
		httpx.RespondError(c, h.logger, apperr.Validation("invalid project_id"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		httpx.RespondError(c, h.logger, apperr.Validation("file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		httpx.RespondError(c, h.logger, apperr.Wrap(err, "failed to read upload"))
		return
	}
	defer file.Close()

	p, _ := auth.FromContext(c)
	attachment, err := h.tracker.UploadAttachment(c.Request.Context(), p, projectID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

// listPending handles GET /mrv/pending
func (h *Handler) listPending(c *gin.Context) {
	reports, err := h.tracker.ListPending(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, PendingResponse{Reports: reports, Count: len(reports)})
}

// getReport handles GET /mrv/:id
func (h *Handler) getReport(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	report, err := h.tracker.Get(c.Request.Context(), id)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// decide handles POST /mrv/:id/approve
func (h *Handler) decide(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	var req DecisionRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	if req.Approved == nil {
		httpx.RespondError(c, h.logger, apperr.ValidationFields("invalid decision", map[string]string{"approved": "is required"}))
		return
	}

	p, _ := auth.FromContext(c)
	decision, err := h.gate.Decide(c.Request.Context(), p, id, *req.Approved, req.Notes)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
