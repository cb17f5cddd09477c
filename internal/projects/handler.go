package projects

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/httpx"
)

// Handler handles HTTP requests for the project registry
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the project routes; router must already authenticate
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	projects := router.Group("/projects")
	{
		projects.POST("", auth.RequireRole(h.logger, auth.RoleManager), h.createProject)
		projects.GET("", h.listProjects)
		projects.GET("/:id", h.getProject)
		projects.DELETE("/:id", auth.RequireRole(h.logger, auth.RoleManager), h.deleteProject)
	}
}

// createProject handles POST /projects
func (h *Handler) createProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	p, _ := auth.FromContext(c)
	project, err := h.service.Register(c.Request.Context(), p, req)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// listProjects handles GET /projects
func (h *Handler) listProjects(c *gin.Context) {
	var filter ListFilter
	if v := c.Query("manager_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.RespondError(c, h.logger, apperr.Validation("invalid manager_id"))
			return
		}
		filter.ManagerID = &id
	}
	if v := c.Query("organization_id"); v != "" {
		filter.OrganizationID = &v
	}
	if v := c.Query("status"); v != "" {
		status := domain.ProjectStatus(v)
		if !domain.ProjectTransitions.Known(status) {
			httpx.RespondError(c, h.logger, apperr.Validation("unknown status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.RespondError(c, h.logger, apperr.Validation("invalid limit"))
			return
		}
		filter.Limit = n
	}

	projects, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Projects: projects, Count: len(projects)})
}

// getProject handles GET /projects/:id
func (h *Handler) getProject(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	project, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// deleteProject handles DELETE /projects/:id
func (h *Handler) deleteProject(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}

	p, _ := auth.FromContext(c)
	if err := h.service.Delete(c.Request.Context(), p, id); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
