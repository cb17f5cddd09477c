package projects

import (
	"encoding/json"

	"github.com/google/uuid"

	"carbon-scribe/credit-ledger/internal/domain"
)

// CreateProjectRequest registers a new project. Area is derived from the
// boundary when omitted.
type CreateProjectRequest struct {
	Name          string               `json:"name"`
	Location      string               `json:"location"`
	EcosystemType domain.EcosystemType `json:"ecosystem_type"`
	Boundary      json.RawMessage      `json:"boundary,omitempty"` // GeoJSON Feature or geometry
	Area          *float64             `json:"area,omitempty"`     // hectares
}

// ListFilter narrows project listings
type ListFilter struct {
	ManagerID      *uuid.UUID
	OrganizationID *string
	Status         *domain.ProjectStatus
	Limit          int
}

// ListResponse is the body of GET /projects
type ListResponse struct {
	Projects []domain.Project `json:"projects"`
	Count    int              `json:"count"`
}
