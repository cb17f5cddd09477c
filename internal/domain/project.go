package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"carbon-scribe/credit-ledger/pkg/workflows"
)

// ProjectStatus is the lifecycle status of a project
type ProjectStatus string

const (
	ProjectStatusRegistered   ProjectStatus = "registered"
	ProjectStatusMRVSubmitted ProjectStatus = "mrv_submitted"
	ProjectStatusApproved     ProjectStatus = "approved"
	ProjectStatusRejected     ProjectStatus = "rejected"
)

// ProjectTransitions mirrors the review outcome of the latest report.
// A decided project re-enters review when a new monitoring period is filed.
var ProjectTransitions = workflows.NewStateMachine(map[ProjectStatus][]ProjectStatus{
	ProjectStatusRegistered:   {ProjectStatusMRVSubmitted},
	ProjectStatusMRVSubmitted: {ProjectStatusApproved, ProjectStatusRejected},
	ProjectStatusApproved:     {ProjectStatusMRVSubmitted},
	ProjectStatusRejected:     {ProjectStatusMRVSubmitted},
})

// EcosystemType classifies the project site
type EcosystemType string

const (
	EcosystemMangrove  EcosystemType = "mangrove"
	EcosystemSeagrass  EcosystemType = "seagrass"
	EcosystemSaltMarsh EcosystemType = "salt_marsh"
	EcosystemForest    EcosystemType = "forest"
	EcosystemOther     EcosystemType = "other"
)

// Valid reports whether the ecosystem type is one of the known values
func (e EcosystemType) Valid() bool {
	switch e {
	case EcosystemMangrove, EcosystemSeagrass, EcosystemSaltMarsh, EcosystemForest, EcosystemOther:
		return true
	default:
		return false
	}
}

// Project represents a registered carbon project
type Project struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string         `gorm:"not null" json:"name"`
	Location       string         `json:"location"`
	Boundary       datatypes.JSON `json:"boundary,omitempty"` // GeoJSON
	EcosystemType  EcosystemType  `gorm:"not null" json:"ecosystem_type"`
	Area           float64        `json:"area"` // hectares
	ManagerID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"manager_id"`
	OrganizationID string         `gorm:"index" json:"organization_id,omitempty"`
	Status         ProjectStatus  `gorm:"not null;default:'registered';index" json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BelongsTo reports whether the principal's organization (or the principal
// itself, for projects registered without an organization) owns the project
func (p *Project) BelongsTo(userID uuid.UUID, orgID string) bool {
	if p.OrganizationID != "" {
		return p.OrganizationID == orgID
	}
	return p.ManagerID == userID
}
