package projects

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/pkg/geospatial"
)

const maxListLimit = 500

// Service is the project registry
type Service struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// Register creates a project in registered status owned by the calling manager
func (s *Service) Register(ctx context.Context, p auth.Principal, req CreateProjectRequest) (*domain.Project, error) {
	if !p.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("only project managers can register projects")
	}

	fields := map[string]string{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = "is required"
	}
	if !req.EcosystemType.Valid() {
		fields["ecosystem_type"] = "must be one of mangrove, seagrass, salt_marsh, forest, other"
	}
	if req.Area != nil && *req.Area < 0 {
		fields["area"] = "must be >= 0"
	}

	var area float64
	if req.Area != nil {
		area = *req.Area
	}
	hasBoundary := len(req.Boundary) > 0 && string(req.Boundary) != "null"
	if hasBoundary {
		hectares, err := geospatial.AreaHectares(string(req.Boundary))
		if err != nil {
			fields["boundary"] = err.Error()
		} else if req.Area == nil {
			area = hectares
		}
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields("invalid project", fields)
	}

	now := s.now().UTC()
	project := &domain.Project{
		ID:             uuid.New(),
		Name:           name,
		Location:       strings.TrimSpace(req.Location),
		EcosystemType:  req.EcosystemType,
		Area:           area,
		ManagerID:      p.UserID,
		OrganizationID: p.OrgID,
		Status:         domain.ProjectStatusRegistered,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if hasBoundary {
		project.Boundary = []byte(req.Boundary)
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, apperr.Wrap(err, "failed to register project")
	}

	s.logger.Info("project registered",
		zap.String("project_id", project.ID.String()),
		zap.String("manager_id", p.UserID.String()),
		zap.String("ecosystem_type", string(project.EcosystemType)),
	)
	return project, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("project %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load project")
	}
	return project, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Project, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	projects, err := s.store.ListProjects(ctx, store.ProjectFilter{
		ManagerID:      filter.ManagerID,
		OrganizationID: filter.OrganizationID,
		Status:         filter.Status,
		Limit:          limit,
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list projects")
	}
	return projects, nil
}

// Delete soft-deletes a project. Projects with reports are part of the
// ledger history and cannot be deleted.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if !p.HasRole(auth.RoleManager) {
		return apperr.Authorization("only project managers can delete projects")
	}

	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		// the row lock orders this check against a concurrent report submission
		project, err := tx.LockProject(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("project %s not found", id)
		}
		if err != nil {
			return err
		}
		if !project.BelongsTo(p.UserID, p.OrgID) {
			return apperr.Authorization("project %s is managed by another organization", id)
		}

		n, err := tx.CountReportsByProject(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.InvalidState("project %s has %d report(s) and cannot be deleted", id, n)
		}
		return tx.DeleteProject(ctx, id)
	})
	if err != nil {
		return apperr.Wrap(err, "failed to delete project")
	}

	s.logger.Info("project deleted", zap.String("project_id", id.String()), zap.String("user_id", p.UserID.String()))
	return nil
}

// TransitionTx moves a project to status inside tx, holding its row lock.
// Moving to the current status is a no-op; a move the state machine forbids,
// or one that lost a race with another writer, is reported as ok=false and
// leaves the project untouched.
func TransitionTx(ctx context.Context, tx store.Tx, id uuid.UUID, to domain.ProjectStatus, at time.Time) (from domain.ProjectStatus, ok bool, err error) {
	project, err := tx.LockProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, apperr.NotFound("project %s not found", id)
	}
	if err != nil {
		return "", false, err
	}
	if project.Status == to {
		return project.Status, true, nil
	}
	if !domain.ProjectTransitions.CanTransition(project.Status, to) {
		return project.Status, false, nil
	}
	moved, err := tx.UpdateProjectStatus(ctx, id, project.Status, to, at)
	if err != nil {
		return project.Status, false, err
	}
	return project.Status, moved, nil
}
