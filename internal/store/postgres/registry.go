package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

func (r *repo) CreateProject(ctx context.Context, p *domain.Project) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (r *repo) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repo) LockProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repo) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]domain.Project, error) {
	q := r.db.WithContext(ctx).Model(&domain.Project{})
	if filter.ManagerID != nil {
		q = q.Where("manager_id = ?", *filter.ManagerID)
	}
	if filter.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	projects := make([]domain.Project, 0)
	if err := q.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (r *repo) UpdateProjectStatus(ctx context.Context, id uuid.UUID, from, to domain.ProjectStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("update project status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	ok, err := r.exists(ctx, &domain.Project{}, "id = ?", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// DeleteProject soft-deletes through gorm.DeletedAt
func (r *repo) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&domain.Project{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) CreateReport(ctx context.Context, rep *domain.Report) error {
	if err := r.db.WithContext(ctx).Create(rep).Error; err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *repo) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	var rep domain.Report
	if err := r.db.WithContext(ctx).First(&rep, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rep, nil
}

func (r *repo) ListReports(ctx context.Context, filter store.ReportFilter) ([]domain.Report, error) {
	q := r.db.WithContext(ctx).Model(&domain.Report{})
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.MaxAttempts > 0 {
		q = q.Where("scoring_attempts < ?", filter.MaxAttempts)
	}
	if filter.OldestFirst {
		q = q.Order("submitted_at ASC")
	} else {
		q = q.Order("submitted_at DESC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	reports := make([]domain.Report, 0)
	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func (r *repo) CountReportsByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Report{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

var reportMutableColumns = []string{
	"status",
	"attachments",
	"scoring",
	"scoring_attempts",
	"last_scoring_err",
	"verifier_id",
	"verifier_notes",
	"verified_at",
	"updated_at",
}

func (r *repo) UpdateReport(ctx context.Context, rep *domain.Report, expected domain.ReportStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(rep).
		Where("status = ?", expected).
		Select(reportMutableColumns).
		Updates(rep)
	if res.Error != nil {
		return false, fmt.Errorf("update report: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	ok, err := r.exists(ctx, &domain.Report{}, "id = ?", rep.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}
