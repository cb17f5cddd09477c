package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

func (v *view) CreateProject(ctx context.Context, p *domain.Project) error {
	st, release := v.acquire()
	defer release()

	if _, exists := st.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	st.projects[p.ID] = *p
	return nil
}

func (v *view) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	st, release := v.acquire()
	defer release()

	p, ok := st.projects[id]
	if !ok || p.DeletedAt.Valid {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// LockProject is GetProject; the store lock already serializes transactions.
func (v *view) LockProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return v.GetProject(ctx, id)
}

func (v *view) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]domain.Project, error) {
	st, release := v.acquire()
	defer release()

	out := make([]domain.Project, 0, len(st.projects))
	for _, p := range st.projects {
		if p.DeletedAt.Valid {
			continue
		}
		if filter.ManagerID != nil && p.ManagerID != *filter.ManagerID {
			continue
		}
		if filter.OrganizationID != nil && p.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v *view) UpdateProjectStatus(ctx context.Context, id uuid.UUID, from, to domain.ProjectStatus, at time.Time) (bool, error) {
	st, release := v.acquire()
	defer release()

	p, ok := st.projects[id]
	if !ok || p.DeletedAt.Valid {
		return false, store.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = at
	st.projects[id] = p
	return true, nil
}

func (v *view) DeleteProject(ctx context.Context, id uuid.UUID) error {
	st, release := v.acquire()
	defer release()

	p, ok := st.projects[id]
	if !ok || p.DeletedAt.Valid {
		return store.ErrNotFound
	}
	p.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	st.projects[id] = p
	return nil
}

func copyReport(r domain.Report) domain.Report {
	if r.Scoring != nil {
		s := *r.Scoring
		r.Scoring = &s
	}
	if r.VerifierID != nil {
		id := *r.VerifierID
		r.VerifierID = &id
	}
	if r.VerifiedAt != nil {
		at := *r.VerifiedAt
		r.VerifiedAt = &at
	}
	if r.Attachments != nil {
		r.Attachments = append(r.Attachments[:0:0], r.Attachments...)
	}
	return r
}

func (v *view) CreateReport(ctx context.Context, r *domain.Report) error {
	st, release := v.acquire()
	defer release()

	if _, exists := st.reports[r.ID]; exists {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	st.reports[r.ID] = copyReport(*r)
	return nil
}

func (v *view) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	st, release := v.acquire()
	defer release()

	r, ok := st.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = copyReport(r)
	return &r, nil
}

func (v *view) ListReports(ctx context.Context, filter store.ReportFilter) ([]domain.Report, error) {
	st, release := v.acquire()
	defer release()

	out := make([]domain.Report, 0)
	for _, r := range st.reports {
		if filter.ProjectID != nil && r.ProjectID != *filter.ProjectID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, r.Status) {
			continue
		}
		if filter.MaxAttempts > 0 && r.ScoringAttempts >= filter.MaxAttempts {
			continue
		}
		out = append(out, copyReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.OldestFirst {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []domain.ReportStatus, s domain.ReportStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (v *view) CountReportsByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	st, release := v.acquire()
	defer release()

	var n int64
	for _, r := range st.reports {
		if r.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (v *view) UpdateReport(ctx context.Context, r *domain.Report, expected domain.ReportStatus) (bool, error) {
	st, release := v.acquire()
	defer release()

	current, ok := st.reports[r.ID]
	if !ok {
		return false, store.ErrNotFound
	}
	if current.Status != expected {
		return false, nil
	}
	st.reports[r.ID] = copyReport(*r)
	return true, nil
}
