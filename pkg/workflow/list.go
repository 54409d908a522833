package workflow

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/scope"
)

// ListFilter selects a page of visible requests.
type ListFilter struct {
	// Search matches title or notes, case-insensitively.
	Search    string
	Status    model.RequestStatus
	PageIndex int
	PageSize  int
}

// RequestPage is one page of requests plus the per-status counts of the
// visible, search-filtered set (before the status filter).
type RequestPage struct {
	Rows         []model.Request
	Count        int64
	StatusCounts map[model.RequestStatus]int64
}

func (s *Service) ListRequests(ctx context.Context, actor domain.ActorContext, filter ListFilter) (*RequestPage, error) {
	if err := actor.CheckAttached(); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("status", domain.ReasonInvalidChoice,
			fmt.Sprintf("unknown status %q", filter.Status))
	}

	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Request{}).Scopes(scope.Visible(actor))
		if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
			like := "%" + escapeLike(search) + "%"
			q = q.Where("(LOWER(requests.title) LIKE ? ESCAPE '\\' OR LOWER(requests.notes) LIKE ? ESCAPE '\\')", like, like)
		}
		return q
	}

	var grouped []struct {
		Status model.RequestStatus
		Count  int64
	}
	if err := base().Select("requests.status AS status, COUNT(*) AS count").
		Group("requests.status").Scan(&grouped).Error; err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	page := &RequestPage{StatusCounts: make(map[model.RequestStatus]int64, len(model.RequestStatuses))}
	for _, status := range model.RequestStatuses {
		page.StatusCounts[status] = 0
	}
	for _, g := range grouped {
		page.StatusCounts[g.Status] = g.Count
	}

	filtered := func() *gorm.DB {
		q := base()
		if filter.Status != "" {
			q = q.Where("requests.status = ?", filter.Status)
		}
		return q
	}
	if err := filtered().Count(&page.Count).Error; err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}

	offset, limit := domain.Window(filter.PageIndex, filter.PageSize)
	err := filtered().Preload("RequestType").Preload("Worker").Preload("CreatedBy").
		Order("requests.created_at DESC").Order("requests.id DESC").
		Offset(offset).Limit(limit).
		Find(&page.Rows).Error
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return page, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
