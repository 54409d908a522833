// Package scope decides which requests an actor can see. Anything outside
// the scope is reported as not found, never as forbidden.
package scope

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/lifecycle"
)

// Visible returns a gorm scope restricting a requests query to what actor may see:
// clients see the requests they created, vendors see non-draft requests on
// their own workers, superusers see everything and users without a company
// see nothing.
func Visible(actor domain.ActorContext) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case actor.IsSuperuser:
			return db
		case actor.IsClient():
			return db.Where("requests.created_by_id = ?", actor.UserID)
		case actor.IsVendor():
			workers := db.Session(&gorm.Session{NewDB: true}).
				Model(&model.Worker{}).Select("id").Where("company_id = ?", actor.CompanyID)
			return db.Where("requests.worker_id IN (?)", workers).
				Where("requests.status <> ?", model.RequestStatusDraft)
		default:
			return db.Where("1 = 0")
		}
	}
}

// Get loads one request through the actor's scope, with its creator and
// worker so it is ready for the lifecycle engine, plus any extra preloads.
func Get(ctx context.Context, db *gorm.DB, actor domain.ActorContext, requestID uint, preloads ...string) (*model.Request, error) {
	q := db.WithContext(ctx).
		Scopes(Visible(actor)).
		Preload("CreatedBy").
		Preload("Worker")
	for _, p := range preloads {
		q = q.Preload(p)
	}
	var req model.Request
	err := q.Where("requests.id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: request %d", domain.ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", requestID, err)
	}
	return &req, nil
}

// CanAct reports whether actor may apply action to req.
func CanAct(actor domain.ActorContext, req *model.Request, action lifecycle.Action) bool {
	return lifecycle.CanAct(actor, req, action)
}
