// Package timeline is the append-only audit trail of request transitions.
package timeline

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
)

// Entry describes one transition or action.
type Entry struct {
	RequestID   uint
	UserID      uint
	Action      string
	Description string
	OldStatus   model.RequestStatus
	NewStatus   model.RequestStatus
}

// Record appends an entry on tx. It must run in the same transaction as the
// state change it describes.
func Record(ctx context.Context, tx *gorm.DB, entry Entry) (*model.RequestTimeline, error) {
	row := &model.RequestTimeline{
		RequestID:   entry.RequestID,
		UserID:      entry.UserID,
		Action:      entry.Action,
		Description: entry.Description,
		OldStatus:   entry.OldStatus,
		NewStatus:   entry.NewStatus,
	}
	if err := tx.WithContext(ctx).Omit("User").Create(row).Error; err != nil {
		return nil, fmt.Errorf("record timeline %s on request %d: %w", entry.Action, entry.RequestID, err)
	}
	return row, nil
}

// List returns the request's entries oldest first, with the acting user loaded.
func List(ctx context.Context, db *gorm.DB, requestID uint) ([]model.RequestTimeline, error) {
	var rows []model.RequestTimeline
	err := db.WithContext(ctx).
		Preload("User").
		Where("request_id = ?", requestID).
		Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list timeline of request %d: %w", requestID, err)
	}
	return rows, nil
}

// Purge removes a request's entries. Only used when a draft is hard deleted.
func Purge(ctx context.Context, tx *gorm.DB, requestID uint) error {
	return tx.WithContext(ctx).Where("request_id = ?", requestID).Delete(&model.RequestTimeline{}).Error
}
