package cronjob

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/logutils"
)

const CleanReadNotificationsJob = "clean-read-notifications"

// CleanResult is stored as the job data of a cleanup run.
type CleanResult struct {
	Before  time.Time `json:"before"`
	Deleted int64     `json:"deleted"`
}

// CleanReadNotifications hard deletes read notifications older than
// retentionDays. Unread notifications are never removed.
func CleanReadNotifications(db *gorm.DB, retentionDays int, now func() time.Time) JobFunc {
	return func(ctx context.Context) (any, error) {
		if retentionDays <= 0 {
			return nil, fmt.Errorf("retention must be positive, got %d days", retentionDays)
		}
		before := now().AddDate(0, 0, -retentionDays)
		res := db.WithContext(ctx).Unscoped().
			Where("is_read = ? AND created_at < ?", true, before).
			Delete(&model.Notification{})
		if res.Error != nil {
			return nil, res.Error
		}
		logutils.Component("cronjob").Infof("removed %d read notifications created before %s",
			res.RowsAffected, before.Format(time.RFC3339))
		return CleanResult{Before: before, Deleted: res.RowsAffected}, nil
	}
}
