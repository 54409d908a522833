package cronjob

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
)

// RecordFilter narrows GetCronjobRecords; zero members match everything.
type RecordFilter struct {
	Names     []string
	StartTime *time.Time
	EndTime   *time.Time
	Status    *model.CronJobRecordStatus
}

func (f RecordFilter) apply(tx *gorm.DB) *gorm.DB {
	if len(f.Names) > 0 {
		tx = tx.Where("name IN ?", f.Names)
	}
	if f.StartTime != nil {
		tx = tx.Where("execute_time >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		tx = tx.Where("execute_time <= ?", *f.EndTime)
	}
	if f.Status != nil {
		tx = tx.Where("status = ?", *f.Status)
	}
	return tx
}

// GetCronjobRecords returns matching records newest first and their total.
func (cm *CronJobManager) GetCronjobRecords(ctx context.Context, filter RecordFilter) (records []*model.CronJobRecord, total int64, err error) {
	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tx := filter.apply(cm.db.WithContext(groupCtx))
		if err := tx.Order("execute_time DESC").Order("id DESC").Find(&records).Error; err != nil {
			return fmt.Errorf("CronJobManager.GetCronjobRecords: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		tx := filter.apply(cm.db.WithContext(groupCtx))
		if err := tx.Model(&model.CronJobRecord{}).Count(&total).Error; err != nil {
			return fmt.Errorf("CronJobManager.GetCronjobRecords: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		klog.Error(err)
		return nil, 0, err
	}
	return records, total, nil
}

// DeleteCronjobRecords deletes records by id and/or execution time range.
func (cm *CronJobManager) DeleteCronjobRecords(ctx context.Context, ids []uint, startTime, endTime *time.Time) (int64, error) {
	if len(ids) == 0 && startTime == nil && endTime == nil {
		return 0, fmt.Errorf("CronJobManager.DeleteCronjobRecords: refusing to delete every record")
	}
	tx := RecordFilter{StartTime: startTime, EndTime: endTime}.apply(cm.db.WithContext(ctx))
	if len(ids) > 0 {
		tx = tx.Where("id IN ?", ids)
	}
	res := tx.Delete(&model.CronJobRecord{})
	if err := res.Error; err != nil {
		err = fmt.Errorf("CronJobManager.DeleteCronjobRecords: %w", err)
		klog.Error(err)
		return 0, err
	}
	return res.RowsAffected, nil
}
