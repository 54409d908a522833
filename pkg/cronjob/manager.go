// Package cronjob runs periodic maintenance jobs and records every run.
package cronjob

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// JobFunc does the work of one run; data is stored with the run record.
type JobFunc func(ctx context.Context) (data any, err error)

type CronJobManager struct {
	db        *gorm.DB
	cron      *cron.Cron
	cronMutex sync.RWMutex
	entries   map[string]scheduledJob
	now       func() time.Time
}

type scheduledJob struct {
	id cron.EntryID
	f  JobFunc
}

func NewCronJobManager(db *gorm.DB) *CronJobManager {
	return &CronJobManager{
		db:      db,
		cron:    cron.New(cron.WithLocation(time.Local)),
		entries: make(map[string]scheduledJob),
		now:     time.Now,
	}
}

// AddCronJob schedules f under name, replacing a job of the same name.
func (cm *CronJobManager) AddCronJob(name, spec string, f JobFunc) (cron.EntryID, error) {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()

	entryID, err := cm.cron.AddFunc(spec, func() { cm.RunNow(context.Background(), name, f) })
	if err != nil {
		err = fmt.Errorf("CronJobManager.AddCronJob: invalid spec %q for %s: %w", spec, name, err)
		klog.Error(err)
		return -1, err
	}
	if old, ok := cm.entries[name]; ok {
		cm.cron.Remove(old.id)
	}
	cm.entries[name] = scheduledJob{id: entryID, f: f}
	klog.Infof("CronJobManager.AddCronJob: scheduled %s with spec %s", name, spec)
	return entryID, nil
}

// RunNow executes f once and stores a CronJobRecord for the run.
func (cm *CronJobManager) RunNow(ctx context.Context, name string, f JobFunc) *model.CronJobRecord {
	record := &model.CronJobRecord{
		Name:        name,
		ExecuteTime: cm.now(),
		Status:      model.CronJobRecordStatusSuccess,
	}
	data, err := f(ctx)
	if err != nil {
		record.Status = model.CronJobRecordStatusFailed
		record.Message = err.Error()
		klog.Errorf("cron job %s failed: %v", name, err)
	}
	if data != nil {
		if raw, merr := json.Marshal(data); merr == nil {
			record.JobData = datatypes.JSON(raw)
		}
	}
	if err := cm.db.WithContext(ctx).Create(record).Error; err != nil {
		klog.Errorf("save record of cron job %s: %v", name, err)
	}
	return record
}

// Trigger runs the scheduled job name once, outside its schedule.
func (cm *CronJobManager) Trigger(ctx context.Context, name string) (*model.CronJobRecord, error) {
	cm.cronMutex.RLock()
	job, ok := cm.entries[name]
	cm.cronMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cron job %q: %w", name, domain.ErrNotFound)
	}
	return cm.RunNow(ctx, name, job.f), nil
}

// Start starts the scheduler in its own goroutine.
func (cm *CronJobManager) Start() {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()
	cm.cron.Start()
	klog.Info("CronJobManager: cron scheduler started")
}

// StopCron stops the scheduler and waits for running jobs.
func (cm *CronJobManager) StopCron() {
	cm.cronMutex.Lock()
	defer cm.cronMutex.Unlock()
	<-cm.cron.Stop().Done()
}

// JobNames lists the scheduled jobs.
func (cm *CronJobManager) JobNames() []string {
	cm.cronMutex.RLock()
	defer cm.cronMutex.RUnlock()
	names := lo.Keys(cm.entries)
	sort.Strings(names)
	return names
}
