package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CronJobRecordStatus string

const (
	CronJobRecordStatusUnknown CronJobRecordStatus = "unknown"
	CronJobRecordStatusSuccess CronJobRecordStatus = "success"
	CronJobRecordStatusFailed  CronJobRecordStatus = "failed"
)

// CronJobRecord is one execution of a scheduled maintenance job.
type CronJobRecord struct {
	gorm.Model
	Name        string              `gorm:"type:varchar(128);not null;index;comment:Cronjob名称" json:"name"`
	ExecuteTime time.Time           `gorm:"not null;index;comment:执行时间" json:"executeTime"`
	Status      CronJobRecordStatus `gorm:"type:varchar(128);not null;index;default:unknown;comment:执行状态" json:"status"`
	Message     string              `gorm:"type:text;comment:执行消息或错误信息" json:"message"`
	JobData     datatypes.JSON      `gorm:"comment:任务数据(例如清理的通知数量)" json:"jobData"`
}

// TableName 指定表名
func (CronJobRecord) TableName() string {
	return "cron_job_records"
}
