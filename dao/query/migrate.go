package query

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/logutils"
)

// migrations are applied in order and recorded in the migrations table.
// Never edit a released migration, append a new one instead.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202409010001_directory",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.Company{}, &model.User{}, &model.Worker{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&model.Worker{}, &model.User{}, &model.Company{})
			},
		},
		{
			ID: "202409010002_request_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.RequestType{}, &model.RequestField{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&model.RequestField{}, &model.RequestType{})
			},
		},
		{
			ID: "202409010003_requests",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&model.Request{},
					&model.RequestFieldValue{},
					&model.RequestComment{},
					&model.RequestAttachment{},
					&model.RequestTimeline{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&model.RequestTimeline{},
					&model.RequestAttachment{},
					&model.RequestComment{},
					&model.RequestFieldValue{},
					&model.Request{},
				)
			},
		},
		{
			ID: "202409010004_notifications",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.Notification{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&model.Notification{})
			},
		},
		{
			ID: "202409010005_cron_job_records",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.CronJobRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&model.CronJobRecord{})
			},
		},
	}
}

// Migrate brings the schema up to date.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	if err := m.Migrate(); err != nil {
		return err
	}
	logutils.Log.Info("database migration finished")
	return nil
}
