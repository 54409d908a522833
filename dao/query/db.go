package query

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/raids-lab/staffdesk/pkg/config"
	"github.com/raids-lab/staffdesk/pkg/logutils"
)

var (
	once     sync.Once
	instance *gorm.DB
)

const (
	maxIdleConns = 5
	maxOpenConns = 10
)

// GetDB returns the singleton instance of the database connection.
func GetDB() *gorm.DB {
	once.Do(func() {
		db, err := Open(config.GetConfig())
		if err != nil {
			panic(err)
		}
		instance = db
	})
	return instance
}

// DSN builds the primary postgres DSN from the config.
func DSN(conf *config.Config) string {
	pg := conf.Postgres
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		pg.Host, pg.User, pg.Password, pg.DBName, pg.Port, pg.SSLMode, pg.TimeZone)
}

// Open connects to postgres and registers read replicas when configured.
func Open(conf *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DSN(conf)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if len(conf.Postgres.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(conf.Postgres.Replicas))
		for _, dsn := range conf.Postgres.Replicas {
			replicas = append(replicas, postgres.Open(dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(maxIdleConns).
			SetMaxOpenConns(maxOpenConns).
			SetConnMaxLifetime(time.Hour)
		if err := db.Use(resolver); err != nil {
			return nil, fmt.Errorf("register read replicas: %w", err)
		}
		logutils.Log.Infof("Postgres read replicas registered: %d", len(replicas))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logutils.Log.Info("Postgres init success!")
	return db, nil
}
