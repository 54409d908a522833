package helper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/raids-lab/staffdesk/dao/query"
	"github.com/raids-lab/staffdesk/internal/handler"
	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/blobstore"
	"github.com/raids-lab/staffdesk/pkg/config"
	"github.com/raids-lab/staffdesk/pkg/cronjob"
	"github.com/raids-lab/staffdesk/pkg/lifecycle"
	"github.com/raids-lab/staffdesk/pkg/logutils"
	"github.com/raids-lab/staffdesk/pkg/notify"
	"github.com/raids-lab/staffdesk/pkg/schema"
	"github.com/raids-lab/staffdesk/pkg/workflow"
)

// ConfigInitializer 封装配置初始化逻辑
type ConfigInitializer struct {
	backendConfig *config.Config
}

// NewConfigInitializer 创建新的ConfigInitializer实例
func NewConfigInitializer() *ConfigInitializer {
	return &ConfigInitializer{
		backendConfig: config.GetConfig(),
	}
}

// GetBackendConfig 获取后端配置
func (ci *ConfigInitializer) GetBackendConfig() *config.Config {
	return ci.backendConfig
}

// LoadDebugEnvironment 加载调试环境变量
func (ci *ConfigInitializer) LoadDebugEnvironment() error {
	if gin.Mode() != gin.DebugMode {
		return nil
	}

	err := godotenv.Load(".debug.env")
	if err != nil {
		return err
	}

	be := os.Getenv("STAFFDESK_BE_PORT")
	if be == "" {
		panic("STAFFDESK_BE_PORT is not set")
	}
	ci.backendConfig.ServerAddr = ":" + be

	return nil
}

// InitializeRegisterConfig 初始化数据库、存储、通知渠道与业务服务
func (ci *ConfigInitializer) InitializeRegisterConfig() (*handler.RegisterConfig, error) {
	conf := ci.backendConfig

	// init db
	db := query.GetDB()
	if err := query.Migrate(db); err != nil {
		return nil, err
	}

	// request types and fields
	registry := schema.NewRegistry(db)
	if conf.SchemaFile != "" {
		if err := loadSchemaFile(registry, conf.SchemaFile); err != nil {
			return nil, err
		}
	}

	blobs, err := blobstore.NewFSStore(conf.Storage.AttachmentDir, conf.Storage.MaxUploadMB<<20)
	if err != nil {
		return nil, err
	}

	// notification channels, in-app notifications are always stored
	hub := notify.NewHub()
	channels := []notify.Channel{hub}
	if conf.SMTP.Enable {
		channels = append(channels, notify.NewMailChannel(
			conf.SMTP.Host, conf.SMTP.Port, conf.SMTP.User, conf.SMTP.Password, conf.SMTP.From))
	}
	if conf.Webhook.Enable {
		channels = append(channels, notify.NewWebhookChannel(
			conf.Webhook.URL, time.Duration(conf.Webhook.Timeout)*time.Second))
	}
	dispatcher := notify.NewDispatcher(db, channels...)
	logutils.Log.Infof("Notification channels: %d", len(channels))

	directory := actor.NewDBDirectory(db)
	engine := lifecycle.NewEngine(db, directory, dispatcher, blobs)

	cron := cronjob.NewCronJobManager(db)
	if conf.Notification.RetentionDays > 0 {
		_, err := cron.AddCronJob(cronjob.CleanReadNotificationsJob, conf.Notification.CleanupSpec,
			cronjob.CleanReadNotifications(db, conf.Notification.RetentionDays, time.Now))
		if err != nil {
			return nil, err
		}
	}

	return &handler.RegisterConfig{
		Config:        conf,
		DB:            db,
		Service:       workflow.NewService(db, engine, registry, blobs),
		Registry:      registry,
		Notifications: dispatcher,
		Hub:           hub,
		Cron:          cron,
		TokenMgr:      util.GetTokenMgr(),
		Resolver:      directory,
	}, nil
}

func loadSchemaFile(registry *schema.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	if err := registry.LoadDefinitions(context.Background(), f); err != nil {
		return err
	}
	logutils.Log.Infof("Schema definitions loaded from %s", path)
	return nil
}
