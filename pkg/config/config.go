package config

import (
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

type Config struct {
	// Port Settings
	Host        string `json:"host"`        // The domain name of the server.
	ServerAddr  string `json:"serverAddr"`  // The address the server endpoint binds to.
	MetricsPath string `json:"metricsPath"` // The path prometheus scrapes, defaults to /metrics.

	Auth struct {
		AccessTokenSecret string `json:"accessTokenSecret"`
	} `json:"auth"`

	// DB Settings
	Postgres struct {
		Host     string `json:"host"`
		Port     string `json:"port"`
		DBName   string `json:"dbname"`
		User     string `json:"user"`
		Password string `json:"password"`
		SSLMode  string `json:"sslmode"`
		TimeZone string `json:"TimeZone"`
		// Replicas are full DSNs of read replicas, list/detail reads are routed to them.
		Replicas []string `json:"replicas"`
	} `json:"postgres"`

	Storage struct {
		AttachmentDir string `json:"attachmentDir"` // Root directory of the attachment blob store.
		MaxUploadMB   int64  `json:"maxUploadMB"`
	} `json:"storage"`

	// Schema bootstrap file, request types and fields are upserted on startup when set.
	SchemaFile string `json:"schemaFile"`

	SMTP struct {
		Enable   bool   `json:"enable"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		From     string `json:"from"`
	} `json:"smtp"`

	Webhook struct {
		Enable  bool   `json:"enable"`
		URL     string `json:"url"`
		Timeout int    `json:"timeout"` // seconds
	} `json:"webhook"`

	Notification struct {
		RetentionDays int    `json:"retentionDays"` // read notifications older than this are purged, 0 disables
		CleanupSpec   string `json:"cleanupSpec"`   // cron spec of the purge job
	} `json:"notification"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

func IsDebugMode() bool {
	return gin.Mode() == gin.DebugMode
}

// initConfig initializes the configuration by reading the configuration file.
// If the environment is set to debug, it reads the debug-config.yaml file.
// Otherwise, it reads the config.yaml file from ConfigMap.
func initConfig() *Config {
	var configPath string
	if IsDebugMode() {
		if os.Getenv("STAFFDESK_DEBUG_CONFIG_PATH") != "" {
			configPath = os.Getenv("STAFFDESK_DEBUG_CONFIG_PATH")
		} else {
			configPath = "./etc/debug-config.yaml"
		}
	} else {
		configPath = "/etc/config/config.yaml"
	}
	klog.Info("config path: ", configPath)

	config, err := LoadConfig(configPath)
	if err != nil {
		klog.Error("init config", err)
		panic(err)
	}
	return config
}

// LoadConfig reads a YAML config file and fills in defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8088"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.Postgres.TimeZone == "" {
		c.Postgres.TimeZone = "UTC"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Storage.AttachmentDir == "" {
		c.Storage.AttachmentDir = "./data/attachments"
	}
	if c.Storage.MaxUploadMB == 0 {
		c.Storage.MaxUploadMB = 32
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 5
	}
	if c.Notification.CleanupSpec == "" {
		c.Notification.CleanupSpec = "0 3 * * *"
	}
}
