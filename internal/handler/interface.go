package handler

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/config"
	"github.com/raids-lab/staffdesk/pkg/cronjob"
	"github.com/raids-lab/staffdesk/pkg/notify"
	"github.com/raids-lab/staffdesk/pkg/schema"
	"github.com/raids-lab/staffdesk/pkg/workflow"
)

// Manager owns the routes of one resource. Each group is mounted under
// "/<name>" of the public, protected and admin routers.
type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

// RegisterConfig carries everything a Manager may depend on.
type RegisterConfig struct {
	Config        *config.Config
	DB            *gorm.DB
	Service       *workflow.Service
	Registry      *schema.Registry
	Notifications *notify.Dispatcher
	Hub           *notify.Hub
	Cron          *cronjob.CronJobManager
	TokenMgr      *util.TokenManager
	Resolver      actor.Resolver
}

// Registers is filled by the init functions of the handler packages.
var Registers = []func(conf *RegisterConfig) Manager{}
