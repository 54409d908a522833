package operations

import (
	"github.com/gin-gonic/gin"

	"github.com/raids-lab/staffdesk/internal/handler"
	"github.com/raids-lab/staffdesk/pkg/cronjob"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	handler.Registers = append(handler.Registers, NewOperationsMgr)
}

type OperationsMgr struct {
	name           string
	cronJobManager *cronjob.CronJobManager
}

func NewOperationsMgr(conf *handler.RegisterConfig) handler.Manager {
	return &OperationsMgr{
		name:           "operations",
		cronJobManager: conf.Cron,
	}
}

func (mgr *OperationsMgr) GetName() string { return mgr.name }

func (mgr *OperationsMgr) RegisterPublic(_ *gin.RouterGroup) {
}

func (mgr *OperationsMgr) RegisterProtected(_ *gin.RouterGroup) {
}

func (mgr *OperationsMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/cronjob/names", mgr.GetCronjobNames)
	g.POST("/cronjob/:name/run", mgr.RunCronjob)
	g.POST("/cronjob/records", mgr.GetCronjobRecords)
	g.DELETE("/cronjob/records", mgr.DeleteCronjobRecords)
}
