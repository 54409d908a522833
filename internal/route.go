package internal

import (
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	docs "github.com/raids-lab/staffdesk/docs"
	"github.com/raids-lab/staffdesk/internal/handler"
	"github.com/raids-lab/staffdesk/internal/middleware"
)

const (
	APIPrefix      = "/v1"
	APIAdminPrefix = APIPrefix + "/admin"
)

// Register builds the gin engine with every registered manager mounted.
func Register(conf *handler.RegisterConfig) *gin.Engine {
	r := gin.Default()
	handler.RegisterValidations()

	// Enable CORS for http://localhost:XXXX in debug mode
	if gin.Mode() == gin.DebugMode {
		fe := os.Getenv("STAFFDESK_FE_PORT")
		if fe != "" {
			corsConf := cors.DefaultConfig()
			corsConf.AllowOrigins = []string{"http://localhost:" + fe}
			corsConf.AddAllowHeaders("Authorization")
			r.Use(cors.New(corsConf))
		}
	}

	// Kubernetes health check
	r.GET(APIPrefix+"/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ok",
		})
	})

	metricsPath := "/metrics"
	if conf.Config != nil && conf.Config.MetricsPath != "" {
		metricsPath = conf.Config.MetricsPath
	}
	r.GET(metricsPath, handler.GetMetrics(conf.DB))

	// Swagger
	docs.SwaggerInfo.BasePath = "/"
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	managers := registerManagers(conf)

	///////////////////////////////////////
	//// Public routers, no need login ////
	///////////////////////////////////////

	publicRouter := r.Group(APIPrefix)

	///////////////////////////////////////
	//// Protected routers, need login ////
	///////////////////////////////////////

	protectedRouter := r.Group(APIPrefix)
	protectedRouter.Use(middleware.AuthProtected(conf.TokenMgr, conf.Resolver))

	///////////////////////////////////////
	//// Admin routers, need admin role ///
	///////////////////////////////////////

	adminRouter := r.Group(APIAdminPrefix)
	adminRouter.Use(middleware.AuthProtected(conf.TokenMgr, conf.Resolver), middleware.AuthAdmin())

	for _, mgr := range managers {
		prefix := "/" + mgr.GetName()
		mgr.RegisterPublic(publicRouter.Group(prefix))
		mgr.RegisterProtected(protectedRouter.Group(prefix))
		mgr.RegisterAdmin(adminRouter.Group(prefix))
	}

	return r
}
