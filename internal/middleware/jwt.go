package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/actor"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// AuthProtected verifies the bearer token and resolves the actor once per
// request. Browsers cannot set headers on websocket upgrades, so the token may
// also come from the "token" query parameter on GET.
func AuthProtected(tokenMgr *util.TokenManager, resolver actor.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken, ok := bearerToken(c)
		if !ok {
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid token", resputil.TokenInvalid)
			c.Abort()
			return
		}

		token, err := tokenMgr.CheckToken(authToken)
		if err != nil {
			resputil.HTTPError(c, http.StatusUnauthorized, err.Error(), resputil.TokenExpired)
			c.Abort()
			return
		}

		// 用户信息以数据库为准，令牌只携带用户 ID
		actorCtx, err := resolver.Resolve(c, token.UserID)
		if errors.Is(err, domain.ErrUnauthorized) {
			resputil.HTTPError(c, http.StatusUnauthorized, "User not found or inactive", resputil.TokenInvalid)
			c.Abort()
			return
		}
		if err != nil {
			klog.Errorf("resolve actor %d: %v", token.UserID, err)
			resputil.Error(c, "Failed to resolve user", resputil.NotSpecified)
			c.Abort()
			return
		}

		util.SetJWTContext(c, token, actorCtx)
		c.Next()
	}
}

func AuthAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !util.GetActor(c).IsSuperuser {
			resputil.HTTPError(c, http.StatusForbidden, "Not Admin", resputil.UserNotAllowed)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader != "" {
		t := strings.Split(authHeader, " ")
		if len(t) < 2 || t[0] != "Bearer" || t[1] == "" {
			return "", false
		}
		return t[1], true
	}
	if c.Request.Method == http.MethodGet {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}
