package util

import (
	"github.com/gin-gonic/gin"

	"github.com/raids-lab/staffdesk/pkg/domain"
)

const (
	UserIDKey   = "x-user-id"
	UsernameKey = "x-user-name"
	ActorKey    = "x-actor"
)

// SetJWTContext stores the token message and the resolved actor on the context.
func SetJWTContext(c *gin.Context, msg JWTMessage, actor domain.ActorContext) {
	c.Set(UserIDKey, msg.UserID)
	c.Set(UsernameKey, msg.Username)
	c.Set(ActorKey, actor)
}

func GetToken(c *gin.Context) JWTMessage {
	return JWTMessage{
		UserID:   c.GetUint(UserIDKey),
		Username: c.GetString(UsernameKey),
	}
}

// GetActor returns the actor resolved by the auth middleware, or the zero
// actor (which every core operation rejects) when there is none.
func GetActor(c *gin.Context) domain.ActorContext {
	v, ok := c.Get(ActorKey)
	if !ok {
		return domain.ActorContext{}
	}
	actor, _ := v.(domain.ActorContext)
	return actor
}
