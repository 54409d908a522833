package resputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/pkg/domain"
)

// Response is the envelope of every JSON response.
type Response[T any] struct {
	Code ErrorCode `json:"code"`
	Data T         `json:"data"`
	Msg  string    `json:"msg"`
}

func wrapResponse(c *gin.Context, httpCode int, msg string, data any, code ErrorCode) {
	c.JSON(httpCode, Response[any]{
		Code: code,
		Data: data,
		Msg:  msg,
	})
}

func Success(c *gin.Context, data any) {
	wrapResponse(c, http.StatusOK, "", data, OK)
}

// Error responds 500 with a business error code.
func Error(c *gin.Context, msg string, errorCode ErrorCode) {
	wrapResponse(c, http.StatusInternalServerError, msg, nil, errorCode)
}

func HTTPError(c *gin.Context, httpCode int, msg string, errorCode ErrorCode) {
	wrapResponse(c, httpCode, msg, nil, errorCode)
}

func BadRequestError(c *gin.Context, msg string) {
	wrapResponse(c, http.StatusBadRequest, msg, nil, InvalidRequest)
}

// DomainError maps a core error to its HTTP status: validation 400,
// unauthorized 403, not found 404, invalid transition and concurrent
// modification 409, anything else 500.
func DomainError(c *gin.Context, err error) {
	if ve, ok := domain.AsValidationError(err); ok {
		wrapResponse(c, http.StatusBadRequest, ve.Error(), ve, InvalidRequest)
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		HTTPError(c, http.StatusNotFound, err.Error(), NotFound)
	case errors.Is(err, domain.ErrUnauthorized):
		HTTPError(c, http.StatusForbidden, err.Error(), UserNotAllowed)
	case errors.Is(err, domain.ErrInvalidTransition):
		HTTPError(c, http.StatusConflict, err.Error(), InvalidTransition)
	case errors.Is(err, domain.ErrConcurrentModification):
		HTTPError(c, http.StatusConflict, err.Error(), ConcurrentModification)
	default:
		klog.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		Error(c, err.Error(), NotSpecified)
	}
}
