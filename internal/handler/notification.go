package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/internal/payload"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/notify"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewNotificationMgr)
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type NotificationMgr struct {
	name       string
	dispatcher *notify.Dispatcher
	hub        *notify.Hub
	upgrader   websocket.Upgrader
}

func NewNotificationMgr(conf *RegisterConfig) Manager {
	return &NotificationMgr{
		name:       "notifications",
		dispatcher: conf.Notifications,
		hub:        conf.Hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 令牌通过 query 传递，跨域页面拿不到令牌
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

func (mgr *NotificationMgr) GetName() string { return mgr.name }

func (mgr *NotificationMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *NotificationMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListNotifications)
	g.GET("/unread-count", mgr.GetUnreadCount)
	g.PUT("/read-all", mgr.MarkAllRead)
	g.PUT("/:id/read", mgr.MarkRead)
	g.GET("/stream", mgr.Stream)
}

func (mgr *NotificationMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type (
	ListNotificationsReq struct {
		Unread    bool `form:"unread"`
		PageIndex *int `form:"page_index"`
		PageSize  *int `form:"page_size"`
	}
	NotificationIDReq struct {
		ID uint `uri:"id" binding:"required"`
	}
	NotificationResp struct {
		ID        uint      `json:"id"`
		RequestID *uint     `json:"requestID,omitempty"`
		Title     string    `json:"title"`
		Message   string    `json:"message"`
		IsRead    bool      `json:"isRead"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

// ListNotifications godoc
// @Summary 列出当前用户的通知
// @Description 按时间倒序
// @Tags Notification
// @Accept json
// @Produce json
// @Security Bearer
// @Param unread query bool false "only unread"
// @Param page_index query int false "page index, starts at 0"
// @Param page_size query int false "page size"
// @Success 200 {object} resputil.Response[payload.ListResp[NotificationResp]] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Router /v1/notifications [get]
func (mgr *NotificationMgr) ListNotifications(c *gin.Context) {
	var req ListNotificationsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	pageIndex, pageSize := payload.PageOf(req.PageIndex, req.PageSize)
	page, err := mgr.dispatcher.List(c, util.GetActor(c).UserID, req.Unread, pageIndex, pageSize)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[NotificationResp]{
		Count: page.Count,
		Rows: lo.Map(page.Rows, func(n model.Notification, _ int) NotificationResp {
			return NotificationResp{
				ID:        n.ID,
				RequestID: n.RequestID,
				Title:     n.Title,
				Message:   n.Message,
				IsRead:    n.IsRead,
				CreatedAt: n.CreatedAt,
			}
		}),
	})
}

// GetUnreadCount godoc
// @Summary 未读通知数量
// @Tags Notification
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[int64] "成功返回"
// @Router /v1/notifications/unread-count [get]
func (mgr *NotificationMgr) GetUnreadCount(c *gin.Context) {
	count, err := mgr.dispatcher.UnreadCount(c, util.GetActor(c).UserID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, count)
}

// MarkRead godoc
// @Summary 标记通知为已读
// @Tags Notification
// @Produce json
// @Security Bearer
// @Param id path int true "notification id"
// @Success 200 {object} resputil.Response[any] "成功返回"
// @Failure 404 {object} resputil.Response[any] "通知不存在"
// @Router /v1/notifications/{id}/read [put]
func (mgr *NotificationMgr) MarkRead(c *gin.Context) {
	var uri NotificationIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := mgr.dispatcher.MarkRead(c, util.GetActor(c).UserID, uri.ID); err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, nil)
}

// MarkAllRead godoc
// @Summary 全部标记为已读
// @Tags Notification
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[int64] "被标记的数量"
// @Router /v1/notifications/read-all [put]
func (mgr *NotificationMgr) MarkAllRead(c *gin.Context) {
	count, err := mgr.dispatcher.MarkAllRead(c, util.GetActor(c).UserID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, count)
}

// Stream godoc
// @Summary 通知推送
// @Description 升级为 websocket，新通知以 JSON 帧推送；浏览器可通过 token 参数传递令牌
// @Tags Notification
// @Security Bearer
// @Param token query string false "access token"
// @Success 101 {string} string "Switching Protocols"
// @Router /v1/notifications/stream [get]
func (mgr *NotificationMgr) Stream(c *gin.Context) {
	userID := util.GetActor(c).UserID
	conn, err := mgr.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		klog.Warningf("upgrade notification stream of user %d: %v", userID, err)
		return
	}
	unregister := mgr.hub.Register(userID, conn)
	defer unregister()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// WriteControl may run concurrently with the hub's writes
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Frames from the client are ignored; reading only detects the close.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
