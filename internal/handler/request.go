package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/internal/payload"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/internal/util"
	"github.com/raids-lab/staffdesk/pkg/fieldvalue"
	"github.com/raids-lab/staffdesk/pkg/lifecycle"
	"github.com/raids-lab/staffdesk/pkg/workflow"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewRequestMgr)
}

type RequestMgr struct {
	name    string
	service *workflow.Service
}

func NewRequestMgr(conf *RegisterConfig) Manager {
	return &RequestMgr{
		name:    "requests",
		service: conf.Service,
	}
}

func (mgr *RequestMgr) GetName() string { return mgr.name }

func (mgr *RequestMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *RequestMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListRequests)
	g.POST("", mgr.CreateRequest)
	g.GET("/:id", mgr.GetRequest)
	g.PUT("/:id", mgr.UpdateDraft)
	g.GET("/:id/actions", mgr.GetAllowedActions)
	g.POST("/:id/actions/:action", mgr.ApplyAction)
	g.POST("/:id/comments", mgr.AddComment)
	g.POST("/:id/attachments", mgr.UploadAttachment)
	g.GET("/:id/attachments/:attachmentID", mgr.DownloadAttachment)
	g.DELETE("/:id/attachments/:attachmentID", mgr.DeleteAttachment)
}

func (mgr *RequestMgr) RegisterAdmin(_ *gin.RouterGroup) {}

// FieldValues are posted as JSON values and stored from their text form:
// strings are unquoted, null clears the field, anything else is kept verbatim.
// Values of json fields are always kept verbatim.
type FieldValues map[string]json.RawMessage

func (v FieldValues) text(fields []model.RequestField) map[string]string {
	if len(v) == 0 {
		return nil
	}
	jsonKeys := lo.SliceToMap(
		lo.Filter(fields, func(f model.RequestField, _ int) bool { return f.Type == model.FieldTypeJSON }),
		func(f model.RequestField) (string, struct{}) { return f.Key, struct{}{} },
	)
	out := make(map[string]string, len(v))
	for key, msg := range v {
		var s string
		_, isJSON := jsonKeys[key]
		switch {
		case len(msg) == 0 || string(msg) == "null":
			s = ""
		case isJSON:
			s = string(msg)
		case json.Unmarshal(msg, &s) == nil:
		default:
			s = string(msg)
		}
		out[key] = s
	}
	return out
}

// fieldValues resolves posted values against the schema only when there are any.
func fieldValues(v FieldValues, schema func() ([]model.RequestField, error)) (map[string]string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	fields, err := schema()
	if err != nil {
		return nil, err
	}
	return v.text(fields), nil
}

type (
	RequestIDReq struct {
		ID uint `uri:"id" binding:"required"`
	}
	ActionURIReq struct {
		ID     uint             `uri:"id" binding:"required"`
		Action lifecycle.Action `uri:"action" binding:"required"`
	}
	AttachmentURIReq struct {
		ID           uint `uri:"id" binding:"required"`
		AttachmentID uint `uri:"attachmentID" binding:"required"`
	}

	ListRequestsReq struct {
		Search    string              `form:"search"`
		Status    model.RequestStatus `form:"status" binding:"omitempty,request_status"`
		PageIndex *int                `form:"page_index"`
		PageSize  *int                `form:"page_size"`
	}
	ListRequestsResp struct {
		payload.ListResp[payload.RequestResp]
		StatusCounts map[model.RequestStatus]int64 `json:"statusCounts"`
	}

	CreateRequestReq struct {
		RequestTypeID uint        `json:"requestTypeID" binding:"required"`
		WorkerID      uint        `json:"workerID" binding:"required"`
		Title         string      `json:"title" binding:"required"`
		Notes         string      `json:"notes"`
		FieldValues   FieldValues `json:"fieldValues"`
	}
	UpdateDraftReq struct {
		Title       *string     `json:"title"`
		Notes       *string     `json:"notes"`
		FieldValues FieldValues `json:"fieldValues"`
	}
	ApplyActionReq struct {
		RejectionReason string      `json:"rejectionReason"`
		ReturnReason    string      `json:"returnReason"`
		ClosureNote     string      `json:"closureNote"`
		Title           *string     `json:"title"`
		Notes           *string     `json:"notes"`
		FieldValues     FieldValues `json:"fieldValues"`
	}
	AddCommentReq struct {
		Body string `json:"body" binding:"required"`
	}

	FieldValueResp struct {
		Field payload.FieldResp `json:"field"`
		Value any               `json:"value"`
	}
	TimelineResp struct {
		ID          uint                `json:"id"`
		Action      string              `json:"action"`
		Description string              `json:"description"`
		OldStatus   model.RequestStatus `json:"oldStatus"`
		NewStatus   model.RequestStatus `json:"newStatus"`
		User        *payload.UserResp   `json:"user,omitempty"`
		CreatedAt   time.Time           `json:"createdAt"`
	}
	CommentResp struct {
		ID        uint              `json:"id"`
		Body      string            `json:"body"`
		Author    *payload.UserResp `json:"author,omitempty"`
		CreatedAt time.Time         `json:"createdAt"`
	}
	AttachmentResp struct {
		ID          uint              `json:"id"`
		FileName    string            `json:"fileName"`
		ContentType string            `json:"contentType"`
		Size        int64             `json:"size"`
		Description string            `json:"description"`
		UploadedBy  *payload.UserResp `json:"uploadedBy,omitempty"`
		CreatedAt   time.Time         `json:"createdAt"`
	}
	RequestDetailResp struct {
		payload.RequestResp
		Values      []FieldValueResp   `json:"values"`
		Timeline    []TimelineResp     `json:"timeline"`
		Comments    []CommentResp      `json:"comments"`
		Attachments []AttachmentResp   `json:"attachments"`
		Actions     []lifecycle.Action `json:"actions"`
	}
)

// ListRequests godoc
// @Summary 列出可见的请求
// @Description 按可见范围列出请求，支持标题/备注搜索、状态过滤，并返回各状态数量
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param search query string false "search in title and notes"
// @Param status query string false "request status"
// @Param page_index query int false "page index, starts at 0"
// @Param page_size query int false "page size"
// @Success 200 {object} resputil.Response[ListRequestsResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /v1/requests [get]
func (mgr *RequestMgr) ListRequests(c *gin.Context) {
	var req ListRequestsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	pageIndex, pageSize := payload.PageOf(req.PageIndex, req.PageSize)
	page, err := mgr.service.ListRequests(c, util.GetActor(c), workflow.ListFilter{
		Search:    req.Search,
		Status:    req.Status,
		PageIndex: pageIndex,
		PageSize:  pageSize,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resp := ListRequestsResp{StatusCounts: page.StatusCounts}
	resp.Count = page.Count
	resp.Rows = lo.Map(page.Rows, func(r model.Request, _ int) payload.RequestResp {
		return payload.NewRequestResp(&r)
	})
	resputil.Success(c, resp)
}

// CreateRequest godoc
// @Summary 创建请求草稿
// @Description 客户方用户为本方创建一个草稿请求
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreateRequestReq true "draft"
// @Success 200 {object} resputil.Response[payload.RequestResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Failure 409 {object} resputil.Response[any] "当前角色不能创建请求"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /v1/requests [post]
func (mgr *RequestMgr) CreateRequest(c *gin.Context) {
	var req CreateRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	values, err := fieldValues(req.FieldValues, func() ([]model.RequestField, error) {
		return mgr.service.GetFieldSchema(c, req.RequestTypeID)
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	created, err := mgr.service.CreateDraft(c, util.GetActor(c), lifecycle.DraftInput{
		RequestTypeID: req.RequestTypeID,
		WorkerID:      req.WorkerID,
		Title:         req.Title,
		Notes:         req.Notes,
		FieldValues:   values,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.NewRequestResp(created))
}

// GetRequest godoc
// @Summary 获取请求详情
// @Description 请求本身、动态字段值、时间线、评论、附件以及当前可执行的动作
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Success 200 {object} resputil.Response[RequestDetailResp] "成功返回"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /v1/requests/{id} [get]
func (mgr *RequestMgr) GetRequest(c *gin.Context) {
	var uri RequestIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	detail, err := mgr.service.GetRequest(c, util.GetActor(c), uri.ID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, newRequestDetailResp(detail))
}

// UpdateDraft godoc
// @Summary 修改草稿
// @Description 仅创建者可修改处于草稿状态的请求
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Param data body UpdateDraftReq true "changes"
// @Success 200 {object} resputil.Response[payload.RequestResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Failure 409 {object} resputil.Response[any] "请求已不是草稿或已被修改"
// @Router /v1/requests/{id} [put]
func (mgr *RequestMgr) UpdateDraft(c *gin.Context) {
	var uri RequestIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req UpdateDraftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	actor := util.GetActor(c)
	values, err := fieldValues(req.FieldValues, func() ([]model.RequestField, error) {
		return mgr.service.RequestFieldSchema(c, actor, uri.ID)
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	updated, err := mgr.service.UpdateDraft(c, actor, uri.ID, lifecycle.DraftUpdate{
		Title:       req.Title,
		Notes:       req.Notes,
		FieldValues: values,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.NewRequestResp(updated))
}

// GetAllowedActions godoc
// @Summary 当前可执行的动作
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Success 200 {object} resputil.Response[[]lifecycle.Action] "成功返回"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Router /v1/requests/{id}/actions [get]
func (mgr *RequestMgr) GetAllowedActions(c *gin.Context) {
	var uri RequestIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	actions, err := mgr.service.AllowedActions(c, util.GetActor(c), uri.ID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	if actions == nil {
		actions = []lifecycle.Action{}
	}
	resputil.Success(c, actions)
}

// ApplyAction godoc
// @Summary 执行生命周期动作
// @Description confirm_submission, delete_draft, start_processing, return_defect, complete, reject, resubmit, cancel
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Param action path string true "action"
// @Param data body ApplyActionReq false "action payload"
// @Success 200 {object} resputil.Response[payload.RequestResp] "成功返回，delete_draft 时 data 为空"
// @Failure 400 {object} resputil.Response[any] "缺少原因或必填字段"
// @Failure 403 {object} resputil.Response[any] "无权操作"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Failure 409 {object} resputil.Response[any] "非法状态转换或并发修改"
// @Router /v1/requests/{id}/actions/{action} [post]
func (mgr *RequestMgr) ApplyAction(c *gin.Context) {
	var uri ActionURIReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	// 无 payload 的动作可以不带请求体
	var req ApplyActionReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		resputil.BadRequestError(c, err.Error())
		return
	}
	actor := util.GetActor(c)
	values, err := fieldValues(req.FieldValues, func() ([]model.RequestField, error) {
		return mgr.service.RequestFieldSchema(c, actor, uri.ID)
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	updated, err := mgr.service.ApplyAction(c, actor, uri.ID, uri.Action, lifecycle.Payload{
		RejectionReason: req.RejectionReason,
		ReturnReason:    req.ReturnReason,
		ClosureNote:     req.ClosureNote,
		Title:           req.Title,
		Notes:           req.Notes,
		FieldValues:     values,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	if updated == nil {
		resputil.Success(c, nil)
		return
	}
	resputil.Success(c, payload.NewRequestResp(updated))
}

// AddComment godoc
// @Summary 添加评论
// @Tags Request
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Param data body AddCommentReq true "comment"
// @Success 200 {object} resputil.Response[CommentResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Router /v1/requests/{id}/comments [post]
func (mgr *RequestMgr) AddComment(c *gin.Context) {
	var uri RequestIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req AddCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	comment, err := mgr.service.AddComment(c, util.GetActor(c), uri.ID, req.Body)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, newCommentResp(comment))
}

// UploadAttachment godoc
// @Summary 上传附件
// @Tags Request
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Param file formData file true "file"
// @Param description formData string false "description"
// @Success 200 {object} resputil.Response[AttachmentResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "缺少文件或文件过大"
// @Failure 404 {object} resputil.Response[any] "请求不存在或不可见"
// @Router /v1/requests/{id}/attachments [post]
func (mgr *RequestMgr) UploadAttachment(c *gin.Context) {
	var uri RequestIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		resputil.BadRequestError(c, fmt.Sprintf("file is required: %v", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		resputil.Error(c, fmt.Sprintf("open upload: %v", err), resputil.NotSpecified)
		return
	}
	defer f.Close()

	att, err := mgr.service.AddAttachment(c, util.GetActor(c), uri.ID, workflow.AttachmentInput{
		FileName:    fh.Filename,
		Description: c.PostForm("description"),
		Content:     f,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, newAttachmentResp(att))
}

// DownloadAttachment godoc
// @Summary 下载附件
// @Tags Request
// @Produce octet-stream
// @Security Bearer
// @Param id path int true "request id"
// @Param attachmentID path int true "attachment id"
// @Success 200 {file} binary "文件内容"
// @Failure 404 {object} resputil.Response[any] "附件不存在或不可见"
// @Router /v1/requests/{id}/attachments/{attachmentID} [get]
func (mgr *RequestMgr) DownloadAttachment(c *gin.Context) {
	var uri AttachmentURIReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	att, rc, err := mgr.service.OpenAttachment(c, util.GetActor(c), uri.ID, uri.AttachmentID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	defer rc.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, att.Size, contentType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": att.FileName}),
	})
}

// DeleteAttachment godoc
// @Summary 删除附件
// @Description 仅请求创建者可删除
// @Tags Request
// @Produce json
// @Security Bearer
// @Param id path int true "request id"
// @Param attachmentID path int true "attachment id"
// @Success 200 {object} resputil.Response[any] "成功返回"
// @Failure 403 {object} resputil.Response[any] "无权删除"
// @Failure 404 {object} resputil.Response[any] "附件不存在或不可见"
// @Router /v1/requests/{id}/attachments/{attachmentID} [delete]
func (mgr *RequestMgr) DeleteAttachment(c *gin.Context) {
	var uri AttachmentURIReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := mgr.service.DeleteAttachment(c, util.GetActor(c), uri.ID, uri.AttachmentID); err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, strconv.FormatUint(uint64(uri.AttachmentID), 10))
}

func newRequestDetailResp(d *workflow.RequestDetail) RequestDetailResp {
	actions := d.Actions
	if actions == nil {
		actions = []lifecycle.Action{}
	}
	return RequestDetailResp{
		RequestResp: payload.NewRequestResp(d.Request),
		Values: lo.Map(d.Values, func(e fieldvalue.Entry, _ int) FieldValueResp {
			return FieldValueResp{Field: payload.NewFieldResp(&e.Field), Value: e.Value.Interface()}
		}),
		Timeline: lo.Map(d.Timeline, func(t model.RequestTimeline, _ int) TimelineResp {
			return TimelineResp{
				ID:          t.ID,
				Action:      t.Action,
				Description: t.Description,
				OldStatus:   t.OldStatus,
				NewStatus:   t.NewStatus,
				User:        payload.NewUserResp(&t.User),
				CreatedAt:   t.CreatedAt,
			}
		}),
		Comments: lo.Map(d.Comments, func(cm model.RequestComment, _ int) CommentResp {
			return newCommentResp(&cm)
		}),
		Attachments: lo.Map(d.Attachments, func(a model.RequestAttachment, _ int) AttachmentResp {
			return newAttachmentResp(&a)
		}),
		Actions: actions,
	}
}

func newCommentResp(cm *model.RequestComment) CommentResp {
	return CommentResp{
		ID:        cm.ID,
		Body:      cm.Body,
		Author:    payload.NewUserResp(&cm.Author),
		CreatedAt: cm.CreatedAt,
	}
}

func newAttachmentResp(a *model.RequestAttachment) AttachmentResp {
	return AttachmentResp{
		ID:          a.ID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		Size:        a.Size,
		Description: a.Description,
		UploadedBy:  payload.NewUserResp(&a.UploadedBy),
		CreatedAt:   a.CreatedAt,
	}
}
