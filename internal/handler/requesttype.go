package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/internal/payload"
	"github.com/raids-lab/staffdesk/internal/resputil"
	"github.com/raids-lab/staffdesk/pkg/schema"
	"github.com/raids-lab/staffdesk/pkg/workflow"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewRequestTypeMgr, NewRequestFieldMgr)
}

type RequestTypeMgr struct {
	name     string
	registry *schema.Registry
	service  *workflow.Service
}

func NewRequestTypeMgr(conf *RegisterConfig) Manager {
	return &RequestTypeMgr{
		name:     "request-types",
		registry: conf.Registry,
		service:  conf.Service,
	}
}

func (mgr *RequestTypeMgr) GetName() string { return mgr.name }

func (mgr *RequestTypeMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *RequestTypeMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListRequestTypes)
	g.GET("/:id/fields", mgr.GetFieldSchema)
}

func (mgr *RequestTypeMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListAllRequestTypes)
	g.POST("", mgr.CreateRequestType)
	g.GET("/:id/fields", mgr.ListAllFields)
	g.POST("/:id/fields", mgr.CreateField)
}

type (
	RequestTypeIDReq struct {
		ID uint `uri:"id" binding:"required"`
	}
	CreateRequestTypeReq struct {
		Name     string `json:"name" binding:"required"`
		Code     string `json:"code" binding:"required"`
		IsActive *bool  `json:"isActive"`
	}
	CreateFieldReq struct {
		Key        string          `json:"key" binding:"required"`
		Label      string          `json:"label" binding:"required"`
		Type       model.FieldType `json:"type" binding:"required,field_type"`
		IsRequired bool            `json:"isRequired"`
		IsActive   *bool           `json:"isActive"`
		SortOrder  int             `json:"sortOrder"`
		Options    []string        `json:"options"`
	}
)

// ListRequestTypes godoc
// @Summary 列出启用的请求类型
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[[]payload.RequestTypeResp] "成功返回"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /v1/request-types [get]
func (mgr *RequestTypeMgr) ListRequestTypes(c *gin.Context) {
	mgr.listTypes(c, true)
}

// ListAllRequestTypes godoc
// @Summary 列出全部请求类型（含停用）
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[[]payload.RequestTypeResp] "成功返回"
// @Failure 500 {object} resputil.Response[any] "其他错误"
// @Router /v1/admin/request-types [get]
func (mgr *RequestTypeMgr) ListAllRequestTypes(c *gin.Context) {
	mgr.listTypes(c, false)
}

func (mgr *RequestTypeMgr) listTypes(c *gin.Context, activeOnly bool) {
	types, err := mgr.registry.ListTypes(c, activeOnly)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, lo.Map(types, func(rt model.RequestType, _ int) *payload.RequestTypeResp {
		return payload.NewRequestTypeResp(&rt)
	}))
}

// GetFieldSchema godoc
// @Summary 获取请求类型的字段定义
// @Description 返回启用的字段，按排序顺序
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request type id"
// @Success 200 {object} resputil.Response[[]payload.FieldResp] "成功返回"
// @Failure 404 {object} resputil.Response[any] "请求类型不存在或已停用"
// @Router /v1/request-types/{id}/fields [get]
func (mgr *RequestTypeMgr) GetFieldSchema(c *gin.Context) {
	var uri RequestTypeIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	fields, err := mgr.service.GetFieldSchema(c, uri.ID)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, newFieldResps(fields))
}

// ListAllFields godoc
// @Summary 获取请求类型的全部字段（含停用）
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request type id"
// @Success 200 {object} resputil.Response[[]payload.FieldResp] "成功返回"
// @Failure 404 {object} resputil.Response[any] "请求类型不存在"
// @Router /v1/admin/request-types/{id}/fields [get]
func (mgr *RequestTypeMgr) ListAllFields(c *gin.Context) {
	var uri RequestTypeIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if _, err := mgr.registry.GetType(c, uri.ID); err != nil {
		resputil.DomainError(c, err)
		return
	}
	fields, err := mgr.registry.FieldsFor(c, uri.ID, false)
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, newFieldResps(fields))
}

// CreateRequestType godoc
// @Summary 创建请求类型
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreateRequestTypeReq true "request type"
// @Success 200 {object} resputil.Response[payload.RequestTypeResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "请求参数错误"
// @Router /v1/admin/request-types [post]
func (mgr *RequestTypeMgr) CreateRequestType(c *gin.Context) {
	var req CreateRequestTypeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	rt := &model.RequestType{
		Name:     req.Name,
		Code:     req.Code,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := mgr.registry.CreateType(c, rt); err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.NewRequestTypeResp(rt))
}

// CreateField godoc
// @Summary 为请求类型添加字段
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "request type id"
// @Param data body CreateFieldReq true "field"
// @Success 200 {object} resputil.Response[payload.FieldResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "字段定义不合法"
// @Failure 404 {object} resputil.Response[any] "请求类型不存在"
// @Router /v1/admin/request-types/{id}/fields [post]
func (mgr *RequestTypeMgr) CreateField(c *gin.Context) {
	var uri RequestTypeIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req CreateFieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	field := &model.RequestField{
		RequestTypeID: uri.ID,
		Key:           req.Key,
		Label:         req.Label,
		Type:          req.Type,
		IsRequired:    req.IsRequired,
		IsActive:      req.IsActive == nil || *req.IsActive,
		SortOrder:     req.SortOrder,
		Options:       req.Options,
	}
	if err := mgr.registry.CreateField(c, field); err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.NewFieldResp(field))
}

func newFieldResps(fields []model.RequestField) []payload.FieldResp {
	return lo.Map(fields, func(f model.RequestField, _ int) payload.FieldResp {
		return payload.NewFieldResp(&f)
	})
}

// RequestFieldMgr edits existing field definitions.
type RequestFieldMgr struct {
	name     string
	registry *schema.Registry
}

func NewRequestFieldMgr(conf *RegisterConfig) Manager {
	return &RequestFieldMgr{
		name:     "request-fields",
		registry: conf.Registry,
	}
}

func (mgr *RequestFieldMgr) GetName() string { return mgr.name }

func (mgr *RequestFieldMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *RequestFieldMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *RequestFieldMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.PUT("/:id", mgr.UpdateField)
}

type (
	FieldIDReq struct {
		ID uint `uri:"id" binding:"required"`
	}
	UpdateFieldReq struct {
		Label      *string  `json:"label"`
		IsRequired *bool    `json:"isRequired"`
		IsActive   *bool    `json:"isActive"`
		SortOrder  *int     `json:"sortOrder"`
		Options    []string `json:"options"`
	}
)

// UpdateField godoc
// @Summary 修改字段定义
// @Description 字段键、类型与所属请求类型不可修改；已有的字段值不受影响
// @Tags RequestType
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "field id"
// @Param data body UpdateFieldReq true "changes"
// @Success 200 {object} resputil.Response[payload.FieldResp] "成功返回"
// @Failure 400 {object} resputil.Response[any] "字段定义不合法"
// @Failure 404 {object} resputil.Response[any] "字段不存在"
// @Router /v1/admin/request-fields/{id} [put]
func (mgr *RequestFieldMgr) UpdateField(c *gin.Context) {
	var uri FieldIDReq
	if err := c.ShouldBindUri(&uri); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var req UpdateFieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	field, err := mgr.registry.UpdateField(c, uri.ID, schema.FieldUpdate{
		Label:      req.Label,
		IsRequired: req.IsRequired,
		IsActive:   req.IsActive,
		SortOrder:  req.SortOrder,
		Options:    req.Options,
	})
	if err != nil {
		resputil.DomainError(c, err)
		return
	}
	resputil.Success(c, payload.NewFieldResp(field))
}
