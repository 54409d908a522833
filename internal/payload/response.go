package payload

import (
	"time"

	"github.com/raids-lab/staffdesk/dao/model"
)

// 定义返回值时，优先在使用到该返回值的 /internal/handler/xxx.go 中直接定义
// 当某个返回值的结构体通用时，从 /internal/handler/xxx.go 中提升至此文件中

type (
	UserResp struct {
		ID       uint    `json:"id"`
		Username string  `json:"username"`
		Nickname *string `json:"nickname"`
	}

	CompanyResp struct {
		ID   uint              `json:"id"`
		Name string            `json:"name"`
		Type model.CompanyType `json:"type"`
	}

	WorkerResp struct {
		ID      uint         `json:"id"`
		Name    string       `json:"name"`
		Company *CompanyResp `json:"company,omitempty"`
	}

	RequestTypeResp struct {
		ID       uint   `json:"id"`
		Name     string `json:"name"`
		Code     string `json:"code"`
		IsActive bool   `json:"isActive"`
	}

	FieldResp struct {
		ID            uint            `json:"id"`
		RequestTypeID uint            `json:"requestTypeID"`
		Key           string          `json:"key"`
		Label         string          `json:"label"`
		Type          model.FieldType `json:"type"`
		IsRequired    bool            `json:"isRequired"`
		IsActive      bool            `json:"isActive"`
		SortOrder     int             `json:"sortOrder"`
		Options       []string        `json:"options"`
	}

	RequestResp struct {
		ID              uint                `json:"id"`
		Title           string              `json:"title"`
		Notes           string              `json:"notes"`
		Status          model.RequestStatus `json:"status"`
		Version         uint                `json:"version"`
		RequestTypeID   uint                `json:"requestTypeID"`
		RequestType     *RequestTypeResp    `json:"requestType,omitempty"`
		WorkerID        uint                `json:"workerID"`
		Worker          *WorkerResp         `json:"worker,omitempty"`
		CreatedBy       *UserResp           `json:"createdBy,omitempty"`
		CurrentCompany  *CompanyResp        `json:"currentCompany,omitempty"`
		RejectionReason string              `json:"rejectionReason,omitempty"`
		ClosureNote     string              `json:"closureNote,omitempty"`
		ReturnReason    string              `json:"returnReason,omitempty"`
		ClosedBy        *UserResp           `json:"closedBy,omitempty"`
		ClosedAt        *time.Time          `json:"closedAt,omitempty"`
		CreatedAt       time.Time           `json:"createdAt"`
		UpdatedAt       time.Time           `json:"updatedAt"`
	}
)

// NewUserResp returns nil for associations that were not loaded.
func NewUserResp(u *model.User) *UserResp {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &UserResp{ID: u.ID, Username: u.Name, Nickname: u.Nickname}
}

func NewCompanyResp(c *model.Company) *CompanyResp {
	if c == nil || c.ID == 0 {
		return nil
	}
	return &CompanyResp{ID: c.ID, Name: c.Name, Type: c.Type}
}

func NewWorkerResp(w *model.Worker) *WorkerResp {
	if w == nil || w.ID == 0 {
		return nil
	}
	return &WorkerResp{ID: w.ID, Name: w.Name, Company: NewCompanyResp(&w.Company)}
}

func NewRequestTypeResp(rt *model.RequestType) *RequestTypeResp {
	if rt == nil || rt.ID == 0 {
		return nil
	}
	return &RequestTypeResp{ID: rt.ID, Name: rt.Name, Code: rt.Code, IsActive: rt.IsActive}
}

func NewFieldResp(f *model.RequestField) FieldResp {
	options := []string(f.Options)
	if options == nil {
		options = []string{}
	}
	return FieldResp{
		ID:            f.ID,
		RequestTypeID: f.RequestTypeID,
		Key:           f.Key,
		Label:         f.Label,
		Type:          f.Type,
		IsRequired:    f.IsRequired,
		IsActive:      f.IsActive,
		SortOrder:     f.SortOrder,
		Options:       options,
	}
}

func NewRequestResp(r *model.Request) RequestResp {
	return RequestResp{
		ID:              r.ID,
		Title:           r.Title,
		Notes:           r.Notes,
		Status:          r.Status,
		Version:         r.Version,
		RequestTypeID:   r.RequestTypeID,
		RequestType:     NewRequestTypeResp(&r.RequestType),
		WorkerID:        r.WorkerID,
		Worker:          NewWorkerResp(&r.Worker),
		CreatedBy:       NewUserResp(&r.CreatedBy),
		CurrentCompany:  NewCompanyResp(r.CurrentCompany),
		RejectionReason: r.RejectionReason,
		ClosureNote:     r.ClosureNote,
		ReturnReason:    r.ReturnReason,
		ClosedBy:        NewUserResp(r.ClosedBy),
		ClosedAt:        r.ClosedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
