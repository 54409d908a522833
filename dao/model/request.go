package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Request 请求，生命周期状态机的聚合根
type Request struct {
	gorm.Model
	RequestTypeID uint          `gorm:"index;not null;comment:请求类型ID"`
	RequestType   RequestType   `gorm:"foreignKey:RequestTypeID"`
	WorkerID      uint          `gorm:"index;not null;comment:工人ID"`
	Worker        Worker        `gorm:"foreignKey:WorkerID"`
	Status        RequestStatus `gorm:"type:varchar(32);not null;default:draft;index;comment:请求状态"`
	Title         string        `gorm:"type:varchar(256);not null;comment:标题"`
	Notes         string        `gorm:"type:text;comment:备注"`

	CreatedByID      uint     `gorm:"index;not null;comment:创建者ID"`
	CreatedBy        User     `gorm:"foreignKey:CreatedByID"`
	CurrentCompanyID *uint    `gorm:"index;comment:当前负责公司ID"`
	CurrentCompany   *Company `gorm:"foreignKey:CurrentCompanyID"`

	RejectionReason string `gorm:"type:text;comment:拒绝原因"`
	ClosureNote     string `gorm:"type:text;comment:完成备注"`
	ReturnReason    string `gorm:"type:text;comment:退回原因"`

	ClosedByID *uint      `gorm:"comment:关闭者ID"`
	ClosedBy   *User      `gorm:"foreignKey:ClosedByID"`
	ClosedAt   *time.Time `gorm:"comment:关闭时间"`

	// Version is bumped on every persisted change and guards conditional updates.
	Version uint `gorm:"not null;comment:乐观锁版本号"`
}

// RequestFieldValue holds the typed value of one dynamic field of one request.
type RequestFieldValue struct {
	gorm.Model
	RequestID   uint                `gorm:"not null;uniqueIndex:idx_request_field_value;comment:请求ID"`
	FieldID     uint                `gorm:"not null;uniqueIndex:idx_request_field_value;comment:字段ID"`
	Field       RequestField        `gorm:"foreignKey:FieldID"`
	ValueText   *string             `gorm:"type:text;comment:文本/选项值"`
	ValueNumber decimal.NullDecimal `gorm:"type:numeric;comment:数值"`
	ValueDate   *time.Time          `gorm:"comment:日期值"`
	ValueBool   *bool               `gorm:"comment:布尔值"`
	ValueJSON   datatypes.JSON      `gorm:"comment:JSON 值"`
}

// IsEmpty reports whether no slot carries a value.
func (v *RequestFieldValue) IsEmpty() bool {
	switch {
	case v.ValueText != nil && *v.ValueText != "":
		return false
	case v.ValueNumber.Valid:
		return false
	case v.ValueDate != nil:
		return false
	case v.ValueBool != nil:
		return false
	case len(v.ValueJSON) > 0:
		return false
	}
	return true
}

// RequestComment is free-form discussion on a request.
type RequestComment struct {
	gorm.Model
	RequestID uint   `gorm:"index;not null;comment:请求ID"`
	AuthorID  uint   `gorm:"not null;comment:作者ID"`
	Author    User   `gorm:"foreignKey:AuthorID"`
	Body      string `gorm:"type:text;not null;comment:评论内容"`
}

// RequestAttachment 请求附件，文件本体保存在 blob store 中
type RequestAttachment struct {
	gorm.Model
	RequestID    uint   `gorm:"index;not null;comment:请求ID"`
	UploadedByID uint   `gorm:"not null;comment:上传者ID"`
	UploadedBy   User   `gorm:"foreignKey:UploadedByID"`
	BlobHandle   string `gorm:"type:varchar(256);not null;comment:文件句柄"`
	FileName     string `gorm:"type:varchar(256);not null;comment:文件名"`
	ContentType  string `gorm:"type:varchar(128);comment:文件类型"`
	Size         int64  `gorm:"not null;default:0;comment:文件大小"`
	Description  string `gorm:"type:varchar(512);comment:描述"`
}

// RequestTimeline is an append-only audit entry. It deliberately has no
// UpdatedAt or DeletedAt columns.
type RequestTimeline struct {
	ID          uint          `gorm:"primarykey"`
	RequestID   uint          `gorm:"index;not null;comment:请求ID"`
	UserID      uint          `gorm:"not null;comment:操作者ID"`
	User        User          `gorm:"foreignKey:UserID"`
	Action      string        `gorm:"type:varchar(64);not null;comment:动作"`
	Description string        `gorm:"type:text;comment:描述"`
	OldStatus   RequestStatus `gorm:"type:varchar(32);comment:原状态"`
	NewStatus   RequestStatus `gorm:"type:varchar(32);comment:新状态"`
	CreatedAt   time.Time
}

// Notification 站内通知
type Notification struct {
	gorm.Model
	RecipientID uint   `gorm:"index;not null;comment:接收者ID"`
	RequestID   *uint  `gorm:"index;comment:关联请求ID"`
	Title       string `gorm:"type:varchar(256);not null;comment:标题"`
	Message     string `gorm:"type:text;comment:内容"`
	IsRead      bool   `gorm:"not null;default:false;index;comment:是否已读"`
}
