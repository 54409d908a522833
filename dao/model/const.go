// 定义与数据库表字段对应的常量
// 字符串类型的枚举直接落库，便于排查数据，也便于前端直接展示
package model

// CompanyType distinguishes the two sides of a request.
type CompanyType string

const (
	CompanyTypeClient CompanyType = "client" // 需求方
	CompanyTypeVendor CompanyType = "vendor" // 劳务供应方
)

func (t CompanyType) IsValid() bool {
	return t == CompanyTypeClient || t == CompanyTypeVendor
}

// FieldType is the type tag of a dynamic request field.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
	FieldTypeBool   FieldType = "bool"
	FieldTypeChoice FieldType = "choice"
	FieldTypeJSON   FieldType = "json"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate, FieldTypeBool, FieldTypeChoice, FieldTypeJSON:
		return true
	}
	return false
}

// RequestStatus 请求状态
type RequestStatus string

const (
	RequestStatusDraft      RequestStatus = "draft"       // 草稿，仅创建者可见
	RequestStatusSubmitted  RequestStatus = "submitted"   // 已提交，等待供应方处理
	RequestStatusInProgress RequestStatus = "in_progress" // 处理中
	RequestStatusReturned   RequestStatus = "returned"    // 退回修改
	RequestStatusCompleted  RequestStatus = "completed"   // 已完成
	RequestStatusRejected   RequestStatus = "rejected"    // 已拒绝
	RequestStatusCancelled  RequestStatus = "cancelled"   // 已取消
)

// RequestStatuses lists every status in lifecycle order.
var RequestStatuses = []RequestStatus{
	RequestStatusDraft,
	RequestStatusSubmitted,
	RequestStatusInProgress,
	RequestStatusReturned,
	RequestStatusCompleted,
	RequestStatusRejected,
	RequestStatusCancelled,
}

func (s RequestStatus) IsValid() bool {
	for _, status := range RequestStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusRejected || s == RequestStatusCancelled
}
