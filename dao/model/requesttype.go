package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestType defines a family of requests sharing one dynamic field schema.
type RequestType struct {
	gorm.Model
	Name     string         `gorm:"type:varchar(128);not null;comment:请求类型名称"`
	Code     string         `gorm:"uniqueIndex;type:varchar(64);not null;comment:请求类型代码"`
	IsActive bool           `gorm:"not null;comment:是否启用"`
	Fields   []RequestField `gorm:"foreignKey:RequestTypeID"`
}

// RequestField 请求类型的动态字段定义
type RequestField struct {
	gorm.Model
	RequestTypeID uint                        `gorm:"not null;uniqueIndex:idx_request_field_type_key;comment:请求类型ID"`
	Key           string                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_request_field_type_key;comment:字段键"`
	Label         string                      `gorm:"type:varchar(128);not null;comment:字段名称"`
	Type          FieldType                   `gorm:"type:varchar(16);not null;comment:字段类型"`
	IsRequired    bool                        `gorm:"not null;default:false;comment:是否必填"`
	IsActive      bool                        `gorm:"not null;comment:是否启用"`
	SortOrder     int                         `gorm:"not null;default:0;comment:排序"`
	Options       datatypes.JSONSlice[string] `gorm:"comment:可选项 (choice 类型必填)"`
}

// HasOption reports whether v is one of the allowed choice values.
func (f *RequestField) HasOption(v string) bool {
	for _, opt := range f.Options {
		if opt == v {
			return true
		}
	}
	return false
}
