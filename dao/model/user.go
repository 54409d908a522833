package model

import (
	"gorm.io/gorm"
)

// Company, User and Worker mirror entities owned by the administration service.
// They are read here to resolve actors, scope visibility and fan out notifications.

// Company is either a client or a vendor.
type Company struct {
	gorm.Model
	Name     string      `gorm:"uniqueIndex;type:varchar(128);not null;comment:公司名称"`
	Type     CompanyType `gorm:"type:varchar(16);not null;index;comment:公司类型 (client, vendor)"`
	IsActive bool        `gorm:"not null;comment:是否启用"`
	Users    []User
}

// User is the basic entity of the system
type User struct {
	gorm.Model
	Name        string   `gorm:"uniqueIndex;type:varchar(64);not null;comment:用户名"`
	Nickname    *string  `gorm:"type:varchar(64);comment:昵称"`
	Email       *string  `gorm:"type:varchar(128);comment:邮箱"`
	CompanyID   *uint    `gorm:"index;comment:所属公司ID"`
	Company     *Company `gorm:"foreignKey:CompanyID"`
	IsActive    bool     `gorm:"not null;comment:是否在职"`
	IsSuperuser bool     `gorm:"not null;default:false;comment:是否为超级管理员"`
}

type UserInfo struct {
	Username string  `json:"username"`
	Nickname *string `json:"nickname"`
}

func (u *User) Info() UserInfo {
	return UserInfo{Username: u.Name, Nickname: u.Nickname}
}

// Worker is a person employed by a vendor company, the subject of a request.
type Worker struct {
	gorm.Model
	Name      string  `gorm:"type:varchar(128);not null;comment:工人姓名"`
	CompanyID uint    `gorm:"index;not null;comment:所属供应方公司ID"`
	Company   Company `gorm:"foreignKey:CompanyID"`
}
