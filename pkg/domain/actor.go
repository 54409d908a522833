package domain

import "github.com/raids-lab/staffdesk/dao/model"

// ActorContext identifies who performs an operation. It is resolved once per
// request by the transport layer and passed explicitly into every core call.
type ActorContext struct {
	UserID      uint
	CompanyID   uint // 0 when the user belongs to no company
	CompanyType model.CompanyType
	IsSuperuser bool
}

// HasCompany reports whether the actor is attached to a company.
func (a ActorContext) HasCompany() bool {
	return a.CompanyID != 0
}

func (a ActorContext) IsClient() bool {
	return a.HasCompany() && a.CompanyType == model.CompanyTypeClient
}

func (a ActorContext) IsVendor() bool {
	return a.HasCompany() && a.CompanyType == model.CompanyTypeVendor
}

// CheckAttached fails with ErrUnauthorized for users that can do nothing at all.
func (a ActorContext) CheckAttached() error {
	if a.UserID == 0 || (!a.HasCompany() && !a.IsSuperuser) {
		return ErrUnauthorized
	}
	return nil
}
