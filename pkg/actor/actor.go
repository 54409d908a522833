// Package actor adapts the externally administered user/company directory.
package actor

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// Resolver turns an authenticated user id into an ActorContext.
type Resolver interface {
	Resolve(ctx context.Context, userID uint) (domain.ActorContext, error)
}

// Directory answers who works for a company.
type Directory interface {
	ActiveStaff(ctx context.Context, companyID uint) ([]model.User, error)
	GetUser(ctx context.Context, userID uint) (*model.User, error)
}

// DBDirectory implements Resolver and Directory on the mirrored tables.
type DBDirectory struct {
	db *gorm.DB
}

func NewDBDirectory(db *gorm.DB) *DBDirectory {
	return &DBDirectory{db: db}
}

// Resolve fails with ErrUnauthorized for unknown or inactive users. Users whose
// company is missing or inactive resolve with CompanyID 0.
func (d *DBDirectory) Resolve(ctx context.Context, userID uint) (domain.ActorContext, error) {
	var user model.User
	err := d.db.WithContext(ctx).Preload("Company").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ActorContext{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.ActorContext{}, fmt.Errorf("resolve actor %d: %w", userID, err)
	}
	if !user.IsActive {
		return domain.ActorContext{}, domain.ErrUnauthorized
	}

	actor := domain.ActorContext{UserID: user.ID, IsSuperuser: user.IsSuperuser}
	if user.Company != nil && user.Company.IsActive && user.Company.Type.IsValid() {
		actor.CompanyID = user.Company.ID
		actor.CompanyType = user.Company.Type
	}
	return actor, nil
}

func (d *DBDirectory) ActiveStaff(ctx context.Context, companyID uint) ([]model.User, error) {
	var users []model.User
	err := d.db.WithContext(ctx).
		Where("company_id = ? AND is_active = ?", companyID, true).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list staff of company %d: %w", companyID, err)
	}
	return users, nil
}

func (d *DBDirectory) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	err := d.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
