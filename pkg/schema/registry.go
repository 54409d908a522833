// Package schema is the registry of request types and their dynamic fields.
package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// FieldsFor returns the fields of a request type ordered by sort order.
func (r *Registry) FieldsFor(ctx context.Context, requestTypeID uint, activeOnly bool) ([]model.RequestField, error) {
	return FieldsFor(r.db.WithContext(ctx), requestTypeID, activeOnly)
}

// FieldsFor is the transaction-friendly form of Registry.FieldsFor.
func FieldsFor(db *gorm.DB, requestTypeID uint, activeOnly bool) ([]model.RequestField, error) {
	q := db.Where("request_type_id = ?", requestTypeID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var fields []model.RequestField
	if err := q.Order("sort_order").Order("id").Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("list fields of request type %d: %w", requestTypeID, err)
	}
	return fields, nil
}

// ValidateDefinition checks the structural invariants of a field definition.
func ValidateDefinition(field *model.RequestField) error {
	if !keyPattern.MatchString(field.Key) {
		return domain.NewValidationError("key", domain.ReasonInvalidField,
			"key must be lower snake case and start with a letter")
	}
	if strings.TrimSpace(field.Label) == "" {
		return domain.NewValidationError("label", domain.ReasonInvalidField, "label is required")
	}
	if !field.Type.IsValid() {
		return domain.NewValidationError("type", domain.ReasonInvalidField,
			fmt.Sprintf("unknown field type %q", field.Type))
	}
	if field.Type == model.FieldTypeChoice {
		if len(field.Options) == 0 {
			return domain.NewValidationError("options", domain.ReasonInvalidField,
				"choice fields need at least one option")
		}
		seen := make(map[string]struct{}, len(field.Options))
		for _, opt := range field.Options {
			if strings.TrimSpace(opt) == "" {
				return domain.NewValidationError("options", domain.ReasonInvalidField, "empty option")
			}
			if _, dup := seen[opt]; dup {
				return domain.NewValidationError("options", domain.ReasonInvalidField,
					fmt.Sprintf("duplicate option %q", opt))
			}
			seen[opt] = struct{}{}
		}
	} else if len(field.Options) > 0 {
		return domain.NewValidationError("options", domain.ReasonInvalidField,
			"only choice fields carry options")
	}
	return nil
}

func (r *Registry) GetType(ctx context.Context, id uint) (*model.RequestType, error) {
	var rt model.RequestType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *Registry) ListTypes(ctx context.Context, activeOnly bool) ([]model.RequestType, error) {
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var types []model.RequestType
	if err := q.Order("name").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

func (r *Registry) CreateType(ctx context.Context, rt *model.RequestType) error {
	rt.Code = strings.TrimSpace(rt.Code)
	if !keyPattern.MatchString(rt.Code) {
		return domain.NewValidationError("code", domain.ReasonInvalidField,
			"code must be lower snake case and start with a letter")
	}
	if strings.TrimSpace(rt.Name) == "" {
		return domain.NewValidationError("name", domain.ReasonInvalidField, "name is required")
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.RequestType{}).Where("code = ?", rt.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.NewValidationError("code", domain.ReasonInvalidField,
			fmt.Sprintf("request type %q already exists", rt.Code))
	}
	return r.db.WithContext(ctx).Create(rt).Error
}

// CreateField validates and stores a new field on an existing request type.
func (r *Registry) CreateField(ctx context.Context, field *model.RequestField) error {
	if err := ValidateDefinition(field); err != nil {
		return err
	}
	if _, err := r.GetType(ctx, field.RequestTypeID); err != nil {
		return err
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RequestField{}).
		Where(map[string]any{"request_type_id": field.RequestTypeID, "key": field.Key}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.NewValidationError("key", domain.ReasonInvalidField,
			fmt.Sprintf("field %q already exists on this request type", field.Key))
	}
	return r.db.WithContext(ctx).Create(field).Error
}

// FieldUpdate carries the editable parts of a field. Key, type and request type
// are fixed once created.
type FieldUpdate struct {
	Label      *string
	IsRequired *bool
	IsActive   *bool
	SortOrder  *int
	Options    []string
}

// UpdateField edits a field definition. Stored values are never touched.
func (r *Registry) UpdateField(ctx context.Context, id uint, update FieldUpdate) (*model.RequestField, error) {
	var field model.RequestField
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if update.Label != nil {
		field.Label = *update.Label
	}
	if update.IsRequired != nil {
		field.IsRequired = *update.IsRequired
	}
	if update.IsActive != nil {
		field.IsActive = *update.IsActive
	}
	if update.SortOrder != nil {
		field.SortOrder = *update.SortOrder
	}
	if update.Options != nil {
		field.Options = update.Options
	}
	if err := ValidateDefinition(&field); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(&field).Error; err != nil {
		return nil, err
	}
	return &field, nil
}
