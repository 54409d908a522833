package fieldvalue

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
	"github.com/raids-lab/staffdesk/pkg/schema"
)

// Entry pairs a field definition with the request's value for it.
type Entry struct {
	Field model.RequestField
	Value Value
}

var slotColumns = []string{"value_text", "value_number", "value_date", "value_bool", "value_json", "updated_at"}

// SetValue parses raw for field and upserts the (request, field) row on db,
// which is usually the caller's transaction.
func SetValue(ctx context.Context, db *gorm.DB, req *model.Request, field *model.RequestField, raw string) (*model.RequestFieldValue, error) {
	if field.RequestTypeID != req.RequestTypeID {
		return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidReference,
			"field does not belong to the request's type")
	}
	v, err := Parse(field, raw)
	if err != nil {
		return nil, err
	}
	return write(ctx, db, req, field, v)
}

func write(ctx context.Context, db *gorm.DB, req *model.Request, field *model.RequestField, v Value) (*model.RequestFieldValue, error) {
	row := &model.RequestFieldValue{RequestID: req.ID, FieldID: field.ID}
	v.apply(row)
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}, {Name: "field_id"}},
		DoUpdates: clause.AssignmentColumns(slotColumns),
	}).Omit(clause.Associations).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("store value of field %s on request %d: %w", field.Key, req.ID, err)
	}
	return row, nil
}

// SetValues resolves raws by field key against the active schema of the
// request's type. Every value is parsed before anything is written, so a
// single bad value leaves all stored values untouched.
func SetValues(ctx context.Context, db *gorm.DB, req *model.Request, raws map[string]string) error {
	if len(raws) == 0 {
		return nil
	}
	fields, err := schema.FieldsFor(db.WithContext(ctx), req.RequestTypeID, true)
	if err != nil {
		return err
	}
	byKey := make(map[string]*model.RequestField, len(fields))
	for i := range fields {
		byKey[fields[i].Key] = &fields[i]
	}

	keys := make([]string, 0, len(raws))
	for key := range raws {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parsed := make([]Entry, 0, len(keys))
	for _, key := range keys {
		field, ok := byKey[key]
		if !ok {
			return domain.NewValidationError(key, domain.ReasonUnknownField,
				"no active field with this key on the request type")
		}
		v, err := Parse(field, raws[key])
		if err != nil {
			return err
		}
		parsed = append(parsed, Entry{Field: *field, Value: v})
	}

	for i := range parsed {
		if _, err := write(ctx, db, req, &parsed[i].Field, parsed[i].Value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRequired returns the labels of active required fields that have no
// non-empty value, in schema order.
func ValidateRequired(ctx context.Context, db *gorm.DB, req *model.Request) ([]string, error) {
	fields, err := schema.FieldsFor(db.WithContext(ctx), req.RequestTypeID, true)
	if err != nil {
		return nil, err
	}
	rows, err := loadRows(ctx, db, req.ID)
	if err != nil {
		return nil, err
	}

	var missing []string
	for i := range fields {
		if !fields[i].IsRequired {
			continue
		}
		row, ok := rows[fields[i].ID]
		if !ok || row.IsEmpty() || Decode(&fields[i], row).IsEmpty() {
			missing = append(missing, fields[i].Label)
		}
	}
	return missing, nil
}

// Values returns every active field of the request's type with its value
// (Empty when unset), followed by inactive fields that still hold a value.
func Values(ctx context.Context, db *gorm.DB, req *model.Request) ([]Entry, error) {
	fields, err := schema.FieldsFor(db.WithContext(ctx), req.RequestTypeID, false)
	if err != nil {
		return nil, err
	}
	rows, err := loadRows(ctx, db, req.ID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(fields))
	var retired []Entry
	for i := range fields {
		v := Decode(&fields[i], rows[fields[i].ID])
		switch {
		case fields[i].IsActive:
			entries = append(entries, Entry{Field: fields[i], Value: v})
		case !v.IsEmpty():
			retired = append(retired, Entry{Field: fields[i], Value: v})
		}
	}
	return append(entries, retired...), nil
}

func loadRows(ctx context.Context, db *gorm.DB, requestID uint) (map[uint]*model.RequestFieldValue, error) {
	var rows []model.RequestFieldValue
	if err := db.WithContext(ctx).Where("request_id = ?", requestID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load values of request %d: %w", requestID, err)
	}
	byField := make(map[uint]*model.RequestFieldValue, len(rows))
	for i := range rows {
		byField[rows[i].FieldID] = &rows[i]
	}
	return byField, nil
}
