// Package fieldvalue stores typed values of dynamic request fields.
package fieldvalue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/domain"
)

// DateLayout is the only accepted calendar date format.
const DateLayout = "2006-01-02"

// Value is one of Text, Number, Date, Bool, Choice, JSON or Empty.
// Values are built by Parse or Decode only.
type Value interface {
	Kind() model.FieldType
	// Interface returns the JSON friendly form of the value.
	Interface() any
	// IsEmpty reports whether the value clears the slot.
	IsEmpty() bool
	apply(row *model.RequestFieldValue)
}

type (
	Text   string
	Choice string
	Bool   bool
	Number struct{ decimal.Decimal }
	Date   struct{ time.Time }
	JSON   json.RawMessage
	// Empty is the cleared value of a field of the given kind.
	Empty struct{ kind model.FieldType }
)

func (Text) Kind() model.FieldType   { return model.FieldTypeText }
func (Choice) Kind() model.FieldType { return model.FieldTypeChoice }
func (Bool) Kind() model.FieldType   { return model.FieldTypeBool }
func (Number) Kind() model.FieldType { return model.FieldTypeNumber }
func (Date) Kind() model.FieldType   { return model.FieldTypeDate }
func (JSON) Kind() model.FieldType   { return model.FieldTypeJSON }
func (e Empty) Kind() model.FieldType {
	return e.kind
}

func (v Text) Interface() any   { return string(v) }
func (v Choice) Interface() any { return string(v) }
func (v Bool) Interface() any   { return bool(v) }
func (v Number) Interface() any { return json.Number(v.String()) }
func (v Date) Interface() any   { return v.Format(DateLayout) }
func (v JSON) Interface() any   { return json.RawMessage(v) }
func (Empty) Interface() any    { return nil }

func (Text) IsEmpty() bool   { return false }
func (Choice) IsEmpty() bool { return false }
func (Bool) IsEmpty() bool   { return false }
func (Number) IsEmpty() bool { return false }
func (Date) IsEmpty() bool   { return false }
func (JSON) IsEmpty() bool   { return false }
func (Empty) IsEmpty() bool  { return true }

func clearSlots(row *model.RequestFieldValue) {
	row.ValueText = nil
	row.ValueNumber = decimal.NullDecimal{}
	row.ValueDate = nil
	row.ValueBool = nil
	row.ValueJSON = nil
}

func (v Text) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	s := string(v)
	row.ValueText = &s
}

func (v Choice) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	s := string(v)
	row.ValueText = &s
}

func (v Bool) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	b := bool(v)
	row.ValueBool = &b
}

func (v Number) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	row.ValueNumber = decimal.NewNullDecimal(v.Decimal)
}

func (v Date) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	d := v.Time
	row.ValueDate = &d
}

func (v JSON) apply(row *model.RequestFieldValue) {
	clearSlots(row)
	row.ValueJSON = datatypes.JSON(v)
}

func (Empty) apply(row *model.RequestFieldValue) {
	clearSlots(row)
}

// Parse converts raw user input into the value variant selected by the
// field's type tag. Blank input yields Empty.
func Parse(field *model.RequestField, raw string) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Empty{kind: field.Type}, nil
	}

	switch field.Type {
	case model.FieldTypeText:
		return Text(raw), nil
	case model.FieldTypeChoice:
		if !field.HasOption(trimmed) {
			return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidChoice,
				fmt.Sprintf("%q is not one of %s", trimmed, strings.Join(field.Options, ", ")))
		}
		return Choice(trimmed), nil
	case model.FieldTypeNumber:
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidNumber,
				fmt.Sprintf("%q is not a number", trimmed))
		}
		return Number{d}, nil
	case model.FieldTypeDate:
		t, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidDate,
				fmt.Sprintf("%q is not a date in YYYY-MM-DD form", trimmed))
		}
		return Date{t}, nil
	case model.FieldTypeBool:
		b, ok := parseBool(trimmed)
		if !ok {
			return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidBool,
				fmt.Sprintf("%q is neither true nor false", trimmed))
		}
		return Bool(b), nil
	case model.FieldTypeJSON:
		if !json.Valid([]byte(trimmed)) {
			return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidJSON, "value is not valid JSON")
		}
		return JSON(trimmed), nil
	}
	return nil, domain.NewValidationError(field.Key, domain.ReasonInvalidField,
		fmt.Sprintf("unknown field type %q", field.Type))
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y", "on":
		return true, true
	case "false", "f", "0", "no", "n", "off":
		return false, true
	}
	return false, false
}

// Decode reads the slot selected by the field's type tag back into a Value.
func Decode(field *model.RequestField, row *model.RequestFieldValue) Value {
	if row == nil {
		return Empty{kind: field.Type}
	}
	switch field.Type {
	case model.FieldTypeText:
		if row.ValueText != nil && *row.ValueText != "" {
			return Text(*row.ValueText)
		}
	case model.FieldTypeChoice:
		if row.ValueText != nil && *row.ValueText != "" {
			return Choice(*row.ValueText)
		}
	case model.FieldTypeNumber:
		if row.ValueNumber.Valid {
			return Number{row.ValueNumber.Decimal}
		}
	case model.FieldTypeDate:
		if row.ValueDate != nil {
			return Date{*row.ValueDate}
		}
	case model.FieldTypeBool:
		if row.ValueBool != nil {
			return Bool(*row.ValueBool)
		}
	case model.FieldTypeJSON:
		if len(row.ValueJSON) > 0 {
			return JSON(row.ValueJSON)
		}
	}
	return Empty{kind: field.Type}
}
