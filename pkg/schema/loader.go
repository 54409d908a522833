package schema

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/raids-lab/staffdesk/dao/model"
	"github.com/raids-lab/staffdesk/pkg/logutils"
)

// Definitions is the YAML document accepted by LoadDefinitions:
//
//	types:
//	  - code: overtime
//	    name: Overtime
//	    fields:
//	      - key: hours
//	        label: Hours
//	        type: number
//	        required: true
type Definitions struct {
	Types []TypeDefinition `yaml:"types"`
}

type TypeDefinition struct {
	Code     string            `yaml:"code"`
	Name     string            `yaml:"name"`
	Inactive bool              `yaml:"inactive"`
	Fields   []FieldDefinition `yaml:"fields"`
}

type FieldDefinition struct {
	Key      string          `yaml:"key"`
	Label    string          `yaml:"label"`
	Type     model.FieldType `yaml:"type"`
	Required bool            `yaml:"required"`
	Inactive bool            `yaml:"inactive"`
	Options  []string        `yaml:"options"`
}

// LoadDefinitions upserts request types by code and their fields by key.
// Fields missing from the document are left untouched. The whole document is
// applied in one transaction.
func (r *Registry) LoadDefinitions(ctx context.Context, in io.Reader) error {
	var defs Definitions
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		return fmt.Errorf("decode schema definitions: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range defs.Types {
			if err := upsertType(tx, &defs.Types[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertType(tx *gorm.DB, def *TypeDefinition) error {
	rt := model.RequestType{}
	err := tx.Where("code = ?", def.Code).First(&rt).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rt = model.RequestType{Code: def.Code, Name: def.Name, IsActive: !def.Inactive}
		if !keyPattern.MatchString(rt.Code) {
			return fmt.Errorf("request type %q: invalid code", def.Code)
		}
		if err := tx.Create(&rt).Error; err != nil {
			return err
		}
		logutils.Component("schema").Infof("created request type %s", rt.Code)
	case err != nil:
		return err
	default:
		rt.Name = def.Name
		rt.IsActive = !def.Inactive
		if err := tx.Save(&rt).Error; err != nil {
			return err
		}
	}

	for i, fd := range def.Fields {
		field := model.RequestField{}
		err := tx.Where(map[string]any{"request_type_id": rt.ID, "key": fd.Key}).First(&field).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		field.RequestTypeID = rt.ID
		field.Key = fd.Key
		field.Label = fd.Label
		field.Type = fd.Type
		field.IsRequired = fd.Required
		field.IsActive = !fd.Inactive
		field.SortOrder = i + 1
		field.Options = fd.Options
		if err := ValidateDefinition(&field); err != nil {
			return fmt.Errorf("request type %q field %q: %w", def.Code, fd.Key, err)
		}
		if err := tx.Save(&field).Error; err != nil {
			return err
		}
	}
	return nil
}
