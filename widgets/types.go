package widgets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tessera/common"
	"tessera/content"
	"tessera/models"
)

type WidgetTypeInput struct {
	Slug string `json:"slug" validate:"required,slug,max=64"`
	Name string `json:"name" validate:"required,max=120"`
}

type TypeFieldInput struct {
	Key          string           `json:"key" validate:"required,fieldkey,max=64"`
	Label        string           `json:"label" validate:"max=120"`
	FieldType    models.FieldType `json:"field_type" validate:"required"`
	DefaultValue string           `json:"default_value"`
	IsRequired   bool             `json:"is_required"`
	Position     *int             `json:"position"`
}

func (c *Catalog) CreateWidgetType(ctx context.Context, in WidgetTypeInput) (*models.WidgetType, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	wt := &models.WidgetType{Slug: in.Slug, Name: in.Name}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.WidgetType{}).Where("slug = ?", in.Slug).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &common.ConflictError{Resource: "widget type", Field: "slug", Value: in.Slug}
		}
		return tx.Create(wt).Error
	})
	if err != nil {
		return nil, err
	}
	return wt, nil
}

func (c *Catalog) GetWidgetType(ctx context.Context, id uint) (*models.WidgetType, error) {
	var wt models.WidgetType
	err := c.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		First(&wt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("widget type", id)
	}
	return &wt, err
}

func (c *Catalog) ListWidgetTypes(ctx context.Context) ([]models.WidgetType, error) {
	var types []models.WidgetType
	err := c.db.WithContext(ctx).Order("name ASC").Find(&types).Error
	return types, err
}

func (c *Catalog) DeleteWidgetType(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wt models.WidgetType
		if err := tx.First(&wt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget type", id)
			}
			return err
		}
		var used int64
		if err := tx.Model(&models.Widget{}).Where("widget_type_id = ?", id).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return &common.InUseError{Resource: "widget type " + wt.Slug, Blocker: "widgets", Count: used}
		}
		if err := tx.Where("widget_type_id = ?", id).Delete(&models.WidgetTypeField{}).Error; err != nil {
			return err
		}
		return tx.Delete(&wt).Error
	})
}

// DefineTypeField adds a field to a widget type, appended unless a position
// is given. Keys are unique within the type.
func (c *Catalog) DefineTypeField(ctx context.Context, widgetTypeID uint, in TypeFieldInput) (*models.WidgetTypeField, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !in.FieldType.Valid() {
		return nil, common.Invalid("field_type", "unknown field type %q", in.FieldType)
	}
	label := in.Label
	if label == "" {
		label = in.Key
	}
	f := &models.WidgetTypeField{
		WidgetTypeID: widgetTypeID,
		Key:          in.Key,
		Label:        label,
		FieldType:    in.FieldType,
		DefaultValue: in.DefaultValue,
		IsRequired:   in.IsRequired,
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.WidgetType{}).Where("id = ?", widgetTypeID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return common.NotFound("widget type", widgetTypeID)
		}
		if err := tx.Model(&models.WidgetTypeField{}).
			Where("widget_type_id = ? AND `key` = ?", widgetTypeID, in.Key).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &common.ConflictError{Resource: "widget type field", Field: "key", Value: in.Key}
		}
		if in.Position != nil {
			f.Position = *in.Position
		} else {
			next, err := common.NextPosition(tx, &models.WidgetTypeField{}, "position", "widget_type_id = ?", widgetTypeID)
			if err != nil {
				return err
			}
			f.Position = next
		}
		return tx.Create(f).Error
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Catalog) DeleteTypeField(ctx context.Context, fieldID uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.WidgetTypeField{}, fieldID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NotFound("widget type field", fieldID)
		}
		return tx.Where("widget_type_field_id = ?", fieldID).Delete(&models.WidgetFieldValue{}).Error
	})
}

// SetFieldValues stores values for the fields of a typed widget, keyed by
// field key. Unknown keys are rejected.
func (c *Catalog) SetFieldValues(ctx context.Context, widgetID uint, values map[string]any) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.Widget
		if err := tx.First(&w, widgetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget", widgetID)
			}
			return err
		}
		if w.WidgetTypeID == nil {
			return common.Invalid("widget_type_id", "widget %s has no widget type", w.Slug)
		}
		var fields []models.WidgetTypeField
		if err := tx.Where("widget_type_id = ?", *w.WidgetTypeID).Find(&fields).Error; err != nil {
			return err
		}
		byKey := make(map[string]models.WidgetTypeField, len(fields))
		for _, f := range fields {
			byKey[f.Key] = f
		}
		for key, raw := range values {
			f, ok := byKey[key]
			if !ok {
				return common.Invalid(key, "not a field of this widget type")
			}
			row := models.WidgetFieldValue{WidgetID: widgetID, WidgetTypeFieldID: f.ID, Value: encodeSetting(f.FieldType, raw)}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "widget_id"}, {Name: "widget_type_field_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FieldValues returns the decoded legacy field values of a widget, keyed by
// field key. Untyped widgets have none.
func (c *Catalog) FieldValues(ctx context.Context, w *models.Widget) (map[string]any, error) {
	out := map[string]any{}
	if w.WidgetTypeID == nil {
		return out, nil
	}
	var rows []struct {
		Key       string
		FieldType models.FieldType
		Value     string
	}
	err := c.db.WithContext(ctx).
		Table("widget_field_values").
		Select("widget_type_fields.`key`, widget_type_fields.field_type, widget_field_values.value").
		Joins("JOIN widget_type_fields ON widget_type_fields.id = widget_field_values.widget_type_field_id").
		Where("widget_field_values.widget_id = ?", w.ID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Key] = content.Decode(r.FieldType, r.Value).Interface()
	}
	return out, nil
}

func encodeSetting(ft models.FieldType, raw any) string {
	if ft == models.FieldBoolean {
		if content.Truthy(raw) {
			return "1"
		}
		return "0"
	}
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64, int, int64, bool:
		return fmt.Sprint(v)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(b)
}
