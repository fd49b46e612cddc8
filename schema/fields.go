package schema

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

// DefineField adds a field to a content type. Slugs are unique within the
// owning type; a collision is rejected with a ConflictError. Without an
// explicit position the field is appended.
func (r *Registry) DefineField(ctx context.Context, contentTypeID uint, in FieldInput) (*models.ContentTypeField, error) {
	if err := validateField(in); err != nil {
		return nil, err
	}

	field := &models.ContentTypeField{
		ContentTypeID:   contentTypeID,
		Slug:            in.Slug,
		Name:            in.Name,
		FieldType:       in.FieldType,
		IsRequired:      in.IsRequired,
		DefaultValue:    in.DefaultValue,
		ValidationRules: in.ValidationRules,
		Settings:        in.Settings,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ct models.ContentType
		if err := tx.First(&ct, contentTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content type", contentTypeID)
			}
			return err
		}
		if err := ensureFieldSlugFree(tx, contentTypeID, in.Slug, 0); err != nil {
			return err
		}

		if in.Position != nil {
			field.Position = *in.Position
		} else {
			next, err := common.NextPosition(tx, &models.ContentTypeField{}, "position", "content_type_id = ?", contentTypeID)
			if err != nil {
				return err
			}
			field.Position = next
		}

		if err := tx.Create(field).Error; err != nil {
			return err
		}
		return replaceOptions(tx, field, in.Options)
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug().Uint("content_type_id", contentTypeID).Str("slug", field.Slug).Msg("field defined")
	return field, nil
}

// UpdateField rewrites a field definition. Changing the slug is subject to
// the same per-type uniqueness rule as DefineField.
func (r *Registry) UpdateField(ctx context.Context, fieldID uint, in FieldInput) (*models.ContentTypeField, error) {
	if err := validateField(in); err != nil {
		return nil, err
	}
	var field models.ContentTypeField
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&field, fieldID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("field", fieldID)
			}
			return err
		}
		if err := ensureFieldSlugFree(tx, field.ContentTypeID, in.Slug, field.ID); err != nil {
			return err
		}
		field.Slug = in.Slug
		field.Name = in.Name
		field.FieldType = in.FieldType
		field.IsRequired = in.IsRequired
		field.DefaultValue = in.DefaultValue
		field.ValidationRules = in.ValidationRules
		field.Settings = in.Settings
		if in.Position != nil {
			field.Position = *in.Position
		}
		if err := tx.Save(&field).Error; err != nil {
			return err
		}
		return replaceOptions(tx, &field, in.Options)
	})
	if err != nil {
		return nil, err
	}
	return &field, nil
}

// SetFieldOptions replaces the option list of a field. Field types without
// options end up with an empty list.
func (r *Registry) SetFieldOptions(ctx context.Context, fieldID uint, opts []OptionInput) error {
	for _, o := range opts {
		if err := common.ValidateStruct(o); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.ContentTypeField
		if err := tx.First(&field, fieldID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("field", fieldID)
			}
			return err
		}
		return replaceOptions(tx, &field, opts)
	})
}

// DeleteField removes a field and its options. A field with stored values or
// referenced by a content query filter is refused.
func (r *Registry) DeleteField(ctx context.Context, fieldID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.ContentTypeField
		if err := tx.First(&field, fieldID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("field", fieldID)
			}
			return err
		}

		var values int64
		if err := tx.Model(&models.ContentFieldValue{}).Where("field_id = ?", fieldID).Count(&values).Error; err != nil {
			return err
		}
		if values > 0 {
			return &common.InUseError{Resource: "field " + field.Slug, Blocker: "content values", Count: values}
		}
		var filters int64
		if err := tx.Model(&models.WidgetContentQueryFilter{}).Where("field_id = ?", fieldID).Count(&filters).Error; err != nil {
			return err
		}
		if filters > 0 {
			return &common.InUseError{Resource: "field " + field.Slug, Blocker: "content query filters", Count: filters}
		}

		if err := tx.Where("field_id = ?", fieldID).Delete(&models.FieldOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&field).Error
	})
}

// Fields returns the fields of a content type ordered by position, ties
// broken by insertion order.
func (r *Registry) Fields(ctx context.Context, contentTypeID uint) ([]models.ContentTypeField, error) {
	var fields []models.ContentTypeField
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Where("content_type_id = ?", contentTypeID).
		Order("position ASC, id ASC").
		Find(&fields).Error
	return fields, err
}

// ReorderFields rewrites field positions densely (0..n-1) following ids.
// ids must name every field of the type exactly once.
func (r *Registry) ReorderFields(ctx context.Context, contentTypeID uint, ids []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.ContentTypeField{}).
			Where("content_type_id = ?", contentTypeID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if err := common.SamePermutation("field_ids", existing, ids); err != nil {
			return err
		}
		for pos, id := range ids {
			if err := tx.Model(&models.ContentTypeField{}).Where("id = ?", id).
				Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func validateField(in FieldInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	if !in.FieldType.Valid() {
		return common.Invalid("field_type", "unknown field type %q", in.FieldType)
	}
	return nil
}

func ensureFieldSlugFree(tx *gorm.DB, contentTypeID uint, slug string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.ContentTypeField{}).Where("content_type_id = ? AND slug = ?", contentTypeID, slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &common.ConflictError{Resource: "field", Field: "slug", Value: slug}
	}
	return nil
}

// replaceOptions rewrites the options of a field. A field whose type has no
// options keeps none, so changing a select into a text field drops them.
func replaceOptions(tx *gorm.DB, field *models.ContentTypeField, opts []OptionInput) error {
	if err := tx.Where("field_id = ?", field.ID).Delete(&models.FieldOption{}).Error; err != nil {
		return err
	}
	if !field.FieldType.HasOptions() {
		return nil
	}
	for i, o := range opts {
		label := o.Label
		if label == "" {
			label = o.Value
		}
		opt := models.FieldOption{FieldID: field.ID, Value: o.Value, Label: label, Position: i}
		if err := tx.Create(&opt).Error; err != nil {
			return err
		}
	}
	return nil
}
