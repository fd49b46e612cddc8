// Package schema manages runtime-defined content types and their typed
// field catalogs.
package schema

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type Registry struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewRegistry(db *gorm.DB, log zerolog.Logger) *Registry {
	return &Registry{db: db, log: log.With().Str("module", "schema").Logger()}
}

type ContentTypeInput struct {
	Key         string `json:"key" validate:"required,slug,max=64"`
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
}

type OptionInput struct {
	Value string `json:"value" validate:"required"`
	Label string `json:"label"`
}

type FieldInput struct {
	Slug            string           `json:"slug" validate:"required,fieldkey,max=64"`
	Name            string           `json:"name" validate:"required,max=120"`
	FieldType       models.FieldType `json:"field_type" validate:"required"`
	IsRequired      bool             `json:"is_required"`
	DefaultValue    string           `json:"default_value"`
	ValidationRules string           `json:"validation_rules"`
	Position        *int             `json:"position"`
	Settings        map[string]any   `json:"settings"`
	Options         []OptionInput    `json:"options" validate:"dive"`
}

// FieldTypesWithOptions is the closed set of field types that own a
// FieldOption list.
func FieldTypesWithOptions() []models.FieldType {
	return []models.FieldType{models.FieldSelect, models.FieldMultiselect, models.FieldCheckbox, models.FieldRadio}
}

func (r *Registry) CreateContentType(ctx context.Context, in ContentTypeInput) (*models.ContentType, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	ct := &models.ContentType{
		Key:         in.Key,
		Name:        in.Name,
		Description: in.Description,
		IsSystem:    in.IsSystem,
		IsActive:    true,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.ContentType{}).Where("`key` = ?", in.Key).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &common.ConflictError{Resource: "content type", Field: "key", Value: in.Key}
		}
		return tx.Create(ct).Error
	})
	if err != nil {
		return nil, err
	}
	r.log.Debug().Uint("id", ct.ID).Str("key", ct.Key).Msg("content type created")
	return ct, nil
}

// GetContentType loads a content type with its fields ordered by position
// and each field's options ordered by position.
func (r *Registry) GetContentType(ctx context.Context, id uint) (*models.ContentType, error) {
	var ct models.ContentType
	err := r.db.WithContext(ctx).
		Preload("Fields", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Fields.Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		First(&ct, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("content type", id)
	}
	return &ct, err
}

func (r *Registry) GetContentTypeByKey(ctx context.Context, key string) (*models.ContentType, error) {
	var ct models.ContentType
	err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&ct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("content type", key)
	}
	if err != nil {
		return nil, err
	}
	return r.GetContentType(ctx, ct.ID)
}

func (r *Registry) ListContentTypes(ctx context.Context) ([]models.ContentType, error) {
	var types []models.ContentType
	err := r.db.WithContext(ctx).Order("name ASC").Find(&types).Error
	return types, err
}

func (r *Registry) UpdateContentType(ctx context.Context, id uint, name, description string, active bool) (*models.ContentType, error) {
	if name == "" {
		return nil, common.Invalid("name", "is required")
	}
	ct, err := r.GetContentType(ctx, id)
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).Model(ct).Updates(map[string]any{
		"name":        name,
		"description": description,
		"is_active":   active,
	}).Error
	return ct, err
}

// DeleteContentType removes a content type with its fields, options and
// widget associations. System types and types that own items are refused.
func (r *Registry) DeleteContentType(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ct models.ContentType
		if err := tx.First(&ct, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content type", id)
			}
			return err
		}
		if ct.IsSystem {
			return common.Invalid("is_system", "system content type %q cannot be deleted", ct.Key)
		}
		var items int64
		if err := tx.Model(&models.ContentItem{}).Where("content_type_id = ?", id).Count(&items).Error; err != nil {
			return err
		}
		if items > 0 {
			return &common.InUseError{Resource: "content type " + ct.Key, Blocker: "content items", Count: items}
		}

		fieldIDs := tx.Model(&models.ContentTypeField{}).Select("id").Where("content_type_id = ?", id)
		if err := tx.Where("field_id IN (?)", fieldIDs).Delete(&models.FieldOption{}).Error; err != nil {
			return err
		}
		if err := tx.Where("content_type_id = ?", id).Delete(&models.ContentTypeField{}).Error; err != nil {
			return err
		}
		if err := tx.Where("content_type_id = ?", id).Delete(&models.WidgetContentTypeAssociation{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ct).Error; err != nil {
			return err
		}
		r.log.Debug().Uint("id", id).Msg("content type deleted")
		return nil
	})
}
