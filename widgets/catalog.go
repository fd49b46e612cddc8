// Package widgets is the widget catalog: widget definitions, their field
// schemas, legacy widget types, display settings and content type bindings.
package widgets

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type Catalog struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewCatalog(db *gorm.DB, log zerolog.Logger) *Catalog {
	return &Catalog{db: db, log: log.With().Str("module", "widgets").Logger()}
}

type FieldDeclInput struct {
	Key          string           `json:"key" validate:"required,fieldkey,max=64"`
	Label        string           `json:"label" validate:"max=120"`
	FieldType    models.FieldType `json:"field_type" validate:"required"`
	DefaultValue any              `json:"default_value"`
	Required     bool             `json:"required"`
}

type WidgetInput struct {
	ThemeID           *uint            `json:"theme_id"`
	Slug              string           `json:"slug" validate:"required,slug,max=64"`
	Name              string           `json:"name" validate:"required,max=120"`
	Description       string           `json:"description"`
	WidgetTypeID      *uint            `json:"widget_type_id"`
	ViewPath          string           `json:"view_path" validate:"max=255"`
	DisplaySettingsID *uint            `json:"display_settings_id"`
	ContentQueryID    *uint            `json:"content_query_id"`
	Schema            []FieldDeclInput `json:"schema" validate:"dive"`
	Assets            models.AssetList `json:"assets"`
}

func (in WidgetInput) decls() ([]models.WidgetFieldDecl, error) {
	seen := make(map[string]bool, len(in.Schema))
	decls := make([]models.WidgetFieldDecl, 0, len(in.Schema))
	for _, f := range in.Schema {
		if !f.FieldType.Valid() {
			return nil, common.Invalid("schema", "unknown field type %q for %s", f.FieldType, f.Key)
		}
		if seen[f.Key] {
			return nil, common.Invalid("schema", "key %s declared twice", f.Key)
		}
		seen[f.Key] = true
		label := f.Label
		if label == "" {
			label = f.Key
		}
		decls = append(decls, models.WidgetFieldDecl{
			Key:          f.Key,
			Label:        label,
			FieldType:    f.FieldType,
			DefaultValue: f.DefaultValue,
			Required:     f.Required,
		})
	}
	return decls, nil
}

func (c *Catalog) CreateWidget(ctx context.Context, in WidgetInput) (*models.Widget, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	decls, err := in.decls()
	if err != nil {
		return nil, err
	}
	w := &models.Widget{
		ThemeID:           in.ThemeID,
		Slug:              in.Slug,
		Name:              in.Name,
		Description:       in.Description,
		WidgetTypeID:      in.WidgetTypeID,
		ViewPath:          in.ViewPath,
		DisplaySettingsID: in.DisplaySettingsID,
		ContentQueryID:    in.ContentQueryID,
		Schema:            datatypes.NewJSONType(decls),
		Assets:            datatypes.NewJSONType(in.Assets),
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkWidgetRefs(tx, in); err != nil {
			return err
		}
		if err := ensureWidgetSlugFree(tx, in.ThemeID, in.Slug, 0); err != nil {
			return err
		}
		return tx.Create(w).Error
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Uint("id", w.ID).Str("slug", w.Slug).Msg("widget created")
	return w, nil
}

func (c *Catalog) UpdateWidget(ctx context.Context, id uint, in WidgetInput) (*models.Widget, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	decls, err := in.decls()
	if err != nil {
		return nil, err
	}
	var w models.Widget
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&w, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget", id)
			}
			return err
		}
		if err := checkWidgetRefs(tx, in); err != nil {
			return err
		}
		if err := ensureWidgetSlugFree(tx, in.ThemeID, in.Slug, id); err != nil {
			return err
		}
		w.ThemeID = in.ThemeID
		w.Slug = in.Slug
		w.Name = in.Name
		w.Description = in.Description
		w.WidgetTypeID = in.WidgetTypeID
		w.ViewPath = in.ViewPath
		w.DisplaySettingsID = in.DisplaySettingsID
		w.ContentQueryID = in.ContentQueryID
		w.Schema = datatypes.NewJSONType(decls)
		w.Assets = datatypes.NewJSONType(in.Assets)
		return tx.Save(&w).Error
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *Catalog) GetWidget(ctx context.Context, id uint) (*models.Widget, error) {
	var w models.Widget
	err := c.db.WithContext(ctx).First(&w, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("widget", id)
	}
	return &w, err
}

// GetWidgetBySlug looks a widget up in a theme, falling back to the global
// widget with the same slug.
func (c *Catalog) GetWidgetBySlug(ctx context.Context, themeID *uint, slug string) (*models.Widget, error) {
	var w models.Widget
	db := c.db.WithContext(ctx)
	if themeID != nil {
		err := db.Where("theme_id = ? AND slug = ?", *themeID, slug).First(&w).Error
		if err == nil {
			return &w, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	err := db.Where("theme_id IS NULL AND slug = ?", slug).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("widget", slug)
	}
	return &w, err
}

// ListWidgets returns the widgets of a theme followed by the global ones.
// A nil themeID lists global widgets only.
func (c *Catalog) ListWidgets(ctx context.Context, themeID *uint) ([]models.Widget, error) {
	var widgets []models.Widget
	q := c.db.WithContext(ctx)
	if themeID != nil {
		q = q.Where("theme_id = ? OR theme_id IS NULL", *themeID).Order("theme_id IS NULL ASC")
	} else {
		q = q.Where("theme_id IS NULL")
	}
	err := q.Order("name ASC, id ASC").Find(&widgets).Error
	return widgets, err
}

// DeleteWidget removes a widget with its legacy field values and
// associations. Widgets placed on any page are refused.
func (c *Catalog) DeleteWidget(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.Widget
		if err := tx.First(&w, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget", id)
			}
			return err
		}
		var placed int64
		if err := tx.Model(&models.PageSectionWidget{}).Where("widget_id = ?", id).Count(&placed).Error; err != nil {
			return err
		}
		if placed > 0 {
			return &common.InUseError{Resource: "widget " + w.Slug, Blocker: "page placements", Count: placed}
		}
		if err := tx.Where("widget_id = ?", id).Delete(&models.WidgetFieldValue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("widget_id = ?", id).Delete(&models.WidgetContentTypeAssociation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&w).Error
	})
}

func checkWidgetRefs(tx *gorm.DB, in WidgetInput) error {
	refs := []struct {
		id    *uint
		model any
		name  string
	}{
		{in.ThemeID, &models.Theme{}, "theme"},
		{in.WidgetTypeID, &models.WidgetType{}, "widget type"},
		{in.DisplaySettingsID, &models.WidgetDisplaySetting{}, "display setting"},
		{in.ContentQueryID, &models.WidgetContentQuery{}, "content query"},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		var n int64
		if err := tx.Model(ref.model).Where("id = ?", *ref.id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return common.NotFound(ref.name, *ref.id)
		}
	}
	return nil
}

// Widget slugs are unique per theme; global widgets form their own scope.
func ensureWidgetSlugFree(tx *gorm.DB, themeID *uint, slug string, exceptID uint) error {
	q := tx.Model(&models.Widget{}).Where("slug = ?", slug)
	if themeID != nil {
		q = q.Where("theme_id = ?", *themeID)
	} else {
		q = q.Where("theme_id IS NULL")
	}
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &common.ConflictError{Resource: "widget", Field: "slug", Value: slug}
	}
	return nil
}
