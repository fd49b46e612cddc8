package widgets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type Compatibility struct {
	Compatible bool              `json:"compatible"`
	Message    string            `json:"message"`
	Mappings   map[string]string `json:"mappings,omitempty"`
}

type AssociationInput struct {
	FieldMappings map[string]string         `json:"field_mappings"`
	Options       models.AssociationOptions `json:"options"`
	Exclusive     *bool                     `json:"exclusive"`
}

func contentSlugs(tx *gorm.DB, contentTypeID uint) ([]string, error) {
	var slugs []string
	err := tx.Model(&models.ContentTypeField{}).
		Where("content_type_id = ?", contentTypeID).
		Order("position ASC, id ASC").
		Pluck("slug", &slugs).Error
	return slugs, err
}

func compatibility(widget *models.Widget, ct *models.ContentType, decls []models.WidgetFieldDecl, slugs []string) Compatibility {
	keys := declKeys(decls)
	mappings := GenerateMappings(keys, slugs)
	if len(mappings) == 0 {
		return Compatibility{
			Message: fmt.Sprintf("widget %s has no field matching content type %s (widget fields: %s; content fields: %s)",
				widget.Slug, ct.Key, listOrNone(keys), listOrNone(slugs)),
		}
	}
	return Compatibility{
		Compatible: true,
		Message:    fmt.Sprintf("%d of %d widget fields map to content type %s", len(mappings), len(keys), ct.Key),
		Mappings:   mappings,
	}
}

func listOrNone(s []string) string {
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, ", ")
}

// CheckCompatibility compares a widget's field keys with the field slugs of
// a content type through the synonym table and exact key matches. At least
// one match makes the pair compatible.
func (c *Catalog) CheckCompatibility(ctx context.Context, widgetID, contentTypeID uint) (Compatibility, error) {
	w, err := c.GetWidget(ctx, widgetID)
	if err != nil {
		return Compatibility{}, err
	}
	decls, err := c.Schema(ctx, w)
	if err != nil {
		return Compatibility{}, err
	}
	var ct models.ContentType
	if err := c.db.WithContext(ctx).First(&ct, contentTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Compatibility{}, common.NotFound("content type", contentTypeID)
		}
		return Compatibility{}, err
	}
	slugs, err := contentSlugs(c.db.WithContext(ctx), contentTypeID)
	if err != nil {
		return Compatibility{}, err
	}
	return compatibility(w, &ct, decls, slugs), nil
}

// Associate binds a widget to a content type. The pair must pass the
// compatibility check. Without explicit mappings the generated ones are
// stored. The new association is active and, unless Exclusive is false,
// deactivates the other associations of the same pair.
func (c *Catalog) Associate(ctx context.Context, widgetID, contentTypeID uint, in AssociationInput) (*models.WidgetContentTypeAssociation, error) {
	w, err := c.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, err
	}
	decls, err := c.Schema(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := validateOptions(in.Options); err != nil {
		return nil, err
	}

	var assoc *models.WidgetContentTypeAssociation
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ct models.ContentType
		if err := tx.First(&ct, contentTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content type", contentTypeID)
			}
			return err
		}
		slugs, err := contentSlugs(tx, contentTypeID)
		if err != nil {
			return err
		}
		compat := compatibility(w, &ct, decls, slugs)
		if !compat.Compatible {
			return &common.IncompatibleBindingError{Message: compat.Message}
		}
		mappings := in.FieldMappings
		if len(mappings) == 0 {
			mappings = compat.Mappings
		} else if err := validateMappings(mappings, declKeys(decls), slugs); err != nil {
			return err
		}

		assoc = &models.WidgetContentTypeAssociation{
			WidgetID:      widgetID,
			ContentTypeID: contentTypeID,
			FieldMappings: datatypes.NewJSONType(mappings),
			Options:       datatypes.NewJSONType(in.Options),
			IsActive:      true,
		}
		if err := tx.Create(assoc).Error; err != nil {
			return err
		}
		if in.Exclusive == nil || *in.Exclusive {
			return deactivateSiblings(tx, assoc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Uint("widget_id", widgetID).Uint("content_type_id", contentTypeID).Msg("widget associated")
	return assoc, nil
}

func validateMappings(mappings map[string]string, widgetKeys, slugs []string) error {
	keys := make(map[string]bool, len(widgetKeys))
	for _, k := range widgetKeys {
		keys[k] = true
	}
	fields := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		fields[s] = true
	}
	for slug, key := range mappings {
		if !fields[slug] {
			return common.Invalid("field_mappings", "%s is not a field of the content type", slug)
		}
		if !keys[key] {
			return common.Invalid("field_mappings", "%s is not a field of the widget", key)
		}
	}
	return nil
}

func validateOptions(o models.AssociationOptions) error {
	if o.Limit < 0 {
		return common.Invalid("options.limit", "must not be negative")
	}
	switch strings.ToLower(o.SortDirection) {
	case "", "asc", "desc":
	default:
		return common.Invalid("options.sort_direction", "must be asc or desc")
	}
	return nil
}

func deactivateSiblings(tx *gorm.DB, assoc *models.WidgetContentTypeAssociation) error {
	return tx.Model(&models.WidgetContentTypeAssociation{}).
		Where("widget_id = ? AND content_type_id = ? AND id <> ?", assoc.WidgetID, assoc.ContentTypeID, assoc.ID).
		Update("is_active", false).Error
}

// SetActiveAssociation activates an association. When exclusive, the other
// associations of the same widget and content type are deactivated in the
// same transaction.
func (c *Catalog) SetActiveAssociation(ctx context.Context, id uint, exclusive bool) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assoc models.WidgetContentTypeAssociation
		if err := tx.First(&assoc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("association", id)
			}
			return err
		}
		if exclusive {
			if err := deactivateSiblings(tx, &assoc); err != nil {
				return err
			}
		}
		return tx.Model(&assoc).Update("is_active", true).Error
	})
}

func (c *Catalog) DeactivateAssociation(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Model(&models.WidgetContentTypeAssociation{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("association", id)
	}
	return nil
}

// ActiveAssociation returns the active binding of a widget to a content
// type, the most recent one if several are active.
func (c *Catalog) ActiveAssociation(ctx context.Context, widgetID, contentTypeID uint) (*models.WidgetContentTypeAssociation, error) {
	var assoc models.WidgetContentTypeAssociation
	err := c.db.WithContext(ctx).
		Where("widget_id = ? AND content_type_id = ? AND is_active = ?", widgetID, contentTypeID, true).
		Order("id DESC").
		First(&assoc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("active association", fmt.Sprintf("%d/%d", widgetID, contentTypeID))
	}
	return &assoc, err
}

func (c *Catalog) Associations(ctx context.Context, widgetID uint) ([]models.WidgetContentTypeAssociation, error) {
	var list []models.WidgetContentTypeAssociation
	err := c.db.WithContext(ctx).Where("widget_id = ?", widgetID).Order("id ASC").Find(&list).Error
	return list, err
}

func (c *Catalog) DeleteAssociation(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Delete(&models.WidgetContentTypeAssociation{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("association", id)
	}
	return nil
}

type CompatibleWidget struct {
	Widget        models.Widget `json:"widget"`
	Compatibility Compatibility `json:"compatibility"`
}

// CompatibleWidgets lists the widgets of a theme plus the global widgets
// that can render an item of the given content type.
func (c *Catalog) CompatibleWidgets(ctx context.Context, themeID *uint, contentTypeID uint) ([]CompatibleWidget, error) {
	var ct models.ContentType
	if err := c.db.WithContext(ctx).First(&ct, contentTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("content type", contentTypeID)
		}
		return nil, err
	}
	slugs, err := contentSlugs(c.db.WithContext(ctx), contentTypeID)
	if err != nil {
		return nil, err
	}
	widgets, err := c.ListWidgets(ctx, themeID)
	if err != nil {
		return nil, err
	}
	var out []CompatibleWidget
	for i := range widgets {
		decls, err := c.Schema(ctx, &widgets[i])
		if err != nil {
			return nil, err
		}
		if compat := compatibility(&widgets[i], &ct, decls, slugs); compat.Compatible {
			out = append(out, CompatibleWidget{Widget: widgets[i], Compatibility: compat})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Compatibility.Mappings) > len(out[j].Compatibility.Mappings)
	})
	return out, nil
}
