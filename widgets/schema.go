package widgets

import (
	"context"
	"sort"
	"strings"

	"tessera/common"
	"tessera/content"
	"tessera/models"
)

// Schema returns the field declarations of a widget: its widget type's
// fields when it has one, its inline schema otherwise.
func (c *Catalog) Schema(ctx context.Context, w *models.Widget) ([]models.WidgetFieldDecl, error) {
	if w.WidgetTypeID == nil {
		return w.Schema.Data(), nil
	}
	var fields []models.WidgetTypeField
	err := c.db.WithContext(ctx).
		Where("widget_type_id = ?", *w.WidgetTypeID).
		Order("position ASC, id ASC").
		Find(&fields).Error
	if err != nil {
		return nil, err
	}
	decls := make([]models.WidgetFieldDecl, len(fields))
	for i, f := range fields {
		decls[i] = models.WidgetFieldDecl{
			Key:       f.Key,
			Label:     f.Label,
			FieldType: f.FieldType,
			Required:  f.IsRequired,
		}
		if f.DefaultValue != "" {
			decls[i].DefaultValue = content.Decode(f.FieldType, f.DefaultValue).Interface()
		}
	}
	return decls, nil
}

// SampleValue is the value a field shows before anything is configured or
// bound: its default, or a placeholder derived from its type.
func SampleValue(d models.WidgetFieldDecl) any {
	if d.DefaultValue != nil {
		return d.DefaultValue
	}
	switch d.FieldType {
	case models.FieldText, models.FieldTextarea, models.FieldRichText:
		label := d.Label
		if label == "" {
			label = d.Key
		}
		return "Sample " + label
	case models.FieldNumber:
		return 0
	case models.FieldBoolean:
		return false
	case models.FieldJSON:
		return nil
	case models.FieldMultiselect, models.FieldCheckbox, models.FieldGallery:
		return []string{}
	}
	return ""
}

// SampleSettings builds the settings object of a schema from sample values.
func SampleSettings(decls []models.WidgetFieldDecl) map[string]any {
	out := make(map[string]any, len(decls))
	for _, d := range decls {
		out[d.Key] = SampleValue(d)
	}
	return out
}

func (c *Catalog) SampleData(ctx context.Context, w *models.Widget) (map[string]any, error) {
	decls, err := c.Schema(ctx, w)
	if err != nil {
		return nil, err
	}
	return SampleSettings(decls), nil
}

// ValidateSettings rejects settings keys the widget does not declare.
func (c *Catalog) ValidateSettings(ctx context.Context, w *models.Widget, settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}
	decls, err := c.Schema(ctx, w)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(decls))
	for _, d := range decls {
		known[d.Key] = true
	}
	var unknown []string
	for k := range settings {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return common.Invalid("settings", "widget %s does not declare %s", w.Slug, strings.Join(unknown, ", "))
	}
	return nil
}

func declKeys(decls []models.WidgetFieldDecl) []string {
	keys := make([]string, len(decls))
	for i, d := range decls {
		keys[i] = d.Key
	}
	return keys
}
