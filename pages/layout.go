package pages

import (
	"context"

	"tessera/models"
)

// SectionLayout is the page-builder client's view of one page section.
type SectionLayout struct {
	ID              uint               `json:"id"`
	GridID          string             `json:"grid_id"`
	Columns         []string           `json:"columns"`
	TemplateSection TemplateSectionRef `json:"template_section"`
	GridX           int                `json:"grid_x"`
	GridY           int                `json:"grid_y"`
	GridW           int                `json:"grid_w"`
	GridH           int                `json:"grid_h"`
	OrderIndex      int                `json:"order_index"`
	AllowsWidgets   bool               `json:"allows_widgets"`
	IsActive        bool               `json:"is_active"`
	Widgets         []WidgetLayout     `json:"widgets"`
}

type TemplateSectionRef struct {
	SectionType  models.SectionType `json:"section_type"`
	Name         string             `json:"name"`
	ColumnLayout string             `json:"column_layout"`
}

type WidgetLayout struct {
	ID             uint           `json:"id"`
	WidgetID       uint           `json:"widget_id"`
	ContentItemID  *uint          `json:"content_item_id,omitempty"`
	Position       int            `json:"position"`
	ColumnPosition string         `json:"column_position"`
	GridX          int            `json:"grid_x"`
	GridY          int            `json:"grid_y"`
	GridW          int            `json:"grid_w"`
	GridH          int            `json:"grid_h"`
	Settings       map[string]any `json:"settings"`
}

// Layout returns the persisted layout of a page in section order.
func (c *Composer) Layout(ctx context.Context, pageID uint) ([]SectionLayout, error) {
	page, err := c.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return BuildLayout(page), nil
}

// BuildLayout converts a page loaded by GetPage into its layout.
func BuildLayout(page *models.Page) []SectionLayout {
	out := make([]SectionLayout, 0, len(page.Sections))
	for i := range page.Sections {
		ps := &page.Sections[i]
		sl := SectionLayout{
			ID:            ps.ID,
			GridID:        ps.GridID,
			Columns:       sectionColumns(ps),
			GridX:         ps.GridX,
			GridY:         ps.GridY,
			GridW:         ps.GridW,
			GridH:         ps.GridH,
			OrderIndex:    ps.OrderIndex,
			AllowsWidgets: ps.AllowsWidgets,
			IsActive:      ps.IsActive,
			Widgets:       make([]WidgetLayout, 0, len(ps.Widgets)),
		}
		if ts := ps.TemplateSection; ts != nil {
			sl.TemplateSection = TemplateSectionRef{SectionType: ts.SectionType, Name: ts.Name, ColumnLayout: ts.ColumnLayout}
		}
		for _, w := range ps.Widgets {
			settings := map[string]any(w.Settings)
			if settings == nil {
				settings = map[string]any{}
			}
			sl.Widgets = append(sl.Widgets, WidgetLayout{
				ID:             w.ID,
				WidgetID:       w.WidgetID,
				ContentItemID:  w.ContentItemID,
				Position:       w.Position,
				ColumnPosition: w.ColumnPosition,
				GridX:          w.GridX,
				GridY:          w.GridY,
				GridW:          w.GridW,
				GridH:          w.GridH,
				Settings:       settings,
			})
		}
		out = append(out, sl)
	}
	return out
}
