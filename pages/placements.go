package pages

import (
	"context"
	"errors"
	"slices"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

var fallbackWidgetSize = models.GridSize{W: 6, H: 3}

type PlacementInput struct {
	WidgetID       uint           `json:"widget_id" validate:"required"`
	Position       *int           `json:"position" validate:"omitempty,min=0"`
	ColumnPosition string         `json:"column_position"`
	ContentItemID  *uint          `json:"content_item_id"`
	Settings       map[string]any `json:"settings"`
	Geometry       *Geometry      `json:"geometry"`
}

// WidgetOrder asks for a placement to move to a position.
type WidgetOrder struct {
	ID       uint `json:"id"`
	Position int  `json:"position"`
}

// PlaceWidget puts a widget into a page section. Without a position the
// placement is appended after the last one. Without geometry it gets the
// section's default widget size (6x3 when the template section sets none)
// and is stacked below the placements already in its column.
func (c *Composer) PlaceWidget(ctx context.Context, sectionID uint, in PlacementInput) (*models.PageSectionWidget, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.Geometry != nil {
		if err := in.Geometry.validate(); err != nil {
			return nil, err
		}
	}
	widget, err := c.catalog.GetWidget(ctx, in.WidgetID)
	if err != nil {
		return nil, err
	}
	if err := c.catalog.ValidateSettings(ctx, widget, in.Settings); err != nil {
		return nil, err
	}

	pw := &models.PageSectionWidget{
		PageSectionID: sectionID,
		WidgetID:      widget.ID,
		ContentItemID: in.ContentItemID,
		Settings:      in.Settings,
	}
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ps, err := loadSection(tx, sectionID)
		if err != nil {
			return err
		}
		if !ps.AllowsWidgets {
			return common.Invalid("page_section_id", "section %s does not accept widgets", ps.GridID)
		}
		if limit := ps.TemplateSection.MaxWidgets; limit != nil {
			var n int64
			if err := tx.Model(&models.PageSectionWidget{}).Where("page_section_id = ?", sectionID).Count(&n).Error; err != nil {
				return err
			}
			if n >= int64(*limit) {
				return common.Invalid("page_section_id", "section %s holds at most %d widgets", ps.TemplateSection.Slug, *limit)
			}
		}
		if pw.ColumnPosition, err = resolveColumn(ps, in.ColumnPosition); err != nil {
			return err
		}
		if err := checkItem(tx, in.ContentItemID); err != nil {
			return err
		}

		if in.Position != nil {
			pw.Position = *in.Position
		} else if pw.Position, err = common.NextPosition(tx, &models.PageSectionWidget{}, "position", "page_section_id = ?", sectionID); err != nil {
			return err
		}

		if g := in.Geometry; g != nil {
			pw.GridX, pw.GridY, pw.GridW, pw.GridH = g.X, g.Y, g.W, g.H
		} else {
			size := fallbackWidgetSize
			if s := ps.TemplateSection.WidgetConstraints.Data().DefaultWidgetSize; s != nil {
				size = *s
			}
			var bottom int
			if err := tx.Model(&models.PageSectionWidget{}).
				Where("page_section_id = ? AND column_position = ?", sectionID, pw.ColumnPosition).
				Select("COALESCE(MAX(grid_y + grid_h), 0)").Row().Scan(&bottom); err != nil {
				return err
			}
			pw.GridY, pw.GridW, pw.GridH = bottom, size.W, size.H
		}
		return tx.Create(pw).Error
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Uint("section_id", sectionID).Uint("widget_id", widget.ID).Int("position", pw.Position).Msg("widget placed")
	return pw, nil
}

func resolveColumn(ps *models.PageSection, column string) (string, error) {
	if column == "" {
		return defaultColumn(ps.ID, ps.TemplateSection.SectionType, ps.TemplateSection.ColumnLayout), nil
	}
	if !slices.Contains(sectionColumns(ps), column) {
		return "", common.Invalid("column_position", "%s is not a column of section %d", column, ps.ID)
	}
	return column, nil
}

func checkItem(tx *gorm.DB, itemID *uint) error {
	if itemID == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.ContentItem{}).Where("id = ?", *itemID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return common.NotFound("content item", *itemID)
	}
	return nil
}

func (c *Composer) GetPlacement(ctx context.Context, id uint) (*models.PageSectionWidget, error) {
	var pw models.PageSectionWidget
	err := c.db.WithContext(ctx).First(&pw, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("widget placement", id)
	}
	return &pw, err
}

// Placements returns the placements of a section by position.
func (c *Composer) Placements(ctx context.Context, sectionID uint) ([]models.PageSectionWidget, error) {
	var list []models.PageSectionWidget
	err := c.db.WithContext(ctx).
		Where("page_section_id = ?", sectionID).
		Order("position ASC, id ASC").
		Find(&list).Error
	return list, err
}

// UpdateWidgetSettings replaces the settings of a placement. Keys must be
// declared by the widget's schema.
func (c *Composer) UpdateWidgetSettings(ctx context.Context, id uint, settings map[string]any) (*models.PageSectionWidget, error) {
	pw, err := c.GetPlacement(ctx, id)
	if err != nil {
		return nil, err
	}
	widget, err := c.catalog.GetWidget(ctx, pw.WidgetID)
	if err != nil {
		return nil, err
	}
	if err := c.catalog.ValidateSettings(ctx, widget, settings); err != nil {
		return nil, err
	}
	pw.Settings = datatypes.JSONMap(settings)
	if err := c.db.WithContext(ctx).Model(pw).Update("settings", pw.Settings).Error; err != nil {
		return nil, err
	}
	return pw, nil
}

// BindItem binds a placement to a content item, or unbinds it when itemID
// is nil.
func (c *Composer) BindItem(ctx context.Context, id uint, itemID *uint) (*models.PageSectionWidget, error) {
	var pw models.PageSectionWidget
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&pw, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget placement", id)
			}
			return err
		}
		if err := checkItem(tx, itemID); err != nil {
			return err
		}
		pw.ContentItemID = itemID
		return tx.Model(&pw).Update("content_item_id", itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &pw, nil
}

// RepositionWidget moves a placement on its section's grid, optionally into
// another column of the same section.
func (c *Composer) RepositionWidget(ctx context.Context, id uint, g Geometry, column string) (*models.PageSectionWidget, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	var pw models.PageSectionWidget
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&pw, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("widget placement", id)
			}
			return err
		}
		updates := map[string]any{"grid_x": g.X, "grid_y": g.Y, "grid_w": g.W, "grid_h": g.H}
		if column != "" {
			ps, err := loadSection(tx, pw.PageSectionID)
			if err != nil {
				return err
			}
			if _, err := resolveColumn(ps, column); err != nil {
				return err
			}
			updates["column_position"] = column
			pw.ColumnPosition = column
		}
		pw.GridX, pw.GridY, pw.GridW, pw.GridH = g.X, g.Y, g.W, g.H
		return tx.Model(&models.PageSectionWidget{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &pw, nil
}

// RemoveWidget deletes a placement. The positions of the remaining
// placements are left as they are.
func (c *Composer) RemoveWidget(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Delete(&models.PageSectionWidget{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("widget placement", id)
	}
	return nil
}

// ReorderWidgets rewrites the positions of a section's placements in one
// transaction. Every placement of the section must be listed. The requested
// positions only order the placements; they are stored densely as 0..n-1.
func (c *Composer) ReorderWidgets(ctx context.Context, sectionID uint, order []WidgetOrder) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.PageSectionWidget{}).Where("page_section_id = ?", sectionID).
			Pluck("id", &existing).Error; err != nil {
			return err
		}
		requested := make([]common.Positioned, len(order))
		ids := make([]uint, len(order))
		for i, o := range order {
			requested[i] = common.Positioned{ID: o.ID, Position: o.Position}
			ids[i] = o.ID
		}
		if err := common.SamePermutation("widgets", existing, ids); err != nil {
			return err
		}
		for pos, id := range common.DenseOrder(requested) {
			if err := tx.Model(&models.PageSectionWidget{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
