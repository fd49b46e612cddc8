package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/layout"
	"tessera/models"
)

// Geometry is a rectangle on the 12-column page grid.
type Geometry struct {
	X int `json:"x" validate:"min=0,max=11"`
	Y int `json:"y" validate:"min=0"`
	W int `json:"w" validate:"min=1,max=12"`
	H int `json:"h" validate:"min=1"`
}

func (g Geometry) validate() error {
	if err := common.ValidateStruct(g); err != nil {
		return err
	}
	if g.X+g.W > 12 {
		return common.Invalid("w", "x+w must not exceed 12 columns")
	}
	return nil
}

// ColumnGridIDs returns the sub-grid ids of a page section, in visual order.
// Clients derive these from the section id without asking the server, and
// persisted layouts store them, so the naming is fixed: multi-column
// sections use {sectionId}_col1.._colN, sidebar sections {sectionId}_sidebar
// and {sectionId}_main, and full-width sections the bare section id.
func ColumnGridIDs(sectionID uint, sectionType models.SectionType, columnLayout string) []string {
	switch sectionType {
	case models.SectionMultiColumn:
		n := 2
		if spans, err := layout.ColumnSpans(columnLayout); err == nil && len(spans) > 1 {
			n = len(spans)
		}
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("%d_col%d", sectionID, i+1)
		}
		return ids
	case models.SectionSidebarLeft:
		return []string{fmt.Sprintf("%d_sidebar", sectionID), fmt.Sprintf("%d_main", sectionID)}
	case models.SectionSidebarRight:
		return []string{fmt.Sprintf("%d_main", sectionID), fmt.Sprintf("%d_sidebar", sectionID)}
	}
	return []string{strconv.FormatUint(uint64(sectionID), 10)}
}

// defaultColumn is where a placement lands when no column is named: the
// main column of sidebar sections, the first column otherwise.
func defaultColumn(sectionID uint, sectionType models.SectionType, columnLayout string) string {
	if sectionType == models.SectionSidebarLeft || sectionType == models.SectionSidebarRight {
		return fmt.Sprintf("%d_main", sectionID)
	}
	return ColumnGridIDs(sectionID, sectionType, columnLayout)[0]
}

func sectionColumns(ps *models.PageSection) []string {
	if ps.TemplateSection == nil {
		return ColumnGridIDs(ps.ID, models.SectionFullWidth, "")
	}
	return ColumnGridIDs(ps.ID, ps.TemplateSection.SectionType, ps.TemplateSection.ColumnLayout)
}

func loadSection(tx *gorm.DB, id uint) (*models.PageSection, error) {
	var ps models.PageSection
	err := tx.Preload("TemplateSection").First(&ps, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("page section", id)
	}
	if err != nil {
		return nil, err
	}
	if ps.TemplateSection == nil {
		return nil, &common.StaleReferenceError{Resource: "template section", ID: ps.TemplateSectionID}
	}
	return &ps, nil
}

func (c *Composer) GetSection(ctx context.Context, id uint) (*models.PageSection, error) {
	return loadSection(c.db.WithContext(ctx), id)
}

// AddSection instantiates another section of the page's template, placed
// below the existing ones. A template section that is not repeatable can
// appear once per page.
func (c *Composer) AddSection(ctx context.Context, pageID, templateSectionID uint) (*models.PageSection, error) {
	var ps models.PageSection
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var page models.Page
		if err := tx.First(&page, pageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("page", pageID)
			}
			return err
		}
		var ts models.TemplateSection
		if err := tx.First(&ts, templateSectionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("template section", templateSectionID)
			}
			return err
		}
		if ts.TemplateID != page.TemplateID {
			return common.Invalid("template_section_id", "section %s is not part of the page's template", ts.Slug)
		}
		if !ts.IsRepeatable {
			var n int64
			if err := tx.Model(&models.PageSection{}).
				Where("page_id = ? AND template_section_id = ?", pageID, ts.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return &common.ConflictError{Resource: "page section", Field: "template_section", Value: ts.Slug}
			}
		}
		order, err := common.NextPosition(tx, &models.PageSection{}, "order_index", "page_id = ?", pageID)
		if err != nil {
			return err
		}
		var bottom int
		if err := tx.Model(&models.PageSection{}).Where("page_id = ?", pageID).
			Select("COALESCE(MAX(grid_y + grid_h), 0)").Row().Scan(&bottom); err != nil {
			return err
		}
		ps = models.PageSection{
			PageID:            pageID,
			TemplateSectionID: ts.ID,
			TemplateSection:   &ts,
			GridID:            uuid.NewString(),
			GridY:             bottom,
			GridW:             12,
			GridH:             defaultSectionHeight,
			AllowsWidgets:     true,
			OrderIndex:        order,
			IsActive:          true,
		}
		return tx.Omit("TemplateSection").Create(&ps).Error
	})
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

type SectionUpdate struct {
	Geometry      *Geometry `json:"geometry"`
	AllowsWidgets *bool     `json:"allows_widgets"`
	IsActive      *bool     `json:"is_active"`
}

// UpdateSection changes the outer geometry and flags of a page section.
func (c *Composer) UpdateSection(ctx context.Context, id uint, in SectionUpdate) (*models.PageSection, error) {
	if in.Geometry != nil {
		if err := in.Geometry.validate(); err != nil {
			return nil, err
		}
	}
	var ps *models.PageSection
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if ps, err = loadSection(tx, id); err != nil {
			return err
		}
		updates := map[string]any{}
		if g := in.Geometry; g != nil {
			updates["grid_x"], updates["grid_y"], updates["grid_w"], updates["grid_h"] = g.X, g.Y, g.W, g.H
			ps.GridX, ps.GridY, ps.GridW, ps.GridH = g.X, g.Y, g.W, g.H
		}
		if in.AllowsWidgets != nil {
			updates["allows_widgets"] = *in.AllowsWidgets
			ps.AllowsWidgets = *in.AllowsWidgets
		}
		if in.IsActive != nil {
			updates["is_active"] = *in.IsActive
			ps.IsActive = *in.IsActive
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.PageSection{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// DeleteSection removes a page section and its widget placements.
func (c *Composer) DeleteSection(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.PageSection{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NotFound("page section", id)
		}
		return tx.Where("page_section_id = ?", id).Delete(&models.PageSectionWidget{}).Error
	})
}

// ReorderSections renumbers the sections of a page 0..n-1 in the order of
// ids. The ids must be exactly the page's sections.
func (c *Composer) ReorderSections(ctx context.Context, pageID uint, ids []uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.PageSection{}).Where("page_id = ?", pageID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if err := common.SamePermutation("section_ids", existing, ids); err != nil {
			return err
		}
		for i, id := range ids {
			if err := tx.Model(&models.PageSection{}).Where("id = ?", id).Update("order_index", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
