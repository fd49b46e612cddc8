package layout

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type SectionInput struct {
	Slug              string                   `json:"slug" validate:"required,slug,max=64"`
	Name              string                   `json:"name" validate:"required,max=120"`
	SectionType       models.SectionType       `json:"section_type"`
	ColumnLayout      string                   `json:"column_layout"`
	IsRepeatable      bool                     `json:"is_repeatable"`
	MaxWidgets        *int                     `json:"max_widgets" validate:"omitempty,min=1"`
	Position          *int                     `json:"position"`
	WidgetConstraints models.WidgetConstraints `json:"widget_constraints"`
}

var defaultColumnLayouts = map[models.SectionType]string{
	models.SectionFullWidth:    "12",
	models.SectionMultiColumn:  "6-6",
	models.SectionSidebarLeft:  "4-8",
	models.SectionSidebarRight: "8-4",
}

// ColumnSpans parses a column layout such as "3-6-3". The spans must be
// positive and add up to the 12-column grid.
func ColumnSpans(columnLayout string) ([]int, error) {
	parts := strings.Split(columnLayout, "-")
	spans := make([]int, 0, len(parts))
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, common.Invalid("column_layout", "%q is not a column layout", columnLayout)
		}
		spans = append(spans, n)
		total += n
	}
	if total != 12 {
		return nil, common.Invalid("column_layout", "%q spans %d columns, want 12", columnLayout, total)
	}
	return spans, nil
}

func normalizeSection(in *SectionInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	if in.SectionType == "" {
		in.SectionType = models.SectionFullWidth
	}
	if !in.SectionType.Valid() {
		return common.Invalid("section_type", "unknown section type %q", in.SectionType)
	}
	if in.ColumnLayout == "" {
		in.ColumnLayout = defaultColumnLayouts[in.SectionType]
	}
	spans, err := ColumnSpans(in.ColumnLayout)
	if err != nil {
		return err
	}
	switch in.SectionType {
	case models.SectionFullWidth:
		if len(spans) != 1 {
			return common.Invalid("column_layout", "full-width sections have a single column")
		}
	case models.SectionMultiColumn:
		if len(spans) < 2 || len(spans) > 3 {
			return common.Invalid("column_layout", "multi-column sections have 2 or 3 columns")
		}
	case models.SectionSidebarLeft, models.SectionSidebarRight:
		if len(spans) != 2 {
			return common.Invalid("column_layout", "sidebar sections have exactly 2 columns")
		}
	}
	if s := in.WidgetConstraints.DefaultWidgetSize; s != nil && (s.W <= 0 || s.W > 12 || s.H <= 0) {
		return common.Invalid("widget_constraints", "default_widget_size must be within the 12-column grid")
	}
	return nil
}

// AddSection appends a section to a template unless a position is given.
func (m *Manager) AddSection(ctx context.Context, templateID uint, in SectionInput) (*models.TemplateSection, error) {
	if err := normalizeSection(&in); err != nil {
		return nil, err
	}
	section := &models.TemplateSection{
		TemplateID:        templateID,
		Slug:              in.Slug,
		Name:              in.Name,
		SectionType:       in.SectionType,
		ColumnLayout:      in.ColumnLayout,
		IsRepeatable:      in.IsRepeatable,
		MaxWidgets:        in.MaxWidgets,
		WidgetConstraints: datatypes.NewJSONType(in.WidgetConstraints),
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.Template
		if err := tx.First(&tpl, templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("template", templateID)
			}
			return err
		}
		if err := ensureSectionSlugFree(tx, templateID, in.Slug, 0); err != nil {
			return err
		}
		if in.Position != nil {
			section.Position = *in.Position
		} else {
			next, err := common.NextPosition(tx, &models.TemplateSection{}, "position", "template_id = ?", templateID)
			if err != nil {
				return err
			}
			section.Position = next
		}
		return tx.Create(section).Error
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

func (m *Manager) UpdateSection(ctx context.Context, id uint, in SectionInput) (*models.TemplateSection, error) {
	if err := normalizeSection(&in); err != nil {
		return nil, err
	}
	var section models.TemplateSection
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&section, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("template section", id)
			}
			return err
		}
		if err := ensureSectionSlugFree(tx, section.TemplateID, in.Slug, id); err != nil {
			return err
		}
		section.Slug = in.Slug
		section.Name = in.Name
		section.SectionType = in.SectionType
		section.ColumnLayout = in.ColumnLayout
		section.IsRepeatable = in.IsRepeatable
		section.MaxWidgets = in.MaxWidgets
		section.WidgetConstraints = datatypes.NewJSONType(in.WidgetConstraints)
		if in.Position != nil {
			section.Position = *in.Position
		}
		return tx.Save(&section).Error
	})
	if err != nil {
		return nil, err
	}
	return &section, nil
}

func (m *Manager) GetSection(ctx context.Context, id uint) (*models.TemplateSection, error) {
	var section models.TemplateSection
	err := m.db.WithContext(ctx).First(&section, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("template section", id)
	}
	return &section, err
}

// Sections returns a template's sections by ascending position, ties in
// insertion order.
func (m *Manager) Sections(ctx context.Context, templateID uint) ([]models.TemplateSection, error) {
	var sections []models.TemplateSection
	err := m.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("position ASC, id ASC").
		Find(&sections).Error
	return sections, err
}

// ReorderSections renumbers a template's sections 0..n-1 in the order of
// ids, all or nothing.
func (m *Manager) ReorderSections(ctx context.Context, templateID uint, ids []uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.TemplateSection{}).Where("template_id = ?", templateID).
			Pluck("id", &existing).Error; err != nil {
			return err
		}
		if err := common.SamePermutation("section_ids", existing, ids); err != nil {
			return err
		}
		for pos, id := range ids {
			if err := tx.Model(&models.TemplateSection{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSection removes a template section. Sections instantiated by any
// page are refused.
func (m *Manager) DeleteSection(ctx context.Context, id uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteSection(tx, id)
	})
}

func deleteSection(tx *gorm.DB, id uint) error {
	var section models.TemplateSection
	if err := tx.First(&section, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFound("template section", id)
		}
		return err
	}
	var used int64
	if err := tx.Model(&models.PageSection{}).Where("template_section_id = ?", id).Count(&used).Error; err != nil {
		return err
	}
	if used > 0 {
		return &common.InUseError{Resource: "template section " + section.Slug, Blocker: "page sections", Count: used}
	}
	return tx.Delete(&section).Error
}

func ensureSectionSlugFree(tx *gorm.DB, templateID uint, slug string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.TemplateSection{}).Where("template_id = ? AND slug = ?", templateID, slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &common.ConflictError{Resource: "template section", Field: "slug", Value: slug}
	}
	return nil
}
