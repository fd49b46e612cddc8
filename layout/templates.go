package layout

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type TemplateInput struct {
	Slug      string `json:"slug" validate:"required,slug,max=64"`
	Name      string `json:"name" validate:"required,max=120"`
	IsDefault bool   `json:"is_default"`
}

// CreateTemplate adds a template to a theme. The first template of a theme
// becomes its default.
func (m *Manager) CreateTemplate(ctx context.Context, themeID uint, in TemplateInput) (*models.Template, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	tpl := &models.Template{ThemeID: themeID, Slug: in.Slug, Name: in.Name}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var theme models.Theme
		if err := tx.First(&theme, themeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("theme", themeID)
			}
			return err
		}
		var siblings, sameSlug int64
		if err := tx.Model(&models.Template{}).Where("theme_id = ?", themeID).Count(&siblings).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Template{}).Where("theme_id = ? AND slug = ?", themeID, in.Slug).Count(&sameSlug).Error; err != nil {
			return err
		}
		if sameSlug > 0 {
			return &common.ConflictError{Resource: "template", Field: "slug", Value: in.Slug}
		}
		if err := tx.Create(tpl).Error; err != nil {
			return err
		}
		if in.IsDefault || siblings == 0 {
			if err := setDefault(tx, tpl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// SetDefaultTemplate makes a template the default of its theme, clearing
// the flag on its siblings in the same transaction.
func (m *Manager) SetDefaultTemplate(ctx context.Context, templateID uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tpl models.Template
		if err := tx.First(&tpl, templateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("template", templateID)
			}
			return err
		}
		return setDefault(tx, &tpl)
	})
}

func setDefault(tx *gorm.DB, tpl *models.Template) error {
	if err := tx.Model(&models.Template{}).
		Where("theme_id = ? AND id <> ?", tpl.ThemeID, tpl.ID).
		Update("is_default", false).Error; err != nil {
		return err
	}
	tpl.IsDefault = true
	return tx.Model(&models.Template{}).Where("id = ?", tpl.ID).Update("is_default", true).Error
}

func (m *Manager) DefaultTemplate(ctx context.Context, themeID uint) (*models.Template, error) {
	var tpl models.Template
	err := m.db.WithContext(ctx).Where("theme_id = ? AND is_default = ?", themeID, true).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("default template of theme", themeID)
	}
	if err != nil {
		return nil, err
	}
	return m.GetTemplate(ctx, tpl.ID)
}

// GetTemplate loads a template with its sections in position order.
func (m *Manager) GetTemplate(ctx context.Context, id uint) (*models.Template, error) {
	var tpl models.Template
	err := m.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		First(&tpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("template", id)
	}
	return &tpl, err
}

func (m *Manager) ListTemplates(ctx context.Context, themeID uint) ([]models.Template, error) {
	var templates []models.Template
	err := m.db.WithContext(ctx).Where("theme_id = ?", themeID).Order("name ASC, id ASC").Find(&templates).Error
	return templates, err
}

// DeleteTemplate removes a template and its sections unless a page uses it.
func (m *Manager) DeleteTemplate(ctx context.Context, id uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTemplate(tx, id)
	})
}

func deleteTemplate(tx *gorm.DB, id uint) error {
	var tpl models.Template
	if err := tx.First(&tpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFound("template", id)
		}
		return err
	}
	var pages int64
	if err := tx.Model(&models.Page{}).Where("template_id = ?", id).Count(&pages).Error; err != nil {
		return err
	}
	if pages > 0 {
		return &common.InUseError{Resource: fmt.Sprintf("template %s", tpl.Slug), Blocker: "pages", Count: pages}
	}

	var sectionIDs []uint
	if err := tx.Model(&models.TemplateSection{}).Where("template_id = ?", id).Pluck("id", &sectionIDs).Error; err != nil {
		return err
	}
	for _, sid := range sectionIDs {
		if err := deleteSection(tx, sid); err != nil {
			return err
		}
	}
	return tx.Delete(&tpl).Error
}
