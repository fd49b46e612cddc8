// Package layout manages themes, their templates and template sections: the
// skeleton a page is instantiated from.
package layout

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

type Manager struct {
	db  *gorm.DB
	log zerolog.Logger

	mu     sync.RWMutex
	active *models.Theme
}

func NewManager(db *gorm.DB, log zerolog.Logger) *Manager {
	return &Manager{db: db, log: log.With().Str("module", "layout").Logger()}
}

type ThemeInput struct {
	Slug   string         `json:"slug" validate:"required,slug,max=64"`
	Name   string         `json:"name" validate:"required,max=120"`
	Config map[string]any `json:"config"`
}

func (m *Manager) CreateTheme(ctx context.Context, in ThemeInput) (*models.Theme, error) {
	if err := common.ValidateStruct(in); err != nil {
		return nil, err
	}
	theme := &models.Theme{Slug: in.Slug, Name: in.Name, Config: in.Config}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Theme{}).Where("slug = ?", in.Slug).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return &common.ConflictError{Resource: "theme", Field: "slug", Value: in.Slug}
		}
		return tx.Create(theme).Error
	})
	if err != nil {
		return nil, err
	}
	return theme, nil
}

func (m *Manager) GetTheme(ctx context.Context, id uint) (*models.Theme, error) {
	var theme models.Theme
	err := m.db.WithContext(ctx).First(&theme, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("theme", id)
	}
	return &theme, err
}

func (m *Manager) GetThemeBySlug(ctx context.Context, slug string) (*models.Theme, error) {
	var theme models.Theme
	err := m.db.WithContext(ctx).Where("slug = ?", slug).First(&theme).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("theme", slug)
	}
	return &theme, err
}

func (m *Manager) ListThemes(ctx context.Context) ([]models.Theme, error) {
	var themes []models.Theme
	err := m.db.WithContext(ctx).Order("name ASC").Find(&themes).Error
	return themes, err
}

// ActivateTheme points the site at theme id. The pointer and the mirrored
// is_active flags change in one transaction, so readers never see zero or
// two active themes.
func (m *Manager) ActivateTheme(ctx context.Context, id uint) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var theme models.Theme
		if err := tx.First(&theme, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("theme", id)
			}
			return err
		}
		res := tx.Model(&models.SiteSetting{}).Where("id = ?", 1).Update("active_theme_id", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.SiteSetting{ID: 1, ActiveThemeID: &id}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Theme{}).Where("id <> ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.Theme{}).Where("id = ?", id).Update("is_active", true).Error
	})
	if err != nil {
		return err
	}
	m.invalidate()
	m.log.Info().Uint("theme_id", id).Msg("theme activated")
	return nil
}

// ActiveTheme returns the theme the site points at. The lookup is cached
// until the next activation or theme deletion.
func (m *Manager) ActiveTheme(ctx context.Context) (*models.Theme, error) {
	m.mu.RLock()
	cached := m.active
	m.mu.RUnlock()
	if cached != nil {
		t := *cached
		return &t, nil
	}

	var site models.SiteSetting
	if err := m.db.WithContext(ctx).First(&site, 1).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if site.ActiveThemeID == nil {
		return nil, common.NotFound("active theme", "-")
	}
	theme, err := m.GetTheme(ctx, *site.ActiveThemeID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active = theme
	m.mu.Unlock()
	t := *theme
	return &t, nil
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}

// DeleteTheme removes a theme with its templates and their sections. The
// active theme, themes with widgets and themes whose templates back pages
// are refused; nothing is deleted in that case.
func (m *Manager) DeleteTheme(ctx context.Context, id uint) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var theme models.Theme
		if err := tx.First(&theme, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("theme", id)
			}
			return err
		}
		var site models.SiteSetting
		if err := tx.First(&site, 1).Error; err == nil && site.ActiveThemeID != nil && *site.ActiveThemeID == id {
			return common.Invalid("theme_id", "the active theme cannot be deleted")
		}
		var widgets int64
		if err := tx.Model(&models.Widget{}).Where("theme_id = ?", id).Count(&widgets).Error; err != nil {
			return err
		}
		if widgets > 0 {
			return &common.InUseError{Resource: "theme " + theme.Slug, Blocker: "widgets", Count: widgets}
		}

		var templateIDs []uint
		if err := tx.Model(&models.Template{}).Where("theme_id = ?", id).Pluck("id", &templateIDs).Error; err != nil {
			return err
		}
		for _, tid := range templateIDs {
			if err := deleteTemplate(tx, tid); err != nil {
				return err
			}
		}
		return tx.Delete(&theme).Error
	})
	if err != nil {
		return err
	}
	m.invalidate()
	return nil
}
