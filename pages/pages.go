// Package pages composes pages from templates: page sections with their
// grid geometry, and the widget placements inside them.
package pages

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
	"tessera/widgets"
)

// Sections are stacked full width on the page canvas when instantiated.
const defaultSectionHeight = 4

type Composer struct {
	db      *gorm.DB
	catalog *widgets.Catalog
	log     zerolog.Logger
}

func NewComposer(db *gorm.DB, catalog *widgets.Catalog, log zerolog.Logger) *Composer {
	return &Composer{db: db, catalog: catalog, log: log.With().Str("module", "pages").Logger()}
}

type PageInput struct {
	TemplateID uint              `json:"template_id" validate:"required"`
	Title      string            `json:"title" validate:"required,max=255"`
	Slug       string            `json:"slug" validate:"required,slug,max=191"`
	Status     models.PageStatus `json:"status"`
}

func validatePage(in *PageInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	if in.Status == "" {
		in.Status = models.PageDraft
	}
	if !in.Status.Valid() {
		return common.Invalid("status", "unknown page status %q", in.Status)
	}
	return nil
}

// CreatePage creates a page and instantiates one page section per section of
// its template.
func (c *Composer) CreatePage(ctx context.Context, in PageInput) (*models.Page, error) {
	if err := validatePage(&in); err != nil {
		return nil, err
	}
	page := &models.Page{TemplateID: in.TemplateID, Title: in.Title, Slug: in.Slug, Status: in.Status}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePageSlugFree(tx, in.Slug, 0); err != nil {
			return err
		}
		if err := tx.Create(page).Error; err != nil {
			return err
		}
		return instantiate(tx, page)
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Uint("id", page.ID).Str("slug", page.Slug).Msg("page created")
	return c.GetPage(ctx, page.ID)
}

// UpdatePage changes title, slug and status. The template is changed with
// Retemplate.
func (c *Composer) UpdatePage(ctx context.Context, id uint, in PageInput) (*models.Page, error) {
	var page models.Page
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&page, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("page", id)
			}
			return err
		}
		in.TemplateID = page.TemplateID
		if err := validatePage(&in); err != nil {
			return err
		}
		if err := ensurePageSlugFree(tx, in.Slug, id); err != nil {
			return err
		}
		page.Title = in.Title
		page.Slug = in.Slug
		page.Status = in.Status
		return tx.Save(&page).Error
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPage loads a page with its sections by order index, each with its
// template section and widget placements by position.
func (c *Composer) GetPage(ctx context.Context, id uint) (*models.Page, error) {
	var page models.Page
	err := c.preloaded(ctx).First(&page, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("page", id)
	}
	return &page, err
}

func (c *Composer) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	var page models.Page
	err := c.preloaded(ctx).Where("slug = ?", slug).First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("page", slug)
	}
	return &page, err
}

func (c *Composer) preloaded(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC, id ASC") }).
		Preload("Sections.TemplateSection").
		Preload("Sections.Widgets", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") })
}

func (c *Composer) ListPages(ctx context.Context, status models.PageStatus) ([]models.Page, error) {
	var pages []models.Page
	q := c.db.WithContext(ctx).Order("title ASC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&pages).Error
	return pages, err
}

// Retemplate moves a page to another template. Every page section and its
// widget placements are deleted and the sections of the new template are
// instantiated. Placements are not carried over. Moving a page to the
// template it already uses changes nothing.
func (c *Composer) Retemplate(ctx context.Context, pageID, templateID uint) (*models.Page, error) {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var page models.Page
		if err := tx.First(&page, pageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("page", pageID)
			}
			return err
		}
		if page.TemplateID == templateID {
			return nil
		}
		if err := deletePageSections(tx, pageID); err != nil {
			return err
		}
		page.TemplateID = templateID
		if err := tx.Model(&page).Update("template_id", templateID).Error; err != nil {
			return err
		}
		return instantiate(tx, &page)
	})
	if err != nil {
		return nil, err
	}
	c.log.Info().Uint("page_id", pageID).Uint("template_id", templateID).Msg("page retemplated")
	return c.GetPage(ctx, pageID)
}

// DeletePage removes a page with its sections and their placements.
func (c *Composer) DeletePage(ctx context.Context, id uint) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Page{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.NotFound("page", id)
		}
		return deletePageSections(tx, id)
	})
}

// instantiate creates one active page section per template section, in
// template order, each with a fresh grid id and its order index set to the
// template section's position.
func instantiate(tx *gorm.DB, page *models.Page) error {
	var tpl models.Template
	if err := tx.First(&tpl, page.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFound("template", page.TemplateID)
		}
		return err
	}
	var sections []models.TemplateSection
	if err := tx.Where("template_id = ?", tpl.ID).Order("position ASC, id ASC").Find(&sections).Error; err != nil {
		return err
	}
	y := 0
	for _, ts := range sections {
		ps := models.PageSection{
			PageID:            page.ID,
			TemplateSectionID: ts.ID,
			GridID:            uuid.NewString(),
			GridX:             0,
			GridY:             y,
			GridW:             12,
			GridH:             defaultSectionHeight,
			AllowsWidgets:     true,
			OrderIndex:        ts.Position,
			IsActive:          true,
		}
		if err := tx.Create(&ps).Error; err != nil {
			return err
		}
		y += defaultSectionHeight
	}
	return nil
}

func deletePageSections(tx *gorm.DB, pageID uint) error {
	sub := tx.Model(&models.PageSection{}).Select("id").Where("page_id = ?", pageID)
	if err := tx.Where("page_section_id IN (?)", sub).Delete(&models.PageSectionWidget{}).Error; err != nil {
		return err
	}
	return tx.Where("page_id = ?", pageID).Delete(&models.PageSection{}).Error
}

func ensurePageSlugFree(tx *gorm.DB, slug string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.Page{}).Where("slug = ?", slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &common.ConflictError{Resource: "page", Field: "slug", Value: slug}
	}
	return nil
}
