package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tessera/common"
	"tessera/database"
	"tessera/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))
	return db
}

func createTestTheme(t *testing.T, m *Manager, slug string) *models.Theme {
	theme, err := m.CreateTheme(context.Background(), ThemeInput{Slug: slug, Name: slug})
	require.NoError(t, err)
	return theme
}

func countActive(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.Theme{}).Where("is_active = ?", true).Count(&n).Error)
	return n
}

func TestActivateTheme_Exclusive(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(db, zerolog.Nop())
	ctx := context.Background()
	a := createTestTheme(t, m, "alpha")
	b := createTestTheme(t, m, "beta")

	_, err := m.ActiveTheme(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, m.ActivateTheme(ctx, a.ID))
	active, err := m.ActiveTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	require.NoError(t, m.ActivateTheme(ctx, b.ID))
	assert.Equal(t, int64(1), countActive(t, db))
	active, err = m.ActiveTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, "beta", active.Slug)

	var site models.SiteSetting
	require.NoError(t, db.First(&site, 1).Error)
	assert.Equal(t, b.ID, *site.ActiveThemeID)

	assert.ErrorIs(t, m.ActivateTheme(ctx, 404), common.ErrNotFound)
	assert.Equal(t, int64(1), countActive(t, db))
}

func TestSetDefaultTemplate_Exclusive(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(db, zerolog.Nop())
	ctx := context.Background()
	theme := createTestTheme(t, m, "alpha")
	other := createTestTheme(t, m, "beta")

	first, err := m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "home", Name: "Home"})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	second, err := m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "landing", Name: "Landing"})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	otherDefault, err := m.CreateTemplate(ctx, other.ID, TemplateInput{Slug: "home", Name: "Home"})
	require.NoError(t, err)

	require.NoError(t, m.SetDefaultTemplate(ctx, second.ID))

	var defaults []models.Template
	require.NoError(t, db.Where("theme_id = ? AND is_default = ?", theme.ID, true).Find(&defaults).Error)
	require.Len(t, defaults, 1)
	assert.Equal(t, second.ID, defaults[0].ID)

	tpl, err := m.DefaultTemplate(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, otherDefault.ID, tpl.ID)

	_, err = m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "home", Name: "Dup"})
	assert.True(t, common.IsConflict(err))
}

func TestSections_OrderAndReorder(t *testing.T) {
	m := NewManager(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()
	theme := createTestTheme(t, m, "alpha")
	tpl, err := m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "home", Name: "Home"})
	require.NoError(t, err)

	hero, err := m.AddSection(ctx, tpl.ID, SectionInput{Slug: "hero", Name: "Hero"})
	require.NoError(t, err)
	assert.Equal(t, "12", hero.ColumnLayout)
	cols, err := m.AddSection(ctx, tpl.ID, SectionInput{Slug: "cols", Name: "Cols", SectionType: models.SectionMultiColumn, ColumnLayout: "4-4-4"})
	require.NoError(t, err)
	zero := 0
	side, err := m.AddSection(ctx, tpl.ID, SectionInput{Slug: "side", Name: "Side", SectionType: models.SectionSidebarRight, Position: &zero})
	require.NoError(t, err)

	sections, err := m.Sections(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{hero.ID, side.ID, cols.ID}, []uint{sections[0].ID, sections[1].ID, sections[2].ID})

	require.NoError(t, m.ReorderSections(ctx, tpl.ID, []uint{cols.ID, hero.ID, side.ID}))
	loaded, err := m.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	for i, s := range loaded.Sections {
		assert.Equal(t, i, s.Position)
	}
	assert.Equal(t, cols.ID, loaded.Sections[0].ID)

	assert.True(t, common.IsValidation(m.ReorderSections(ctx, tpl.ID, []uint{cols.ID, hero.ID})))
}

func TestAddSection_Validation(t *testing.T) {
	m := NewManager(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()
	theme := createTestTheme(t, m, "alpha")
	tpl, err := m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "home", Name: "Home"})
	require.NoError(t, err)

	cases := []SectionInput{
		{Slug: "a", Name: "A", SectionType: "diagonal"},
		{Slug: "b", Name: "B", ColumnLayout: "6-5"},
		{Slug: "c", Name: "C", SectionType: models.SectionFullWidth, ColumnLayout: "6-6"},
		{Slug: "d", Name: "D", SectionType: models.SectionSidebarLeft, ColumnLayout: "4-4-4"},
		{Slug: "e", Name: "E", SectionType: models.SectionMultiColumn, ColumnLayout: "3-3-3-3"},
	}
	for _, in := range cases {
		_, err := m.AddSection(ctx, tpl.ID, in)
		assert.True(t, common.IsValidation(err), in.Slug)
	}

	spans, err := ColumnSpans("3-6-3")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 3}, spans)
}

func TestDeleteSection_InUseGuard(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(db, zerolog.Nop())
	ctx := context.Background()
	theme := createTestTheme(t, m, "alpha")
	tpl, _ := m.CreateTemplate(ctx, theme.ID, TemplateInput{Slug: "home", Name: "Home"})
	section, err := m.AddSection(ctx, tpl.ID, SectionInput{Slug: "hero", Name: "Hero"})
	require.NoError(t, err)

	page := models.Page{TemplateID: tpl.ID, Title: "P", Slug: "p"}
	require.NoError(t, db.Create(&page).Error)
	ps := models.PageSection{PageID: page.ID, TemplateSectionID: section.ID, GridID: "g1"}
	require.NoError(t, db.Create(&ps).Error)

	assert.True(t, common.IsInUse(m.DeleteSection(ctx, section.ID)))
	assert.True(t, common.IsInUse(m.DeleteTheme(ctx, theme.ID)))

	var n int64
	db.Model(&models.TemplateSection{}).Count(&n)
	assert.Equal(t, int64(1), n)
	db.Model(&models.Template{}).Count(&n)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.Delete(&ps).Error)
	require.NoError(t, db.Delete(&page).Error)
	require.NoError(t, m.DeleteTheme(ctx, theme.ID))
	db.Model(&models.TemplateSection{}).Count(&n)
	assert.Zero(t, n)
}

func TestDeleteTheme_ActiveRefused(t *testing.T) {
	m := NewManager(setupTestDB(t), zerolog.Nop())
	ctx := context.Background()
	theme := createTestTheme(t, m, "alpha")
	require.NoError(t, m.ActivateTheme(ctx, theme.ID))
	assert.True(t, common.IsValidation(m.DeleteTheme(ctx, theme.ID)))
}

func TestManifestAssets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha"), 0o755))
	manifest := "name: Alpha\nassets:\n  css: [css/site.css, css/grid.css]\n  js: [js/site.js]\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha", ManifestFile), []byte(manifest), 0o644))

	src := ManifestAssets{Root: root}
	assets, err := src.ThemeAssets(&models.Theme{Slug: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"css/site.css", "css/grid.css"}, assets.CSS)
	assert.Equal(t, []string{"js/site.js"}, assets.JS)

	assets, err = src.ThemeAssets(&models.Theme{Slug: "missing"})
	require.NoError(t, err)
	assert.Empty(t, assets.CSS)
	assert.Empty(t, assets.JS)
}
