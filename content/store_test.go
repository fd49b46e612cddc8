package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tessera/common"
	"tessera/database"
	"tessera/media"
	"tessera/models"
	"tessera/schema"
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

type fixture struct {
	db       *gorm.DB
	registry *schema.Registry
	store    *Store
	article  *models.ContentType
	fields   map[string]*models.ContentTypeField
}

func setupFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	ctx := context.Background()
	registry := schema.NewRegistry(db, zerolog.Nop())
	store := NewStore(db, media.NewDiskStore(db, t.TempDir(), "/media", zerolog.Nop()), zerolog.Nop())

	article, err := registry.CreateContentType(ctx, schema.ContentTypeInput{Key: "article", Name: "Article"})
	require.NoError(t, err)

	f := &fixture{db: db, registry: registry, store: store, article: article, fields: map[string]*models.ContentTypeField{}}
	defs := []schema.FieldInput{
		{Slug: "headline", Name: "Headline", FieldType: models.FieldText, IsRequired: true},
		{Slug: "featured", Name: "Featured", FieldType: models.FieldBoolean},
		{Slug: "meta", Name: "Meta", FieldType: models.FieldJSON},
		{Slug: "rating", Name: "Rating", FieldType: models.FieldNumber},
		{Slug: "image", Name: "Image", FieldType: models.FieldImage},
		{Slug: "gallery", Name: "Gallery", FieldType: models.FieldGallery},
		{Slug: "tags", Name: "Tags", FieldType: models.FieldMultiselect, Options: []schema.OptionInput{{Value: "go"}, {Value: "cms"}}},
	}
	for _, d := range defs {
		field, err := registry.DefineField(ctx, article.ID, d)
		require.NoError(t, err)
		f.fields[d.Slug] = field
	}
	return f
}

func (f *fixture) createItem(t *testing.T, slug string, values map[string]any) *models.ContentItem {
	item, err := f.store.CreateItem(context.Background(), ItemInput{
		ContentTypeID: f.article.ID, Title: "Item " + slug, Slug: slug,
	}, values)
	require.NoError(t, err)
	return item
}

func countValues(t *testing.T, db *gorm.DB, itemID, fieldID uint) int64 {
	var n int64
	require.NoError(t, db.Model(&models.ContentFieldValue{}).
		Where("content_item_id = ? AND field_id = ?", itemID, fieldID).Count(&n).Error)
	return n
}

func TestSetValue_UpsertsSingleRow(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "hello", map[string]any{"headline": "Hello"})
	headline := f.fields["headline"]

	for _, v := range []string{"One", "Two", "Three"} {
		_, err := f.store.SetValue(ctx, item, headline, v)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), countValues(t, f.db, item.ID, headline.ID))
	values, err := f.store.GetValuesFor(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Three", values[headline.ID].Value)
}

func TestBooleanRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	featured := f.fields["featured"]

	item := f.createItem(t, "flags", map[string]any{"headline": "Flags", "featured": "on"})
	values, err := f.store.GetValuesFor(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", values[featured.ID].Value)

	_, err = f.store.UpdateItem(ctx, item.ID, ItemInput{Title: item.Title, Slug: item.Slug}, map[string]any{"headline": "Flags"})
	require.NoError(t, err)

	values, err = f.store.GetValuesFor(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", values[featured.ID].Value)
	assert.Equal(t, int64(1), countValues(t, f.db, item.ID, featured.ID))
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "1", "on", "checked", "yes", 1, []string{"0", "1"}} {
		assert.True(t, Truthy(v), "%v", v)
	}
	for _, v := range []any{nil, false, "", "0", "off", "false", 0, []string{}} {
		assert.False(t, Truthy(v), "%v", v)
	}
}

func TestJSONValues(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "json", map[string]any{"headline": "J"})
	meta := f.fields["meta"]

	row, err := f.store.SetValue(ctx, item, meta, map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, row.Value)

	row, err = f.store.SetValue(ctx, item, meta, `{ "kept":  "verbatim" }`)
	require.NoError(t, err)
	assert.Equal(t, `{ "kept":  "verbatim" }`, row.Value)
}

func TestCreateItem_Validation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateItem(ctx, ItemInput{ContentTypeID: f.article.ID, Title: "No headline", Slug: "no-headline"}, nil)
	assert.True(t, common.IsValidation(err))

	_, err = f.store.CreateItem(ctx, ItemInput{ContentTypeID: f.article.ID, Title: "Bad", Slug: "bad"},
		map[string]any{"headline": "x", "rating": "abc"})
	assert.True(t, common.IsValidation(err))

	_, err = f.store.CreateItem(ctx, ItemInput{ContentTypeID: f.article.ID, Title: "Bad", Slug: "bad"},
		map[string]any{"headline": "x", "tags": []string{"rust"}})
	assert.True(t, common.IsValidation(err))

	f.createItem(t, "taken", map[string]any{"headline": "x"})
	_, err = f.store.CreateItem(ctx, ItemInput{ContentTypeID: f.article.ID, Title: "Dup", Slug: "taken"},
		map[string]any{"headline": "x"})
	assert.True(t, common.IsConflict(err))

	var n int64
	f.db.Model(&models.ContentItem{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestTypedValues(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "typed", map[string]any{
		"headline": "Typed", "featured": true, "rating": 4.5, "tags": []any{"go", "cms"},
	})

	_, err := f.store.AttachMedia(ctx, item, f.fields["image"], media.File{Name: "a.png", Reader: strings.NewReader("a")})
	require.NoError(t, err)
	ref, err := f.store.AttachMedia(ctx, item, f.fields["image"], media.File{Name: "b.png", Reader: strings.NewReader("b")})
	require.NoError(t, err)
	for _, name := range []string{"g1.png", "g2.png"} {
		_, err := f.store.AttachMedia(ctx, item, f.fields["gallery"], media.File{Name: name, Reader: strings.NewReader(name)})
		require.NoError(t, err)
	}

	values, err := f.store.TypedValues(ctx, item)
	require.NoError(t, err)

	assert.Equal(t, "Typed", values["headline"].Interface())
	assert.Equal(t, true, values["featured"].Interface())
	assert.Equal(t, 4.5, values["rating"].Interface())
	assert.Equal(t, []string{"go", "cms"}, values["tags"].Interface())
	assert.Equal(t, ref.URL, values["image"].Interface())
	assert.Len(t, values["gallery"].Interface(), 2)
	assert.Equal(t, KindNull, values["meta"].Kind)
}

func TestAttachMedia_RejectsTextField(t *testing.T) {
	f := setupFixture(t)
	item := f.createItem(t, "nomedia", map[string]any{"headline": "x"})
	_, err := f.store.AttachMedia(context.Background(), item, f.fields["headline"], media.File{Name: "a.txt", Reader: strings.NewReader("a")})
	assert.True(t, common.IsValidation(err))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestAttachMedia_FailedReplaceKeepsImage(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "keep", map[string]any{"headline": "Keep"})

	ref, err := f.store.AttachMedia(ctx, item, f.fields["image"], media.File{Name: "a.png", Reader: strings.NewReader("a")})
	require.NoError(t, err)

	_, err = f.store.AttachMedia(ctx, item, f.fields["image"], media.File{Name: "b.png", Reader: failingReader{}})
	require.Error(t, err)
	_, err = f.store.AttachMedia(ctx, item, f.fields["image"], media.File{Name: "", Reader: strings.NewReader("c")})
	assert.True(t, common.IsValidation(err))

	values, err := f.store.TypedValues(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, ref.URL, values["image"].Interface())
}

func TestDeleteItem_RemovesValues(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	item := f.createItem(t, "gone", map[string]any{"headline": "x"})

	require.NoError(t, f.store.DeleteItem(ctx, item.ID))

	var n int64
	f.db.Model(&models.ContentFieldValue{}).Where("content_item_id = ?", item.ID).Count(&n)
	assert.Zero(t, n)
	_, err := f.store.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestScenario_DeleteFieldAfterValueRemoved(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	registry := schema.NewRegistry(db, zerolog.Nop())
	store := NewStore(db, nil, zerolog.Nop())

	article, err := registry.CreateContentType(ctx, schema.ContentTypeInput{Key: "article", Name: "Article"})
	require.NoError(t, err)
	headline, err := registry.DefineField(ctx, article.ID, schema.FieldInput{
		Slug: "headline", Name: "Headline", FieldType: models.FieldText, IsRequired: true,
	})
	require.NoError(t, err)
	item, err := store.CreateItem(ctx, ItemInput{ContentTypeID: article.ID, Title: "Hello", Slug: "hello"},
		map[string]any{"headline": "Hello"})
	require.NoError(t, err)

	assert.True(t, common.IsInUse(registry.DeleteField(ctx, headline.ID)))

	require.NoError(t, store.DeleteValue(ctx, item.ID, headline.ID))
	assert.NoError(t, registry.DeleteField(ctx, headline.ID))
}
