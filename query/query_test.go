package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tessera/common"
	"tessera/content"
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
	db      *gorm.DB
	engine  *Engine
	store   *content.Store
	article *models.ContentType
	event   *models.ContentType
	fields  map[string]*models.ContentTypeField
	items   []*models.ContentItem
}

// setupFixture creates five articles, one hour apart, items 0, 2 and 3
// published.
func setupFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	ctx := context.Background()
	registry := schema.NewRegistry(db, zerolog.Nop())
	f := &fixture{
		db:     db,
		engine: NewEngine(db, zerolog.Nop()),
		store:  content.NewStore(db, media.NewDiskStore(db, t.TempDir(), "/media", zerolog.Nop()), zerolog.Nop()),
		fields: map[string]*models.ContentTypeField{},
	}
	var err error
	f.article, err = registry.CreateContentType(ctx, schema.ContentTypeInput{Key: "article", Name: "Article"})
	require.NoError(t, err)
	f.event, err = registry.CreateContentType(ctx, schema.ContentTypeInput{Key: "event", Name: "Event"})
	require.NoError(t, err)
	for _, in := range []schema.FieldInput{
		{Slug: "rating", Name: "Rating", FieldType: models.FieldNumber},
		{Slug: "featured", Name: "Featured", FieldType: models.FieldBoolean},
		{Slug: "summary", Name: "Summary", FieldType: models.FieldText},
	} {
		field, err := registry.DefineField(ctx, f.article.ID, in)
		require.NoError(t, err)
		f.fields[in.Slug] = field
	}
	venue, err := registry.DefineField(ctx, f.event.ID, schema.FieldInput{Slug: "venue", Name: "Venue", FieldType: models.FieldText})
	require.NoError(t, err)
	f.fields["venue"] = venue

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	statuses := []models.ItemStatus{models.ItemPublished, models.ItemDraft, models.ItemPublished, models.ItemPublished, models.ItemDraft}
	titles := []string{"Go Routines", "Draft notes", "Gopher Tales", "Caching 101", "Ideas"}
	for i, status := range statuses {
		values := map[string]any{"rating": i * 2, "featured": i%2 == 0}
		if i != 4 {
			values["summary"] = fmt.Sprintf("summary %d", i)
		}
		item, err := f.store.CreateItem(ctx, content.ItemInput{
			ContentTypeID: f.article.ID,
			Title:         titles[i],
			Slug:          fmt.Sprintf("item-%d", i),
			Status:        status,
		}, values)
		require.NoError(t, err)
		require.NoError(t, db.Model(item).Update("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
		f.items = append(f.items, item)
	}
	_, err = f.store.CreateItem(ctx, content.ItemInput{ContentTypeID: f.event.ID, Title: "Meetup", Slug: "meetup", Status: models.ItemPublished}, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, in QueryInput, filters ...FilterInput) []string {
	q, err := f.engine.CreateQuery(context.Background(), in, filters)
	require.NoError(t, err)
	items, err := f.engine.Execute(context.Background(), q)
	require.NoError(t, err)
	slugs := make([]string, len(items))
	for i, it := range items {
		slugs[i] = it.Slug
	}
	return slugs
}

func fieldID(f *models.ContentTypeField) *uint { return &f.ID }

func TestScenario_PublishedNewestFirst(t *testing.T) {
	f := setupFixture(t)
	got := f.run(t,
		QueryInput{ContentTypeID: &f.article.ID, OrderBy: "created_at", OrderDirection: "desc", Limit: 2},
		FilterInput{FieldKey: "status", Operator: models.OpEquals, Value: "published"},
	)
	assert.Equal(t, []string{"item-3", "item-2"}, got)
}

func TestExecute_DefaultsAndPagination(t *testing.T) {
	f := setupFixture(t)
	assert.Equal(t, []string{"meetup", "item-4", "item-3", "item-2", "item-1", "item-0"}, f.run(t, QueryInput{}))
	assert.Equal(t, []string{"item-3", "item-2"}, f.run(t, QueryInput{ContentTypeID: &f.article.ID, Limit: 2, Offset: 1}))
	assert.Equal(t, []string{"item-3", "item-4"}, f.run(t, QueryInput{ContentTypeID: &f.article.ID, Offset: 3, OrderBy: "slug"}))
	assert.Equal(t, []string{"item-3", "item-1", "item-0"}, f.run(t,
		QueryInput{ContentTypeID: &f.article.ID, OrderBy: "title", Limit: 3}))
}

func TestExecute_TextOperators(t *testing.T) {
	f := setupFixture(t)
	scope := QueryInput{ContentTypeID: &f.article.ID, OrderBy: "slug", OrderDirection: "asc"}

	assert.Equal(t, []string{"item-0", "item-2"}, f.run(t, scope, FilterInput{FieldKey: "title", Operator: models.OpContains, Value: "GO"}))
	assert.Equal(t, []string{"item-2"}, f.run(t, scope, FilterInput{FieldKey: "title", Operator: models.OpStartsWith, Value: "gopher"}))
	assert.Equal(t, []string{"item-2"}, f.run(t, scope, FilterInput{FieldKey: "title", Operator: models.OpEndsWith, Value: "TALES"}))
	assert.Empty(t, f.run(t, scope, FilterInput{FieldKey: "title", Operator: models.OpContains, Value: "%"}))
	assert.Equal(t, []string{"item-1", "item-4"}, f.run(t, scope, FilterInput{FieldKey: "slug", Operator: models.OpIn, Value: "item-1, item-4,nope"}))
	assert.Equal(t, []string{"item-0", "item-2", "item-3"}, f.run(t, scope, FilterInput{FieldKey: "status", Operator: models.OpNotIn, Value: "draft,archived"}))
	assert.Equal(t, []string{"item-1", "item-4"}, f.run(t, scope, FilterInput{FieldKey: "published_at", Operator: models.OpIsNull, Value: "ignored"}))
	assert.Equal(t, []string{"item-3", "item-4"}, f.run(t, scope, FilterInput{FieldKey: "created_at", Operator: models.OpGreater, Value: "2024-03-01T11:30:00Z"}))
}

func TestExecute_FieldFilters(t *testing.T) {
	f := setupFixture(t)
	scope := QueryInput{ContentTypeID: &f.article.ID, OrderBy: "slug", OrderDirection: "asc"}
	rating, featured, summary := fieldID(f.fields["rating"]), fieldID(f.fields["featured"]), fieldID(f.fields["summary"])

	assert.Equal(t, []string{"item-3", "item-4"}, f.run(t, scope, FilterInput{FieldID: rating, Operator: models.OpGreater, Value: "4"}))
	assert.Equal(t, []string{"item-0", "item-1"}, f.run(t, scope, FilterInput{FieldID: rating, Operator: models.OpLess, Value: "3"}))
	assert.Equal(t, []string{"item-0", "item-2", "item-4"}, f.run(t, scope, FilterInput{FieldID: featured, Operator: models.OpEquals, Value: "true"}))
	assert.Equal(t, []string{"item-4"}, f.run(t, scope, FilterInput{FieldID: summary, Operator: models.OpIsNull}))
	assert.Equal(t, []string{"item-0", "item-1", "item-2", "item-3"}, f.run(t, scope, FilterInput{FieldID: summary, Operator: models.OpIsNotNull}))
	assert.Equal(t, []string{"item-0", "item-2", "item-3", "item-4"}, f.run(t, scope, FilterInput{FieldID: summary, Operator: models.OpNotEquals, Value: "summary 1"}))
	assert.Equal(t, []string{"item-4", "item-3", "item-2"}, f.run(t,
		QueryInput{ContentTypeID: &f.article.ID, OrderBy: "rating", OrderDirection: "desc", Limit: 3}))
}

func TestExecute_ConditionGroups(t *testing.T) {
	f := setupFixture(t)
	scope := QueryInput{ContentTypeID: &f.article.ID, OrderBy: "slug", OrderDirection: "asc"}

	got := f.run(t, scope,
		FilterInput{FieldKey: "slug", Operator: models.OpEquals, Value: "item-0", ConditionGroup: "pick"},
		FilterInput{FieldKey: "slug", Operator: models.OpEquals, Value: "item-1", ConditionGroup: "pick"},
		FilterInput{FieldKey: "slug", Operator: models.OpEquals, Value: "item-3", ConditionGroup: "pick"},
		FilterInput{FieldKey: "status", Operator: models.OpEquals, Value: "published", ConditionGroup: "state"},
	)
	assert.Equal(t, []string{"item-0", "item-3"}, got)

	got = f.run(t, scope,
		FilterInput{FieldKey: "status", Operator: models.OpEquals, Value: "published"},
		FilterInput{FieldKey: "title", Operator: models.OpContains, Value: "go"},
	)
	assert.Equal(t, []string{"item-0", "item-2"}, got)
}

func TestFilterValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	scope := QueryInput{ContentTypeID: &f.article.ID}

	cases := []FilterInput{
		{FieldID: fieldID(f.fields["rating"]), FieldKey: "title", Operator: models.OpEquals, Value: "x"},
		{Operator: models.OpEquals, Value: "x"},
		{FieldKey: "body", Operator: models.OpEquals, Value: "x"},
		{FieldKey: "title", Operator: "like", Value: "x"},
		{FieldKey: "title", Operator: models.OpContains},
		{FieldID: fieldID(f.fields["venue"]), Operator: models.OpEquals, Value: "x"},
	}
	for i, in := range cases {
		_, err := f.engine.CreateQuery(ctx, scope, []FilterInput{in})
		assert.True(t, common.IsValidation(err), "case %d: %v", i, err)
	}
	var n int64
	f.db.Model(&models.WidgetContentQuery{}).Count(&n)
	assert.Zero(t, n)

	_, err := f.engine.CreateQuery(ctx, QueryInput{OrderBy: "rating"}, nil)
	assert.True(t, common.IsValidation(err))
	_, err = f.engine.CreateQuery(ctx, QueryInput{ContentTypeID: &f.article.ID, OrderBy: "venue"}, nil)
	assert.True(t, common.IsValidation(err))

	q, err := f.engine.CreateQuery(ctx, scope, nil)
	require.NoError(t, err)
	filter, err := f.engine.AddFilter(ctx, q.ID, FilterInput{FieldKey: "status", Operator: models.OpIsNull, Value: "dropped"})
	require.NoError(t, err)
	assert.Empty(t, filter.Value)
	assert.Equal(t, 0, filter.Position)

	_, err = f.engine.UpdateQuery(ctx, q.ID, QueryInput{ContentTypeID: &f.event.ID})
	assert.NoError(t, err, "structural filters fit any content type")
}

func TestDeleteQuery_InUse(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	q, err := f.engine.CreateQuery(ctx, QueryInput{Name: "latest"}, []FilterInput{{FieldKey: "status", Operator: models.OpEquals, Value: "published"}})
	require.NoError(t, err)
	w := models.Widget{Slug: "latest", Name: "Latest", ContentQueryID: &q.ID}
	require.NoError(t, f.db.Create(&w).Error)

	assert.True(t, common.IsInUse(f.engine.DeleteQuery(ctx, q.ID)))
	require.NoError(t, f.db.Delete(&w).Error)
	require.NoError(t, f.engine.DeleteQuery(ctx, q.ID))

	var n int64
	f.db.Model(&models.WidgetContentQueryFilter{}).Count(&n)
	assert.Zero(t, n)
}

func TestCount_IgnoresPagination(t *testing.T) {
	f := setupFixture(t)
	q, err := f.engine.CreateQuery(context.Background(), QueryInput{ContentTypeID: &f.article.ID, Limit: 1}, nil)
	require.NoError(t, err)
	n, err := f.engine.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
