package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tessera/cache"
	"tessera/common"
	"tessera/content"
	"tessera/database"
	"tessera/layout"
	"tessera/media"
	"tessera/pages"
	"tessera/query"
	"tessera/render"
	"tessera/schema"
	"tessera/widgets"
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

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	cache  *cache.Store
	cookie string
}

func setupTestRouter(t *testing.T) *testAPI {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	views := t.TempDir()
	file := filepath.Join(views, "widgets", "default.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(`<p>{{.settings.title}}</p>`), 0o644))

	lm := layout.NewManager(db, zerolog.Nop())
	catalog := widgets.NewCatalog(db, zerolog.Nop())
	store := content.NewStore(db, media.NewDiskStore(db, t.TempDir(), "/media", zerolog.Nop()), zerolog.Nop())
	engine := query.NewEngine(db, zerolog.Nop())
	svc := Services{
		Schema:   schema.NewRegistry(db, zerolog.Nop()),
		Content:  store,
		Layout:   lm,
		Composer: pages.NewComposer(db, catalog, zerolog.Nop()),
		Catalog:  catalog,
		Queries:  engine,
		Pipeline: render.NewPipeline(db, render.Services{Content: store, Catalog: catalog, Layout: lm, Queries: engine},
			render.NewTemplateRenderer(views), zerolog.Nop()),
		Cache: cache.NewStore(t.TempDir(), time.Minute, zerolog.Nop()),
	}

	router := gin.New()
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	NewAdminModule(svc, zerolog.Nop()).RegisterRoutes(router)
	return &testAPI{t: t, router: router, cache: svc.Cache}
}

func (api *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(api.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/admin/api"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if api.cookie != "" {
		req.Header.Set("Cookie", api.cookie)
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if c := w.Header().Get("Set-Cookie"); c != "" {
		api.cookie = strings.SplitN(c, ";", 2)[0]
	}
	return w
}

// create posts body and returns the id of the created row.
func (api *testAPI) create(path string, body any) uint {
	w := api.do(http.MethodPost, path, body)
	require.Equal(api.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	require.NoError(api.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// buildSite creates an active theme, a one-section template, a page and a
// text widget. It returns the page, its first section and the widget.
func (api *testAPI) buildSite() (pageID, sectionID, widgetID uint) {
	themeID := api.create("/themes", map[string]any{"slug": "alpha", "name": "Alpha"})
	require.Equal(api.t, http.StatusNoContent, api.do(http.MethodPost, fmt.Sprintf("/themes/%d/activate", themeID), nil).Code)
	tplID := api.create(fmt.Sprintf("/themes/%d/templates", themeID), map[string]any{"slug": "home", "name": "Home"})
	api.create(fmt.Sprintf("/templates/%d/sections", tplID), map[string]any{"slug": "main", "name": "Main"})
	widgetID = api.create("/widgets", map[string]any{
		"slug": "text", "name": "Text",
		"schema": []map[string]any{{"key": "title", "field_type": "text"}, {"key": "content", "field_type": "richText"}},
	})
	pageID = api.create("/pages", map[string]any{"template_id": tplID, "title": "Home", "slug": "home", "status": "published"})

	w := api.do(http.MethodGet, fmt.Sprintf("/pages/%d/layout", pageID), nil)
	require.Equal(api.t, http.StatusOK, w.Code)
	sections := decode[[]pages.SectionLayout](api.t, w)
	require.Len(api.t, sections, 1)
	return pageID, sections[0].ID, widgetID
}

func TestErrorMapping(t *testing.T) {
	api := setupTestRouter(t)

	w := api.do(http.MethodPost, "/content-types", map[string]any{"key": "Bad Key", "name": "Bad"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "key", body["field"])

	api.create("/content-types", map[string]any{"key": "article", "name": "Article"})
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/content-types", map[string]any{"key": "article", "name": "Again"}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/content-types/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/content-types/abc", nil).Code)
}

func TestContentItems(t *testing.T) {
	api := setupTestRouter(t)
	ctID := api.create("/content-types", map[string]any{"key": "article", "name": "Article"})
	api.create(fmt.Sprintf("/content-types/%d/fields", ctID), map[string]any{"slug": "heading", "name": "Heading", "field_type": "text", "is_required": true})

	w := api.do(http.MethodPost, "/items", map[string]any{"content_type_id": ctID, "title": "Hello", "slug": "hello"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	itemID := api.create("/items", map[string]any{
		"content_type_id": ctID, "title": "Hello", "slug": "hello", "status": "published",
		"values": map[string]any{"heading": "Big news"},
	})
	w = api.do(http.MethodGet, fmt.Sprintf("/items/%d", itemID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	item := decode[map[string]any](t, w)
	assert.Equal(t, "Big news", item["values"].(map[string]any)["heading"])

	w = api.do(http.MethodGet, fmt.Sprintf("/content-types/%d/items?status=published", ctID), nil)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, fmt.Sprintf("/content-types/%d", ctID), nil).Code)
}

func TestPageBuilderFlow(t *testing.T) {
	api := setupTestRouter(t)
	pageID, sectionID, widgetID := api.buildSite()

	w := api.do(http.MethodPost, fmt.Sprintf("/sections/%d/widgets", sectionID), map[string]any{"widget_id": widgetID, "settings": map[string]any{"title": "Hi"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placementID := decode[map[string]any](t, w)["id"].(float64)

	w = api.do(http.MethodPost, fmt.Sprintf("/sections/%d/widgets", sectionID), map[string]any{"widget_id": widgetID, "settings": map[string]any{"nope": 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(http.MethodGet, fmt.Sprintf("/pages/%d/layout", pageID), nil)
	sections := decode[[]map[string]any](t, w)
	require.Len(t, sections, 1)
	ws := sections[0]["widgets"].([]any)
	require.Len(t, ws, 1)
	assert.Equal(t, "Hi", ws[0].(map[string]any)["settings"].(map[string]any)["title"])

	w = api.do(http.MethodGet, fmt.Sprintf("/placements/%d/render?settings[title]=Override", int(placementID)), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "<p>Override</p>", decode[render.Payload](t, w).HTML)

	w = api.do(http.MethodGet, fmt.Sprintf("/pages/%d/render", pageID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode[map[string]any](t, w)["html"], "<p>Hi</p>")

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, fmt.Sprintf("/placements/%d", int(placementID)), nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, fmt.Sprintf("/placements/%d", int(placementID)), nil).Code)
}

func TestPreviewSession(t *testing.T) {
	api := setupTestRouter(t)
	_, sectionID, widgetID := api.buildSite()
	placementID := api.create(fmt.Sprintf("/sections/%d/widgets", sectionID), map[string]any{"widget_id": widgetID, "settings": map[string]any{"title": "Saved"}})

	require.Equal(t, http.StatusNoContent, api.do(http.MethodPut, fmt.Sprintf("/placements/%d/preview", placementID), map[string]any{"title": "Draft"}).Code)
	w := api.do(http.MethodGet, fmt.Sprintf("/placements/%d/render", placementID), nil)
	assert.Equal(t, "<p>Draft</p>", decode[render.Payload](t, w).HTML)

	other := &testAPI{t: t, router: api.router}
	w = other.do(http.MethodGet, fmt.Sprintf("/placements/%d/render", placementID), nil)
	assert.Equal(t, "<p>Saved</p>", decode[render.Payload](t, w).HTML)

	require.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, fmt.Sprintf("/placements/%d/preview", placementID), nil).Code)
	w = api.do(http.MethodGet, fmt.Sprintf("/placements/%d/render", placementID), nil)
	assert.Equal(t, "<p>Saved</p>", decode[render.Payload](t, w).HTML)
}

func TestRetemplateNeedsConfirm(t *testing.T) {
	api := setupTestRouter(t)
	pageID, _, _ := api.buildSite()
	w := api.do(http.MethodGet, "/themes", nil)
	themeID := uint(decode[[]map[string]any](t, w)[0]["id"].(float64))
	otherTpl := api.create(fmt.Sprintf("/themes/%d/templates", themeID), map[string]any{"slug": "landing", "name": "Landing"})

	path := fmt.Sprintf("/pages/%d/template", pageID)
	assert.Equal(t, http.StatusPreconditionRequired, api.do(http.MethodPut, path, map[string]any{"template_id": otherTpl}).Code)
	w = api.do(http.MethodPut, path+"?confirm=true", map[string]any{"template_id": otherTpl})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(otherTpl), decode[map[string]any](t, w)["template_id"])
}

func TestAssociations(t *testing.T) {
	api := setupTestRouter(t)
	_, _, widgetID := api.buildSite()
	article := api.create("/content-types", map[string]any{"key": "article", "name": "Article"})
	api.create(fmt.Sprintf("/content-types/%d/fields", article), map[string]any{"slug": "body", "name": "Body", "field_type": "richText"})
	counter := api.create("/content-types", map[string]any{"key": "counter", "name": "Counter"})
	api.create(fmt.Sprintf("/content-types/%d/fields", counter), map[string]any{"slug": "number", "name": "Number", "field_type": "number"})

	w := api.do(http.MethodGet, fmt.Sprintf("/widgets/%d/compatibility/%d", widgetID, article), nil)
	compat := decode[widgets.Compatibility](t, w)
	assert.True(t, compat.Compatible)
	assert.Equal(t, map[string]string{"body": "content"}, compat.Mappings)

	w = api.do(http.MethodPost, fmt.Sprintf("/widgets/%d/associations", widgetID), map[string]any{"content_type_id": counter})
	assert.Equal(t, http.StatusConflict, w.Code)
	api.create(fmt.Sprintf("/widgets/%d/associations", widgetID), map[string]any{"content_type_id": article})

	itemID := api.create("/items", map[string]any{"content_type_id": article, "title": "Post", "slug": "post"})
	w = api.do(http.MethodGet, fmt.Sprintf("/items/%d/compatible-widgets", itemID), nil)
	list := decode[[]widgets.CompatibleWidget](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "text", list[0].Widget.Slug)
}

func TestQueries(t *testing.T) {
	api := setupTestRouter(t)
	ct := api.create("/content-types", map[string]any{"key": "article", "name": "Article"})
	for i := 0; i < 3; i++ {
		api.create("/items", map[string]any{"content_type_id": ct, "title": fmt.Sprintf("Post %d", i), "slug": fmt.Sprintf("post-%d", i), "status": "published"})
	}
	w := api.do(http.MethodPost, "/queries", map[string]any{"content_type_id": ct, "limit": 2, "filters": []map[string]any{{"field_key": "status", "operator": "bogus"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	q := api.create("/queries", map[string]any{
		"content_type_id": ct, "limit": 2, "order_by": "title",
		"filters": []map[string]any{{"field_key": "status", "operator": "equals", "value": "published"}},
	})
	w = api.do(http.MethodGet, fmt.Sprintf("/queries/%d/items", q), nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Items []map[string]any `json:"items"`
		Total int64            `json:"total"`
	}](t, w)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, int64(3), out.Total)
	assert.Equal(t, "post-0", out.Items[0]["slug"])
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	api := setupTestRouter(t)
	pageID, sectionID, widgetID := api.buildSite()
	require.NoError(t, api.cache.Put("home", "alpha", "old"))
	require.NoError(t, api.cache.Put("about", "alpha", "old"))

	w := api.do(http.MethodPut, fmt.Sprintf("/pages/%d", pageID), map[string]any{"title": "Home!", "slug": "home", "status": "published"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, ok := api.cache.Get("home", "alpha")
	assert.False(t, ok)
	_, ok = api.cache.Get("about", "alpha")
	assert.True(t, ok)

	api.create(fmt.Sprintf("/sections/%d/widgets", sectionID), map[string]any{"widget_id": widgetID})
	_, ok = api.cache.Get("about", "alpha")
	assert.False(t, ok)

	require.NoError(t, api.cache.Put("home", "alpha", "old"))
	api.do(http.MethodPost, "/content-types", map[string]any{"key": "Bad Key", "name": "x"})
	_, ok = api.cache.Get("home", "alpha")
	assert.True(t, ok)
}

func TestFailHelper(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := NewAdminModule(Services{}, zerolog.Nop())
	cases := []struct {
		err  error
		code int
	}{
		{common.Invalid("slug", "bad"), http.StatusUnprocessableEntity},
		{&common.ConflictError{Resource: "page", Field: "slug", Value: "x"}, http.StatusConflict},
		{&common.InUseError{Resource: "query", Blocker: "widgets", Count: 2}, http.StatusConflict},
		{&common.IncompatibleBindingError{Message: "no"}, http.StatusConflict},
		{&common.StaleReferenceError{Resource: "widget", ID: 3}, http.StatusConflict},
		{&common.ViewNotFoundError{Widget: "x"}, http.StatusUnprocessableEntity},
		{common.NotFound("page", 1), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		a.fail(c, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}
