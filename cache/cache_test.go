package cache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_DependsOnThemeAndPage(t *testing.T) {
	assert.Len(t, Key("home", "alpha"), 16)
	assert.Equal(t, Key("home", "alpha"), Key("home", "alpha"))
	assert.NotEqual(t, Key("home", "alpha"), Key("home", "beta"))
	assert.NotEqual(t, Key("home", "alpha"), Key("about", "alpha"))
}

func TestStore_PutGetInvalidate(t *testing.T) {
	s := NewStore(t.TempDir(), time.Minute, zerolog.Nop())

	_, ok := s.Get("home", "alpha")
	assert.False(t, ok)

	require.NoError(t, s.Put("home", "alpha", "<p>a</p>"))
	require.NoError(t, s.Put("home", "beta", "<p>b</p>"))
	require.NoError(t, s.Put("about", "", "<p>about</p>"))

	html, ok := s.Get("home", "alpha")
	assert.True(t, ok)
	assert.Equal(t, "<p>a</p>", html)
	html, ok = s.Get("about", "")
	assert.True(t, ok)
	assert.Equal(t, "<p>about</p>", html)

	require.NoError(t, s.InvalidatePage("home"))
	_, ok = s.Get("home", "alpha")
	assert.False(t, ok)
	_, ok = s.Get("home", "beta")
	assert.False(t, ok)
	_, ok = s.Get("about", "")
	assert.True(t, ok)

	require.NoError(t, s.InvalidateAll())
	_, ok = s.Get("about", "")
	assert.False(t, ok)
}

func TestStore_ExpiryAndPrune(t *testing.T) {
	s := NewStore(t.TempDir(), time.Minute, zerolog.Nop())
	require.NoError(t, s.Put("old", "alpha", "x"))
	require.NoError(t, s.Put("fresh", "alpha", "y"))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(s.Path("old", "alpha"), past, past))

	_, ok := s.Get("old", "alpha")
	assert.False(t, ok)

	require.NoError(t, s.Prune())
	_, err := os.Stat(s.Path("old", "alpha"))
	assert.True(t, os.IsNotExist(err))
	_, ok = s.Get("fresh", "alpha")
	assert.True(t, ok)

	empty := NewStore(filepath.Join(t.TempDir(), "missing"), time.Minute, zerolog.Nop())
	assert.NoError(t, empty.Prune())
}

func TestMiddleware_HitAndMiss(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewStore(t.TempDir(), time.Minute, zerolog.Nop())
	calls := 0

	router := gin.New()
	key := func(c *gin.Context) (string, string, bool) { return c.Param("slug"), "alpha", c.Param("slug") != "skip" }
	router.GET("/:slug", Middleware(s, key), func(c *gin.Context) {
		calls++
		if c.Param("slug") == "partial" {
			SkipStore(c)
		}
		if c.Param("slug") == "missing" {
			c.String(http.StatusNotFound, "nope")
			return
		}
		c.Data(http.StatusOK, htmlContentType, []byte("<p>"+c.Param("slug")+"</p>"))
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		return w
	}

	w := get("/home")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "<p>home</p>", w.Body.String())

	w = get("/home")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "<p>home</p>", w.Body.String())
	assert.Equal(t, 1, calls)

	get("/missing")
	get("/missing")
	assert.Equal(t, 3, calls)

	w = get("/skip")
	assert.Empty(t, w.Header().Get("X-Cache"))

	get("/partial")
	w = get("/partial")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "<p>partial</p>", w.Body.String())
	_, found := s.Get("partial", "alpha")
	assert.False(t, found)
}
