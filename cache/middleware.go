package cache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	htmlContentType = "text/html; charset=utf-8"
	skipStoreKey    = "cache.skip_store"
)

// SkipStore keeps the current response out of the cache. The response is
// still sent.
func SkipStore(c *gin.Context) {
	c.Set(skipStoreKey, true)
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// KeyFunc names the cache entry for a request. ok=false bypasses the cache.
type KeyFunc func(c *gin.Context) (pageSlug, themeSlug string, ok bool)

// Middleware serves GET requests from the store and stores successful HTML
// responses unless the handler called SkipStore. The X-Cache header reports
// HIT or MISS.
func Middleware(s *Store, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		pageSlug, themeSlug, ok := key(c)
		if !ok {
			c.Next()
			return
		}

		if cached, found := s.Get(pageSlug, themeSlug); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, htmlContentType, []byte(cached))
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")
		writer := &responseWriter{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = writer
		c.Next()

		if c.GetBool(skipStoreKey) {
			return
		}
		if c.Writer.Status() == http.StatusOK && c.Writer.Header().Get("Content-Type") == htmlContentType {
			if err := s.Put(pageSlug, themeSlug, writer.body.String()); err != nil {
				s.log.Warn().Err(err).Str("page", pageSlug).Msg("cache write failed")
			}
		}
	}
}
