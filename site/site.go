// Package site serves published pages to visitors.
package site

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tessera/cache"
	"tessera/common"
	"tessera/layout"
	"tessera/models"
	"tessera/pages"
	"tessera/render"
)

// HomeSlug is the page served at "/".
const HomeSlug = "home"

type SiteModule struct {
	composer *pages.Composer
	pipeline *render.Pipeline
	layout   *layout.Manager
	cache    *cache.Store
	log      zerolog.Logger
}

// NewSiteModule wires the public routes. A nil cache disables page caching.
func NewSiteModule(composer *pages.Composer, pipeline *render.Pipeline, lm *layout.Manager, store *cache.Store, log zerolog.Logger) *SiteModule {
	return &SiteModule{composer: composer, pipeline: pipeline, layout: lm, cache: store, log: log.With().Str("module", "site").Logger()}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	handlers := []gin.HandlerFunc{s.page}
	if s.cache != nil {
		handlers = append([]gin.HandlerFunc{cache.Middleware(s.cache, s.cacheKey)}, handlers...)
	}
	router.GET("/sitemap.xml", s.sitemap)
	router.GET("/", handlers...)
	router.GET("/:slug", handlers...)
}

func pageSlug(c *gin.Context) string {
	if slug := c.Param("slug"); slug != "" {
		return slug
	}
	return HomeSlug
}

func (s *SiteModule) cacheKey(c *gin.Context) (string, string, bool) {
	theme, err := s.layout.ActiveTheme(c.Request.Context())
	switch {
	case err == nil:
		return pageSlug(c), theme.Slug, true
	case errors.Is(err, common.ErrNotFound):
		return pageSlug(c), "", true
	}
	return "", "", false
}

func (s *SiteModule) page(c *gin.Context) {
	ctx := c.Request.Context()
	slug := pageSlug(c)
	page, err := s.composer.GetPageBySlug(ctx, slug)
	if errors.Is(err, common.ErrNotFound) || (err == nil && page.Status != models.PagePublished) {
		c.String(http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("page", slug).Msg("load page failed")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	doc, err := s.pipeline.RenderPage(ctx, page, render.PageOptions{})
	if err != nil {
		s.log.Error().Err(err).Str("page", slug).Msg("render page failed")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	if len(doc.Errors) > 0 {
		s.log.Warn().Str("page", slug).Int("broken_slots", len(doc.Errors)).Msg("page rendered with broken widgets")
		cache.SkipStore(c)
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

func (s *SiteModule) sitemap(c *gin.Context) {
	list, err := s.composer.ListPages(c.Request.Context(), models.PagePublished)
	if err != nil {
		s.log.Error().Err(err).Msg("list pages failed")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	domain := scheme + "://" + c.Request.Host

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")
	for _, p := range list {
		loc := domain + "/" + p.Slug
		priority := "0.6"
		if p.Slug == HomeSlug {
			loc, priority = domain+"/", "1.0"
		}
		sitemap.WriteString("  <url>\n")
		sitemap.WriteString("    <loc>" + loc + "</loc>\n")
		sitemap.WriteString("    <lastmod>" + p.UpdatedAt.Format(time.RFC3339) + "</lastmod>\n")
		sitemap.WriteString("    <priority>" + priority + "</priority>\n")
		sitemap.WriteString("  </url>\n")
	}
	sitemap.WriteString("</urlset>\n")

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, sitemap.String())
}
