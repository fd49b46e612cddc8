// Package admin is the JSON API behind the page builder.
package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tessera/cache"
	"tessera/common"
	"tessera/content"
	"tessera/layout"
	"tessera/pages"
	"tessera/query"
	"tessera/render"
	"tessera/schema"
	"tessera/widgets"
)

// Services are the domain services the API drives. Cache may be nil.
type Services struct {
	Schema   *schema.Registry
	Content  *content.Store
	Layout   *layout.Manager
	Composer *pages.Composer
	Catalog  *widgets.Catalog
	Queries  *query.Engine
	Pipeline *render.Pipeline
	Cache    *cache.Store
}

type AdminModule struct {
	svc Services
	log zerolog.Logger
}

func NewAdminModule(svc Services, log zerolog.Logger) *AdminModule {
	return &AdminModule{svc: svc, log: log.With().Str("module", "admin").Logger()}
}

// RegisterRoutes mounts the API under /admin/api. Preview routes need the
// sessions middleware on the router.
func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/admin/api")
	api.Use(a.invalidateOnWrite)

	api.GET("/content-types", a.listContentTypes)
	api.POST("/content-types", a.createContentType)
	api.GET("/content-types/:id", a.getContentType)
	api.PUT("/content-types/:id", a.updateContentType)
	api.DELETE("/content-types/:id", a.deleteContentType)
	api.GET("/content-types/:id/fields", a.listFields)
	api.POST("/content-types/:id/fields", a.defineField)
	api.PUT("/content-types/:id/fields/order", a.reorderFields)
	api.PUT("/fields/:id", a.updateField)
	api.PUT("/fields/:id/options", a.setFieldOptions)
	api.DELETE("/fields/:id", a.deleteField)
	api.GET("/content-types/:id/items", a.listItems)
	api.POST("/items", a.createItem)
	api.GET("/items/:id", a.getItem)
	api.PUT("/items/:id", a.updateItem)
	api.DELETE("/items/:id", a.deleteItem)
	api.POST("/items/:id/media/:field", a.attachMedia)
	api.GET("/items/:id/compatible-widgets", a.compatibleWidgets)

	api.GET("/themes", a.listThemes)
	api.POST("/themes", a.createTheme)
	api.GET("/themes/active", a.activeTheme)
	api.POST("/themes/:id/activate", a.activateTheme)
	api.DELETE("/themes/:id", a.deleteTheme)
	api.GET("/themes/:id/templates", a.listTemplates)
	api.POST("/themes/:id/templates", a.createTemplate)
	api.GET("/templates/:id", a.getTemplate)
	api.POST("/templates/:id/default", a.setDefaultTemplate)
	api.DELETE("/templates/:id", a.deleteTemplate)
	api.POST("/templates/:id/sections", a.addTemplateSection)
	api.PUT("/templates/:id/sections/order", a.reorderTemplateSections)
	api.PUT("/template-sections/:id", a.updateTemplateSection)
	api.DELETE("/template-sections/:id", a.deleteTemplateSection)

	api.GET("/pages", a.listPages)
	api.POST("/pages", a.createPage)
	api.GET("/pages/:id", a.getPage)
	api.PUT("/pages/:id", a.updatePage)
	api.DELETE("/pages/:id", a.deletePage)
	api.PUT("/pages/:id/template", a.retemplatePage)
	api.GET("/pages/:id/layout", a.pageLayout)
	api.GET("/pages/:id/render", a.renderPage)
	api.POST("/pages/:id/sections", a.addPageSection)
	api.PUT("/pages/:id/sections/order", a.reorderPageSections)
	api.PUT("/sections/:id", a.updatePageSection)
	api.DELETE("/sections/:id", a.deletePageSection)
	api.GET("/sections/:id/widgets", a.listPlacements)
	api.POST("/sections/:id/widgets", a.placeWidget)
	api.PUT("/sections/:id/widgets/order", a.reorderPlacements)
	api.PUT("/placements/:id/settings", a.updatePlacementSettings)
	api.PUT("/placements/:id/item", a.bindPlacementItem)
	api.PUT("/placements/:id/geometry", a.repositionPlacement)
	api.DELETE("/placements/:id", a.removePlacement)
	api.GET("/placements/:id/render", a.renderPlacement)
	api.PUT("/placements/:id/preview", a.setPreview)
	api.DELETE("/placements/:id/preview", a.clearPreview)

	api.GET("/widgets", a.listWidgets)
	api.POST("/widgets", a.createWidget)
	api.GET("/widgets/:id", a.getWidget)
	api.PUT("/widgets/:id", a.updateWidget)
	api.DELETE("/widgets/:id", a.deleteWidget)
	api.GET("/widgets/:id/schema", a.widgetSchema)
	api.GET("/widgets/:id/sample", a.widgetSample)
	api.PUT("/widgets/:id/field-values", a.setWidgetFieldValues)
	api.GET("/widgets/:id/compatibility/:contentTypeId", a.checkCompatibility)
	api.GET("/widgets/:id/associations", a.listAssociations)
	api.POST("/widgets/:id/associations", a.associate)
	api.POST("/associations/:id/activate", a.activateAssociation)
	api.POST("/associations/:id/deactivate", a.deactivateAssociation)
	api.DELETE("/associations/:id", a.deleteAssociation)
	api.GET("/widget-types", a.listWidgetTypes)
	api.POST("/widget-types", a.createWidgetType)
	api.GET("/widget-types/:id", a.getWidgetType)
	api.DELETE("/widget-types/:id", a.deleteWidgetType)
	api.POST("/widget-types/:id/fields", a.defineTypeField)
	api.DELETE("/widget-type-fields/:id", a.deleteTypeField)
	api.GET("/display-settings", a.listDisplaySettings)
	api.POST("/display-settings", a.createDisplaySetting)
	api.PUT("/display-settings/:id", a.updateDisplaySetting)
	api.DELETE("/display-settings/:id", a.deleteDisplaySetting)

	api.GET("/queries", a.listQueries)
	api.POST("/queries", a.createQuery)
	api.GET("/queries/:id", a.getQuery)
	api.PUT("/queries/:id", a.updateQuery)
	api.DELETE("/queries/:id", a.deleteQuery)
	api.POST("/queries/:id/filters", a.addFilter)
	api.DELETE("/filters/:id", a.removeFilter)
	api.GET("/queries/:id/items", a.queryItems)
}

// fail writes err as JSON with the status of its kind.
func (a *AdminModule) fail(c *gin.Context, err error) {
	var (
		invalid *common.ValidationError
		noView  *common.ViewNotFoundError
		stale   *common.StaleReferenceError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalid.Message, "field": invalid.Field})
	case errors.As(err, &noView):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "field": "view_path"})
	case common.IsConflict(err), common.IsInUse(err), common.IsIncompatible(err), errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		a.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
	c.Abort()
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func optionalUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	v := uint(id)
	return &v, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

const cachePagesKey = "cache_pages"

// touchPages limits the cache invalidation of the current request to the
// given page slugs.
func touchPages(c *gin.Context, slugs ...string) {
	prev, _ := c.Get(cachePagesKey)
	list, _ := prev.([]string)
	c.Set(cachePagesKey, append(list, slugs...))
}

// invalidateOnWrite drops cached pages after a successful write: the pages
// the handler touched, or the whole cache when it named none.
func (a *AdminModule) invalidateOnWrite(c *gin.Context) {
	c.Next()
	if a.svc.Cache == nil || c.Request.Method == http.MethodGet || c.Writer.Status() >= http.StatusBadRequest {
		return
	}
	var err error
	if v, ok := c.Get(cachePagesKey); ok {
		for _, slug := range v.([]string) {
			if err = a.svc.Cache.InvalidatePage(slug); err != nil {
				break
			}
		}
	} else {
		err = a.svc.Cache.InvalidateAll()
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("cache invalidation failed")
	}
}
