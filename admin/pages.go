package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"tessera/common"
	"tessera/models"
	"tessera/pages"
	"tessera/render"
)

func (a *AdminModule) listPages(c *gin.Context) {
	status := models.PageStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		a.fail(c, common.Invalid("status", "unknown status %q", status))
		return
	}
	list, err := a.svc.Composer.ListPages(c.Request.Context(), status)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createPage(c *gin.Context) {
	var in pages.PageInput
	if !bindJSON(c, &in) {
		return
	}
	page, err := a.svc.Composer.CreatePage(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c, page.Slug)
	c.JSON(http.StatusCreated, page)
}

func (a *AdminModule) getPage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, err := a.svc.Composer.GetPage(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (a *AdminModule) updatePage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in pages.PageInput
	if !bindJSON(c, &in) {
		return
	}
	ctx := c.Request.Context()
	old, err := a.svc.Composer.GetPage(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	page, err := a.svc.Composer.UpdatePage(ctx, id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c, old.Slug, page.Slug)
	c.JSON(http.StatusOK, page)
}

func (a *AdminModule) deletePage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	page, err := a.svc.Composer.GetPage(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := a.svc.Composer.DeletePage(ctx, id); err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c, page.Slug)
	c.Status(http.StatusNoContent)
}

type retemplateRequest struct {
	TemplateID uint `json:"template_id" binding:"required"`
}

// retemplatePage discards every section and placement of the page, so the
// client has to pass confirm=true.
func (a *AdminModule) retemplatePage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in retemplateRequest
	if !bindJSON(c, &in) {
		return
	}
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "changing the template deletes all sections and widgets of the page; repeat with confirm=true"})
		return
	}
	page, err := a.svc.Composer.Retemplate(c.Request.Context(), id, in.TemplateID)
	if err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c, page.Slug)
	c.JSON(http.StatusOK, page)
}

func (a *AdminModule) pageLayout(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sections, err := a.svc.Composer.Layout(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sections)
}

// renderPage renders a page of any status with the editor's preview data.
func (a *AdminModule) renderPage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	page, err := a.svc.Composer.GetPage(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	preview := map[uint]map[string]any{}
	for _, ps := range page.Sections {
		for _, pw := range ps.Widgets {
			if data := previewData(c, pw.ID); data != nil {
				preview[pw.ID] = data
			}
		}
	}
	doc, err := a.svc.Pipeline.RenderPage(ctx, page, render.PageOptions{Preview: preview})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type sectionRequest struct {
	TemplateSectionID uint `json:"template_section_id" binding:"required"`
}

func (a *AdminModule) addPageSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in sectionRequest
	if !bindJSON(c, &in) {
		return
	}
	ps, err := a.svc.Composer.AddSection(c.Request.Context(), id, in.TemplateSectionID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ps)
}

func (a *AdminModule) reorderPageSections(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in idList
	if !bindJSON(c, &in) {
		return
	}
	if err := a.svc.Composer.ReorderSections(c.Request.Context(), id, in.IDs); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) updatePageSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in pages.SectionUpdate
	if !bindJSON(c, &in) {
		return
	}
	ps, err := a.svc.Composer.UpdateSection(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ps)
}

func (a *AdminModule) deletePageSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Composer.DeleteSection(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listPlacements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := a.svc.Composer.Placements(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) placeWidget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in pages.PlacementInput
	if !bindJSON(c, &in) {
		return
	}
	pw, err := a.svc.Composer.PlaceWidget(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, pw)
}

func (a *AdminModule) reorderPlacements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var order []pages.WidgetOrder
	if !bindJSON(c, &order) {
		return
	}
	if err := a.svc.Composer.ReorderWidgets(c.Request.Context(), id, order); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) updatePlacementSettings(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var settings map[string]any
	if !bindJSON(c, &settings) {
		return
	}
	pw, err := a.svc.Composer.UpdateWidgetSettings(c.Request.Context(), id, settings)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pw)
}

type bindRequest struct {
	ContentItemID *uint `json:"content_item_id"`
}

func (a *AdminModule) bindPlacementItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in bindRequest
	if !bindJSON(c, &in) {
		return
	}
	pw, err := a.svc.Composer.BindItem(c.Request.Context(), id, in.ContentItemID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pw)
}

type repositionRequest struct {
	pages.Geometry
	ColumnPosition string `json:"column_position"`
}

func (a *AdminModule) repositionPlacement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in repositionRequest
	if !bindJSON(c, &in) {
		return
	}
	pw, err := a.svc.Composer.RepositionWidget(c.Request.Context(), id, in.Geometry, in.ColumnPosition)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pw)
}

func (a *AdminModule) removePlacement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Composer.RemoveWidget(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// renderPlacement renders one placement with the session's preview data.
// Query parameters of the form settings[key]=value override settings.
func (a *AdminModule) renderPlacement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	pw, err := a.svc.Composer.GetPlacement(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	var overrides map[string]any
	if qs := c.QueryMap("settings"); len(qs) > 0 {
		overrides = make(map[string]any, len(qs))
		for k, v := range qs {
			overrides[k] = v
		}
	}
	payload, err := a.svc.Pipeline.RenderPlacement(ctx, pw, overrides, previewData(c, id))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func previewKey(placementID uint) string {
	return fmt.Sprintf("preview_%d", placementID)
}

// previewData reads the editor's unsaved settings for a placement from the
// session.
func previewData(c *gin.Context, placementID uint) map[string]any {
	raw, ok := sessions.Default(c).Get(previewKey(placementID)).(string)
	if !ok {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return data
}

// setPreview keeps unsaved settings in the editor session. They apply to
// renders made through this API only.
func (a *AdminModule) setPreview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var data map[string]any
	if !bindJSON(c, &data) {
		return
	}
	if _, err := a.svc.Composer.GetPlacement(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		a.fail(c, err)
		return
	}
	session := sessions.Default(c)
	session.Set(previewKey(id), string(raw))
	if err := session.Save(); err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c)
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) clearPreview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	session := sessions.Default(c)
	session.Delete(previewKey(id))
	if err := session.Save(); err != nil {
		a.fail(c, err)
		return
	}
	touchPages(c)
	c.Status(http.StatusNoContent)
}
