package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/layout"
)

func (a *AdminModule) listThemes(c *gin.Context) {
	list, err := a.svc.Layout.ListThemes(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createTheme(c *gin.Context) {
	var in layout.ThemeInput
	if !bindJSON(c, &in) {
		return
	}
	theme, err := a.svc.Layout.CreateTheme(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, theme)
}

func (a *AdminModule) activeTheme(c *gin.Context) {
	theme, err := a.svc.Layout.ActiveTheme(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, theme)
}

func (a *AdminModule) activateTheme(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Layout.ActivateTheme(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) deleteTheme(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Layout.DeleteTheme(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listTemplates(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := a.svc.Layout.ListTemplates(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in layout.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	tpl, err := a.svc.Layout.CreateTemplate(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (a *AdminModule) getTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	tpl, err := a.svc.Layout.GetTemplate(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (a *AdminModule) setDefaultTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Layout.SetDefaultTemplate(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) deleteTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Layout.DeleteTemplate(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) addTemplateSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in layout.SectionInput
	if !bindJSON(c, &in) {
		return
	}
	ts, err := a.svc.Layout.AddSection(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ts)
}

func (a *AdminModule) reorderTemplateSections(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in idList
	if !bindJSON(c, &in) {
		return
	}
	if err := a.svc.Layout.ReorderSections(c.Request.Context(), id, in.IDs); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) updateTemplateSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in layout.SectionInput
	if !bindJSON(c, &in) {
		return
	}
	ts, err := a.svc.Layout.UpdateSection(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}

func (a *AdminModule) deleteTemplateSection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Layout.DeleteSection(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
