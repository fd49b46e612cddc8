package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/widgets"
)

func (a *AdminModule) listWidgets(c *gin.Context) {
	themeID, ok := optionalUint(c, "theme_id")
	if !ok {
		return
	}
	list, err := a.svc.Catalog.ListWidgets(c.Request.Context(), themeID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createWidget(c *gin.Context) {
	var in widgets.WidgetInput
	if !bindJSON(c, &in) {
		return
	}
	w, err := a.svc.Catalog.CreateWidget(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (a *AdminModule) getWidget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	w, err := a.svc.Catalog.GetWidget(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (a *AdminModule) updateWidget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in widgets.WidgetInput
	if !bindJSON(c, &in) {
		return
	}
	w, err := a.svc.Catalog.UpdateWidget(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (a *AdminModule) deleteWidget(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeleteWidget(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) widgetSchema(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	w, err := a.svc.Catalog.GetWidget(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	decls, err := a.svc.Catalog.Schema(ctx, w)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decls)
}

func (a *AdminModule) widgetSample(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	w, err := a.svc.Catalog.GetWidget(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	data, err := a.svc.Catalog.SampleData(ctx, w)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

func (a *AdminModule) setWidgetFieldValues(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var values map[string]any
	if !bindJSON(c, &values) {
		return
	}
	if err := a.svc.Catalog.SetFieldValues(c.Request.Context(), id, values); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) checkCompatibility(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctID, ok := idParam(c, "contentTypeId")
	if !ok {
		return
	}
	compat, err := a.svc.Catalog.CheckCompatibility(c.Request.Context(), id, ctID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, compat)
}

func (a *AdminModule) listAssociations(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := a.svc.Catalog.Associations(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type associateRequest struct {
	ContentTypeID uint `json:"content_type_id" binding:"required"`
	widgets.AssociationInput
}

func (a *AdminModule) associate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in associateRequest
	if !bindJSON(c, &in) {
		return
	}
	assoc, err := a.svc.Catalog.Associate(c.Request.Context(), id, in.ContentTypeID, in.AssociationInput)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, assoc)
}

// activateAssociation activates an association; exclusive=false keeps the
// other associations of the pair active.
func (a *AdminModule) activateAssociation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	exclusive := c.Query("exclusive") != "false"
	if err := a.svc.Catalog.SetActiveAssociation(c.Request.Context(), id, exclusive); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) deactivateAssociation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeactivateAssociation(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) deleteAssociation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeleteAssociation(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listWidgetTypes(c *gin.Context) {
	list, err := a.svc.Catalog.ListWidgetTypes(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createWidgetType(c *gin.Context) {
	var in widgets.WidgetTypeInput
	if !bindJSON(c, &in) {
		return
	}
	wt, err := a.svc.Catalog.CreateWidgetType(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, wt)
}

func (a *AdminModule) getWidgetType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	wt, err := a.svc.Catalog.GetWidgetType(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wt)
}

func (a *AdminModule) deleteWidgetType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeleteWidgetType(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) defineTypeField(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in widgets.TypeFieldInput
	if !bindJSON(c, &in) {
		return
	}
	f, err := a.svc.Catalog.DefineTypeField(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (a *AdminModule) deleteTypeField(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeleteTypeField(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listDisplaySettings(c *gin.Context) {
	list, err := a.svc.Catalog.ListDisplaySettings(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createDisplaySetting(c *gin.Context) {
	var in widgets.DisplaySettingInput
	if !bindJSON(c, &in) {
		return
	}
	ds, err := a.svc.Catalog.CreateDisplaySetting(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ds)
}

func (a *AdminModule) updateDisplaySetting(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in widgets.DisplaySettingInput
	if !bindJSON(c, &in) {
		return
	}
	ds, err := a.svc.Catalog.UpdateDisplaySetting(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (a *AdminModule) deleteDisplaySetting(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Catalog.DeleteDisplaySetting(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
