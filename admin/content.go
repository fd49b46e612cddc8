package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/common"
	"tessera/content"
	"tessera/media"
	"tessera/models"
	"tessera/schema"
)

func (a *AdminModule) listContentTypes(c *gin.Context) {
	list, err := a.svc.Schema.ListContentTypes(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *AdminModule) createContentType(c *gin.Context) {
	var in schema.ContentTypeInput
	if !bindJSON(c, &in) {
		return
	}
	ct, err := a.svc.Schema.CreateContentType(c.Request.Context(), in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ct)
}

func (a *AdminModule) getContentType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ct, err := a.svc.Schema.GetContentType(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

type contentTypeUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (a *AdminModule) updateContentType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in contentTypeUpdate
	if !bindJSON(c, &in) {
		return
	}
	active := in.IsActive == nil || *in.IsActive
	ct, err := a.svc.Schema.UpdateContentType(c.Request.Context(), id, in.Name, in.Description, active)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

func (a *AdminModule) deleteContentType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Schema.DeleteContentType(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listFields(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fields, err := a.svc.Schema.Fields(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (a *AdminModule) defineField(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in schema.FieldInput
	if !bindJSON(c, &in) {
		return
	}
	field, err := a.svc.Schema.DefineField(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, field)
}

type idList struct {
	IDs []uint `json:"ids"`
}

func (a *AdminModule) reorderFields(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in idList
	if !bindJSON(c, &in) {
		return
	}
	if err := a.svc.Schema.ReorderFields(c.Request.Context(), id, in.IDs); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) updateField(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in schema.FieldInput
	if !bindJSON(c, &in) {
		return
	}
	field, err := a.svc.Schema.UpdateField(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, field)
}

func (a *AdminModule) setFieldOptions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var opts []schema.OptionInput
	if !bindJSON(c, &opts) {
		return
	}
	if err := a.svc.Schema.SetFieldOptions(c.Request.Context(), id, opts); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) deleteField(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Schema.DeleteField(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) listItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	status := models.ItemStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		a.fail(c, common.Invalid("status", "unknown status %q", status))
		return
	}
	items, err := a.svc.Content.ListItems(c.Request.Context(), id, status)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

type itemRequest struct {
	content.ItemInput
	Values map[string]any `json:"values"`
}

type itemResponse struct {
	*models.ContentItem
	Values map[string]any `json:"values"`
}

func (a *AdminModule) itemResponse(c *gin.Context, item *models.ContentItem) (itemResponse, error) {
	typed, err := a.svc.Content.TypedValues(c.Request.Context(), item)
	if err != nil {
		return itemResponse{}, err
	}
	values := make(map[string]any, len(typed))
	for slug, v := range typed {
		values[slug] = v.Interface()
	}
	return itemResponse{ContentItem: item, Values: values}, nil
}

func (a *AdminModule) createItem(c *gin.Context) {
	var in itemRequest
	if !bindJSON(c, &in) {
		return
	}
	item, err := a.svc.Content.CreateItem(c.Request.Context(), in.ItemInput, in.Values)
	if err != nil {
		a.fail(c, err)
		return
	}
	out, err := a.itemResponse(c, item)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (a *AdminModule) getItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := a.svc.Content.GetItem(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	out, err := a.itemResponse(c, item)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *AdminModule) updateItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in itemRequest
	if !bindJSON(c, &in) {
		return
	}
	item, err := a.svc.Content.UpdateItem(c.Request.Context(), id, in.ItemInput, in.Values)
	if err != nil {
		a.fail(c, err)
		return
	}
	out, err := a.itemResponse(c, item)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *AdminModule) deleteItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Content.DeleteItem(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// attachMedia stores the multipart "file" on a media field of an item.
func (a *AdminModule) attachMedia(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	item, err := a.svc.Content.GetItem(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	fields, err := a.svc.Schema.Fields(ctx, item.ContentTypeID)
	if err != nil {
		a.fail(c, err)
		return
	}
	var field *models.ContentTypeField
	for i := range fields {
		if fields[i].Slug == c.Param("field") {
			field = &fields[i]
		}
	}
	if field == nil {
		a.fail(c, common.NotFound("field", c.Param("field")))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		a.fail(c, err)
		return
	}
	defer f.Close()

	ref, err := a.svc.Content.AttachMedia(ctx, item, field, media.File{Name: fh.Filename, Reader: f})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

// compatibleWidgets lists the widgets of the active theme and the global
// widgets that can display an item.
func (a *AdminModule) compatibleWidgets(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	item, err := a.svc.Content.GetItem(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	var themeID *uint
	if theme, err := a.svc.Layout.ActiveTheme(ctx); err == nil {
		themeID = &theme.ID
	}
	list, err := a.svc.Catalog.CompatibleWidgets(ctx, themeID, item.ContentTypeID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
