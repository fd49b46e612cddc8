package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tessera/query"
)

func (a *AdminModule) listQueries(c *gin.Context) {
	list, err := a.svc.Queries.ListQueries(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type queryRequest struct {
	query.QueryInput
	Filters []query.FilterInput `json:"filters"`
}

func (a *AdminModule) createQuery(c *gin.Context) {
	var in queryRequest
	if !bindJSON(c, &in) {
		return
	}
	q, err := a.svc.Queries.CreateQuery(c.Request.Context(), in.QueryInput, in.Filters)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (a *AdminModule) getQuery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	q, err := a.svc.Queries.GetQuery(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (a *AdminModule) updateQuery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in query.QueryInput
	if !bindJSON(c, &in) {
		return
	}
	q, err := a.svc.Queries.UpdateQuery(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (a *AdminModule) deleteQuery(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Queries.DeleteQuery(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *AdminModule) addFilter(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in query.FilterInput
	if !bindJSON(c, &in) {
		return
	}
	f, err := a.svc.Queries.AddFilter(c.Request.Context(), id, in)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (a *AdminModule) removeFilter(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Queries.RemoveFilter(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryItems runs a stored query. total ignores the query's limit and
// offset.
func (a *AdminModule) queryItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	q, err := a.svc.Queries.GetQuery(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	items, err := a.svc.Queries.Execute(ctx, q)
	if err != nil {
		a.fail(c, err)
		return
	}
	total, err := a.svc.Queries.Count(ctx, q)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}
