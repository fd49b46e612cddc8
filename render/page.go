package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"tessera/common"
	"tessera/layout"
	"tessera/models"
	"tessera/pages"
)

// PageView is the optional theme view that wraps a composed page.
const PageView = "layouts/page"

type Slot struct {
	PlacementID uint          `json:"placement_id"`
	WidgetID    uint          `json:"widget_id"`
	HTML        template.HTML `json:"html"`
	Failed      bool          `json:"failed,omitempty"`
}

type Column struct {
	GridID string `json:"grid_id"`
	Span   int    `json:"span"`
	Slots  []Slot `json:"slots"`
}

type Section struct {
	ID          uint               `json:"id"`
	GridID      string             `json:"grid_id"`
	SectionType models.SectionType `json:"section_type"`
	Name        string             `json:"name"`
	Columns     []Column           `json:"columns"`
}

type SlotError struct {
	PlacementID uint   `json:"placement_id"`
	WidgetID    uint   `json:"widget_id"`
	Error       string `json:"error"`
}

// Document is a rendered page.
type Document struct {
	Page     *models.Page  `json:"-"`
	Theme    *models.Theme `json:"-"`
	Sections []Section     `json:"sections"`
	CSS      []string      `json:"css"`
	JS       []string      `json:"js"`
	HTML     string        `json:"html"`
	Errors   []SlotError   `json:"errors,omitempty"`
}

// PageOptions carries preview data per placement id.
type PageOptions struct {
	Preview map[uint]map[string]any
}

var defaultPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Page.Title}}</title>
{{range .CSS}}<link rel="stylesheet" href="{{.}}">
{{end}}</head>
<body>
{{range .Sections}}<section class="section section-{{.SectionType}}" data-grid-id="{{.GridID}}">
{{range .Columns}}<div class="column span-{{.Span}}" data-grid-id="{{.GridID}}">
{{range .Slots}}<div class="widget" data-placement-id="{{.PlacementID}}">{{.HTML}}</div>
{{end}}</div>
{{end}}</section>
{{end}}{{range .JS}}<script src="{{.}}"></script>
{{end}}</body>
</html>
`))

// RenderPage renders the active sections of a page loaded with its
// sections and placements. A placement that fails to render is replaced by
// an HTML comment and reported in Document.Errors; the rest of the page
// still renders.
func (p *Pipeline) RenderPage(ctx context.Context, page *models.Page, opts PageOptions) (*Document, error) {
	doc := &Document{Page: page}
	theme, err := p.svc.Layout.ActiveTheme(ctx)
	switch {
	case err == nil:
		doc.Theme = theme
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	var assets []models.AssetList
	if doc.Theme != nil && p.svc.Assets != nil {
		ta, err := p.svc.Assets.ThemeAssets(doc.Theme)
		if err != nil {
			return nil, err
		}
		assets = append(assets, ta)
	}

	for i := range page.Sections {
		ps := &page.Sections[i]
		if !ps.IsActive {
			continue
		}
		if ps.TemplateSection == nil {
			return nil, &common.StaleReferenceError{Resource: "template section", ID: ps.TemplateSectionID}
		}
		sec := Section{ID: ps.ID, GridID: ps.GridID, SectionType: ps.TemplateSection.SectionType, Name: ps.TemplateSection.Name}
		ids := pages.ColumnGridIDs(ps.ID, ps.TemplateSection.SectionType, ps.TemplateSection.ColumnLayout)
		spans := columnSpans(ps.TemplateSection, len(ids))
		index := make(map[string]int, len(ids))
		for j, id := range ids {
			index[id] = j
			sec.Columns = append(sec.Columns, Column{GridID: id, Span: spans[j], Slots: []Slot{}})
		}

		for k := range ps.Widgets {
			pw := &ps.Widgets[k]
			col, ok := index[pw.ColumnPosition]
			if !ok {
				col = 0
			}
			slot := Slot{PlacementID: pw.ID, WidgetID: pw.WidgetID}
			payload, err := p.RenderPlacement(ctx, pw, nil, opts.Preview[pw.ID])
			if err != nil {
				p.log.Warn().Err(err).Uint("page_id", page.ID).Uint("placement_id", pw.ID).Msg("widget render failed")
				doc.Errors = append(doc.Errors, SlotError{PlacementID: pw.ID, WidgetID: pw.WidgetID, Error: err.Error()})
				slot.Failed = true
				slot.HTML = template.HTML(fmt.Sprintf("<!-- widget %d unavailable -->", pw.ID))
			} else {
				slot.HTML = template.HTML(payload.HTML)
				assets = append(assets, models.AssetList{CSS: payload.CSS, JS: payload.JS})
			}
			sec.Columns[col].Slots = append(sec.Columns[col].Slots, slot)
		}
		doc.Sections = append(doc.Sections, sec)
	}

	all := CollectAssets(assets...)
	doc.CSS, doc.JS = all.CSS, all.JS

	html, err := p.composePage(doc)
	if err != nil {
		return nil, err
	}
	doc.HTML = html
	return doc, nil
}

func columnSpans(ts *models.TemplateSection, n int) []int {
	spans, err := layout.ColumnSpans(ts.ColumnLayout)
	if err != nil || len(spans) != n {
		spans = make([]int, n)
		for i := range spans {
			spans[i] = 12 / n
		}
	}
	return spans
}

// composePage wraps the sections in the theme's page view when the theme has
// one, in the built-in document otherwise.
func (p *Pipeline) composePage(doc *Document) (string, error) {
	if doc.Theme != nil {
		view := fmt.Sprintf("themes/%s/%s", doc.Theme.Slug, PageView)
		if p.resolver.Views.Exists(view) {
			return p.resolver.Views.Render(view, map[string]any{
				"page":     doc.Page,
				"theme":    doc.Theme,
				"sections": doc.Sections,
				"css":      doc.CSS,
				"js":       doc.JS,
			})
		}
	}
	var buf bytes.Buffer
	if err := defaultPage.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
