// Package render resolves widget placements into HTML: settings precedence,
// content binding, view lookup and asset collection, and the composition
// of whole pages.
package render

import (
	"fmt"

	"tessera/common"
	"tessera/models"
	"tessera/widgets"
)

// GlobalFallbackView is rendered when neither the widget nor the active
// theme provides a view.
const GlobalFallbackView = "widgets/default"

// Binding is the content item a placement is bound to.
type Binding struct {
	Item *models.ContentItem
	// Values are the item's field values keyed by field slug.
	Values map[string]any
	// Associated is set when the widget has an active association with the
	// item's content type; Mappings are its explicit field mappings.
	Associated bool
	Mappings   map[string]string
}

// Input is everything a single widget render depends on. Resolve reads
// nothing else.
type Input struct {
	Widget      *models.Widget
	Schema      []models.WidgetFieldDecl
	FieldValues map[string]any
	// Display is the widget's display setting, if it has one.
	Display     *models.WidgetDisplaySetting
	Settings    map[string]any
	Binding     *Binding
	Items       []map[string]any

	SettingsOverrides map[string]any
	PreviewData       map[string]any

	Theme       *models.Theme
	ThemeAssets models.AssetList
}

type Payload struct {
	HTML             string         `json:"html"`
	CSS              []string       `json:"css"`
	JS               []string       `json:"js"`
	ResolvedSettings map[string]any `json:"resolved_settings"`
	ViewPath         string         `json:"view_path"`
}

type Resolver struct {
	Views Renderer
}

func NewResolver(views Renderer) *Resolver {
	return &Resolver{Views: views}
}

// Resolve renders one widget. It has no side effects beyond calling the
// view renderer.
func (r *Resolver) Resolve(in Input) (*Payload, error) {
	if in.Widget == nil {
		return nil, fmt.Errorf("resolve: no widget")
	}
	settings := ResolveSettings(in)
	view, err := ResolveViewPath(r.Views, in.Widget, in.Theme, in.viewMode())
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"settings": settings,
		"widget":   in.Widget,
		"items":    in.Items,
		"theme":    in.Theme,
		"display":  in.Display,
	}
	if in.Binding != nil && in.Binding.Item != nil {
		data["item"] = in.Binding.Item
		data["values"] = in.Binding.Values
	}
	html, err := r.Views.Render(view, data)
	if err != nil {
		return nil, err
	}
	assets := CollectAssets(in.ThemeAssets, in.Widget.Assets.Data())
	return &Payload{HTML: html, CSS: assets.CSS, JS: assets.JS, ResolvedSettings: settings, ViewPath: view}, nil
}

// viewMode is the display setting's view mode, empty for the default mode.
func (in Input) viewMode() string {
	if in.Display == nil || in.Display.ViewMode == "default" {
		return ""
	}
	return in.Display.ViewMode
}

// ResolveSettings applies the settings stages in increasing precedence:
//
//  1. schema defaults and samples, legacy field values, display settings,
//     placement settings
//  2. content binding through the association's mappings
//  3. the bound item's title, content and timestamps
//  4. caller overrides
//  5. preview data
//
// Stage 2 only writes keys that already exist. Stage 3 leaves title and
// content alone when stage 2 bound them but always refreshes timestamps.
// Without a bound item stages 2 and 3 are skipped.
func ResolveSettings(in Input) map[string]any {
	settings := widgets.SampleSettings(in.Schema)
	merge(settings, in.FieldValues)
	if in.Display != nil {
		merge(settings, in.Display.Settings)
	}
	merge(settings, in.Settings)

	if b := in.Binding; b != nil && b.Item != nil {
		bound := map[string]bool{}
		if b.Associated {
			slugs := make([]string, 0, len(b.Values))
			for slug := range b.Values {
				slugs = append(slugs, slug)
			}
			generated := widgets.GenerateMappings(schemaKeys(in.Schema), slugs)
			bound = widgets.ApplyMappings(settings, b.Values, widgets.MergeMappings(generated, b.Mappings))
		}
		if !bound["title"] {
			settings["title"] = b.Item.Title
		}
		if v, ok := b.Values["content"]; ok && !bound["content"] {
			settings["content"] = v
		}
		settings["created_at"] = b.Item.CreatedAt
		settings["updated_at"] = b.Item.UpdatedAt
	}

	merge(settings, in.SettingsOverrides)
	merge(settings, in.PreviewData)
	return settings
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func schemaKeys(decls []models.WidgetFieldDecl) []string {
	keys := make([]string, len(decls))
	for i, d := range decls {
		keys[i] = d.Key
	}
	return keys
}

// ViewCandidates lists the views tried for a widget, in order. A non-empty
// viewMode puts the theme's themes/<theme>/widgets/<slug>/<viewMode> variant
// ahead of the widget's plain theme view.
func ViewCandidates(w *models.Widget, theme *models.Theme, viewMode string) []string {
	var out []string
	if w.ViewPath != "" {
		out = append(out, w.ViewPath)
	}
	if theme != nil {
		if viewMode != "" {
			out = append(out, fmt.Sprintf("themes/%s/widgets/%s/%s", theme.Slug, w.Slug, viewMode))
		}
		out = append(out,
			fmt.Sprintf("themes/%s/widgets/%s", theme.Slug, w.Slug),
			fmt.Sprintf("themes/%s/widgets/default", theme.Slug),
		)
	}
	return append(out, GlobalFallbackView)
}

// ResolveViewPath returns the first existing view among ViewCandidates.
func ResolveViewPath(views Renderer, w *models.Widget, theme *models.Theme, viewMode string) (string, error) {
	tried := ViewCandidates(w, theme, viewMode)
	for _, v := range tried {
		if views.Exists(v) {
			return v, nil
		}
	}
	return "", &common.ViewNotFoundError{Widget: w.Slug, Tried: tried}
}

// CollectAssets concatenates asset lists and drops repeated paths, keeping
// the first occurrence.
func CollectAssets(lists ...models.AssetList) models.AssetList {
	out := models.AssetList{CSS: []string{}, JS: []string{}}
	seenCSS, seenJS := map[string]bool{}, map[string]bool{}
	for _, l := range lists {
		for _, p := range l.CSS {
			if p != "" && !seenCSS[p] {
				seenCSS[p] = true
				out.CSS = append(out.CSS, p)
			}
		}
		for _, p := range l.JS {
			if p != "" && !seenJS[p] {
				seenJS[p] = true
				out.JS = append(out.JS, p)
			}
		}
	}
	return out
}
