package render

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/content"
	"tessera/layout"
	"tessera/models"
	"tessera/query"
	"tessera/widgets"
)

// Services are the stores a Pipeline reads from.
type Services struct {
	Content *content.Store
	Catalog *widgets.Catalog
	Layout  *layout.Manager
	Queries *query.Engine
	Assets  layout.AssetSource
}

// Pipeline gathers the inputs of a render from the database and hands them
// to the Resolver.
type Pipeline struct {
	db       *gorm.DB
	svc      Services
	resolver *Resolver
	log      zerolog.Logger
}

func NewPipeline(db *gorm.DB, svc Services, views Renderer, log zerolog.Logger) *Pipeline {
	return &Pipeline{db: db, svc: svc, resolver: NewResolver(views), log: log.With().Str("module", "render").Logger()}
}

func (p *Pipeline) Resolver() *Resolver { return p.resolver }

// RenderContext carries the per-call parts of a widget render.
type RenderContext struct {
	Settings          map[string]any
	ItemID            *uint
	SettingsOverrides map[string]any
	PreviewData       map[string]any
}

// RenderPlacement renders a placed widget. A widget deleted after it was
// placed is a StaleReferenceError.
func (p *Pipeline) RenderPlacement(ctx context.Context, pw *models.PageSectionWidget, overrides, preview map[string]any) (*Payload, error) {
	w, err := p.svc.Catalog.GetWidget(ctx, pw.WidgetID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, &common.StaleReferenceError{Resource: "widget", ID: pw.WidgetID}
	}
	if err != nil {
		return nil, err
	}
	return p.RenderWidget(ctx, w, RenderContext{
		Settings:          pw.Settings,
		ItemID:            pw.ContentItemID,
		SettingsOverrides: overrides,
		PreviewData:       preview,
	})
}

// RenderWidget renders a widget with the active theme. A bound item or
// content query that no longer exists is logged and rendering continues
// without it.
func (p *Pipeline) RenderWidget(ctx context.Context, w *models.Widget, rc RenderContext) (*Payload, error) {
	in, err := p.Input(ctx, w, rc)
	if err != nil {
		return nil, err
	}
	return p.resolver.Resolve(*in)
}

// Input assembles the resolver input for a widget.
func (p *Pipeline) Input(ctx context.Context, w *models.Widget, rc RenderContext) (*Input, error) {
	in := &Input{
		Widget:            w,
		Settings:          rc.Settings,
		SettingsOverrides: rc.SettingsOverrides,
		PreviewData:       rc.PreviewData,
	}

	theme, err := p.svc.Layout.ActiveTheme(ctx)
	switch {
	case err == nil:
		in.Theme = theme
		if p.svc.Assets != nil {
			if in.ThemeAssets, err = p.svc.Assets.ThemeAssets(theme); err != nil {
				return nil, err
			}
		}
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	if in.Schema, err = p.svc.Catalog.Schema(ctx, w); err != nil {
		return nil, err
	}
	if in.FieldValues, err = p.svc.Catalog.FieldValues(ctx, w); err != nil {
		return nil, err
	}
	if w.DisplaySettingsID != nil {
		ds, err := p.svc.Catalog.GetDisplaySetting(ctx, *w.DisplaySettingsID)
		switch {
		case err == nil:
			in.Display = ds
		case errors.Is(err, common.ErrNotFound):
			p.log.Warn().Uint("widget_id", w.ID).Uint("display_settings_id", *w.DisplaySettingsID).Msg("display setting is gone")
		default:
			return nil, err
		}
	}

	if rc.ItemID != nil {
		b, err := p.binding(ctx, w, *rc.ItemID)
		var stale *common.StaleReferenceError
		switch {
		case errors.As(err, &stale):
			p.log.Warn().Uint("widget_id", w.ID).Uint("item_id", *rc.ItemID).Msg("bound item is gone, rendering sample data")
		case err != nil:
			return nil, err
		default:
			in.Binding = b
		}
	}

	if w.ContentQueryID != nil {
		items, err := p.queryItems(ctx, *w.ContentQueryID)
		if errors.Is(err, common.ErrNotFound) {
			p.log.Warn().Uint("widget_id", w.ID).Uint("query_id", *w.ContentQueryID).Msg("content query is gone")
		} else if err != nil {
			return nil, err
		}
		in.Items = items
	}
	return in, nil
}

func (p *Pipeline) binding(ctx context.Context, w *models.Widget, itemID uint) (*Binding, error) {
	item, err := p.svc.Content.GetItem(ctx, itemID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, &common.StaleReferenceError{Resource: "content item", ID: itemID}
	}
	if err != nil {
		return nil, err
	}
	values, err := p.itemValues(ctx, item)
	if err != nil {
		return nil, err
	}
	b := &Binding{Item: item, Values: values}
	assoc, err := p.svc.Catalog.ActiveAssociation(ctx, w.ID, item.ContentTypeID)
	switch {
	case err == nil:
		b.Associated = true
		b.Mappings = assoc.FieldMappings.Data()
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}
	return b, nil
}

// itemValues returns an item's values as widget settings values. richText
// values are rendered from markdown.
func (p *Pipeline) itemValues(ctx context.Context, item *models.ContentItem) (map[string]any, error) {
	typed, err := p.svc.Content.TypedValues(ctx, item)
	if err != nil {
		return nil, err
	}
	var rich []string
	if err := p.db.WithContext(ctx).Model(&models.ContentTypeField{}).
		Where("content_type_id = ? AND field_type = ?", item.ContentTypeID, models.FieldRichText).
		Pluck("slug", &rich).Error; err != nil {
		return nil, err
	}
	out := make(map[string]any, len(typed))
	for slug, v := range typed {
		out[slug] = v.Interface()
	}
	for _, slug := range rich {
		if v, ok := typed[slug]; ok && v.Kind == content.KindText {
			out[slug] = Markdown(v.Text)
		}
	}
	return out, nil
}

func (p *Pipeline) queryItems(ctx context.Context, queryID uint) ([]map[string]any, error) {
	items, err := p.svc.Queries.ExecuteByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for i := range items {
		values, err := p.itemValues(ctx, &items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":           items[i].ID,
			"title":        items[i].Title,
			"slug":         items[i].Slug,
			"status":       items[i].Status,
			"created_at":   items[i].CreatedAt,
			"updated_at":   items[i].UpdatedAt,
			"published_at": items[i].PublishedAt,
			"fields":       values,
		})
	}
	return out, nil
}
