// Package content stores content items and their typed field values.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tessera/common"
	"tessera/media"
	"tessera/models"
)

type Store struct {
	db    *gorm.DB
	media media.Store
	log   zerolog.Logger
}

func NewStore(db *gorm.DB, mediaStore media.Store, log zerolog.Logger) *Store {
	return &Store{db: db, media: mediaStore, log: log.With().Str("module", "content").Logger()}
}

type ItemInput struct {
	ContentTypeID uint              `json:"content_type_id" validate:"required"`
	Title         string            `json:"title" validate:"required,max=255"`
	Slug          string            `json:"slug" validate:"required,slug,max=191"`
	Status        models.ItemStatus `json:"status"`
}

// CreateItem creates an item and writes its field values, keyed by field
// slug. Required fields must be present and non-empty.
func (s *Store) CreateItem(ctx context.Context, in ItemInput, values map[string]any) (*models.ContentItem, error) {
	if err := validateItem(&in); err != nil {
		return nil, err
	}
	item := &models.ContentItem{
		ContentTypeID: in.ContentTypeID,
		Title:         in.Title,
		Slug:          in.Slug,
		Status:        in.Status,
	}
	if item.Status == models.ItemPublished {
		now := time.Now()
		item.PublishedAt = &now
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields, err := typeFields(tx, in.ContentTypeID)
		if err != nil {
			return err
		}
		if err := ensureItemSlugFree(tx, in.Slug, 0); err != nil {
			return err
		}
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return applyValues(tx, item, fields, values, true)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Uint("id", item.ID).Str("slug", item.Slug).Msg("item created")
	return item, nil
}

// UpdateItem rewrites an item's properties and values. Fields absent from
// values keep their stored value, except booleans: an absent checkbox is a
// false checkbox and is written as "0".
func (s *Store) UpdateItem(ctx context.Context, id uint, in ItemInput, values map[string]any) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content item", id)
			}
			return err
		}
		in.ContentTypeID = item.ContentTypeID
		if err := validateItem(&in); err != nil {
			return err
		}
		if err := ensureItemSlugFree(tx, in.Slug, item.ID); err != nil {
			return err
		}
		if in.Status == models.ItemPublished && item.PublishedAt == nil {
			now := time.Now()
			item.PublishedAt = &now
		}
		item.Title = in.Title
		item.Slug = in.Slug
		item.Status = in.Status
		if err := tx.Save(&item).Error; err != nil {
			return err
		}
		fields, err := typeFields(tx, item.ContentTypeID)
		if err != nil {
			return err
		}
		return applyValues(tx, &item, fields, values, false)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes an item, its values and its media attachments.
func (s *Store) DeleteItem(ctx context.Context, id uint) error {
	var fields []models.ContentTypeField
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ContentItem
		if err := tx.First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.NotFound("content item", id)
			}
			return err
		}
		var err error
		if fields, err = typeFields(tx, item.ContentTypeID); err != nil {
			return err
		}
		if err := tx.Where("content_item_id = ?", id).Delete(&models.ContentFieldValue{}).Error; err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return err
	}
	for _, f := range fields {
		if !f.FieldType.IsMedia() || s.media == nil {
			continue
		}
		if err := s.media.Clear(ctx, media.EntityContentItem, id, media.FieldCollection(f.ID)); err != nil {
			s.log.Warn().Err(err).Uint("item_id", id).Msg("media cleanup failed")
		}
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id uint) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("content item", id)
	}
	return &item, err
}

func (s *Store) GetItemBySlug(ctx context.Context, slug string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("content item", slug)
	}
	return &item, err
}

// ListItems returns the items of a content type, newest first. An empty
// status lists every status.
func (s *Store) ListItems(ctx context.Context, contentTypeID uint, status models.ItemStatus) ([]models.ContentItem, error) {
	var items []models.ContentItem
	q := s.db.WithContext(ctx).Where("content_type_id = ?", contentTypeID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC, id DESC").Find(&items).Error
	return items, err
}

// SetValue upserts the value of one (item, field) pair.
func (s *Store) SetValue(ctx context.Context, item *models.ContentItem, field *models.ContentTypeField, raw any) (*models.ContentFieldValue, error) {
	var row *models.ContentFieldValue
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = setValue(tx, item, field, raw)
		return err
	})
	return row, err
}

func (s *Store) DeleteValue(ctx context.Context, itemID, fieldID uint) error {
	return s.db.WithContext(ctx).
		Where("content_item_id = ? AND field_id = ?", itemID, fieldID).
		Delete(&models.ContentFieldValue{}).Error
}

// GetValuesFor fetches every value row of an item in one query, keyed by
// field id.
func (s *Store) GetValuesFor(ctx context.Context, itemID uint) (map[uint]models.ContentFieldValue, error) {
	var rows []models.ContentFieldValue
	if err := s.db.WithContext(ctx).Where("content_item_id = ?", itemID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]models.ContentFieldValue, len(rows))
	for _, r := range rows {
		out[r.FieldID] = r
	}
	return out, nil
}

// TypedValues decodes an item's values keyed by field slug, with media
// fields resolved to their attachments. Fields without a stored value get
// their decoded default.
func (s *Store) TypedValues(ctx context.Context, item *models.ContentItem) (map[string]Value, error) {
	fields, err := typeFields(s.db.WithContext(ctx), item.ContentTypeID)
	if err != nil {
		return nil, err
	}
	rows, err := s.GetValuesFor(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(fields))
	for _, f := range fields {
		raw := f.DefaultValue
		if row, ok := rows[f.ID]; ok {
			raw = row.Value
		}
		v := Decode(f.FieldType, raw)
		if v.Kind == KindMedia && s.media != nil {
			refs, err := s.media.List(ctx, media.EntityContentItem, item.ID, media.FieldCollection(f.ID))
			if err != nil {
				return nil, err
			}
			v.Media = refs
		}
		out[f.Slug] = v
	}
	return out, nil
}

// AttachMedia stores a file for a media field. Image and file fields hold a
// single attachment that is replaced only once the new one is stored;
// galleries append.
func (s *Store) AttachMedia(ctx context.Context, item *models.ContentItem, field *models.ContentTypeField, f media.File) (media.Ref, error) {
	if !field.FieldType.IsMedia() {
		return media.Ref{}, common.Invalid(field.Slug, "field type %s does not accept files", field.FieldType)
	}
	if field.ContentTypeID != item.ContentTypeID {
		return media.Ref{}, common.Invalid("field_id", "field %d does not belong to the item's content type", field.ID)
	}
	if s.media == nil {
		return media.Ref{}, errors.New("no media store configured")
	}
	collection := media.FieldCollection(field.ID)
	attach := s.media.Replace
	if field.FieldType == models.FieldGallery {
		attach = s.media.Attach
	}
	ref, err := attach(ctx, media.EntityContentItem, item.ID, collection, f)
	if err != nil {
		return media.Ref{}, err
	}
	if _, err := s.SetValue(ctx, item, field, nil); err != nil {
		return media.Ref{}, err
	}
	return ref, nil
}

func validateItem(in *ItemInput) error {
	if in.Status == "" {
		in.Status = models.ItemDraft
	}
	if !in.Status.Valid() {
		return common.Invalid("status", "unknown status %q", in.Status)
	}
	return common.ValidateStruct(in)
}

func ensureItemSlugFree(tx *gorm.DB, slug string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.ContentItem{}).Where("slug = ?", slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return &common.ConflictError{Resource: "content item", Field: "slug", Value: slug}
	}
	return nil
}

func typeFields(tx *gorm.DB, contentTypeID uint) ([]models.ContentTypeField, error) {
	var ct models.ContentType
	if err := tx.First(&ct, contentTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("content type", contentTypeID)
		}
		return nil, err
	}
	var fields []models.ContentTypeField
	err := tx.Preload("Options").
		Where("content_type_id = ?", contentTypeID).
		Order("position ASC, id ASC").
		Find(&fields).Error
	return fields, err
}

func applyValues(tx *gorm.DB, item *models.ContentItem, fields []models.ContentTypeField, values map[string]any, creating bool) error {
	for i := range fields {
		f := &fields[i]
		raw, present := values[f.Slug]
		if !present {
			switch {
			case f.FieldType == models.FieldBoolean:
				raw = nil
			case creating && f.IsRequired && !f.FieldType.IsMedia():
				return common.Invalid(f.Slug, "is required")
			default:
				continue
			}
		}
		if _, err := setValue(tx, item, f, raw); err != nil {
			return err
		}
	}
	return nil
}

func setValue(tx *gorm.DB, item *models.ContentItem, field *models.ContentTypeField, raw any) (*models.ContentFieldValue, error) {
	if field.ContentTypeID != item.ContentTypeID {
		return nil, common.Invalid("field_id", "field %d does not belong to the item's content type", field.ID)
	}
	if field.FieldType.HasOptions() && field.Options == nil {
		if err := tx.Where("field_id = ?", field.ID).Find(&field.Options).Error; err != nil {
			return nil, err
		}
	}
	enc, err := Encode(field, raw)
	if err != nil {
		return nil, err
	}
	if enc == "" && field.IsRequired && !field.FieldType.IsMedia() {
		return nil, common.Invalid(field.Slug, "is required")
	}

	row := models.ContentFieldValue{ContentItemID: item.ID, FieldID: field.ID, Value: enc}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_item_id"}, {Name: "field_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	var stored models.ContentFieldValue
	if err := tx.Where("content_item_id = ? AND field_id = ?", item.ID, field.ID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}
