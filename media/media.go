// Package media stores binary attachments on disk and tracks them per
// (entity, collection) in the media_attachments table.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tessera/common"
	"tessera/models"
)

const EntityContentItem = "content_item"

// FieldCollection names the collection holding attachments of a content field.
func FieldCollection(fieldID uint) string { return fmt.Sprintf("field_%d", fieldID) }

type File struct {
	Name   string
	Reader io.Reader
}

type Ref struct {
	ID  uint   `json:"id"`
	URL string `json:"url"`
}

// Store is the media collaborator used by the content store and the
// render pipeline.
type Store interface {
	Attach(ctx context.Context, entityType string, entityID uint, collection string, f File) (Ref, error)
	Replace(ctx context.Context, entityType string, entityID uint, collection string, f File) (Ref, error)
	Clear(ctx context.Context, entityType string, entityID uint, collection string) error
	List(ctx context.Context, entityType string, entityID uint, collection string) ([]Ref, error)
	URL(a models.MediaAttachment) string
}

type DiskStore struct {
	db      *gorm.DB
	root    string
	baseURL string
	log     zerolog.Logger
}

func NewDiskStore(db *gorm.DB, root, baseURL string, log zerolog.Logger) *DiskStore {
	return &DiskStore{
		db:      db,
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("module", "media").Logger(),
	}
}

func (s *DiskStore) Attach(ctx context.Context, entityType string, entityID uint, collection string, f File) (Ref, error) {
	att, full, err := s.write(entityType, entityID, collection, f)
	if err != nil {
		return Ref{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next, err := common.NextPosition(tx, &models.MediaAttachment{}, "position",
			"entity_type = ? AND entity_id = ? AND collection = ?", entityType, entityID, collection)
		if err != nil {
			return err
		}
		att.Position = next
		return tx.Create(att).Error
	})
	if err != nil {
		os.Remove(full)
		return Ref{}, err
	}

	s.log.Debug().Str("collection", collection).Uint("entity_id", entityID).Str("file", att.FileName).Msg("attached")
	return Ref{ID: att.ID, URL: s.URL(*att)}, nil
}

// Replace makes f the only attachment of a collection. The new file is
// written and recorded before the old rows are dropped, in one transaction,
// so a failed upload leaves the previous attachment in place. Old files are
// removed from disk after the commit.
func (s *DiskStore) Replace(ctx context.Context, entityType string, entityID uint, collection string, f File) (Ref, error) {
	att, full, err := s.write(entityType, entityID, collection, f)
	if err != nil {
		return Ref{}, err
	}
	var old []models.MediaAttachment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_type = ? AND entity_id = ? AND collection = ?", entityType, entityID, collection).
			Find(&old).Error; err != nil {
			return err
		}
		if len(old) > 0 {
			if err := tx.Delete(&old).Error; err != nil {
				return err
			}
		}
		return tx.Create(att).Error
	})
	if err != nil {
		os.Remove(full)
		return Ref{}, err
	}
	s.removeFiles(old)

	s.log.Debug().Str("collection", collection).Uint("entity_id", entityID).Str("file", att.FileName).Int("replaced", len(old)).Msg("replaced")
	return Ref{ID: att.ID, URL: s.URL(*att)}, nil
}

// write copies f under root and returns the unsaved attachment row and the
// file's full path.
func (s *DiskStore) write(entityType string, entityID uint, collection string, f File) (*models.MediaAttachment, string, error) {
	name := sanitizeName(f.Name)
	if name == "" {
		return nil, "", common.Invalid("file", "file name is required")
	}
	if f.Reader == nil {
		return nil, "", common.Invalid("file", "file is empty")
	}

	rel := path.Join(entityType, fmt.Sprint(entityID), collection, uuid.NewString()+"-"+name)
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, "", err
	}
	out, err := os.Create(full)
	if err != nil {
		return nil, "", err
	}
	size, err := io.Copy(out, f.Reader)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, "", err
	}
	return &models.MediaAttachment{
		EntityType: entityType,
		EntityID:   entityID,
		Collection: collection,
		FileName:   name,
		Path:       rel,
		Size:       size,
	}, full, nil
}

func (s *DiskStore) removeFiles(atts []models.MediaAttachment) {
	for _, a := range atts {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(a.Path))); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", a.Path).Msg("could not remove media file")
		}
	}
}

func (s *DiskStore) Clear(ctx context.Context, entityType string, entityID uint, collection string) error {
	var atts []models.MediaAttachment
	db := s.db.WithContext(ctx)
	if err := db.Where("entity_type = ? AND entity_id = ? AND collection = ?", entityType, entityID, collection).
		Find(&atts).Error; err != nil {
		return err
	}
	if len(atts) == 0 {
		return nil
	}
	if err := db.Delete(&atts).Error; err != nil {
		return err
	}
	s.removeFiles(atts)
	return nil
}

func (s *DiskStore) List(ctx context.Context, entityType string, entityID uint, collection string) ([]Ref, error) {
	var atts []models.MediaAttachment
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND collection = ?", entityType, entityID, collection).
		Order("position ASC, id ASC").
		Find(&atts).Error; err != nil {
		return nil, err
	}
	refs := make([]Ref, len(atts))
	for i, a := range atts {
		refs[i] = Ref{ID: a.ID, URL: s.URL(a)}
	}
	return refs, nil
}

func (s *DiskStore) URL(a models.MediaAttachment) string {
	return s.baseURL + "/" + a.Path
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}
