package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tessera/models"
)

func setupTestStore(t *testing.T) (*DiskStore, string) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.MediaAttachment{}))

	root := t.TempDir()
	return NewDiskStore(db, root, "/media/", zerolog.Nop()), root
}

func TestAttachAndList(t *testing.T) {
	store, root := setupTestStore(t)
	ctx := context.Background()

	ref, err := store.Attach(ctx, EntityContentItem, 7, FieldCollection(3), File{Name: "my photo.jpg", Reader: strings.NewReader("jpeg")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref.URL, "/media/content_item/7/field_3/"))
	assert.True(t, strings.HasSuffix(ref.URL, "-my_photo.jpg"))

	rel := strings.TrimPrefix(ref.URL, "/media/")
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = store.Attach(ctx, EntityContentItem, 7, FieldCollection(3), File{Name: "b.jpg", Reader: strings.NewReader("b")})
	require.NoError(t, err)

	refs, err := store.List(ctx, EntityContentItem, 7, FieldCollection(3))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, ref.ID, refs[0].ID)
}

func TestReplace(t *testing.T) {
	store, root := setupTestStore(t)
	ctx := context.Background()

	old, err := store.Attach(ctx, EntityContentItem, 2, FieldCollection(5), File{Name: "old.png", Reader: strings.NewReader("old")})
	require.NoError(t, err)

	_, err = store.Replace(ctx, EntityContentItem, 2, FieldCollection(5), File{Name: "", Reader: strings.NewReader("x")})
	assert.Error(t, err)
	refs, err := store.List(ctx, EntityContentItem, 2, FieldCollection(5))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, old.ID, refs[0].ID)

	fresh, err := store.Replace(ctx, EntityContentItem, 2, FieldCollection(5), File{Name: "new.png", Reader: strings.NewReader("new")})
	require.NoError(t, err)
	refs, err = store.List(ctx, EntityContentItem, 2, FieldCollection(5))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, fresh.ID, refs[0].ID)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(old.URL, "/media/"))))
	assert.True(t, os.IsNotExist(err))
}

func TestClear(t *testing.T) {
	store, root := setupTestStore(t)
	ctx := context.Background()

	ref, err := store.Attach(ctx, EntityContentItem, 1, FieldCollection(9), File{Name: "logo.png", Reader: strings.NewReader("png")})
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, EntityContentItem, 1, FieldCollection(9)))

	refs, err := store.List(ctx, EntityContentItem, 1, FieldCollection(9))
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(ref.URL, "/media/"))))
	assert.True(t, os.IsNotExist(err))
}

func TestAttach_RequiresName(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.Attach(context.Background(), EntityContentItem, 1, "field_1", File{Name: "", Reader: strings.NewReader("")})
	assert.Error(t, err)
}
