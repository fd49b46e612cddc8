package common

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func stmt() (string, int64) { return "SELECT * FROM pages", 3 }

func TestGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), logger.Warn)
	ctx := context.Background()

	l.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	l.Trace(ctx, time.Now(), stmt, nil)
	assert.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), stmt, errors.New("no such table: pages"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"sql":"SELECT * FROM pages"`)
	assert.Contains(t, buf.String(), `"module":"gorm"`)

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	assert.Contains(t, buf.String(), `"message":"slow query"`)

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), stmt, errors.New("boom"))
	assert.Empty(t, buf.String())
}

func TestGormLogger_Messages(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), logger.Warn)
	ctx := context.Background()

	l.Info(ctx, "hidden %d", 1)
	assert.Empty(t, buf.String())
	l.Warn(ctx, "careful %s", "now")
	assert.Contains(t, buf.String(), `"message":"careful now"`)
}

func TestConnectDb_LogsThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	db, err := ConnectDb(filepath.Join(t.TempDir(), "test.db"), zerolog.New(&buf))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "opened sqlite db")
	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)
	assert.Contains(t, buf.String(), "missing_table")
	assert.Contains(t, buf.String(), `"message":"query failed"`)
}

func TestConnectDb_RequiresPath(t *testing.T) {
	_, err := ConnectDb("", zerolog.Nop())
	assert.Error(t, err)
}
