package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_notifications.sql": {Data: []byte("CREATE TABLE b();")},
		"0001_init.sql":          {Data: []byte("CREATE TABLE a();")},
		"0003_empty.sql":         {Data: []byte("  \n")},
		"README.md":              {Data: []byte("docs")},
		"old/0000_skip.sql":      {Data: []byte("CREATE TABLE z();")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_init", migrations[0].version)
	assert.Equal(t, "0002_notifications", migrations[1].version)
	assert.Equal(t, "CREATE TABLE b();", migrations[1].sql)
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	_, err := loadMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}
