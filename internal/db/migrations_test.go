package db

import (
	"testing"
	"testing/fstest"

	"github.com/opsdesk/opsdesk/migrations"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	files := fstest.MapFS{
		"0002_tickets.sql": {Data: []byte("SELECT 1;")},
		"0001_init.sql":    {Data: []byte("SELECT 1;")},
		"README.md":        {Data: []byte("notes")},
		"old/0000.sql":     {Data: []byte("SELECT 1;")},
	}

	names, err := migrationFiles(files)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql", "0002_tickets.sql"}, names)
}

func TestMigrationFiles_Embedded(t *testing.T) {
	names, err := migrationFiles(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
}
