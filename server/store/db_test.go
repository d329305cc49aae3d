package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
)

func TestDatabaseConfigValidate(t *testing.T) {
	valid := DatabaseConfig{
		ConnectionString:   "file::memory:?cache=shared",
		Driver:             Sqlite,
		MaxIdleConnections: DefaultDatabaseMaxIdleConnections,
		MaxOpenConnections: DefaultDatabaseMaxOpenConnections,
	}
	require.NoError(t, valid.Validate())

	invalid := []func(c *DatabaseConfig){
		func(c *DatabaseConfig) { c.Driver = "mysql" },
		func(c *DatabaseConfig) { c.ConnectionString = "" },
		func(c *DatabaseConfig) { c.MaxOpenConnections = -1 },
	}
	for _, mutate := range invalid {
		config := valid
		mutate(&config)
		err := config.Validate()
		require.Error(t, err)
		require.True(t, gerror.IsInvalidConfiguration(err))
	}
}

func TestSQLiteFilePath(t *testing.T) {
	tests := []struct {
		connectionString string
		path             string
		ok               bool
	}{
		{"file::memory:?cache=shared&_foreign_keys=1", "", false},
		{"file:vars?mode=memory&cache=shared", "", false},
		{"file:/var/lib/jobvars/jobvars.db?_foreign_keys=1", "/var/lib/jobvars/jobvars.db", true},
		{"file:jobvars.db", "jobvars.db", true},
		{"jobvars.db", "", false},
	}
	for _, test := range tests {
		path, ok := sqliteFilePath(test.connectionString)
		require.Equal(t, test.ok, ok, test.connectionString)
		require.Equal(t, test.path, path, test.connectionString)
	}
}

func TestSQLiteConnectionInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobvars.db")
	require.NoError(t, SQLiteConnectionInit("file:"+path+"?_foreign_keys=1"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.False(t, info.IsDir())
}
