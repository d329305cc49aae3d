package migrations_test

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/store"
	"github.com/buildbeaver/jobvars/server/store/migrations"
	"github.com/buildbeaver/jobvars/server/store/store_test"
)

const inMemorySqliteConnectionString = store.DatabaseConnectionString("file::memory:?cache=shared&_foreign_keys=1&parseTime=true")

var migrationTestData = migrations.MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_test_people",
		UpSQL: `CREATE TABLE IF NOT EXISTS test_people
				(
					person_id text NOT NULL PRIMARY KEY,
					person_name text NOT NULL,
					person_created_at timestamp without time zone NOT NULL,
					person_deleted_at timestamp without time zone,
					person_picture {{ .Binary}}
				);
				CREATE UNIQUE INDEX IF NOT EXISTS test_people_name_unique_index ON test_people(person_name)
				WHERE person_deleted_at IS NULL;
				CREATE UNIQUE INDEX test_people_created_at_id_desc_unique_index ON test_people(
					person_created_at DESC,
					person_id DESC);`,
		DownSQL: `DROP TABLE test_people;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_test_parents",
		UpSQL: `CREATE TABLE test_parent_relationships
				(
				   parent_relationship_id {{ .IntegerPrimaryKey}},
				   parent_relationship_parent_id text NOT NULL REFERENCES test_people (person_id) ON UPDATE NO ACTION ON DELETE CASCADE,
				   parent_relationship_child_id text NOT NULL REFERENCES test_people (person_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);`,
		DownSQL: `DROP TABLE test_parent_relationships;`,
	},
	{
		SequenceNumber: 3,
		Name:           "alter_test_parents",
		UpSQL:          `ALTER TABLE test_parent_relationships ADD person_address text;`,
		DownSQL:        `ALTER TABLE test_parent_relationships DROP COLUMN person_address;`,
	},
}

func TestMigrations(t *testing.T) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	t.Run("sqlite-in-memory", testMigrationsForDB(store.Sqlite, inMemorySqliteConnectionString, logFactory))

	// The default test database is configured via environment variables and may be any driver
	database, cleanup, err := store_test.ConnectAndOptionallyMigrate(false, logFactory)
	require.NoError(t, err)
	defer cleanup()
	t.Run("default-test-database", testMigrationsForDB(database.Driver, database.ConnectionString, logFactory))
}

// testMigrationsForDB steps migrationTestData up, down and sideways against a database, checking
// the recorded version after each step.
func testMigrationsForDB(
	driver store.DBDriver,
	connectionString store.DatabaseConnectionString,
	logFactory logger.LogFactory,
) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		runner := migrations.NewGolangMigrateRunner(migrationTestData, logFactory)

		// Each migration opens its own connection; an in-memory database only lives while one is open
		keepAlive, err := sql.Open(driver.String(), connectionString.String())
		require.NoError(t, err)
		require.NoError(t, keepAlive.PingContext(ctx))
		defer keepAlive.Close()

		requireVersion := func(t *testing.T, expected uint) {
			version, dirty, err := runner.Version(ctx, driver, connectionString)
			require.NoError(t, err)
			require.False(t, dirty)
			require.Equal(t, expected, version)
		}

		t.Run("Up", func(t *testing.T) {
			requireVersion(t, 0)
			require.NoError(t, runner.Up(ctx, driver, connectionString))
			requireVersion(t, 3)
			// Already at the latest version
			require.NoError(t, runner.Up(ctx, driver, connectionString))
			requireVersion(t, 3)
		})

		t.Run("DownAndUp", func(t *testing.T) {
			require.NoError(t, runner.Down(ctx, driver, connectionString))
			requireVersion(t, 0)
			require.NoError(t, runner.Up(ctx, driver, connectionString))
			requireVersion(t, 3)
		})

		t.Run("Goto", func(t *testing.T) {
			require.NoError(t, runner.Goto(ctx, driver, connectionString, 2))
			requireVersion(t, 2)
			require.NoError(t, runner.Goto(ctx, driver, connectionString, 1))
			requireVersion(t, 1)
		})

		t.Run("Force", func(t *testing.T) {
			// Only version 1 has really been applied, so version 3 is a lie
			require.NoError(t, runner.Force(ctx, driver, connectionString, 3))
			requireVersion(t, 3)

			// Migration 3 can't be rolled back since its table was never created
			require.Error(t, runner.Down(ctx, driver, connectionString))

			require.NoError(t, runner.Force(ctx, driver, connectionString, 1))
			require.NoError(t, runner.Down(ctx, driver, connectionString))
			requireVersion(t, 0)
			require.NoError(t, runner.Up(ctx, driver, connectionString))
			requireVersion(t, 3)
		})
	}
}

func TestMigrationTemplating(t *testing.T) {
	t.Run("Sqlite", testMigrationTemplating(migrations.NewSqliteDialectTemplate()))
	t.Run("Postgres", testMigrationTemplating(migrations.NewPostgresDialectTemplate()))
}

func testMigrationTemplating(dialectTemplate *migrations.DialectTemplate) func(t *testing.T) {
	return func(t *testing.T) {
		logRegistry, err := logger.NewLogRegistry("")
		require.NoError(t, err)
		logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

		migrationRunner := migrations.NewJobVarsGolangMigrateRunner(logFactory)

		// Produce migration files for postgres
		inMemoryFS, err := migrationRunner.ProduceMigrationFiles(dialectTemplate)
		require.NoError(t, err)

		var files []string
		err = fs.WalkDir(inMemoryFS, "migrations", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		require.NoError(t, err)
		require.Len(t, files, 2*len(migrations.JobVarsMigrations))

		up, err := fs.ReadFile(inMemoryFS, "migrations/000001_create_variables.up.sql")
		require.NoError(t, err)
		require.NotContains(t, string(up), "{{")
		require.Contains(t, string(up), dialectTemplate.BigInt)
	}
}

func TestJobVarsMigrations(t *testing.T) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	ctx := context.Background()

	database, cleanup, err := store_test.ConnectAndOptionallyMigrate(true, logFactory)
	require.NoError(t, err)
	defer cleanup()

	runner := migrations.NewJobVarsGolangMigrateRunner(logFactory)
	latest := uint(migrations.JobVarsMigrations[len(migrations.JobVarsMigrations)-1].SequenceNumber)

	version, dirty, err := runner.Version(ctx, database.Driver, database.ConnectionString)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, latest, version)

	require.NoError(t, runner.Up(ctx, database.Driver, database.ConnectionString))
	require.NoError(t, runner.Down(ctx, database.Driver, database.ConnectionString))
	version, _, err = runner.Version(ctx, database.Driver, database.ConnectionString)
	require.NoError(t, err)
	require.Equal(t, uint(0), version)
	require.NoError(t, runner.Up(ctx, database.Driver, database.ConnectionString))
}
