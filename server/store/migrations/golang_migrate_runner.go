package migrations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migrate_database "github.com/golang-migrate/migrate/v4/database"
	migrate_postgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migrate_sqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	migrate_iofs "github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/psanford/memfs"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/store"
)

const migrationsDir = "migrations"

// GolangMigrateRunner applies a MigrationSet using golang-migrate. The migrations are rendered for
// the target SQL dialect into an in-memory filesystem that golang-migrate reads as its source.
type GolangMigrateRunner struct {
	logger.Log
	migrations MigrationSet
}

func NewGolangMigrateRunner(migrations MigrationSet, logFactory logger.LogFactory) *GolangMigrateRunner {
	return &GolangMigrateRunner{
		Log:        logFactory("GolangMigrateRunner"),
		migrations: migrations,
	}
}

// NewJobVarsGolangMigrateRunner makes a runner for the job variables schema.
func NewJobVarsGolangMigrateRunner(logFactory logger.LogFactory) *GolangMigrateRunner {
	return NewGolangMigrateRunner(JobVarsMigrations, logFactory)
}

func (r *GolangMigrateRunner) Up(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString) error {
	return r.withMigrator(driver, connectionString, "up", func(m *migrate.Migrate) error {
		return m.Up()
	})
}

func (r *GolangMigrateRunner) Down(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString) error {
	return r.withMigrator(driver, connectionString, "down", func(m *migrate.Migrate) error {
		return m.Down()
	})
}

func (r *GolangMigrateRunner) Goto(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString, version uint) error {
	return r.withMigrator(driver, connectionString, fmt.Sprintf("goto %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

func (r *GolangMigrateRunner) Force(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString, version uint) error {
	return r.withMigrator(driver, connectionString, fmt.Sprintf("force %d", version), func(m *migrate.Migrate) error {
		return m.Force(int(version))
	})
}

// Version returns the schema version of the database and whether a migration failed part way
// through. The version is 0 for a database that has never been migrated.
func (r *GolangMigrateRunner) Version(ctx context.Context, driver store.DBDriver, connectionString store.DatabaseConnectionString) (version uint, dirty bool, err error) {
	err = r.withMigrator(driver, connectionString, "version", func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		return err
	})
	return version, dirty, err
}

// withMigrator runs fn against a migrator attached to a dedicated connection to the database.
// golang-migrate does not accept a context, so none is passed through.
func (r *GolangMigrateRunner) withMigrator(
	driver store.DBDriver,
	connectionString store.DatabaseConnectionString,
	operation string,
	fn func(*migrate.Migrate) error,
) error {
	log := r.WithFields(logger.Fields{"driver": driver, "operation": operation})
	dialect, err := GetDialectForDriver(driver)
	if err != nil {
		return err
	}
	fs, err := r.ProduceMigrationFiles(dialect)
	if err != nil {
		return err
	}
	source, err := migrate_iofs.New(fs, migrationsDir)
	if err != nil {
		return fmt.Errorf("error reading migration files: %w", err)
	}

	conn, err := sqlx.Open(driver.String(), connectionString.String())
	if err != nil {
		return fmt.Errorf("error opening %s database for migration: %w", driver, err)
	}
	target, err := migrationDatabaseDriver(conn)
	if err != nil {
		conn.Close()
		return err
	}
	migrator, err := migrate.NewWithInstance("iofs", source, driver.String(), target)
	if err != nil {
		conn.Close()
		return fmt.Errorf("error creating migrator: %w", err)
	}
	// Closing the migrator closes conn
	defer migrator.Close()

	log.Debug("Running migration")
	err = fn(migrator)
	if errors.Is(err, migrate.ErrNoChange) {
		log.Debug("Database schema is already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("error running %s migration %q: %w", driver, operation, err)
	}
	log.Info("Migration completed")
	return nil
}

func migrationDatabaseDriver(conn *sqlx.DB) (migrate_database.Driver, error) {
	switch store.DBDriver(conn.DriverName()) {
	case store.Sqlite:
		driver, err := migrate_sqlite3.WithInstance(conn.DB, &migrate_sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("error creating sqlite migration driver: %w", err)
		}
		return driver, nil
	case store.Postgres:
		driver, err := migrate_postgres.WithInstance(conn.DB, &migrate_postgres.Config{
			StatementTimeout:      5 * time.Second,
			MultiStatementEnabled: true, // migrations create tables and their indexes together
			MultiStatementMaxSize: migrate_postgres.DefaultMultiStatementMaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating postgres migration driver: %w", err)
		}
		return driver, nil
	default:
		return nil, fmt.Errorf("error unsupported migration database driver: %s", conn.DriverName())
	}
}

// ProduceMigrationFiles renders every migration for dialect into an in-memory filesystem, named
// the way golang-migrate expects: migrations/{version}_{title}.{up|down}.sql
func (r *GolangMigrateRunner) ProduceMigrationFiles(dialect *DialectTemplate) (*memfs.FS, error) {
	fs := memfs.New()
	err := fs.MkdirAll(migrationsDir, 0777)
	if err != nil {
		return nil, err
	}
	for _, migration := range r.migrations {
		for direction, sql := range map[string]string{"up": migration.UpSQL, "down": migration.DownSQL} {
			path := fmt.Sprintf("%s/%06d_%s.%s.sql", migrationsDir, migration.SequenceNumber, migration.Name, direction)
			rendered, err := renderMigration(path, sql, dialect)
			if err != nil {
				return nil, err
			}
			r.Tracef("Rendered migration %s", path)
			err = fs.WriteFile(path, rendered, 0755)
			if err != nil {
				return nil, fmt.Errorf("error writing migration %q: %w", path, err)
			}
		}
	}
	return fs, nil
}

func renderMigration(name string, sql string, dialect *DialectTemplate) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("error parsing migration %q: %w", name, err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, dialect)
	if err != nil {
		return nil, fmt.Errorf("error rendering migration %q: %w", name, err)
	}
	return buf.Bytes(), nil
}
