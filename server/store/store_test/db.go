package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/store"
	"github.com/buildbeaver/jobvars/server/store/migrations"
)

const (
	testDBDriverEnvVar         = "TEST_DB_DRIVER"
	testConnectionStringEnvVar = "TEST_CONNECTION_STRING"

	defaultTestConnectionString = store.DatabaseConnectionString("file::memory:?cache=shared&_foreign_keys=1&parseTime=true")
)

// Connect opens a migrated test database. See ConnectAndOptionallyMigrate.
func Connect(logFactory logger.LogFactory) (*store.DB, func(), error) {
	return ConnectAndOptionallyMigrate(true, logFactory)
}

// ConnectAndOptionallyMigrate opens a test database, migrating it to the latest schema if
// runMigrations is true. The database is in-memory sqlite unless TEST_DB_DRIVER (and for
// postgres TEST_CONNECTION_STRING) say otherwise. A postgres server connection string with no
// database in its path gets a freshly created database that cleanup drops again.
func ConnectAndOptionallyMigrate(runMigrations bool, logFactory logger.LogFactory) (*store.DB, func(), error) {
	log := logFactory("TestDB")
	config, err := testDatabaseConfig()
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		log.Info("Running cleanup")
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if config.Driver == store.Postgres {
		connectionString, drop, err := createTestDatabase(log, config.Driver, config.ConnectionString)
		if err != nil {
			return nil, nil, fmt.Errorf("error initializing test database: %w", err)
		}
		config.ConnectionString = connectionString
		cleanups = append(cleanups, drop)
	}

	var migrationRunner store.MigrationRunner
	if runMigrations {
		migrationRunner = migrations.NewJobVarsGolangMigrateRunner(logFactory)
	}
	db, closeDB, err := store.NewDatabase(context.Background(), config, migrationRunner)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("error creating database: %w", err)
	}
	cleanups = append(cleanups, closeDB)
	return db, cleanup, nil
}

func testDatabaseConfig() (store.DatabaseConfig, error) {
	config := store.DatabaseConfig{
		ConnectionString:   defaultTestConnectionString,
		Driver:             store.Sqlite,
		MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
		MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
	}
	driver, driverSet := os.LookupEnv(testDBDriverEnvVar)
	connectionString, connectionStringSet := os.LookupEnv(testConnectionStringEnvVar)
	switch {
	case !driverSet && connectionStringSet:
		return config, fmt.Errorf("error %s must be set when using %s", testDBDriverEnvVar, testConnectionStringEnvVar)
	case !driverSet:
		return config, nil
	}
	config.Driver = store.DBDriver(driver)
	if connectionString != "" {
		config.ConnectionString = store.DatabaseConnectionString(connectionString)
	} else if config.Driver != store.Sqlite {
		return config, fmt.Errorf("error %s must be set alongside %s when not using sqlite",
			testConnectionStringEnvVar, testDBDriverEnvVar)
	}
	return config, nil
}

// createTestDatabase creates a uniquely named database on the server and returns a connection
// string for it along with a function that drops it. Connection strings that already name a
// database are returned unchanged.
func createTestDatabase(log logger.Log, driver store.DBDriver, connectionString store.DatabaseConnectionString) (store.DatabaseConnectionString, func(), error) {
	parsed, err := url.Parse(connectionString.String())
	if err != nil {
		return "", nil, fmt.Errorf("error parsing connection string %q: %w", connectionString, err)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return connectionString, func() {}, nil
	}
	server, err := sql.Open(driver.String(), parsed.String())
	if err != nil {
		return "", nil, fmt.Errorf("error connecting to database server: %w", err)
	}
	name := "jobvars_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	log.Infof("Creating test database %s", name)
	_, err = server.Exec("CREATE DATABASE " + name)
	if err != nil {
		server.Close()
		return "", nil, fmt.Errorf("error creating test database: %w", err)
	}
	drop := func() {
		log.Infof("Dropping test database %s", name)
		_, err := server.Exec("DROP DATABASE " + name)
		if err != nil {
			log.Errorf("Failed to drop test database %s: %v", name, err)
		}
		server.Close()
	}
	parsed.Path = name
	return store.DatabaseConnectionString(parsed.String()), drop, nil
}
