package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/buildbeaver/jobvars/common/gerror"
)

type DBDriver string

func (d DBDriver) String() string {
	return string(d)
}

type DatabaseConnectionString string

func (d DatabaseConnectionString) String() string {
	return string(d)
}

const (
	Sqlite   DBDriver = "sqlite3"
	Postgres DBDriver = "postgres"

	DefaultDatabaseMaxIdleConnections = 2
	DefaultDatabaseMaxOpenConnections = 4
)

type DatabaseConfig struct {
	ConnectionString   DatabaseConnectionString
	Driver             DBDriver
	MaxIdleConnections int
	MaxOpenConnections int
}

// Validate returns gerror.ErrInvalidConfiguration describing every problem with the config.
func (c DatabaseConfig) Validate() error {
	var result *multierror.Error
	if c.Driver != Sqlite && c.Driver != Postgres {
		result = multierror.Append(result, fmt.Errorf("error unknown database driver %q", c.Driver))
	}
	if c.ConnectionString == "" {
		result = multierror.Append(result, errors.New("error connection string must be set"))
	}
	if c.MaxOpenConnections < 0 || c.MaxIdleConnections < 0 {
		result = multierror.Append(result, errors.New("error connection limits must not be negative"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return gerror.NewErrInvalidConfiguration("Invalid database configuration").Wrap(err)
	}
	return nil
}

// MigrationRunner applies the schema migrations to a database.
type MigrationRunner interface {
	// Up migrates the given database up to the latest version.
	Up(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString) error
	// Down migrates the given database down to empty.
	Down(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString) error
	// Goto migrates the given database to the specified version.
	Goto(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString, version uint) error
	// Force marks the database as clean and already migrated to the specified version.
	Force(ctx context.Context, driver DBDriver, connectionString DatabaseConnectionString, version uint) error
}

// DB is a connection pool to the variables database. sqlite only supports a single writer, so
// writes to sqlite are serialized through lock.
type DB struct {
	*sqlx.DB
	Driver           DBDriver
	ConnectionString DatabaseConnectionString
	lock             sync.RWMutex
}

type Tx struct {
	tx *sqlx.Tx
}

// NewDatabase opens a connection pool described by config and returns it along with a function
// that closes it. If migrationRunner is not nil the schema is migrated up to the latest version
// before returning.
func NewDatabase(ctx context.Context, config DatabaseConfig, migrationRunner MigrationRunner) (*DB, func(), error) {
	err := config.Validate()
	if err != nil {
		return nil, nil, err
	}
	if config.Driver == Sqlite {
		err = SQLiteConnectionInit(config.ConnectionString.String())
		if err != nil {
			return nil, nil, err
		}
	}

	pool, err := sqlx.Open(config.Driver.String(), config.ConnectionString.String())
	if err != nil {
		return nil, nil, fmt.Errorf("error opening %s database: %w", config.Driver, err)
	}
	err = pool.PingContext(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("error pinging %s database: %w", config.Driver, err)
	}
	if migrationRunner != nil {
		err = migrationRunner.Up(ctx, config.Driver, config.ConnectionString)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("error running %s database migrations: %w", config.Driver, err)
		}
	}
	pool.SetMaxIdleConns(config.MaxIdleConnections)
	pool.SetMaxOpenConns(config.MaxOpenConnections)

	db := &DB{
		DB:               pool,
		Driver:           config.Driver,
		ConnectionString: config.ConnectionString,
	}
	return db, func() { db.Close() }, nil
}

// SQLiteConnectionInit creates the database file (and its directory) named by a file based sqlite
// connection string. In-memory connection strings are left alone.
func SQLiteConnectionInit(connectionString string) error {
	path, ok := sqliteFilePath(connectionString)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("error ensuring database directory %q exists: %w", dir, err)
	}
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0660)
	if err != nil {
		return fmt.Errorf("error opening or creating database file %q: %w", path, err)
	}
	return file.Close()
}

// sqliteFilePath returns the path of the database file named by a "file:" connection string.
func sqliteFilePath(connectionString string) (string, bool) {
	// https://github.com/mattn/go-sqlite3/issues/677
	if strings.Contains(connectionString, ":memory:") || strings.Contains(connectionString, "mode=memory") {
		return "", false
	}
	_, rest, found := strings.Cut(connectionString, "file:")
	if !found {
		return "", false
	}
	path, _, _ := strings.Cut(rest, "?")
	return path, path != ""
}

// WithTx runs fn inside a database transaction, unless txOrNil is already a transaction in which
// case fn joins it. The transaction is committed if fn returns nil and rolled back otherwise,
// including when ctx is cancelled before the commit.
func (d *DB) WithTx(ctx context.Context, txOrNil *Tx, fn func(tx *Tx) error) error {
	if txOrNil != nil {
		return fn(txOrNil)
	}
	if d.Driver == Sqlite {
		d.lock.Lock()
		defer d.lock.Unlock()
	}
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning database transaction")
	}
	err = fn(&Tx{tx: tx})
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			return errors.Wrapf(rollbackErr, "error rolling back database transaction: %s", err)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "error committing database transaction")
}

// Write calls fn with a Writer bound to txOrNil, or to the pool itself if txOrNil is nil.
func (d *DB) Write(txOrNil *Tx, fn func(Writer) error) error {
	if txOrNil != nil {
		return fn(goqu.NewTx(d.DriverName(), txOrNil.tx))
	}
	if d.Driver == Sqlite {
		d.lock.Lock()
		defer d.lock.Unlock()
	}
	return fn(goqu.New(d.DriverName(), d.DB))
}

// Read calls fn with a Reader bound to txOrNil, or to the pool itself if txOrNil is nil.
func (d *DB) Read(txOrNil *Tx, fn func(Reader) error) error {
	if txOrNil != nil {
		return fn(goqu.NewTx(d.DriverName(), txOrNil.tx))
	}
	if d.Driver == Sqlite {
		d.lock.RLock()
		defer d.lock.RUnlock()
	}
	return fn(goqu.New(d.DriverName(), d.DB))
}

// Reader is satisfied by both goqu.Database and goqu.TxDatabase.
type Reader interface {
	From(from ...interface{}) *goqu.SelectDataset
	ScanStructsContext(ctx context.Context, i interface{}, query string, args ...interface{}) error
	ScanStructContext(ctx context.Context, i interface{}, query string, args ...interface{}) (bool, error)
}

// Writer is satisfied by both goqu.Database and goqu.TxDatabase.
type Writer interface {
	Reader
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
	Delete(table interface{}) *goqu.DeleteDataset
}
