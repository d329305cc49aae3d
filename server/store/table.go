package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
)

type queryBuilder interface {
	ToSQL() (string, []interface{}, error)
}

// Record is a model that can be stored in a Table.
type Record interface {
	Validate() error
}

// MutableRecord is a Record that is updated with optimistic locking.
type MutableRecord interface {
	Record
	GetETag() models.ETag
	SetETag(eTag models.ETag)
}

// Table performs the common operations on a single database table, on behalf of a store.
type Table struct {
	logger.Log
	db        *DB
	tableName string
	eTagCol   string
}

func NewTable(db *DB, logFactory logger.LogFactory, tableName string) *Table {
	return &Table{
		Log:       logFactory(fmt.Sprintf("%s_table", tableName)),
		db:        db,
		tableName: tableName,
	}
}

// WithETagColumn enables optimistic locking on updates, comparing the named column against
// the ETag of the record being updated.
func (d *Table) WithETagColumn(col string) *Table {
	d.eTagCol = col
	return d
}

func (d *Table) TableName() string {
	return d.tableName
}

// Dialect returns the goqu dialect (aka SQL Driver e.g. sqlite3, postgres etc.) in use.
func (d *Table) Dialect() goqu.DialectWrapper {
	return goqu.Dialect(d.db.DriverName())
}

// Select returns a dataset selecting every column of record from the table.
func (d *Table) Select(record interface{}) *goqu.SelectDataset {
	return d.Dialect().From(d.tableName).Select(record)
}

// Create inserts a new record.
// Returns gerror.ErrAlreadyExists if a record with matching unique properties already exists.
func (d *Table) Create(ctx context.Context, txOrNil *Tx, record Record) (err error) {
	err = record.Validate()
	if err != nil {
		return gerror.NewErrValidationFailed(fmt.Sprintf("Invalid %s record", d.tableName)).Wrap(err)
	}
	if mutable, ok := record.(MutableRecord); ok {
		err = setETag(mutable)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				mutable.SetETag("")
			}
		}()
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		_, err := d.logInsert(db.Insert(d.tableName).Rows(record)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing create query: %w", MakeStandardDBError(err))
		}
		return nil
	})
}

// ReadWhere reads a single record using the supplied where clauses.
// Returns gerror.ErrNotFound if no record matches.
func (d *Table) ReadWhere(ctx context.Context, txOrNil *Tx, record Record, where ...goqu.Expression) error {
	return d.ReadIn(ctx, txOrNil, record, d.Select(record).Where(where...))
}

// ReadIn reads a single record from the supplied select dataset.
// Returns gerror.ErrNotFound if the dataset is empty.
func (d *Table) ReadIn(ctx context.Context, txOrNil *Tx, record Record, ds *goqu.SelectDataset) error {
	ds = ds.Limit(1)
	return d.db.Read(txOrNil, func(db Reader) error {
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		found, err := db.ScanStructContext(ctx, record, query, args...)
		if err != nil {
			return MakeStandardDBError(err)
		}
		if !found {
			return gerror.NewErrNotFound("Not Found")
		}
		return nil
	})
}

// ListIn reads every record in the supplied select dataset into records, which must be a pointer
// to a slice of records e.g. &[]*models.Variable.
func (d *Table) ListIn(ctx context.Context, txOrNil *Tx, records interface{}, ds *goqu.SelectDataset) error {
	t := reflect.TypeOf(records)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Slice {
		d.Panicf("expected pointer to slice, found: %T", records)
	}
	return d.db.Read(txOrNil, func(db Reader) error {
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.LogQuery(query, args)
		err = db.ScanStructsContext(ctx, records, query, args...)
		if err != nil {
			return MakeStandardDBError(err)
		}
		return nil
	})
}

// UpdateWhere overwrites the record identified by the where clauses with the supplied model.
// If the record is a MutableRecord and the table has an ETag column, the update only succeeds if the
// stored ETag matches the record's ETag.
// Returns gerror.ErrNotFound if no record matches, or gerror.ErrOptimisticLockFailed on an ETag mismatch.
func (d *Table) UpdateWhere(ctx context.Context, txOrNil *Tx, record Record, where ...goqu.Expression) (err error) {
	err = record.Validate()
	if err != nil {
		return gerror.NewErrValidationFailed(fmt.Sprintf("Invalid %s record", d.tableName)).Wrap(err)
	}
	mutable, isMutable := record.(MutableRecord)
	isMutable = isMutable && d.eTagCol != ""
	if isMutable {
		origETag := mutable.GetETag()
		if origETag != models.ETagAny && origETag != "" {
			where = append(where, goqu.Ex{d.eTagCol: origETag})
		}
		err = setETag(mutable)
		if err != nil {
			return err
		}
		defer func() {
			if err != nil {
				mutable.SetETag(origETag)
			}
		}()
	}
	return d.db.Write(txOrNil, func(db Writer) error {
		res, err := d.logUpdate(db.Update(d.tableName).Set(record).Where(where...)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing update query: %w", MakeStandardDBError(err))
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %w", MakeStandardDBError(err))
		}
		if rowsAffected == 0 {
			if isMutable {
				return gerror.NewErrOptimisticLockFailed("ETag does not match")
			}
			return gerror.NewErrNotFound("Not Found")
		}
		return nil
	})
}

// DeleteWhere idempotently deletes every record matching the supplied where clauses.
func (d *Table) DeleteWhere(ctx context.Context, txOrNil *Tx, where ...goqu.Expression) error {
	return d.db.Write(txOrNil, func(db Writer) error {
		_, err := d.logDelete(db.Delete(d.tableName).Where(where...)).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing delete query: %w", MakeStandardDBError(err))
		}
		return nil
	})
}

// FindOrCreateReadFn must return gerror.ErrNotFound if the record does not exist.
type FindOrCreateReadFn func(ctx context.Context, txOrNil *Tx) (Record, error)

// FindOrCreateCreateFn must return gerror.ErrAlreadyExists if the record already exists, and
// return the newly created record on success.
type FindOrCreateCreateFn func(ctx context.Context, txOrNil *Tx) (Record, error)

// FindOrCreate creates a record if it does not exist, otherwise it reads and returns the existing record.
// Returns the record as it is in the database, and true iff the record was created.
func (d *Table) FindOrCreate(
	ctx context.Context,
	txOrNil *Tx,
	readFn FindOrCreateReadFn,
	createFn FindOrCreateCreateFn,
) (record Record, created bool, err error) {
	record, created, err = d.findOrCreateInner(ctx, txOrNil, readFn, createFn)
	if err != nil && gerror.IsAlreadyExists(err) {
		// Try once to accommodate a racing create; the second attempt should take the 'find' path.
		d.Infof("Conflicting create detected in findOrCreate - trying again once: %v", err)
		record, created, err = d.findOrCreateInner(ctx, txOrNil, readFn, createFn)
	}
	return record, created, err
}

func (d *Table) findOrCreateInner(
	ctx context.Context,
	txOrNil *Tx,
	readFn FindOrCreateReadFn,
	createFn FindOrCreateCreateFn,
) (Record, bool, error) {
	record, err := readFn(ctx, txOrNil)
	if err == nil {
		return record, false, nil
	}
	if !gerror.IsNotFound(err) {
		return nil, false, fmt.Errorf("error reading record: %w", err)
	}
	record, err = createFn(ctx, txOrNil)
	if err != nil {
		return nil, false, fmt.Errorf("error creating record: %w", err)
	}
	return record, true, nil
}

func setETag(record MutableRecord) error {
	hash, err := hashstructure.Hash(record, hashstructure.FormatV2, nil)
	if err != nil {
		return fmt.Errorf("error calculating record hash: %w", err)
	}
	record.SetETag(models.ETag(fmt.Sprintf("\"%x\"", hash)))
	return nil
}

// MakeStandardDBError converts driver specific unique-constraint and not-found errors into
// gerror.ErrAlreadyExists and gerror.ErrNotFound.
func MakeStandardDBError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(sqliteErr)
		}
		if sqliteErr.Code == sqlite3.ErrNotFound {
			return gerror.NewErrNotFound("Resource not found").Wrap(sqliteErr)
		}
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		// 23505 -> unique_violation
		if pgErr.Code == "23505" {
			return gerror.NewErrAlreadyExists("Resource already exists").Wrap(pgErr)
		}
		// P0002 -> no_data_found
		if pgErr.Code == "P0002" {
			return gerror.NewErrNotFound("Resource not found").Wrap(pgErr)
		}
	}
	return err
}

func (d *Table) logInsert(ds *goqu.InsertDataset) *goqu.InsertDataset {
	d.logQueryDS(ds)
	return ds
}

func (d *Table) logUpdate(ds *goqu.UpdateDataset) *goqu.UpdateDataset {
	d.logQueryDS(ds)
	return ds
}

func (d *Table) logDelete(ds *goqu.DeleteDataset) *goqu.DeleteDataset {
	d.logQueryDS(ds)
	return ds
}

func (d *Table) logQueryDS(ds queryBuilder) {
	query, args, err := ds.ToSQL()
	if err != nil {
		d.Errorf("Error generating query: %v", err)
		return
	}
	d.LogQuery(query, args)
}

// LogQuery logs a SQL query and args at trace level.
func (d *Table) LogQuery(query string, args []interface{}) {
	d.WithFields(logger.Fields{"query": query, "args": args}).Trace()
}
