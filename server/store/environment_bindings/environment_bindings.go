package environment_bindings

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

type EnvironmentBindingStore struct {
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *EnvironmentBindingStore {
	return &EnvironmentBindingStore{
		table: store.NewTable(db, logFactory, "environment_bindings"),
	}
}

// FindOrCreate returns the binding for the job in binding, creating it from binding if the job
// has no binding yet. Returns true iff the binding was created. Concurrent callers racing to bind
// the same job all receive whichever binding was stored first.
func (d *EnvironmentBindingStore) FindOrCreate(ctx context.Context, txOrNil *store.Tx, binding *models.EnvironmentBinding) (*models.EnvironmentBinding, bool, error) {
	record, created, err := d.table.FindOrCreate(ctx, txOrNil,
		func(ctx context.Context, txOrNil *store.Tx) (store.Record, error) {
			return d.Read(ctx, txOrNil, binding.JobID)
		},
		func(ctx context.Context, txOrNil *store.Tx) (store.Record, error) {
			return binding, d.table.Create(ctx, txOrNil, binding)
		})
	if err != nil {
		return nil, false, err
	}
	return record.(*models.EnvironmentBinding), created, nil
}

// Read the binding for a job.
// Returns gerror.ErrNotFound if the job has no binding.
func (d *EnvironmentBindingStore) Read(ctx context.Context, txOrNil *store.Tx, jobID int64) (*models.EnvironmentBinding, error) {
	binding := &models.EnvironmentBinding{}
	err := d.table.ReadWhere(ctx, txOrNil, binding, goqu.Ex{"environment_binding_job_id": jobID})
	if err != nil {
		return nil, err
	}
	return binding, nil
}
