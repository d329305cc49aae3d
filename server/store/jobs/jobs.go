package jobs

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

type JobStore struct {
	db    *store.DB
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobStore {
	return &JobStore{
		db:    db,
		table: store.NewTable(db, logFactory, "jobs"),
	}
}

// Create a new job.
// Returns gerror.ErrAlreadyExists if a job with the same ID already exists.
func (d *JobStore) Create(ctx context.Context, txOrNil *store.Tx, job *models.Job) error {
	return d.table.Create(ctx, txOrNil, job)
}

// Read an existing job, looking it up by ID.
// Returns gerror.ErrNotFound if the job does not exist.
func (d *JobStore) Read(ctx context.Context, txOrNil *store.Tx, id int64) (*models.Job, error) {
	job := &models.Job{}
	return job, d.table.ReadWhere(ctx, txOrNil, job, goqu.Ex{"job_id": id})
}

// UpdateStatus moves a job from status from to status to, and updates the supplied model on success.
// Returns gerror.ErrNotFound if the job does not exist or is no longer in status from.
func (d *JobStore) UpdateStatus(ctx context.Context, txOrNil *store.Tx, job *models.Job, from models.JobStatus, to models.JobStatus) error {
	return d.db.Write(txOrNil, func(db store.Writer) error {
		ds := db.Update(d.table.TableName()).
			Set(goqu.Record{"job_status": to}).
			Where(goqu.Ex{"job_id": job.ID, "job_status": from})
		query, args, err := ds.ToSQL()
		if err != nil {
			return fmt.Errorf("error generating query: %w", err)
		}
		d.table.LogQuery(query, args)
		res, err := ds.Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error executing update status query: %w", store.MakeStandardDBError(err))
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return gerror.NewErrNotFound(fmt.Sprintf("Job %d not found in status %s", job.ID, from))
		}
		job.Status = to
		return nil
	})
}

// ListByPipeline lists all jobs in a pipeline ordered by ID.
func (d *JobStore) ListByPipeline(ctx context.Context, txOrNil *store.Tx, pipelineID int64) ([]*models.Job, error) {
	ds := d.table.Select(&models.Job{}).
		Where(goqu.Ex{"job_pipeline_id": pipelineID}).
		Order(goqu.C("job_id").Asc())
	var jobs []*models.Job
	return jobs, d.table.ListIn(ctx, txOrNil, &jobs, ds)
}
