package job_metadata

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

type JobMetadataStore struct {
	table *store.Table
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *JobMetadataStore {
	return &JobMetadataStore{
		table: store.NewTable(db, logFactory, "job_metadata"),
	}
}

// Create the metadata for a job.
// Returns gerror.ErrAlreadyExists if the job already has metadata.
func (d *JobMetadataStore) Create(ctx context.Context, txOrNil *store.Tx, metadata *models.JobMetadata) error {
	return d.table.Create(ctx, txOrNil, metadata)
}

// Read the metadata for a job.
// Returns gerror.ErrNotFound if the job has no metadata.
func (d *JobMetadataStore) Read(ctx context.Context, txOrNil *store.Tx, jobID int64) (*models.JobMetadata, error) {
	metadata := &models.JobMetadata{}
	err := d.table.ReadWhere(ctx, txOrNil, metadata, goqu.Ex{"job_metadata_job_id": jobID})
	if err != nil {
		return nil, err
	}
	return metadata, nil
}

// Update the metadata for a job.
// Returns gerror.ErrNotFound if the job has no metadata.
func (d *JobMetadataStore) Update(ctx context.Context, txOrNil *store.Tx, metadata *models.JobMetadata) error {
	return d.table.UpdateWhere(ctx, txOrNil, metadata, goqu.Ex{"job_metadata_job_id": metadata.JobID})
}
