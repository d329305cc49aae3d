package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store"
)

// CreateJob inserts a minimal pending job row so that records referencing the job can be stored.
func CreateJob(t *testing.T, ctx context.Context, db *store.DB, jobID int64, projectID int64) *models.Job {
	job := &models.Job{
		ID:         jobID,
		CreatedAt:  models.NewTime(time.Now()),
		Name:       "job",
		Stage:      "test",
		ProjectID:  projectID,
		PipelineID: 1,
		Ref:        "main",
		Status:     models.JobStatusPending,
	}
	err := db.Write(nil, func(w store.Writer) error {
		_, err := w.Insert("jobs").Rows(job).Executor().ExecContext(ctx)
		return err
	})
	require.NoError(t, err)
	return job
}
