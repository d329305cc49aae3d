package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store/jobs"
	"github.com/buildbeaver/jobvars/server/store/store_test"
)

func TestJobStore(t *testing.T) {
	db, cleanup, err := store_test.Connect(logger.NoOpLogFactory)
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	jobStore := jobs.NewStore(db, logger.NoOpLogFactory)

	job := &models.Job{
		ID:               100,
		CreatedAt:        models.NewTime(time.Now()),
		Name:             "deploy",
		Stage:            "deploy",
		ProjectID:        1,
		PipelineID:       10,
		Ref:              "main",
		Status:           models.JobStatusPending,
		Environment:      "production",
		Token:            "secret-token",
		DependencyJobIDs: models.Int64s{98, 99},
	}

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, jobStore.Create(ctx, nil, job))
		err := jobStore.Create(ctx, nil, job)
		require.True(t, gerror.IsAlreadyExists(err))
	})

	t.Run("Read", func(t *testing.T) {
		read, err := jobStore.Read(ctx, nil, job.ID)
		require.NoError(t, err)
		require.Equal(t, job.Name, read.Name)
		require.Equal(t, job.Environment, read.Environment)
		require.Equal(t, job.DependencyJobIDs, read.DependencyJobIDs)
		require.Empty(t, read.Token, "job tokens must never be persisted")

		_, err = jobStore.Read(ctx, nil, 12345)
		require.True(t, gerror.IsNotFound(err))
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := jobStore.UpdateStatus(ctx, nil, job, models.JobStatusPending, models.JobStatusRunning)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusRunning, job.Status)

		// Stale from-status
		err = jobStore.UpdateStatus(ctx, nil, job, models.JobStatusPending, models.JobStatusFailed)
		require.True(t, gerror.IsNotFound(err))

		read, err := jobStore.Read(ctx, nil, job.ID)
		require.NoError(t, err)
		require.Equal(t, models.JobStatusRunning, read.Status)
	})

	t.Run("ListByPipeline", func(t *testing.T) {
		other := *job
		other.ID = 101
		other.Name = "test"
		require.NoError(t, jobStore.Create(ctx, nil, &other))
		list, err := jobStore.ListByPipeline(ctx, nil, job.PipelineID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, int64(100), list[0].ID)
		require.Equal(t, int64(101), list[1].ID)
	})
}
