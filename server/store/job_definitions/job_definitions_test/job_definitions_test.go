package job_definitions_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store/job_definitions"
	"github.com/buildbeaver/jobvars/server/store/store_test"
)

func TestJobDefinitionStore(t *testing.T) {
	db, cleanup, err := store_test.Connect(logger.NoOpLogFactory)
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	definitionStore := job_definitions.NewStore(db, logger.NoOpLogFactory)

	config := models.JobConfig{
		Options: &models.JobOptions{
			Environment: &models.EnvironmentOptions{
				Name:       "review/$CI_COMMIT_REF_SLUG",
				AutoStopIn: "1 day",
				Kubernetes: &models.KubernetesOptions{Namespace: "review-$CI_PROJECT_ID"},
			},
		},
		YAMLVariables: models.YAMLVariables{{Key: "FOO", Value: "bar", Public: true}},
	}
	definition, err := models.NewJobDefinition(models.NewTime(time.Now()), 1, config)
	require.NoError(t, err)

	created, isNew, err := definitionStore.FindOrCreate(ctx, nil, definition)
	require.NoError(t, err)
	require.True(t, isNew)
	require.Equal(t, definition.Checksum, created.Checksum)

	// The same configuration maps to the same definition
	again, err := models.NewJobDefinition(models.NewTime(time.Now()), 1, config)
	require.NoError(t, err)
	found, isNew, err := definitionStore.FindOrCreate(ctx, nil, again)
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, config, found.Config)

	_, err = definitionStore.Read(ctx, nil, 2, definition.Checksum)
	require.True(t, gerror.IsNotFound(err))
}
