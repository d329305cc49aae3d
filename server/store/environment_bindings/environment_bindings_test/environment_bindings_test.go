package environment_bindings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/store/environment_bindings"
	"github.com/buildbeaver/jobvars/server/store/store_test"
)

func TestEnvironmentBindingStore(t *testing.T) {
	db, cleanup, err := store_test.Connect(logger.NoOpLogFactory)
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	bindingStore := environment_bindings.NewStore(db, logger.NoOpLogFactory)

	first := &models.EnvironmentBinding{
		JobID:                   300,
		ProjectID:               1,
		CreatedAt:               models.NewTime(time.Now()),
		EnvironmentName:         "review/$CI_COMMIT_REF_SLUG",
		ExpandedEnvironmentName: "review/feature",
		Options:                 models.EnvironmentOptions{Name: "review/$CI_COMMIT_REF_SLUG", OnStop: "stop_review"},
	}
	binding, created, err := bindingStore.FindOrCreate(ctx, nil, first)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "review/feature", binding.ExpandedEnvironmentName)

	// A later writer racing to bind the same job gets the first binding
	second := *first
	second.ExpandedEnvironmentName = "review/other"
	binding, created, err = bindingStore.FindOrCreate(ctx, nil, &second)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "review/feature", binding.ExpandedEnvironmentName)
	require.Equal(t, "stop_review", binding.Options.OnStop)

	_, err = bindingStore.Read(ctx, nil, 301)
	require.True(t, gerror.IsNotFound(err))

	invalid := &models.EnvironmentBinding{JobID: 302}
	_, _, err = bindingStore.FindOrCreate(ctx, nil, invalid)
	require.Error(t, err)
}
