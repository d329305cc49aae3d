package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/models"
)

func strPtr(s string) *string {
	return &s
}

func TestEnvironmentScopeMatches(t *testing.T) {
	require.True(t, models.EnvironmentScopeMatches("*", nil))
	require.True(t, models.EnvironmentScopeMatches("", nil))
	require.True(t, models.EnvironmentScopeMatches("*", strPtr("production")))
	require.False(t, models.EnvironmentScopeMatches("production", nil))
	require.True(t, models.EnvironmentScopeMatches("production", strPtr("production")))
	require.False(t, models.EnvironmentScopeMatches("production", strPtr("staging")))
	require.True(t, models.EnvironmentScopeMatches("review/*", strPtr("review/feature-1")))
	require.False(t, models.EnvironmentScopeMatches("review/*", strPtr("production")))
}

func TestParseEnvironmentAction(t *testing.T) {
	action, err := models.ParseEnvironmentAction("")
	require.NoError(t, err)
	require.Equal(t, models.EnvironmentActionStart, action)

	action, err = models.ParseEnvironmentAction("stop")
	require.NoError(t, err)
	require.Equal(t, models.EnvironmentActionStop, action)

	_, err = models.ParseEnvironmentAction("destroy")
	require.Error(t, err)
}

func TestDeploymentTier(t *testing.T) {
	tier, ok := models.ParseDeploymentTier("Production")
	require.True(t, ok)
	require.Equal(t, models.DeploymentTierProduction, tier)

	_, ok = models.ParseDeploymentTier("moon")
	require.False(t, ok)

	require.Equal(t, models.DeploymentTierProduction, models.GuessDeploymentTier("production"))
	require.Equal(t, models.DeploymentTierStaging, models.GuessDeploymentTier("staging"))
	require.Equal(t, models.DeploymentTierDevelopment, models.GuessDeploymentTier("review/feature"))
	require.Equal(t, models.DeploymentTierTesting, models.GuessDeploymentTier("qa"))
	require.Equal(t, models.DeploymentTierOther, models.GuessDeploymentTier("canary"))
}

func TestSlugs(t *testing.T) {
	t.Run("Ref", func(t *testing.T) {
		require.Equal(t, "feature-my-branch", models.RefSlug("feature/My_Branch"))
		require.Equal(t, "v1-0", models.RefSlug("-v1.0-"))
		require.Len(t, models.RefSlug(strings.Repeat("a", 100)), 63)
	})

	t.Run("Environment", func(t *testing.T) {
		require.Equal(t, "production", models.EnvironmentSlug("production"))

		slug := models.EnvironmentSlug("review/Feature_Branch_With_A_Long_Name")
		require.Len(t, slug, 24)
		require.True(t, strings.HasPrefix(slug, "review-feature-br-"))
		require.NotEqual(t, slug, models.EnvironmentSlug("review/Feature_Branch_With_A_Long_Name2"))

		require.True(t, strings.HasPrefix(models.EnvironmentSlug("1env"), "env-1env-"))
	})
}

func TestJobDefinitionChecksum(t *testing.T) {
	config := models.JobConfig{
		Options: &models.JobOptions{
			Environment: &models.EnvironmentOptions{Name: "review/$CI_COMMIT_REF_SLUG"},
		},
		YAMLVariables: models.YAMLVariables{{Key: "A", Value: "1", Public: true}},
	}
	def1, err := models.NewJobDefinition(models.NewTime(time.Now()), 1, config)
	require.NoError(t, err)
	def2, err := models.NewJobDefinition(models.NewTime(time.Now()), 1, config)
	require.NoError(t, err)
	require.Equal(t, def1.Checksum, def2.Checksum)
	require.NoError(t, def1.Validate())

	config.YAMLVariables[0].Value = "2"
	def3, err := models.NewJobDefinition(models.NewTime(time.Now()), 1, config)
	require.NoError(t, err)
	require.NotEqual(t, def1.Checksum, def3.Checksum)

	def1.Config = config
	require.Error(t, def1.Validate())
}

func TestJobStatusTransitions(t *testing.T) {
	require.True(t, models.JobStatusPending.CanTransitionTo(models.JobStatusRunning))
	require.True(t, models.JobStatusRunning.CanTransitionTo(models.JobStatusSuccess))
	require.False(t, models.JobStatusSuccess.CanTransitionTo(models.JobStatusRunning))
	require.False(t, models.JobStatusCreated.CanTransitionTo(models.JobStatusRunning))
	require.True(t, models.JobStatusFailed.HasFinished())
	require.False(t, models.JobStatusManual.IsActive())
	require.True(t, models.JobStatusRunning.IsActive())
}

func TestProjectIsProtectedRef(t *testing.T) {
	project := &models.Project{
		ProtectedBranches: []string{"main", "release/*"},
		ProtectedTags:     []string{"v*"},
	}
	require.True(t, project.IsProtectedRef("main", false))
	require.True(t, project.IsProtectedRef("release/1.0", false))
	require.False(t, project.IsProtectedRef("feature", false))
	require.True(t, project.IsProtectedRef("v1.2", true))
	require.False(t, project.IsProtectedRef("main", true))
}
