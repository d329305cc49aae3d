package server_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/dto"
)

const (
	TestProjectID  = int64(42)
	TestPipelineID = int64(1000)
	TestRootGroup  = int64(7)
	TestSubgroup   = int64(8)
	TestSHA        = "2d3b8f2e1c6a9d7b4e5f60718293a4b5c6d7e8f9"
)

// NewTestProject returns a project in a subgroup of a root group, with main and release branches protected.
func NewTestProject() *models.Project {
	return &models.Project{
		ID:                TestProjectID,
		Name:              "Web App",
		Path:              "web-app",
		NamespacePath:     "acme/frontend",
		WebURL:            TestServerURL + "/acme/frontend/web-app",
		Visibility:        "private",
		DefaultBranch:     "main",
		GroupIDs:          []int64{TestRootGroup, TestSubgroup},
		ProtectedBranches: []string{"main", "release/*"},
		ProtectedTags:     []string{"v*"},
	}
}

// NewTestPipeline returns a branch pipeline for ref.
func NewTestPipeline(ref string) *models.Pipeline {
	return &models.Pipeline{
		ID:            TestPipelineID,
		IID:           12,
		ProjectID:     TestProjectID,
		Source:        models.PipelineSourcePush,
		Ref:           ref,
		SHA:           TestSHA,
		CommitTitle:   "Add login page",
		CommitMessage: "Add login page\n\nWith a form.",
		CommitAuthor:  "Jane Doe <jane@example.com>",
		CreatedAt:     models.NewTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
}

// NewTestExecution returns an execution for a new pending job in the test pipeline. environment is the
// raw environment name of the job, or "" if the job does not deploy.
func NewTestExecution(jobID int64, ref string, environment string) *dto.JobExecution {
	return &dto.JobExecution{
		Job: &models.Job{
			ID:          jobID,
			CreatedAt:   models.NewTime(time.Now()),
			Name:        fmt.Sprintf("job-%d", jobID),
			Stage:       "deploy",
			ProjectID:   TestProjectID,
			PipelineID:  TestPipelineID,
			Ref:         ref,
			Status:      models.JobStatusCreated,
			Environment: environment,
			Token:       "job-token-value",
		},
		Pipeline: NewTestPipeline(ref),
		Project:  NewTestProject(),
		User: &models.User{
			ID:       5,
			Username: "jdoe",
			Email:    "jane@example.com",
			Name:     "Jane Doe",
		},
	}
}

// NewEnvironmentConfig returns a job config with an environment keyword and the given YAML variables.
func NewEnvironmentConfig(environment *models.EnvironmentOptions, yamlVariables ...models.YAMLVariable) models.JobConfig {
	return models.JobConfig{
		Options:       &models.JobOptions{Environment: environment, Script: []string{"make deploy"}},
		YAMLVariables: yamlVariables,
	}
}

// CreateJob persists the job in execution with config.
func CreateJob(t *testing.T, ctx context.Context, app *TestServer, execution *dto.JobExecution, config models.JobConfig) *models.Job {
	job, err := app.JobService.Create(ctx, &dto.CreateJob{
		JobExecution: *execution,
		Config:       config,
	})
	require.NoError(t, err)
	return job
}

// CreateVariable stores a plain, unprotected variable.
func CreateVariable(t *testing.T, ctx context.Context, app *TestServer, ownerKind models.VariableOwnerKind, ownerID int64, key string, value string) *models.Variable {
	return CreateVariableWithScope(t, ctx, app, ownerKind, ownerID, key, value, models.AllEnvironmentsScope, models.VariableAttributes{})
}

// CreateVariableWithScope stores a variable with the given environment scope and attributes.
func CreateVariableWithScope(
	t *testing.T,
	ctx context.Context,
	app *TestServer,
	ownerKind models.VariableOwnerKind,
	ownerID int64,
	key string,
	value string,
	environmentScope string,
	attributes models.VariableAttributes,
) *models.Variable {
	if attributes.VariableType == "" {
		attributes.VariableType = models.VariableTypeEnvVar
	}
	variable, err := app.VariableService.Create(ctx, nil, &dto.CreateVariable{
		OwnerKind:        ownerKind,
		OwnerID:          ownerID,
		Key:              key,
		ValuePlaintext:   value,
		Attributes:       attributes,
		EnvironmentScope: environmentScope,
	})
	require.NoError(t, err)
	return variable
}
