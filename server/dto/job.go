package dto

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/jobvars/common/models"
)

// JobExecution is everything the caller knows about a job that is about to run. Pipelines, projects,
// users and runners are owned by other systems and are supplied rather than loaded.
type JobExecution struct {
	Job      *models.Job
	Pipeline *models.Pipeline
	Project  *models.Project
	// User is the user who triggered the job, if any.
	User *models.User
	// Runner is the runner the job has been assigned to, if any.
	Runner *models.Runner
	// Platform is the Kubernetes cluster the project deploys to, if any.
	Platform *models.DeploymentPlatform
}

func (m *JobExecution) Validate() error {
	var result *multierror.Error
	if m.Job == nil {
		return errors.New("error job must be set")
	}
	if m.Pipeline == nil {
		result = multierror.Append(result, errors.New("error pipeline must be set"))
	} else if m.Pipeline.ID != m.Job.PipelineID {
		result = multierror.Append(result, fmt.Errorf("error mismatched pipeline ids: job has %d, pipeline is %d", m.Job.PipelineID, m.Pipeline.ID))
	}
	if m.Project == nil {
		result = multierror.Append(result, errors.New("error project must be set"))
	} else if m.Project.ID != m.Job.ProjectID {
		result = multierror.Append(result, fmt.Errorf("error mismatched project ids: job has %d, project is %d", m.Job.ProjectID, m.Project.ID))
	}
	if m.Runner != nil && m.Runner.ID != m.Job.RunnerID {
		result = multierror.Append(result, fmt.Errorf("error mismatched runner ids: job has %d, runner is %d", m.Job.RunnerID, m.Runner.ID))
	}
	return result.ErrorOrNil()
}

type CreateJob struct {
	JobExecution
	Config models.JobConfig
	// LegacyMetadata stores the config in per-job metadata instead of a shared job definition.
	LegacyMetadata bool
}

// Validate the create, and the underlying job.
func (m *CreateJob) Validate() error {
	var result *multierror.Error
	if err := m.JobExecution.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.Job != nil {
		if err := m.Job.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if m.Job.HasEnvironmentKeyword() && (m.Config.Options == nil || m.Config.Options.Environment == nil) {
			result = multierror.Append(result, errors.New("error jobs with an environment must have environment options"))
		}
	}
	return result.ErrorOrNil()
}

// JobTransition describes a job status change that has been committed.
type JobTransition struct {
	JobID      int64
	ProjectID  int64
	PipelineID int64
	// Environment is the raw environment name of the job, or "" if it does not deploy.
	Environment      string
	From             models.JobStatus
	To               models.JobStatus
	DeploymentStatus models.DeploymentStatus
	At               models.Time
}

// IsLoopback returns true if the transition did not change the job's status.
func (m *JobTransition) IsLoopback() bool {
	return m.From == m.To
}
