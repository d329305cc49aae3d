package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// Job is a single job within a pipeline, as needed to compose its variables.
type Job struct {
	ID         int64     `json:"id" yaml:"id" goqu:"skipupdate" db:"job_id"`
	CreatedAt  Time      `json:"created_at" yaml:"-" goqu:"skipupdate" db:"job_created_at"`
	Name       string    `json:"name" yaml:"name" db:"job_name"`
	Stage      string    `json:"stage" yaml:"stage" db:"job_stage"`
	ProjectID  int64     `json:"project_id" yaml:"project_id" db:"job_project_id"`
	PipelineID int64     `json:"pipeline_id" yaml:"pipeline_id" db:"job_pipeline_id"`
	Ref        string    `json:"ref" yaml:"ref" db:"job_ref"`
	Tag        bool      `json:"tag" yaml:"tag" db:"job_tag"`
	Status     JobStatus `json:"status" yaml:"status" db:"job_status"`
	// Token is the job's CI job token. It is never persisted.
	Token string `json:"-" yaml:"token" db:"-"`
	// Environment is the raw environment name from the job's environment keyword, or "" if the job
	// does not deploy to an environment.
	Environment string `json:"environment" yaml:"environment" db:"job_environment"`
	// UserID is the user the job runs as, if any.
	UserID int64 `json:"user_id" yaml:"user_id" db:"job_user_id"`
	// RunnerID is the runner the job has been assigned to, if any.
	RunnerID int64 `json:"runner_id" yaml:"runner_id" db:"job_runner_id"`
	// ParallelTotal is the total number of parallel instances of the job, or 0 if not parallel.
	ParallelTotal int `json:"parallel_total" yaml:"parallel_total" db:"job_parallel_total"`
	// NodeIndex is the 1-based index of this instance of a parallel job.
	NodeIndex int `json:"node_index" yaml:"node_index" db:"job_node_index"`
	// DefinitionChecksum refers to the JobDefinition holding this job's configuration, if any.
	DefinitionChecksum string `json:"definition_checksum" yaml:"definition_checksum" db:"job_definition_checksum"`
	// DependencyJobIDs are the upstream jobs whose dotenv artifacts are exposed to this job.
	DependencyJobIDs Int64s `json:"dependency_job_ids" yaml:"dependency_job_ids" db:"job_dependency_job_ids"`
}

// HasEnvironmentKeyword returns true if the job was configured with an environment keyword.
func (m *Job) HasEnvironmentKeyword() bool {
	return m.Environment != ""
}

func (m *Job) Validate() error {
	if m.ID == 0 {
		return errors.New("error id must be set")
	}
	if m.Name == "" {
		return errors.New("error name must be set")
	}
	if m.ProjectID == 0 {
		return errors.New("error project id must be set")
	}
	if m.PipelineID == 0 {
		return errors.New("error pipeline id must be set")
	}
	if !m.Status.Valid() {
		return fmt.Errorf("error invalid status: %q", m.Status)
	}
	return nil
}

// Runner is the runner a job has been assigned to.
type Runner struct {
	ID          int64    `json:"id" yaml:"id"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
	Version     string   `json:"version" yaml:"version"`
}

// User is the user a job runs as.
type User struct {
	ID       int64  `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Name     string `json:"name" yaml:"name"`
}

// DotenvVariable is a variable exported by a job through a dotenv report artifact, made available
// to downstream jobs that depend on it.
type DotenvVariable struct {
	JobID int64  `json:"job_id" db:"dotenv_variable_job_id"`
	Key   string `json:"key" db:"dotenv_variable_key"`
	Value string `json:"value" db:"dotenv_variable_value"`
}

func (m *DotenvVariable) Validate() error {
	if m.JobID == 0 {
		return errors.New("error job id must be set")
	}
	return ValidateVariableKey(m.Key)
}

// Int64s is a list of IDs stored as a JSON array.
type Int64s []int64

func (s *Int64s) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func (s Int64s) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return valueJSON(s)
}
