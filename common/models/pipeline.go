package models

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v2"
)

// PipelineSource is what caused a pipeline to be created.
type PipelineSource string

const (
	PipelineSourcePush     PipelineSource = "push"
	PipelineSourceWeb      PipelineSource = "web"
	PipelineSourceTrigger  PipelineSource = "trigger"
	PipelineSourceSchedule PipelineSource = "schedule"
	PipelineSourceAPI      PipelineSource = "api"
	PipelineSourcePipeline PipelineSource = "pipeline"
)

// Pipeline is the set of jobs run for a single commit.
type Pipeline struct {
	ID        int64          `json:"id" yaml:"id"`
	IID       int64          `json:"iid" yaml:"iid"`
	ProjectID int64          `json:"project_id" yaml:"project_id"`
	Source    PipelineSource `json:"source" yaml:"source"`
	Ref       string         `json:"ref" yaml:"ref"`
	Tag       bool           `json:"tag" yaml:"tag"`
	SHA       string         `json:"sha" yaml:"sha"`
	BeforeSHA string         `json:"before_sha" yaml:"before_sha"`
	// CommitTitle and CommitMessage describe the head commit of the pipeline.
	CommitTitle   string `json:"commit_title" yaml:"commit_title"`
	CommitMessage string `json:"commit_message" yaml:"commit_message"`
	CommitAuthor  string `json:"commit_author" yaml:"commit_author"`
	// ScheduleID is set when the pipeline was created by a pipeline schedule.
	ScheduleID int64 `json:"schedule_id" yaml:"schedule_id"`
	// TriggerRequestID is set when the pipeline was created by a trigger request.
	TriggerRequestID int64 `json:"trigger_request_id" yaml:"trigger_request_id"`
	CreatedAt        Time  `json:"created_at" yaml:"-"`
}

// ShortSHA returns the first 8 characters of the pipeline's commit SHA.
func (m *Pipeline) ShortSHA() string {
	if len(m.SHA) > 8 {
		return m.SHA[:8]
	}
	return m.SHA
}

func (m *Pipeline) Validate() error {
	if m.ID == 0 {
		return errors.New("error id must be set")
	}
	if m.ProjectID == 0 {
		return errors.New("error project id must be set")
	}
	return nil
}

// Project is a repository and its CI settings.
type Project struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Path          string `json:"path" yaml:"path"`
	NamespacePath string `json:"namespace_path" yaml:"namespace_path"`
	WebURL        string `json:"web_url" yaml:"web_url"`
	Visibility    string `json:"visibility" yaml:"visibility"`
	CIConfigPath  string `json:"ci_config_path" yaml:"ci_config_path"`
	DefaultBranch string `json:"default_branch" yaml:"default_branch"`
	// GroupIDs are the groups the project belongs to, ordered from the root group down to the
	// project's immediate parent.
	GroupIDs []int64 `json:"group_ids" yaml:"group_ids"`
	// ProtectedBranches and ProtectedTags are glob patterns naming protected refs.
	ProtectedBranches []string `json:"protected_branches" yaml:"protected_branches"`
	ProtectedTags     []string `json:"protected_tags" yaml:"protected_tags"`
}

// FullPath returns the project's path including its namespace.
func (m *Project) FullPath() string {
	if m.NamespacePath == "" {
		return m.Path
	}
	return m.NamespacePath + "/" + m.Path
}

// RootNamespace returns the top level namespace the project lives in.
func (m *Project) RootNamespace() string {
	full := m.FullPath()
	if i := strings.Index(full, "/"); i >= 0 {
		return full[:i]
	}
	return full
}

// IsProtectedRef returns true if ref matches one of the project's protected branch or tag patterns.
func (m *Project) IsProtectedRef(ref string, tag bool) bool {
	patterns := m.ProtectedBranches
	if tag {
		patterns = m.ProtectedTags
	}
	for _, pattern := range patterns {
		if pattern == ref {
			return true
		}
		match, err := doublestar.Match(pattern, ref)
		if err == nil && match {
			return true
		}
	}
	return false
}

// DeploymentPlatform is a Kubernetes cluster that jobs deploying to a matching environment
// can access.
type DeploymentPlatform struct {
	ClusterName      string `json:"cluster_name" yaml:"cluster_name"`
	APIURL           string `json:"api_url" yaml:"api_url"`
	CAData           string `json:"ca_data" yaml:"ca_data"`
	Token            string `json:"-" yaml:"token"`
	Namespace        string `json:"namespace" yaml:"namespace"`
	EnvironmentScope string `json:"environment_scope" yaml:"environment_scope"`
}

// DeploymentStatus tracks a deployment's progress, mirroring the status of its job.
type DeploymentStatus string

const (
	DeploymentStatusCreated  DeploymentStatus = "created"
	DeploymentStatusRunning  DeploymentStatus = "running"
	DeploymentStatusSuccess  DeploymentStatus = "success"
	DeploymentStatusFailed   DeploymentStatus = "failed"
	DeploymentStatusCanceled DeploymentStatus = "canceled"
	DeploymentStatusSkipped  DeploymentStatus = "skipped"
	DeploymentStatusBlocked  DeploymentStatus = "blocked"
)

// DeploymentStatusForJob returns the deployment status matching a job status.
func DeploymentStatusForJob(status JobStatus) DeploymentStatus {
	switch status {
	case JobStatusRunning:
		return DeploymentStatusRunning
	case JobStatusSuccess:
		return DeploymentStatusSuccess
	case JobStatusFailed:
		return DeploymentStatusFailed
	case JobStatusCanceled:
		return DeploymentStatusCanceled
	case JobStatusSkipped:
		return DeploymentStatusSkipped
	case JobStatusManual, JobStatusScheduled:
		return DeploymentStatusBlocked
	default:
		return DeploymentStatusCreated
	}
}
