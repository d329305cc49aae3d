package job_variables

import (
	"context"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
)

type SourceName string

func (n SourceName) String() string {
	return string(n)
}

const (
	SourceJobPredefined      SourceName = "job_predefined"
	SourceProjectPredefined  SourceName = "project_predefined"
	SourcePipelinePredefined SourceName = "pipeline_predefined"
	SourceRunnerPredefined   SourceName = "runner_predefined"
	SourceKubernetes         SourceName = "kubernetes"
	SourceDeployment         SourceName = "deployment"
	SourceYAML               SourceName = "yaml"
	SourceUser               SourceName = "user"
	SourceDependencies       SourceName = "dependencies"
	SourceInstanceSecrets    SourceName = "instance_secrets"
	SourceGroupSecrets       SourceName = "group_secrets"
	SourceProjectSecrets     SourceName = "project_secrets"
	SourceTriggerRequest     SourceName = "trigger_request"
	SourcePipelineVariables  SourceName = "pipeline_variables"
	SourcePipelineSchedule   SourceName = "pipeline_schedule"
)

// SourceOrder is the order in which sources are composed. A variable from a later source
// overrides a variable with the same key from an earlier source.
var SourceOrder = []SourceName{
	SourceJobPredefined,
	SourceProjectPredefined,
	SourcePipelinePredefined,
	SourceRunnerPredefined,
	SourceKubernetes,
	SourceDeployment,
	SourceYAML,
	SourceUser,
	SourceDependencies,
	SourceInstanceSecrets,
	SourceGroupSecrets,
	SourceProjectSecrets,
	SourceTriggerRequest,
	SourcePipelineVariables,
	SourcePipelineSchedule,
}

// SourceRequest is the input to a Source.
type SourceRequest struct {
	Job *JobContext
	// Environment is the expanded name of the environment to scope variables to, or nil when
	// composing variables that do not depend on an environment.
	Environment *string
}

// HasEnvironment returns true if variables are being composed for a named environment.
func (r *SourceRequest) HasEnvironment() bool {
	return r.Environment != nil && *r.Environment != ""
}

// Source produces one batch of a job's variables. Sources read the request but never modify it,
// and return an empty collection when they have nothing to contribute.
type Source interface {
	Name() SourceName
	Variables(ctx context.Context, request *SourceRequest) (*variables.Collection, error)
}

type SourceFunc func(ctx context.Context, request *SourceRequest) (*variables.Collection, error)

type funcSource struct {
	name SourceName
	fn   SourceFunc
}

// NewSource makes a Source from a function.
func NewSource(name SourceName, fn SourceFunc) Source {
	return &funcSource{name: name, fn: fn}
}

func (s *funcSource) Name() SourceName {
	return s.name
}

func (s *funcSource) Variables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	return s.fn(ctx, request)
}

func (c *Composer) defaultSources() []Source {
	return []Source{
		NewSource(SourceJobPredefined, c.jobPredefinedVariables),
		NewSource(SourceProjectPredefined, c.projectPredefinedVariables),
		NewSource(SourcePipelinePredefined, c.pipelinePredefinedVariables),
		NewSource(SourceRunnerPredefined, c.runnerPredefinedVariables),
		NewSource(SourceKubernetes, c.kubernetesVariables),
		NewSource(SourceDeployment, c.deploymentVariables),
		NewSource(SourceYAML, c.yamlVariables),
		NewSource(SourceUser, c.userVariables),
		NewSource(SourceDependencies, c.dependencyVariables),
		NewSource(SourceInstanceSecrets, c.instanceSecretVariables),
		NewSource(SourceGroupSecrets, c.groupSecretVariables),
		NewSource(SourceProjectSecrets, c.projectSecretVariables),
		NewSource(SourceTriggerRequest, c.triggerRequestVariables),
		NewSource(SourcePipelineVariables, c.pipelineVariables),
		NewSource(SourcePipelineSchedule, c.pipelineScheduleVariables),
	}
}

func (c *Composer) yamlVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	for _, variable := range request.Job.YAMLVariables() {
		result.Append(variables.ItemFromYAMLVariable(variable))
	}
	return result, nil
}

func (c *Composer) userVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	user := request.Job.User
	if user == nil {
		return result, nil
	}
	result.AppendPublic("GITLAB_USER_ID", formatID(user.ID))
	result.AppendPublic("GITLAB_USER_EMAIL", user.Email)
	result.AppendPublic("GITLAB_USER_LOGIN", user.Username)
	result.AppendPublic("GITLAB_USER_NAME", user.Name)
	return result, nil
}

func (c *Composer) dependencyVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	dependencies := request.Job.Job.DependencyJobIDs
	if len(dependencies) == 0 {
		return result, nil
	}
	exported, err := c.dotenvStore.ListByJobs(ctx, nil, dependencies)
	if err != nil {
		return nil, err
	}
	for _, variable := range exported {
		result.Append(variables.NewSecretItem(variable.Key, variable.Value))
	}
	return result, nil
}

func (c *Composer) instanceSecretVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	return c.secretVariables(ctx, request, models.VariableOwnerInstance, 0)
}

func (c *Composer) groupSecretVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	return c.secretVariables(ctx, request, models.VariableOwnerGroup, request.Job.Project.GroupIDs...)
}

func (c *Composer) projectSecretVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	return c.secretVariables(ctx, request, models.VariableOwnerProject, request.Job.Project.ID)
}

func (c *Composer) triggerRequestVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	if request.Job.Pipeline.TriggerRequestID == 0 {
		return variables.NewCollection(), nil
	}
	return c.storedVariables(ctx, models.VariableOwnerTriggerRequest, request.Job.Pipeline.TriggerRequestID)
}

func (c *Composer) pipelineVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	return c.storedVariables(ctx, models.VariableOwnerPipeline, request.Job.Pipeline.ID)
}

func (c *Composer) pipelineScheduleVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	if request.Job.Pipeline.ScheduleID == 0 {
		return variables.NewCollection(), nil
	}
	return c.storedVariables(ctx, models.VariableOwnerPipelineSchedule, request.Job.Pipeline.ScheduleID)
}

// secretVariables returns the administered variables of the owners that are visible to the job:
// the variable's environment scope must match the environment being composed for, and protected
// variables are only visible to jobs running for a protected ref.
func (c *Composer) secretVariables(ctx context.Context, request *SourceRequest, ownerKind models.VariableOwnerKind, ownerIDs ...int64) (*variables.Collection, error) {
	result := variables.NewCollection()
	if len(ownerIDs) == 0 {
		return result, nil
	}
	list, err := c.variableService.ListPlaintextByOwners(ctx, nil, ownerKind, ownerIDs...)
	if err != nil {
		return nil, err
	}
	job := request.Job.Job
	protectedRef := request.Job.Project.IsProtectedRef(job.Ref, job.Tag)
	for _, variable := range list {
		if variable.Protected && !protectedRef {
			continue
		}
		if !models.EnvironmentScopeMatches(variable.EnvironmentScope, request.Environment) {
			continue
		}
		result.Append(variables.ItemFromVariable(variable))
	}
	return result, nil
}

func (c *Composer) storedVariables(ctx context.Context, ownerKind models.VariableOwnerKind, ownerID int64) (*variables.Collection, error) {
	list, err := c.variableService.ListPlaintextByOwners(ctx, nil, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	result := variables.NewCollection()
	for _, variable := range list {
		result.Append(variables.ItemFromVariable(variable))
	}
	return result, nil
}
