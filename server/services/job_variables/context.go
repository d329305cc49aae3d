package job_variables

import (
	"context"
	"fmt"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
	"github.com/buildbeaver/jobvars/server/dto"
	"github.com/buildbeaver/jobvars/server/store"
)

// JobContext is everything needed to compose the variables of one job. It memoizes composed
// variables and the job's environment binding, so it must be scoped to a single request or
// worker invocation and must not be shared between goroutines.
type JobContext struct {
	Job      *models.Job
	Pipeline *models.Pipeline
	Project  *models.Project
	// User is the user who triggered the job, or nil.
	User *models.User
	// Runner is the runner the job has been assigned to, or nil.
	Runner *models.Runner
	// Platform is the Kubernetes cluster the project deploys to, or nil.
	Platform *models.DeploymentPlatform
	// Definition and Metadata are the two places a job's configuration can be stored. Either or
	// both may be nil; the accessors below read the definition first.
	Definition *models.JobDefinition
	Metadata   *models.JobMetadata

	binding       *models.EnvironmentBinding
	bindingLoaded bool
	expandedName  *string
	scoped        map[scopeKey]*variables.Collection
}

type scopeKey struct {
	environment    string
	hasEnvironment bool
	dependencies   bool
}

func newScopeKey(environment *string, dependencies bool) scopeKey {
	key := scopeKey{dependencies: dependencies}
	if environment != nil {
		key.environment = *environment
		key.hasEnvironment = true
	}
	return key
}

// NewJobContext makes a context for a job whose configuration is supplied directly.
func NewJobContext(execution *dto.JobExecution, definition *models.JobDefinition, metadata *models.JobMetadata) *JobContext {
	return &JobContext{
		Job:        execution.Job,
		Pipeline:   execution.Pipeline,
		Project:    execution.Project,
		User:       execution.User,
		Runner:     execution.Runner,
		Platform:   execution.Platform,
		Definition: definition,
		Metadata:   metadata,
		scoped:     make(map[scopeKey]*variables.Collection),
	}
}

// Options returns the job's options, or nil if the job has no stored configuration.
func (c *JobContext) Options() *models.JobOptions {
	if c.Definition != nil && c.Definition.Config.Options != nil {
		return c.Definition.Config.Options
	}
	if c.Metadata != nil {
		return &c.Metadata.ConfigOptions
	}
	return nil
}

// YAMLVariables returns the variables defined in the job's configuration.
func (c *JobContext) YAMLVariables() models.YAMLVariables {
	if c.Definition != nil && c.Definition.Config.YAMLVariables != nil {
		return c.Definition.Config.YAMLVariables
	}
	if c.Metadata != nil {
		return c.Metadata.ConfigVariables
	}
	return nil
}

// Interruptible returns true if the job may be canceled when a newer pipeline starts.
func (c *JobContext) Interruptible() bool {
	if c.Definition != nil && c.Definition.Config.Interruptible != nil {
		return *c.Definition.Config.Interruptible
	}
	if c.Metadata != nil {
		return c.Metadata.Interruptible
	}
	return false
}

// IDTokens returns the ID tokens the job requested.
func (c *JobContext) IDTokens() models.IDTokens {
	if c.Definition != nil && c.Definition.Config.IDTokens != nil {
		return c.Definition.Config.IDTokens
	}
	if c.Metadata != nil {
		return c.Metadata.IDTokens
	}
	return nil
}

// EnvironmentOptions returns the environment keyword from the job's live configuration, or nil.
func (c *JobContext) EnvironmentOptions() *models.EnvironmentOptions {
	options := c.Options()
	if options == nil {
		return nil
	}
	return options.Environment
}

// PermanentEnvironmentOptions reduces environment options to the fields that are kept for the
// lifetime of a job's environment binding.
func PermanentEnvironmentOptions(options *models.EnvironmentOptions) models.EnvironmentOptions {
	if options == nil {
		return models.EnvironmentOptions{}
	}
	permanent := models.EnvironmentOptions{
		Action:         options.Action,
		DeploymentTier: options.DeploymentTier,
	}
	if namespace := options.KubernetesNamespace(); namespace != "" {
		permanent.Kubernetes = &models.KubernetesOptions{Namespace: namespace}
	}
	return permanent
}

// ContextLoader loads the stored configuration of jobs into JobContexts.
type ContextLoader struct {
	definitionStore store.JobDefinitionStore
	metadataStore   store.JobMetadataStore
	logger.Log
}

func NewContextLoader(
	definitionStore store.JobDefinitionStore,
	metadataStore store.JobMetadataStore,
	logFactory logger.LogFactory) *ContextLoader {
	return &ContextLoader{
		definitionStore: definitionStore,
		metadataStore:   metadataStore,
		Log:             logFactory("ContextLoader"),
	}
}

// Load makes a JobContext for the job in execution, reading its definition and metadata.
func (l *ContextLoader) Load(ctx context.Context, txOrNil *store.Tx, execution *dto.JobExecution) (*JobContext, error) {
	err := execution.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid job execution").Wrap(err)
	}
	var definition *models.JobDefinition
	if execution.Job.DefinitionChecksum != "" {
		definition, err = l.definitionStore.Read(ctx, txOrNil, execution.Job.ProjectID, execution.Job.DefinitionChecksum)
		if err != nil {
			return nil, fmt.Errorf("error reading definition of job %d: %w", execution.Job.ID, err)
		}
	}
	metadata, err := l.metadataStore.Read(ctx, txOrNil, execution.Job.ID)
	if err != nil {
		if !gerror.IsNotFound(err) {
			return nil, fmt.Errorf("error reading metadata of job %d: %w", execution.Job.ID, err)
		}
		metadata = nil
	}
	if definition == nil && metadata == nil {
		l.WithField("job_id", execution.Job.ID).Warn("Job has no stored configuration")
	}
	return NewJobContext(execution, definition, metadata), nil
}
