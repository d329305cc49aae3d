package job_variables

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
	"github.com/buildbeaver/jobvars/server/store"
)

// EnvironmentResolver computes the environment-related attributes of jobs that have an environment keyword.
//
// Attributes are read from two places. The processing options are the job's live configuration, which is
// only available until the job's configuration is archived. The permanent options are a snapshot of a few
// fields taken when the job's environment binding is created, and outlive the configuration. String
// attributes prefer the processing options and are expanded against the job's simple variables.
type EnvironmentResolver struct {
	composer     *Composer
	bindingStore store.EnvironmentBindingStore
	clk          clock.Clock
	logger.Log
}

func newEnvironmentResolver(
	composer *Composer,
	bindingStore store.EnvironmentBindingStore,
	clk clock.Clock,
	logFactory logger.LogFactory) *EnvironmentResolver {
	return &EnvironmentResolver{
		composer:     composer,
		bindingStore: bindingStore,
		clk:          clk,
		Log:          logFactory("EnvironmentResolver"),
	}
}

// Binding returns the environment binding of the job, or nil if the job has no environment keyword
// or has not been bound yet. The binding is read at most once per JobContext.
func (r *EnvironmentResolver) Binding(ctx context.Context, jc *JobContext) (*models.EnvironmentBinding, error) {
	if jc.bindingLoaded {
		return jc.binding, nil
	}
	if !jc.Job.HasEnvironmentKeyword() {
		return nil, nil
	}
	binding, err := r.bindingStore.Read(ctx, nil, jc.Job.ID)
	if err != nil {
		if !gerror.IsNotFound(err) {
			return nil, fmt.Errorf("error reading environment binding of job %d: %w", jc.Job.ID, err)
		}
		binding = nil
	}
	jc.binding = binding
	jc.bindingLoaded = true
	return binding, nil
}

// SetBinding replaces the binding of the job in jc without persisting it. Used to evaluate jobs
// that have not been saved, such as during a pipeline dry run.
func (r *EnvironmentResolver) SetBinding(jc *JobContext, binding *models.EnvironmentBinding) {
	jc.binding = binding
	jc.bindingLoaded = true
	jc.expandedName = nil
}

// EnsureBinding binds the job in jc to its environment, expanding the environment name and freezing the
// permanent environment options. If the job is already bound the existing binding is returned.
// Returns nil if the job has no environment keyword.
func (r *EnvironmentResolver) EnsureBinding(ctx context.Context, txOrNil *store.Tx, jc *JobContext) (*models.EnvironmentBinding, error) {
	if !jc.Job.HasEnvironmentKeyword() {
		return nil, nil
	}
	binding, err := r.Binding(ctx, jc)
	if err != nil {
		return nil, err
	}
	if binding != nil {
		return binding, nil
	}
	name, err := r.ExpandedEnvironmentName(ctx, jc)
	if err != nil {
		return nil, err
	}
	binding = &models.EnvironmentBinding{
		JobID:                   jc.Job.ID,
		ProjectID:               jc.Job.ProjectID,
		CreatedAt:               models.NewTime(r.clk.Now()),
		EnvironmentName:         jc.Job.Environment,
		ExpandedEnvironmentName: name,
		Options:                 PermanentEnvironmentOptions(jc.EnvironmentOptions()),
	}
	binding, created, err := r.bindingStore.FindOrCreate(ctx, txOrNil, binding)
	if err != nil {
		return nil, fmt.Errorf("error binding job %d to environment: %w", jc.Job.ID, err)
	}
	if created {
		r.WithFields(logFieldsForJob(jc)).WithField("environment", binding.ExpandedEnvironmentName).Info("Bound job to environment")
	}
	jc.binding = binding
	jc.bindingLoaded = true
	jc.expandedName = nil
	return binding, nil
}

// ExpandedEnvironmentName returns the name of the environment the job deploys to. The name is taken
// from the job's binding if it has one, otherwise it is expanded from the environment keyword.
func (r *EnvironmentResolver) ExpandedEnvironmentName(ctx context.Context, jc *JobContext) (string, error) {
	if !jc.Job.HasEnvironmentKeyword() {
		return "", nil
	}
	binding, err := r.Binding(ctx, jc)
	if err != nil {
		return "", err
	}
	if binding != nil {
		return binding.ExpandedEnvironmentName, nil
	}
	if jc.expandedName != nil {
		return *jc.expandedName, nil
	}
	name, err := r.expand(ctx, jc, jc.Job.Environment, true)
	if err != nil {
		return "", err
	}
	jc.expandedName = &name
	return name, nil
}

// EnvironmentSlug returns the slug of the environment the job deploys to.
func (r *EnvironmentResolver) EnvironmentSlug(ctx context.Context, jc *JobContext) (string, error) {
	name, err := r.ExpandedEnvironmentName(ctx, jc)
	if err != nil || name == "" {
		return "", err
	}
	return models.EnvironmentSlug(name), nil
}

// ExpandedKubernetesNamespace returns the Kubernetes namespace the job deploys to, or "" if none was configured.
func (r *EnvironmentResolver) ExpandedKubernetesNamespace(ctx context.Context, jc *JobContext) (string, error) {
	return r.expandOption(ctx, jc, func(options *models.EnvironmentOptions) string {
		return options.KubernetesNamespace()
	})
}

// ExpandedDeploymentTier returns the tier configured for the job's environment, or "" if none was configured.
func (r *EnvironmentResolver) ExpandedDeploymentTier(ctx context.Context, jc *JobContext) (string, error) {
	return r.expandOption(ctx, jc, func(options *models.EnvironmentOptions) string {
		return options.DeploymentTier
	})
}

// ExpandedAutoStopIn returns the period after which the job's environment is stopped, or "" if none was configured.
func (r *EnvironmentResolver) ExpandedAutoStopIn(ctx context.Context, jc *JobContext) (string, error) {
	return r.expandOption(ctx, jc, func(options *models.EnvironmentOptions) string {
		return options.AutoStopIn
	})
}

// EnvironmentTier returns the deployment tier of the job's environment, guessing it from the environment
// name when no valid tier is configured.
func (r *EnvironmentResolver) EnvironmentTier(ctx context.Context, jc *JobContext) (models.DeploymentTier, error) {
	configured, err := r.ExpandedDeploymentTier(ctx, jc)
	if err != nil {
		return "", err
	}
	if tier, ok := models.ParseDeploymentTier(configured); ok {
		return tier, nil
	}
	name, err := r.ExpandedEnvironmentName(ctx, jc)
	if err != nil {
		return "", err
	}
	return models.GuessDeploymentTier(name), nil
}

// EnvironmentAction returns what the job does to its environment, read from the permanent options.
func (r *EnvironmentResolver) EnvironmentAction(ctx context.Context, jc *JobContext) (models.EnvironmentAction, error) {
	options, err := r.permanentOptions(ctx, jc)
	if err != nil {
		return "", err
	}
	action, err := models.ParseEnvironmentAction(options.Action)
	if err != nil {
		return "", gerror.NewErrValidationFailed("Invalid environment action").Wrap(err)
	}
	return action, nil
}

// IsDeploymentJob returns true if the job starts its environment.
func (r *EnvironmentResolver) IsDeploymentJob(ctx context.Context, jc *JobContext) (bool, error) {
	return r.hasAction(ctx, jc, models.EnvironmentActionStart)
}

// StopsEnvironment returns true if the job stops its environment.
func (r *EnvironmentResolver) StopsEnvironment(ctx context.Context, jc *JobContext) (bool, error) {
	return r.hasAction(ctx, jc, models.EnvironmentActionStop)
}

// AccessesEnvironment returns true if the job only accesses its environment.
func (r *EnvironmentResolver) AccessesEnvironment(ctx context.Context, jc *JobContext) (bool, error) {
	return r.hasAction(ctx, jc, models.EnvironmentActionAccess)
}

// PreparesEnvironment returns true if the job prepares its environment without deploying to it.
func (r *EnvironmentResolver) PreparesEnvironment(ctx context.Context, jc *JobContext) (bool, error) {
	return r.hasAction(ctx, jc, models.EnvironmentActionPrepare)
}

// VerifiesEnvironment returns true if the job verifies its environment.
func (r *EnvironmentResolver) VerifiesEnvironment(ctx context.Context, jc *JobContext) (bool, error) {
	return r.hasAction(ctx, jc, models.EnvironmentActionVerify)
}

func (r *EnvironmentResolver) hasAction(ctx context.Context, jc *JobContext, action models.EnvironmentAction) (bool, error) {
	if !jc.Job.HasEnvironmentKeyword() {
		return false, nil
	}
	actual, err := r.EnvironmentAction(ctx, jc)
	if err != nil {
		return false, err
	}
	return actual == action, nil
}

// permanentOptions returns the options frozen in the job's binding, or the permanent subset of the
// processing options if the job has not been bound.
func (r *EnvironmentResolver) permanentOptions(ctx context.Context, jc *JobContext) (models.EnvironmentOptions, error) {
	binding, err := r.Binding(ctx, jc)
	if err != nil {
		return models.EnvironmentOptions{}, err
	}
	if binding != nil {
		return binding.Options, nil
	}
	return PermanentEnvironmentOptions(jc.EnvironmentOptions()), nil
}

func (r *EnvironmentResolver) expandOption(ctx context.Context, jc *JobContext, field func(options *models.EnvironmentOptions) string) (string, error) {
	if !jc.Job.HasEnvironmentKeyword() {
		return "", nil
	}
	var raw string
	if processing := jc.EnvironmentOptions(); processing != nil {
		raw = field(processing)
	}
	if raw == "" {
		permanent, err := r.permanentOptions(ctx, jc)
		if err != nil {
			return "", err
		}
		raw = field(&permanent)
	}
	if raw == "" {
		return "", nil
	}
	return r.expand(ctx, jc, raw, false)
}

// expand expands template against the job's simple variables. When resolved is true the variables
// are themselves expanded before substitution.
func (r *EnvironmentResolver) expand(ctx context.Context, jc *JobContext, template string, resolved bool) (string, error) {
	var scopeErr error
	scope := func() *variables.Collection {
		collection, err := r.composer.SimpleVariables(ctx, jc)
		if err != nil {
			scopeErr = err
			return nil
		}
		return collection
	}
	var expanded string
	if resolved {
		expanded = variables.ExpandResolved(template, scope)
	} else {
		expanded = variables.Expand(template, scope)
	}
	if scopeErr != nil {
		return "", scopeErr
	}
	return expanded, nil
}
