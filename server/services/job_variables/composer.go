package job_variables

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/variables"
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/store"
)

const (
	compositionDurationNamespace = "jobvars"
	compositionDurationName      = "variable_composition_duration_seconds"
)

// ComposerConfig describes the server that jobs are run for.
type ComposerConfig struct {
	ServerURL     string
	ServerName    string
	ServerVersion string
}

// Composer assembles the variables of a job from each Source in SourceOrder.
type Composer struct {
	variableService   services.VariableService
	dotenvStore       store.DotenvVariableStore
	bindingStore      store.EnvironmentBindingStore
	kubeconfigService services.KubeconfigService
	config            ComposerConfig
	duration          prometheus.Histogram
	overrides         map[SourceName]Source
	environments      *EnvironmentResolver
	clk               clock.Clock
	logFactory        logger.LogFactory
	logger.Log
}

func NewComposer(
	variableService services.VariableService,
	dotenvStore store.DotenvVariableStore,
	bindingStore store.EnvironmentBindingStore,
	kubeconfigService services.KubeconfigService,
	config ComposerConfig,
	registerer prometheus.Registerer,
	clk clock.Clock,
	logFactory logger.LogFactory) (*Composer, error) {
	duration, err := newCompositionDurationHistogram(registerer)
	if err != nil {
		return nil, err
	}
	c := &Composer{
		variableService:   variableService,
		dotenvStore:       dotenvStore,
		bindingStore:      bindingStore,
		kubeconfigService: kubeconfigService,
		config:            config,
		duration:          duration,
		clk:               clk,
		logFactory:        logFactory,
		Log:               logFactory("VariableComposer"),
	}
	c.environments = newEnvironmentResolver(c, bindingStore, clk, logFactory)
	return c, nil
}

// newCompositionDurationHistogram makes the histogram that composition durations are observed into,
// reusing the histogram already registered with registerer if there is one.
func newCompositionDurationHistogram(registerer prometheus.Registerer) (prometheus.Histogram, error) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: compositionDurationNamespace,
		Name:      compositionDurationName,
		Help:      "Time taken to compose the variables of a job.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	if registerer == nil {
		return histogram, nil
	}
	err := registerer.Register(histogram)
	if err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if ok {
				return existing, nil
			}
		}
		return nil, errors.Wrap(err, "error registering composition duration histogram")
	}
	return histogram, nil
}

// Environments returns the resolver for the environment-related attributes of jobs.
func (c *Composer) Environments() *EnvironmentResolver {
	return c.environments
}

// WithSource returns a copy of the composer that uses source in place of the source of the same name.
func (c *Composer) WithSource(source Source) *Composer {
	clone := *c
	clone.overrides = make(map[SourceName]Source, len(c.overrides)+1)
	for name, override := range c.overrides {
		clone.overrides[name] = override
	}
	clone.overrides[source.Name()] = source
	clone.environments = newEnvironmentResolver(&clone, c.bindingStore, c.clk, c.logFactory)
	return &clone
}

// sources returns the sources to compose, in SourceOrder.
func (c *Composer) sources() []Source {
	sources := c.defaultSources()
	for i, source := range sources {
		if override, ok := c.overrides[source.Name()]; ok {
			sources[i] = override
		}
	}
	return sources
}

// ScopedVariables returns the variables of the job in jc, scoped to environment (which may be nil if the job
// is not being composed for an environment). Dependency variables are only included when dependencies
// is true. Results are memoized in jc; each call returns a new collection that the caller may modify.
// If any source fails the whole composition fails with gerror.ErrVariableCompositionFailed.
func (c *Composer) ScopedVariables(ctx context.Context, jc *JobContext, environment *string, dependencies bool) (*variables.Collection, error) {
	key := newScopeKey(environment, dependencies)
	if jc.scoped == nil {
		jc.scoped = make(map[scopeKey]*variables.Collection)
	}
	if collection, ok := jc.scoped[key]; ok {
		return collection.Concat(nil), nil
	}
	collection, err := c.compose(ctx, jc, environment, dependencies)
	if err != nil {
		return nil, err
	}
	jc.scoped[key] = collection
	return collection.Concat(nil), nil
}

func (c *Composer) compose(ctx context.Context, jc *JobContext, environment *string, dependencies bool) (*variables.Collection, error) {
	start := c.clk.Now()
	defer func() {
		c.duration.Observe(c.clk.Since(start).Seconds())
	}()

	log := c.WithFields(logFieldsForJob(jc))
	request := &SourceRequest{Job: jc, Environment: environment}
	result := variables.NewCollection()
	for _, source := range c.sources() {
		if source.Name() == SourceDependencies && !dependencies {
			continue
		}
		collection, err := source.Variables(ctx, request)
		if err != nil {
			log.WithField("source", source.Name()).Errorf("Error composing variables: %v", err)
			return nil, gerror.NewErrVariableCompositionFailed(source.Name().String(), err)
		}
		result = result.Concat(collection)
	}

	_, err := result.Sort()
	if err != nil {
		log.Warnf("Variables will not be fully expanded: %v", err)
	}
	log.Tracef("Composed %d variables", result.Len())
	return result, nil
}

// SimpleVariables returns the variables of the job that do not depend on an environment.
func (c *Composer) SimpleVariables(ctx context.Context, jc *JobContext) (*variables.Collection, error) {
	return c.ScopedVariables(ctx, jc, nil, true)
}

// SimpleVariablesWithoutDependencies returns the variables of the job that depend on neither an environment
// nor the job's upstream dependencies.
func (c *Composer) SimpleVariablesWithoutDependencies(ctx context.Context, jc *JobContext) (*variables.Collection, error) {
	return c.ScopedVariables(ctx, jc, nil, false)
}

// Variables returns the complete variables of the job, scoped to the job's environment if it has one.
func (c *Composer) Variables(ctx context.Context, jc *JobContext) (*variables.Collection, error) {
	if !jc.Job.HasEnvironmentKeyword() {
		return c.ScopedVariables(ctx, jc, nil, true)
	}
	name, err := c.environments.ExpandedEnvironmentName(ctx, jc)
	if err != nil {
		return nil, err
	}
	return c.ScopedVariables(ctx, jc, &name, true)
}

// RunnerPayload returns the variables of the job in the form they are sent to a runner.
func (c *Composer) RunnerPayload(ctx context.Context, jc *JobContext) ([]variables.RunnerVariable, error) {
	collection, err := c.Variables(ctx, jc)
	if err != nil {
		return nil, err
	}
	return collection.RunnerPayload(), nil
}

func logFieldsForJob(jc *JobContext) logger.Fields {
	return logger.Fields{
		"job_id":      jc.Job.ID,
		"pipeline_id": jc.Job.PipelineID,
		"project_id":  jc.Job.ProjectID,
	}
}
