package job_variables_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
	"github.com/buildbeaver/jobvars/server/app/server_test"
	"github.com/buildbeaver/jobvars/server/dto"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
)

func newTestServer(t *testing.T) (*server_test.TestServer, *prometheus.Registry, func()) {
	registry := prometheus.NewRegistry()
	config := server_test.TestConfig(t)
	config.MetricsRegisterer = registry
	app, cleanup, err := server_test.New(config)
	require.NoError(t, err)
	return app, registry, cleanup
}

// compositionSamples returns the number of observations in the composition duration histogram.
func compositionSamples(t *testing.T, registry *prometheus.Registry) uint64 {
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "jobvars_variable_composition_duration_seconds" {
			require.Len(t, family.GetMetric(), 1)
			return family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func newJobContext(execution *dto.JobExecution, config models.JobConfig) *job_variables.JobContext {
	definition := &models.JobDefinition{ProjectID: execution.Job.ProjectID, Config: config}
	return job_variables.NewJobContext(execution, definition, nil)
}

func TestComposerPrecedence(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	execution := server_test.NewTestExecution(100, "main", "")
	execution.Pipeline.TriggerRequestID = 70
	execution.Pipeline.ScheduleID = 80

	server_test.CreateVariable(t, ctx, app, models.VariableOwnerInstance, 0, "INSTANCE_ONLY", "instance")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerInstance, 0, "TOKEN", "instance-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, server_test.TestRootGroup, "TOKEN", "root-group-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, server_test.TestSubgroup, "TOKEN", "subgroup-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerGroup, server_test.TestSubgroup, "GROUP_TOKEN", "subgroup-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID, "TOKEN", "project-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID, "PROJECT_TOKEN", "project-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerTriggerRequest, 70, "TRIGGER_TOKEN", "trigger-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipeline, execution.Pipeline.ID, "TOKEN", "pipeline-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipeline, execution.Pipeline.ID, "TRIGGER_TOKEN", "pipeline-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipelineSchedule, 80, "SCHEDULE_TOKEN", "schedule-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipeline, execution.Pipeline.ID, "SCHEDULE_TOKEN", "pipeline-val")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipeline, execution.Pipeline.ID, "CI_COMMIT_REF_NAME", "overridden")

	config := server_test.NewEnvironmentConfig(nil,
		models.YAMLVariable{Key: "PROJECT_TOKEN", Value: "yaml-val"},
		models.YAMLVariable{Key: "YAML_ONLY", Value: "yaml", Public: true},
	)
	collection, err := app.Composer.SimpleVariables(ctx, newJobContext(execution, config))
	require.NoError(t, err)
	flat := collection.ToMap()

	require.Equal(t, "instance", flat["INSTANCE_ONLY"])
	require.Equal(t, "yaml", flat["YAML_ONLY"])
	require.Equal(t, "pipeline-val", flat["TOKEN"], "pipeline variables override every secret level")
	require.Equal(t, "subgroup-val", flat["GROUP_TOKEN"])
	require.Equal(t, "project-val", flat["PROJECT_TOKEN"], "project secrets override YAML variables")
	require.Equal(t, "pipeline-val", flat["TRIGGER_TOKEN"], "pipeline variables override trigger variables")
	require.Equal(t, "schedule-val", flat["SCHEDULE_TOKEN"], "schedule variables override pipeline variables")
	require.Equal(t, "overridden", flat["CI_COMMIT_REF_NAME"], "user variables override predefined variables")

	t.Run("SubgroupOverridesRootGroup", func(t *testing.T) {
		var groupValues []string
		for _, item := range collection.Items() {
			if item.Key == "TOKEN" {
				groupValues = append(groupValues, item.Value)
			}
		}
		require.Equal(t, []string{"instance-val", "root-group-val", "subgroup-val", "project-val", "pipeline-val"}, groupValues)
	})

	t.Run("SecretsAreNotPublic", func(t *testing.T) {
		item, ok := collection.Get("PROJECT_TOKEN")
		require.True(t, ok)
		require.False(t, item.Public)
		item, ok = collection.Get("YAML_ONLY")
		require.True(t, ok)
		require.True(t, item.Public)
	})
}

func TestComposerEndToEnd(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	execution := server_test.NewTestExecution(110, "main", "")
	server_test.CreateJob(t, ctx, app, execution, models.JobConfig{
		YAMLVariables: models.YAMLVariables{{Key: "FOO", Value: "bar"}, {Key: "GREETING", Value: "hello $FOO"}},
	})
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID, "FOO", "project-secret")
	server_test.CreateVariable(t, ctx, app, models.VariableOwnerPipeline, execution.Pipeline.ID, "FOO", "pipeline-final")

	jc, err := app.ContextLoader.Load(ctx, nil, execution)
	require.NoError(t, err)
	require.NotNil(t, jc.Definition)

	collection, err := app.Composer.ScopedVariables(ctx, jc, nil, true)
	require.NoError(t, err)
	expanded := collection.SortAndExpandAll()
	require.Equal(t, "pipeline-final", expanded["FOO"])
	require.Equal(t, "hello pipeline-final", expanded["GREETING"])

	payload, err := app.Composer.RunnerPayload(ctx, jc)
	require.NoError(t, err)
	var foos []string
	for _, variable := range payload {
		if variable.Key == "FOO" {
			foos = append(foos, variable.Value)
		}
	}
	require.Equal(t, []string{"bar", "project-secret", "pipeline-final"}, foos, "the runner receives every definition in precedence order")
}

func TestComposerPredefinedVariables(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	execution := server_test.NewTestExecution(120, "feature/Login", "")
	execution.Job.RunnerID = 9
	execution.Runner = &models.Runner{ID: 9, Description: "shared runner", Tags: []string{"docker", "linux"}}

	collection, err := app.Composer.Variables(ctx, newJobContext(execution, models.JobConfig{}))
	require.NoError(t, err)
	flat := collection.ToMap()

	require.Equal(t, "true", flat["CI"])
	require.Equal(t, server_test.TestServerURL, flat["CI_SERVER_URL"])
	require.Equal(t, "ci.example.com", flat["CI_SERVER_HOST"])
	require.Equal(t, "https", flat["CI_SERVER_PROTOCOL"])
	require.Equal(t, "120", flat["CI_JOB_ID"])
	require.Equal(t, server_test.TestServerURL+"/acme/frontend/web-app/-/jobs/120", flat["CI_JOB_URL"])
	require.Equal(t, "1", flat["CI_NODE_TOTAL"])
	require.Equal(t, "false", flat["CI_COMMIT_REF_PROTECTED"])
	require.Equal(t, "42", flat["CI_PROJECT_ID"])
	require.Equal(t, "acme/frontend/web-app", flat["CI_PROJECT_PATH"])
	require.Equal(t, "acme-frontend-web-app", flat["CI_PROJECT_PATH_SLUG"])
	require.Equal(t, "acme", flat["CI_PROJECT_ROOT_NAMESPACE"])
	require.Equal(t, ".gitlab-ci.yml", flat["CI_CONFIG_PATH"])
	require.Equal(t, "1000", flat["CI_PIPELINE_ID"])
	require.Equal(t, "12", flat["CI_PIPELINE_IID"])
	require.Equal(t, "push", flat["CI_PIPELINE_SOURCE"])
	require.Equal(t, "2024-05-01T12:00:00Z", flat["CI_PIPELINE_CREATED_AT"])
	require.Equal(t, server_test.TestSHA, flat["CI_COMMIT_SHA"])
	require.Equal(t, "2d3b8f2e", flat["CI_COMMIT_SHORT_SHA"])
	require.Equal(t, "0000000000000000000000000000000000000000", flat["CI_COMMIT_BEFORE_SHA"])
	require.Equal(t, "feature/Login", flat["CI_COMMIT_REF_NAME"])
	require.Equal(t, "feature-login", flat["CI_COMMIT_REF_SLUG"])
	require.Equal(t, "feature/Login", flat["CI_COMMIT_BRANCH"])
	require.NotContains(t, flat, "CI_COMMIT_TAG")
	require.Equal(t, flat["CI_COMMIT_SHA"], flat["CI_BUILD_REF"])
	require.Equal(t, "9", flat["CI_RUNNER_ID"])
	require.Equal(t, "docker, linux", flat["CI_RUNNER_TAGS"])
	require.Equal(t, "jdoe", flat["GITLAB_USER_LOGIN"])
	require.NotContains(t, flat, "CI_ENVIRONMENT_NAME")
	require.NotContains(t, flat, "KUBECONFIG")

	token, ok := collection.Get("CI_JOB_TOKEN")
	require.True(t, ok)
	require.True(t, token.Masked)
	require.False(t, token.Public)

	t.Run("ProtectedTag", func(t *testing.T) {
		execution := server_test.NewTestExecution(121, "v1.2.0", "")
		execution.Job.Tag = true
		execution.Pipeline.Tag = true
		collection, err := app.Composer.SimpleVariables(ctx, newJobContext(execution, models.JobConfig{}))
		require.NoError(t, err)
		flat := collection.ToMap()
		require.Equal(t, "v1.2.0", flat["CI_COMMIT_TAG"])
		require.Equal(t, "v1.2.0", flat["CI_BUILD_TAG"])
		require.NotContains(t, flat, "CI_COMMIT_BRANCH")
		require.Equal(t, "true", flat["CI_COMMIT_REF_PROTECTED"])
	})
}

func TestComposerDependencies(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	upstream := server_test.NewTestExecution(130, "main", "")
	server_test.CreateJob(t, ctx, app, upstream, models.JobConfig{})
	err := app.JobService.ExportDotenvVariables(ctx, nil, upstream.Job.ID, []*models.DotenvVariable{
		{Key: "BUILD_VERSION", Value: "1.2.3"},
	})
	require.NoError(t, err)

	downstream := server_test.NewTestExecution(131, "main", "")
	downstream.Job.DependencyJobIDs = models.Int64s{upstream.Job.ID}

	t.Run("Included", func(t *testing.T) {
		collection, err := app.Composer.SimpleVariables(ctx, newJobContext(downstream, models.JobConfig{}))
		require.NoError(t, err)
		item, ok := collection.Get("BUILD_VERSION")
		require.True(t, ok)
		require.Equal(t, "1.2.3", item.Value)
		require.False(t, item.Public)
	})

	t.Run("Excluded", func(t *testing.T) {
		collection, err := app.Composer.SimpleVariablesWithoutDependencies(ctx, newJobContext(downstream, models.JobConfig{}))
		require.NoError(t, err)
		_, ok := collection.Get("BUILD_VERSION")
		require.False(t, ok)
	})

	t.Run("SourceNotInvoked", func(t *testing.T) {
		called := 0
		composer := app.Composer.WithSource(job_variables.NewSource(job_variables.SourceDependencies,
			func(ctx context.Context, request *job_variables.SourceRequest) (*variables.Collection, error) {
				called++
				return variables.NewCollection(variables.NewSecretItem("FROM_ARTIFACT", "x")), nil
			}))
		jc := newJobContext(downstream, models.JobConfig{})
		collection, err := composer.SimpleVariablesWithoutDependencies(ctx, jc)
		require.NoError(t, err)
		require.Equal(t, 0, called)
		_, ok := collection.Get("FROM_ARTIFACT")
		require.False(t, ok)

		collection, err = composer.SimpleVariables(ctx, jc)
		require.NoError(t, err)
		require.Equal(t, 1, called)
		_, ok = collection.Get("FROM_ARTIFACT")
		require.True(t, ok)
	})
}

func TestComposerSecretScoping(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID,
		"DATABASE_URL", "review-db", "review/*", models.VariableAttributes{})
	server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerProject, server_test.TestProjectID,
		"DATABASE_URL", "production-db", "production", models.VariableAttributes{})
	server_test.CreateVariableWithScope(t, ctx, app, models.VariableOwnerGroup, server_test.TestRootGroup,
		"DEPLOY_KEY", "deploy-key-value", models.AllEnvironmentsScope, models.VariableAttributes{Protected: true, Masked: true})

	t.Run("EnvironmentScope", func(t *testing.T) {
		jc := newJobContext(server_test.NewTestExecution(140, "main", ""), models.JobConfig{})

		review := "review/foo"
		collection, err := app.Composer.ScopedVariables(ctx, jc, &review, true)
		require.NoError(t, err)
		require.Equal(t, "review-db", collection.Value("DATABASE_URL"))

		production := "production"
		collection, err = app.Composer.ScopedVariables(ctx, jc, &production, true)
		require.NoError(t, err)
		require.Equal(t, "production-db", collection.Value("DATABASE_URL"))

		nested := "review/foo/bar"
		collection, err = app.Composer.ScopedVariables(ctx, jc, &nested, true)
		require.NoError(t, err)
		_, ok := collection.Get("DATABASE_URL")
		require.False(t, ok)

		collection, err = app.Composer.ScopedVariables(ctx, jc, nil, true)
		require.NoError(t, err)
		_, ok = collection.Get("DATABASE_URL")
		require.False(t, ok, "scoped variables are hidden from jobs without an environment")
	})

	t.Run("ProtectedRef", func(t *testing.T) {
		collection, err := app.Composer.SimpleVariables(ctx, newJobContext(server_test.NewTestExecution(141, "main", ""), models.JobConfig{}))
		require.NoError(t, err)
		item, ok := collection.Get("DEPLOY_KEY")
		require.True(t, ok)
		require.True(t, item.Masked)

		collection, err = app.Composer.SimpleVariables(ctx, newJobContext(server_test.NewTestExecution(142, "release/2.0", ""), models.JobConfig{}))
		require.NoError(t, err)
		_, ok = collection.Get("DEPLOY_KEY")
		require.True(t, ok)

		collection, err = app.Composer.SimpleVariables(ctx, newJobContext(server_test.NewTestExecution(143, "feature/login", ""), models.JobConfig{}))
		require.NoError(t, err)
		_, ok = collection.Get("DEPLOY_KEY")
		require.False(t, ok, "protected variables are hidden from unprotected refs")
	})
}

func TestComposerSourceOrder(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	var called []job_variables.SourceName
	composer := app.Composer
	for _, name := range job_variables.SourceOrder {
		name := name
		composer = composer.WithSource(job_variables.NewSource(name,
			func(ctx context.Context, request *job_variables.SourceRequest) (*variables.Collection, error) {
				called = append(called, name)
				return variables.NewCollection(variables.NewPublicItem("WINNER", name.String())), nil
			}))
	}

	collection, err := composer.SimpleVariables(ctx, newJobContext(server_test.NewTestExecution(150, "main", ""), models.JobConfig{}))
	require.NoError(t, err)
	require.Equal(t, job_variables.SourceOrder, called)
	require.Equal(t, string(job_variables.SourcePipelineSchedule), collection.Value("WINNER"))

	called = nil
	_, err = composer.SimpleVariablesWithoutDependencies(ctx, newJobContext(server_test.NewTestExecution(151, "main", ""), models.JobConfig{}))
	require.NoError(t, err)
	require.NotContains(t, called, job_variables.SourceDependencies)
	require.Len(t, called, len(job_variables.SourceOrder)-1)
}

func TestComposerMemoization(t *testing.T) {
	ctx := context.Background()
	app, registry, cleanup := newTestServer(t)
	defer cleanup()

	calls := 0
	composer := app.Composer.WithSource(job_variables.NewSource(job_variables.SourceYAML,
		func(ctx context.Context, request *job_variables.SourceRequest) (*variables.Collection, error) {
			calls++
			return variables.NewCollection(variables.NewPublicItem("COUNTED", "yes")), nil
		}))
	jc := newJobContext(server_test.NewTestExecution(160, "main", ""), models.JobConfig{})

	first, err := composer.SimpleVariables(ctx, jc)
	require.NoError(t, err)
	second, err := composer.SimpleVariables(ctx, jc)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, uint64(1), compositionSamples(t, registry))
	require.Equal(t, first.Items(), second.Items())

	t.Run("ResultsAreCopies", func(t *testing.T) {
		first.Append(variables.NewPublicItem("LOCAL", "change"))
		third, err := composer.SimpleVariables(ctx, jc)
		require.NoError(t, err)
		_, ok := third.Get("LOCAL")
		require.False(t, ok)
	})

	t.Run("KeyedByArguments", func(t *testing.T) {
		_, err := composer.SimpleVariablesWithoutDependencies(ctx, jc)
		require.NoError(t, err)
		production := "production"
		_, err = composer.ScopedVariables(ctx, jc, &production, true)
		require.NoError(t, err)
		_, err = composer.ScopedVariables(ctx, jc, &production, true)
		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Equal(t, uint64(3), compositionSamples(t, registry))
	})

	t.Run("NewContext", func(t *testing.T) {
		other := newJobContext(server_test.NewTestExecution(161, "main", ""), models.JobConfig{})
		_, err := composer.SimpleVariables(ctx, other)
		require.NoError(t, err)
		require.Equal(t, 4, calls)
	})
}

func TestComposerFailClosed(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	cause := errors.New("group variables unavailable")
	composer := app.Composer.WithSource(job_variables.NewSource(job_variables.SourceGroupSecrets,
		func(ctx context.Context, request *job_variables.SourceRequest) (*variables.Collection, error) {
			return nil, cause
		}))
	jc := newJobContext(server_test.NewTestExecution(170, "main", ""), models.JobConfig{})

	collection, err := composer.SimpleVariables(ctx, jc)
	require.Error(t, err)
	require.Nil(t, collection)
	require.True(t, gerror.IsVariableCompositionFailed(err))
	require.ErrorIs(t, err, cause)
	require.NotContains(t, gerror.UserMessage(err), "group")

	t.Run("NotMemoized", func(t *testing.T) {
		collection, err := app.Composer.SimpleVariables(ctx, jc)
		require.NoError(t, err)
		require.NotZero(t, collection.Len())
	})

	t.Run("EnvironmentNameFails", func(t *testing.T) {
		jc := newJobContext(server_test.NewTestExecution(171, "main", "review/$CI_COMMIT_REF_SLUG"),
			server_test.NewEnvironmentConfig(&models.EnvironmentOptions{Name: "review/$CI_COMMIT_REF_SLUG"}))
		_, err := composer.Variables(ctx, jc)
		require.True(t, gerror.IsVariableCompositionFailed(err))
	})
}

func TestComposerKubernetes(t *testing.T) {
	ctx := context.Background()
	app, _, cleanup := newTestServer(t)
	defer cleanup()

	platform := &models.DeploymentPlatform{
		ClusterName:      "review-cluster",
		APIURL:           "https://kube.example.com",
		CAData:           "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n",
		Token:            "service-account-token",
		Namespace:        "default-namespace",
		EnvironmentScope: "review/*",
	}
	newContext := func(jobID int64, environment string, namespace string) *job_variables.JobContext {
		execution := server_test.NewTestExecution(jobID, "feature/login", environment)
		execution.Platform = platform
		options := &models.EnvironmentOptions{Name: environment, URL: "https://$CI_ENVIRONMENT_SLUG.example.com"}
		if namespace != "" {
			options.Kubernetes = &models.KubernetesOptions{Namespace: namespace}
		}
		return newJobContext(execution, server_test.NewEnvironmentConfig(options))
	}

	t.Run("Deployment", func(t *testing.T) {
		jc := newContext(180, "review/$CI_COMMIT_REF_SLUG", "review-$CI_COMMIT_REF_SLUG")
		collection, err := app.Composer.Variables(ctx, jc)
		require.NoError(t, err)
		flat := collection.ToMap()
		require.Equal(t, "review/feature-login", flat["CI_ENVIRONMENT_NAME"])
		require.Equal(t, models.EnvironmentSlug("review/feature-login"), flat["CI_ENVIRONMENT_SLUG"])
		require.Equal(t, "start", flat["CI_ENVIRONMENT_ACTION"])
		require.Equal(t, "development", flat["CI_ENVIRONMENT_TIER"])
		require.Equal(t, "https://$CI_ENVIRONMENT_SLUG.example.com", flat["CI_ENVIRONMENT_URL"])
		require.Equal(t, "https://kube.example.com", flat["KUBE_URL"])
		require.Equal(t, "review-feature-login", flat["KUBE_NAMESPACE"])
		require.Equal(t, "true", flat["CI_KUBERNETES_ACTIVE"])

		kubeconfig, ok := collection.Get("KUBECONFIG")
		require.True(t, ok)
		require.True(t, kubeconfig.File)
		require.Contains(t, kubeconfig.Value, "namespace: review-feature-login")
		token, ok := collection.Get("KUBE_TOKEN")
		require.True(t, ok)
		require.True(t, token.Masked)

		expanded := collection.SortAndExpandAll()
		require.Equal(t, "https://"+flat["CI_ENVIRONMENT_SLUG"]+".example.com", expanded["CI_ENVIRONMENT_URL"])
	})

	t.Run("InvalidNamespaceOmitsKubeconfig", func(t *testing.T) {
		jc := newContext(181, "review/$CI_COMMIT_REF_SLUG", "Review_$CI_COMMIT_REF_SLUG")
		collection, err := app.Composer.Variables(ctx, jc)
		require.NoError(t, err)
		_, ok := collection.Get("KUBECONFIG")
		require.False(t, ok)
		require.Equal(t, "https://kube.example.com", collection.Value("KUBE_URL"))
	})

	t.Run("PlatformScope", func(t *testing.T) {
		jc := newContext(182, "production", "")
		collection, err := app.Composer.Variables(ctx, jc)
		require.NoError(t, err)
		require.Equal(t, "production", collection.Value("CI_ENVIRONMENT_NAME"))
		require.Equal(t, "production", collection.Value("CI_ENVIRONMENT_TIER"))
		_, ok := collection.Get("KUBECONFIG")
		require.False(t, ok)
		_, ok = collection.Get("KUBE_URL")
		require.False(t, ok)
	})

	t.Run("DefaultNamespace", func(t *testing.T) {
		jc := newContext(183, "review/$CI_COMMIT_REF_SLUG", "")
		collection, err := app.Composer.Variables(ctx, jc)
		require.NoError(t, err)
		require.Equal(t, "default-namespace", collection.Value("KUBE_NAMESPACE"))
	})
}
