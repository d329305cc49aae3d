package job_variables

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
)

const blankSHA = "0000000000000000000000000000000000000000"

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func (c *Composer) jobPredefinedVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	jc := request.Job
	job := jc.Job
	result := variables.NewCollection()
	result.AppendPublic("CI", "true")
	result.AppendPublic("GITLAB_CI", "true")
	result.AppendPublic("CI_SERVER_URL", c.config.ServerURL)
	if serverURL, err := url.Parse(c.config.ServerURL); err == nil && serverURL.Host != "" {
		result.AppendPublic("CI_SERVER_HOST", serverURL.Hostname())
		result.AppendPublic("CI_SERVER_PROTOCOL", serverURL.Scheme)
		if port := serverURL.Port(); port != "" {
			result.AppendPublic("CI_SERVER_PORT", port)
		}
	}
	result.AppendPublic("CI_SERVER_NAME", c.config.ServerName)
	result.AppendPublic("CI_SERVER_VERSION", c.config.ServerVersion)
	result.AppendPublic("CI_JOB_ID", formatID(job.ID))
	result.AppendPublic("CI_JOB_URL", fmt.Sprintf("%s/-/jobs/%d", jc.Project.WebURL, job.ID))
	result.AppendPublic("CI_JOB_NAME", job.Name)
	result.AppendPublic("CI_JOB_STAGE", job.Stage)
	if job.Token != "" {
		result.Append(variables.Item{Key: "CI_JOB_TOKEN", Value: job.Token, Masked: true})
	}
	if job.ParallelTotal > 0 {
		result.AppendPublic("CI_NODE_INDEX", strconv.Itoa(job.NodeIndex))
		result.AppendPublic("CI_NODE_TOTAL", strconv.Itoa(job.ParallelTotal))
	} else {
		result.AppendPublic("CI_NODE_TOTAL", "1")
	}
	if jc.Pipeline.TriggerRequestID != 0 {
		result.AppendPublic("CI_PIPELINE_TRIGGERED", "true")
	}
	result.AppendPublic("CI_COMMIT_REF_PROTECTED", formatBool(jc.Project.IsProtectedRef(job.Ref, job.Tag)))
	result.AppendPublic("CI_BUILD_NAME", job.Name)
	result.AppendPublic("CI_BUILD_STAGE", job.Stage)

	if request.HasEnvironment() {
		environment, err := c.environmentVariables(ctx, request)
		if err != nil {
			return nil, err
		}
		result = result.Concat(environment)
	}
	return result, nil
}

func (c *Composer) environmentVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	jc := request.Job
	name := *request.Environment
	result := variables.NewCollection()
	result.AppendPublic("CI_ENVIRONMENT_NAME", name)
	result.AppendPublic("CI_ENVIRONMENT_SLUG", models.EnvironmentSlug(name))
	action, err := c.environments.EnvironmentAction(ctx, jc)
	if err != nil {
		return nil, err
	}
	result.AppendPublic("CI_ENVIRONMENT_ACTION", action.String())
	tier, err := c.environments.EnvironmentTier(ctx, jc)
	if err != nil {
		return nil, err
	}
	result.AppendPublic("CI_ENVIRONMENT_TIER", tier.String())
	if options := jc.EnvironmentOptions(); options != nil && options.URL != "" {
		result.AppendPublic("CI_ENVIRONMENT_URL", options.URL)
	}
	return result, nil
}

func (c *Composer) projectPredefinedVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	project := request.Job.Project
	result := variables.NewCollection()
	result.AppendPublic("CI_PROJECT_ID", formatID(project.ID))
	result.AppendPublic("CI_PROJECT_NAME", project.Path)
	result.AppendPublic("CI_PROJECT_TITLE", project.Name)
	result.AppendPublic("CI_PROJECT_PATH", project.FullPath())
	result.AppendPublic("CI_PROJECT_PATH_SLUG", models.RefSlug(project.FullPath()))
	result.AppendPublic("CI_PROJECT_NAMESPACE", project.NamespacePath)
	result.AppendPublic("CI_PROJECT_ROOT_NAMESPACE", project.RootNamespace())
	result.AppendPublic("CI_PROJECT_URL", project.WebURL)
	result.AppendPublic("CI_PROJECT_VISIBILITY", project.Visibility)
	result.AppendPublic("CI_DEFAULT_BRANCH", project.DefaultBranch)
	configPath := project.CIConfigPath
	if configPath == "" {
		configPath = ".gitlab-ci.yml"
	}
	result.AppendPublic("CI_CONFIG_PATH", configPath)
	return result, nil
}

func (c *Composer) pipelinePredefinedVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	pipeline := request.Job.Pipeline
	result := variables.NewCollection()
	result.AppendPublic("CI_PIPELINE_ID", formatID(pipeline.ID))
	result.AppendPublic("CI_PIPELINE_IID", formatID(pipeline.IID))
	result.AppendPublic("CI_PIPELINE_SOURCE", string(pipeline.Source))
	result.AppendPublic("CI_PIPELINE_URL", fmt.Sprintf("%s/-/pipelines/%d", request.Job.Project.WebURL, pipeline.ID))
	if !pipeline.CreatedAt.IsZero() {
		result.AppendPublic("CI_PIPELINE_CREATED_AT", pipeline.CreatedAt.UTC().Format(time.RFC3339))
	}

	beforeSHA := pipeline.BeforeSHA
	if beforeSHA == "" {
		beforeSHA = blankSHA
	}
	refSlug := models.RefSlug(pipeline.Ref)
	result.AppendPublic("CI_COMMIT_SHA", pipeline.SHA)
	result.AppendPublic("CI_COMMIT_SHORT_SHA", pipeline.ShortSHA())
	result.AppendPublic("CI_COMMIT_BEFORE_SHA", beforeSHA)
	result.AppendPublic("CI_COMMIT_REF_NAME", pipeline.Ref)
	result.AppendPublic("CI_COMMIT_REF_SLUG", refSlug)
	if pipeline.Tag {
		result.AppendPublic("CI_COMMIT_TAG", pipeline.Ref)
	} else {
		result.AppendPublic("CI_COMMIT_BRANCH", pipeline.Ref)
	}
	result.AppendPublic("CI_COMMIT_TITLE", pipeline.CommitTitle)
	result.AppendPublic("CI_COMMIT_MESSAGE", pipeline.CommitMessage)
	result.AppendPublic("CI_COMMIT_AUTHOR", pipeline.CommitAuthor)

	result.AppendPublic("CI_BUILD_REF", pipeline.SHA)
	result.AppendPublic("CI_BUILD_BEFORE_SHA", beforeSHA)
	result.AppendPublic("CI_BUILD_REF_NAME", pipeline.Ref)
	result.AppendPublic("CI_BUILD_REF_SLUG", refSlug)
	if pipeline.Tag {
		result.AppendPublic("CI_BUILD_TAG", pipeline.Ref)
	}
	return result, nil
}

func (c *Composer) runnerPredefinedVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	runner := request.Job.Runner
	if runner == nil {
		return result, nil
	}
	result.AppendPublic("CI_RUNNER_ID", formatID(runner.ID))
	result.AppendPublic("CI_RUNNER_DESCRIPTION", runner.Description)
	result.AppendPublic("CI_RUNNER_TAGS", strings.Join(runner.Tags, ", "))
	if runner.Version != "" {
		result.AppendPublic("CI_RUNNER_VERSION", runner.Version)
	}
	return result, nil
}

// deploymentPlatform returns the platform a job deploying to the requested environment may use,
// or nil if there is none.
func deploymentPlatform(request *SourceRequest) *models.DeploymentPlatform {
	platform := request.Job.Platform
	if platform == nil || !request.HasEnvironment() {
		return nil
	}
	if !models.EnvironmentScopeMatches(platform.EnvironmentScope, request.Environment) {
		return nil
	}
	return platform
}

func (c *Composer) kubernetesVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	platform := deploymentPlatform(request)
	if platform == nil {
		return result, nil
	}
	namespace, err := c.environments.ExpandedKubernetesNamespace(ctx, request.Job)
	if err != nil {
		return nil, err
	}
	kubeconfig, err := c.kubeconfigService.Build(platform, namespace)
	if err != nil {
		c.WithFields(logFieldsForJob(request.Job)).Debugf("Omitting KUBECONFIG: %v", err)
		return result, nil
	}
	result.Append(variables.Item{Key: "KUBECONFIG", Value: kubeconfig, File: true})
	return result, nil
}

func (c *Composer) deploymentVariables(ctx context.Context, request *SourceRequest) (*variables.Collection, error) {
	result := variables.NewCollection()
	platform := deploymentPlatform(request)
	if platform == nil {
		return result, nil
	}
	namespace, err := c.environments.ExpandedKubernetesNamespace(ctx, request.Job)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = platform.Namespace
	}
	result.AppendPublic("KUBE_URL", platform.APIURL)
	if platform.Token != "" {
		result.Append(variables.Item{Key: "KUBE_TOKEN", Value: platform.Token, Masked: true})
	}
	if namespace != "" {
		result.AppendPublic("KUBE_NAMESPACE", namespace)
	}
	if platform.CAData != "" {
		result.AppendPublic("KUBE_CA_PEM", platform.CAData)
		result.Append(variables.Item{Key: "KUBE_CA_PEM_FILE", Value: platform.CAData, Public: true, File: true})
	}
	result.AppendPublic("CI_KUBERNETES_ACTIVE", "true")
	return result, nil
}
