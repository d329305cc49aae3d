package variables

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/alessio/shellescape"
	"gopkg.in/yaml.v2"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/common/variables"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/dto"
)

const maskedValue = "[MASKED]"

// Resolution is the outcome of resolving the variables of a fixture job.
type Resolution struct {
	// Environment is the job's expanded environment name, or "" if the job does not deploy.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	// Variables is the runner payload, in precedence order with duplicate keys preserved.
	Variables []variables.RunnerVariable `json:"variables" yaml:"variables"`
	// Resolved is the flattened and expanded view of Variables.
	Resolved map[string]string `json:"-" yaml:"-"`
}

// Resolve loads the fixture into a fresh server built from config, then composes the variables of
// the fixture's job.
func Resolve(ctx context.Context, config *app.ServerConfig, fixture *Fixture) (*Resolution, error) {
	server, cleanup, err := app.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error starting server: %w", err)
	}
	defer cleanup()

	for _, dotenv := range fixture.Dotenv {
		upstream := &models.Job{
			ID:         dotenv.JobID,
			Name:       dotenv.JobName,
			Stage:      fixture.Job.Stage,
			ProjectID:  fixture.Job.ProjectID,
			PipelineID: fixture.Job.PipelineID,
			Ref:        fixture.Job.Ref,
			Tag:        fixture.Job.Tag,
			Status:     models.JobStatusSuccess,
		}
		execution := *fixture.Execution()
		execution.Job = upstream
		execution.Runner = nil
		_, err = server.JobService.Create(ctx, &dto.CreateJob{JobExecution: execution})
		if err != nil {
			return nil, fmt.Errorf("error creating upstream job %d: %w", dotenv.JobID, err)
		}
		exported := make([]*models.DotenvVariable, 0, len(dotenv.Variables))
		for _, kv := range dotenv.Variables {
			exported = append(exported, &models.DotenvVariable{Key: kv.Key, Value: kv.Value})
		}
		err = server.JobService.ExportDotenvVariables(ctx, nil, dotenv.JobID, exported)
		if err != nil {
			return nil, err
		}
	}

	for _, variable := range fixture.Variables {
		_, err = server.VariableService.Create(ctx, nil, variable.create())
		if err != nil {
			return nil, fmt.Errorf("error creating variable %q: %w", variable.Key, err)
		}
	}

	execution := fixture.Execution()
	_, err = server.JobService.Create(ctx, &dto.CreateJob{
		JobExecution:   *execution,
		Config:         fixture.Config,
		LegacyMetadata: fixture.LegacyMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating job: %w", err)
	}

	jc, err := server.ContextLoader.Load(ctx, nil, execution)
	if err != nil {
		return nil, err
	}
	collection, err := server.Composer.Variables(ctx, jc)
	if err != nil {
		return nil, err
	}
	resolution := &Resolution{
		Variables: collection.RunnerPayload(),
		Resolved:  collection.SortAndExpandAll(),
	}
	if jc.Job.HasEnvironmentKeyword() {
		resolution.Environment, err = server.Composer.Environments().ExpandedEnvironmentName(ctx, jc)
		if err != nil {
			return nil, err
		}
	}
	return resolution, nil
}

// Redacted returns a copy of the resolution with the values of masked variables replaced.
func (r *Resolution) Redacted() *Resolution {
	masked := make(map[string]bool)
	payload := make([]variables.RunnerVariable, len(r.Variables))
	for i, variable := range r.Variables {
		if variable.Masked {
			variable.Value = maskedValue
			masked[variable.Key] = true
		} else {
			delete(masked, variable.Key)
		}
		payload[i] = variable
	}
	resolved := make(map[string]string, len(r.Resolved))
	for key, value := range r.Resolved {
		if masked[key] {
			value = maskedValue
		}
		resolved[key] = value
	}
	return &Resolution{
		Environment: r.Environment,
		Variables:   payload,
		Resolved:    resolved,
	}
}

// WriteJSON writes the runner payload as indented JSON.
func (r *Resolution) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// WriteYAML writes the runner payload as YAML.
func (r *Resolution) WriteYAML(w io.Writer) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshalling resolution: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteEnv writes the resolved variables as shell export statements, sorted by key.
func (r *Resolution) WriteEnv(w io.Writer) error {
	keys := make([]string, 0, len(r.Resolved))
	for key := range r.Resolved {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, err := fmt.Fprintf(w, "export %s=%s\n", key, shellescape.Quote(r.Resolved[key]))
		if err != nil {
			return err
		}
	}
	return nil
}
