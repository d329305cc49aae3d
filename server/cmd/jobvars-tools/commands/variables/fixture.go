package variables

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v2"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/dto"
)

// Fixture describes a job and everything around it that contributes variables to the job.
type Fixture struct {
	Job      models.Job                 `yaml:"job"`
	Config   models.JobConfig           `yaml:"config"`
	Pipeline models.Pipeline            `yaml:"pipeline"`
	Project  models.Project             `yaml:"project"`
	User     *models.User               `yaml:"user"`
	Runner   *models.Runner             `yaml:"runner"`
	Platform *models.DeploymentPlatform `yaml:"platform"`
	// LegacyMetadata stores the job's config as per-job metadata instead of a job definition.
	LegacyMetadata bool               `yaml:"legacy_metadata"`
	Variables      []*FixtureVariable `yaml:"variables"`
	Dotenv         []*FixtureDotenv   `yaml:"dotenv"`
}

// FixtureVariable is a stored variable to create before resolving.
type FixtureVariable struct {
	OwnerKind        models.VariableOwnerKind `yaml:"owner_kind"`
	OwnerID          int64                    `yaml:"owner_id"`
	Key              string                   `yaml:"key"`
	Value            string                   `yaml:"value"`
	EnvironmentScope string                   `yaml:"environment_scope"`
	Protected        bool                     `yaml:"protected"`
	Masked           bool                     `yaml:"masked"`
	Hidden           bool                     `yaml:"hidden"`
	Raw              bool                     `yaml:"raw"`
	File             bool                     `yaml:"file"`
}

func (v *FixtureVariable) create() *dto.CreateVariable {
	attributes := models.VariableAttributes{
		VariableType: models.VariableTypeEnvVar,
		Protected:    v.Protected,
		Masked:       v.Masked,
		Hidden:       v.Hidden,
		Raw:          v.Raw,
	}
	if v.File {
		attributes.VariableType = models.VariableTypeFile
	}
	return &dto.CreateVariable{
		OwnerKind:        v.OwnerKind,
		OwnerID:          v.OwnerID,
		Key:              v.Key,
		ValuePlaintext:   v.Value,
		Attributes:       attributes,
		EnvironmentScope: v.EnvironmentScope,
	}
}

// FixtureDotenv is an upstream job and the dotenv variables it exported.
type FixtureDotenv struct {
	JobID     int64              `yaml:"job_id"`
	JobName   string             `yaml:"job_name"`
	Variables []*FixtureKeyValue `yaml:"variables"`
}

type FixtureKeyValue struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// LoadFixture reads and parses the fixture file name from fsys. Unknown fields are rejected.
func LoadFixture(fsys fs.FS, name string) (*Fixture, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("error reading fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture parses a YAML fixture and fills in defaults. Unknown fields are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	fixture := &Fixture{}
	err := yaml.UnmarshalStrict(data, fixture)
	if err != nil {
		return nil, fmt.Errorf("error parsing fixture: %w", err)
	}
	if fixture.Job.Status == "" {
		fixture.Job.Status = models.JobStatusCreated
	}
	if fixture.Pipeline.ID == 0 {
		fixture.Pipeline.ID = fixture.Job.PipelineID
	}
	if fixture.Pipeline.ProjectID == 0 {
		fixture.Pipeline.ProjectID = fixture.Job.ProjectID
	}
	if fixture.Project.ID == 0 {
		fixture.Project.ID = fixture.Job.ProjectID
	}
	if fixture.Pipeline.Ref == "" {
		fixture.Pipeline.Ref = fixture.Job.Ref
		fixture.Pipeline.Tag = fixture.Job.Tag
	}
	if fixture.Runner != nil && fixture.Job.RunnerID == 0 {
		fixture.Job.RunnerID = fixture.Runner.ID
	}
	for _, dotenv := range fixture.Dotenv {
		if dotenv.JobName == "" {
			dotenv.JobName = fmt.Sprintf("upstream-%d", dotenv.JobID)
		}
	}
	return fixture, nil
}

// Execution returns the job execution described by the fixture.
func (f *Fixture) Execution() *dto.JobExecution {
	return &dto.JobExecution{
		Job:      &f.Job,
		Pipeline: &f.Pipeline,
		Project:  &f.Project,
		User:     f.User,
		Runner:   f.Runner,
		Platform: f.Platform,
	}
}
