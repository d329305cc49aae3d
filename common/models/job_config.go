package models

import (
	"database/sql/driver"
)

// YAMLVariable is a variable defined in a job's CI configuration.
type YAMLVariable struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Public bool   `json:"public" yaml:"public"`
	Raw    bool   `json:"raw,omitempty" yaml:"raw,omitempty"`
}

type YAMLVariables []YAMLVariable

func (m *YAMLVariables) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func (m YAMLVariables) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return valueJSON(m)
}

// IDToken is an OIDC token requested by a job, exposed to the job as a variable.
type IDToken struct {
	Audience []string `json:"aud" yaml:"aud"`
}

type IDTokens map[string]IDToken

func (m *IDTokens) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func (m IDTokens) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return valueJSON(m)
}

// JobOptions holds the free-form options of a job's configuration that the variable engine reads.
type JobOptions struct {
	Environment *EnvironmentOptions `json:"environment,omitempty" yaml:"environment,omitempty"`
	Script      []string            `json:"script,omitempty" yaml:"script,omitempty"`
	Image       string              `json:"image,omitempty" yaml:"image,omitempty"`
}

func (m *JobOptions) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func (m JobOptions) Value() (driver.Value, error) {
	return valueJSON(m)
}

// JobConfig is the part of a job's processed CI configuration that is relevant to variables and
// environments. It is stored either in a content-addressed JobDefinition or in legacy JobMetadata.
type JobConfig struct {
	Options       *JobOptions   `json:"options,omitempty" yaml:"options,omitempty"`
	YAMLVariables YAMLVariables `json:"yaml_variables,omitempty" yaml:"yaml_variables,omitempty"`
	Interruptible *bool         `json:"interruptible,omitempty" yaml:"interruptible,omitempty"`
	IDTokens      IDTokens      `json:"id_tokens,omitempty" yaml:"id_tokens,omitempty"`
}

func (m *JobConfig) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func (m JobConfig) Value() (driver.Value, error) {
	return valueJSON(m)
}
