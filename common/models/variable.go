package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/jobvars/common/gerror"
)

const (
	VariableKeyMaxLength = 255
	VariableKeyRegexStr  = "^[a-zA-Z0-9_]+$"
)

var VariableKeyRegex = regexp.MustCompile(VariableKeyRegexStr)

const (
	// VariableOwnerInstance variables are defined by an administrator for every project on the instance.
	VariableOwnerInstance VariableOwnerKind = "instance"
	// VariableOwnerGroup variables are defined on a group and inherited by projects in the group and its subgroups.
	VariableOwnerGroup VariableOwnerKind = "group"
	// VariableOwnerProject variables are defined on a single project.
	VariableOwnerProject VariableOwnerKind = "project"
	// VariableOwnerPipeline variables are supplied when a pipeline is run manually or via the API.
	VariableOwnerPipeline VariableOwnerKind = "pipeline"
	// VariableOwnerPipelineSchedule variables are attached to a pipeline schedule.
	VariableOwnerPipelineSchedule VariableOwnerKind = "pipeline_schedule"
	// VariableOwnerTriggerRequest variables are supplied with a trigger request.
	VariableOwnerTriggerRequest VariableOwnerKind = "trigger_request"
)

var variableOwnerKinds = map[string]VariableOwnerKind{
	string(VariableOwnerInstance):         VariableOwnerInstance,
	string(VariableOwnerGroup):            VariableOwnerGroup,
	string(VariableOwnerProject):          VariableOwnerProject,
	string(VariableOwnerPipeline):         VariableOwnerPipeline,
	string(VariableOwnerPipelineSchedule): VariableOwnerPipelineSchedule,
	string(VariableOwnerTriggerRequest):   VariableOwnerTriggerRequest,
}

// VariableOwnerKind identifies the kind of resource a stored variable belongs to.
type VariableOwnerKind string

func (k VariableOwnerKind) Valid() bool {
	_, ok := variableOwnerKinds[string(k)]
	return ok
}

func (k VariableOwnerKind) String() string {
	return string(k)
}

// IsSecretStore returns true if variables of this kind are administered secrets that can be scoped
// by environment and protected refs (as opposed to free-form values entered when running a pipeline).
func (k VariableOwnerKind) IsSecretStore() bool {
	return k == VariableOwnerInstance || k == VariableOwnerGroup || k == VariableOwnerProject
}

func (k *VariableOwnerKind) Scan(src interface{}) error {
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string for variable owner kind: %#v", src)
	}
	kind, ok := variableOwnerKinds[t]
	if !ok {
		return fmt.Errorf("error unknown variable owner kind: %s", t)
	}
	*k = kind
	return nil
}

func (k VariableOwnerKind) Value() (driver.Value, error) {
	return string(k), nil
}

const (
	VariableTypeEnvVar VariableType = "env_var"
	VariableTypeFile   VariableType = "file"
)

// VariableType determines whether the runner exports a variable as-is, or writes its value to a
// file and exports the path to that file instead.
type VariableType string

func (t VariableType) Valid() bool {
	return t == VariableTypeEnvVar || t == VariableTypeFile
}

func (t VariableType) String() string {
	return string(t)
}

func (t *VariableType) Scan(src interface{}) error {
	if src == nil {
		*t = VariableTypeEnvVar
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected string for variable type: %#v", src)
	}
	*t = VariableType(str)
	return nil
}

func (t VariableType) Value() (driver.Value, error) {
	return string(t), nil
}

type VariableID string

func NewVariableID() VariableID {
	return VariableID("variable:" + uuid.NewString())
}

func (id VariableID) String() string {
	return string(id)
}

func (id VariableID) Valid() bool {
	return strings.HasPrefix(string(id), "variable:")
}

// VariableAttributes are the flags that control how a variable is displayed, masked and exported.
type VariableAttributes struct {
	VariableType VariableType `json:"variable_type" db:"variable_type"`
	// Protected variables are only exposed to jobs running against protected branches or tags.
	Protected bool `json:"protected" db:"variable_protected"`
	// Masked variables have their value redacted from job logs.
	Masked bool `json:"masked" db:"variable_masked"`
	// Hidden variables are masked variables whose value can never be revealed again once stored.
	Hidden bool `json:"hidden" db:"variable_hidden"`
	// Raw variables are never expanded; their value is used literally.
	Raw bool `json:"raw" db:"variable_raw"`
}

// Variable is a stored CI/CD variable owned by an instance, group, project, pipeline, pipeline
// schedule or trigger request. The value is held encrypted at rest; Value is only populated after
// decryption by the variable service.
type Variable struct {
	ID        VariableID        `json:"id" goqu:"skipupdate" db:"variable_id"`
	CreatedAt Time              `json:"created_at" goqu:"skipupdate" db:"variable_created_at"`
	UpdatedAt Time              `json:"updated_at" db:"variable_updated_at"`
	ETag      ETag              `json:"etag" db:"variable_etag" hash:"ignore"`
	OwnerKind VariableOwnerKind `json:"owner_kind" goqu:"skipupdate" db:"variable_owner_kind"`
	OwnerID   int64             `json:"owner_id" goqu:"skipupdate" db:"variable_owner_id"`
	Key       string            `json:"key" db:"variable_key"`
	VariableAttributes
	// EnvironmentScope is a glob limiting the environments the variable is exposed to ("*" for all).
	EnvironmentScope string `json:"environment_scope" db:"variable_environment_scope"`
	Description      string `json:"description" db:"variable_description"`
	// ValueEncrypted is the value of the variable, encrypted using DataKeyEncrypted.
	ValueEncrypted BinaryBlob `json:"-" db:"variable_value_encrypted"`
	// DataKeyEncrypted is the (itself encrypted) data key used to encrypt ValueEncrypted.
	DataKeyEncrypted BinaryBlob `json:"-" db:"variable_data_key_encrypted"`
	// Value is the plaintext value. It is never persisted.
	Value string `json:"-" db:"-" hash:"ignore"`
}

func NewVariable(now Time, ownerKind VariableOwnerKind, ownerID int64, key string, value string, attributes VariableAttributes, environmentScope string) *Variable {
	if attributes.VariableType == "" {
		attributes.VariableType = VariableTypeEnvVar
	}
	if environmentScope == "" {
		environmentScope = AllEnvironmentsScope
	}
	return &Variable{
		ID:                 NewVariableID(),
		CreatedAt:          now,
		UpdatedAt:          now,
		OwnerKind:          ownerKind,
		OwnerID:            ownerID,
		Key:                key,
		Value:              value,
		VariableAttributes: attributes,
		EnvironmentScope:   environmentScope,
	}
}

func (m *Variable) GetETag() ETag {
	return m.ETag
}

func (m *Variable) SetETag(eTag ETag) {
	m.ETag = eTag
}

// IsFile returns true if the runner should write the value to a file.
func (m *Variable) IsFile() bool {
	return m.VariableType == VariableTypeFile
}

// Validate checks the structural validity of the variable. The masking and hiding policy is checked
// separately by ValidateVariableCreate and ValidateVariableUpdate since it depends on the operation.
func (m *Variable) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if !m.OwnerKind.Valid() {
		result = multierror.Append(result, fmt.Errorf("error unknown owner kind: %q", m.OwnerKind))
	}
	if err := ValidateVariableKey(m.Key); err != nil {
		result = multierror.Append(result, err)
	}
	if !m.VariableType.Valid() {
		result = multierror.Append(result, gerror.NewErrValidationFailed(fmt.Sprintf("Variable type %q is not valid", m.VariableType)))
	}
	if m.EnvironmentScope == "" {
		result = multierror.Append(result, errors.New("error environment scope must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.UpdatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error updated at must be set"))
	}
	return result.ErrorOrNil()
}

// ValidateVariableKey checks a key is usable as a shell environment variable name.
func ValidateVariableKey(key string) error {
	if key == "" {
		return gerror.NewErrValidationFailed("Key must be set")
	}
	if len(key) > VariableKeyMaxLength {
		return gerror.NewErrValidationFailed(fmt.Sprintf("Key must not exceed %d characters", VariableKeyMaxLength))
	}
	if !VariableKeyRegex.MatchString(key) {
		return gerror.NewErrValidationFailed("Key can contain only letters, digits and '_'.")
	}
	return nil
}
