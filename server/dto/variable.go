package dto

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/jobvars/common/models"
)

type CreateVariable struct {
	OwnerKind models.VariableOwnerKind
	OwnerID   int64
	Key       string
	// ValuePlaintext is encrypted before the variable is stored.
	ValuePlaintext   string
	Attributes       models.VariableAttributes
	EnvironmentScope string
	Description      string
}

func (m *CreateVariable) Validate() error {
	var result *multierror.Error
	if !m.OwnerKind.Valid() {
		result = multierror.Append(result, errors.New("error owner kind must be valid"))
	}
	if m.OwnerKind != models.VariableOwnerInstance && m.OwnerID == 0 {
		result = multierror.Append(result, errors.New("error owner id must be set"))
	}
	if !m.OwnerKind.IsSecretStore() {
		if m.EnvironmentScope != "" && m.EnvironmentScope != models.AllEnvironmentsScope {
			result = multierror.Append(result, errors.New("error environment scope is only supported for instance, group and project variables"))
		}
		if m.Attributes.Protected {
			result = multierror.Append(result, errors.New("error protected is only supported for instance, group and project variables"))
		}
	}
	return result.ErrorOrNil()
}

// UpdateVariable holds the fields to change on an existing variable. Nil fields are left unchanged.
type UpdateVariable struct {
	Key              *string
	ValuePlaintext   *string
	VariableType     *models.VariableType
	Protected        *bool
	Masked           *bool
	Hidden           *bool
	Raw              *bool
	EnvironmentScope *string
	Description      *string
	ETag             models.ETag
}

// Apply copies the set fields of the update onto variable.
func (m *UpdateVariable) Apply(variable *models.Variable) {
	if m.Key != nil {
		variable.Key = *m.Key
	}
	if m.ValuePlaintext != nil {
		variable.Value = *m.ValuePlaintext
	}
	if m.VariableType != nil {
		variable.VariableType = *m.VariableType
	}
	if m.Protected != nil {
		variable.Protected = *m.Protected
	}
	if m.Masked != nil {
		variable.Masked = *m.Masked
	}
	if m.Hidden != nil {
		variable.Hidden = *m.Hidden
	}
	if m.Raw != nil {
		variable.Raw = *m.Raw
	}
	if m.EnvironmentScope != nil {
		variable.EnvironmentScope = *m.EnvironmentScope
	}
	if m.Description != nil {
		variable.Description = *m.Description
	}
	if m.ETag != "" {
		variable.ETag = m.ETag
	}
}
