package variables

import (
	"github.com/buildbeaver/jobvars/common/models"
)

// Item is a single variable in a Collection.
type Item struct {
	Key   string
	Value string
	// Public items are safe to show to users who cannot see the project's settings.
	Public bool
	// Masked items must be redacted from job logs.
	Masked bool
	// File items are written to a file by the runner, which exports the path to the file instead of the value.
	File bool
	// Raw items are never expanded.
	Raw bool
}

// NewPublicItem returns a public, unmasked item.
func NewPublicItem(key string, value string) Item {
	return Item{Key: key, Value: value, Public: true}
}

// NewSecretItem returns an item that must not be shown to untrusted viewers.
func NewSecretItem(key string, value string) Item {
	return Item{Key: key, Value: value}
}

// ItemFromVariable converts a stored (decrypted) variable to an item.
func ItemFromVariable(variable *models.Variable) Item {
	return Item{
		Key:    variable.Key,
		Value:  variable.Value,
		Public: false,
		Masked: variable.Masked,
		File:   variable.IsFile(),
		Raw:    variable.Raw,
	}
}

// ItemFromYAMLVariable converts a variable defined in a job's CI configuration to an item.
func ItemFromYAMLVariable(variable models.YAMLVariable) Item {
	return Item{
		Key:    variable.Key,
		Value:  variable.Value,
		Public: variable.Public,
		Raw:    variable.Raw,
	}
}

// RunnerVariable is the wire format of a variable sent to a runner with a job.
type RunnerVariable struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Public bool   `json:"public" yaml:"public"`
	Masked bool   `json:"masked" yaml:"masked"`
	File   bool   `json:"file" yaml:"file"`
	Raw    bool   `json:"raw" yaml:"raw"`
}

func (i Item) toRunnerVariable() RunnerVariable {
	return RunnerVariable{
		Key:    i.Key,
		Value:  i.Value,
		Public: i.Public,
		Masked: i.Masked,
		File:   i.File,
		Raw:    i.Raw,
	}
}
