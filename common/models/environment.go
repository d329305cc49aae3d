package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v2"
)

// AllEnvironmentsScope is the environment scope that matches every environment, including jobs
// that do not deploy to an environment at all.
const AllEnvironmentsScope = "*"

// EnvironmentScopeMatches returns true if a variable with the given environment scope is visible to a
// job deploying to environmentName. Jobs without an environment only see variables scoped to all
// environments. Scopes are doublestar globs, so "review/*" matches "review/foo" but not "review/a/b".
func EnvironmentScopeMatches(scope string, environmentName *string) bool {
	if scope == "" || scope == AllEnvironmentsScope {
		return true
	}
	if environmentName == nil || *environmentName == "" {
		return false
	}
	if scope == *environmentName {
		return true
	}
	matched, err := doublestar.Match(scope, *environmentName)
	if err != nil {
		return false
	}
	return matched
}

const (
	EnvironmentActionStart   EnvironmentAction = "start"
	EnvironmentActionStop    EnvironmentAction = "stop"
	EnvironmentActionPrepare EnvironmentAction = "prepare"
	EnvironmentActionAccess  EnvironmentAction = "access"
	EnvironmentActionVerify  EnvironmentAction = "verify"
)

// DefaultEnvironmentAction is used when a job's environment keyword does not specify an action.
const DefaultEnvironmentAction = EnvironmentActionStart

var environmentActions = map[string]EnvironmentAction{
	string(EnvironmentActionStart):   EnvironmentActionStart,
	string(EnvironmentActionStop):    EnvironmentActionStop,
	string(EnvironmentActionPrepare): EnvironmentActionPrepare,
	string(EnvironmentActionAccess):  EnvironmentActionAccess,
	string(EnvironmentActionVerify):  EnvironmentActionVerify,
}

// EnvironmentAction is what a job does to its environment.
type EnvironmentAction string

func ParseEnvironmentAction(str string) (EnvironmentAction, error) {
	if str == "" {
		return DefaultEnvironmentAction, nil
	}
	action, ok := environmentActions[str]
	if !ok {
		return "", fmt.Errorf("error unknown environment action: %q", str)
	}
	return action, nil
}

func (a EnvironmentAction) Valid() bool {
	_, ok := environmentActions[string(a)]
	return ok
}

func (a EnvironmentAction) String() string {
	return string(a)
}

const (
	DeploymentTierProduction  DeploymentTier = "production"
	DeploymentTierStaging     DeploymentTier = "staging"
	DeploymentTierTesting     DeploymentTier = "testing"
	DeploymentTierDevelopment DeploymentTier = "development"
	DeploymentTierOther       DeploymentTier = "other"
)

var deploymentTiers = map[string]DeploymentTier{
	string(DeploymentTierProduction):  DeploymentTierProduction,
	string(DeploymentTierStaging):     DeploymentTierStaging,
	string(DeploymentTierTesting):     DeploymentTierTesting,
	string(DeploymentTierDevelopment): DeploymentTierDevelopment,
	string(DeploymentTierOther):       DeploymentTierOther,
}

type DeploymentTier string

func ParseDeploymentTier(str string) (DeploymentTier, bool) {
	tier, ok := deploymentTiers[strings.ToLower(str)]
	return tier, ok
}

func (t DeploymentTier) String() string {
	return string(t)
}

var tierGuesses = []struct {
	regex *regexp.Regexp
	tier  DeploymentTier
}{
	{regexp.MustCompile(`(?i)(dev|review|trunk)`), DeploymentTierDevelopment},
	{regexp.MustCompile(`(?i)(test|tst|int|ac(ce|)pt|qa|qc|control|quality)`), DeploymentTierTesting},
	{regexp.MustCompile(`(?i)(st(a|)g|mod(e|)l|pre|demo|non)`), DeploymentTierStaging},
	{regexp.MustCompile(`(?i)(pr(o|)d|live)`), DeploymentTierProduction},
}

// GuessDeploymentTier infers a tier from an environment name, for environments that do not
// declare one explicitly.
func GuessDeploymentTier(environmentName string) DeploymentTier {
	for _, guess := range tierGuesses {
		if guess.regex.MatchString(environmentName) {
			return guess.tier
		}
	}
	return DeploymentTierOther
}

// KubernetesOptions is the kubernetes sub-section of a job's environment keyword.
type KubernetesOptions struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Agent     string `json:"agent,omitempty" yaml:"agent,omitempty"`
}

// EnvironmentOptions is the environment keyword of a job, as written in the CI configuration.
// String fields may contain unexpanded variable references.
type EnvironmentOptions struct {
	Name           string             `json:"name,omitempty" yaml:"name,omitempty"`
	Action         string             `json:"action,omitempty" yaml:"action,omitempty"`
	URL            string             `json:"url,omitempty" yaml:"url,omitempty"`
	OnStop         string             `json:"on_stop,omitempty" yaml:"on_stop,omitempty"`
	AutoStopIn     string             `json:"auto_stop_in,omitempty" yaml:"auto_stop_in,omitempty"`
	DeploymentTier string             `json:"deployment_tier,omitempty" yaml:"deployment_tier,omitempty"`
	Kubernetes     *KubernetesOptions `json:"kubernetes,omitempty" yaml:"kubernetes,omitempty"`
}

// KubernetesNamespace returns the raw (unexpanded) namespace, or "" if none was configured.
func (m *EnvironmentOptions) KubernetesNamespace() string {
	if m == nil || m.Kubernetes == nil {
		return ""
	}
	return m.Kubernetes.Namespace
}

func (m *EnvironmentOptions) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func (m EnvironmentOptions) Value() (driver.Value, error) {
	return valueJSON(m)
}

// EnvironmentBinding associates a job with the environment it deploys to. It is created the first
// time a job with an environment keyword is persisted, and freezes the expanded environment name and
// a snapshot of the environment options so that variables are not re-expanded on every read.
type EnvironmentBinding struct {
	JobID     int64 `json:"job_id" goqu:"skipupdate" db:"environment_binding_job_id"`
	ProjectID int64 `json:"project_id" db:"environment_binding_project_id"`
	CreatedAt Time  `json:"created_at" goqu:"skipupdate" db:"environment_binding_created_at"`
	// EnvironmentName is the raw environment name template from the job configuration.
	EnvironmentName string `json:"environment_name" db:"environment_binding_environment_name"`
	// ExpandedEnvironmentName is EnvironmentName after variable expansion.
	ExpandedEnvironmentName string `json:"expanded_environment_name" db:"environment_binding_expanded_environment_name"`
	// Options is a snapshot of the job's environment options at the time the binding was created.
	Options EnvironmentOptions `json:"options" db:"environment_binding_options"`
}

func (m *EnvironmentBinding) Validate() error {
	if m.JobID == 0 {
		return fmt.Errorf("error job id must be set")
	}
	if m.EnvironmentName == "" {
		return fmt.Errorf("error environment name must be set")
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("error created at must be set")
	}
	return nil
}

func scanJSON(src interface{}, dest interface{}) error {
	if src == nil {
		return nil
	}
	var buf []byte
	switch t := src.(type) {
	case string:
		buf = []byte(t)
	case []byte:
		buf = t
	default:
		return fmt.Errorf("error unsupported type: %[1]T (%[1]v)", src)
	}
	err := json.Unmarshal(buf, dest)
	if err != nil {
		return fmt.Errorf("error unmarshalling from JSON: %w", err)
	}
	return nil
}

func valueJSON(src interface{}) (driver.Value, error) {
	buf, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("error marshalling to JSON: %w", err)
	}
	return string(buf), nil
}
