package models

import (
	"errors"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// JobDefinition is the normalized, immutable storage of a job's configuration. Definitions are
// content-addressed: identical configurations within a project share one record, keyed by Checksum.
type JobDefinition struct {
	Checksum  string    `json:"checksum" db:"job_definition_checksum"`
	ProjectID int64     `json:"project_id" db:"job_definition_project_id"`
	CreatedAt Time      `json:"created_at" db:"job_definition_created_at"`
	Config    JobConfig `json:"config" db:"job_definition_config"`
}

func NewJobDefinition(now Time, projectID int64, config JobConfig) (*JobDefinition, error) {
	checksum, err := JobConfigChecksum(config)
	if err != nil {
		return nil, err
	}
	return &JobDefinition{
		Checksum:  checksum,
		ProjectID: projectID,
		CreatedAt: now,
		Config:    config,
	}, nil
}

// JobConfigChecksum calculates the content address of a job configuration.
func JobConfigChecksum(config JobConfig) (string, error) {
	hash, err := hashstructure.Hash(config, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("error hashing job config: %w", err)
	}
	return fmt.Sprintf("%016x", hash), nil
}

func (m *JobDefinition) Validate() error {
	if m.Checksum == "" {
		return errors.New("error checksum must be set")
	}
	if m.ProjectID == 0 {
		return errors.New("error project id must be set")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("error created at must be set")
	}
	checksum, err := JobConfigChecksum(m.Config)
	if err != nil {
		return err
	}
	if checksum != m.Checksum {
		return fmt.Errorf("error checksum %s does not match config (expected %s)", m.Checksum, checksum)
	}
	return nil
}
