package models

import "errors"

// JobMetadata is the legacy, per-job, mutable storage of a job's configuration. Jobs created before
// job definitions existed only have metadata; newer jobs may have both, in which case the definition
// takes precedence.
type JobMetadata struct {
	JobID           int64         `json:"job_id" goqu:"skipupdate" db:"job_metadata_job_id"`
	ProjectID       int64         `json:"project_id" db:"job_metadata_project_id"`
	ConfigOptions   JobOptions    `json:"config_options" db:"job_metadata_config_options"`
	ConfigVariables YAMLVariables `json:"config_variables" db:"job_metadata_config_variables"`
	Interruptible   bool          `json:"interruptible" db:"job_metadata_interruptible"`
	IDTokens        IDTokens      `json:"id_tokens" db:"job_metadata_id_tokens"`
}

func (m *JobMetadata) Validate() error {
	if m.JobID == 0 {
		return errors.New("error job id must be set")
	}
	return nil
}
