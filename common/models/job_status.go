package models

import (
	"database/sql/driver"
	"fmt"
)

const (
	JobStatusCreated            JobStatus = "created"
	JobStatusWaitingForResource JobStatus = "waiting_for_resource"
	JobStatusPreparing          JobStatus = "preparing"
	JobStatusPending            JobStatus = "pending"
	JobStatusRunning            JobStatus = "running"
	JobStatusSuccess            JobStatus = "success"
	JobStatusFailed             JobStatus = "failed"
	JobStatusCanceled           JobStatus = "canceled"
	JobStatusSkipped            JobStatus = "skipped"
	JobStatusManual             JobStatus = "manual"
	JobStatusScheduled          JobStatus = "scheduled"
)

// activeJobStatuses are the statuses a job may be cancelled or failed from.
var activeJobStatuses = []JobStatus{
	JobStatusCreated,
	JobStatusWaitingForResource,
	JobStatusPreparing,
	JobStatusPending,
	JobStatusRunning,
	JobStatusManual,
	JobStatusScheduled,
}

// jobStatusTransitions maps each status to the set of statuses a job may move to from it.
var jobStatusTransitions = map[JobStatus][]JobStatus{
	JobStatusCreated: {
		JobStatusWaitingForResource, JobStatusPreparing, JobStatusPending, JobStatusManual,
		JobStatusScheduled, JobStatusSkipped, JobStatusSuccess, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusWaitingForResource: {
		JobStatusPreparing, JobStatusPending, JobStatusSkipped, JobStatusSuccess, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusPreparing: {
		JobStatusPending, JobStatusSkipped, JobStatusSuccess, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusPending: {
		JobStatusRunning, JobStatusSkipped, JobStatusSuccess, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusRunning: {
		JobStatusSkipped, JobStatusSuccess, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusManual: {
		JobStatusWaitingForResource, JobStatusPreparing, JobStatusPending, JobStatusSkipped,
		JobStatusFailed, JobStatusCanceled,
	},
	JobStatusScheduled: {
		JobStatusWaitingForResource, JobStatusPreparing, JobStatusPending, JobStatusManual,
		JobStatusSkipped, JobStatusFailed, JobStatusCanceled,
	},
	JobStatusSkipped: {
		JobStatusWaitingForResource, JobStatusPreparing, JobStatusPending,
	},
	JobStatusSuccess:  {JobStatusSkipped},
	JobStatusFailed:   {JobStatusSkipped},
	JobStatusCanceled: {JobStatusSkipped},
}

type JobStatus string

func (s JobStatus) Valid() bool {
	_, ok := jobStatusTransitions[s]
	return ok
}

// HasFinished returns true if the job has completed, either successfully or not.
func (s JobStatus) HasFinished() bool {
	return s == JobStatusSuccess || s == JobStatusFailed || s == JobStatusCanceled || s == JobStatusSkipped
}

// IsActive returns true if the job has not yet finished and is not waiting on a user.
func (s JobStatus) IsActive() bool {
	for _, active := range activeJobStatuses {
		if s == active {
			return s != JobStatusManual && s != JobStatusScheduled
		}
	}
	return false
}

// CanTransitionTo returns true if a job in status s may be moved to status next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}

func (s *JobStatus) Scan(src interface{}) error {
	if src == nil {
		*s = JobStatusCreated
		return nil
	}
	t, ok := src.(string)
	if !ok {
		return fmt.Errorf("unsupported type for job status: %[1]T (%[1]v)", src)
	}
	status := JobStatus(t)
	if !status.Valid() {
		return fmt.Errorf("error unknown job status: %q", t)
	}
	*s = status
	return nil
}

func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}
