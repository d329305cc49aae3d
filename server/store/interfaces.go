package store

import (
	"context"

	"github.com/buildbeaver/jobvars/common/models"
)

type VariableStore interface {
	// Create a new variable.
	// Returns gerror.ErrAlreadyExists if a variable with the same owner, key and environment scope already exists.
	Create(ctx context.Context, txOrNil *Tx, variable *models.Variable) error
	// Read an existing variable, looking it up by ID.
	// Returns gerror.ErrNotFound if the variable does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.VariableID) (*models.Variable, error)
	// Update an existing variable with optimistic locking. Overrides all previous values using the supplied model.
	// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
	Update(ctx context.Context, txOrNil *Tx, variable *models.Variable) error
	// Delete permanently and idempotently deletes a variable.
	Delete(ctx context.Context, txOrNil *Tx, id models.VariableID) error
	// ListByOwner lists all variables belonging to an owner, ordered by creation time then key.
	ListByOwner(ctx context.Context, txOrNil *Tx, ownerKind models.VariableOwnerKind, ownerID int64) ([]*models.Variable, error)
	// ListByOwners lists all variables belonging to any of the owners of the given kind, ordered by
	// the position of the owner in ownerIDs, then by creation time.
	ListByOwners(ctx context.Context, txOrNil *Tx, ownerKind models.VariableOwnerKind, ownerIDs []int64) ([]*models.Variable, error)
}

type JobStore interface {
	// Create a new job.
	// Returns gerror.ErrAlreadyExists if a job with the same ID already exists.
	Create(ctx context.Context, txOrNil *Tx, job *models.Job) error
	// Read an existing job, looking it up by ID.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, txOrNil *Tx, id int64) (*models.Job, error)
	// UpdateStatus moves a job from status from to status to.
	// Returns gerror.ErrNotFound if the job does not exist or is no longer in status from.
	UpdateStatus(ctx context.Context, txOrNil *Tx, job *models.Job, from models.JobStatus, to models.JobStatus) error
	// ListByPipeline lists all jobs in a pipeline ordered by ID.
	ListByPipeline(ctx context.Context, txOrNil *Tx, pipelineID int64) ([]*models.Job, error)
}

type JobDefinitionStore interface {
	// FindOrCreate returns the definition with the same project and checksum as definition, creating
	// it if it does not exist. Returns true iff the definition was created.
	FindOrCreate(ctx context.Context, txOrNil *Tx, definition *models.JobDefinition) (*models.JobDefinition, bool, error)
	// Read an existing definition, looking it up by project and checksum.
	// Returns gerror.ErrNotFound if the definition does not exist.
	Read(ctx context.Context, txOrNil *Tx, projectID int64, checksum string) (*models.JobDefinition, error)
}

type JobMetadataStore interface {
	// Create the metadata for a job.
	// Returns gerror.ErrAlreadyExists if the job already has metadata.
	Create(ctx context.Context, txOrNil *Tx, metadata *models.JobMetadata) error
	// Read the metadata for a job.
	// Returns gerror.ErrNotFound if the job has no metadata.
	Read(ctx context.Context, txOrNil *Tx, jobID int64) (*models.JobMetadata, error)
	// Update the metadata for a job.
	// Returns gerror.ErrNotFound if the job has no metadata.
	Update(ctx context.Context, txOrNil *Tx, metadata *models.JobMetadata) error
}

type EnvironmentBindingStore interface {
	// FindOrCreate returns the binding for the job in binding, creating it from binding if the job
	// has no binding yet. Returns true iff the binding was created.
	FindOrCreate(ctx context.Context, txOrNil *Tx, binding *models.EnvironmentBinding) (*models.EnvironmentBinding, bool, error)
	// Read the binding for a job.
	// Returns gerror.ErrNotFound if the job has no binding.
	Read(ctx context.Context, txOrNil *Tx, jobID int64) (*models.EnvironmentBinding, error)
}

type DotenvVariableStore interface {
	// CreateAll stores the dotenv variables exported by a job.
	CreateAll(ctx context.Context, txOrNil *Tx, variables []*models.DotenvVariable) error
	// ListByJobs lists the dotenv variables exported by the given jobs, ordered by the position of the
	// job in jobIDs then by the order in which each job exported them.
	ListByJobs(ctx context.Context, txOrNil *Tx, jobIDs []int64) ([]*models.DotenvVariable, error)
}
