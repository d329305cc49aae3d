package services

import (
	"context"

	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/dto"
	"github.com/buildbeaver/jobvars/server/store"
)

type EncryptionService interface {
	// EncryptVariable seals variable.Value under a fresh data key, setting ValueEncrypted and
	// DataKeyEncrypted.
	EncryptVariable(ctx context.Context, variable *models.Variable) error
	// DecryptVariable sets variable.Value to the plaintext of ValueEncrypted.
	DecryptVariable(ctx context.Context, variable *models.Variable) error
}

type VariableService interface {
	// Create a new variable, applying the masking and hiding policy and encrypting its value.
	// Returns gerror.ErrValidationFailed if the variable violates the policy.
	// Returns gerror.ErrAlreadyExists if a variable with the same owner, key and environment scope already exists.
	Create(ctx context.Context, txOrNil *store.Tx, create *dto.CreateVariable) (*models.Variable, error)
	// Read an existing variable, looking it up by ID. The value of hidden variables is never returned.
	// Returns gerror.ErrNotFound if the variable does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id models.VariableID) (*models.Variable, error)
	// Update an existing variable with optimistic locking, applying the masking and hiding policy.
	// Returns gerror.ErrValidationFailed if the update violates the policy.
	// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
	Update(ctx context.Context, txOrNil *store.Tx, id models.VariableID, update *dto.UpdateVariable) (*models.Variable, error)
	// Delete permanently and idempotently deletes a variable.
	Delete(ctx context.Context, txOrNil *store.Tx, id models.VariableID) error
	// ListByOwner lists the variables of an owner. The value of hidden variables is never returned.
	ListByOwner(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerID int64) ([]*models.Variable, error)
	// ListPlaintextByOwners lists the variables of every owner with their decrypted values, ordered
	// by the position of the owner in ownerIDs. For use when composing job variables only.
	ListPlaintextByOwners(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerIDs ...int64) ([]*models.Variable, error)
}

type KubeconfigService interface {
	// Build returns a kubeconfig file granting access to platform, with namespace as the default
	// namespace if it is set. Returns an error if the resulting configuration is not valid.
	Build(platform *models.DeploymentPlatform, namespace string) (string, error)
}

type JobService interface {
	// Create persists a new job together with its configuration, and binds the job to its
	// environment if it has an environment keyword.
	// Returns gerror.ErrAlreadyExists if the job already exists.
	Create(ctx context.Context, create *dto.CreateJob) (*models.Job, error)
	// Read an existing job, looking it up by ID.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id int64) (*models.Job, error)
	// Transition moves a job to a new status and then notifies the environment lifecycle hooks.
	// Returns gerror.ErrInvalidStatusTransition if the job cannot move to the new status.
	Transition(ctx context.Context, txOrNil *store.Tx, id int64, to models.JobStatus) (*models.Job, error)
	// ExportDotenvVariables records the dotenv variables exported by a job's artifacts, for use by
	// downstream jobs.
	ExportDotenvVariables(ctx context.Context, txOrNil *store.Tx, jobID int64, variables []*models.DotenvVariable) error
}

// EnvironmentLifecycleNotifier receives job transitions that affect environments and deployments.
// Implementations must not block; the work they trigger happens asynchronously.
type EnvironmentLifecycleNotifier interface {
	// ScheduleAutoStop is called when a job that deploys to an environment succeeds.
	ScheduleAutoStop(ctx context.Context, transition *dto.JobTransition)
	// SyncDeployment is called on every non-loopback transition of a job that deploys to an environment.
	SyncDeployment(ctx context.Context, transition *dto.JobTransition)
}
