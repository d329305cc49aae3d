package variable

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/dto"
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/store"
)

type VariableService struct {
	db                *store.DB
	variableStore     store.VariableStore
	encryptionService services.EncryptionService
	clk               clock.Clock
	logger.Log
}

func NewVariableService(
	db *store.DB,
	variableStore store.VariableStore,
	encryptionService services.EncryptionService,
	clk clock.Clock,
	logFactory logger.LogFactory) *VariableService {
	return &VariableService{
		db:                db,
		variableStore:     variableStore,
		encryptionService: encryptionService,
		clk:               clk,
		Log:               logFactory("VariableService"),
	}
}

// Create a new variable, applying the masking and hiding policy and encrypting its value.
// Returns gerror.ErrValidationFailed if the variable violates the policy.
// Returns gerror.ErrAlreadyExists if a variable with the same owner, key and environment scope already exists.
func (s *VariableService) Create(ctx context.Context, txOrNil *store.Tx, create *dto.CreateVariable) (*models.Variable, error) {
	err := create.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid variable").Wrap(err)
	}
	now := models.NewTime(s.clk.Now())
	variable := models.NewVariable(now, create.OwnerKind, create.OwnerID, create.Key, create.ValuePlaintext, create.Attributes, create.EnvironmentScope)
	variable.Description = create.Description
	err = models.ValidateVariableCreate(variable)
	if err != nil {
		return nil, err
	}
	err = s.encrypt(ctx, variable)
	if err != nil {
		return nil, err
	}
	err = s.variableStore.Create(ctx, txOrNil, variable)
	if err != nil {
		return nil, fmt.Errorf("error creating variable: %w", err)
	}
	s.WithFields(logger.Fields{
		"variable_id": variable.ID,
		"owner_kind":  variable.OwnerKind,
		"owner_id":    variable.OwnerID,
	}).Infof("Created variable %q", variable.Key)
	return redact(variable), nil
}

// Read an existing variable, looking it up by ID. The value of hidden variables is never returned.
// Returns gerror.ErrNotFound if the variable does not exist.
func (s *VariableService) Read(ctx context.Context, txOrNil *store.Tx, id models.VariableID) (*models.Variable, error) {
	variable, err := s.variableStore.Read(ctx, txOrNil, id)
	if err != nil {
		return nil, err
	}
	err = s.decrypt(ctx, variable)
	if err != nil {
		return nil, err
	}
	return redact(variable), nil
}

// Update an existing variable with optimistic locking, applying the masking and hiding policy.
// Returns gerror.ErrValidationFailed if the update violates the policy.
// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
func (s *VariableService) Update(ctx context.Context, txOrNil *store.Tx, id models.VariableID, update *dto.UpdateVariable) (*models.Variable, error) {
	var updated *models.Variable
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		existing, err := s.variableStore.Read(ctx, tx, id)
		if err != nil {
			return err
		}
		err = s.decrypt(ctx, existing)
		if err != nil {
			return err
		}
		candidate := *existing
		update.Apply(&candidate)
		err = models.ValidateVariableUpdate(existing, &candidate)
		if err != nil {
			return err
		}
		candidate.UpdatedAt = models.NewTime(s.clk.Now())
		err = s.encrypt(ctx, &candidate)
		if err != nil {
			return err
		}
		err = s.variableStore.Update(ctx, tx, &candidate)
		if err != nil {
			return fmt.Errorf("error updating variable: %w", err)
		}
		updated = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.WithField("variable_id", updated.ID).Infof("Updated variable %q", updated.Key)
	return redact(updated), nil
}

// Delete permanently and idempotently deletes a variable.
func (s *VariableService) Delete(ctx context.Context, txOrNil *store.Tx, id models.VariableID) error {
	err := s.variableStore.Delete(ctx, txOrNil, id)
	if err != nil {
		return fmt.Errorf("error deleting variable: %w", err)
	}
	s.WithField("variable_id", id).Info("Deleted variable")
	return nil
}

// ListByOwner lists the variables of an owner. The value of hidden variables is never returned.
func (s *VariableService) ListByOwner(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerID int64) ([]*models.Variable, error) {
	list, err := s.variableStore.ListByOwner(ctx, txOrNil, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	for _, variable := range list {
		err = s.decrypt(ctx, variable)
		if err != nil {
			return nil, err
		}
		redact(variable)
	}
	return list, nil
}

// ListPlaintextByOwners lists the variables of every owner with their decrypted values, ordered
// by the position of the owner in ownerIDs. For use when composing job variables only.
func (s *VariableService) ListPlaintextByOwners(ctx context.Context, txOrNil *store.Tx, ownerKind models.VariableOwnerKind, ownerIDs ...int64) ([]*models.Variable, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	list, err := s.variableStore.ListByOwners(ctx, txOrNil, ownerKind, ownerIDs)
	if err != nil {
		return nil, err
	}
	for _, variable := range list {
		err = s.decrypt(ctx, variable)
		if err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *VariableService) encrypt(ctx context.Context, variable *models.Variable) error {
	return s.encryptionService.EncryptVariable(ctx, variable)
}

func (s *VariableService) decrypt(ctx context.Context, variable *models.Variable) error {
	return s.encryptionService.DecryptVariable(ctx, variable)
}

// redact clears the value of a hidden variable so it can be returned to a user.
func redact(variable *models.Variable) *models.Variable {
	if variable.Hidden {
		variable.Value = ""
	}
	return variable
}
