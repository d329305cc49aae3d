package encryption

import (
	"context"

	"github.com/pkg/errors"

	"github.com/buildbeaver/jobvars/common/models"
)

// EncryptionService envelope-encrypts variable values: every value is sealed with its own data key,
// and the data key is itself wrapped by the KeyManager's master key.
type EncryptionService struct {
	keyManager KeyManager
}

func NewEncryptionService(keyManager KeyManager) *EncryptionService {
	return &EncryptionService{
		keyManager: keyManager,
	}
}

// EncryptVariable seals variable.Value under a fresh data key, setting ValueEncrypted and
// DataKeyEncrypted. Value is left untouched.
func (e *EncryptionService) EncryptVariable(ctx context.Context, variable *models.Variable) error {
	dataKey, dataKeyEncrypted, err := e.keyManager.GenerateDataKey(ctx)
	if err != nil {
		return errors.Wrap(err, "error generating data key")
	}
	valueEncrypted, err := encrypt([]byte(variable.Value), dataKey)
	if err != nil {
		return errors.Wrapf(err, "error encrypting value of variable %q", variable.Key)
	}
	variable.ValueEncrypted = valueEncrypted
	variable.DataKeyEncrypted = dataKeyEncrypted
	return nil
}

// DecryptVariable unwraps the variable's data key and sets variable.Value to the plaintext value.
func (e *EncryptionService) DecryptVariable(ctx context.Context, variable *models.Variable) error {
	if len(variable.DataKeyEncrypted) == 0 {
		return errors.Errorf("variable %s has no data key", variable.ID)
	}
	dataKey, err := e.keyManager.DecryptDataKey(ctx, variable.DataKeyEncrypted)
	if err != nil {
		return errors.Wrap(err, "error decrypting data key")
	}
	plaintext, err := decrypt(variable.ValueEncrypted, dataKey)
	if err != nil {
		return errors.Wrapf(err, "error decrypting value of variable %s", variable.ID)
	}
	variable.Value = string(plaintext)
	return nil
}
