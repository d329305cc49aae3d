package encryption

import (
	"context"

	"github.com/pkg/errors"
)

// localDataKeyVersion prefixes every data key wrapped by a LocalKeyManager.
const localDataKeyVersion byte = 1

type LocalKeyManagerMasterKey *[32]byte

// LocalKeyManager wraps data keys with a master key held in memory. The master key comes from
// configuration, so anyone who can read the configuration can decrypt every variable.
type LocalKeyManager struct {
	masterKey *[32]byte
}

func NewLocalKeyManager(masterKey LocalKeyManagerMasterKey) *LocalKeyManager {
	return &LocalKeyManager{
		masterKey: masterKey,
	}
}

func (m *LocalKeyManager) GenerateDataKey(ctx context.Context) (dataKeyPlainText *[32]byte, dataKeyEncrypted []byte, err error) {
	dataKey := newEncryptionKey()
	wrapped, err := encrypt(dataKey[:], m.masterKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error wrapping data key")
	}
	return dataKey, append([]byte{localDataKeyVersion}, wrapped...), nil
}

func (m *LocalKeyManager) DecryptDataKey(ctx context.Context, dataKeyEncrypted []byte) (dataKeyPlainText *[32]byte, err error) {
	if len(dataKeyEncrypted) == 0 || dataKeyEncrypted[0] != localDataKeyVersion {
		return nil, errors.New("data key was not wrapped by a local key manager")
	}
	unwrapped, err := decrypt(dataKeyEncrypted[1:], m.masterKey)
	if err != nil {
		return nil, errors.Wrap(err, "error unwrapping data key")
	}
	if len(unwrapped) != 32 {
		return nil, errors.New("unwrapped data key is not 32 bytes")
	}
	var dataKey [32]byte
	copy(dataKey[:], unwrapped)
	return &dataKey, nil
}
