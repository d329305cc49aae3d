package encryption

import (
	"context"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
)

const (
	AWSKeyManagerType   KeyManagerID = "AWS_KMS"
	LocalKeyManagerType KeyManagerID = "LOCAL"
)

type KeyManagerID string

func (s KeyManagerID) String() string {
	return string(s)
}

func KeyManagerIDs() []string {
	return []string{AWSKeyManagerType.String(), LocalKeyManagerType.String()}
}

// KeyManager generates and unwraps the per-variable data keys used for envelope
// encryption of variable values.
type KeyManager interface {
	// GenerateDataKey generates a unique data key that can be used encrypt/decrypt
	// data. The data key is returned in both a plain text and encrypted format.
	GenerateDataKey(ctx context.Context) (dataKeyPlainText *[32]byte, dataKeyEncrypted []byte, err error)
	// DecryptDataKey decrypts a previously generated data key.
	DecryptDataKey(ctx context.Context, dataKeyEncrypted []byte) (dataKeyPlainText *[32]byte, err error)
}

type KeyManagerConfig struct {
	Type           KeyManagerID
	LocalMasterKey LocalKeyManagerMasterKey
	AWS            AWSKeyManagerConfig
}

// NewKeyManager constructs the KeyManager selected by config.Type.
func NewKeyManager(config KeyManagerConfig, logFactory logger.LogFactory) (KeyManager, error) {
	switch config.Type {
	case LocalKeyManagerType:
		if config.LocalMasterKey == nil {
			return nil, gerror.NewErrInvalidConfiguration("local key manager requires a master key")
		}
		return NewLocalKeyManager(config.LocalMasterKey), nil
	case AWSKeyManagerType:
		return NewAWSKeyManager(config.AWS, logFactory)
	default:
		return nil, gerror.NewErrInvalidConfiguration("unknown key manager type: " + config.Type.String())
	}
}
