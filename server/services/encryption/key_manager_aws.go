package encryption

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/pkg/errors"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
)

const (
	// awsKeySpec produces 32 byte data keys
	awsKeySpec = "AES_256"
	// awsEncryptionContextPurpose is bound to every data key, so KMS refuses to unwrap keys that
	// were generated for anything other than job variables.
	awsEncryptionContextPurpose = "job-variable"
)

type AWSKeyManagerConfig struct {
	Region          string
	MasterKeyID     string
	AccessKeyID     string
	SecretAccessKey string
}

// AWSKeyManager wraps variable data keys with an AWS KMS master key.
type AWSKeyManager struct {
	logger.Log
	kms         kmsiface.KMSAPI
	masterKeyID string
}

func NewAWSKeyManager(config AWSKeyManagerConfig, logFactory logger.LogFactory) (*AWSKeyManager, error) {
	if config.MasterKeyID == "" {
		return nil, gerror.NewErrInvalidConfiguration("aws key manager requires a master key id")
	}
	log := logFactory("VariableKeyManager")
	cfg := aws.NewConfig()
	if config.Region != "" {
		cfg = cfg.WithRegion(config.Region)
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "error creating AWS session")
	}
	log.WithFields(logger.Fields{
		"master_key_id":      config.MasterKeyID,
		"region":             aws.StringValue(sess.Config.Region),
		"static_credentials": config.AccessKeyID != "",
	}).Info("Using AWS KMS to wrap variable data keys")
	return NewAWSKeyManagerWithClient(kms.New(sess), config.MasterKeyID, logFactory), nil
}

// NewAWSKeyManagerWithClient makes an AWSKeyManager that talks to KMS through client.
func NewAWSKeyManagerWithClient(client kmsiface.KMSAPI, masterKeyID string, logFactory logger.LogFactory) *AWSKeyManager {
	return &AWSKeyManager{
		Log:         logFactory("VariableKeyManager"),
		kms:         client,
		masterKeyID: masterKeyID,
	}
}

func (m *AWSKeyManager) encryptionContext() map[string]*string {
	return map[string]*string{"purpose": aws.String(awsEncryptionContextPurpose)}
}

func (m *AWSKeyManager) GenerateDataKey(ctx context.Context) (dataKeyPlainText *[32]byte, dataKeyEncrypted []byte, err error) {
	result, err := m.kms.GenerateDataKeyWithContext(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(m.masterKeyID),
		KeySpec:           aws.String(awsKeySpec),
		EncryptionContext: m.encryptionContext(),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "error generating data key")
	}
	dataKey, err := toDataKey(result.Plaintext)
	if err != nil {
		return nil, nil, err
	}
	m.Trace("Generated variable data key")
	return dataKey, result.CiphertextBlob, nil
}

func (m *AWSKeyManager) DecryptDataKey(ctx context.Context, dataKeyEncrypted []byte) (dataKeyPlainText *[32]byte, err error) {
	result, err := m.kms.DecryptWithContext(ctx, &kms.DecryptInput{
		KeyId:             aws.String(m.masterKeyID),
		CiphertextBlob:    dataKeyEncrypted,
		EncryptionContext: m.encryptionContext(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error decrypting data key")
	}
	m.Trace("Unwrapped variable data key")
	return toDataKey(result.Plaintext)
}

func toDataKey(plaintext []byte) (*[32]byte, error) {
	if len(plaintext) != 32 {
		return nil, errors.Errorf("expected a 32 byte data key, KMS returned %d bytes", len(plaintext))
	}
	var dataKey [32]byte
	copy(dataKey[:], plaintext)
	return &dataKey, nil
}
