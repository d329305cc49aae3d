package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/version"
	"github.com/buildbeaver/jobvars/server/services/encryption"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/store"
)

// EnvPrefix is the prefix of environment variables that override configuration flags.
const EnvPrefix = "JOBVARS"

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"key_manager_type",
	"key_manager_aws_kms_master_key_id",
	"key_manager_aws_kms_region",
	"key_manager_aws_kms_access_key_id",
	"server_url",
	"server_name",
	"database_driver",
	"database_max_idle_connections",
	"database_max_open_connections",
	"log_levels",
}

type ServerConfig struct {
	DatabaseConfig   store.DatabaseConfig
	EncryptionConfig encryption.KeyManagerConfig
	ComposerConfig   job_variables.ComposerConfig
	LogLevels        logger.LogLevelConfig
	// LogOutput is where the server's logs are written. Logs go to stdout if nil.
	LogOutput io.Writer
	// MetricsRegisterer is where the server's metrics are registered. No metrics are exported if nil.
	MetricsRegisterer prometheus.Registerer
}

// RegisterFlags adds the server configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	// Encryption
	flags.String("key_manager_type",
		encryption.LocalKeyManagerType.String(), fmt.Sprintf("The type of key manager to use. Options: %s", strings.Join(encryption.KeyManagerIDs(), ", ")))
	flags.String("key_manager_local_master_key",
		"", "A 256 Bit (32 Byte) key used to encrypt variable values, if using the local key manager.")
	flags.String("key_manager_aws_kms_master_key_id",
		"", "The KMS Master Key ID to encrypt data with, if using the AWS KMS key manager.")
	flags.String("key_manager_aws_kms_region",
		"", "The AWS region the KMS master key lives in, if using the AWS KMS key manager.")
	flags.String("key_manager_aws_kms_access_key_id",
		"", "The AWS Access Key ID to use to authenticate to KMS, if using the AWS KMS key manager.")
	flags.String("key_manager_aws_kms_secret_key",
		"", "The AWS Secret Key to use to authenticate to KMS, if using the AWS KMS key manager.")

	// Predefined variables
	flags.String("server_url",
		"http://localhost", "The external URL of the server, exposed to jobs as CI_SERVER_URL.")
	flags.String("server_name",
		"GitLab", "The name of the server, exposed to jobs as CI_SERVER_NAME.")

	// Database
	flags.String("database_connection_string",
		DefaultSQLiteConnectionString, "The connection string for the database")
	flags.String("database_driver",
		string(store.Sqlite), "The Database Driver to use (i.e sqlite3|postgres)")
	flags.Int("database_max_idle_connections",
		store.DefaultDatabaseMaxIdleConnections, "The maximum number of idle database connections to use")
	flags.Int("database_max_open_connections",
		store.DefaultDatabaseMaxOpenConnections, "The maximum number of open database connections to use")

	// Misc
	flags.String("log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s", logger.ListLogLevels()))
}

// NewViper returns a viper instance bound to flags that also reads JOBVARS_* environment variables.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	err := v.BindPFlags(flags)
	if err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}
	return v, nil
}

// ConfigFromViper makes a ServerConfig from the flags, environment and config file known to v.
func ConfigFromViper(v *viper.Viper) (*ServerConfig, error) {
	config := &ServerConfig{
		LogLevels:         logger.LogLevelConfig(v.GetString("log_levels")),
		MetricsRegisterer: prometheus.DefaultRegisterer,
	}

	// Encryption
	config.EncryptionConfig.Type = encryption.KeyManagerID(strings.ToUpper(v.GetString("key_manager_type")))
	switch config.EncryptionConfig.Type {
	case encryption.LocalKeyManagerType:
		localKeyManagerMasterKey := v.GetString("key_manager_local_master_key")
		if len(localKeyManagerMasterKey) != 32 {
			return nil, gerror.NewErrInvalidConfiguration("--key_manager_local_master_key must be 256 Bit (32 Bytes)")
		}
		var key [32]byte
		copy(key[:], localKeyManagerMasterKey)
		config.EncryptionConfig.LocalMasterKey = &key
	case encryption.AWSKeyManagerType:
		config.EncryptionConfig.AWS = encryption.AWSKeyManagerConfig{
			Region:          v.GetString("key_manager_aws_kms_region"),
			MasterKeyID:     v.GetString("key_manager_aws_kms_master_key_id"),
			AccessKeyID:     v.GetString("key_manager_aws_kms_access_key_id"),
			SecretAccessKey: v.GetString("key_manager_aws_kms_secret_key"),
		}
	default:
		return nil, gerror.NewErrInvalidConfiguration(fmt.Sprintf("Unsupported key manager type: %q", config.EncryptionConfig.Type))
	}

	// Predefined variables
	config.ComposerConfig = job_variables.ComposerConfig{
		ServerURL:     strings.TrimSuffix(v.GetString("server_url"), "/"),
		ServerName:    v.GetString("server_name"),
		ServerVersion: version.ServerVersion(),
	}

	// Database
	config.DatabaseConfig = store.DatabaseConfig{
		ConnectionString:   store.DatabaseConnectionString(v.GetString("database_connection_string")),
		Driver:             store.DBDriver(v.GetString("database_driver")),
		MaxIdleConnections: v.GetInt("database_max_idle_connections"),
		MaxOpenConnections: v.GetInt("database_max_open_connections"),
	}

	return config, nil
}

// LogConfig logs the values of every flag in LogSafeFlags.
func LogConfig(v *viper.Viper, log logger.Log) {
	fields := logger.Fields{}
	for _, name := range LogSafeFlags {
		fields[name] = v.Get(name)
	}
	log.WithFields(fields).Info("Loaded configuration")
}
