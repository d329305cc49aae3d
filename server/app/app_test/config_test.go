package app_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/version"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/services/encryption"
	"github.com/buildbeaver/jobvars/server/store"
)

func parseConfig(t *testing.T, args ...string) (*app.ServerConfig, error) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	v, err := app.NewViper(flags)
	require.NoError(t, err)
	return app.ConfigFromViper(v)
}

func TestConfigFromViper(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := parseConfig(t, "--key_manager_local_master_key=abcdefghijklmnopqrstuvwxyz123456")
		require.NoError(t, err)
		require.Equal(t, encryption.LocalKeyManagerType, config.EncryptionConfig.Type)
		require.NotNil(t, config.EncryptionConfig.LocalMasterKey)
		require.Equal(t, "http://localhost", config.ComposerConfig.ServerURL)
		require.Equal(t, "GitLab", config.ComposerConfig.ServerName)
		require.Equal(t, version.ServerVersion(), config.ComposerConfig.ServerVersion)
		require.Equal(t, store.Sqlite, config.DatabaseConfig.Driver)
		require.Equal(t, store.DefaultDatabaseMaxOpenConnections, config.DatabaseConfig.MaxOpenConnections)
		require.NotNil(t, config.MetricsRegisterer)
	})

	t.Run("Overrides", func(t *testing.T) {
		config, err := parseConfig(t,
			"--key_manager_type=aws_kms",
			"--key_manager_aws_kms_region=us-east-1",
			"--key_manager_aws_kms_master_key_id=alias/jobvars",
			"--server_url=https://ci.example.com/",
			"--database_driver=postgres",
		)
		require.NoError(t, err)
		require.Equal(t, encryption.AWSKeyManagerType, config.EncryptionConfig.Type)
		require.Equal(t, "us-east-1", config.EncryptionConfig.AWS.Region)
		require.Equal(t, "alias/jobvars", config.EncryptionConfig.AWS.MasterKeyID)
		require.Equal(t, "https://ci.example.com", config.ComposerConfig.ServerURL)
		require.Equal(t, store.Postgres, config.DatabaseConfig.Driver)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("JOBVARS_KEY_MANAGER_LOCAL_MASTER_KEY", "abcdefghijklmnopqrstuvwxyz123456")
		t.Setenv("JOBVARS_SERVER_NAME", "Acme CI")
		config, err := parseConfig(t)
		require.NoError(t, err)
		require.Equal(t, "Acme CI", config.ComposerConfig.ServerName)
	})

	t.Run("ShortLocalKey", func(t *testing.T) {
		_, err := parseConfig(t, "--key_manager_local_master_key=too-short")
		require.True(t, gerror.IsInvalidConfiguration(err))
	})

	t.Run("UnknownKeyManager", func(t *testing.T) {
		_, err := parseConfig(t, "--key_manager_type=vault")
		require.True(t, gerror.IsInvalidConfiguration(err))
	})
}
