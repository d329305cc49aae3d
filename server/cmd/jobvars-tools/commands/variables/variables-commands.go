package variables

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/version"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands"
	"github.com/buildbeaver/jobvars/server/services/encryption"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/store"
)

// InMemoryConnectionString is the database the resolve command loads fixtures into.
const InMemoryConnectionString = store.DatabaseConnectionString("file::memory:?cache=shared&_foreign_keys=1&parseTime=true")

func init() {
	resolveCmd.Flags().StringVar(&resolveCmdConfig.fixture, "fixture", "", "A YAML file describing the job to resolve variables for (required)")
	resolveCmd.Flags().StringVarP(&resolveCmdConfig.output, "output", "o", "yaml", "The output format. Options: yaml, json, env")
	resolveCmd.Flags().BoolVar(&resolveCmdConfig.showMasked, "show-masked", false, "Show the values of masked variables")
	resolveCmd.Flags().String("server_url", "http://localhost", "The external URL of the server, exposed to jobs as CI_SERVER_URL.")
	resolveCmd.Flags().String("server_name", "GitLab", "The name of the server, exposed to jobs as CI_SERVER_NAME.")
	_ = resolveCmd.MarkFlagRequired("fixture")

	commands.RootCmd.AddCommand(variablesRootCmd)
	variablesRootCmd.AddCommand(resolveCmd)
}

var resolveCmdConfig = struct {
	fixture    string
	output     string
	showMasked bool
}{}

var variablesRootCmd = &cobra.Command{
	Use:   "variables (command)",
	Short: "Job variable commands",
}

var resolveCmd = &cobra.Command{
	Use:           "resolve --fixture file",
	Short:         "Resolves the variables a job would be given, using a throwaway in-memory database",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		output := strings.ToLower(resolveCmdConfig.output)
		if output != "yaml" && output != "json" && output != "env" {
			return fmt.Errorf("error unsupported output format %q", resolveCmdConfig.output)
		}
		path, err := filepath.Abs(resolveCmdConfig.fixture)
		if err != nil {
			return fmt.Errorf("error resolving fixture path: %w", err)
		}
		fixture, err := LoadFixture(os.DirFS(filepath.Dir(path)), filepath.Base(path))
		if err != nil {
			return err
		}
		config, err := resolveServerConfig(cmd)
		if err != nil {
			return err
		}

		resolution, err := Resolve(context.Background(), config, fixture)
		if err != nil {
			return err
		}
		if !resolveCmdConfig.showMasked {
			resolution = resolution.Redacted()
		}
		switch output {
		case "json":
			return resolution.WriteJSON(os.Stdout)
		case "env":
			return resolution.WriteEnv(os.Stdout)
		default:
			return resolution.WriteYAML(os.Stdout)
		}
	},
}

// resolveServerConfig makes a server configuration for a throwaway in-memory server. Only the
// predefined variable settings are read from flags and the config file.
func resolveServerConfig(cmd *cobra.Command) (*app.ServerConfig, error) {
	v, err := app.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if commands.Global.ConfigFile != "" {
		v.SetConfigFile(commands.Global.ConfigFile)
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("error reading config file %q: %w", commands.Global.ConfigFile, err)
		}
	}

	// The values only live as long as the command, so a random key is sufficient
	var key [32]byte
	copy(key[:], strings.ReplaceAll(uuid.NewString(), "-", ""))

	// Logs go to stderr so they never mix with the resolved output
	levels := logger.LogLevelConfig(logger.AllSubsystems + "=warning")
	if commands.Global.Debug {
		levels = logger.AllSubsystems + "=debug"
	}

	return &app.ServerConfig{
		DatabaseConfig: store.DatabaseConfig{
			ConnectionString:   InMemoryConnectionString,
			Driver:             store.Sqlite,
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		},
		EncryptionConfig: encryption.KeyManagerConfig{
			Type:           encryption.LocalKeyManagerType,
			LocalMasterKey: &key,
		},
		ComposerConfig: job_variables.ComposerConfig{
			ServerURL:     strings.TrimSuffix(v.GetString("server_url"), "/"),
			ServerName:    v.GetString("server_name"),
			ServerVersion: version.ServerVersion(),
		},
		LogLevels: levels,
		LogOutput: os.Stderr,
	}, nil
}
