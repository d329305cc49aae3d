package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/buildbeaver/jobvars/common/version"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/cli"
)

type GlobalConfig struct {
	Debug      bool
	ConfigFile string
}

var Global = &GlobalConfig{}

func init() {
	RootCmd.PersistentFlags().BoolVarP(
		&Global.Debug,
		"debug",
		"d",
		false,
		"Enable debug-level log output.")
	RootCmd.PersistentFlags().StringVar(
		&Global.ConfigFile,
		"config",
		"",
		"A YAML, JSON or TOML file holding server configuration flags.")
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cli.Exit(RootCmd.Execute())
}

// LoadServerConfig reads the server configuration from flags, JOBVARS_* environment variables
// and the file named by --config, in that order of precedence.
func LoadServerConfig(flags *pflag.FlagSet) (*app.ServerConfig, error) {
	v, err := app.NewViper(flags)
	if err != nil {
		return nil, err
	}
	if Global.ConfigFile != "" {
		v.SetConfigFile(Global.ConfigFile)
		err = v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("error reading config file %q: %w", Global.ConfigFile, err)
		}
	}
	return app.ConfigFromViper(v)
}

var RootCmd = &cobra.Command{
	Use:     "jobvars-tools command",
	Short:   "Job variable tools",
	Long:    `Tools for inspecting and maintaining the job variables database`,
	Version: version.VersionToString(),
}
