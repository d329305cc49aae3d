package migrate

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/cli"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands"
	"github.com/buildbeaver/jobvars/server/store"
	"github.com/buildbeaver/jobvars/server/store/migrations"
)

func init() {
	migrateRootCmd.PersistentFlags().String(
		"database_driver",
		string(store.Sqlite),
		"The Database Driver to use for migration (i.e sqlite3|postgres)")
	migrateRootCmd.PersistentFlags().String(
		"database_connection_string",
		app.DefaultSQLiteConnectionString,
		"The connection string for the database to use for migration")
	migrateRootCmd.PersistentFlags().BoolVar(
		&migrateCmdConfig.skipConfirmation,
		"skip-confirmation",
		false,
		"Skip interactive confirmation and automatically answer Yes to confirmation questions")

	commands.RootCmd.AddCommand(migrateRootCmd)
	migrateRootCmd.AddCommand(migrateUpCmd)
	migrateRootCmd.AddCommand(migrateDownCmd)
	migrateRootCmd.AddCommand(migrateGotoCmd)
	migrateRootCmd.AddCommand(migrateForceCmd)
	migrateRootCmd.AddCommand(migrateVersionCmd)
}

var migrateCmdConfig = struct {
	driver           store.DBDriver
	connectionString store.DatabaseConnectionString
	skipConfirmation bool
	migrationRunner  *migrations.GolangMigrateRunner
}{}

var migrateRootCmd = &cobra.Command{
	Use:   "migrate up|down|goto|force|version",
	Short: "Migrates the database up to the latest version, down to empty, or to a specific version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetEnvPrefix(app.EnvPrefix)
		v.AutomaticEnv()
		err := v.BindPFlags(cmd.Flags())
		if err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
		migrateCmdConfig.driver = store.DBDriver(v.GetString("database_driver"))
		migrateCmdConfig.connectionString = store.DatabaseConnectionString(v.GetString("database_connection_string"))

		// migration runner needs a log factory; use a very plain log format
		logLevels := logger.LogLevelConfig("")
		if commands.Global.Debug {
			logLevels = "GolangMigrateRunner=debug"
		}
		logRegistry, err := logger.NewLogRegistry(logLevels)
		if err != nil {
			return err
		}
		logFactory := logger.MakeLogrusLogFactoryPlain(logRegistry, os.Stderr)
		migrateCmdConfig.migrationRunner = migrations.NewJobVarsGolangMigrateRunner(logFactory)
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:           "up",
	Short:         "Migrates the database up to the latest version",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := migrateCmdConfig.migrationRunner.Up(context.Background(), migrateCmdConfig.driver, migrateCmdConfig.connectionString)
		if err != nil {
			return fmt.Errorf("error running 'up' migration: %w", err)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:           "down",
	Short:         "Migrates the database down to being empty",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed := cli.AskForConfirmation("Running a Down migration will remove ALL variables and job data from this database. Are you sure?", migrateCmdConfig.skipConfirmation)
		if !confirmed {
			cli.Stdout.Printf("Down migration cancelled.")
			return nil
		}
		err := migrateCmdConfig.migrationRunner.Down(context.Background(), migrateCmdConfig.driver, migrateCmdConfig.connectionString)
		if err != nil {
			return fmt.Errorf("error running 'down' migration: %w", err)
		}
		return nil
	},
}

var migrateGotoCmd = &cobra.Command{
	Use:           "goto V",
	Short:         "Migrates the database up or down as required to be at specific version V",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		confirmed := cli.AskForConfirmation("Running a Goto migration will sometimes REMOVE data from this database. Are you sure?", migrateCmdConfig.skipConfirmation)
		if !confirmed {
			cli.Stdout.Printf("Goto migration cancelled.")
			return nil
		}
		err = migrateCmdConfig.migrationRunner.Goto(context.Background(), migrateCmdConfig.driver, migrateCmdConfig.connectionString, version)
		if err != nil {
			return fmt.Errorf("error running 'goto' migration: %w", err)
		}
		return nil
	},
}

var migrateForceCmd = &cobra.Command{
	Use:           "force V",
	Short:         "Marks the database as being clean and in version V, but don't run migrations",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		confirmed := cli.AskForConfirmation("Running a Force migration should only be performed after the database has been manually checked and fixed. Are you sure?", migrateCmdConfig.skipConfirmation)
		if !confirmed {
			cli.Stdout.Printf("Force migration cancelled.")
			return nil
		}
		err = migrateCmdConfig.migrationRunner.Force(context.Background(), migrateCmdConfig.driver, migrateCmdConfig.connectionString, version)
		if err != nil {
			return fmt.Errorf("error running 'force' operation: %w", err)
		}
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:           "version",
	Short:         "Prints the version the database is currently migrated to",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, dirty, err := migrateCmdConfig.migrationRunner.Version(context.Background(), migrateCmdConfig.driver, migrateCmdConfig.connectionString)
		if err != nil {
			return fmt.Errorf("error reading migration version: %w", err)
		}
		if dirty {
			cli.Stdout.Printf("%d (dirty; check the database then run 'migrate force %d')\n", version, version)
			return nil
		}
		cli.Stdout.Printf("%d\n", version)
		return nil
	},
}

func parseVersion(str string) (uint, error) {
	version, err := strconv.Atoi(str)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("error: version must be a valid number")
	}
	return uint(version), nil
}
