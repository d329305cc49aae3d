package dump

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/app"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/cli"
	"github.com/buildbeaver/jobvars/server/cmd/jobvars-tools/commands"
	"github.com/buildbeaver/jobvars/server/store"
	"github.com/buildbeaver/jobvars/server/store/dotenv_variables"
	"github.com/buildbeaver/jobvars/server/store/environment_bindings"
	"github.com/buildbeaver/jobvars/server/store/jobs"
	"github.com/buildbeaver/jobvars/server/store/variables"
)

func init() {
	dumpRootCmd.PersistentFlags().String(
		"database_driver",
		string(store.Sqlite),
		"The Database Driver to use for fetching data (i.e sqlite3|postgres)")
	dumpRootCmd.PersistentFlags().String(
		"database_connection_string",
		app.DefaultSQLiteConnectionString,
		"The connection string for the database to use for fetching data")

	commands.RootCmd.AddCommand(dumpRootCmd)
	dumpRootCmd.AddCommand(dumpVariablesCmd)
	dumpRootCmd.AddCommand(dumpJobCmd)
}

var dumpCmdConfig = struct {
	db                      *store.DB
	dbCleanup               func()
	variableStore           store.VariableStore
	jobStore                store.JobStore
	environmentBindingStore store.EnvironmentBindingStore
	dotenvVariableStore     store.DotenvVariableStore
}{}

var dumpRootCmd = &cobra.Command{
	Use:   "dump (command)",
	Short: "Dumps variable and job data from the database. Variable values are never shown",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		v.SetEnvPrefix(app.EnvPrefix)
		v.AutomaticEnv()
		err := v.BindPFlags(cmd.Flags())
		if err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
		databaseConfig := store.DatabaseConfig{
			ConnectionString:   store.DatabaseConnectionString(v.GetString("database_connection_string")),
			Driver:             store.DBDriver(v.GetString("database_driver")),
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		}

		// stores need a log factory; use a very plain log format
		logRegistry, err := logger.NewLogRegistry("")
		if err != nil {
			return err
		}
		logFactory := logger.MakeLogrusLogFactoryPlain(logRegistry, os.Stderr)

		// open the database but do not perform migrations
		db, cleanup, err := store.NewDatabase(context.Background(), databaseConfig, nil)
		if err != nil {
			return fmt.Errorf("error opening %s database for dump: %w", databaseConfig.Driver, err)
		}
		dumpCmdConfig.db = db
		dumpCmdConfig.dbCleanup = cleanup
		dumpCmdConfig.variableStore = variables.NewStore(db, logFactory)
		dumpCmdConfig.jobStore = jobs.NewStore(db, logFactory)
		dumpCmdConfig.environmentBindingStore = environment_bindings.NewStore(db, logFactory)
		dumpCmdConfig.dotenvVariableStore = dotenv_variables.NewStore(db, logFactory)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dumpCmdConfig.dbCleanup != nil {
			dumpCmdConfig.dbCleanup()
			dumpCmdConfig.dbCleanup = nil
		}
	},
}

var dumpVariablesCmd = &cobra.Command{
	Use:           "variables owner-kind [owner-id]",
	Short:         "Dumps the variables of an instance, group, project, pipeline, schedule or trigger",
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ownerKind := models.VariableOwnerKind(args[0])
		if !ownerKind.Valid() {
			return fmt.Errorf("error unknown owner kind %q", args[0])
		}
		var ownerID int64
		if len(args) == 2 {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("error parsing owner id: %w", err)
			}
			ownerID = id
		}
		ctx := context.Background()
		list, err := dumpCmdConfig.variableStore.ListByOwner(ctx, nil, ownerKind, ownerID)
		if err != nil {
			return fmt.Errorf("error listing variables: %w", err)
		}
		cli.Stdout.Printf("\nVARIABLES OF %s %d\n\n", strings.ToUpper(ownerKind.String()), ownerID)
		for _, variable := range list {
			dumpVariable(variable)
		}
		cli.Stdout.Printf("Total %d variables\n", len(list))
		return nil
	},
}

var dumpJobCmd = &cobra.Command{
	Use:           "job job-id",
	Short:         "Dumps a job with its environment binding and the dotenv variables it exported",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("error parsing job id: %w", err)
		}
		ctx := context.Background()
		return dumpCmdConfig.db.WithTx(ctx, nil, func(tx *store.Tx) error {
			job, err := dumpCmdConfig.jobStore.Read(ctx, tx, jobID)
			if err != nil {
				return fmt.Errorf("error reading job: %w", err)
			}
			cli.Stdout.Printf("\nJOB %d\n\n", job.ID)
			cli.Stdout.Printf("   Name:        %s", job.Name)
			cli.Stdout.Printf("   Stage:       %s", job.Stage)
			cli.Stdout.Printf("   Project:     %d", job.ProjectID)
			cli.Stdout.Printf("   Pipeline:    %d", job.PipelineID)
			cli.Stdout.Printf("   Ref:         %s (tag: %t)", job.Ref, job.Tag)
			cli.Stdout.Printf("   Status:      %s", job.Status)
			cli.Stdout.Printf("   Definition:  %s", job.DefinitionChecksum)
			cli.Stdout.Printf("   Environment: %s", job.Environment)

			binding, err := dumpCmdConfig.environmentBindingStore.Read(ctx, tx, jobID)
			if err != nil && !gerror.IsNotFound(err) {
				return fmt.Errorf("error reading environment binding: %w", err)
			}
			if binding != nil {
				cli.Stdout.Printf("\nENVIRONMENT BINDING\n\n")
				cli.Stdout.Printf("   Expanded name:   %s", binding.ExpandedEnvironmentName)
				cli.Stdout.Printf("   Action:          %s", binding.Options.Action)
				cli.Stdout.Printf("   Deployment tier: %s", binding.Options.DeploymentTier)
				cli.Stdout.Printf("   Namespace:       %s", binding.Options.KubernetesNamespace())
				cli.Stdout.Printf("   Bound at:        %s", binding.CreatedAt)
			}

			exported, err := dumpCmdConfig.dotenvVariableStore.ListByJobs(ctx, tx, []int64{jobID})
			if err != nil {
				return fmt.Errorf("error listing dotenv variables: %w", err)
			}
			if len(exported) > 0 {
				cli.Stdout.Printf("\nDOTENV VARIABLES\n\n")
				for _, variable := range exported {
					cli.Stdout.Printf("   %s", variable.Key)
				}
			}
			cli.Stdout.Printf("")
			return nil
		})
	},
}

func dumpVariable(variable *models.Variable) {
	var flags []string
	if variable.Protected {
		flags = append(flags, "protected")
	}
	if variable.Masked {
		flags = append(flags, "masked")
	}
	if variable.Hidden {
		flags = append(flags, "hidden")
	}
	if variable.Raw {
		flags = append(flags, "raw")
	}
	cli.Stdout.Printf("Variable %s", variable.ID)
	cli.Stdout.Printf("   Key:         %s", variable.Key)
	cli.Stdout.Printf("   Type:        %s", variable.VariableType)
	cli.Stdout.Printf("   Scope:       %s", variable.EnvironmentScope)
	cli.Stdout.Printf("   Attributes:  %s", strings.Join(flags, ", "))
	cli.Stdout.Printf("   Updated at:  %s", variable.UpdatedAt)
	cli.Stdout.Printf("")
}
