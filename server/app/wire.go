//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/services/encryption"
	"github.com/buildbeaver/jobvars/server/services/job"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/services/kubeconfig"
	"github.com/buildbeaver/jobvars/server/services/variable"
	"github.com/buildbeaver/jobvars/server/store"
	"github.com/buildbeaver/jobvars/server/store/dotenv_variables"
	"github.com/buildbeaver/jobvars/server/store/environment_bindings"
	"github.com/buildbeaver/jobvars/server/store/job_definitions"
	"github.com/buildbeaver/jobvars/server/store/job_metadata"
	"github.com/buildbeaver/jobvars/server/store/jobs"
	"github.com/buildbeaver/jobvars/server/store/migrations"
	"github.com/buildbeaver/jobvars/server/store/variables"
)

// MakeEnvironmentResolver returns the environment resolver owned by the composer.
func MakeEnvironmentResolver(composer *job_variables.Composer) *job_variables.EnvironmentResolver {
	return composer.Environments()
}

// MakeLogFactory returns a log factory writing to config.LogOutput, or to stdout if it is not set.
func MakeLogFactory(config *ServerConfig, logRegistry *logger.LogRegistry) logger.LogFactory {
	if config.LogOutput == nil {
		return logger.MakeLogrusLogFactoryStdOut(logRegistry)
	}
	return logger.MakeLogrusLogFactory(logRegistry, config.LogOutput)
}

func New(ctx context.Context, config *ServerConfig) (*Server, func(), error) {
	panic(wire.Build(
		NewServer,
		wire.FieldsOf(new(*ServerConfig), "DatabaseConfig", "EncryptionConfig", "ComposerConfig", "LogLevels", "MetricsRegisterer"),
		store.NewDatabase,
		migrations.NewJobVarsGolangMigrateRunner,
		wire.Bind(new(store.MigrationRunner), new(*migrations.GolangMigrateRunner)),

		// Stores
		variables.NewStore,
		wire.Bind(new(store.VariableStore), new(*variables.VariableStore)),
		jobs.NewStore,
		wire.Bind(new(store.JobStore), new(*jobs.JobStore)),
		job_definitions.NewStore,
		wire.Bind(new(store.JobDefinitionStore), new(*job_definitions.JobDefinitionStore)),
		job_metadata.NewStore,
		wire.Bind(new(store.JobMetadataStore), new(*job_metadata.JobMetadataStore)),
		environment_bindings.NewStore,
		wire.Bind(new(store.EnvironmentBindingStore), new(*environment_bindings.EnvironmentBindingStore)),
		dotenv_variables.NewStore,
		wire.Bind(new(store.DotenvVariableStore), new(*dotenv_variables.DotenvVariableStore)),

		// Services
		encryption.NewKeyManager,
		encryption.NewEncryptionService,
		wire.Bind(new(services.EncryptionService), new(*encryption.EncryptionService)),
		variable.NewVariableService,
		wire.Bind(new(services.VariableService), new(*variable.VariableService)),
		kubeconfig.NewKubeconfigService,
		wire.Bind(new(services.KubeconfigService), new(*kubeconfig.KubeconfigService)),
		job_variables.NewComposer,
		job_variables.NewContextLoader,
		MakeEnvironmentResolver,
		job.NewLoggingLifecycleNotifier,
		wire.Bind(new(services.EnvironmentLifecycleNotifier), new(*job.LoggingLifecycleNotifier)),
		job.NewJobService,
		wire.Bind(new(services.JobService), new(*job.JobService)),

		logger.NewLogRegistry,
		MakeLogFactory,
		clock.New,
	))
}
