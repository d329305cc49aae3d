//go:build wireinject
// +build wireinject

package server_test

import (
	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/app"
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
	"github.com/buildbeaver/jobvars/server/store/store_test"
	"github.com/buildbeaver/jobvars/server/store/variables"
)

func New(config *app.ServerConfig) (*TestServer, func(), error) {
	panic(wire.Build(
		NewTestServer,
		wire.FieldsOf(new(*app.ServerConfig), "EncryptionConfig", "ComposerConfig", "LogLevels", "MetricsRegisterer"),
		store_test.Connect,

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

		encryption.NewKeyManager,
		encryption.NewEncryptionService,
		wire.Bind(new(services.EncryptionService), new(*encryption.EncryptionService)),
		variable.NewVariableService,
		wire.Bind(new(services.VariableService), new(*variable.VariableService)),
		kubeconfig.NewKubeconfigService,
		wire.Bind(new(services.KubeconfigService), new(*kubeconfig.KubeconfigService)),
		job_variables.NewComposer,
		job_variables.NewContextLoader,
		app.MakeEnvironmentResolver,
		NewRecordingLifecycleNotifier,
		wire.Bind(new(services.EnvironmentLifecycleNotifier), new(*RecordingLifecycleNotifier)),
		job.NewJobService,
		wire.Bind(new(services.JobService), new(*job.JobService)),

		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}
