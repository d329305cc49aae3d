package server_test

import (
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/store"
)

type TestServer struct {
	DB                      *store.DB
	VariableStore           store.VariableStore
	JobStore                store.JobStore
	JobDefinitionStore      store.JobDefinitionStore
	JobMetadataStore        store.JobMetadataStore
	EnvironmentBindingStore store.EnvironmentBindingStore
	DotenvVariableStore     store.DotenvVariableStore
	EncryptionService       services.EncryptionService
	VariableService         services.VariableService
	KubeconfigService       services.KubeconfigService
	JobService              services.JobService
	Composer                *job_variables.Composer
	ContextLoader           *job_variables.ContextLoader
	Notifier                *RecordingLifecycleNotifier
	LogFactory              logger.LogFactory
}

func NewTestServer(
	db *store.DB,
	variableStore store.VariableStore,
	jobStore store.JobStore,
	jobDefinitionStore store.JobDefinitionStore,
	jobMetadataStore store.JobMetadataStore,
	environmentBindingStore store.EnvironmentBindingStore,
	dotenvVariableStore store.DotenvVariableStore,
	encryptionService services.EncryptionService,
	variableService services.VariableService,
	kubeconfigService services.KubeconfigService,
	jobService services.JobService,
	composer *job_variables.Composer,
	contextLoader *job_variables.ContextLoader,
	notifier *RecordingLifecycleNotifier,
	logFactory logger.LogFactory,
) *TestServer {
	return &TestServer{
		DB:                      db,
		VariableStore:           variableStore,
		JobStore:                jobStore,
		JobDefinitionStore:      jobDefinitionStore,
		JobMetadataStore:        jobMetadataStore,
		EnvironmentBindingStore: environmentBindingStore,
		DotenvVariableStore:     dotenvVariableStore,
		EncryptionService:       encryptionService,
		VariableService:         variableService,
		KubeconfigService:       kubeconfigService,
		JobService:              jobService,
		Composer:                composer,
		ContextLoader:           contextLoader,
		Notifier:                notifier,
		LogFactory:              logFactory,
	}
}
