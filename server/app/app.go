package app

import (
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/store"
)

type Server struct {
	DB              *store.DB
	JobService      services.JobService
	VariableService services.VariableService
	Composer        *job_variables.Composer
	ContextLoader   *job_variables.ContextLoader
}

func NewServer(
	db *store.DB,
	jobService services.JobService,
	variableService services.VariableService,
	composer *job_variables.Composer,
	contextLoader *job_variables.ContextLoader,
) *Server {
	return &Server{
		DB:              db,
		JobService:      jobService,
		VariableService: variableService,
		Composer:        composer,
		ContextLoader:   contextLoader,
	}
}
