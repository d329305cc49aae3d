package job

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/jobvars/common/gerror"
	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/common/models"
	"github.com/buildbeaver/jobvars/server/dto"
	"github.com/buildbeaver/jobvars/server/services"
	"github.com/buildbeaver/jobvars/server/services/job_variables"
	"github.com/buildbeaver/jobvars/server/store"
)

type JobService struct {
	db                  *store.DB
	jobStore            store.JobStore
	definitionStore     store.JobDefinitionStore
	metadataStore       store.JobMetadataStore
	dotenvVariableStore store.DotenvVariableStore
	contextLoader       *job_variables.ContextLoader
	environments        *job_variables.EnvironmentResolver
	notifier            services.EnvironmentLifecycleNotifier
	clk                 clock.Clock
	logger.Log
}

func NewJobService(
	db *store.DB,
	jobStore store.JobStore,
	definitionStore store.JobDefinitionStore,
	metadataStore store.JobMetadataStore,
	dotenvVariableStore store.DotenvVariableStore,
	contextLoader *job_variables.ContextLoader,
	environments *job_variables.EnvironmentResolver,
	notifier services.EnvironmentLifecycleNotifier,
	clk clock.Clock,
	logFactory logger.LogFactory) *JobService {
	return &JobService{
		db:                  db,
		jobStore:            jobStore,
		definitionStore:     definitionStore,
		metadataStore:       metadataStore,
		dotenvVariableStore: dotenvVariableStore,
		contextLoader:       contextLoader,
		environments:        environments,
		notifier:            notifier,
		clk:                 clk,
		Log:                 logFactory("JobService"),
	}
}

// Create persists a new job together with its configuration, and binds the job to its
// environment if it has an environment keyword.
// Returns gerror.ErrAlreadyExists if the job already exists.
func (s *JobService) Create(ctx context.Context, create *dto.CreateJob) (*models.Job, error) {
	err := create.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid job").Wrap(err)
	}
	job := create.Job
	now := models.NewTime(s.clk.Now())
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	err = s.db.WithTx(ctx, nil, func(tx *store.Tx) error {
		if !create.LegacyMetadata {
			definition, err := models.NewJobDefinition(now, job.ProjectID, create.Config)
			if err != nil {
				return err
			}
			definition, _, err = s.definitionStore.FindOrCreate(ctx, tx, definition)
			if err != nil {
				return fmt.Errorf("error storing job definition: %w", err)
			}
			job.DefinitionChecksum = definition.Checksum
		}
		err := s.jobStore.Create(ctx, tx, job)
		if err != nil {
			return fmt.Errorf("error creating job: %w", err)
		}
		if create.LegacyMetadata {
			err = s.metadataStore.Create(ctx, tx, legacyMetadata(job, create.Config))
			if err != nil {
				return fmt.Errorf("error creating job metadata: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log := s.WithField("job_id", job.ID)
	log.Infof("Created job %q", job.Name)

	// The binding is created outside the job's transaction since the environment name is expanded
	// using stored variables. A job without a binding expands its environment name on demand, so
	// failing to bind is not fatal.
	if job.HasEnvironmentKeyword() {
		jc, err := s.contextLoader.Load(ctx, nil, &create.JobExecution)
		if err == nil {
			_, err = s.environments.EnsureBinding(ctx, nil, jc)
		}
		if err != nil {
			log.Warnf("Unable to bind job to environment: %v", err)
		}
	}
	return job, nil
}

func legacyMetadata(job *models.Job, config models.JobConfig) *models.JobMetadata {
	metadata := &models.JobMetadata{
		JobID:           job.ID,
		ProjectID:       job.ProjectID,
		ConfigVariables: config.YAMLVariables,
		IDTokens:        config.IDTokens,
	}
	if config.Options != nil {
		metadata.ConfigOptions = *config.Options
	}
	if config.Interruptible != nil {
		metadata.Interruptible = *config.Interruptible
	}
	return metadata
}

// Read an existing job, looking it up by ID.
// Returns gerror.ErrNotFound if the job does not exist.
func (s *JobService) Read(ctx context.Context, txOrNil *store.Tx, id int64) (*models.Job, error) {
	return s.jobStore.Read(ctx, txOrNil, id)
}

// Transition moves a job to a new status and then notifies the environment lifecycle hooks.
// Moving a job to the status it already has is a loopback: nothing is written and no hooks run.
// Returns gerror.ErrInvalidStatusTransition if the job cannot move to the new status.
func (s *JobService) Transition(ctx context.Context, txOrNil *store.Tx, id int64, to models.JobStatus) (*models.Job, error) {
	var (
		job        *models.Job
		transition *dto.JobTransition
	)
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		var err error
		job, err = s.jobStore.Read(ctx, tx, id)
		if err != nil {
			return err
		}
		from := job.Status
		transition = &dto.JobTransition{
			JobID:            job.ID,
			ProjectID:        job.ProjectID,
			PipelineID:       job.PipelineID,
			Environment:      job.Environment,
			From:             from,
			To:               to,
			DeploymentStatus: models.DeploymentStatusForJob(to),
			At:               models.NewTime(s.clk.Now()),
		}
		if transition.IsLoopback() {
			return nil
		}
		if !from.CanTransitionTo(to) {
			return gerror.NewErrInvalidStatusTransition(fmt.Sprintf("Job cannot move from %s to %s", from, to))
		}
		err = s.jobStore.UpdateStatus(ctx, tx, job, from, to)
		if err != nil {
			return fmt.Errorf("error updating job status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transition.IsLoopback() {
		return job, nil
	}
	s.WithFields(logger.Fields{
		"job_id": job.ID,
		"from":   transition.From,
		"to":     transition.To,
	}).Info("Job status changed")
	s.afterTransition(ctx, job, transition)
	return job, nil
}

// afterTransition runs the environment lifecycle hooks for a committed transition.
func (s *JobService) afterTransition(ctx context.Context, job *models.Job, transition *dto.JobTransition) {
	if !job.HasEnvironmentKeyword() {
		return
	}
	if transition.To == models.JobStatusSuccess {
		s.notifier.ScheduleAutoStop(ctx, transition)
	}
	s.notifier.SyncDeployment(ctx, transition)
}

// ExportDotenvVariables records the dotenv variables exported by a job's artifacts, for use by
// downstream jobs.
func (s *JobService) ExportDotenvVariables(ctx context.Context, txOrNil *store.Tx, jobID int64, variables []*models.DotenvVariable) error {
	for _, variable := range variables {
		variable.JobID = jobID
		err := variable.Validate()
		if err != nil {
			return gerror.NewErrValidationFailed(fmt.Sprintf("Invalid dotenv variable %q", variable.Key)).Wrap(err)
		}
	}
	err := s.dotenvVariableStore.CreateAll(ctx, txOrNil, variables)
	if err != nil {
		return fmt.Errorf("error storing dotenv variables: %w", err)
	}
	s.WithField("job_id", jobID).Infof("Exported %d dotenv variables", len(variables))
	return nil
}
