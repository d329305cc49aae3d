package job

import (
	"context"

	"github.com/buildbeaver/jobvars/common/logger"
	"github.com/buildbeaver/jobvars/server/dto"
)

// LoggingLifecycleNotifier is an EnvironmentLifecycleNotifier that records environment lifecycle
// events in the log, for deployments that have no environment scheduler attached.
type LoggingLifecycleNotifier struct {
	logger.Log
}

func NewLoggingLifecycleNotifier(logFactory logger.LogFactory) *LoggingLifecycleNotifier {
	return &LoggingLifecycleNotifier{
		Log: logFactory("EnvironmentLifecycle"),
	}
}

func (n *LoggingLifecycleNotifier) ScheduleAutoStop(ctx context.Context, transition *dto.JobTransition) {
	n.WithFields(logger.Fields{
		"job_id":      transition.JobID,
		"environment": transition.Environment,
	}).Info("Environment auto-stop requested")
}

func (n *LoggingLifecycleNotifier) SyncDeployment(ctx context.Context, transition *dto.JobTransition) {
	n.WithFields(logger.Fields{
		"job_id":            transition.JobID,
		"environment":       transition.Environment,
		"deployment_status": transition.DeploymentStatus,
	}).Info("Deployment status sync requested")
}
