package server_test

import (
	"context"
	"sync"

	"github.com/buildbeaver/jobvars/server/dto"
)

// RecordingLifecycleNotifier remembers every environment lifecycle notification it receives.
type RecordingLifecycleNotifier struct {
	mu        sync.Mutex
	autoStops []*dto.JobTransition
	syncs     []*dto.JobTransition
}

func NewRecordingLifecycleNotifier() *RecordingLifecycleNotifier {
	return &RecordingLifecycleNotifier{}
}

func (n *RecordingLifecycleNotifier) ScheduleAutoStop(ctx context.Context, transition *dto.JobTransition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoStops = append(n.autoStops, transition)
}

func (n *RecordingLifecycleNotifier) SyncDeployment(ctx context.Context, transition *dto.JobTransition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncs = append(n.syncs, transition)
}

// AutoStops returns the transitions that requested an environment auto-stop.
func (n *RecordingLifecycleNotifier) AutoStops() []*dto.JobTransition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*dto.JobTransition(nil), n.autoStops...)
}

// DeploymentSyncs returns the transitions that requested a deployment status sync.
func (n *RecordingLifecycleNotifier) DeploymentSyncs() []*dto.JobTransition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*dto.JobTransition(nil), n.syncs...)
}
