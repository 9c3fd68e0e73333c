// Package snapshot captures pre-action resource state so a terminal
// failure after a mutating action can attempt a best-effort rollback. A
// Store is scoped to a single recovery invocation; it is never shared
// across requests.
package snapshot

import (
	"context"
	"time"

	"github.com/pipelineguard/remediator/pkg/platform"
)

// ResourceKind identifies what kind of resource a Snapshot captured.
type ResourceKind string

const (
	KindCluster ResourceKind = "cluster"
)

// Snapshot is the opaque pre-action state of one resource.
type Snapshot struct {
	ResourceKind ResourceKind
	ResourceID   string
	CapturedAt   time.Time
	State        map[string]any
}

// Store holds the snapshots captured during one RecoveryRequest. It is not
// safe for concurrent writes from more than one goroutine (primary attempts
// within a request are strictly sequential per spec, so this is never a
// constraint in practice).
type Store struct {
	snapshots []Snapshot
}

// NewStore builds an empty, invocation-scoped snapshot store.
func NewStore() *Store {
	return &Store{}
}

// CaptureCluster records the current state of a cluster before a mutating
// action. The captured worker count is what a rollback restores.
func (s *Store) CaptureCluster(ctx context.Context, adapter platform.Adapter, clusterID string) error {
	state, err := adapter.GetClusterState(ctx, clusterID)
	if err != nil {
		return err
	}
	s.snapshots = append(s.snapshots, Snapshot{
		ResourceKind: KindCluster,
		ResourceID:   clusterID,
		CapturedAt:   time.Now(),
		State: map[string]any{
			"worker_count": state.WorkerCount,
		},
	})
	return nil
}

// Latest returns the most recently captured snapshot, if any.
func (s *Store) Latest() (Snapshot, bool) {
	if len(s.snapshots) == 0 {
		return Snapshot{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

// All returns every snapshot captured during the invocation, oldest first.
func (s *Store) All() []Snapshot {
	return append([]Snapshot(nil), s.snapshots...)
}

// Rollback attempts to restore the most recent snapshot. It is always
// best-effort: a failure here is returned to the caller to log, never to
// replace the original terminal failure that triggered the rollback.
func (s *Store) Rollback(ctx context.Context, adapter platform.Adapter) error {
	latest, ok := s.Latest()
	if !ok {
		return nil
	}
	switch latest.ResourceKind {
	case KindCluster:
		workerCount, _ := latest.State["worker_count"].(int)
		_, err := adapter.ScaleCluster(ctx, latest.ResourceID, 0, workerCount)
		return err
	default:
		return nil
	}
}
