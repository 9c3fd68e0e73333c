// Package health polls a platform resource after a mutating action until
// it reaches a known-good terminal state, an unhealthy terminal state, or a
// configured timeout elapses.
package health

import (
	"context"
	"time"

	"github.com/pipelineguard/remediator/pkg/platform"
)

// ResourceKind identifies which Get*State adapter call to poll and which
// healthy-state policy to apply.
type ResourceKind string

const (
	KindCluster     ResourceKind = "cluster"
	KindJobRun      ResourceKind = "job_run"
	KindPipelineRun ResourceKind = "pipeline_run"
)

// Target names the resource to verify and, for scale_cluster, the worker
// count the cluster must reach in addition to being RUNNING.
type Target struct {
	Kind              ResourceKind
	ResourceID        string
	ExpectedWorkerCount int // only checked when Kind == KindCluster and > 0
}

// Result is the outcome of a verification poll loop.
type Result struct {
	Healthy bool
	Reason  string // "healthy", a failure reason, or "timeout"
}

// Verifier polls an adapter until a Target resolves.
type Verifier struct {
	adapter      platform.Adapter
	pollInterval time.Duration
}

// NewVerifier builds a Verifier against adapter, polling every pollInterval.
func NewVerifier(adapter platform.Adapter, pollInterval time.Duration) *Verifier {
	return &Verifier{adapter: adapter, pollInterval: pollInterval}
}

// Verify polls target until healthy, unhealthy, ctx is done, or timeout
// elapses, whichever comes first.
func (v *Verifier) Verify(ctx context.Context, target Target, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		result, done := v.poll(ctx, target)
		if done {
			return result
		}

		if time.Now().After(deadline) {
			return Result{Healthy: false, Reason: "timeout"}
		}

		select {
		case <-ctx.Done():
			return Result{Healthy: false, Reason: "timeout"}
		case <-ticker.C:
		}
	}
}

// poll issues a single Get*State call and classifies it. done is false
// while the resource is still transitioning and polling should continue.
func (v *Verifier) poll(ctx context.Context, target Target) (result Result, done bool) {
	switch target.Kind {
	case KindCluster:
		state, err := v.adapter.GetClusterState(ctx, target.ResourceID)
		if err != nil {
			return Result{}, false
		}
		return clusterHealth(state, target.ExpectedWorkerCount)
	case KindJobRun:
		state, err := v.adapter.GetRunState(ctx, target.ResourceID)
		if err != nil {
			return Result{}, false
		}
		return jobRunHealth(state)
	case KindPipelineRun:
		state, err := v.adapter.GetPipelineRunState(ctx, target.ResourceID)
		if err != nil {
			return Result{}, false
		}
		return pipelineRunHealth(state)
	default:
		return Result{Healthy: false, Reason: "unknown resource kind"}, true
	}
}

func clusterHealth(state platform.ClusterState, expectedWorkerCount int) (Result, bool) {
	if state.TerminationReason != "" {
		return Result{Healthy: false, Reason: state.TerminationReason}, true
	}
	if state.State != "RUNNING" {
		return Result{}, false
	}
	if expectedWorkerCount > 0 && state.WorkerCount != expectedWorkerCount {
		return Result{}, false
	}
	return Result{Healthy: true, Reason: "healthy"}, true
}

func jobRunHealth(state platform.RunState) (Result, bool) {
	if state.LifeCycleState != "TERMINATED" {
		return Result{}, false
	}
	switch state.ResultState {
	case "SUCCESS":
		return Result{Healthy: true, Reason: "healthy"}, true
	case "FAILED", "TIMEDOUT", "CANCELED":
		reason := state.Error
		if reason == "" {
			reason = state.ResultState
		}
		return Result{Healthy: false, Reason: reason}, true
	default:
		return Result{}, false
	}
}

var pipelineTerminalStatuses = map[string]bool{
	"Succeeded": true,
	"Failed":    true,
	"Cancelled": true,
}

func pipelineRunHealth(state platform.PipelineRunState) (Result, bool) {
	if !pipelineTerminalStatuses[state.Status] {
		return Result{}, false
	}
	if state.Status == "Succeeded" {
		return Result{Healthy: true, Reason: "healthy"}, true
	}
	reason := state.Error
	if reason == "" {
		reason = state.Status
	}
	return Result{Healthy: false, Reason: reason}, true
}
