// Package platform declares the capability contract the executor uses to
// act against a data-pipeline platform (Databricks or Azure Data Factory),
// and the closed error-kind taxonomy every adapter call returns through.
package platform

import "context"

// ClusterState is the result of GetClusterState.
type ClusterState struct {
	State              string // e.g. RUNNING, TERMINATED, PENDING, RESTARTING
	TerminationReason  string
	WorkerCount        int
}

// RunState is the result of GetRunState (a Databricks job run).
type RunState struct {
	LifeCycleState string // e.g. RUNNING, TERMINATED, PENDING
	ResultState    string // e.g. SUCCESS, FAILED, TIMEDOUT, CANCELED
	Error          string
}

// PipelineRunState is the result of GetPipelineRunState (an ADF pipeline run).
type PipelineRunState struct {
	Status string // e.g. InProgress, Succeeded, Failed, Cancelled
	Error  string
}

// Adapter is the capability set the executor dispatches recovery actions
// through. Implementations are pluggable per platform; the executor never
// imports a concrete adapter, only this interface.
type Adapter interface {
	RetryJob(ctx context.Context, jobID, runID string) (newRunID string, err error)
	RestartCluster(ctx context.Context, clusterID string) error
	ScaleCluster(ctx context.Context, clusterID string, deltaPercent, cap int) (newWorkerCount int, err error)
	LibraryFallback(ctx context.Context, clusterID, libraryName string, candidateVersions []string) (installedVersion string, err error)
	RerunPipeline(ctx context.Context, pipelineName, factoryName, resourceGroup string) (newRunID string, err error)

	GetClusterState(ctx context.Context, clusterID string) (ClusterState, error)
	GetRunState(ctx context.Context, runID string) (RunState, error)
	GetPipelineRunState(ctx context.Context, runID string) (PipelineRunState, error)
}
