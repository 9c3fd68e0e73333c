package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/pipelineguard/remediator/internal/errors"
	"github.com/pipelineguard/remediator/pkg/breaker"
	"github.com/pipelineguard/remediator/pkg/breakerlock"
	"github.com/pipelineguard/remediator/pkg/health"
	"github.com/pipelineguard/remediator/pkg/metrics"
	"github.com/pipelineguard/remediator/pkg/platform"
	"github.com/pipelineguard/remediator/pkg/playbook"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
	"github.com/pipelineguard/remediator/pkg/snapshot"
)

// Config tunes the orchestrator's defaults. Values here apply only when a
// playbook.Config leaves the corresponding field at its zero value.
type Config struct {
	// Disabled is the top-level kill switch. true makes every Execute call
	// return a skip result immediately, without consulting the registry or
	// the breaker fabric. The zero value (false) runs playbooks normally,
	// so existing callers that never set it are unaffected.
	Disabled               bool
	DefaultPlatform        string
	RetryBaseDelay         time.Duration
	RetryMaxDelay          time.Duration
	MaxChainDepth          int
	DefaultBreakerThreshold int
	DefaultBreakerTimeout  time.Duration
	HealthPollInterval     time.Duration
	LockTTL                time.Duration
	MaxConcurrentActions   int64
	EnabledActions         map[playbook.Action]bool // absent/true = enabled; false = disabled
	DryRun                 bool
}

// actionOutcome carries whatever a dispatched action produced that a
// subsequent health check needs (a new run id, a resized worker count, ...).
type actionOutcome struct {
	NewWorkerCount   int
	RunID            string
	InstalledVersion string
}

// Executor is the recovery orchestrator. One Executor is built at startup
// from the process configuration and is safe for concurrent Execute calls.
type Executor struct {
	registry *playbook.Registry
	fabric   *breaker.Fabric
	locker   breakerlock.Locker
	adapters map[string]platform.Adapter
	sem      *semaphore.Weighted
	sinks    []EventSink
	log      *logrus.Entry
	cfg      Config
}

// New builds an Executor. adapters is keyed by platform name ("databricks",
// "adf"); a RecoveryRequest without an explicit metadata["platform"] falls
// back to cfg.DefaultPlatform.
func New(registry *playbook.Registry, fabric *breaker.Fabric, locker breakerlock.Locker, adapters map[string]platform.Adapter, sinks []EventSink, log *logrus.Entry, cfg Config) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if locker == nil {
		locker = breakerlock.NoopLocker{}
	}
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentActions > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentActions)
	}
	return &Executor{
		registry: registry,
		fabric:   fabric,
		locker:   locker,
		adapters: adapters,
		sem:      sem,
		sinks:    sinks,
		log:      log,
		cfg:      cfg,
	}
}

// Execute runs the recovery playbook registered for req.ErrorType to
// completion: breaker check, optional snapshot, primary retry loop with
// health verification, one fallback attempt, a chained playbook on success,
// and a best-effort rollback on terminal failure. It never panics and never
// returns a bare error; every outcome is reported in the result.
func (e *Executor) Execute(ctx context.Context, req RecoveryRequest) PlaybookExecutionResult {
	return e.execute(ctx, req, 0, map[string]bool{})
}

func (e *Executor) execute(ctx context.Context, req RecoveryRequest, depth int, visited map[string]bool) PlaybookExecutionResult {
	start := time.Now()
	log := e.log.WithFields(logging.PlaybookFields(req.ErrorType, "").ToLogrus())

	if e.cfg.Disabled {
		return e.terminal(req, "", PlaybookExecutionResult{
			Message: "auto-remediation disabled",
		}, start)
	}

	cfg, ok := e.registry.Get(req.ErrorType)
	if !ok {
		return e.terminal(req, "", PlaybookExecutionResult{
			Message: apperrors.NewPlaybookNotFound(req.ErrorType).Error(),
		}, start)
	}

	if visited[req.ErrorType] {
		return e.terminal(req, "", PlaybookExecutionResult{
			Message: fmt.Sprintf("cycle detected: %s already executed in this chain", req.ErrorType),
		}, start)
	}
	if depth > e.cfg.MaxChainDepth {
		return e.terminal(req, "", PlaybookExecutionResult{
			Message: "chained playbook depth exceeded",
		}, start)
	}
	visited[req.ErrorType] = true

	if !e.actionEnabled(cfg.Action) {
		return e.terminal(req, "", PlaybookExecutionResult{
			Message: apperrors.NewActionDisabled(string(cfg.Action)).Error(),
		}, start)
	}

	adapter, err := e.adapterFor(req)
	if err != nil {
		return e.terminal(req, "", PlaybookExecutionResult{Message: err.Error()}, start)
	}

	key := breaker.DeriveKey(req.ErrorType, cfg.Action, req.Metadata)
	breakerCfg := e.breakerConfig(cfg)

	if release, acquired, lockErr := e.locker.TryAcquire(ctx, key, e.cfg.LockTTL); lockErr != nil {
		log.WithError(lockErr).Warn("breaker lock unavailable, proceeding without it")
	} else if acquired {
		defer release(ctx)
	}

	allowed, state, ticket, err := e.fabric.Allow(key, breakerCfg)
	if err != nil || !allowed {
		return e.terminal(req, key, PlaybookExecutionResult{
			Message:              apperrors.NewCircuitOpen(key).Error(),
			CircuitBreakerStatus: state,
		}, start)
	}

	snaps := snapshot.NewStore()
	if cfg.SnapshotBefore {
		if snapErr := e.captureSnapshot(ctx, cfg, req, adapter, snaps); snapErr != nil {
			log.WithError(snapErr).Warn("snapshot capture failed, proceeding without a rollback safety net")
		}
	}

	result, success := e.runPrimary(ctx, cfg, req, adapter)

	if success {
		ticket.Succeed()
	} else {
		ticket.Fail()
		if cfg.SnapshotBefore {
			if rbErr := snaps.Rollback(ctx, adapter); rbErr != nil {
				wrapped := apperrors.NewRollbackFailed(req.Metadata["cluster_id"], rbErr)
				log.WithError(wrapped).Warn("rollback failed")
				if result.Metadata == nil {
					result.Metadata = map[string]any{}
				}
				result.Metadata["rollback_error"] = wrapped.Error()
			}
		}
	}
	result.CircuitBreakerStatus = e.fabric.Snapshot(key, breakerCfg)

	if success && cfg.HasChain() && !visited[cfg.ChainedPlaybook] {
		chainedReq := RecoveryRequest{ErrorType: cfg.ChainedPlaybook, TicketID: req.TicketID, Metadata: req.Metadata}
		chainedResult := e.execute(ctx, chainedReq, depth+1, visited)
		result.ChainedResult = &chainedResult
		metrics.RecordChain(chainedResult.Success)
	}

	result.Success = success
	return e.terminal(req, key, result, start)
}

// runPrimary drives the primary attempt loop, then one fallback attempt if
// the primary is exhausted and a fallback action is configured.
func (e *Executor) runPrimary(ctx context.Context, cfg playbook.Config, req RecoveryRequest, adapter platform.Adapter) (PlaybookExecutionResult, bool) {
	result := PlaybookExecutionResult{Metadata: map[string]any{}}

	overallTimeout := time.Duration(cfg.TimeoutSeconds)*time.Second*time.Duration(cfg.MaxRetries+1) +
		time.Duration(cfg.HealthCheckTimeout)*time.Second
	attemptCtx, cancel := context.WithTimeout(ctx, overallTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		result.Attempts = attempt

		outcome, err := e.runAction(attemptCtx, adapter, cfg.Action, req, cfg.ActionParams)
		result.ActionsTaken = append(result.ActionsTaken, string(cfg.Action))
		if err == nil {
			if cfg.VerifyHealth {
				healthy := e.verifyHealth(attemptCtx, cfg, req, adapter, cfg.Action, outcome)
				result.HealthCheckPassed = healthy
				if !healthy {
					lastErr = apperrors.NewHealthCheckFailed(healthResourceID(cfg.Action, req, outcome), "unhealthy after action")
					if attempt <= cfg.MaxRetries {
						e.backoff(attemptCtx, attempt)
						continue
					}
					break
				}
			}
			result.Success = true
			result.Message = "recovery action succeeded"
			return result, true
		}

		lastErr = err
		if !platform.KindOf(err).Retryable() {
			break
		}
		if attempt <= cfg.MaxRetries {
			e.backoff(attemptCtx, attempt)
		}
	}

	if cfg.HasFallback() {
		result.FallbackInvoked = true
		outcome, err := e.runAction(attemptCtx, adapter, cfg.FallbackAction, req, cfg.ActionParams)
		metrics.RecordFallback(string(cfg.FallbackAction), err == nil)
		result.ActionsTaken = append(result.ActionsTaken, string(cfg.FallbackAction))
		if err == nil {
			if !cfg.VerifyHealth {
				result.Success = true
				result.Message = "fallback action succeeded"
				return result, true
			}
			healthy := e.verifyHealth(attemptCtx, cfg, req, adapter, cfg.FallbackAction, outcome)
			result.HealthCheckPassed = healthy
			if healthy {
				result.Success = true
				result.Message = "fallback action succeeded"
				return result, true
			}
			lastErr = apperrors.NewHealthCheckFailed(healthResourceID(cfg.FallbackAction, req, outcome), "unhealthy after fallback")
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		result.Message = apperrors.NewActionFailed(string(cfg.Action), string(platform.KindOf(lastErr)), lastErr).Error()
	} else {
		result.Message = "recovery action failed"
	}
	return result, false
}

// runAction dispatches one action attempt, bounding it by the concurrency
// semaphore and recording its attempt metric.
func (e *Executor) runAction(ctx context.Context, adapter platform.Adapter, action playbook.Action, req RecoveryRequest, params map[string]any) (actionOutcome, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return actionOutcome{}, err
		}
		defer e.sem.Release(1)
	}

	attemptStart := time.Now()
	outcome, err := e.dispatch(ctx, adapter, action, req, params)
	metrics.RecordAttempt(string(action), err == nil, time.Since(attemptStart))
	return outcome, err
}

func (e *Executor) dispatch(ctx context.Context, adapter platform.Adapter, action playbook.Action, req RecoveryRequest, params map[string]any) (actionOutcome, error) {
	if e.cfg.DryRun {
		return actionOutcome{}, nil
	}
	switch action {
	case playbook.ActionRetryJob:
		runID, err := adapter.RetryJob(ctx, req.Metadata["job_id"], req.Metadata["run_id"])
		return actionOutcome{RunID: runID}, err
	case playbook.ActionRestartCluster:
		err := adapter.RestartCluster(ctx, req.Metadata["cluster_id"])
		return actionOutcome{}, err
	case playbook.ActionScaleCluster:
		sp := parseScaleParams(params)
		newCount, err := adapter.ScaleCluster(ctx, req.Metadata["cluster_id"], sp.DeltaPercent, sp.Cap)
		return actionOutcome{NewWorkerCount: newCount}, err
	case playbook.ActionLibraryFallback:
		versions := parseLibraryVersions(params)
		installed, err := adapter.LibraryFallback(ctx, req.Metadata["cluster_id"], req.Metadata["library_name"], versions)
		return actionOutcome{InstalledVersion: installed}, err
	case playbook.ActionRerunPipeline:
		runID, err := adapter.RerunPipeline(ctx, req.Metadata["pipeline_name"], req.Metadata["factory_name"], req.Metadata["resource_group"])
		return actionOutcome{RunID: runID}, err
	case playbook.ActionRollbackConfig, playbook.ActionNoop:
		return actionOutcome{}, nil
	default:
		return actionOutcome{}, fmt.Errorf("unrecognized action %q", action)
	}
}

func (e *Executor) verifyHealth(ctx context.Context, cfg playbook.Config, req RecoveryRequest, adapter platform.Adapter, action playbook.Action, outcome actionOutcome) bool {
	verifier := health.NewVerifier(adapter, e.cfg.HealthPollInterval)
	target := healthTarget(action, req, outcome)
	timeout := time.Duration(cfg.HealthCheckTimeout) * time.Second

	start := time.Now()
	result := verifier.Verify(ctx, target, timeout)
	metrics.RecordHealthCheck(string(target.Kind), time.Since(start))
	return result.Healthy
}

func healthTarget(action playbook.Action, req RecoveryRequest, outcome actionOutcome) health.Target {
	switch action {
	case playbook.ActionRetryJob:
		return health.Target{Kind: health.KindJobRun, ResourceID: outcome.RunID}
	case playbook.ActionScaleCluster:
		return health.Target{Kind: health.KindCluster, ResourceID: req.Metadata["cluster_id"], ExpectedWorkerCount: outcome.NewWorkerCount}
	case playbook.ActionRerunPipeline:
		return health.Target{Kind: health.KindPipelineRun, ResourceID: outcome.RunID}
	default:
		return health.Target{Kind: health.KindCluster, ResourceID: req.Metadata["cluster_id"]}
	}
}

func healthResourceID(action playbook.Action, req RecoveryRequest, outcome actionOutcome) string {
	return healthTarget(action, req, outcome).ResourceID
}

func (e *Executor) captureSnapshot(ctx context.Context, cfg playbook.Config, req RecoveryRequest, adapter platform.Adapter, snaps *snapshot.Store) error {
	switch cfg.Action {
	case playbook.ActionScaleCluster, playbook.ActionRestartCluster, playbook.ActionLibraryFallback:
		clusterID := req.Metadata["cluster_id"]
		if clusterID == "" {
			return nil
		}
		return snaps.CaptureCluster(ctx, adapter, clusterID)
	default:
		return nil
	}
}

func (e *Executor) backoff(ctx context.Context, attempt int) {
	delay := e.cfg.RetryBaseDelay * time.Duration(uint(1)<<uint(attempt-1))
	if delay > e.cfg.RetryMaxDelay {
		delay = e.cfg.RetryMaxDelay
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (e *Executor) actionEnabled(action playbook.Action) bool {
	if len(e.cfg.EnabledActions) == 0 {
		return true
	}
	enabled, ok := e.cfg.EnabledActions[action]
	return !ok || enabled
}

func (e *Executor) adapterFor(req RecoveryRequest) (platform.Adapter, error) {
	name := req.Metadata["platform"]
	if name == "" {
		name = e.cfg.DefaultPlatform
	}
	adapter, ok := e.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no platform adapter registered for %q", name)
	}
	return adapter, nil
}

func (e *Executor) breakerConfig(cfg playbook.Config) breaker.Config {
	threshold := cfg.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = e.cfg.DefaultBreakerThreshold
	}
	timeout := time.Duration(cfg.CircuitBreakerTimeout) * time.Second
	if timeout <= 0 {
		timeout = e.cfg.DefaultBreakerTimeout
	}
	return breaker.Config{FailureThreshold: threshold, OpenTimeout: timeout}
}

// terminal stamps the wall-clock duration, records the execution metric, and
// emits the result to every configured sink off the critical path before
// returning it to the caller.
func (e *Executor) terminal(req RecoveryRequest, key string, result PlaybookExecutionResult, start time.Time) PlaybookExecutionResult {
	elapsed := time.Since(start)
	result.ExecutionTimeSeconds = elapsed.Seconds()
	metrics.RecordExecution(req.ErrorType, result.Success, elapsed)
	e.emitAsync(req, key, result)
	return result
}

func (e *Executor) emitAsync(req RecoveryRequest, key string, result PlaybookExecutionResult) {
	if len(e.sinks) == 0 {
		return
	}
	event := Event{
		TicketID:   req.TicketID,
		ErrorType:  req.ErrorType,
		BreakerKey: key,
		Result:     result,
		OccurredAt: time.Now(),
	}
	for _, sink := range e.sinks {
		sink := sink
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sink.Emit(ctx, event); err != nil {
				e.log.WithFields(logging.NewFields().Component("executor").Error(err).ToLogrus()).
					Warn("event sink emit failed")
			}
		}()
	}
}
