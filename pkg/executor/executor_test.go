package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/breaker"
	"github.com/pipelineguard/remediator/pkg/breakerlock"
	"github.com/pipelineguard/remediator/pkg/platform"
	"github.com/pipelineguard/remediator/pkg/playbook"
)

type fakeAdapter struct {
	platform.Adapter // unimplemented methods panic if exercised by a test that doesn't expect them

	mu sync.Mutex

	retryJobErrs  []error
	retryJobCalls int

	restartErr   error
	restartCalls int

	clusterState platform.ClusterState
}

func (f *fakeAdapter) RetryJob(ctx context.Context, jobID, runID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.retryJobCalls
	f.retryJobCalls++
	var err error
	if idx < len(f.retryJobErrs) {
		err = f.retryJobErrs[idx]
	}
	return fmt.Sprintf("run-%d", idx), err
}

func (f *fakeAdapter) RestartCluster(ctx context.Context, clusterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	return f.restartErr
}

func (f *fakeAdapter) ScaleCluster(ctx context.Context, clusterID string, deltaPercent, cap int) (int, error) {
	return cap, nil
}

func (f *fakeAdapter) GetClusterState(ctx context.Context, clusterID string) (platform.ClusterState, error) {
	return f.clusterState, nil
}

func (f *fakeAdapter) GetRunState(ctx context.Context, runID string) (platform.RunState, error) {
	return platform.RunState{LifeCycleState: "TERMINATED", ResultState: "SUCCESS"}, nil
}

const testCatalog = `
playbooks:
  - error_type: TestRetrySucceeds
    action: retry_job
    max_retries: 2
    timeout_seconds: 1
    verify_health: false
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 1
  - error_type: TestRetryFailsWithFallback
    action: retry_job
    max_retries: 1
    timeout_seconds: 1
    fallback_action: restart_cluster
    verify_health: false
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 1
  - error_type: TestAllFail
    action: retry_job
    max_retries: 0
    timeout_seconds: 1
    verify_health: false
    circuit_breaker_threshold: 2
    circuit_breaker_timeout: 1
  - error_type: TestChainPrimary
    action: retry_job
    max_retries: 0
    timeout_seconds: 1
    verify_health: false
    chained_playbook: TestChainSecondary
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 1
  - error_type: TestChainSecondary
    action: restart_cluster
    max_retries: 0
    timeout_seconds: 1
    verify_health: false
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 1
  - error_type: TestActionsTakenRecorded
    action: retry_job
    max_retries: 3
    timeout_seconds: 1
    fallback_action: scale_cluster
    verify_health: false
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 1
`

func newTestRegistry() *playbook.Registry {
	reg := playbook.NewRegistry(logrus.NewEntry(logrus.StandardLogger()))
	dir := GinkgoT().TempDir()
	path := filepath.Join(dir, "playbooks.yaml")
	Expect(os.WriteFile(path, []byte(testCatalog), 0o644)).To(Succeed())
	stop, err := reg.WatchFile(path)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { stop() })
	return reg
}

func testConfig() Config {
	return Config{
		DefaultPlatform:         "databricks",
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           10 * time.Millisecond,
		MaxChainDepth:           3,
		DefaultBreakerThreshold: 5,
		DefaultBreakerTimeout:   time.Minute,
		HealthPollInterval:      time.Millisecond,
		LockTTL:                 time.Second,
		MaxConcurrentActions:    4,
	}
}

var _ = Describe("Executor", func() {
	var (
		adapter *fakeAdapter
		fabric  *breaker.Fabric
		reg     *playbook.Registry
		exec    *Executor
	)

	BeforeEach(func() {
		adapter = &fakeAdapter{}
		fabric = breaker.NewFabric(nil)
		reg = newTestRegistry()
		exec = New(reg, fabric, breakerlock.NoopLocker{}, map[string]platform.Adapter{"databricks": adapter}, nil, nil, testConfig())
	})

	It("fails immediately when no playbook is registered", func() {
		result := exec.Execute(context.Background(), RecoveryRequest{ErrorType: "NoSuchErrorType"})
		Expect(result.Success).To(BeFalse())
		Expect(result.Message).To(ContainSubstring("no playbook registered"))
	})

	It("succeeds on the first attempt and records a breaker success", func() {
		req := RecoveryRequest{ErrorType: "TestRetrySucceeds", Metadata: map[string]string{"job_id": "j-1"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeTrue())
		Expect(result.Attempts).To(Equal(1))
		Expect(result.CircuitBreakerStatus.State).To(Equal(breaker.StateClosed))
		Expect(result.CircuitBreakerStatus.ConsecutiveFailures).To(Equal(0))
	})

	It("retries on a transient failure and succeeds on the second attempt", func() {
		adapter.retryJobErrs = []error{
			platform.NewAdapterError(platform.Transient, "RetryJob", "busy", nil),
		}
		req := RecoveryRequest{ErrorType: "TestRetrySucceeds", Metadata: map[string]string{"job_id": "j-2"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeTrue())
		Expect(result.Attempts).To(Equal(2))
	})

	It("invokes the fallback action once the primary is exhausted", func() {
		adapter.retryJobErrs = []error{
			platform.NewAdapterError(platform.Permanent, "RetryJob", "bad request", nil),
		}
		req := RecoveryRequest{ErrorType: "TestRetryFailsWithFallback", Metadata: map[string]string{"job_id": "j-3", "cluster_id": "c-1"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeTrue())
		Expect(result.FallbackInvoked).To(BeTrue())
		Expect(adapter.restartCalls).To(Equal(1))
	})

	It("reports terminal failure and records a breaker failure when every attempt and fallback fail", func() {
		adapter.retryJobErrs = []error{
			platform.NewAdapterError(platform.Permanent, "RetryJob", "bad request", nil),
		}
		req := RecoveryRequest{ErrorType: "TestAllFail", Metadata: map[string]string{"job_id": "j-4"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeFalse())
		Expect(result.CircuitBreakerStatus.ConsecutiveFailures).To(Equal(1))
	})

	It("opens the circuit breaker after the configured threshold and rejects the next call", func() {
		adapter.retryJobErrs = []error{
			platform.NewAdapterError(platform.Permanent, "RetryJob", "bad request", nil),
			platform.NewAdapterError(platform.Permanent, "RetryJob", "bad request", nil),
			platform.NewAdapterError(platform.Permanent, "RetryJob", "bad request", nil),
		}
		req := RecoveryRequest{ErrorType: "TestAllFail", Metadata: map[string]string{"job_id": "j-5"}}

		first := exec.Execute(context.Background(), req)
		Expect(first.Success).To(BeFalse())
		second := exec.Execute(context.Background(), req)
		Expect(second.Success).To(BeFalse())

		third := exec.Execute(context.Background(), req)
		Expect(third.Success).To(BeFalse())
		Expect(third.CircuitBreakerStatus.State).To(Equal(breaker.StateOpen))
		Expect(third.Message).To(ContainSubstring("circuit breaker open"))
		Expect(adapter.retryJobCalls).To(Equal(2), "the third call must be rejected before reaching the adapter")
	})

	It("executes the chained playbook after a successful primary run", func() {
		req := RecoveryRequest{ErrorType: "TestChainPrimary", Metadata: map[string]string{"job_id": "j-6", "cluster_id": "c-2"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeTrue())
		Expect(result.ChainedResult).NotTo(BeNil())
		Expect(result.ChainedResult.Success).To(BeTrue())
		Expect(adapter.restartCalls).To(Equal(1))
	})

	It("records one actions_taken entry per dispatched attempt, including failed ones, before a successful fallback", func() {
		transient := platform.NewAdapterError(platform.Transient, "RetryJob", "busy", nil)
		adapter.retryJobErrs = []error{transient, transient, transient, transient}
		req := RecoveryRequest{ErrorType: "TestActionsTakenRecorded", Metadata: map[string]string{"job_id": "j-8", "cluster_id": "c-3"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeTrue())
		Expect(result.FallbackInvoked).To(BeTrue())
		Expect(result.ActionsTaken).To(Equal([]string{"retry_job", "retry_job", "retry_job", "retry_job", "scale_cluster"}))
	})

	It("skips execution entirely when auto-remediation is globally disabled", func() {
		exec = New(reg, fabric, breakerlock.NoopLocker{}, map[string]platform.Adapter{"databricks": adapter}, nil, nil, func() Config {
			c := testConfig()
			c.Disabled = true
			return c
		}())

		req := RecoveryRequest{ErrorType: "TestRetrySucceeds", Metadata: map[string]string{"job_id": "j-9"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeFalse())
		Expect(result.Message).To(ContainSubstring("disabled"))
		Expect(adapter.retryJobCalls).To(Equal(0))
		Expect(fabric.SnapshotAll()).To(BeEmpty())
	})

	It("refuses to run a disabled action without touching the circuit breaker", func() {
		exec = New(reg, fabric, breakerlock.NoopLocker{}, map[string]platform.Adapter{"databricks": adapter}, nil, nil, func() Config {
			c := testConfig()
			c.EnabledActions = map[playbook.Action]bool{playbook.ActionRetryJob: false}
			return c
		}())

		req := RecoveryRequest{ErrorType: "TestRetrySucceeds", Metadata: map[string]string{"job_id": "j-7"}}
		result := exec.Execute(context.Background(), req)

		Expect(result.Success).To(BeFalse())
		Expect(result.Message).To(ContainSubstring("disabled"))
		Expect(adapter.retryJobCalls).To(Equal(0))
		Expect(fabric.SnapshotAll()).To(BeEmpty())
	})
})
