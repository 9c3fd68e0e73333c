package playbook

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var reg *Registry

	BeforeEach(func() {
		reg = NewRegistry(nil)
	})

	Describe("Get", func() {
		It("returns the built-in playbook for a known error type", func() {
			cfg, ok := reg.Get("DatabricksJobExecutionError")
			Expect(ok).To(BeTrue())
			Expect(cfg.Action).To(Equal(ActionRetryJob))
			Expect(cfg.MaxRetries).To(Equal(3))
			Expect(cfg.FallbackAction).To(Equal(ActionScaleCluster))
		})

		It("reports absent for an unknown error type", func() {
			_, ok := reg.Get("SomeUnknownError")
			Expect(ok).To(BeFalse())
		})

		It("returns a playbook with a chained playbook configured", func() {
			cfg, ok := reg.Get("DatabricksOutOfMemoryError")
			Expect(ok).To(BeTrue())
			Expect(cfg.HasChain()).To(BeTrue())
			Expect(cfg.ChainedPlaybook).To(Equal("DatabricksJobExecutionError"))
		})
	})

	Describe("List", func() {
		It("returns all registered error types", func() {
			keys := reg.List()
			Expect(keys).To(ContainElements(
				"DatabricksJobExecutionError",
				"DatabricksOutOfMemoryError",
				"ADFPipelineRunFailedError",
			))
		})
	})

	Describe("WatchFile", func() {
		var (
			tmpDir string
			path   string
		)

		BeforeEach(func() {
			tmpDir = GinkgoT().TempDir()
			path = filepath.Join(tmpDir, "playbooks.yaml")
		})

		It("loads the catalog from disk, replacing the built-in entries", func() {
			writePlaybookFile(path, `
playbooks:
  - error_type: CustomError
    action: noop
    max_retries: 0
    timeout_seconds: 10
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 60
    description: "custom test playbook"
`)

			stop, err := reg.WatchFile(path)
			Expect(err).NotTo(HaveOccurred())
			defer stop()

			cfg, ok := reg.Get("CustomError")
			Expect(ok).To(BeTrue())
			Expect(cfg.Action).To(Equal(ActionNoop))

			_, stillThere := reg.Get("DatabricksJobExecutionError")
			Expect(stillThere).To(BeFalse())
		})

		It("reloads the catalog when the file changes", func() {
			writePlaybookFile(path, `
playbooks:
  - error_type: CustomError
    action: noop
    max_retries: 0
    timeout_seconds: 10
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 60
`)
			stop, err := reg.WatchFile(path)
			Expect(err).NotTo(HaveOccurred())
			defer stop()

			writePlaybookFile(path, `
playbooks:
  - error_type: CustomError
    action: retry_job
    max_retries: 2
    timeout_seconds: 30
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 60
`)

			Eventually(func() Action {
				cfg, _ := reg.Get("CustomError")
				return cfg.Action
			}, 2*time.Second, 50*time.Millisecond).Should(Equal(ActionRetryJob))
		})

		It("keeps the previous catalog when the reloaded file is malformed", func() {
			writePlaybookFile(path, `
playbooks:
  - error_type: CustomError
    action: noop
    max_retries: 0
    timeout_seconds: 10
    circuit_breaker_threshold: 5
    circuit_breaker_timeout: 60
`)
			stop, err := reg.WatchFile(path)
			Expect(err).NotTo(HaveOccurred())
			defer stop()

			writePlaybookFile(path, "playbooks: [this is not valid")

			Consistently(func() bool {
				cfg, ok := reg.Get("CustomError")
				return ok && cfg.Action == ActionNoop
			}, 500*time.Millisecond, 50*time.Millisecond).Should(BeTrue())
		})
	})
})

func writePlaybookFile(path, content string) {
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
}
