package breaker

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fabric", func() {
	var (
		fabric *Fabric
		cfg    Config
	)

	BeforeEach(func() {
		fabric = NewFabric(nil)
		cfg = Config{FailureThreshold: 2, OpenTimeout: 50 * time.Millisecond}
	})

	It("allows a call on a never-seen key and starts CLOSED", func() {
		allowed, state, _, err := fabric.Allow("ET:R1", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
		Expect(state.State).To(Equal(StateClosed))
	})

	It("opens after FailureThreshold consecutive failures and blocks the next call", func() {
		key := "ET:R2"

		allowed, _, ticket, err := fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
		ticket.Fail()

		allowed, _, ticket, err = fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
		ticket.Fail()

		allowed, state, _, err := fabric.Allow(key, cfg)
		Expect(err).To(HaveOccurred())
		Expect(allowed).To(BeFalse())
		Expect(state.State).To(Equal(StateOpen))
	})

	It("transitions to HALF_OPEN and admits exactly one probe after the timeout elapses", func() {
		key := "ET:R3"

		for i := 0; i < 2; i++ {
			allowed, _, ticket, err := fabric.Allow(key, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
			ticket.Fail()
		}

		allowed, _, _, err := fabric.Allow(key, cfg)
		Expect(allowed).To(BeFalse())
		Expect(err).To(HaveOccurred())

		Eventually(func() bool {
			allowed, state, _, err := fabric.Allow(key, cfg)
			return allowed && err == nil && state.State == StateHalfOpen
		}, time.Second, 10*time.Millisecond).Should(BeTrue())
	})

	It("resets the consecutive failure counter on success", func() {
		key := "ET:R4"

		allowed, _, ticket, err := fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
		ticket.Fail()

		allowed, _, ticket, err = fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
		ticket.Succeed()

		state := fabric.Snapshot(key, cfg)
		Expect(state.ConsecutiveFailures).To(Equal(0))
		Expect(state.State).To(Equal(StateClosed))
	})

	It("returns a rejected call with a harmless zero-value ticket, recording nothing for it", func() {
		key := "ET:R5"
		for i := 0; i < 2; i++ {
			allowed, _, ticket, err := fabric.Allow(key, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
			ticket.Fail()
		}

		allowed, stateBefore, rejectedTicket, err := fabric.Allow(key, cfg)
		Expect(allowed).To(BeFalse())
		Expect(err).To(HaveOccurred())

		// Reporting against a rejected call's ticket must be a no-op: there
		// was no admitted call for it to represent.
		rejectedTicket.Succeed()
		stateAfter := fabric.Snapshot(key, cfg)
		Expect(stateAfter.ConsecutiveFailures).To(Equal(stateBefore.ConsecutiveFailures))
	})

	It("keeps two concurrent calls on the same key from clobbering each other's outcome", func() {
		key := "ET:R7"
		cfg := Config{FailureThreshold: 100, OpenTimeout: time.Minute}

		_, _, ticketA, err := fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())
		_, _, ticketB, err := fabric.Allow(key, cfg)
		Expect(err).NotTo(HaveOccurred())

		// Each concurrent caller holds its own ticket from its own Allow
		// call; resolving them in reverse order must still attribute each
		// outcome to the right call instead of one overwriting the other.
		ticketB.Fail()
		ticketA.Succeed()

		state := fabric.Snapshot(key, cfg)
		Expect(state.ConsecutiveFailures).To(Equal(0), "ticketA's later success must reset the counter that ticketB's failure raised")
	})

	It("survives a burst of concurrent same-key Allow/outcome pairs and stays CLOSED", func() {
		key := "ET:R8"
		cfg := Config{FailureThreshold: 1000, OpenTimeout: time.Minute}

		const n = 50
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			i := i
			go func() {
				defer wg.Done()
				_, _, ticket, err := fabric.Allow(key, cfg)
				Expect(err).NotTo(HaveOccurred())
				if i%2 == 0 {
					ticket.Fail()
				} else {
					ticket.Succeed()
				}
			}()
		}
		wg.Wait()

		// Every Allow above was admitted, and with only n calls no run of
		// consecutive failures can reach the threshold of 1000, so the key
		// stays CLOSED. The individual outcome counts are not inspected here.
		state := fabric.Snapshot(key, cfg)
		Expect(state.State).To(Equal(StateClosed))
	})

	Describe("Reset", func() {
		It("is idempotent: any number of resets equals one reset", func() {
			key := "ET:R6"
			for i := 0; i < 2; i++ {
				allowed, _, ticket, err := fabric.Allow(key, cfg)
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeTrue())
				ticket.Fail()
			}
			state := fabric.Snapshot(key, cfg)
			Expect(state.State).To(Equal(StateOpen))

			fabric.Reset(key)
			fabric.Reset(key)
			fabric.Reset(key)

			state = fabric.Snapshot(key, cfg)
			Expect(state.State).To(Equal(StateClosed))
			Expect(state.ConsecutiveFailures).To(Equal(0))
		})
	})

	Describe("SnapshotAll", func() {
		It("returns every key the fabric has created", func() {
			fabric.Allow("ET1:R1", cfg)
			fabric.Allow("ET2:R1", cfg)

			all := fabric.SnapshotAll()
			Expect(all).To(HaveLen(2))
		})
	})
})
