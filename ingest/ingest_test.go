package ingest_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kataras/golog"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
	"github.com/xor-shift/rngserver/util/rng"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var seed0PlusPlus = []uint64{0x44339b21869f763d, 0x95cf0253ee167d21, 0xb7a578be0561b430, 0xe4f6dbdb82ccc59b, 0xcfd157dbf4b5b12e}

var errStoreDown = errors.New("store down")

type flakyStore struct {
	*ingest.MemoryStore
	failUpdates bool
}

func (store *flakyStore) UpdateSession(ctx context.Context, record *ingest.SessionRecord) error {
	if store.failUpdates {
		return errStoreDown
	}

	return store.MemoryStore.UpdateSession(ctx, record)
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches []common.DrawBatch
	closed  bool
}

func (p *recordingPublisher) Publish(batch common.DrawBatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.batches = append(p.batches, batch)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// stallingPublisher blocks every Publish until release is closed.
type stallingPublisher struct {
	release   chan struct{}
	published int64
}

func (p *stallingPublisher) Publish(common.DrawBatch) error {
	<-p.release
	atomic.AddInt64(&p.published, 1)
	return nil
}

func (p *stallingPublisher) Close() error {
	return nil
}

func quietLogger() *golog.Logger {
	logger := golog.New()
	logger.SetLevel("disable")
	return logger
}

func u64Request(n int) common.DrawRequest {
	return common.DrawRequest{Distribution: common.DistU64, Count: n}
}

var _ = Describe("Ingest", func() {
	ctx := context.Background()

	var store *flakyStore
	var in *ingest.Ingest

	BeforeEach(func() {
		store = &flakyStore{MemoryStore: ingest.NewMemoryStore()}
		in = ingest.NewIngester(store, nil, quietLogger())
	})

	Context("sessions", func() {
		It("should start seeded sessions with increasing IDs", func() {
			first, err := in.StartSession(ctx, rng.PlusPlus, 0)
			Expect(err).NotTo(HaveOccurred())
			second, err := in.StartSession(ctx, rng.Plus, 42)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).To(BeNumerically(">", first.ID))
			Expect(first.State).To(Equal(rng.NewXoshiro256PP(0).Vector()))
			Expect(second.Variant).To(Equal(rng.Plus))

			loaded, err := in.Session(ctx, second.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Seed).To(Equal(uint64(42)))
		})

		It("should report unknown sessions", func() {
			_, err := in.Session(ctx, 1234)
			Expect(err).To(MatchError(ingest.ErrSessionNotFound))

			_, err = in.Draw(ctx, 1234, u64Request(1))
			Expect(err).To(MatchError(ingest.ErrSessionNotFound))

			_, err = in.Verify(ctx, 1234, nil)
			Expect(err).To(MatchError(ingest.ErrSessionNotFound))
		})
	})

	Context("drawing", func() {
		It("should hand out the session's stream in order", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			batch, err := in.Draw(ctx, record.ID, u64Request(3))
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Bits).To(Equal(seed0PlusPlus[:3]))
			Expect(batch.FirstStep).To(BeZero())
			Expect(batch.Steps).To(Equal(uint64(3)))

			batch, err = in.Draw(ctx, record.ID, u64Request(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Bits).To(Equal(seed0PlusPlus[3:]))
			Expect(batch.FirstIndex).To(Equal(uint64(3)))
			Expect(batch.FirstStep).To(Equal(uint64(3)))

			g := rng.NewXoshiro256PP(0)
			for i := 0; i < 5; i++ {
				g.Uint64()
			}
			Expect(batch.State).To(Equal(g.String()))
		})

		It("should count the raw steps rejection loops consume", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 1234)

			batch, err := in.Draw(ctx, record.ID, common.DrawRequest{Distribution: common.DistGaussian, Count: 1000, Sigma: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Floats).To(HaveLen(1000))
			Expect(batch.Steps).To(BeNumerically(">", 2000))

			updated, _ := in.Session(ctx, record.ID)
			Expect(updated.Steps).To(Equal(batch.Steps))
			Expect(updated.Draws).To(Equal(uint64(1000)))
		})

		It("should continue the stream from the store after a restart", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)
			_, err := in.Draw(ctx, record.ID, u64Request(3))
			Expect(err).NotTo(HaveOccurred())

			restarted := ingest.NewIngester(store, nil, quietLogger())
			batch, err := restarted.Draw(ctx, record.ID, u64Request(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Bits).To(Equal(seed0PlusPlus[3:]))
		})

		It("should not consume anything when persisting fails", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			store.failUpdates = true
			_, err := in.Draw(ctx, record.ID, u64Request(2))
			Expect(err).To(MatchError(errStoreDown))

			store.failUpdates = false
			batch, err := in.Draw(ctx, record.ID, u64Request(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.Bits).To(Equal(seed0PlusPlus[:2]))
		})

		It("should reject invalid requests", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			_, err := in.Draw(ctx, record.ID, common.DrawRequest{Distribution: common.DistBelow, Count: 1})
			Expect(err).To(MatchError(common.ErrBadDrawRequest))
		})
	})

	Context("verifying", func() {
		It("should accept matching outputs and count skipped ones as dropped", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			result, err := in.Verify(ctx, record.ID, []common.Report{
				{SequenceID: 0, RNGState: seed0PlusPlus[0]},
				{SequenceID: 3, RNGState: seed0PlusPlus[3]},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ingest.VerifyResult{Accepted: 2, NextSequence: 4, Dropped: 2}))
		})

		It("should roll back a mismatching report but keep the earlier ones", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			result, err := in.Verify(ctx, record.ID, []common.Report{
				{SequenceID: 0, RNGState: seed0PlusPlus[0]},
				{SequenceID: 2, RNGState: 12345},
			})
			Expect(err).To(MatchError(ingest.ErrBadRNGState))
			Expect(result.Accepted).To(Equal(1))
			Expect(result.NextSequence).To(Equal(uint64(1)))

			result, err = in.Verify(ctx, record.ID, []common.Report{{SequenceID: 2, RNGState: seed0PlusPlus[2]}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.NextSequence).To(Equal(uint64(3)))
			Expect(result.Dropped).To(Equal(uint64(1)))
		})

		It("should reject old and far away sequence numbers", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			_, err := in.Verify(ctx, record.ID, []common.Report{{SequenceID: 1, RNGState: seed0PlusPlus[1]}})
			Expect(err).NotTo(HaveOccurred())

			_, err = in.Verify(ctx, record.ID, []common.Report{{SequenceID: 0, RNGState: seed0PlusPlus[0]}})
			Expect(err).To(MatchError(ingest.ErrOldSequence))

			_, err = in.Verify(ctx, record.ID, []common.Report{{SequenceID: 2 + ingest.MaxSequenceGap, RNGState: 0}})
			Expect(err).To(MatchError(ingest.ErrSequenceGap))
		})

		It("should not wrap around on the largest sequence number", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			result, err := in.Verify(ctx, record.ID, []common.Report{{SequenceID: math.MaxUint64, RNGState: 0}})
			Expect(err).To(MatchError(ingest.ErrSequenceGap))
			Expect(result).To(Equal(ingest.VerifyResult{}))

			result, err = in.Verify(ctx, record.ID, []common.Report{{SequenceID: 0, RNGState: seed0PlusPlus[0]}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ingest.VerifyResult{Accepted: 1, NextSequence: 1}))

			_, err = in.Verify(ctx, record.ID, []common.Report{{SequenceID: math.MaxUint64, RNGState: 0}})
			Expect(err).To(MatchError(ingest.ErrSequenceGap))
		})

		It("should verify independently of draws", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)
			_, _ = in.Draw(ctx, record.ID, u64Request(4))

			result, err := in.Verify(ctx, record.ID, []common.Report{{SequenceID: 0, RNGState: seed0PlusPlus[0]}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Accepted).To(Equal(1))
		})

		It("should persist the verifier position", func() {
			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)
			_, err := in.Verify(ctx, record.ID, []common.Report{{SequenceID: 1, RNGState: seed0PlusPlus[1]}})
			Expect(err).NotTo(HaveOccurred())

			restarted := ingest.NewIngester(store, nil, quietLogger())
			result, err := restarted.Verify(ctx, record.ID, []common.Report{{SequenceID: 2, RNGState: seed0PlusPlus[2]}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ingest.VerifyResult{Accepted: 1, NextSequence: 3, Dropped: 1}))
		})
	})

	Context("publishing", func() {
		It("should publish every answered batch and close publishers on stop", func() {
			publisher := &recordingPublisher{}
			in = ingest.NewIngester(store, func() (common.Publisher, error) { return publisher, nil }, quietLogger())
			in.Start(1)

			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)
			for i := 0; i < 5; i++ {
				_, err := in.Draw(ctx, record.ID, u64Request(1))
				Expect(err).NotTo(HaveOccurred())
			}

			in.Stop()

			Expect(publisher.closed).To(BeTrue())
			Expect(publisher.batches).To(HaveLen(5))
			for i, batch := range publisher.batches {
				Expect(batch.Bits).To(Equal([]uint64{seed0PlusPlus[i]}))
			}

			_, err := in.Draw(ctx, record.ID, u64Request(1))
			Expect(err).To(MatchError(ingest.ErrStopped))
		})

		It("should not publish without workers", func() {
			created := int64(0)
			in = ingest.NewIngester(store, func() (common.Publisher, error) {
				atomic.AddInt64(&created, 1)
				return &recordingPublisher{}, nil
			}, quietLogger())
			in.Start(0)

			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)

				for i := 0; i < 200; i++ {
					_, err := in.Draw(ctx, record.ID, u64Request(1))
					Expect(err).NotTo(HaveOccurred())
				}
			}()
			Eventually(done, 5*time.Second).Should(BeClosed())

			loaded, err := in.Session(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Draws).To(Equal(uint64(200)))

			in.Stop()
			Expect(atomic.LoadInt64(&created)).To(BeZero())
		})

		It("should keep serving other sessions while the publisher stalls", func() {
			publisher := &stallingPublisher{release: make(chan struct{})}
			in = ingest.NewIngester(store, func() (common.Publisher, error) { return publisher, nil }, quietLogger())
			in.Start(1)

			busy, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			completed := int64(0)
			drawsDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(drawsDone)

				for i := 0; i < 200; i++ {
					_, err := in.Draw(ctx, busy.ID, u64Request(1))
					Expect(err).NotTo(HaveOccurred())
					atomic.AddInt64(&completed, 1)
				}
			}()

			// one batch held by the worker, the rest of the queue full
			Eventually(func() int64 { return atomic.LoadInt64(&completed) }, 5*time.Second).Should(BeNumerically(">=", 129))
			Expect(drawsDone).NotTo(BeClosed())

			othersDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(othersDone)

				other, err := in.StartSession(ctx, rng.Plus, 1)
				Expect(err).NotTo(HaveOccurred())

				_, err = in.Session(ctx, busy.ID)
				Expect(err).NotTo(HaveOccurred())

				_, err = in.Verify(ctx, other.ID, []common.Report{{SequenceID: 0, RNGState: rng.NewXoshiro256P(1).Uint64()}})
				Expect(err).NotTo(HaveOccurred())
			}()
			Eventually(othersDone, 5*time.Second).Should(BeClosed())

			close(publisher.release)
			Eventually(drawsDone, 5*time.Second).Should(BeClosed())

			in.Stop()
			Expect(atomic.LoadInt64(&publisher.published)).To(Equal(int64(200)))
		})

		It("should release draws blocked on a full queue when stopped", func() {
			publisher := &stallingPublisher{release: make(chan struct{})}
			in = ingest.NewIngester(store, func() (common.Publisher, error) { return publisher, nil }, quietLogger())
			in.Start(1)

			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)

			var stoppedErr error
			drawsDone := make(chan struct{})
			go func() {
				defer close(drawsDone)

				for i := 0; i < 200; i++ {
					if _, err := in.Draw(ctx, record.ID, u64Request(1)); err != nil {
						stoppedErr = err
						return
					}
				}
			}()

			Consistently(drawsDone, 200*time.Millisecond).ShouldNot(BeClosed())

			stopDone := make(chan struct{})
			go func() {
				defer close(stopDone)
				in.Stop()
			}()

			Eventually(drawsDone, 5*time.Second).Should(BeClosed())
			Expect(stoppedErr).To(MatchError(ingest.ErrStopped))

			close(publisher.release)
			Eventually(stopDone, 5*time.Second).Should(BeClosed())
		})

		It("should keep drawing when no publisher can be created", func() {
			in = ingest.NewIngester(store, func() (common.Publisher, error) { return nil, errors.New("no broker") }, quietLogger())
			in.Start(2)

			record, _ := in.StartSession(ctx, rng.PlusPlus, 0)
			for i := 0; i < 300; i++ {
				_, err := in.Draw(ctx, record.ID, u64Request(1))
				Expect(err).NotTo(HaveOccurred())
			}

			in.Stop()
		})
	})
})
