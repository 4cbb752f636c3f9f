package ingest

import (
	"context"
	"errors"
	"fmt"
	"github.com/kataras/golog"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/util/rng"
	"sync"
)

// MaxSequenceGap bounds how far a single report may jump ahead of the
// verifier, since catching up costs one generator step per skipped number.
const MaxSequenceGap = 1 << 24

var (
	ErrOldSequence = errors.New("old sequence ID")
	ErrSequenceGap = errors.New("sequence gap too large")
	ErrBadRNGState = errors.New("bad pRNG state")
	ErrStopped     = errors.New("ingester stopped")
)

type Ingest struct {
	store        Store
	newPublisher func() (common.Publisher, error)
	logger       *golog.Logger

	mu       sync.Mutex
	sessions map[uint64]*session

	// sendMu is held shared by senders and exclusively by Stop, it guards
	// publishing, stopped and closing outgoing. ingest.mu is never held
	// while sending.
	sendMu     sync.RWMutex
	publishing bool
	stopped    bool
	stopOnce   sync.Once
	done       chan struct{}

	publisherWG *sync.WaitGroup
	outgoing    chan common.DrawBatch
}

// NewIngester creates an ingester on top of store. newPublisher is called
// once per worker, a nil newPublisher disables publishing.
func NewIngester(store Store, newPublisher func() (common.Publisher, error), logger *golog.Logger) *Ingest {
	if logger == nil {
		logger = golog.Default
	}

	return &Ingest{
		store:        store,
		newPublisher: newPublisher,
		logger:       logger,

		sessions: map[uint64]*session{},

		done:        make(chan struct{}),
		publisherWG: &sync.WaitGroup{},
		outgoing:    make(chan common.DrawBatch, 128),
	}
}

func (ingest *Ingest) StartSession(ctx context.Context, variant rng.Variant, seed uint64) (SessionRecord, error) {
	s, err := newSession(variant, seed)
	if err != nil {
		return SessionRecord{}, err
	}

	if err = ingest.store.CreateSession(ctx, &s.record); err != nil {
		return SessionRecord{}, err
	}

	ingest.mu.Lock()
	ingest.sessions[s.record.ID] = s
	ingest.mu.Unlock()

	ingest.logger.Infof("started session %d (%s, seed %d)", s.record.ID, variant, seed)

	return s.record, nil
}

func (ingest *Ingest) session(ctx context.Context, id uint64) (*session, error) {
	ingest.mu.Lock()
	defer ingest.mu.Unlock()

	if s, ok := ingest.sessions[id]; ok {
		return s, nil
	}

	record, err := ingest.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s, err := sessionFromRecord(record)
	if err != nil {
		return nil, fmt.Errorf("restoring session %d: %w", id, err)
	}

	ingest.sessions[id] = s
	ingest.logger.Debugf("restored session %d at step %d", id, record.Steps)

	return s, nil
}

// Session returns a copy of the session's current record.
func (ingest *Ingest) Session(ctx context.Context, id uint64) (SessionRecord, error) {
	s, err := ingest.session(ctx, id)
	if err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.record, nil
}

// Draw answers req from the session's generator and persists the advanced
// state. Nothing is consumed if persisting fails. The batch is queued for
// publishing after the session is unlocked.
func (ingest *Ingest) Draw(ctx context.Context, id uint64, req common.DrawRequest) (common.DrawBatch, error) {
	if err := req.Validate(); err != nil {
		return common.DrawBatch{}, err
	}

	s, err := ingest.session(ctx, id)
	if err != nil {
		return common.DrawBatch{}, err
	}

	batch, err := ingest.draw(ctx, s, id, req)
	if err != nil {
		return common.DrawBatch{}, err
	}

	if err = ingest.enqueue(batch); err != nil {
		return batch, err
	}

	return batch, nil
}

func (ingest *Ingest) draw(ctx context.Context, s *session, id uint64, req common.DrawRequest) (common.DrawBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.takeSnapshot()

	counter := &countingSource{src: s.generator}
	r := rng.NewRand(counter)

	batch := common.DrawBatch{
		SessionID:    id,
		Variant:      s.record.Variant.String(),
		Distribution: req.Distribution,
		FirstIndex:   s.record.Draws,
		FirstStep:    s.record.Steps,
	}

	for i := 0; i < req.Count; i++ {
		req.Sample(r, &batch)
	}

	batch.Steps = counter.count
	s.record.Steps += counter.count
	s.record.Draws += uint64(req.Count)
	s.sync()

	batch.State = s.generator.String()

	if err := ingest.store.UpdateSession(ctx, &s.record); err != nil {
		s.loadSnapshot(snap)
		return common.DrawBatch{}, err
	}

	return batch, nil
}

type VerifyResult struct {
	Accepted     int    `json:"accepted"`
	NextSequence uint64 `json:"nextSequence"`
	Dropped      uint64 `json:"dropped"`
}

// Verify checks reported raw outputs against the session's stream. Reports
// must come in increasing sequence order, skipped numbers count as dropped.
// Reports before the first bad one stay accepted.
func (ingest *Ingest) Verify(ctx context.Context, id uint64, reports []common.Report) (VerifyResult, error) {
	s, err := ingest.session(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	persisted := s.takeSnapshot()
	result := VerifyResult{}

	var verifyErr error
	for _, report := range reports {
		if verifyErr = s.verifyOne(report); verifyErr != nil {
			break
		}

		result.Accepted++
	}

	result.NextSequence = s.record.Verified
	result.Dropped = s.record.Dropped

	if result.Accepted != 0 {
		s.sync()

		if err = ingest.store.UpdateSession(ctx, &s.record); err != nil {
			s.loadSnapshot(persisted)
			return VerifyResult{NextSequence: s.record.Verified, Dropped: s.record.Dropped}, err
		}
	}

	if verifyErr != nil {
		ingest.logger.Warnf("session %d: %s", id, verifyErr)
	}

	return result, verifyErr
}

func (s *session) verifyOne(report common.Report) error {
	if report.SequenceID < s.record.Verified {
		return fmt.Errorf("%w (got: %d, expected (at least): %d)", ErrOldSequence, report.SequenceID, s.record.Verified)
	}

	// compared before adding one so that seq near MaxUint64 cannot wrap
	gap := report.SequenceID - s.record.Verified
	if gap >= MaxSequenceGap {
		return fmt.Errorf("%w (got: %d, expected (at most): %d)", ErrSequenceGap, report.SequenceID, s.record.Verified+MaxSequenceGap-1)
	}

	seqDelta := gap + 1

	snap := s.takeSnapshot()

	expectedRNG := uint64(0)
	for i := uint64(0); i < seqDelta; i++ {
		expectedRNG = s.verifier.Uint64()
	}

	if report.RNGState != expectedRNG {
		s.loadSnapshot(snap)

		return fmt.Errorf("%w (seq: %d, got: %d, expected: %d)", ErrBadRNGState, report.SequenceID, report.RNGState, expectedRNG)
	}

	s.record.Verified += seqDelta
	s.record.Dropped += seqDelta - 1

	return nil
}

func (ingest *Ingest) enqueue(batch common.DrawBatch) error {
	ingest.sendMu.RLock()
	defer ingest.sendMu.RUnlock()

	if !ingest.publishing {
		return nil
	}

	if ingest.stopped {
		return ErrStopped
	}

	select {
	case ingest.outgoing <- batch:
		return nil
	case <-ingest.done:
		return ErrStopped
	}
}

// Start starts a number of publisher workers for answered draw batches.
// With more than one worker batches may be published out of order. Zero
// workers, like a nil publisher factory, turns publishing off.
func (ingest *Ingest) Start(numThreads uint) {
	if ingest.newPublisher == nil {
		return
	}

	if numThreads == 0 {
		ingest.logger.Warnf("no publisher workers, draws will not be published")
		return
	}

	ingest.sendMu.Lock()
	ingest.publishing = true
	ingest.sendMu.Unlock()

	ingest.publisherWG.Add(int(numThreads))

	for i := uint(0); i < numThreads; i++ {
		go ingest.task()
	}
}

// Stop stops accepting batches and waits for the workers to drain the queue.
// Draws blocked on a full queue give up with ErrStopped.
func (ingest *Ingest) Stop() {
	ingest.stopOnce.Do(func() {
		close(ingest.done)

		ingest.sendMu.Lock()
		ingest.stopped = true
		close(ingest.outgoing)
		ingest.sendMu.Unlock()
	})

	ingest.publisherWG.Wait()
}

func (ingest *Ingest) task() {
	defer ingest.publisherWG.Done()

	publisher, err := ingest.newPublisher()
	if err != nil {
		ingest.logger.Errorf("failed to create a publisher: %s", err)

		// keep draining so Draw never blocks on a dead worker
		for range ingest.outgoing {
		}
		return
	}

	defer publisher.Close()

	for batch := range ingest.outgoing {
		if err := publisher.Publish(batch); err != nil {
			ingest.logger.Errorf("error while publishing a batch of %d draws for session %d: %s", batch.Len(), batch.SessionID, err)
		}
	}
}
