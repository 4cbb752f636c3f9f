package ingest

import (
	"github.com/xor-shift/rngserver/util/rng"
	"sync"
	"time"
)

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID      uint64
	Variant rng.Variant
	Seed    uint64

	// Steps is the number of raw outputs consumed by draws, State the vector
	// after them. Draws is the number of values handed out.
	Steps uint64
	Draws uint64
	State [4]uint64

	// Verified is the next sequence number the verifier expects,
	// VerifierState its vector. Dropped counts skipped sequence numbers.
	Verified      uint64
	VerifierState [4]uint64
	Dropped       uint64

	CreatedAt time.Time
}

type session struct {
	mu sync.Mutex

	record    SessionRecord
	generator rng.Generator
	verifier  rng.Generator
}

func newSession(variant rng.Variant, seed uint64) (*session, error) {
	generator, err := rng.New(variant, seed)
	if err != nil {
		return nil, err
	}

	verifier, _ := rng.New(variant, seed)

	return &session{
		record: SessionRecord{
			Variant:       variant,
			Seed:          seed,
			State:         generator.Vector(),
			VerifierState: verifier.Vector(),
			CreatedAt:     time.Now().In(time.UTC),
		},
		generator: generator,
		verifier:  verifier,
	}, nil
}

func sessionFromRecord(record *SessionRecord) (*session, error) {
	generator, err := rng.New(record.Variant, record.Seed)
	if err != nil {
		return nil, err
	}

	if err = generator.SetVector(record.State); err != nil {
		return nil, err
	}

	verifier, _ := rng.New(record.Variant, record.Seed)
	if err = verifier.SetVector(record.VerifierState); err != nil {
		return nil, err
	}

	return &session{
		record:    *record,
		generator: generator,
		verifier:  verifier,
	}, nil
}

// sync copies the generator vectors into the record
func (s *session) sync() {
	s.record.State = s.generator.Vector()
	s.record.VerifierState = s.verifier.Vector()
}

// snapshot is for rollbacks when persisting or verifying fails halfway.
type snapshot struct {
	record    SessionRecord
	generator [4]uint64
	verifier  [4]uint64
}

func (s *session) takeSnapshot() snapshot {
	return snapshot{
		record:    s.record,
		generator: s.generator.Vector(),
		verifier:  s.verifier.Vector(),
	}
}

func (s *session) loadSnapshot(snap snapshot) {
	s.record = snap.record
	_ = s.generator.SetVector(snap.generator)
	_ = s.verifier.SetVector(snap.verifier)
}

// countingSource counts how many raw outputs the distribution helpers pulled.
type countingSource struct {
	src   rng.Source
	count uint64
}

func (c *countingSource) Uint64() uint64 {
	c.count++
	return c.src.Uint64()
}
