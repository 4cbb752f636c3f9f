package rng

import (
	"fmt"
	"github.com/xor-shift/rngserver/util"
)

// Xoshiro256PState is a xoshiro256+ generator. Its lowest bits have low
// linear complexity, so prefer it for floating point output where they are
// shifted away. The zero value is not usable, seed it first or use
// NewXoshiro256P.
type Xoshiro256PState struct {
	State [4]uint64
}

func NewXoshiro256P(seed uint64) *Xoshiro256PState {
	state := &Xoshiro256PState{}
	state.Seed(seed)

	return state
}

func (state *Xoshiro256PState) Seed(seed uint64) {
	seedState(state.State[:], seed)
}

func (state *Xoshiro256PState) Uint64() uint64 {
	return xoshiro256PPermuteState(state.State[:])
}

func (state *Xoshiro256PState) Variant() Variant {
	return Plus
}

func (state *Xoshiro256PState) Vector() [4]uint64 {
	return state.State
}

func (state *Xoshiro256PState) SetVector(v [4]uint64) error {
	if isZero(v[:]) {
		return ErrZeroState
	}

	state.State = v

	return nil
}

func (state *Xoshiro256PState) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

func (state *Xoshiro256PState) UnmarshalText(text []byte) error {
	v, err := parseVector(string(text))
	if err != nil {
		return err
	}

	return state.SetVector(v)
}

func (state *Xoshiro256PState) String() string {
	return util.ArrayToString(state.State[:])
}

func parseVector(str string) (v [4]uint64, err error) {
	if err = util.ParseHexArray(str, v[:]); err != nil {
		err = fmt.Errorf("%w: %s", ErrBadVector, err)
	}

	return
}
