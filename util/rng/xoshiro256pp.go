package rng

import (
	"github.com/xor-shift/rngserver/util"
)

// Xoshiro256PPState is a xoshiro256++ generator. The zero value is not usable,
// seed it first or use NewXoshiro256PP.
type Xoshiro256PPState struct {
	State [4]uint64
}

func NewXoshiro256PP(seed uint64) *Xoshiro256PPState {
	state := &Xoshiro256PPState{}
	state.Seed(seed)

	return state
}

func (state *Xoshiro256PPState) Seed(seed uint64) {
	seedState(state.State[:], seed)
}

func (state *Xoshiro256PPState) Uint64() uint64 {
	return xoshiro256PPPermuteState(state.State[:])
}

func (state *Xoshiro256PPState) Variant() Variant {
	return PlusPlus
}

func (state *Xoshiro256PPState) Vector() [4]uint64 {
	return state.State
}

func (state *Xoshiro256PPState) SetVector(v [4]uint64) error {
	if isZero(v[:]) {
		return ErrZeroState
	}

	state.State = v

	return nil
}

func (state *Xoshiro256PPState) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

func (state *Xoshiro256PPState) UnmarshalText(text []byte) error {
	v, err := parseVector(string(text))
	if err != nil {
		return err
	}

	return state.SetVector(v)
}

func (state *Xoshiro256PPState) String() string {
	return util.ArrayToString(state.State[:])
}
