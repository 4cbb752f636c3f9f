// Package rng implements the xoshiro256+ and xoshiro256++ generators together
// with the bounded integer, floating point and gaussian helpers built on top of
// them.
//
// None of the generators are safe for concurrent use, and none of them are
// suitable for anything security related.
package rng

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"
)

var (
	ErrZeroState      = errors.New("all-zero generator state")
	ErrBadVector      = errors.New("bad state vector")
	ErrUnknownVariant = errors.New("unknown generator variant")
)

func GenericRotLeft[T uint8 | uint16 | uint32 | uint64](x T, k int) T {
	bitWidth := int(unsafe.Sizeof(x) * 8)
	return (x << k) | (x >> (bitWidth - k))
}

// SplitMix64 mixes a single word, see https://prng.di.unimi.it/splitmix64.c
func SplitMix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// seedState fills s by feeding every SplitMix64 output back in as the next input.
func seedState(s []uint64, seed uint64) {
	for i := range s {
		seed = SplitMix64(seed)
		s[i] = seed
	}
}

func isZero(s []uint64) bool {
	for _, v := range s {
		if v != 0 {
			return false
		}
	}

	return true
}

// Source is anything that produces uniformly distributed 64 bit words.
type Source interface {
	Uint64() uint64
}

// Generator is a seedable Source whose state can be saved and restored.
type Generator interface {
	Source
	fmt.Stringer

	Seed(seed uint64)
	Vector() [4]uint64
	SetVector(v [4]uint64) error
	Variant() Variant
}

type Variant int

const (
	// PlusPlus is xoshiro256++, the general purpose default.
	PlusPlus Variant = iota
	// Plus is xoshiro256+, faster but with weaker low bits. Meant for floats.
	Plus
)

func (v Variant) String() string {
	switch v {
	case PlusPlus:
		return "plusplus"
	case Plus:
		return "plus"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

func ParseVariant(str string) (Variant, error) {
	switch strings.ToLower(str) {
	case "", "plusplus", "++", "pp":
		return PlusPlus, nil
	case "plus", "+", "p":
		return Plus, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, str)
}

// New returns a freshly seeded generator of the given variant.
func New(variant Variant, seed uint64) (Generator, error) {
	switch variant {
	case PlusPlus:
		return NewXoshiro256PP(seed), nil
	case Plus:
		return NewXoshiro256P(seed), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(variant))
}
