package rng

import (
	"math"
	"math/rand"
)

// Rand bundles a Source with the distribution helpers.
type Rand struct {
	src Source
}

func NewRand(src Source) *Rand {
	return &Rand{src: src}
}

func (r *Rand) Source() Source { return r.src }
func (r *Rand) Uint64() uint64 { return r.src.Uint64() }
func (r *Rand) Below(n uint64) uint64 { return Below(r.src, n) }
func (r *Rand) Int(lower, upper int32) int32 { return IntInRange(r.src, lower, upper) }
func (r *Rand) Int64(lower, upper int64) int64 { return Int64InRange(r.src, lower, upper) }
func (r *Rand) Float01() float32 { return Float01(r.src) }
func (r *Rand) Double01() float64 { return Double01(r.src) }

func (r *Rand) Float(lower, upper float32) float32 {
	return FloatInRange(r.src, lower, upper)
}

func (r *Rand) Double(lower, upper float64) float64 {
	return DoubleInRange(r.src, lower, upper)
}

func (r *Rand) FloatGaussian(mu, sigma float32) float32 {
	return FloatGaussian(r.src, mu, sigma)
}

func (r *Rand) DoubleGaussian(mu, sigma float64) float64 {
	return DoubleGaussian(r.src, mu, sigma)
}

type mathSource struct {
	g Generator
}

// Assert that mathSource implements rand.Source64.
var _ rand.Source64 = mathSource{}

// NewMathSource adapts g for use with math/rand. Seeding the returned source
// reseeds g with the seed's bit pattern.
func NewMathSource(g Generator) rand.Source64 {
	return mathSource{g: g}
}

func (m mathSource) Seed(seed int64) {
	m.g.Seed(uint64(seed))
}

func (m mathSource) Int63() int64 {
	return int64(m.g.Uint64() & (math.MaxUint64 >> 1))
}

func (m mathSource) Uint64() uint64 {
	return m.g.Uint64()
}
