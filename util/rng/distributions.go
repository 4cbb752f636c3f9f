package rng

import (
	"math"
)

// Below returns a uniformly distributed value in [0, n).
//
// Bias is removed by rejecting draws from the incomplete last block of the
// modulo (Java's method, https://www.pcg-random.org/posts/bounded-rands.html).
// -n is computed with unsigned wraparound, i.e. 2^64 - n.
//
// n must not be zero, the modulo panics with a divide by zero otherwise. Use
// BelowChecked to get an error instead.
func Below(src Source, n uint64) uint64 {
	var x, r uint64

	for {
		x = src.Uint64()
		r = x % n

		if x-r <= -n {
			return r
		}
	}
}

// IntInRange returns a uniformly distributed value in [lower, upper].
//
// The width is computed in 64 bits, so the whole int32 range is fine. upper
// must not be less than lower, the result is meaningless (or Below panics)
// otherwise.
func IntInRange(src Source, lower, upper int32) int32 {
	width := uint64(int64(upper)-int64(lower)) + 1
	return int32(int64(lower) + int64(Below(src, width)))
}

// Int64InRange returns a uniformly distributed value in [lower, upper].
//
// For lower = math.MinInt64 and upper = math.MaxInt64 the width wraps to zero
// and every raw output is already a valid answer.
func Int64InRange(src Source, lower, upper int64) int64 {
	width := uint64(upper) - uint64(lower) + 1
	if width == 0 {
		return int64(src.Uint64())
	}

	return int64(uint64(lower) + Below(src, width))
}

// Float01 returns a value in [0, 1) made from the top 24 bits of one output.
func Float01(src Source) float32 {
	return float32(src.Uint64()>>40) * 0x1p-24
}

// Double01 returns a value in [0, 1) made from the top 53 bits of one output.
func Double01(src Source) float64 {
	return float64(src.Uint64()>>11) * 0x1p-53
}

// FloatInRange returns a value in [lower, upper). Rounding may rarely yield
// upper itself.
func FloatInRange(src Source, lower, upper float32) float32 {
	return lower + (upper-lower)*Float01(src)
}

// DoubleInRange returns a value in [lower, upper). Rounding may rarely yield
// upper itself.
func DoubleInRange(src Source, lower, upper float64) float64 {
	return lower + (upper-lower)*Double01(src)
}

// DoubleGaussian samples a normal distribution with mean mu and standard
// deviation sigma using the Marsaglia polar method.
// https://en.wikipedia.org/wiki/Marsaglia_polar_method
//
// Only one of the two deviates the method yields is returned, the other is
// dropped so the generator state stays the only state.
//
// Every attempt draws two uniforms and accepts on u*u+v*v, the two variable
// form of the method. A one variable rendition (s = u*u) consumes the stream
// differently and is not normally distributed, so its outputs differ from
// these for the same seed.
func DoubleGaussian(src Source, mu, sigma float64) float64 {
	var u, v, s float64

	for {
		u = Double01(src)*2.0 - 1.0
		v = Double01(src)*2.0 - 1.0
		s = u*u + v*v

		if s < 1.0 && s != 0.0 {
			break
		}
	}

	return mu + sigma*(u*math.Sqrt(-2.0*math.Log(s)/s))
}

// FloatGaussian is DoubleGaussian at single precision. The uniform draws are
// single precision, the transform itself is evaluated in double precision.
func FloatGaussian(src Source, mu, sigma float32) float32 {
	var u, v, s float32

	for {
		u = Float01(src)*2.0 - 1.0
		v = Float01(src)*2.0 - 1.0
		s = u*u + v*v

		if s < 1.0 && s != 0.0 {
			break
		}
	}

	s64 := float64(s)
	return mu + sigma*float32(float64(u)*math.Sqrt(-2.0*math.Log(s64)/s64))
}
