// Package entropy provides the random sources used by simulation replicates.
// Every replicate owns its own generator; nothing in the simulator touches the
// process-wide math/rand state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand/v2"
)

// golden is the 64-bit golden-ratio increment used to spread replicate
// indices across the second PCG stream word.
const golden = 0x9e3779b97f4a7c15

// Seed returns a base seed drawn from crypto/rand. Used when the caller did not
// configure one.
func Seed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen but fall back to a fixed, loggable seed.
		slog.Warn("crypto/rand unavailable, using fixed seed", "error", err)
		return 1
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// ForReplicate returns the generator for one replicate. The same (seed, id)
// pair always yields the same stream, and distinct ids never share a stream.
func ForReplicate(seed uint64, id int) *mrand.Rand {
	return mrand.New(mrand.NewPCG(seed, mix(uint64(id)+1)))
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += golden
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Bernoulli reports whether a draw with success probability p succeeded.
// Probabilities outside [0, 1] are clipped.
func Bernoulli(rng *mrand.Rand, p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	return rng.Float64() < p
}

// Uniform returns a draw from [low, high). A degenerate range returns low.
func Uniform(rng *mrand.Rand, low, high float64) float64 {
	if high <= low {
		return low
	}
	return low + rng.Float64()*(high-low)
}
