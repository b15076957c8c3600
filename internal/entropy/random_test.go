package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForReplicateIsDeterministic(t *testing.T) {
	a := ForReplicate(42, 3)
	b := ForReplicate(42, 3)
	for range 100 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestForReplicateStreamsDiffer(t *testing.T) {
	a := ForReplicate(42, 0)
	b := ForReplicate(42, 1)
	same := 0
	for range 100 {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	assert.Zero(t, same)
}

func TestBernoulliClips(t *testing.T) {
	rng := ForReplicate(1, 0)
	for range 50 {
		assert.False(t, Bernoulli(rng, 0))
		assert.False(t, Bernoulli(rng, -1))
		assert.True(t, Bernoulli(rng, 1))
		assert.True(t, Bernoulli(rng, 3))
	}
}

func TestUniformRange(t *testing.T) {
	rng := ForReplicate(7, 0)
	for range 1000 {
		v := Uniform(rng, 1.5, 2.5)
		assert.GreaterOrEqual(t, v, 1.5)
		assert.Less(t, v, 2.5)
	}
	assert.Equal(t, 3.0, Uniform(rng, 3, 3))
}
