package sample

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1337))
}

func TestFollowingFidelity(t *testing.T) {
	stream := Weights([]string{"a", "b", "c"}, []float64{10, 20, 70})
	const n = 100000

	draws, err := Following(stream, n, 100, Options{Rand: seeded()})
	require.NoError(t, err)
	require.Len(t, draws, n)

	counts := map[string]float64{}
	for _, d := range draws {
		counts[d.Item]++
	}
	expected := map[string]float64{"a": 10000, "b": 20000, "c": 70000}
	var chi2 float64
	for k, e := range expected {
		diff := counts[k] - e
		chi2 += diff * diff / e
	}
	// df=2, p=0.001
	assert.Less(t, chi2, 13.82, "counts %v", counts)
}

func TestFollowingStreamOrder(t *testing.T) {
	stream := Weights([]string{"a", "b", "c"}, []float64{1, 1, 1})
	draws, err := Following(stream, 50, 3, Options{Rand: seeded()})
	require.NoError(t, err)
	for i, d := range draws {
		assert.Less(t, d.Point, uint64(3))
		assert.Equal(t, int(d.Point), d.Position)
		if i > 0 {
			assert.LessOrEqual(t, draws[i-1].Position, d.Position)
			assert.LessOrEqual(t, draws[i-1].Point, d.Point)
		}
	}
}

func TestFollowingUnique(t *testing.T) {
	stream := Weights([]string{"a", "b"}, []float64{3, 7})
	draws, err := Following(stream, 10, 10, Options{Rand: seeded(), Unique: true})
	require.NoError(t, err)

	items := Items(draws)
	assert.Equal(t, []string{"a", "a", "a", "b", "b", "b", "b", "b", "b", "b"}, items)
	for i, d := range draws {
		assert.Equal(t, uint64(i), d.Point)
	}
}

func TestFollowingProbabilities(t *testing.T) {
	stream := Weights([]string{"x", "y"}, []float64{0.25, 0.75})
	draws, err := Following(stream, 1000, 1.0, Options{Rand: seeded()})
	require.NoError(t, err)
	assert.Len(t, draws, 1000)

	var y int
	for _, d := range draws {
		if d.Item == "y" {
			y++
		}
	}
	assert.InDelta(t, 750, y, 60)
}

func TestFollowingErrors(t *testing.T) {
	stream := Weights([]string{"a"}, []float64{5})

	_, err := Following(stream, 6, 5, Options{Rand: seeded(), Unique: true})
	assert.True(t, errors.Is(err, ErrInsufficientPopulation))

	_, err = Following(stream, 1, 0, Options{})
	assert.True(t, errors.Is(err, ErrInsufficientPopulation))

	short := Weights([]string{"a", "b"}, []float64{1, 1})
	draws, err := Following(short, 100, 1000, Options{Rand: seeded()})
	assert.True(t, errors.Is(err, ErrStreamExhausted))
	assert.Less(t, len(draws), 100)

	draws, err = Following(stream, 0, 5, Options{})
	assert.NoError(t, err)
	assert.Empty(t, draws)
}

func TestFollowingNilRand(t *testing.T) {
	draws, err := Following(Weights([]string{"only"}, []float64{4}), 3, 4, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"only", "only", "only"}, Items(draws))
}
