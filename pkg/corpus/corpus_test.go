package corpus

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leakText = `  344 123456
   35 password
   10 passw0rd
    3 abc
    7 pass
`

func build(t *testing.T, text string) *Corpus {
	t.Helper()
	r := leak.NewReader(strings.NewReader(text), leak.Options{})
	c, err := Build(r.Entries(), Options{})
	require.NoError(t, err)
	require.NoError(t, r.Err())
	return c
}

func TestIDRoundTrip(t *testing.T) {
	c := build(t, leakText)
	require.Equal(t, 5, c.Len())

	for id := range c.Len() {
		key, ok := c.KeyOf(id)
		require.True(t, ok)
		got, ok := c.IDOf(key)
		require.True(t, ok)
		assert.Equal(t, id, got)
	}

	_, ok := c.IDOf("missing")
	assert.False(t, ok)
	_, ok = c.IDOf("")
	assert.False(t, ok)
	_, ok = c.KeyOf(-1)
	assert.False(t, ok)
	_, ok = c.KeyOf(c.Len())
	assert.False(t, ok)
}

func TestConservation(t *testing.T) {
	c := build(t, leakText)
	var sum uint64
	for _, f := range c.Entries() {
		sum += f
	}
	assert.Equal(t, uint64(399), sum)
	assert.Equal(t, c.Total(), sum)
	assert.Equal(t, uint64(35), c.Lookup("password"))
	assert.Equal(t, uint64(0), c.Lookup("nope"))
}

func TestDuplicatesAndZeroes(t *testing.T) {
	c, err := Build(leak.Slice([]leak.Entry{
		{"a", 2}, {"b", 0}, {"a", 3}, {"", 9},
	}), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint64(5), c.Lookup("a"))
	assert.Equal(t, uint64(5), c.Total())
}

func TestRankScenario(t *testing.T) {
	c := build(t, leakText)

	assert.Equal(t, 1, c.RankOf("123456"))
	assert.Equal(t, 2, c.RankOf("password"))
	assert.Equal(t, 5, c.RankOf("abc"))
	assert.Equal(t, 6, c.RankOf("absent"))
	assert.Equal(t, uint64(344), c.TopQMass(1))
	assert.Equal(t, uint64(379), c.TopQMass(2))
	assert.Equal(t, c.Total(), c.TopQMass(0))
	assert.Equal(t, c.Total(), c.TopQMass(100))

	key, ok := c.KeyAtRank(1)
	require.True(t, ok)
	assert.Equal(t, "123456", key)
	_, ok = c.KeyAtRank(0)
	assert.False(t, ok)

	assert.Equal(t, []int{2, 1}, c.GuessRanks([]string{"password", "123456"}))

	var order []string
	for r := range c.ByFrequency() {
		order = append(order, r.Key)
	}
	assert.Equal(t, []string{"123456", "password", "passw0rd", "pass", "abc"}, order)
}

func TestRankTies(t *testing.T) {
	c, err := Build(leak.Map(map[string]uint64{"x": 5, "y": 5, "z": 1}), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.RankOf("x"))
	assert.Equal(t, 1, c.RankOf("y"))
	assert.Equal(t, 3, c.RankOf("z"))

	var ranks []int
	for r := range c.ByFrequency() {
		ranks = append(ranks, r.Rank)
	}
	assert.Equal(t, []int{1, 1, 3}, ranks)
}

func TestPrefixEntries(t *testing.T) {
	c := build(t, leakText)

	var keys []string
	for k := range c.PrefixEntries("pass") {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"pass", "passw0rd", "password"}, keys)

	n := 0
	for range c.PrefixEntries("zzz") {
		n++
	}
	assert.Zero(t, n)

	n = 0
	for range c.PrefixEntries("") {
		n++
	}
	assert.Equal(t, c.Len(), n)
}

func TestSampleByDistribution(t *testing.T) {
	c, err := Build(leak.Map(map[string]uint64{"a": 1, "b": 99}), Options{})
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	draws := c.SampleByDistribution(10000, rng)
	require.Len(t, draws, 10000)

	var b int
	for _, d := range draws {
		if d == "b" {
			b++
		}
	}
	assert.InDelta(t, 0.99, float64(b)/10000, 0.005)
}

func TestSampleFollowing(t *testing.T) {
	c := build(t, leakText)
	rng := rand.New(rand.NewPCG(1, 2))

	got, err := c.SampleFollowing(c.Len(), rng, true)
	require.NoError(t, err)
	assert.Len(t, got, c.Len())
	for _, k := range got {
		assert.NotZero(t, c.Lookup(k))
	}

	all, err := c.SampleFollowing(int(c.Total()), rng, true)
	require.NoError(t, err)
	counts := map[string]uint64{}
	for _, k := range all {
		counts[k]++
	}
	for k, f := range c.Entries() {
		assert.Equal(t, f, counts[k], k)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	c := build(t, leakText)
	base := filepath.Join(t.TempDir(), "leak")
	require.NoError(t, c.Save(base))

	loaded, err := Load(base)
	require.NoError(t, err)
	assert.Equal(t, c.Len(), loaded.Len())
	assert.Equal(t, c.Total(), loaded.Total())
	for k, f := range c.Entries() {
		assert.Equal(t, f, loaded.Lookup(k))
		assert.Equal(t, c.RankOf(k), loaded.RankOf(k))
		id, _ := c.IDOf(k)
		lid, _ := loaded.IDOf(k)
		assert.Equal(t, id, lid)
	}
}

func TestBuildPersistTo(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out", "c")
	_, err := Build(leak.Map(map[string]uint64{"q": 1}), Options{PersistTo: base})
	require.NoError(t, err)
	assert.True(t, utils.FileExists(base+KeysSuffix))
	assert.True(t, utils.FileExists(base+FreqSuffix))
}

func TestPersistenceMismatch(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "bad")

	require.NoError(t, utils.WriteArtifact(base+KeysSuffix, keysFile{Version: formatVersion, Keys: []string{"a", "b"}}))
	require.NoError(t, utils.WriteArtifact(base+FreqSuffix, freqFile{Version: formatVersion, Freq: []uint64{1}, Total: 1}))
	_, err := Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch))

	require.NoError(t, utils.WriteArtifact(base+FreqSuffix, freqFile{Version: formatVersion, Freq: []uint64{1, 2}, Total: 4}))
	_, err = Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch))

	require.NoError(t, utils.WriteArtifact(base+KeysSuffix, keysFile{Version: formatVersion, Keys: []string{"b", "a"}}))
	require.NoError(t, utils.WriteArtifact(base+FreqSuffix, freqFile{Version: formatVersion, Freq: []uint64{1, 2}, Total: 3}))
	_, err = Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch))

	require.NoError(t, utils.WriteArtifact(base+KeysSuffix, keysFile{Version: 99, Keys: []string{"a", "b"}}))
	_, err = Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch))

	require.NoError(t, os.Remove(base+FreqSuffix))
	_, err = Load(base)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, errors.Is(err, ErrPersistenceMismatch))
}

func TestLoadUndecodable(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "garbage")
	require.NoError(t, utils.WriteArtifact(base+FreqSuffix, freqFile{Version: formatVersion, Freq: []uint64{1}, Total: 1}))

	// keys field holds an integer instead of a list
	require.NoError(t, utils.WriteArtifact(base+KeysSuffix, map[string]any{"version": formatVersion, "keys": 42}))
	_, err := Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch), "%v", err)

	require.NoError(t, os.WriteFile(base+KeysSuffix, []byte("not gzip"), 0o644))
	_, err = Load(base)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch), "%v", err)
}

func TestConcurrentReaders(t *testing.T) {
	c := build(t, leakText)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 2, c.RankOf("password"))
			assert.Equal(t, uint64(344), c.TopQMass(1))
		}()
	}
	wg.Wait()
}
