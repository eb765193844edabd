package ngram

import (
	"context"
	"errors"
	"iter"
	"maps"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rchatterjee/pwmodels/internal/utils"
	"github.com/rchatterjee/pwmodels/pkg/alphabet"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenario = map[string]uint64{
	"password": 100,
	"passw0rd": 10,
	"123456":   50,
}

type shardList [][]leak.Entry

func (s shardList) seqs() []iter.Seq[leak.Entry] {
	out := make([]iter.Seq[leak.Entry], len(s))
	for i, entries := range s {
		out[i] = leak.Slice(entries)
	}
	return out
}

func trainScenario(t *testing.T, opts Options) *Model {
	t.Helper()
	if opts.Order == 0 {
		opts.Order = 3
	}
	m, err := Train(leak.Map(scenario), opts)
	require.NoError(t, err)
	return m
}

func TestTrainCounts(t *testing.T) {
	m := trainScenario(t, Options{})

	assert.Equal(t, 3, m.Order())
	assert.Equal(t, uint64(3), m.NumPasswords())
	assert.Equal(t, uint64(160), m.TotalFreq())
	assert.Equal(t, uint64(160), m.Count(alphabet.StartStr))
	assert.Equal(t, uint64(110), m.Count("\x01p"))
	assert.Equal(t, uint64(110), m.Count("rd\x02"))
	assert.Equal(t, uint64(100), m.Count("swo"))
	assert.Equal(t, uint64(0), m.Count("swor"))
	assert.Equal(t, uint64(3), m.Count(KeyNumPasswords))
	assert.Equal(t, uint64(160), m.Count(KeyTotalFreq))
	assert.Zero(t, m.NumVerbatim())

	for tok := range m.Tokens() {
		assert.LessOrEqual(t, len(tok), 3)
	}
}

func TestTrainRejects(t *testing.T) {
	_, err := Train(leak.Map(scenario), Options{Order: 0})
	assert.Error(t, err)

	m, err := Train(leak.Map(map[string]uint64{
		"ab":     5,
		"abcdef": 3,
		"x\x01y": 4,
		"zero":   0,
	}), Options{Order: 2, MinLength: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.NumPasswords())
	assert.Equal(t, uint64(3), m.TotalFreq())
}

func TestConditionalProb(t *testing.T) {
	m := trainScenario(t, Options{})

	p, err := m.ConditionalProb("", alphabet.Start)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = m.ConditionalProb("\x01", 'p')
	require.NoError(t, err)
	// (count(START p)+1) / (count(START)+95)
	assert.InDelta(t, 111.0/255.0, p, 1e-12)

	// history is truncated to n-1 bytes
	long, err := m.ConditionalProb("\x01passw", 'o')
	require.NoError(t, err)
	short, err := m.ConditionalProb("sw", 'o')
	require.NoError(t, err)
	assert.Equal(t, short, long)

	histories := []string{"", "\x01", "\x01pa", "zz", "\xff\xfe", "sw", "56"}
	for _, h := range histories {
		for c := range 256 {
			p, err := m.ConditionalProb(h, byte(c))
			require.NoError(t, err)
			assert.Greater(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}
	}
}

func TestScenarioOrdering(t *testing.T) {
	m := trainScenario(t, Options{})

	pw, err := m.WholeStringProb("password")
	require.NoError(t, err)
	p0, err := m.WholeStringProb("passw0rd")
	require.NoError(t, err)
	assert.Greater(t, pw, p0)

	unseen, err := m.Prob("zzzzzz")
	require.NoError(t, err)
	assert.Greater(t, unseen, 0.0)
	assert.Less(t, unseen, p0)
}

func TestNextCharDistribution(t *testing.T) {
	m := trainScenario(t, Options{})

	for _, h := range []string{"\x01", "\x01p", "sw", "56", "q", "\x01passw0", "\xff"} {
		dist, err := m.NextCharDistribution(h)
		require.NoError(t, err, h)
		require.NotEmpty(t, dist)

		var sum float64
		for i, nc := range dist {
			assert.Greater(t, nc.Prob, 0.0)
			assert.NotEqual(t, alphabet.Start, nc.Char)
			if i > 0 {
				assert.Less(t, dist[i-1].Char, nc.Char)
			}
			sum += nc.Prob
		}
		assert.InDelta(t, 1.0, sum, 1e-9, h)
	}

	dist, err := m.NextCharDistribution("")
	require.NoError(t, err)
	assert.Equal(t, []NextChar{{Char: alphabet.Start, Prob: 1}}, dist)

	dist, err = m.NextCharDistribution("sw")
	require.NoError(t, err)
	require.Len(t, dist, 2)
	assert.Equal(t, byte('0'), dist[0].Char)
	assert.InDelta(t, 11.0/112.0, dist[0].Prob, 1e-12)
	assert.Equal(t, byte('o'), dist[1].Char)
	assert.InDelta(t, 101.0/112.0, dist[1].Prob, 1e-12)

	again, err := m.NextCharDistribution("\x01passw")
	require.NoError(t, err)
	assert.Equal(t, dist, again)
}

func TestDegenerateModel(t *testing.T) {
	m, err := Train(leak.Slice(nil), Options{Order: 3})
	require.NoError(t, err)

	_, err = m.ConditionalProb("\x01", 'a')
	assert.True(t, errors.Is(err, ErrDegenerateModel))
	_, err = m.WholeStringProb("a")
	assert.True(t, errors.Is(err, ErrDegenerateModel))
	_, err = m.NextCharDistribution("\x01")
	assert.True(t, errors.Is(err, ErrNoCoverage))
	assert.True(t, errors.Is(err, ErrDegenerateModel))

	onlyStart, err := newModel(2, map[string]uint64{alphabet.StartStr: 5}, 1, 5, 0)
	require.NoError(t, err)
	_, err = onlyStart.NextCharDistribution("\x01")
	assert.True(t, errors.Is(err, ErrNoCoverage))
}

func TestVerbatim(t *testing.T) {
	m := trainScenario(t, Options{TopK: 1})

	assert.Equal(t, 1, m.NumVerbatim())
	assert.Equal(t, uint64(4), m.NumPasswords())
	assert.Equal(t, uint64(260), m.TotalFreq())
	assert.Equal(t, uint64(100), m.Count(alphabet.Wrap("password")))

	p, err := m.WholeStringProb("password")
	require.NoError(t, err)
	assert.InDelta(t, 100.0/260.0, p, 1e-12)

	dist, err := m.NextCharDistribution("\x01")
	require.NoError(t, err)
	for _, nc := range dist {
		assert.Contains(t, []byte{'p', '1'}, nc.Char)
	}
}

func TestVerbatimSkipsShortPasswords(t *testing.T) {
	m, err := Train(leak.Map(map[string]uint64{"a": 9, "bcdef": 1}), Options{Order: 3, TopK: 1})
	require.NoError(t, err)
	assert.Zero(t, m.NumVerbatim())
	assert.Equal(t, uint64(10), m.TotalFreq())
}

func TestOrderOne(t *testing.T) {
	m, err := Train(leak.Map(map[string]uint64{"ab": 2}), Options{Order: 1})
	require.NoError(t, err)

	// unigram mass: START, a, b, END each counted twice
	p, err := m.ConditionalProb("zzz", 'a')
	require.NoError(t, err)
	assert.InDelta(t, 3.0/float64(8+alphabet.Size-1), p, 1e-12)

	dist, err := m.NextCharDistribution("\x01")
	require.NoError(t, err)
	assert.Len(t, dist, 3)
}

func TestSamplePassword(t *testing.T) {
	m := trainScenario(t, Options{})
	rng := rand.New(rand.NewPCG(3, 5))
	for range 50 {
		pw, err := m.SamplePassword(rng)
		require.NoError(t, err)
		assert.Contains(t, scenario, pw)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	m := trainScenario(t, Options{TopK: 2})
	path := filepath.Join(t.TempDir(), "model.gz")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path, 16)
	require.NoError(t, err)
	assert.Equal(t, m.Order(), loaded.Order())
	assert.Equal(t, m.NumPasswords(), loaded.NumPasswords())
	assert.Equal(t, m.TotalFreq(), loaded.TotalFreq())
	assert.Equal(t, m.NumVerbatim(), loaded.NumVerbatim())
	assert.Equal(t, maps.Collect(m.Tokens()), maps.Collect(loaded.Tokens()))

	for pw := range scenario {
		a, err := m.Prob(pw)
		require.NoError(t, err)
		b, err := loaded.Prob(pw)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestPersistenceMismatch(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, mf modelFile) string {
		path := filepath.Join(dir, name)
		require.NoError(t, utils.WriteArtifact(path, mf))
		return path
	}
	meta := func(extra map[string]uint64) map[string]uint64 {
		out := map[string]uint64{KeyNumPasswords: 1, KeyTotalFreq: 1}
		maps.Copy(out, extra)
		return out
	}

	testCases := map[string]modelFile{
		"version":  {Version: 7, Order: 2, Tokens: meta(nil)},
		"order":    {Version: formatVersion, Order: 0, Tokens: meta(nil)},
		"meta":     {Version: formatVersion, Order: 2, Tokens: map[string]uint64{"a": 1}},
		"too-long": {Version: formatVersion, Order: 2, Tokens: meta(map[string]uint64{"abc": 1})},
	}
	for name, mf := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(name, mf), 0)
			assert.True(t, errors.Is(err, ErrPersistenceMismatch))
		})
	}

	_, err := Load(filepath.Join(dir, "missing"), 0)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.False(t, errors.Is(err, ErrPersistenceMismatch))

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, utils.WriteArtifact(garbage, map[string]any{"version": formatVersion, "order": "three"}))
	_, err = Load(garbage, 0)
	assert.True(t, errors.Is(err, ErrPersistenceMismatch), "%v", err)
}

func TestTrainShardsMatchesSerial(t *testing.T) {
	entries := []leak.Entry{
		{"password", 100}, {"123456", 50}, {"passw0rd", 10},
		{"qwerty", 40}, {"letmein", 7}, {"dragon", 3}, {"monkey", 21},
	}
	opts := Options{Order: 3, TopK: 3}

	serial, err := Train(leak.Slice(entries), opts)
	require.NoError(t, err)

	shards := shardList{entries[:2], entries[2:5], entries[5:]}
	sharded, err := TrainShards(context.Background(), shards.seqs(), opts)
	require.NoError(t, err)

	assert.Equal(t, maps.Collect(serial.Tokens()), maps.Collect(sharded.Tokens()))
	assert.Equal(t, serial.NumPasswords(), sharded.NumPasswords())
	assert.Equal(t, serial.TotalFreq(), sharded.TotalFreq())
	assert.Equal(t, 3, sharded.NumVerbatim())
}

func TestTrainShardsOverlapping(t *testing.T) {
	opts := Options{Order: 3, TopK: 1}
	serial, err := Train(leak.Slice([]leak.Entry{{"123456", 60}, {"password", 100}}), opts)
	require.NoError(t, err)

	half := []leak.Entry{{"123456", 30}, {"password", 50}}
	sharded, err := TrainShards(context.Background(), shardList{half, half}.seqs(), opts)
	require.NoError(t, err)
	repeated, err := Train(leak.Slice(append(half, half...)), opts)
	require.NoError(t, err)

	for _, m := range []*Model{serial, sharded, repeated} {
		assert.Equal(t, maps.Collect(serial.Tokens()), maps.Collect(m.Tokens()))
		assert.Equal(t, 1, m.NumVerbatim())
		assert.Equal(t, uint64(3), m.NumPasswords())
		assert.Equal(t, uint64(260), m.TotalFreq())
		assert.Equal(t, uint64(100), m.Count(alphabet.Wrap("password")))

		p, err := m.Prob("password")
		require.NoError(t, err)
		assert.InDelta(t, 100.0/260.0, p, 1e-12)
	}
}

func TestVerbatimTiesAreStable(t *testing.T) {
	opts := Options{Order: 2, TopK: 1}
	a := []leak.Entry{{"bbbb", 5}}
	b := []leak.Entry{{"aaaa", 5}}

	ab, err := TrainShards(context.Background(), shardList{a, b}.seqs(), opts)
	require.NoError(t, err)
	ba, err := TrainShards(context.Background(), shardList{b, a}.seqs(), opts)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), ab.Count(alphabet.Wrap("aaaa")))
	assert.Equal(t, maps.Collect(ab.Tokens()), maps.Collect(ba.Tokens()))
}

func TestTrainShardsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shards := shardList{{{"password", 1}}}
	_, err := TrainShards(ctx, shards.seqs(), Options{Order: 2})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentQueries(t *testing.T) {
	m := trainScenario(t, Options{CacheSize: 4})
	want, err := m.Prob("password")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, h := range []string{"\x01", "\x01p", "sw", "wo", "or", "rd"} {
				_, err := m.NextCharDistribution(h)
				assert.NoError(t, err)
			}
			got, err := m.Prob("password")
			assert.NoError(t, err)
			assert.False(t, math.IsNaN(got))
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}
