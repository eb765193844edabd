package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rchatterjee/pwmodels/pkg/corpus"
	"github.com/rchatterjee/pwmodels/pkg/generate"
	"github.com/rchatterjee/pwmodels/pkg/leak"
	"github.com/rchatterjee/pwmodels/pkg/ngram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputHandler(t *testing.T) {
	counts := map[string]uint64{"password": 100, "passw0rd": 10, "123456": 50}
	m, err := ngram.Train(leak.Map(counts), ngram.Options{Order: 3})
	require.NoError(t, err)
	c, err := corpus.Build(leak.Map(counts), corpus.Options{})
	require.NoError(t, err)

	h := NewInputHandler(m, c, m, generate.Options{}, 0)
	var out bytes.Buffer
	require.NoError(t, h.Start(strings.NewReader("password\n:top 2\n:top x\n:q\nignored\n"), &out))

	text := out.String()
	assert.Contains(t, text, "shape:  L8")
	assert.Contains(t, text, "rank:   1 (count 100)")
	assert.Contains(t, text, "   1. password")
	assert.Contains(t, text, "   2. 123456")
	assert.NotContains(t, text, "ignored")
	assert.Equal(t, 3, h.requestCount)
}

func TestInputHandlerNoBackends(t *testing.T) {
	h := NewInputHandler(nil, nil, nil, generate.Options{}, 5)
	var out bytes.Buffer
	require.NoError(t, h.Start(strings.NewReader("abc1!"), &out))
	assert.Contains(t, out.String(), "shape:  L3D1Y1")
	assert.NotContains(t, out.String(), "prob:")
}
