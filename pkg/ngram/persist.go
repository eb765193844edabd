package ngram

import (
	"errors"
	"fmt"
	"maps"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
)

const formatVersion = 1

type modelFile struct {
	Version int               `msgpack:"version"`
	Order   int               `msgpack:"order"`
	Tokens  map[string]uint64 `msgpack:"tokens"`
}

// Save writes the token→count mapping, meta keys included, to path.
func (m *Model) Save(path string) error {
	tokens := make(map[string]uint64, m.tokens+2)
	maps.Insert(tokens, m.Tokens())
	tokens[KeyNumPasswords] = m.npws
	tokens[KeyTotalFreq] = m.totalf

	if err := utils.WriteArtifact(path, modelFile{Version: formatVersion, Order: m.order, Tokens: tokens}); err != nil {
		return err
	}
	log.Infof("Saved %d-gram model to %s", m.order, path)
	return nil
}

// Load reads a model written by Save. cacheSize bounds the distribution
// cache; zero uses DefaultCacheSize.
func Load(path string, cacheSize int) (*Model, error) {
	var mf modelFile
	if err := utils.ReadArtifact(path, &mf); err != nil {
		if errors.Is(err, utils.ErrCorruptArtifact) {
			return nil, fmt.Errorf("%w: %w", ErrPersistenceMismatch, err)
		}
		return nil, err
	}
	if mf.Version != formatVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrPersistenceMismatch, mf.Version, formatVersion)
	}
	if mf.Order < 1 {
		return nil, fmt.Errorf("%w: order %d", ErrPersistenceMismatch, mf.Order)
	}

	npws, okN := mf.Tokens[KeyNumPasswords]
	totalf, okT := mf.Tokens[KeyTotalFreq]
	if !okN || !okT {
		return nil, fmt.Errorf("%w: missing meta keys", ErrPersistenceMismatch)
	}
	delete(mf.Tokens, KeyNumPasswords)
	delete(mf.Tokens, KeyTotalFreq)

	for tok := range mf.Tokens {
		if len(tok) > mf.Order && !isVerbatimKey(tok, mf.Order) {
			return nil, fmt.Errorf("%w: token %q longer than order %d", ErrPersistenceMismatch, utils.Printable(tok), mf.Order)
		}
	}
	return newModel(mf.Order, mf.Tokens, npws, totalf, cacheSize)
}
