package corpus

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/internal/utils"
)

// ErrPersistenceMismatch is returned when the key and frequency files do not
// describe the same corpus.
var ErrPersistenceMismatch = errors.New("corpus persistence mismatch")

const formatVersion = 1

// KeysSuffix and FreqSuffix are appended to the base path given to Save.
const (
	KeysSuffix = ".keys.gz"
	FreqSuffix = ".freq.gz"
)

type keysFile struct {
	Version int      `msgpack:"version"`
	Keys    []string `msgpack:"keys"`
}

type freqFile struct {
	Version int      `msgpack:"version"`
	Freq    []uint64 `msgpack:"freq"`
	Total   uint64   `msgpack:"total"`
}

// Save writes the ordered key list and the frequency array next to each
// other under base.
func (c *Corpus) Save(base string) error {
	if err := utils.WriteArtifact(base+KeysSuffix, keysFile{Version: formatVersion, Keys: c.keys}); err != nil {
		return err
	}
	if err := utils.WriteArtifact(base+FreqSuffix, freqFile{Version: formatVersion, Freq: c.freq, Total: c.total}); err != nil {
		return err
	}
	log.Infof("Saved corpus to %s{%s,%s}", base, KeysSuffix, FreqSuffix)
	return nil
}

// Load reads a corpus written by Save and checks that both files agree.
func Load(base string) (*Corpus, error) {
	var kf keysFile
	if err := readArtifact(base+KeysSuffix, &kf); err != nil {
		return nil, err
	}
	var ff freqFile
	if err := readArtifact(base+FreqSuffix, &ff); err != nil {
		return nil, err
	}

	if kf.Version != formatVersion || ff.Version != formatVersion {
		return nil, fmt.Errorf("%w: versions %d/%d, want %d", ErrPersistenceMismatch, kf.Version, ff.Version, formatVersion)
	}
	if len(kf.Keys) != len(ff.Freq) {
		return nil, fmt.Errorf("%w: %d keys but %d frequencies", ErrPersistenceMismatch, len(kf.Keys), len(ff.Freq))
	}
	var sum uint64
	for i, f := range ff.Freq {
		if i > 0 && kf.Keys[i-1] >= kf.Keys[i] {
			return nil, fmt.Errorf("%w: keys not strictly increasing at %d", ErrPersistenceMismatch, i)
		}
		if kf.Keys[i] == "" || f == 0 {
			return nil, fmt.Errorf("%w: empty key or zero count at %d", ErrPersistenceMismatch, i)
		}
		sum += f
	}
	if sum != ff.Total {
		return nil, fmt.Errorf("%w: frequencies sum to %d, header says %d", ErrPersistenceMismatch, sum, ff.Total)
	}

	log.Debugf("Loaded corpus %s with %s keys", base, utils.FormatWithCommas(uint64(len(kf.Keys))))
	return fromSorted(kf.Keys, ff.Freq, ff.Total), nil
}

// readArtifact reports undecodable files as ErrPersistenceMismatch and
// passes open errors through.
func readArtifact(path string, v any) error {
	err := utils.ReadArtifact(path, v)
	if errors.Is(err, utils.ErrCorruptArtifact) {
		return fmt.Errorf("%w: %w", ErrPersistenceMismatch, err)
	}
	return err
}
