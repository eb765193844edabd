package utils

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorruptArtifact marks an artifact that opened but could not be
// decompressed or decoded into the requested type.
var ErrCorruptArtifact = errors.New("corrupt artifact")

// WriteArtifact msgpack-encodes v into a gzip file at path. The file is
// written to a temporary sibling first and renamed into place, so readers
// never observe a half-written artifact.
func WriteArtifact(path string, v any) (err error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create artifact dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 256*1024)
	gz := gzip.NewWriter(bw)
	if err = msgpack.NewEncoder(gz).Encode(v); err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", path, err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("failed to compress artifact %s: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move artifact into place at %s: %w", path, err)
	}

	log.Debugf("Wrote artifact %s", path)
	return nil
}

// ReadArtifact decodes a file written by WriteArtifact into v.
func ReadArtifact(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(bufio.NewReaderSize(file, 256*1024))
	if err != nil {
		return fmt.Errorf("%w: %s is not gzip compressed: %w", ErrCorruptArtifact, path, err)
	}
	defer gz.Close()

	if err := msgpack.NewDecoder(gz).Decode(v); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %w", ErrCorruptArtifact, path, err)
	}
	log.Debugf("Read artifact %s", path)
	return nil
}
