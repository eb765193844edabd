// Package leak reads raw password leak files: newline-delimited
// "<count><separator><password>" records, as produced by `uniq -c`, possibly
// compressed with gzip, bzip2 or zstd.
package leak

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/rchatterjee/pwmodels/pkg/metrics"
)

// ErrMalformedRecord is returned for lines that do not parse into a count
// and a password. Readers skip such lines and keep going.
var ErrMalformedRecord = errors.New("malformed record")

// maxLineSize bounds a single record; leak files do contain garbage lines.
const maxLineSize = 1 << 20

// Entry is one (password, occurrence count) pair.
type Entry struct {
	Password string
	Count    uint64
}

// Options control how records are parsed and which ones are yielded.
type Options struct {
	// Separator between count and password. Empty means any run of
	// whitespace; "\t" selects the tab-separated variant.
	Separator string
	// Limit stops after this many accepted records. Zero or less reads all.
	Limit int
	// Filter drops passwords for which it returns false. Nil keeps all.
	Filter func(string) bool
}

// Stats summarises one pass over a leak stream.
type Stats struct {
	Lines     int
	Accepted  int
	Malformed int
	Filtered  int
	TotalFreq uint64
}

// ParseLine splits a single record. The returned error wraps
// ErrMalformedRecord.
func ParseLine(line, sep string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	var countStr, pw string

	if sep == "" {
		rest := strings.TrimLeft(line, " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			return Entry{}, fmt.Errorf("%w: missing separator in %q", ErrMalformedRecord, line)
		}
		countStr = rest[:end]
		pw = strings.TrimLeft(rest[end:], " \t")
	} else {
		rest := strings.TrimLeft(line, " ")
		var found bool
		countStr, pw, found = strings.Cut(rest, sep)
		if !found {
			return Entry{}, fmt.Errorf("%w: missing separator %q in %q", ErrMalformedRecord, sep, line)
		}
	}

	count, err := strconv.ParseUint(countStr, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: bad count %q", ErrMalformedRecord, countStr)
	}
	if pw == "" {
		return Entry{}, fmt.Errorf("%w: empty password", ErrMalformedRecord)
	}
	return Entry{Password: pw, Count: count}, nil
}

// Reader yields entries from a leak stream in a single pass.
type Reader struct {
	src   io.Reader
	opts  Options
	stats Stats
	err   error
	used  bool
}

// NewReader wraps an already decompressed stream.
func NewReader(r io.Reader, opts Options) *Reader {
	return &Reader{src: r, opts: opts}
}

// Entries returns the record sequence. It can be ranged over once; call Err
// afterwards to learn whether the stream ended early because of an I/O
// error. Malformed lines are logged and counted, never returned.
func (r *Reader) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if r.used {
			r.err = errors.New("leak reader already consumed")
			return
		}
		r.used = true

		scanner := bufio.NewScanner(r.src)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		for scanner.Scan() {
			r.stats.Lines++
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}

			e, err := ParseLine(line, r.opts.Separator)
			if err != nil {
				r.stats.Malformed++
				metrics.RecordsMalformed.Inc()
				log.Warnf("Skipping line %d: %v", r.stats.Lines, err)
				continue
			}
			if e.Count == 0 || (r.opts.Filter != nil && !r.opts.Filter(e.Password)) {
				r.stats.Filtered++
				continue
			}

			r.stats.Accepted++
			r.stats.TotalFreq += e.Count
			metrics.RecordsRead.Inc()
			if !yield(e) {
				return
			}
			if r.opts.Limit > 0 && r.stats.Accepted >= r.opts.Limit {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			r.err = fmt.Errorf("reading leak stream at line %d: %w", r.stats.Lines, err)
		}
		if r.stats.Malformed > 0 {
			log.Warnf("Skipped %d malformed lines out of %d", r.stats.Malformed, r.stats.Lines)
		}
	}
}

// Err reports the I/O error, if any, that ended the last pass.
func (r *Reader) Err() error {
	return r.err
}

// Stats returns counters for the pass so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// ReadFile parses an entire leak file into memory. Prefer Open plus
// NewReader for large files.
func ReadFile(path string, opts Options) ([]Entry, Stats, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer rc.Close()

	r := NewReader(rc, opts)
	var entries []Entry
	for e := range r.Entries() {
		entries = append(entries, e)
	}
	return entries, r.Stats(), r.Err()
}

// Slice turns in-memory entries into a sequence, for callers that already
// hold a password list.
func Slice(entries []Entry) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Map turns a password→count map into a sequence. Order is unspecified.
func Map(counts map[string]uint64) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for pw, c := range counts {
			if !yield(Entry{Password: pw, Count: c}) {
				return
			}
		}
	}
}
