// Package phoneme looks up ARPAbet pronunciations from CMU Pronouncing Dictionary data.
package phoneme

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

//go:embed cmudict-seed.dict
var seed string

// Dictionary is a case-insensitive word to pronunciations map.
// Pronunciations keep the order they appear in the source file.
type Dictionary struct {
	mu      sync.RWMutex
	entries map[string][]entities.PhonemeSequence
}

var _ repositories.PhonemeDictionary = (*Dictionary)(nil)

// New creates an empty dictionary
func New() *Dictionary {
	return &Dictionary{entries: make(map[string][]entities.PhonemeSequence)}
}

// Default returns a dictionary holding the embedded seed entries
func Default() *Dictionary {
	d := New()
	if err := d.Load(strings.NewReader(seed)); err != nil {
		panic(fmt.Sprintf("phoneme: embedded dictionary: %v", err))
	}
	return d
}

// Parse reads a dictionary from cmudict formatted text
func Parse(r io.Reader) (*Dictionary, error) {
	d := New()
	if err := d.Load(r); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadFile merges a cmudict file into the dictionary
func (d *Dictionary) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	if err := d.Load(f); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load merges cmudict entries from r. A word present in r replaces every
// pronunciation previously held for it.
func (d *Dictionary) Load(r io.Reader) error {
	loaded := make(map[string][]entities.PhonemeSequence)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		word, phones, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if len(phones) == 0 {
			return fmt.Errorf("line %d: %q has no phonemes", lineNo, word)
		}
		loaded[word] = append(loaded[word], phones)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dictionary: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for word, seqs := range loaded {
		d.entries[word] = seqs
	}
	return nil
}

// Lookup implements repositories.PhonemeDictionary
func (d *Dictionary) Lookup(word string) []entities.PhonemeSequence {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seqs := d.entries[strings.ToLower(word)]
	if len(seqs) == 0 {
		return nil
	}
	out := make([]entities.PhonemeSequence, len(seqs))
	copy(out, seqs)
	return out
}

// Len returns the number of distinct words
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// parseLine splits one cmudict line into its lowercased headword and phonemes.
// Comment and blank lines report ok=false.
func parseLine(line string) (string, entities.PhonemeSequence, bool) {
	if strings.HasPrefix(line, ";;;") {
		return "", nil, false
	}
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, false
	}

	word := strings.ToLower(fields[0])
	// alternates are written word(1), word(2), ...
	if i := strings.IndexByte(word, '('); i > 0 && strings.HasSuffix(word, ")") {
		word = word[:i]
	}

	phones := make(entities.PhonemeSequence, 0, len(fields)-1)
	for _, p := range fields[1:] {
		phones = append(phones, strings.ToUpper(p))
	}
	return word, phones, true
}
