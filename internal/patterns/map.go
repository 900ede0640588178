package patterns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Map holds the patterns of a profile sorted by ascending priority.
// Priorities are unique. Reads are safe for concurrent use once loading is
// done; mutations are not.
type Map struct {
	patterns []Pattern
}

// New returns a map holding only the synthesized default pattern.
func New() *Map {
	m := &Map{}
	m.ensureDefault()
	return m
}

// FromPatterns builds a map from already parsed patterns, in input order.
func FromPatterns(patterns ...Pattern) *Map {
	m := &Map{}
	for _, p := range patterns {
		m.AddPattern(p)
	}
	m.ensureDefault()
	return m
}

// Load reads a JSON array of pattern documents, then cleans the result.
func Load(r io.Reader) (*Map, error) {
	var docs []json.RawMessage
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode patterns: %w", err)
	}

	m := &Map{}
	for i, doc := range docs {
		p, err := ParsePattern(doc)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		m.AddPattern(p)
	}
	m.ensureDefault()
	m.Clean()
	return m, nil
}

// LoadFile reads patterns from path. A missing file yields the default map
// and an error wrapping os.ErrNotExist, so callers can log and continue.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), err
		}
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

// SaveFile writes the map as an indented JSON array.
func (m *Map) SaveFile(path string) error {
	data, err := json.MarshalIndent(m.patterns, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.patterns)
}

// Patterns returns a copy of the patterns in priority order.
func (m *Map) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Len returns the number of patterns.
func (m *Map) Len() int {
	return len(m.patterns)
}

// AddPattern inserts p at its priority. An occupied slot shifts every
// pattern at or above that priority up by one.
func (m *Map) AddPattern(p Pattern) {
	if len(p.Overrides) == 0 {
		p.Overrides = json.RawMessage("{}")
	}
	if m.occupied(p.Priority) {
		for i := range m.patterns {
			if m.patterns[i].Priority >= p.Priority {
				m.patterns[i].Priority++
			}
		}
	}
	m.patterns = append(m.patterns, p)
	sort.SliceStable(m.patterns, func(i, j int) bool {
		return m.patterns[i].Priority < m.patterns[j].Priority
	})
}

func (m *Map) occupied(priority int) bool {
	for _, p := range m.patterns {
		if p.Priority == priority {
			return true
		}
	}
	return false
}

// Default returns the pattern carrying the "*" wildcard.
func (m *Map) Default() Pattern {
	for _, p := range m.patterns {
		if p.IsDefault() {
			return p
		}
	}
	return Pattern{Wildcards: []string{DefaultWildcard}, Overrides: json.RawMessage("{}")}
}

// PatchDefault merges fragment into the default pattern's overrides.
func (m *Map) PatchDefault(fragment []byte) error {
	m.ensureDefault()
	for i := range m.patterns {
		if !m.patterns[i].IsDefault() {
			continue
		}
		merged, err := jsonpatch.MergePatch(m.patterns[i].overrides(), fragment)
		if err != nil {
			return fmt.Errorf("patch default pattern: %w", err)
		}
		p, err := NewPattern(m.patterns[i].Priority, merged, m.patterns[i].Wildcards...)
		if err != nil {
			return err
		}
		m.patterns[i] = p
		return nil
	}
	return errors.New("no default pattern")
}

func (m *Map) ensureDefault() {
	for _, p := range m.patterns {
		if p.IsDefault() {
			return
		}
	}
	m.AddPattern(Pattern{Priority: 0, Wildcards: []string{DefaultWildcard}, Overrides: json.RawMessage("{}")})
}

// Settings merges, in ascending priority, the overrides of every pattern
// matching path.
func (m *Map) Settings(path string) Effective {
	normalized := normalizePath(path)
	acc := []byte("{}")
	for _, p := range m.patterns {
		if !p.matchNormalized(normalized) {
			continue
		}
		merged, err := jsonpatch.MergePatch(acc, p.overrides())
		if err != nil {
			continue
		}
		acc = merged
	}
	return Effective{raw: canonicalJSON(acc)}
}

// Matching returns the patterns that apply to path, in merge order.
func (m *Map) Matching(path string) []Pattern {
	normalized := normalizePath(path)
	var out []Pattern
	for _, p := range m.patterns {
		if p.matchNormalized(normalized) {
			out = append(out, p)
		}
	}
	return out
}

func (p Pattern) matchNormalized(normalized string) bool {
	for _, wc := range p.Wildcards {
		if globs.match(wc, normalized) {
			return true
		}
	}
	return false
}

// Clean folds patterns with identical overrides into the earliest of them,
// merging wildcard lists and keeping the lower priority. A pattern is only
// folded across the patterns between the two when none of them writes a key
// it writes, so every path keeps the same effective settings.
func (m *Map) Clean() {
	var out []Pattern
	for _, p := range m.patterns {
		merged := false
		for i := len(out) - 1; i >= 0; i-- {
			if bytes.Equal(out[i].overrides(), p.overrides()) {
				out[i].Wildcards = mergeWildcards(out[i].Wildcards, p.Wildcards)
				merged = true
				break
			}
			if overlaps(out[i].overrides(), p.overrides()) {
				break
			}
		}
		if !merged {
			out = append(out, p)
		}
	}
	m.patterns = out
}

func mergeWildcards(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, wc := range list {
			if _, ok := seen[wc]; ok {
				continue
			}
			seen[wc] = struct{}{}
			out = append(out, wc)
		}
	}
	sort.Strings(out)
	return out
}

// canonicalJSON re-encodes raw with sorted keys so equal settings compare
// byte for byte.
func canonicalJSON(raw []byte) []byte {
	obj, err := decodeObject(raw)
	if err != nil {
		return raw
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return out
}
