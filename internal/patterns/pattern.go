package patterns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Metadata keys stored next to the overrides in a pattern document.
const (
	KeyPriority = "priority"
	KeyPatterns = "patterns"
)

// DefaultWildcard marks the base pattern every file matches.
const DefaultWildcard = "*"

// Pattern is one prioritized rule: wildcards plus a JSON fragment of overrides.
// Lower priorities are merged first, so higher ones win conflicting keys.
type Pattern struct {
	Priority  int
	Wildcards []string
	// Overrides is canonical JSON (sorted keys) without metadata keys.
	Overrides json.RawMessage
}

// ParsePattern splits a stored pattern document into metadata and overrides.
func ParsePattern(raw []byte) (Pattern, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Pattern{}, err
	}

	p := Pattern{}
	if v, ok := obj[KeyPriority]; ok {
		n, ok := v.(json.Number)
		if !ok {
			return Pattern{}, fmt.Errorf("%s must be a number", KeyPriority)
		}
		i, err := n.Int64()
		if err != nil {
			return Pattern{}, fmt.Errorf("%s: %w", KeyPriority, err)
		}
		p.Priority = int(i)
		delete(obj, KeyPriority)
	}

	if v, ok := obj[KeyPatterns]; ok {
		list, ok := v.([]any)
		if !ok {
			return Pattern{}, fmt.Errorf("%s must be a list of strings", KeyPatterns)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return Pattern{}, fmt.Errorf("%s must be a list of strings", KeyPatterns)
			}
			p.Wildcards = append(p.Wildcards, s)
		}
		delete(obj, KeyPatterns)
	}
	if len(p.Wildcards) == 0 {
		return Pattern{}, errors.New("pattern has no wildcards")
	}

	p.Overrides, err = json.Marshal(obj)
	if err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// NewPattern builds a pattern from overrides given as any JSON object.
func NewPattern(priority int, overrides []byte, wildcards ...string) (Pattern, error) {
	if len(overrides) == 0 {
		overrides = []byte("{}")
	}
	obj, err := decodeObject(overrides)
	if err != nil {
		return Pattern{}, err
	}
	delete(obj, KeyPriority)
	delete(obj, KeyPatterns)

	raw, err := json.Marshal(obj)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Priority: priority, Wildcards: append([]string(nil), wildcards...), Overrides: raw}, nil
}

// IsDefault reports whether the pattern carries the "*" wildcard.
func (p Pattern) IsDefault() bool {
	for _, wc := range p.Wildcards {
		if wc == DefaultWildcard {
			return true
		}
	}
	return false
}

// Matches reports whether any wildcard matches path.
func (p Pattern) Matches(path string) bool {
	return MatchAny(p.Wildcards, path)
}

// MarshalJSON writes the overrides with the metadata keys added back.
func (p Pattern) MarshalJSON() ([]byte, error) {
	obj, err := decodeObject(p.overrides())
	if err != nil {
		return nil, err
	}
	obj[KeyPriority] = p.Priority
	obj[KeyPatterns] = p.Wildcards
	return json.Marshal(obj)
}

func (p Pattern) overrides() []byte {
	if len(p.Overrides) == 0 {
		return []byte("{}")
	}
	return p.Overrides
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode pattern: %w", err)
	}
	if obj == nil {
		return nil, errors.New("pattern must be a JSON object")
	}
	return obj, nil
}

// leafPaths lists the dotted key paths a merge patch of raw would write.
// Arrays, scalars, nulls and empty objects are leaves.
func leafPaths(raw []byte) []string {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil
	}
	var out []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		m, ok := v.(map[string]any)
		if !ok || len(m) == 0 {
			out = append(out, prefix)
			return
		}
		for k, child := range m {
			walk(prefix+"."+k, child)
		}
	}
	for k, v := range obj {
		walk(k, v)
	}
	sort.Strings(out)
	return out
}

// overlaps reports whether two override documents touch a common key path,
// counting a parent path as touching all of its children.
func overlaps(a, b []byte) bool {
	pa, pb := leafPaths(a), leafPaths(b)
	for _, x := range pa {
		for _, y := range pb {
			if x == y || strings.HasPrefix(x, y+".") || strings.HasPrefix(y, x+".") {
				return true
			}
		}
	}
	return false
}
