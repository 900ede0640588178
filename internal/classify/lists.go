package classify

import (
	"path/filepath"
	"sort"
	"strings"
)

// RiskCategory orders how dangerous a mesh is for the target engine.
type RiskCategory int

const (
	Good RiskCategory = iota
	LightIssue
	MediumIssue
	CriticalIssue
	DoNotProcess
)

func (r RiskCategory) String() string {
	switch r {
	case Good:
		return "good"
	case LightIssue:
		return "light issue"
	case MediumIssue:
		return "medium issue"
	case CriticalIssue:
		return "critical issue"
	case DoNotProcess:
		return "do not process"
	default:
		return "unknown"
	}
}

// Worst returns the most severe category.
func Worst(categories ...RiskCategory) RiskCategory {
	worst := Good
	for _, c := range categories {
		if c > worst {
			worst = c
		}
	}
	return worst
}

// PathSet is a case-insensitive set of cleaned paths. Empty paths are never stored.
type PathSet struct {
	items map[string]string
}

func NewPathSet(paths ...string) *PathSet {
	s := &PathSet{items: make(map[string]string)}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func pathKey(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return strings.ToLower(filepath.Clean(strings.ReplaceAll(p, `\`, "/")))
}

func (s *PathSet) Add(p string) {
	key := pathKey(p)
	if key == "" {
		return
	}
	if _, ok := s.items[key]; !ok {
		s.items[key] = filepath.Clean(strings.TrimSpace(p))
	}
}

func (s *PathSet) Remove(p string) {
	delete(s.items, pathKey(p))
}

func (s *PathSet) Contains(p string) bool {
	_, ok := s.items[pathKey(p)]
	return ok
}

func (s *PathSet) Len() int {
	return len(s.items)
}

// Sorted returns the stored paths ordered case-insensitively.
func (s *PathSet) Sorted() []string {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.items[k])
	}
	return out
}

// Lists are the mesh classification lists of one mod. After Reconcile a path
// is in at most one of Headparts, Risky and Other; RiskyHeadparts is a subset
// of Headparts.
type Lists struct {
	ModRoot        string
	Headparts      *PathSet
	Risky          *PathSet
	Other          *PathSet
	RiskyHeadparts *PathSet
}

func NewLists(modRoot string) *Lists {
	return &Lists{
		ModRoot:        modRoot,
		Headparts:      NewPathSet(),
		Risky:          NewPathSet(),
		Other:          NewPathSet(),
		RiskyHeadparts: NewPathSet(),
	}
}

// Reconcile enforces mutual exclusivity. Risky paths leave Other, then
// headparts leave both Risky (remembered in RiskyHeadparts) and Other.
func (l *Lists) Reconcile() {
	for key := range l.Risky.items {
		delete(l.Other.items, key)
	}
	for key, path := range l.Headparts.items {
		if _, ok := l.Risky.items[key]; ok {
			l.RiskyHeadparts.items[key] = path
			delete(l.Risky.items, key)
		}
		delete(l.Other.items, key)
	}
}

// MeshClass is what the lists say about one mesh.
type MeshClass struct {
	Headpart      bool
	Risky         bool
	Other         bool
	RiskyHeadpart bool
	// Risk is filled by header inspection; list membership alone is Good.
	Risk RiskCategory
	// Native marks a mesh already in the target representation.
	Native bool
}

// Lookup reports the membership of path.
func (l *Lists) Lookup(path string) MeshClass {
	return MeshClass{
		Headpart:      l.Headparts.Contains(path),
		Risky:         l.Risky.Contains(path),
		Other:         l.Other.Contains(path),
		RiskyHeadpart: l.RiskyHeadparts.Contains(path),
	}
}
