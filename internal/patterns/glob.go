package patterns

import (
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// matcher compiles wildcards once and keeps them in a bounded cache.
// Safe for concurrent use.
type matcher struct {
	cache *lru.Cache[string, glob.Glob]
}

func newMatcher(size int) *matcher {
	cache, err := lru.New[string, glob.Glob](size)
	if err != nil {
		panic(err)
	}
	return &matcher{cache: cache}
}

var globs = newMatcher(1024)

// normalizePath lowercases p and uses forward slashes.
func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

func (m *matcher) compile(wildcard string) (glob.Glob, bool) {
	key := normalizePath(wildcard)
	if g, ok := m.cache.Get(key); ok {
		return g, g != nil
	}
	// No separators: '*' spans directories, so "*.nif" matches nested meshes.
	g, err := glob.Compile(key)
	if err != nil {
		m.cache.Add(key, nil)
		return nil, false
	}
	m.cache.Add(key, g)
	return g, true
}

// match tests wildcard against the whole normalized path and every suffix
// that starts after a separator.
func (m *matcher) match(wildcard, normalized string) bool {
	g, ok := m.compile(wildcard)
	if !ok {
		return false
	}
	if g.Match(normalized) {
		return true
	}
	for i := 0; i < len(normalized); i++ {
		if normalized[i] == '/' && g.Match(normalized[i+1:]) {
			return true
		}
	}
	return false
}

// MatchAny reports whether path matches any of the wildcards, case-insensitively.
func MatchAny(wildcards []string, path string) bool {
	normalized := normalizePath(path)
	for _, wc := range wildcards {
		if globs.match(wc, normalized) {
			return true
		}
	}
	return false
}
