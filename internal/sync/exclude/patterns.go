// Package exclude decides which local paths never take part in a pass.
package exclude

import (
	"path"
	"strings"

	"github.com/dl-alexandre/docsync/internal/utils"
)

type ruleKind int

const (
	ruleName ruleKind = iota // exact path, path prefix or base name
	ruleGlob                 // path.Match against the whole path or base name
	ruleDir                  // trailing "/": the directory and everything below it
)

type rule struct {
	source string
	kind   ruleKind
	value  string
}

// Matcher matches slash-separated relative paths against ignore patterns.
type Matcher struct {
	rules []rule
}

// DefaultPatterns are operating-system and editor artifacts
func DefaultPatterns() []string {
	return []string{
		".DS_Store",
		"._*",
		"Thumbs.db",
		"desktop.ini",
		"~$*",
		"*.tmp",
		".git/",
	}
}

// New merges patterns with the defaults. In-flight download temp files are
// always excluded. Globs that path.Match rejects are dropped.
func New(patterns []string) *Matcher {
	all := append([]string{utils.TempFilePrefix + "*"}, DefaultPatterns()...)
	all = append(all, patterns...)

	m := &Matcher{rules: make([]rule, 0, len(all))}
	for _, p := range all {
		if r, ok := compile(p); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

func compile(p string) (rule, bool) {
	p = strings.TrimSpace(p)
	switch {
	case p == "" || p == "/":
		return rule{}, false
	case strings.HasSuffix(p, "/"):
		return rule{source: p, kind: ruleDir, value: strings.TrimSuffix(p, "/")}, true
	case strings.ContainsAny(p, "*?["):
		if _, err := path.Match(p, ""); err != nil {
			return rule{}, false
		}
		return rule{source: p, kind: ruleGlob, value: p}, true
	default:
		return rule{source: p, kind: ruleName, value: p}, true
	}
}

// Patterns returns the effective pattern list
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.source
	}
	return out
}

// IsExcluded reports whether relPath, a file or a directory, is ignored
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	base := path.Base(relPath)
	for _, r := range m.rules {
		if r.matches(relPath, base, isDir) {
			return true
		}
	}
	return false
}

func (r rule) matches(relPath, base string, isDir bool) bool {
	switch r.kind {
	case ruleDir:
		if strings.HasPrefix(relPath, r.value+"/") {
			return true
		}
		return isDir && (relPath == r.value || base == r.value)
	case ruleGlob:
		whole, _ := path.Match(r.value, relPath)
		name, _ := path.Match(r.value, base)
		return whole || name
	default:
		return relPath == r.value || base == r.value || strings.HasPrefix(relPath, r.value+"/")
	}
}
