// Package ignore provides the path predicates filesystem implementations
// use to hide paths. A hidden path is invisible to every operation, read
// or write, even when a node structurally exists at it.
package ignore

import (
	"fmt"
	"path"
	"strings"

	"github.com/wix/reactive-fs/fspath"
)

// Predicate reports whether a single canonical path is ignored. Predicates
// are pure and are fixed at filesystem construction.
type Predicate func(path string) bool

// Nothing ignores no paths. It is the default for every implementation.
func Nothing(string) bool { return false }

// Hidden reports whether p or any of its ancestors matches pred. Matching
// a directory hides its whole subtree. The root is never hidden.
func Hidden(pred Predicate, p string) bool {
	if pred == nil || fspath.IsRoot(p) {
		return false
	}
	if pred(p) {
		return true
	}
	for _, anc := range fspath.Ancestors(p) {
		if pred(anc) {
			return true
		}
	}
	return false
}

// Patterns compiles glob patterns into a predicate. A pattern containing a
// separator is matched against the full canonical path; otherwise it is
// matched against each path's base name, so "*.tmp" hides temp files at
// any depth. Malformed patterns are rejected up front.
func Patterns(patterns ...string) (Predicate, error) {
	var full, base []string
	for _, raw := range patterns {
		p := fspath.Clean(raw)
		if p == "" {
			continue
		}
		if _, err := path.Match(p, "probe"); err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", raw, err)
		}
		if strings.Contains(p, fspath.Separator) {
			full = append(full, p)
		} else {
			base = append(base, p)
		}
	}
	return func(target string) bool {
		for _, p := range full {
			if ok, _ := path.Match(p, target); ok {
				return true
			}
		}
		name := fspath.Base(target)
		for _, p := range base {
			if ok, _ := path.Match(p, name); ok {
				return true
			}
		}
		return false
	}, nil
}

// Prefixes hides the given paths and everything beneath them.
func Prefixes(prefixes ...string) Predicate {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if c := fspath.Clean(p); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return func(target string) bool {
		for _, pre := range cleaned {
			if target == pre || strings.HasPrefix(target, pre+fspath.Separator) {
				return true
			}
		}
		return false
	}
}

// Any combines predicates; the result matches when any of them does.
func Any(preds ...Predicate) Predicate {
	return func(target string) bool {
		for _, pred := range preds {
			if pred != nil && pred(target) {
				return true
			}
		}
		return false
	}
}
