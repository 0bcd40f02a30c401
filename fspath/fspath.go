// Package fspath implements path handling for the virtual filesystem.
//
// Virtual paths use a single canonical separator ('/') on every platform;
// host separators never appear in them. The root directory is the empty
// path, and a node's full path is the separator-join of its ancestors'
// names.
package fspath

import "strings"

// Separator is the canonical path separator for all virtual paths.
const Separator = "/"

// Clean normalizes a raw path: leading/trailing/duplicate separators are
// dropped so that Clean("/a//b/") == "a/b". The root normalizes to "".
func Clean(path string) string {
	return strings.Join(Split(path), Separator)
}

// Split breaks a path into its segments, dropping empty ones. The root
// path yields no segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, Separator)
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if len(segs) == 0 {
		return nil
	}
	return segs
}

// Join combines segments into a clean path. Empty segments are dropped.
func Join(segs ...string) string {
	return Clean(strings.Join(segs, Separator))
}

// IsRoot reports whether the path resolves to the root directory.
func IsRoot(path string) bool {
	return len(Split(path)) == 0
}

// Base returns the last segment of the path, or "" for the root.
func Base(path string) string {
	segs := Split(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the path with its last segment removed, or "" when the
// path has at most one segment.
func Parent(path string) string {
	segs := Split(path)
	if len(segs) <= 1 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], Separator)
}

// Ancestors returns every proper prefix of the path from the shallowest
// down, excluding the root and the path itself. Ancestors("a/b/c") is
// ["a", "a/b"].
func Ancestors(path string) []string {
	segs := Split(path)
	if len(segs) <= 1 {
		return nil
	}
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], Separator))
	}
	return out
}

// HasDotSegments reports whether any segment is "." or "..". Virtual paths
// are literal segment names; adapters backed by a host filesystem reject
// these to stay inside their root.
func HasDotSegments(path string) bool {
	for _, s := range Split(path) {
		if s == "." || s == ".." {
			return true
		}
	}
	return false
}
