// Package reactivefs defines a virtual filesystem contract: one operation
// set that heterogeneous backends satisfy identically, plus a change-event
// surface callers subscribe to.
//
// Implementations in this module: memfs (the in-memory reference store),
// diskfs (host-directory adapter), timeoutfs (per-call deadline decorator),
// and bridge (RPC client/server pair projecting the contract over a
// websocket). All of them share the same path rules, error taxonomy and
// event sequencing, so callers can swap one for another without code
// changes.
package reactivefs

import (
	"context"

	"github.com/wix/reactive-fs/fsevent"
)

// FileSystem is the contract every backend implements. Paths use '/' as
// the only separator on every platform; the root directory is the empty
// path, and segments are literal names, so "." and ".." are rejected with
// IllegalPath. Operations validate inputs and fail with fserr kinds;
// mutations emit their fsevent notifications before returning.
type FileSystem interface {
	// SaveFile writes text content to the file at path, creating the file
	// and any missing ancestor directories. Saving identical content is a
	// no-op. Fails with IllegalPath on the root or an ignored path, and
	// with TypeMismatch when a directory occupies the path.
	SaveFile(ctx context.Context, path, content string) error

	// DeleteFile removes the file at path, tolerating a missing or
	// ignored target as a silent no-op. Fails with IllegalPath on the
	// root and TypeMismatch on a directory.
	DeleteFile(ctx context.Context, path string) error

	// DeleteDirectory removes the directory at path. Without recursive it
	// fails with NotEmpty when the directory has children; with recursive
	// it removes the whole subtree. Missing or ignored targets are silent
	// no-ops. Fails with IllegalPath on the root and TypeMismatch on a
	// file.
	DeleteDirectory(ctx context.Context, path string, recursive bool) error

	// EnsureDirectory creates the directory at path along with missing
	// ancestors; it is idempotent. Fails with IllegalPath on an ignored
	// path and TypeMismatch when a file occupies any segment.
	EnsureDirectory(ctx context.Context, path string) error

	// LoadTextFile returns the file's content. Fails with NotFound when
	// no node exists, IllegalPath when the path is ignored, and
	// TypeMismatch on a directory.
	LoadTextFile(ctx context.Context, path string) (string, error)

	// LoadDirectoryTree returns a deep copy of the subtree rooted at path
	// ("" for the whole tree) with ignored paths filtered out. Mutating
	// the returned tree never affects the store.
	LoadDirectoryTree(ctx context.Context, path string) (*Directory, error)

	// LoadDirectoryChildren returns one level of children as File and
	// ShallowDirectory nodes, without recursing.
	LoadDirectoryChildren(ctx context.Context, path string) ([]Node, error)

	// Stat reports whether a file or a directory lives at path. Fails
	// with NotFound when nothing does.
	Stat(ctx context.Context, path string) (Stats, error)

	// Events returns this instance's private event emitter. Emitters are
	// never shared between instances.
	Events() *fsevent.Emitter
}
