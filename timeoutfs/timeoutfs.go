// Package timeoutfs bounds caller-observed latency for any reactivefs
// implementation. Each call races the wrapped operation against a fixed
// timer; if the timer fires first the call fails with a Timeout error
// while the wrapped operation keeps running unobserved. Side effects of a
// late operation, mutations and events both, still happen. The proxy
// bounds waiting, not resource consumption.
package timeoutfs

import (
	"context"
	"time"

	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fserr"
	"github.com/wix/reactive-fs/fsevent"
)

// FS decorates another implementation with a per-call deadline. The
// deadline applies to calls only; event delivery is passed through
// untouched.
type FS struct {
	inner   reactivefs.FileSystem
	timeout time.Duration
}

var _ reactivefs.FileSystem = (*FS)(nil)

// Wrap builds a deadline-bounded view of inner. The timeout is fixed for
// the proxy's lifetime.
func Wrap(inner reactivefs.FileSystem, timeout time.Duration) *FS {
	return &FS{inner: inner, timeout: timeout}
}

// settle runs op concurrently and waits for its outcome or the deadline,
// whichever settles first. The result channel is buffered so a late
// operation can deliver and exit; it is never cancelled.
func settle[T any](name string, timeout time.Duration, op func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := op()
		ch <- outcome{val: val, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.val, out.err
	case <-timer.C:
		var zero T
		return zero, fserr.Newf(fserr.KindTimeout, "%s timed out after %s", name, timeout)
	}
}

// run adapts settle for operations that produce no value.
func run(name string, timeout time.Duration, op func() error) error {
	_, err := settle(name, timeout, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func (fs *FS) SaveFile(ctx context.Context, path, content string) error {
	return run("saveFile", fs.timeout, func() error {
		return fs.inner.SaveFile(ctx, path, content)
	})
}

func (fs *FS) DeleteFile(ctx context.Context, path string) error {
	return run("deleteFile", fs.timeout, func() error {
		return fs.inner.DeleteFile(ctx, path)
	})
}

func (fs *FS) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	return run("deleteDirectory", fs.timeout, func() error {
		return fs.inner.DeleteDirectory(ctx, path, recursive)
	})
}

func (fs *FS) EnsureDirectory(ctx context.Context, path string) error {
	return run("ensureDirectory", fs.timeout, func() error {
		return fs.inner.EnsureDirectory(ctx, path)
	})
}

func (fs *FS) LoadTextFile(ctx context.Context, path string) (string, error) {
	return settle("loadTextFile", fs.timeout, func() (string, error) {
		return fs.inner.LoadTextFile(ctx, path)
	})
}

func (fs *FS) LoadDirectoryTree(ctx context.Context, path string) (*reactivefs.Directory, error) {
	return settle("loadDirectoryTree", fs.timeout, func() (*reactivefs.Directory, error) {
		return fs.inner.LoadDirectoryTree(ctx, path)
	})
}

func (fs *FS) LoadDirectoryChildren(ctx context.Context, path string) ([]reactivefs.Node, error) {
	return settle("loadDirectoryChildren", fs.timeout, func() ([]reactivefs.Node, error) {
		return fs.inner.LoadDirectoryChildren(ctx, path)
	})
}

func (fs *FS) Stat(ctx context.Context, path string) (reactivefs.Stats, error) {
	return settle("stat", fs.timeout, func() (reactivefs.Stats, error) {
		return fs.inner.Stat(ctx, path)
	})
}

// Events returns the wrapped implementation's emitter; subscriptions are
// not subject to the deadline.
func (fs *FS) Events() *fsevent.Emitter { return fs.inner.Events() }
