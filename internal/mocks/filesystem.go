package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	reactivefs "github.com/wix/reactive-fs"
	"github.com/wix/reactive-fs/fsevent"
)

// MockFileSystem implements reactivefs.FileSystem for testing across
// packages. Operations are stubbed with testify expectations; Events is
// backed by a real emitter so subscribers work without stubbing and tests
// can Emit to simulate backend notifications.
type MockFileSystem struct {
	mock.Mock
	emitter *fsevent.Emitter
}

func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{emitter: fsevent.NewEmitter()}
}

func (m *MockFileSystem) SaveFile(ctx context.Context, path, content string) error {
	args := m.Called(ctx, path, content)
	return args.Error(0)
}

func (m *MockFileSystem) DeleteFile(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockFileSystem) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	args := m.Called(ctx, path, recursive)
	return args.Error(0)
}

func (m *MockFileSystem) EnsureDirectory(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockFileSystem) LoadTextFile(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockFileSystem) LoadDirectoryTree(ctx context.Context, path string) (*reactivefs.Directory, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reactivefs.Directory), args.Error(1)
}

func (m *MockFileSystem) LoadDirectoryChildren(ctx context.Context, path string) ([]reactivefs.Node, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reactivefs.Node), args.Error(1)
}

func (m *MockFileSystem) Stat(ctx context.Context, path string) (reactivefs.Stats, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return reactivefs.Stats{}, args.Error(1)
	}
	return args.Get(0).(reactivefs.Stats), args.Error(1)
}

func (m *MockFileSystem) Events() *fsevent.Emitter {
	return m.emitter
}

var _ reactivefs.FileSystem = (*MockFileSystem)(nil)
