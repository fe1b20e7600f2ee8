package swift

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("swift: not found")
	ErrCommandFailed = errors.New("swift: command failed")
)

// Backend is the set of object-storage operations the hooks and scripts use.
type Backend interface {
	ListContainers(ctx context.Context, prefix string) ([]string, error)
	ListObjects(ctx context.Context, container, prefix string) ([]string, error)
	GetObject(ctx context.Context, container, object string) ([]byte, error)
	PutObject(ctx context.Context, container, object string, data []byte) error
	DeleteObject(ctx context.Context, container, object string) error
	DeleteContainer(ctx context.Context, container string) error
	CopyContainer(ctx context.Context, src, dst string) error
}

// ContainerLister lists account containers.
type ContainerLister interface {
	ListContainers(ctx context.Context, prefix string) ([]string, error)
}
