// Package swifttest provides an in-memory swift backend for tests.
package swifttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/magicctl/internal/swift"
)

// Backend keeps containers as maps of object name to bytes.
type Backend struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte

	// FailDelete makes DeleteContainer fail for the named containers.
	FailDelete map[string]bool
	// DropOnCopy skips the named objects when copying, to simulate a partial copy.
	DropOnCopy map[string]bool
	Calls      []string
}

func New() *Backend {
	return &Backend{containers: map[string]map[string][]byte{}}
}

// Put seeds an object.
func (b *Backend) Put(container, object string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensure(container)[object] = data
}

func (b *Backend) Has(container string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.containers[container]
	return ok
}

func (b *Backend) Containers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.names("")
}

func (b *Backend) ListContainers(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "list "+prefix)
	return b.names(prefix), nil
}

func (b *Backend) ListObjects(_ context.Context, container, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	objects, ok := b.containers[container]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swift.ErrNotFound, container)
	}
	var out []string
	for name := range objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) GetObject(_ context.Context, container, object string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.containers[container][object]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", swift.ErrNotFound, container, object)
	}
	return append([]byte(nil), data...), nil
}

func (b *Backend) PutObject(_ context.Context, container, object string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "put "+container+"/"+object)
	b.ensure(container)[object] = append([]byte(nil), data...)
	return nil
}

func (b *Backend) DeleteObject(_ context.Context, container, object string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "delete "+container+"/"+object)
	if _, ok := b.containers[container][object]; !ok {
		return fmt.Errorf("%w: %s/%s", swift.ErrNotFound, container, object)
	}
	delete(b.containers[container], object)
	return nil
}

func (b *Backend) DeleteContainer(_ context.Context, container string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "delete "+container)
	if b.FailDelete[container] {
		return fmt.Errorf("%w: delete %s", swift.ErrCommandFailed, container)
	}
	delete(b.containers, container)
	return nil
}

func (b *Backend) CopyContainer(_ context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "copy "+src+" "+dst)
	objects, ok := b.containers[src]
	if !ok {
		return fmt.Errorf("%w: %s", swift.ErrNotFound, src)
	}
	target := b.ensure(dst)
	for name, data := range objects {
		if b.DropOnCopy[name] {
			continue
		}
		target[name] = append([]byte(nil), data...)
	}
	return nil
}

func (b *Backend) ensure(container string) map[string][]byte {
	objects, ok := b.containers[container]
	if !ok {
		objects = map[string][]byte{}
		b.containers[container] = objects
	}
	return objects
}

func (b *Backend) names(prefix string) []string {
	var out []string
	for name := range b.containers {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
