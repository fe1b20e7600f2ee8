package swift

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"testing"

	"github.com/danmuck/magicctl/internal/testutil/testlog"
	gooseswift "github.com/go-goose/goose/v5/swift"
)

type fakeObjectClient struct {
	objects map[string]map[string][]byte
	created []string
	failGet bool
}

func (c *fakeObjectClient) List(container, prefix, _, marker string, limit int) ([]gooseswift.ContainerContents, error) {
	var names []string
	for name := range c.objects[container] {
		if name > marker && (prefix == "" || bytes.HasPrefix([]byte(name), []byte(prefix))) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]gooseswift.ContainerContents, len(names))
	for i, name := range names {
		out[i] = gooseswift.ContainerContents{Name: name, LengthBytes: len(c.objects[container][name])}
	}
	return out, nil
}

func (c *fakeObjectClient) GetReader(container, object string) (io.ReadCloser, http.Header, error) {
	data, ok := c.objects[container][object]
	if !ok || c.failGet {
		return nil, nil, fmt.Errorf("get %s/%s failed", container, object)
	}
	return io.NopCloser(bytes.NewReader(data)), http.Header{}, nil
}

func (c *fakeObjectClient) PutReader(container, object string, r io.Reader, length int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != length {
		return fmt.Errorf("length mismatch: %d != %d", len(data), length)
	}
	if c.objects[container] == nil {
		c.objects[container] = map[string][]byte{}
	}
	c.objects[container][object] = data
	return nil
}

func (c *fakeObjectClient) DeleteObject(container, object string) error {
	delete(c.objects[container], object)
	return nil
}

func (c *fakeObjectClient) DeleteContainer(container string) error {
	if len(c.objects[container]) != 0 {
		return errors.New("container not empty")
	}
	delete(c.objects, container)
	return nil
}

func (c *fakeObjectClient) CreateContainer(container string, _ gooseswift.ACL) error {
	c.created = append(c.created, container)
	if c.objects[container] == nil {
		c.objects[container] = map[string][]byte{}
	}
	return nil
}

type staticLister []string

func (l staticLister) ListContainers(context.Context, string) ([]string, error) {
	return l, nil
}

func TestNativeCopyAndDelete(t *testing.T) {
	testlog.Start(t)
	client := &fakeObjectClient{objects: map[string]map[string][]byte{
		"miraheze-oldwiki-local-public": {"a/ab/Logo.png": []byte("png"), "sitemaps/sitemap.xml": []byte("<xml/>")},
	}}
	n := newNative(client, staticLister{"miraheze-oldwiki-local-public"})
	ctx := context.Background()

	if err := n.CopyContainer(ctx, "miraheze-oldwiki-local-public", "miraheze-newwiki-local-public"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := n.ListObjects(ctx, "miraheze-newwiki-local-public", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a/ab/Logo.png", "sitemaps/sitemap.xml"}) {
		t.Fatalf("unexpected copied objects: %v", got)
	}
	sitemaps, err := n.ListObjects(ctx, "miraheze-newwiki-local-public", SitemapsPrefix)
	if err != nil || len(sitemaps) != 1 {
		t.Fatalf("prefix listing: %v %v", sitemaps, err)
	}

	if err := n.DeleteContainer(ctx, "miraheze-oldwiki-local-public"); err != nil {
		t.Fatalf("delete container: %v", err)
	}
	if _, ok := client.objects["miraheze-oldwiki-local-public"]; ok {
		t.Fatalf("container should be gone")
	}

	containers, err := n.ListContainers(ctx, "")
	if err != nil || len(containers) != 1 {
		t.Fatalf("delegated listing: %v %v", containers, err)
	}
}

func TestNativeObjectRoundTrip(t *testing.T) {
	testlog.Start(t)
	client := &fakeObjectClient{objects: map[string]map[string][]byte{}}
	n := newNative(client, nil)
	ctx := context.Background()

	if err := n.PutObject(ctx, "miraheze-createwiki-persistent-model", PersistentModelObject, []byte("model")); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := n.GetObject(ctx, "miraheze-createwiki-persistent-model", PersistentModelObject)
	if err != nil || string(data) != "model" {
		t.Fatalf("get: %q %v", data, err)
	}
	if _, err := n.ListContainers(ctx, ""); !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected lister error, got %v", err)
	}

	client.failGet = true
	if _, err := n.GetObject(ctx, "miraheze-createwiki-persistent-model", PersistentModelObject); !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("expected ErrCommandFailed, got %v", err)
	}
}

func TestNativeHonoursCancelledContext(t *testing.T) {
	testlog.Start(t)
	n := newNative(&fakeObjectClient{objects: map[string]map[string][]byte{}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.DeleteObject(ctx, "c", "o"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
