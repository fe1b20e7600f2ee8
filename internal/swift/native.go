package swift

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/danmuck/magicctl/internal/observability"
	gooseclient "github.com/go-goose/goose/v5/client"
	gooseerrors "github.com/go-goose/goose/v5/errors"
	"github.com/go-goose/goose/v5/identity"
	gooseswift "github.com/go-goose/goose/v5/swift"
	"github.com/rs/zerolog/log"
)

const listPageSize = 10000

// objectClient is the subset of *gooseswift.Client Native uses.
type objectClient interface {
	List(containerName, prefix, delim, marker string, limit int) ([]gooseswift.ContainerContents, error)
	GetReader(containerName, objectName string) (io.ReadCloser, http.Header, error)
	PutReader(containerName, objectName string, r io.Reader, length int64) error
	DeleteObject(containerName, objectName string) error
	DeleteContainer(containerName string) error
	CreateContainer(containerName string, acl gooseswift.ACL) error
}

// Native talks to swift over HTTP with goose. Account-level container listing
// is not exposed by goose, so it is delegated to lister.
type Native struct {
	client objectClient
	lister ContainerLister
}

// NewNative authenticates with v1 legacy auth against cfg.AuthURL.
func NewNative(cfg config.Swift, lister ContainerLister) *Native {
	creds := &identity.Credentials{
		URL:     cfg.AuthURL,
		User:    cfg.User,
		Secrets: cfg.Key,
	}
	cl := gooseclient.NewClient(creds, identity.AuthLegacy, nil)
	return newNative(gooseswift.New(cl), lister)
}

func newNative(client objectClient, lister ContainerLister) *Native {
	return &Native{client: client, lister: lister}
}

func (n *Native) ListContainers(ctx context.Context, prefix string) ([]string, error) {
	if n.lister == nil {
		return nil, fmt.Errorf("%w: no container lister configured", ErrCommandFailed)
	}
	return n.lister.ListContainers(ctx, prefix)
}

func (n *Native) ListObjects(ctx context.Context, container, prefix string) ([]string, error) {
	contents, err := n.listAll(ctx, container, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(contents))
	for i, c := range contents {
		names[i] = c.Name
	}
	return names, nil
}

func (n *Native) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, _, err := n.client.GetReader(container, object)
	if err != nil {
		return nil, n.wrap("download", container, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, n.wrap("download", container, err)
	}
	observability.RecordStorage("download", nil)
	return data, nil
}

func (n *Native) PutObject(ctx context.Context, container, object string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.client.CreateContainer(container, gooseswift.Private); err != nil {
		return n.wrap("upload", container, err)
	}
	if err := n.client.PutReader(container, object, bytes.NewReader(data), int64(len(data))); err != nil {
		return n.wrap("upload", container, err)
	}
	observability.RecordStorage("upload", nil)
	return nil
}

func (n *Native) DeleteObject(ctx context.Context, container, object string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.client.DeleteObject(container, object); err != nil {
		return n.wrap("delete", container, err)
	}
	observability.RecordStorage("delete", nil)
	return nil
}

// DeleteContainer empties the container and removes it.
func (n *Native) DeleteContainer(ctx context.Context, container string) error {
	contents, err := n.listAll(ctx, container, "")
	if err != nil {
		return err
	}
	for _, c := range contents {
		if err := n.DeleteObject(ctx, container, c.Name); err != nil {
			return err
		}
	}
	if err := n.client.DeleteContainer(container); err != nil {
		return n.wrap("delete", container, err)
	}
	observability.RecordStorage("delete", nil)
	return nil
}

// CopyContainer streams every object of src into dst.
func (n *Native) CopyContainer(ctx context.Context, src, dst string) error {
	contents, err := n.listAll(ctx, src, "")
	if err != nil {
		return err
	}
	if err := n.client.CreateContainer(dst, gooseswift.Private); err != nil {
		return n.wrap("upload", dst, err)
	}
	for _, c := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.copyObject(src, dst, c); err != nil {
			return err
		}
	}
	log.Debug().Str("container", src).Str("to", dst).Int("objects", len(contents)).Msg("container copied")
	return nil
}

func (n *Native) copyObject(src, dst string, c gooseswift.ContainerContents) error {
	r, _, err := n.client.GetReader(src, c.Name)
	if err != nil {
		return n.wrap("download", src, err)
	}
	defer r.Close()
	if err := n.client.PutReader(dst, c.Name, r, int64(c.LengthBytes)); err != nil {
		return n.wrap("upload", dst, err)
	}
	observability.RecordStorage("copy", nil)
	return nil
}

func (n *Native) listAll(ctx context.Context, container, prefix string) ([]gooseswift.ContainerContents, error) {
	var (
		out    []gooseswift.ContainerContents
		marker string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := n.client.List(container, prefix, "", marker, listPageSize)
		if err != nil {
			return nil, n.wrap("list", container, err)
		}
		out = append(out, page...)
		if len(page) < listPageSize {
			observability.RecordStorage("list", nil)
			return out, nil
		}
		marker = page[len(page)-1].Name
	}
}

func (n *Native) wrap(op, container string, err error) error {
	if gooseerrors.IsNotFound(err) {
		err = fmt.Errorf("%w: %s: %v", ErrNotFound, container, err)
	} else {
		err = fmt.Errorf("%w: %s %s: %v", ErrCommandFailed, op, container, err)
	}
	observability.RecordStorage(op, err)
	return err
}
