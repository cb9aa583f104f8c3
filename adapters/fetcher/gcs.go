package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// GCSOpener opens one Cloud Storage object for reading.
type GCSOpener interface {
	OpenObject(ctx context.Context, bucket, object string) (body io.ReadCloser, contentType string, err error)
}

// GCS serves gs://bucket/object URIs.
type GCS struct {
	opener   GCSOpener
	maxBytes int64
}

// NewGCS creates a GCS fetcher factory. opener must not be nil.
func NewGCS(opener GCSOpener, maxBytes int64) (*GCS, error) {
	if opener == nil {
		return nil, fmt.Errorf("gcs fetcher: opener must not be nil")
	}
	return &GCS{opener: opener, maxBytes: maxBytes}, nil
}

func (*GCS) Key() string { return "GCS" }

func (g *GCS) Create(_ *core.Loader, req *core.ImageRequest) core.Fetcher {
	bucket, object, ok := splitBucketPath(req.URI(), "gs")
	if !ok {
		return nil
	}
	return &gcsFetcher{factory: g, req: req, bucket: bucket, object: object}
}

type gcsFetcher struct {
	factory        *GCS
	req            *core.ImageRequest
	bucket, object string
}

func (f *gcsFetcher) Fetch(ctx context.Context) (*core.FetchResult, error) {
	if err := checkNetworkDepth(f.req); err != nil {
		return nil, err
	}
	body, contentType, err := f.factory.opener.OpenObject(ctx, f.bucket, f.object)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, apperrors.New(apperrors.CategoryFetch, "gcs.open", err)
		}
		return nil, apperrors.Transient("gcs.open", err)
	}
	defer body.Close()
	data, err := readAll(ctx, "gcs.read", body, f.factory.maxBytes)
	if err != nil {
		return nil, err
	}
	ds := core.NewBytesDataSource(data, core.DataFromNetwork)
	return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, contentType)}, nil
}

// ── cloud.google.com/go/storage client ───────────────────────────────────────

// StorageOpener adapts a *storage.Client to GCSOpener.
type StorageOpener struct {
	client *storage.Client
}

// NewStorageOpener connects with the default application credentials.
func NewStorageOpener(ctx context.Context) (*StorageOpener, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "gcs.client", err)
	}
	return &StorageOpener{client: client}, nil
}

func (o *StorageOpener) OpenObject(ctx context.Context, bucket, object string) (io.ReadCloser, string, error) {
	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", err
	}
	return r, r.Attrs.ContentType, nil
}

// Close releases the underlying client.
func (o *StorageOpener) Close() error { return o.client.Close() }

var (
	_ core.FetcherFactory = (*GCS)(nil)
	_ GCSOpener           = (*StorageOpener)(nil)
)
