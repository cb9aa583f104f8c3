package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// HTTP serves http:// and https:// URIs. Responses are stored in the loader's
// download cache when one is configured and the request's download cache
// policy allows it.
type HTTP struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

// NewHTTP builds an HTTP fetcher factory from cfg.
func NewHTTP(cfg config.Config) *HTTP {
	timeout := cfg.HTTP.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTP{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: cfg.HTTP.UserAgent,
		MaxBytes:  cfg.MaxImageBytes,
	}
}

func (*HTTP) Key() string { return "Http" }

func (h *HTTP) Create(l *core.Loader, req *core.ImageRequest) core.Fetcher {
	switch schemeOf(req.URI()) {
	case "http", "https":
		return &httpFetcher{factory: h, loader: l, req: req}
	}
	return nil
}

type httpFetcher struct {
	factory *HTTP
	loader  *core.Loader
	req     *core.ImageRequest
}

func (f *httpFetcher) Fetch(ctx context.Context) (*core.FetchResult, error) {
	req := f.req
	policy := req.DownloadCachePolicy()
	cache, hasCache := f.loader.DownloadCache()
	if !hasCache || (!policy.ReadEnabled() && !policy.WriteEnabled()) {
		if err := checkNetworkDepth(req); err != nil {
			return nil, err
		}
		data, mime, err := f.download(ctx)
		if err != nil {
			return nil, err
		}
		ds := core.NewBytesDataSource(data, core.DataFromNetwork)
		return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, mime)}, nil
	}

	key := req.URI()
	unlock, err := cache.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if policy.ReadEnabled() {
		if data, ok := f.cached(ctx, cache, key); ok {
			f.loader.Metrics().RecordCacheLookup("download", true)
			ds := core.NewBytesDataSource(data, core.DataFromDownloadCache)
			return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, "")}, nil
		}
		f.loader.Metrics().RecordCacheLookup("download", false)
	}
	if err := checkNetworkDepth(req); err != nil {
		return nil, err
	}

	data, mime, err := f.download(ctx)
	if err != nil {
		return nil, err
	}
	ds := core.NewBytesDataSource(data, core.DataFromNetwork)
	if policy.WriteEnabled() {
		f.store(ctx, cache, key, data)
	}
	return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, mime)}, nil
}

// cached reads the download cache entry for key into memory while the key
// lock is held, so a later trim cannot pull the file from under the decoder.
// An unreadable entry is removed and reported as a miss.
func (f *httpFetcher) cached(ctx context.Context, cache core.DiskCache, key string) ([]byte, bool) {
	snap, ok := cache.Get(key)
	if !ok {
		return nil, false
	}
	r, err := snap.Open()
	if err == nil {
		var data []byte
		data, err = readAll(ctx, "download_cache.read", r, f.factory.MaxBytes)
		r.Close()
		if err == nil {
			return data, true
		}
	}
	if ctx.Err() == nil {
		f.loader.Logger().Warn("download_cache.read", "uri", key, "error", err.Error())
		cache.Remove(key)
	}
	return nil, false
}

func (f *httpFetcher) store(ctx context.Context, cache core.DiskCache, key string, data []byte) {
	ed, err := cache.Edit(key)
	if err != nil || ed == nil {
		return
	}
	if _, err := io.Copy(ed, bytes.NewReader(data)); err != nil || ctx.Err() != nil {
		_ = ed.Abort()
		return
	}
	if err := ed.Commit(); err != nil {
		f.loader.Logger().Warn("download_cache.commit", "uri", key, "error", err.Error())
	}
}

func (f *httpFetcher) download(ctx context.Context) ([]byte, string, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.req.URI(), nil)
	if err != nil {
		return nil, "", apperrors.New(apperrors.CategoryInput, "http.request", err)
	}
	if ua := f.factory.UserAgent; ua != "" {
		hreq.Header.Set("User-Agent", ua)
	}
	for k, v := range f.req.HTTPHeaders() {
		hreq.Header.Set(k, v)
	}

	client := f.factory.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "", apperrors.Transient("http.fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, "", apperrors.Transient("http.fetch", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, "", apperrors.New(apperrors.CategoryFetch, "http.fetch", fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := readAll(ctx, "http.read", resp.Body, f.factory.MaxBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// checkNetworkDepth fails requests that must not touch the network.
func checkNetworkDepth(req *core.ImageRequest) error {
	if req.Depth() != core.DepthNetwork {
		return apperrors.New(apperrors.CategoryDepth, "fetch", fmt.Errorf("%w: %q", apperrors.ErrDepthLocal, req.URI()))
	}
	return nil
}

var _ core.FetcherFactory = (*HTTP)(nil)
