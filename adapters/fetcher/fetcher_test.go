package fetcher_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/cache/disk"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func readSource(t *testing.T, fr *core.FetchResult) []byte {
	t.Helper()
	r, err := fr.DataSource.Open()
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return b
}

func newLoader(t *testing.T, download core.DiskCache, factories ...core.FetcherFactory) *core.Loader {
	t.Helper()
	cfg := config.Default()
	cfg.RetryDelay = 0
	reg := core.NewRegistryBuilder().AddFetcher(factories...).Build()
	return core.New(cfg, reg, core.Components{DownloadCache: download})
}

func fetch(t *testing.T, l *core.Loader, req *core.ImageRequest) (*core.FetchResult, error) {
	t.Helper()
	f, err := l.Registry().NewFetcher(l, req)
	if err != nil {
		return nil, err
	}
	return f.Fetch(context.Background())
}

func TestFile_AbsolutePathAndScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o644))
	l := newLoader(t, nil, &fetcher.File{})

	for _, uri := range []string{path, "file://" + path} {
		fr, err := fetch(t, l, core.NewRequest(uri).Build())
		require.NoError(t, err, uri)
		assert.Equal(t, core.DataFromLocal, fr.DataSource.DataFrom())
		assert.Equal(t, core.MimePNG, fr.MimeType)
	}

	_, err := fetch(t, l, core.NewRequest(filepath.Join(dir, "missing.png")).Build())
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryFetch))

	_, err = fetch(t, l, core.NewRequest("relative/path.png").Build())
	assert.True(t, errors.Is(err, apperrors.ErrNoFetcher))
}

func TestData_Base64AndPlain(t *testing.T) {
	l := newLoader(t, nil, &fetcher.Data{})
	fr, err := fetch(t, l, core.NewRequest("data:image/png;base64,iVBORw0KGgo=").Build())
	require.NoError(t, err)
	assert.Equal(t, core.MimePNG, fr.MimeType)
	assert.Equal(t, core.DataFromMemory, fr.DataSource.DataFrom())
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), readSource(t, fr))

	fr, err = fetch(t, l, core.NewRequest("data:,hello%20world").Build())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(readSource(t, fr)))

	_, err = fetch(t, l, core.NewRequest("data:image/png;base64").Build())
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
}

func TestHTTP_StatusHandling(t *testing.T) {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "v", r.Header.Get("X-Test"))
			assert.Equal(t, "image-loader", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := newLoader(t, nil, fetcher.NewHTTP(config.Default()))

	fr, err := fetch(t, l, core.NewRequest(srv.URL+"/ok").HTTPHeader("X-Test", "v").Build())
	require.NoError(t, err)
	assert.Equal(t, core.DataFromNetwork, fr.DataSource.DataFrom())
	assert.Equal(t, body, readSource(t, fr))

	_, err = fetch(t, l, core.NewRequest(srv.URL+"/boom").Build())
	assert.True(t, apperrors.IsRetryable(err))

	_, err = fetch(t, l, core.NewRequest(srv.URL+"/missing").Build())
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryable(err))
}

func TestHTTP_DownloadCacheAndDepthLocal(t *testing.T) {
	var hits atomic.Int32
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cache, err := disk.Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	l := newLoader(t, cache, fetcher.NewHTTP(config.Default()))
	uri := srv.URL + "/img"

	_, err = fetch(t, l, core.NewRequest(uri).Depth(core.DepthLocal).Build())
	assert.True(t, errors.Is(err, apperrors.ErrDepthLocal))
	assert.Zero(t, hits.Load())

	fr, err := fetch(t, l, core.NewRequest(uri).Build())
	require.NoError(t, err)
	assert.Equal(t, core.DataFromNetwork, fr.DataSource.DataFrom())

	fr, err = fetch(t, l, core.NewRequest(uri).Depth(core.DepthLocal).Build())
	require.NoError(t, err)
	assert.Equal(t, core.DataFromDownloadCache, fr.DataSource.DataFrom())
	assert.Equal(t, core.MimePNG, fr.MimeType)
	require.NoError(t, cache.Clear())
	assert.Equal(t, body, readSource(t, fr), "hit survives the entry being trimmed")
	assert.EqualValues(t, 1, hits.Load())
}

func TestHTTP_UnreadableDownloadEntryRefetched(t *testing.T) {
	var hits atomic.Int32
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cache, err := disk.Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	uri := srv.URL + "/img"
	ed, err := cache.Edit(uri)
	require.NoError(t, err)
	require.NoError(t, ed.Commit())

	l := newLoader(t, cache, fetcher.NewHTTP(config.Default()))
	fr, err := fetch(t, l, core.NewRequest(uri).Build())
	require.NoError(t, err)
	assert.Equal(t, core.DataFromNetwork, fr.DataSource.DataFrom())
	assert.Equal(t, body, readSource(t, fr))
	assert.EqualValues(t, 1, hits.Load())

	fr, err = fetch(t, l, core.NewRequest(uri).Build())
	require.NoError(t, err)
	assert.Equal(t, core.DataFromDownloadCache, fr.DataSource.DataFrom())
	assert.EqualValues(t, 1, hits.Load())
}

func TestHTTP_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.MaxImageBytes = 10
	l := newLoader(t, nil, fetcher.NewHTTP(cfg))
	_, err := fetch(t, l, core.NewRequest(srv.URL).Build())
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryFetch))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, string, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, "", errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/png", nil
}

type fakeGCS struct{ data []byte }

func (f *fakeGCS) OpenObject(context.Context, string, string) (io.ReadCloser, string, error) {
	return io.NopCloser(bytes.NewReader(f.data)), "", nil
}

func TestObjectStores(t *testing.T) {
	body := pngBytes(t)
	s3f, err := fetcher.NewS3(&fakeS3{objects: map[string][]byte{"bkt/dir/a.png": body}}, 0)
	require.NoError(t, err)
	gcs, err := fetcher.NewGCS(&fakeGCS{data: body}, 0)
	require.NoError(t, err)
	l := newLoader(t, nil, s3f, gcs)

	fr, err := fetch(t, l, core.NewRequest("s3://bkt/dir/a.png").Build())
	require.NoError(t, err)
	assert.Equal(t, body, readSource(t, fr))

	fr, err = fetch(t, l, core.NewRequest("gs://bkt/obj").Build())
	require.NoError(t, err)
	assert.Equal(t, core.MimePNG, fr.MimeType, "sniffed when no content type")

	_, err = fetch(t, l, core.NewRequest("s3://bkt/dir/a.png").Depth(core.DepthLocal).Build())
	assert.True(t, errors.Is(err, apperrors.ErrDepthLocal))

	_, err = fetch(t, l, core.NewRequest("s3://bucket-only").Build())
	assert.True(t, errors.Is(err, apperrors.ErrNoFetcher))

	_, err = fetcher.NewS3(nil, 0)
	assert.Error(t, err)
}
