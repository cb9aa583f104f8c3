package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// File serves file:// URIs and absolute paths.
type File struct{}

func (*File) Key() string { return "File" }

func (*File) Create(_ *core.Loader, req *core.ImageRequest) core.Fetcher {
	uri := req.URI()
	var path string
	switch {
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil || u.Path == "" {
			return nil
		}
		path = u.Path
	case filepath.IsAbs(uri):
		path = uri
	default:
		return nil
	}
	return &fileFetcher{path: filepath.Clean(path)}
}

type fileFetcher struct {
	path string
}

func (f *fileFetcher) Fetch(ctx context.Context) (*core.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryFetch, "file.fetch", fmt.Errorf("not found: %s", f.path))
		}
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "file.fetch.stat", err)
	}
	if info.IsDir() {
		return nil, apperrors.New(apperrors.CategoryFetch, "file.fetch", fmt.Errorf("is a directory: %s", f.path))
	}
	ds := core.NewFileDataSource(f.path, core.DataFromLocal)
	return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, utils.MimeFromExtension(f.path))}, nil
}

var _ core.FetcherFactory = (*File)(nil)
