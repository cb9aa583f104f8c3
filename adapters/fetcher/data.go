package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Data serves RFC 2397 data: URIs.
type Data struct{}

func (*Data) Key() string { return "Data" }

func (*Data) Create(_ *core.Loader, req *core.ImageRequest) core.Fetcher {
	if schemeOf(req.URI()) != "data" {
		return nil
	}
	return &dataFetcher{uri: req.URI()}
}

type dataFetcher struct {
	uri string
}

func (f *dataFetcher) Fetch(ctx context.Context) (*core.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mime, data, err := parseDataURI(f.uri)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "data.fetch", err)
	}
	ds := core.NewBytesDataSource(data, core.DataFromMemory)
	return &core.FetchResult{DataSource: ds, MimeType: detectMime(ds, mime)}, nil
}

// parseDataURI splits "data:[<mediatype>][;base64],<data>".
func parseDataURI(uri string) (string, []byte, error) {
	rest := uri[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data uri")
	}
	header, payload := rest[:comma], rest[comma+1:]
	params := strings.Split(header, ";")
	mime := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
				return "", nil, fmt.Errorf("data uri base64: %w", err)
			}
		}
		return mime, data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data uri escape: %w", err)
	}
	return mime, []byte(s), nil
}

var _ core.FetcherFactory = (*Data)(nil)
