// Package fetcher provides FetcherFactory implementations by URI scheme:
// local files, http(s), data URIs, s3:// and gs://.
package fetcher

import (
	"context"
	"io"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// Defaults returns the factories that need no external client, in matching
// order.
func Defaults(http *HTTP) []core.FetcherFactory {
	return []core.FetcherFactory{&File{}, &Data{}, http}
}

// schemeOf returns the lower-cased scheme of uri, or "".
func schemeOf(uri string) string {
	i := strings.Index(uri, ":")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(uri[:i])
}

// splitBucketPath parses "scheme://bucket/path/to/object".
func splitBucketPath(uri, scheme string) (bucket, key string, ok bool) {
	rest := strings.TrimPrefix(uri, scheme+"://")
	if rest == uri {
		return "", "", false
	}
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// detectMime returns hint when it names an image type, else sniffs the
// leading bytes of ds.
func detectMime(ds core.DataSource, hint string) string {
	if strings.HasPrefix(hint, "image/") {
		return strings.TrimSpace(strings.SplitN(hint, ";", 2)[0])
	}
	r, err := ds.Open()
	if err != nil {
		return ""
	}
	defer r.Close()
	head := make([]byte, utils.SniffLen)
	n, _ := io.ReadFull(r, head)
	return utils.DetectMimeType(head[:n])
}

// readAll drains r into memory, enforcing maxBytes when positive. Reading
// stops early once ctx ends.
func readAll(ctx context.Context, op string, r io.Reader, maxBytes int64) ([]byte, error) {
	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: r, Max: maxBytes}, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, op, err)
	}
	data := append([]byte(nil), buf.Bytes()...)
	utils.ReleaseBuffer(buf)
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryFetch, op, apperrors.ErrEmptyInput)
	}
	return data, nil
}
