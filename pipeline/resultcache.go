package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// resultMeta is the JSON side-car stored next to every cached result.
type resultMeta struct {
	core.ImageInfo
	TransformedList []string          `json:"transformedList"`
	Extras          map[string]string `json:"extras,omitempty"`
}

// ResultCacheDecodeInterceptor persists transformed bitmaps to the result
// disk cache and serves later requests for the same cache key from it. Each
// result is a data entry written by the loader's ResultCodec plus a JSON meta
// entry; both must be present for a hit.
type ResultCacheDecodeInterceptor struct{}

func (*ResultCacheDecodeInterceptor) Key() string     { return "" }
func (*ResultCacheDecodeInterceptor) SortWeight() int { return WeightResultCache }

func (i *ResultCacheDecodeInterceptor) Intercept(ctx context.Context, chain core.DecodeChain) (*core.BitmapDecodeResult, error) {
	l := chain.Loader()
	rc := chain.RequestContext()
	policy := rc.Request().ResultCachePolicy()
	cache, ok := l.ResultCache()
	codec := l.ResultCodec()
	if !ok || codec == nil || (!policy.ReadEnabled() && !policy.WriteEnabled()) {
		return chain.Proceed(ctx)
	}

	unlock, err := cache.Lock(ctx, rc.ResultCacheLockKey())
	if err != nil {
		return nil, err
	}
	defer unlock()

	if policy.ReadEnabled() {
		var res *core.BitmapDecodeResult
		err := l.Stage(ctx, "result_cache.read", rc, func(context.Context) error {
			var rerr error
			res, rerr = i.read(l, rc, cache, codec)
			return rerr
		})
		switch {
		case err != nil:
			l.Logger().Warn("result_cache.corrupt", "key", rc.CacheKey(), "error", err.Error())
			removeResult(cache, rc)
		case res != nil:
			l.Metrics().RecordCacheLookup("result", true)
			return res, nil
		}
		l.Metrics().RecordCacheLookup("result", false)
	}

	res, err := chain.Proceed(ctx)
	if err != nil {
		return nil, err
	}
	if policy.WriteEnabled() && len(res.TransformedList) > 0 {
		werr := l.Stage(ctx, "result_cache.write", rc, func(ctx context.Context) error {
			return i.write(ctx, rc, cache, codec, res)
		})
		if werr != nil && !apperrors.IsCanceled(werr) {
			l.Logger().Warn("result_cache.write_failed", "key", rc.CacheKey(), "error", werr.Error())
		}
	}
	return res, nil
}

// read returns (nil, nil) on a clean miss and an error when the entry exists
// but cannot be used.
func (i *ResultCacheDecodeInterceptor) read(l *core.Loader, rc *core.RequestContext, cache core.DiskCache, codec core.ResultCodec) (*core.BitmapDecodeResult, error) {
	dataSnap, okData := cache.Get(rc.ResultCacheDataKey())
	metaSnap, okMeta := cache.Get(rc.ResultCacheMetaKey())
	if !okData && !okMeta {
		return nil, nil
	}
	if !okData || !okMeta {
		return nil, fmt.Errorf("%w: incomplete entry", apperrors.ErrCacheCorrupt)
	}

	var meta resultMeta
	if err := readJSON(metaSnap, &meta); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", apperrors.ErrCacheCorrupt, err)
	}

	size, err := withReader(dataSnap, codec.DecodeConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: data config: %v", apperrors.ErrCacheCorrupt, err)
	}

	req := rc.Request()
	cfg := req.BitmapConfig()
	disallow := req.DisallowReuseBitmap()
	opts := &core.DecodeOptions{SampleSize: 1, Config: cfg}
	bitmap, err := l.DecodeReusing(opts, size, codec.MimeType(), disallow, func(opts *core.DecodeOptions) (*core.Bitmap, error) {
		return withReader(dataSnap, func(r io.Reader) (*core.Bitmap, error) {
			return codec.Decode(r, opts, func(w, h int) *core.Bitmap {
				return l.BitmapPool().GetOrCreate(w, h, cfg, disallow)
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", apperrors.ErrCacheCorrupt, err)
	}

	return &core.BitmapDecodeResult{
		Bitmap:          bitmap,
		ImageInfo:       meta.ImageInfo,
		DataFrom:        core.DataFromResultCache,
		TransformedList: meta.TransformedList,
		Extras:          meta.Extras,
	}, nil
}

func (i *ResultCacheDecodeInterceptor) write(ctx context.Context, rc *core.RequestContext, cache core.DiskCache, codec core.ResultCodec, res *core.BitmapDecodeResult) error {
	dataEd, err := cache.Edit(rc.ResultCacheDataKey())
	if err != nil || dataEd == nil {
		return err
	}
	metaEd, err := cache.Edit(rc.ResultCacheMetaKey())
	if err != nil || metaEd == nil {
		_ = dataEd.Abort()
		return err
	}
	abort := func(err error) error {
		_ = dataEd.Abort()
		_ = metaEd.Abort()
		return err
	}

	if err := codec.Encode(dataEd, res.Bitmap); err != nil {
		return abort(apperrors.Wrap(apperrors.CategoryEncode, "result_cache.encode", err))
	}
	meta := resultMeta{ImageInfo: res.ImageInfo, TransformedList: res.TransformedList, Extras: res.Extras}
	if err := json.NewEncoder(metaEd).Encode(meta); err != nil {
		return abort(apperrors.Wrap(apperrors.CategoryCache, "result_cache.meta", err))
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	if err := dataEd.Commit(); err != nil {
		_ = metaEd.Abort()
		return apperrors.Wrap(apperrors.CategoryCache, "result_cache.commit", err)
	}
	if err := metaEd.Commit(); err != nil {
		cache.Remove(rc.ResultCacheDataKey())
		return apperrors.Wrap(apperrors.CategoryCache, "result_cache.commit", err)
	}
	return nil
}

func removeResult(cache core.DiskCache, rc *core.RequestContext) {
	cache.Remove(rc.ResultCacheDataKey())
	cache.Remove(rc.ResultCacheMetaKey())
}

func readJSON(snap core.DiskSnapshot, v interface{}) error {
	_, err := withReader(snap, func(r io.Reader) (struct{}, error) {
		return struct{}{}, json.NewDecoder(r).Decode(v)
	})
	return err
}

func withReader[T any](snap core.DiskSnapshot, fn func(io.Reader) (T, error)) (T, error) {
	var zero T
	rc, err := snap.Open()
	if err != nil {
		return zero, err
	}
	defer rc.Close()
	return fn(rc)
}

var _ core.DecodeInterceptor = (*ResultCacheDecodeInterceptor)(nil)
