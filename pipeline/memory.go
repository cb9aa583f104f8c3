package pipeline

import (
	"context"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// MemoryCacheRequestInterceptor serves requests from the memory cache and
// stores freshly decoded bitmaps in it. Work on one cache key is serialised,
// so concurrent identical requests decode once.
type MemoryCacheRequestInterceptor struct{}

func (*MemoryCacheRequestInterceptor) Key() string     { return "" }
func (*MemoryCacheRequestInterceptor) SortWeight() int { return WeightMemoryCache }

func (*MemoryCacheRequestInterceptor) Intercept(ctx context.Context, chain core.RequestChain) (*core.ImageData, error) {
	l := chain.Loader()
	rc := chain.RequestContext()
	req := chain.Request()
	policy := req.MemoryCachePolicy()

	if !policy.ReadEnabled() && !policy.WriteEnabled() {
		if req.Depth() == core.DepthMemory {
			return nil, apperrors.New(apperrors.CategoryDepth, "memory_cache", apperrors.ErrDepthMemory)
		}
		return chain.Proceed(ctx, req)
	}

	cache := l.MemoryCache()
	key := rc.MemoryCacheKey()
	unlock, err := cache.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if policy.ReadEnabled() {
		if data, ok := readMemory(cache, key); ok {
			l.Metrics().RecordCacheLookup("memory", true)
			rc.SetState(core.StateMemoryCacheHit)
			return data, nil
		}
		l.Metrics().RecordCacheLookup("memory", false)
	}

	if req.Depth() == core.DepthMemory {
		return nil, apperrors.New(apperrors.CategoryDepth, "memory_cache", apperrors.ErrDepthMemory)
	}

	data, err := chain.Proceed(ctx, req)
	if err != nil {
		return nil, err
	}
	if policy.WriteEnabled() && data.CountBitmap == nil && ctx.Err() == nil {
		cb := core.NewCountBitmap(data.Bitmap, key, l.BitmapPool(), l.Logger(), req.DisallowReuseBitmap())
		cb.SetPending(true)
		entry := &core.MemoryCacheEntry{
			CountBitmap:     cb,
			ImageInfo:       data.ImageInfo,
			TransformedList: data.TransformedList,
			Extras:          data.Extras,
		}
		if evicted, ok := cache.Put(key, entry); ok && len(evicted) > 0 {
			l.Logger().Debug("memory_cache.evicted", "key", key, "count", len(evicted))
		}
		data.CountBitmap = cb
	}
	return data, nil
}

// readMemory returns a pending-retained copy of the cached entry for key.
func readMemory(cache core.MemoryCache, key string) (*core.ImageData, bool) {
	entry, ok := cache.Get(key)
	if !ok {
		return nil, false
	}
	bm := entry.CountBitmap.RetainPending()
	if bm == nil {
		return nil, false
	}
	return &core.ImageData{
		Bitmap:          bm,
		CountBitmap:     entry.CountBitmap,
		ImageInfo:       entry.ImageInfo,
		DataFrom:        core.DataFromMemoryCache,
		TransformedList: entry.TransformedList,
		Extras:          entry.Extras,
	}, true
}

var _ core.RequestInterceptor = (*MemoryCacheRequestInterceptor)(nil)
