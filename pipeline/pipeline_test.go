package pipeline_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/encoder"
	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/cache/disk"
	"github.com/Skryldev/image-loader/cache/memory"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/pipeline"
	"github.com/Skryldev/image-loader/pool"
	"github.com/Skryldev/image-loader/transform"
)

func pngURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// stageCounter counts stage invocations by name.
type stageCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *stageCounter) BeforeStage(ctx context.Context, _ string, _ *core.RequestContext) context.Context {
	return ctx
}

func (s *stageCounter) AfterStage(_ context.Context, stage string, _ *core.RequestContext, _ time.Duration, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[stage]++
}

func (s *stageCounter) get(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stage]
}

type env struct {
	loader *core.Loader
	memory *memory.Cache
	pool   *pool.Pool
	result *disk.Cache
	stages *stageCounter
}

func newEnv(t *testing.T, resultDir string) *env {
	t.Helper()
	cfg := config.Default()
	cfg.RetryDelay = 0
	codec, err := encoder.New(cfg)
	require.NoError(t, err)

	e := &env{
		memory: memory.New(8<<20, nil),
		pool:   pool.New(4<<20, nil),
		stages: &stageCounter{},
	}
	c := core.Components{MemoryCache: e.memory, BitmapPool: e.pool, ResultCodec: codec}
	if resultDir != "" {
		e.result, err = disk.Open(resultDir, 16<<20, nil)
		require.NoError(t, err)
		c.ResultCache = e.result
	}
	reg := pipeline.Defaults(core.NewRegistryBuilder()).
		AddFetcher(&fetcher.Data{}).
		AddDecoder(decoder.Std{}).
		Build()
	e.loader = core.New(cfg, reg, c)
	e.loader.AddHook(e.stages)
	return e
}

// ── Memory cache ──────────────────────────────────────────────────────────────

func TestMemoryCache_HitSharesBitmap(t *testing.T) {
	e := newEnv(t, "")
	uri := pngURI(t, 40, 20)
	req := core.NewRequest(uri).Resize(20, 10).Build()

	first := e.loader.Execute(context.Background(), req)
	require.NoError(t, first.Err)
	require.NotNil(t, first.CountBitmap)
	assert.Equal(t, 1, first.CountBitmap.CachedCount())
	assert.Equal(t, 1, first.CountBitmap.DisplayedCount())
	assert.Zero(t, first.CountBitmap.PendingCount())

	second := e.loader.Execute(context.Background(), req)
	require.NoError(t, second.Err)
	assert.Equal(t, core.DataFromMemoryCache, second.DataFrom)
	assert.Same(t, first.Bitmap, second.Bitmap)
	assert.Equal(t, 2, second.CountBitmap.DisplayedCount())
	assert.Equal(t, 1, e.stages.get("decode"))

	first.Release()
	second.Release()
	second.Release()
	assert.Zero(t, first.CountBitmap.DisplayedCount())
	assert.False(t, first.CountBitmap.IsRecycled(), "still cached")

	e.memory.Clear()
	assert.True(t, first.CountBitmap.IsRecycled())
	assert.Equal(t, first.Bitmap.ByteCount(), e.pool.Size())
}

func TestMemoryCache_DisplayedEntrySurvivesClear(t *testing.T) {
	e := newEnv(t, "")
	res := e.loader.Execute(context.Background(), core.NewRequest(pngURI(t, 8, 8)).Resize(8, 8).Build())
	require.NoError(t, res.Err)

	e.memory.Clear()
	assert.False(t, res.CountBitmap.IsRecycled())
	assert.Positive(t, e.memory.Size())

	res.Release()
	e.memory.Clear()
	assert.True(t, res.CountBitmap.IsRecycled())
	assert.Zero(t, e.memory.Size())
}

func TestMemoryCache_ConcurrentIdenticalRequestsDecodeOnce(t *testing.T) {
	e := newEnv(t, "")
	req := core.NewRequest(pngURI(t, 64, 64)).Resize(16, 16).Build()

	var wg sync.WaitGroup
	var hits atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.loader.Execute(context.Background(), req)
			if !assert.NoError(t, res.Err) {
				return
			}
			if res.DataFrom == core.DataFromMemoryCache {
				hits.Add(1)
			}
			res.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, e.stages.get("decode"))
	assert.EqualValues(t, 7, hits.Load())
}

func TestMemoryCache_Policies(t *testing.T) {
	e := newEnv(t, "")
	uri := pngURI(t, 8, 8)

	res := e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).MemoryCachePolicy(core.CacheDisabled).Build())
	require.NoError(t, res.Err)
	assert.Nil(t, res.CountBitmap)
	assert.Zero(t, e.memory.Size())

	res = e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).MemoryCachePolicy(core.CacheWriteOnly).Build())
	require.NoError(t, res.Err)
	res.Release()
	res = e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).MemoryCachePolicy(core.CacheWriteOnly).Build())
	require.NoError(t, res.Err)
	assert.NotEqual(t, core.DataFromMemoryCache, res.DataFrom)
	res.Release()

	res = e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).MemoryCachePolicy(core.CacheReadOnly).Build())
	require.NoError(t, res.Err)
	assert.Equal(t, core.DataFromMemoryCache, res.DataFrom)
	res.Release()
}

func TestMemoryCache_DepthMemory(t *testing.T) {
	e := newEnv(t, "")
	uri := pngURI(t, 8, 8)

	res := e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).Depth(core.DepthMemory).Build())
	assert.ErrorIs(t, res.Err, apperrors.ErrDepthMemory)
	assert.True(t, apperrors.IsCategory(res.Err, apperrors.CategoryDepth))
	assert.Zero(t, e.stages.get("fetch"))

	warm := e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).Build())
	require.NoError(t, warm.Err)
	warm.Release()

	res = e.loader.Execute(context.Background(), core.NewRequest(uri).Resize(8, 8).Depth(core.DepthMemory).Build())
	require.NoError(t, res.Err)
	assert.Equal(t, core.DataFromMemoryCache, res.DataFrom)
	res.Release()
}

// ── Transformations ───────────────────────────────────────────────────────────

type failingTransformation struct{}

func (failingTransformation) Key() string { return "Failing" }

func (failingTransformation) Transform(context.Context, *core.Loader, *core.RequestContext, *core.Bitmap) (*core.TransformResult, error) {
	return nil, errors.New("no")
}

type skipTransformation struct{}

func (skipTransformation) Key() string { return "Skip" }

func (skipTransformation) Transform(context.Context, *core.Loader, *core.RequestContext, *core.Bitmap) (*core.TransformResult, error) {
	return nil, nil
}

func TestTransformation_AppliedInOrder(t *testing.T) {
	e := newEnv(t, "")
	rounded, err := transform.NewRoundedCorners(4)
	require.NoError(t, err)

	res := e.loader.Execute(context.Background(), core.NewRequest(pngURI(t, 32, 32)).
		Resize(32, 32).
		Transformations(skipTransformation{}, &transform.Grayscale{}, rounded).
		Build())
	require.NoError(t, res.Err)
	defer res.Release()
	require.Len(t, res.TransformedList, 2)
	assert.Equal(t, "GrayscaleTransformed", res.TransformedList[0])
	assert.Equal(t, rounded.Transformed(), res.TransformedList[1])
	assert.Equal(t, 3, e.stages.get("transform"))
}

func TestTransformation_ErrorIsCategorized(t *testing.T) {
	e := newEnv(t, "")
	res := e.loader.Execute(context.Background(), core.NewRequest(pngURI(t, 8, 8)).
		Resize(8, 8).
		Transformations(failingTransformation{}).
		Build())
	assert.True(t, apperrors.IsCategory(res.Err, apperrors.CategoryTransform))
	assert.Zero(t, e.memory.Size())
}

// ── Result cache ──────────────────────────────────────────────────────────────

func TestResultCache_ServesTransformedResult(t *testing.T) {
	dir := t.TempDir()
	uri := pngURI(t, 60, 30)
	req := core.NewRequest(uri).
		Resize(30, 15).
		Transformations(&transform.Grayscale{}).
		Build()

	first := newEnv(t, dir)
	res := first.loader.Execute(context.Background(), req)
	require.NoError(t, res.Err)
	res.Release()
	assert.Equal(t, 2, first.result.Len(), "data and meta entries")
	assert.Equal(t, 1, first.stages.get("result_cache.write"))

	second := newEnv(t, dir)
	res = second.loader.Execute(context.Background(), req)
	require.NoError(t, res.Err)
	defer res.Release()
	assert.Equal(t, core.DataFromResultCache, res.DataFrom)
	assert.Equal(t, []string{core.InSampledTransformed(2), "GrayscaleTransformed"}, res.TransformedList)
	assert.Equal(t, 60, res.ImageInfo.Width)
	assert.Equal(t, core.Size{Width: 30, Height: 15}, res.Bitmap.Size())
	assert.Zero(t, second.stages.get("fetch"))
	assert.Zero(t, second.stages.get("decode"))
	assert.Zero(t, second.stages.get("transform"))
}

func TestResultCache_SkipsUntransformed(t *testing.T) {
	e := newEnv(t, t.TempDir())
	res := e.loader.Execute(context.Background(), core.NewRequest(pngURI(t, 8, 8)).Resize(8, 8).Build())
	require.NoError(t, res.Err)
	assert.Empty(t, res.TransformedList)
	res.Release()
	assert.Zero(t, e.result.Len())
}

func TestResultCache_Disabled(t *testing.T) {
	e := newEnv(t, t.TempDir())
	res := e.loader.Execute(context.Background(), core.NewRequest(pngURI(t, 16, 16)).
		Resize(8, 8).
		Transformations(&transform.Grayscale{}).
		ResultCachePolicy(core.CacheDisabled).
		Build())
	require.NoError(t, res.Err)
	res.Release()
	assert.Zero(t, e.result.Len())
}

func TestResultCache_ConcurrentIdenticalRequestsWriteOnce(t *testing.T) {
	e := newEnv(t, t.TempDir())
	req := core.NewRequest(pngURI(t, 48, 48)).
		Resize(24, 24).
		Transformations(&transform.Grayscale{}).
		MemoryCachePolicy(core.CacheDisabled).
		Build()

	var wg sync.WaitGroup
	var fromCache atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.loader.Execute(context.Background(), req)
			if !assert.NoError(t, res.Err) {
				return
			}
			if res.DataFrom == core.DataFromResultCache {
				fromCache.Add(1)
			}
			res.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, e.stages.get("result_cache.write"))
	assert.Equal(t, 1, e.stages.get("decode"))
	assert.EqualValues(t, 5, fromCache.Load())
	assert.Equal(t, 2, e.result.Len())
}

// resultKeys records the result cache keys of the last request it saw.
type resultKeys struct {
	mu         sync.Mutex
	data, meta string
}

func (k *resultKeys) BeforeStage(ctx context.Context, _ string, rc *core.RequestContext) context.Context {
	k.mu.Lock()
	k.data, k.meta = rc.ResultCacheDataKey(), rc.ResultCacheMetaKey()
	k.mu.Unlock()
	return ctx
}

func (k *resultKeys) AfterStage(context.Context, string, *core.RequestContext, time.Duration, error) {}

func TestResultCache_CorruptEntryPurged(t *testing.T) {
	for _, tc := range []struct {
		name    string
		corrupt func(t *testing.T, c *disk.Cache, keys *resultKeys)
	}{
		{"missing meta", func(t *testing.T, c *disk.Cache, keys *resultKeys) {
			require.True(t, c.Remove(keys.meta))
		}},
		{"garbage meta", func(t *testing.T, c *disk.Cache, keys *resultKeys) {
			ed, err := c.Edit(keys.meta)
			require.NoError(t, err)
			_, err = ed.Write([]byte("{garbage"))
			require.NoError(t, err)
			require.NoError(t, ed.Commit())
		}},
		{"garbage data", func(t *testing.T, c *disk.Cache, keys *resultKeys) {
			ed, err := c.Edit(keys.data)
			require.NoError(t, err)
			_, err = ed.Write([]byte("{garbage"))
			require.NoError(t, err)
			require.NoError(t, ed.Commit())
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, t.TempDir())
			keys := &resultKeys{}
			e.loader.AddHook(keys)
			req := core.NewRequest(pngURI(t, 40, 40)).
				Resize(20, 20).
				Transformations(&transform.Grayscale{}).
				MemoryCachePolicy(core.CacheDisabled).
				Build()

			res := e.loader.Execute(context.Background(), req)
			require.NoError(t, res.Err)
			require.Equal(t, 2, e.result.Len())
			tc.corrupt(t, e.result, keys)

			res = e.loader.Execute(context.Background(), req)
			require.NoError(t, res.Err)
			assert.NotEqual(t, core.DataFromResultCache, res.DataFrom)
			assert.Equal(t, 2, e.stages.get("decode"))
			assert.Equal(t, 2, e.result.Len(), "entry rewritten")

			res = e.loader.Execute(context.Background(), req)
			require.NoError(t, res.Err)
			assert.Equal(t, core.DataFromResultCache, res.DataFrom)
			assert.Equal(t, 2, e.stages.get("decode"))
		})
	}
}

// cancelingTransformation cancels the request and still returns a result.
type cancelingTransformation struct{ cancel context.CancelFunc }

func (cancelingTransformation) Key() string { return "Canceling" }

func (c cancelingTransformation) Transform(_ context.Context, _ *core.Loader, _ *core.RequestContext, b *core.Bitmap) (*core.TransformResult, error) {
	c.cancel()
	return &core.TransformResult{Bitmap: b, Transformed: "CancelingTransformed"}, nil
}

func TestResultCache_CanceledWriteLeavesNothing(t *testing.T) {
	e := newEnv(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	li := core.ListenerFuncs{
		Start:   func(*core.ImageRequest) { record("start") },
		Success: func(*core.ImageRequest, *core.ImageResult) { record("success") },
		Fail:    func(*core.ImageRequest, *core.ImageResult) { record("error") },
		Cancel:  func(*core.ImageRequest) { record("cancel") },
	}

	res := e.loader.Execute(ctx, core.NewRequest(pngURI(t, 16, 16)).
		Resize(16, 16).
		Transformations(cancelingTransformation{cancel: cancel}).
		Listener(li).
		Build())
	assert.True(t, res.Canceled)
	assert.Equal(t, []string{"start", "cancel"}, events)
	assert.Equal(t, 1, e.stages.get("result_cache.write"))
	assert.Zero(t, e.result.Len())

	entries, err := os.ReadDir(e.result.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}
