package vips_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/adapters/vips"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/pool"
)

var backend *vips.Backend

func TestMain(m *testing.M) {
	backend = vips.NewBackend(vips.BackendConfig{})
	code := m.Run()
	backend.Shutdown()
	os.Exit(code)
}

func makeJPEG(b *testing.B, w, h int) []byte {
	b.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92})
	return buf.Bytes()
}

func newLoader(dec core.BitmapDecoderFactory) *core.Loader {
	reg := core.NewRegistryBuilder().
		AddFetcher(&fetcher.Data{}).
		AddDecoder(dec).
		Build()
	return core.New(config.Default(), reg, core.Components{BitmapPool: pool.New(0, nil)})
}

func dataURI(raw []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)
}

func benchmarkDecode(b *testing.B, dec core.BitmapDecoderFactory, raw []byte, req func(uri string) *core.RequestBuilder) {
	l := newLoader(dec)
	uri := dataURI(raw)

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := l.Execute(context.Background(), req(uri).Build())
		if res.Err != nil {
			b.Fatal(res.Err)
		}
		l.BitmapPool().Free(res.Bitmap, false)
	}
}

func fullSize(uri string) *core.RequestBuilder { return core.NewRequest(uri).Resize(4000, 4000) }

func half(uri string) *core.RequestBuilder { return core.NewRequest(uri).Resize(960, 540) }

func thumbnail(uri string) *core.RequestBuilder {
	return core.NewRequest(uri).Resize(256, 256).Precision(core.PrecisionExactly)
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	benchmarkDecode(b, decoder.Std{}, makeJPEG(b, 1920, 1080), fullSize)
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	benchmarkDecode(b, backend, makeJPEG(b, 1920, 1080), fullSize)
}

// ─── Subsampled ───────────────────────────────────────────────────────────────

func BenchmarkSubsample_Stdlib_1920to960(b *testing.B) {
	benchmarkDecode(b, decoder.Std{}, makeJPEG(b, 1920, 1080), half)
}

func BenchmarkSubsample_Vips_1920to960(b *testing.B) {
	benchmarkDecode(b, backend, makeJPEG(b, 1920, 1080), half)
}

// ─── Region thumbnail ─────────────────────────────────────────────────────────

func BenchmarkThumbnail_Stdlib_4K(b *testing.B) {
	benchmarkDecode(b, decoder.Std{}, makeJPEG(b, 3840, 2160), thumbnail)
}

func BenchmarkThumbnail_Vips_4K(b *testing.B) {
	benchmarkDecode(b, backend, makeJPEG(b, 3840, 2160), thumbnail)
}
