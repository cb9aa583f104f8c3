package core

import (
	"context"
	"errors"

	apperrors "github.com/Skryldev/image-loader/errors"
)

var errChainExhausted = errors.New("interceptor chain exhausted")

// ── Request chain ─────────────────────────────────────────────────────────────

type requestChain struct {
	loader       *Loader
	request      *ImageRequest
	rc           *RequestContext
	interceptors []RequestInterceptor
	index        int
}

func (c *requestChain) Loader() *Loader                 { return c.loader }
func (c *requestChain) Request() *ImageRequest          { return c.request }
func (c *requestChain) RequestContext() *RequestContext { return c.rc }

func (c *requestChain) Proceed(ctx context.Context, req *ImageRequest) (*ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.index >= len(c.interceptors) {
		return nil, apperrors.New(apperrors.CategoryPipeline, "request_chain", errChainExhausted)
	}
	next := &requestChain{
		loader:       c.loader,
		request:      req,
		rc:           c.rc,
		interceptors: c.interceptors,
		index:        c.index + 1,
	}
	return c.interceptors[c.index].Intercept(ctx, next)
}

// runRequestChain runs the registered request interceptors followed by the
// engine interceptor.
func (l *Loader) runRequestChain(ctx context.Context, rc *RequestContext) (*ImageData, error) {
	ics := append(append([]RequestInterceptor(nil), l.registry.RequestInterceptors()...), engineRequestInterceptor{})
	chain := &requestChain{loader: l, request: rc.Request(), rc: rc, interceptors: ics}
	return chain.Proceed(ctx, rc.Request())
}

// ── Decode chain ──────────────────────────────────────────────────────────────

type decodeChain struct {
	loader       *Loader
	rc           *RequestContext
	fetchResult  *FetchResult
	interceptors []DecodeInterceptor
	index        int
}

func (c *decodeChain) Loader() *Loader                 { return c.loader }
func (c *decodeChain) RequestContext() *RequestContext { return c.rc }
func (c *decodeChain) FetchResult() *FetchResult       { return c.fetchResult }

func (c *decodeChain) Proceed(ctx context.Context) (*BitmapDecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.index >= len(c.interceptors) {
		return nil, apperrors.New(apperrors.CategoryPipeline, "decode_chain", errChainExhausted)
	}
	next := &decodeChain{
		loader:       c.loader,
		rc:           c.rc,
		fetchResult:  c.fetchResult,
		interceptors: c.interceptors,
		index:        c.index + 1,
	}
	return c.interceptors[c.index].Intercept(ctx, next)
}

// RunDecodeChain runs the registered decode interceptors followed by the
// engine interceptor. fr may be nil.
func (l *Loader) RunDecodeChain(ctx context.Context, rc *RequestContext, fr *FetchResult) (*BitmapDecodeResult, error) {
	ics := append(append([]DecodeInterceptor(nil), l.registry.DecodeInterceptors()...), engineDecodeInterceptor{})
	chain := &decodeChain{loader: l, rc: rc, fetchResult: fr, interceptors: ics}
	return chain.Proceed(ctx)
}

// ── Engine interceptors ───────────────────────────────────────────────────────

// engineRequestInterceptor terminates the request chain by running the
// decode chain.
type engineRequestInterceptor struct{}

func (engineRequestInterceptor) Key() string     { return "" }
func (engineRequestInterceptor) SortWeight() int { return 100 }

func (engineRequestInterceptor) Intercept(ctx context.Context, chain RequestChain) (*ImageData, error) {
	l := chain.Loader()
	res, err := l.RunDecodeChain(ctx, chain.RequestContext(), nil)
	if err != nil {
		return nil, err
	}
	return &ImageData{
		Bitmap:          res.Bitmap,
		ImageInfo:       res.ImageInfo,
		DataFrom:        res.DataFrom,
		TransformedList: res.TransformedList,
		Extras:          res.Extras,
	}, nil
}

// engineDecodeInterceptor terminates the decode chain: it fetches when no
// earlier stage did and hands the data to the first capable decoder.
type engineDecodeInterceptor struct{}

func (engineDecodeInterceptor) Key() string     { return "" }
func (engineDecodeInterceptor) SortWeight() int { return 100 }

func (engineDecodeInterceptor) Intercept(ctx context.Context, chain DecodeChain) (*BitmapDecodeResult, error) {
	l := chain.Loader()
	rc := chain.RequestContext()
	fr := chain.FetchResult()
	if fr == nil {
		var err error
		if fr, err = l.Fetch(ctx, rc); err != nil {
			return nil, err
		}
	}

	rc.SetState(StateDecoding)
	dec, err := l.registry.NewDecoder(l, rc, fr)
	if err != nil {
		return nil, err
	}
	var res *BitmapDecodeResult
	err = l.Stage(ctx, "decode", rc, func(ctx context.Context) error {
		var derr error
		res, derr = dec.Decode(ctx)
		return derr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
