package core

import (
	"image"
	"maps"
	"slices"
	"sort"
	"strings"
)

// ── Options ───────────────────────────────────────────────────────────────────

// Parameter is an arbitrary request value. A non-empty CacheKey makes it part
// of the request cache key.
type Parameter struct {
	Value    interface{}
	CacheKey string
}

// Parameters is a set of named request values.
type Parameters map[string]Parameter

// ImageOptions holds every option a request may define. Nil fields are unset
// and fall back to global options, then to built-in defaults.
type ImageOptions struct {
	Depth                 *Depth
	DownloadCachePolicy   *CachePolicy
	ResultCachePolicy     *CachePolicy
	MemoryCachePolicy     *CachePolicy
	SizeResolver          SizeResolver
	PrecisionDecider      PrecisionDecider
	ScaleDecider          ScaleDecider
	Transformations       []Transformation
	BitmapConfig          *PixelConfig
	DisallowReuseBitmap   *bool
	IgnoreExifOrientation *bool
	Parameters            Parameters
	HTTPHeaders           map[string]string
	Placeholder           StateImage
	Error                 StateImage
	Transition            TransitionFactory
}

// Merged returns o with every unset field taken from fallback. Map-valued
// options are merged key by key with o winning.
func (o ImageOptions) Merged(fallback ImageOptions) ImageOptions {
	out := o
	if out.Depth == nil {
		out.Depth = fallback.Depth
	}
	if out.DownloadCachePolicy == nil {
		out.DownloadCachePolicy = fallback.DownloadCachePolicy
	}
	if out.ResultCachePolicy == nil {
		out.ResultCachePolicy = fallback.ResultCachePolicy
	}
	if out.MemoryCachePolicy == nil {
		out.MemoryCachePolicy = fallback.MemoryCachePolicy
	}
	if out.SizeResolver == nil {
		out.SizeResolver = fallback.SizeResolver
	}
	if out.PrecisionDecider == nil {
		out.PrecisionDecider = fallback.PrecisionDecider
	}
	if out.ScaleDecider == nil {
		out.ScaleDecider = fallback.ScaleDecider
	}
	if out.Transformations == nil {
		out.Transformations = fallback.Transformations
	}
	if out.BitmapConfig == nil {
		out.BitmapConfig = fallback.BitmapConfig
	}
	if out.DisallowReuseBitmap == nil {
		out.DisallowReuseBitmap = fallback.DisallowReuseBitmap
	}
	if out.IgnoreExifOrientation == nil {
		out.IgnoreExifOrientation = fallback.IgnoreExifOrientation
	}
	if out.Placeholder == nil {
		out.Placeholder = fallback.Placeholder
	}
	if out.Error == nil {
		out.Error = fallback.Error
	}
	if out.Transition == nil {
		out.Transition = fallback.Transition
	}
	if len(fallback.Parameters) > 0 {
		merged := maps.Clone(fallback.Parameters)
		maps.Copy(merged, o.Parameters)
		out.Parameters = merged
	}
	if len(fallback.HTTPHeaders) > 0 {
		merged := maps.Clone(fallback.HTTPHeaders)
		maps.Copy(merged, o.HTTPHeaders)
		out.HTTPHeaders = merged
	}
	return out
}

// ── Request ───────────────────────────────────────────────────────────────────

// ImageRequest is an immutable description of one image load. Build it with
// NewRequest.
type ImageRequest struct {
	uri       string
	target    Target
	listeners []Listener
	defined   ImageOptions
	options   ImageOptions
}

func (r *ImageRequest) URI() string           { return r.uri }
func (r *ImageRequest) Target() Target        { return r.target }
func (r *ImageRequest) Listeners() []Listener { return r.listeners }
func (r *ImageRequest) Defined() ImageOptions { return r.defined }
func (r *ImageRequest) Options() ImageOptions { return r.options }

// Merged returns a copy whose unset options are filled from global. Options
// the request defined itself always win.
func (r *ImageRequest) Merged(global ImageOptions) *ImageRequest {
	out := *r
	out.options = r.defined.Merged(global)
	return &out
}

// NewBuilder returns a builder seeded with this request.
func (r *ImageRequest) NewBuilder() *RequestBuilder {
	return &RequestBuilder{
		uri:       r.uri,
		target:    r.target,
		listeners: slices.Clone(r.listeners),
		opts:      r.defined,
	}
}

func (r *ImageRequest) Depth() Depth {
	if r.options.Depth != nil {
		return *r.options.Depth
	}
	return DepthNetwork
}

func (r *ImageRequest) DownloadCachePolicy() CachePolicy { return policyOr(r.options.DownloadCachePolicy) }
func (r *ImageRequest) ResultCachePolicy() CachePolicy   { return policyOr(r.options.ResultCachePolicy) }
func (r *ImageRequest) MemoryCachePolicy() CachePolicy   { return policyOr(r.options.MemoryCachePolicy) }

// SizeResolver returns nil when neither the request nor the global options set
// one; the loader then uses the display size.
func (r *ImageRequest) SizeResolver() SizeResolver { return r.options.SizeResolver }

func (r *ImageRequest) PrecisionDecider() PrecisionDecider {
	if r.options.PrecisionDecider != nil {
		return r.options.PrecisionDecider
	}
	return FixedPrecision(PrecisionLessPixels)
}

func (r *ImageRequest) ScaleDecider() ScaleDecider {
	if r.options.ScaleDecider != nil {
		return r.options.ScaleDecider
	}
	return FixedScale(ScaleCenterCrop)
}

func (r *ImageRequest) Transformations() []Transformation { return r.options.Transformations }

func (r *ImageRequest) BitmapConfig() PixelConfig {
	if r.options.BitmapConfig != nil {
		return *r.options.BitmapConfig
	}
	return ConfigRGBA
}

func (r *ImageRequest) DisallowReuseBitmap() bool {
	return r.options.DisallowReuseBitmap != nil && *r.options.DisallowReuseBitmap
}

func (r *ImageRequest) IgnoreExifOrientation() bool {
	return r.options.IgnoreExifOrientation != nil && *r.options.IgnoreExifOrientation
}

func (r *ImageRequest) Parameters() Parameters         { return r.options.Parameters }
func (r *ImageRequest) HTTPHeaders() map[string]string { return r.options.HTTPHeaders }
func (r *ImageRequest) Transition() TransitionFactory  { return r.options.Transition }

// PlaceholderImage renders the placeholder state image, if any.
func (r *ImageRequest) PlaceholderImage() image.Image {
	if r.options.Placeholder == nil {
		return nil
	}
	return r.options.Placeholder.Image(r, nil)
}

// ErrorImage renders the error state image for err, if any.
func (r *ImageRequest) ErrorImage(err error) image.Image {
	if r.options.Error == nil {
		return nil
	}
	return r.options.Error.Image(r, err)
}

func policyOr(p *CachePolicy) CachePolicy {
	if p != nil {
		return *p
	}
	return CacheEnabled
}

// parametersKey renders the cache-relevant parameters in key order.
func (r *ImageRequest) parametersKey() string {
	if len(r.options.Parameters) == 0 {
		return ""
	}
	names := make([]string, 0, len(r.options.Parameters))
	for k, p := range r.options.Parameters {
		if p.CacheKey != "" {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + ":" + r.options.Parameters[k].CacheKey
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ── Builder ───────────────────────────────────────────────────────────────────

// RequestBuilder assembles an ImageRequest.
type RequestBuilder struct {
	uri       string
	target    Target
	listeners []Listener
	opts      ImageOptions
}

// NewRequest starts a request for uri.
func NewRequest(uri string) *RequestBuilder { return &RequestBuilder{uri: uri} }

func (b *RequestBuilder) Target(t Target) *RequestBuilder { b.target = t; return b }

func (b *RequestBuilder) Listener(l Listener) *RequestBuilder {
	b.listeners = append(b.listeners, l)
	return b
}

func (b *RequestBuilder) Depth(d Depth) *RequestBuilder { b.opts.Depth = &d; return b }

func (b *RequestBuilder) DownloadCachePolicy(p CachePolicy) *RequestBuilder {
	b.opts.DownloadCachePolicy = &p
	return b
}

func (b *RequestBuilder) ResultCachePolicy(p CachePolicy) *RequestBuilder {
	b.opts.ResultCachePolicy = &p
	return b
}

func (b *RequestBuilder) MemoryCachePolicy(p CachePolicy) *RequestBuilder {
	b.opts.MemoryCachePolicy = &p
	return b
}

// Resize sets a fixed resize size.
func (b *RequestBuilder) Resize(w, h int) *RequestBuilder {
	b.opts.SizeResolver = FixedSize(w, h)
	return b
}

func (b *RequestBuilder) SizeResolver(r SizeResolver) *RequestBuilder {
	b.opts.SizeResolver = r
	return b
}

func (b *RequestBuilder) Precision(p Precision) *RequestBuilder {
	b.opts.PrecisionDecider = FixedPrecision(p)
	return b
}

func (b *RequestBuilder) PrecisionDecider(d PrecisionDecider) *RequestBuilder {
	b.opts.PrecisionDecider = d
	return b
}

func (b *RequestBuilder) Scale(s Scale) *RequestBuilder {
	b.opts.ScaleDecider = FixedScale(s)
	return b
}

func (b *RequestBuilder) ScaleDecider(d ScaleDecider) *RequestBuilder {
	b.opts.ScaleDecider = d
	return b
}

// Transformations appends transformations, in application order.
func (b *RequestBuilder) Transformations(t ...Transformation) *RequestBuilder {
	ts := make([]Transformation, 0, len(b.opts.Transformations)+len(t))
	ts = append(ts, b.opts.Transformations...)
	b.opts.Transformations = append(ts, t...)
	return b
}

func (b *RequestBuilder) BitmapConfig(c PixelConfig) *RequestBuilder { b.opts.BitmapConfig = &c; return b }

func (b *RequestBuilder) DisallowReuseBitmap(v bool) *RequestBuilder {
	b.opts.DisallowReuseBitmap = &v
	return b
}

func (b *RequestBuilder) IgnoreExifOrientation(v bool) *RequestBuilder {
	b.opts.IgnoreExifOrientation = &v
	return b
}

// Parameter sets a named value. A non-empty cacheKey makes it part of the
// request cache key.
func (b *RequestBuilder) Parameter(name string, value interface{}, cacheKey string) *RequestBuilder {
	if b.opts.Parameters == nil {
		b.opts.Parameters = Parameters{}
	} else {
		b.opts.Parameters = maps.Clone(b.opts.Parameters)
	}
	b.opts.Parameters[name] = Parameter{Value: value, CacheKey: cacheKey}
	return b
}

func (b *RequestBuilder) HTTPHeader(name, value string) *RequestBuilder {
	if b.opts.HTTPHeaders == nil {
		b.opts.HTTPHeaders = map[string]string{}
	} else {
		b.opts.HTTPHeaders = maps.Clone(b.opts.HTTPHeaders)
	}
	b.opts.HTTPHeaders[name] = value
	return b
}

func (b *RequestBuilder) Placeholder(s StateImage) *RequestBuilder { b.opts.Placeholder = s; return b }
func (b *RequestBuilder) Error(s StateImage) *RequestBuilder       { b.opts.Error = s; return b }

func (b *RequestBuilder) Transition(f TransitionFactory) *RequestBuilder {
	b.opts.Transition = f
	return b
}

// Options replaces every defined option at once.
func (b *RequestBuilder) Options(o ImageOptions) *RequestBuilder { b.opts = o; return b }

// Build returns the immutable request.
func (b *RequestBuilder) Build() *ImageRequest {
	return &ImageRequest{
		uri:       b.uri,
		target:    b.target,
		listeners: slices.Clone(b.listeners),
		defined:   b.opts,
		options:   b.opts,
	}
}
