package core

import (
	"fmt"
	"sort"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Registry ──────────────────────────────────────────────────────────────────

// ComponentRegistry is the immutable set of pluggable components. Fetchers and
// decoders are tried in registration order; interceptors run in ascending
// SortWeight, ties kept in registration order.
type ComponentRegistry struct {
	fetchers            []FetcherFactory
	decoders            []BitmapDecoderFactory
	requestInterceptors []RequestInterceptor
	decodeInterceptors  []DecodeInterceptor
}

// RegistryBuilder collects components for a ComponentRegistry.
type RegistryBuilder struct {
	reg ComponentRegistry
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder { return &RegistryBuilder{} }

func (b *RegistryBuilder) AddFetcher(f ...FetcherFactory) *RegistryBuilder {
	b.reg.fetchers = append(b.reg.fetchers, f...)
	return b
}

func (b *RegistryBuilder) AddDecoder(d ...BitmapDecoderFactory) *RegistryBuilder {
	b.reg.decoders = append(b.reg.decoders, d...)
	return b
}

func (b *RegistryBuilder) AddRequestInterceptor(i ...RequestInterceptor) *RegistryBuilder {
	b.reg.requestInterceptors = append(b.reg.requestInterceptors, i...)
	return b
}

func (b *RegistryBuilder) AddDecodeInterceptor(i ...DecodeInterceptor) *RegistryBuilder {
	b.reg.decodeInterceptors = append(b.reg.decodeInterceptors, i...)
	return b
}

// Build sorts the interceptors once and freezes the registry.
func (b *RegistryBuilder) Build() *ComponentRegistry {
	reg := &ComponentRegistry{
		fetchers:            append([]FetcherFactory(nil), b.reg.fetchers...),
		decoders:            append([]BitmapDecoderFactory(nil), b.reg.decoders...),
		requestInterceptors: append([]RequestInterceptor(nil), b.reg.requestInterceptors...),
		decodeInterceptors:  append([]DecodeInterceptor(nil), b.reg.decodeInterceptors...),
	}
	sort.SliceStable(reg.requestInterceptors, func(i, j int) bool {
		return reg.requestInterceptors[i].SortWeight() < reg.requestInterceptors[j].SortWeight()
	})
	sort.SliceStable(reg.decodeInterceptors, func(i, j int) bool {
		return reg.decodeInterceptors[i].SortWeight() < reg.decodeInterceptors[j].SortWeight()
	})
	return reg
}

func (r *ComponentRegistry) RequestInterceptors() []RequestInterceptor { return r.requestInterceptors }
func (r *ComponentRegistry) DecodeInterceptors() []DecodeInterceptor   { return r.decodeInterceptors }
func (r *ComponentRegistry) Fetchers() []FetcherFactory                { return r.fetchers }
func (r *ComponentRegistry) Decoders() []BitmapDecoderFactory          { return r.decoders }

// NewFetcher returns the first fetcher that accepts req.
func (r *ComponentRegistry) NewFetcher(l *Loader, req *ImageRequest) (Fetcher, error) {
	for _, f := range r.fetchers {
		if ft := f.Create(l, req); ft != nil {
			return ft, nil
		}
	}
	return nil, apperrors.New(apperrors.CategoryFetch, "registry.fetcher",
		fmt.Errorf("%w: %q", apperrors.ErrNoFetcher, req.URI()))
}

// NewDecoder returns the first decoder that accepts fr.
func (r *ComponentRegistry) NewDecoder(l *Loader, rc *RequestContext, fr *FetchResult) (BitmapDecoder, error) {
	for _, f := range r.decoders {
		if d := f.Create(l, rc, fr); d != nil {
			return d, nil
		}
	}
	return nil, apperrors.New(apperrors.CategoryDecode, "registry.decoder",
		fmt.Errorf("%w: mime %q", apperrors.ErrNoDecoder, fr.MimeType))
}
