// Package pipeline provides the built-in request and decode interceptors and
// installs them on a registry.
package pipeline

import (
	"github.com/Skryldev/image-loader/core"
)

// Sort weights of the built-in interceptors. Lower runs first (outermost).
const (
	WeightResultCache    = 80
	WeightTransformation = 90
	WeightMemoryCache    = 90
)

// Defaults registers the memory cache request interceptor and the result
// cache and transformation decode interceptors on b.
func Defaults(b *core.RegistryBuilder) *core.RegistryBuilder {
	return b.
		AddRequestInterceptor(&MemoryCacheRequestInterceptor{}).
		AddDecodeInterceptor(&ResultCacheDecodeInterceptor{}, &TransformationDecodeInterceptor{})
}
