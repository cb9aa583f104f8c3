package core

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// State is the executor state of one request.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateMemoryCacheHit
	StateFetching
	StateDecoding
	StateTransforming
	StateSuccess
	StateCanceled
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateStarted:
		return "STARTED"
	case StateMemoryCacheHit:
		return "MEMORY_CACHE_HIT"
	case StateFetching:
		return "FETCHING"
	case StateDecoding:
		return "DECODING"
	case StateTransforming:
		return "TRANSFORMING"
	case StateSuccess:
		return "SUCCESS"
	case StateCanceled:
		return "CANCELLED"
	case StateError:
		return "ERROR"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateCanceled || s == StateError
}

// RequestContext carries per-execution state. It is owned by the goroutine
// executing the request; only State may be read concurrently.
type RequestContext struct {
	id         string
	request    *ImageRequest
	resizeSize Size
	cacheKey   string
	state      atomic.Int32
	onState    func(rc *RequestContext, from, to State)
}

func newRequestContext(id string, req *ImageRequest) *RequestContext {
	return &RequestContext{id: id, request: req}
}

func (rc *RequestContext) ID() string             { return rc.id }
func (rc *RequestContext) Request() *ImageRequest { return rc.request }
func (rc *RequestContext) ResizeSize() Size       { return rc.resizeSize }
func (rc *RequestContext) CacheKey() string       { return rc.cacheKey }
func (rc *RequestContext) State() State           { return State(rc.state.Load()) }

func (rc *RequestContext) MemoryCacheKey() string     { return rc.cacheKey }
func (rc *RequestContext) ResultCacheLockKey() string { return rc.cacheKey + "_result" }
func (rc *RequestContext) ResultCacheDataKey() string { return rc.cacheKey + "_result_data" }
func (rc *RequestContext) ResultCacheMetaKey() string { return rc.cacheKey + "_result_meta" }

// SetState moves the request to s. Terminal states are final.
func (rc *RequestContext) SetState(s State) {
	for {
		cur := State(rc.state.Load())
		if cur.IsTerminal() || cur == s {
			return
		}
		if rc.state.CompareAndSwap(int32(cur), int32(s)) {
			if rc.onState != nil {
				rc.onState(rc, cur, s)
			}
			return
		}
	}
}

// buildCacheKey renders every option that changes the decoded output.
func buildCacheKey(req *ImageRequest, size Size, decoders []DecodeInterceptor, requests []RequestInterceptor) string {
	var b strings.Builder
	b.WriteString(req.URI())
	b.WriteString("?_size=")
	b.WriteString(size.String())
	b.WriteString("&_precision=")
	b.WriteString(req.PrecisionDecider().Key())
	b.WriteString("&_scale=")
	b.WriteString(req.ScaleDecider().Key())
	if ts := req.Transformations(); len(ts) > 0 {
		b.WriteString("&_transformations=[")
		for i, t := range ts {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.Key())
		}
		b.WriteByte(']')
	}
	b.WriteString("&_bitmapConfig=")
	b.WriteString(req.BitmapConfig().String())
	if req.IgnoreExifOrientation() {
		b.WriteString("&_ignoreExifOrientation=true")
	}
	writeInterceptorKeys(&b, "&_requestInterceptors=", keysOf(requests))
	writeInterceptorKeys(&b, "&_decodeInterceptors=", keysOfDecode(decoders))
	if p := req.parametersKey(); p != "" {
		b.WriteString("&_parameters=")
		b.WriteString(p)
	}
	return b.String()
}

func writeInterceptorKeys(b *strings.Builder, label string, keys []string) {
	if len(keys) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteByte('[')
	b.WriteString(strings.Join(keys, ","))
	b.WriteByte(']')
}

func keysOf(ics []RequestInterceptor) []string {
	var out []string
	for _, ic := range ics {
		if k := ic.Key(); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func keysOfDecode(ics []DecodeInterceptor) []string {
	var out []string
	for _, ic := range ics {
		if k := ic.Key(); k != "" {
			out = append(out, k)
		}
	}
	return out
}
