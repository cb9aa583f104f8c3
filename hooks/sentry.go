package hooks

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Error reporting ───────────────────────────────────────────────────────────

// SentryListener reports failed requests to Sentry. Depth refusals and
// cancellations are not reported.
type SentryListener struct {
	hub *sentry.Hub
}

// NewSentryListener reports through hub; nil uses sentry.CurrentHub().
func NewSentryListener(hub *sentry.Hub) *SentryListener {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryListener{hub: hub}
}

func (s *SentryListener) OnStart(*core.ImageRequest)                      {}
func (s *SentryListener) OnSuccess(*core.ImageRequest, *core.ImageResult) {}
func (s *SentryListener) OnCancel(*core.ImageRequest)                     {}

func (s *SentryListener) OnError(req *core.ImageRequest, result *core.ImageResult) {
	err := result.Err
	if err == nil || apperrors.IsCanceled(err) || apperrors.IsCategory(err, apperrors.CategoryDepth) {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("category", categoryOf(err))
		scope.SetTag("uri", req.URI())
		scope.SetTag("depth", req.Depth().String())
		s.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for buffered events.
func (s *SentryListener) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

var _ core.Listener = (*SentryListener)(nil)
