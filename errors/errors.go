package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryInput     Category = "input"
	CategoryFetch     Category = "fetch"
	CategoryDecode    Category = "decode"
	CategoryEncode    Category = "encode"
	CategoryCache     Category = "cache"
	CategoryTransform Category = "transform"
	CategoryDepth     Category = "depth"
	CategoryPipeline  Category = "pipeline"
	CategoryStorage   Category = "storage"
	CategoryConfig    Category = "config"
	CategoryTransient Category = "transient"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context. Context cancellation is passed
// through untouched so callers can keep using errors.Is on it.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return err
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// IsCanceled reports whether err is the result of a cancelled request.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Sentinel errors for common failure modes.
var (
	ErrBlankURI          = errors.New("request uri is blank")
	ErrInvalidImage      = errors.New("invalid image")
	ErrInBitmap          = errors.New("reused bitmap does not fit decoded image")
	ErrNoFetcher         = errors.New("no fetcher for uri")
	ErrNoDecoder         = errors.New("no decoder for data")
	ErrDepthMemory       = errors.New("request depth is MEMORY and memory cache missed")
	ErrDepthLocal        = errors.New("request depth is LOCAL and data is not local")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrWorkerPoolFull    = errors.New("worker pool queue full")
	ErrCacheCorrupt      = errors.New("cache entry corrupt")
	ErrLoaderStopped     = errors.New("loader stopped")
)
