package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Skryldev/image-loader/errors"
)

func TestWrap_KeepsCategoryAndCause(t *testing.T) {
	err := apperrors.Wrap(apperrors.CategoryFetch, "http.fetch", apperrors.ErrNoFetcher)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryFetch))
	assert.False(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
	assert.ErrorIs(t, err, apperrors.ErrNoFetcher)
	assert.Equal(t, "[fetch] http.fetch: no fetcher for uri", err.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, apperrors.Wrap(apperrors.CategoryFetch, "op", nil))
}

func TestWrap_PassesCancellationThrough(t *testing.T) {
	err := apperrors.Wrap(apperrors.CategoryDecode, "decode", fmt.Errorf("read: %w", context.Canceled))
	assert.True(t, apperrors.IsCanceled(err))
	var pe *apperrors.ProcessingError
	assert.False(t, errors.As(err, &pe))
}

func TestTransient_IsRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(apperrors.Transient("s3.get", errors.New("503"))))
	assert.False(t, apperrors.IsRetryable(apperrors.New(apperrors.CategoryInput, "x", apperrors.ErrBlankURI)))
	assert.False(t, apperrors.IsRetryable(errors.New("plain")))
}
