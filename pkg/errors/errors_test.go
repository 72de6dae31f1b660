package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := stderrors.New("disk full")
	err := fmt.Errorf("commit board: %w", Wrap(KindPersistenceFailure, "store.insert", base))

	assert.Equal(t, KindPersistenceFailure, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsWalksNestedKinds(t *testing.T) {
	inner := New(KindTransientNetwork, "probe", "unreachable")
	outer := Wrap(KindFatalLoop, "discovery", inner)

	assert.True(t, Is(outer, KindFatalLoop))
	assert.True(t, Is(outer, KindTransientNetwork))
	assert.False(t, Is(outer, KindInputValidation))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindFatalLoop, "op", nil))
}

func TestErrorMessage(t *testing.T) {
	err := New(KindInputValidation, "pipeline", "search term is required")
	assert.Equal(t, "pipeline: input_validation error: search term is required", err.Error())

	wrapped := &Error{Kind: KindHTTPStatus, Message: "unexpected status", Code: 503, Err: stderrors.New("body")}
	assert.Equal(t, "http_status error: unexpected status: body", wrapped.Error())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindTransientNetwork, true},
		{KindTransientExtraction, true},
		{KindPersistenceFailure, true},
		{KindPersistenceConflict, false},
		{KindFatalLoop, false},
		{KindInputValidation, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.kind))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{0, 429, 500, 502, 503, 504, 599} {
		assert.True(t, IsRetryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsRetryableStatusCode(code), "code %d", code)
	}
}

func TestIsPermanent(t *testing.T) {
	notFound := &Error{Kind: KindHTTPStatus, Code: 404}
	unavailable := &Error{Kind: KindHTTPStatus, Code: 503}

	assert.True(t, IsPermanent(fmt.Errorf("download failed: %w", notFound)))
	assert.True(t, IsPermanent(New(KindInputValidation, "fetch", "too large")))
	assert.False(t, IsPermanent(fmt.Errorf("max retry attempts (3) exceeded: %w", unavailable)))
	assert.False(t, IsPermanent(New(KindTransientNetwork, "fetch", "reset")))
	assert.False(t, IsPermanent(stderrors.New("plain")))
	assert.False(t, IsPermanent(nil))
}
