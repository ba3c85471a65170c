package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
		fatal     bool
	}{
		{name: "internal is retryable", err: ErrInternal, retryable: true},
		{name: "timeout is retryable", err: ErrTimeout, retryable: true},
		{name: "validation is fatal", err: ErrValidation, fatal: true},
		{name: "malformed rule is fatal", err: ErrMalformedRule, fatal: true},
		{name: "not found is fatal", err: ErrNotFound, fatal: true},
		{name: "forced fatal", err: ErrInternal.AsFatal(), fatal: true},
		{name: "forced retryable", err: ErrValidation.AsRetryable(), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, tt.fatal, tt.err.IsFatal())
		})
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ErrConflict.WithMessage("rule r1 already exists")
	wrapped := fmt.Errorf("failed to add rule: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, IsConflict(wrapped))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(wrapped))
	assert.Contains(t, err.Error(), "rule r1 already exists")
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrNotFound.WithDetail("id", "r1")
	assert.Empty(t, ErrNotFound.Details)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("boom")))
	assert.True(t, IsPermanent(ErrValidation))
	assert.True(t, IsPermanent(fmt.Errorf("wrap: %w", ErrInternal.AsFatal())))
	assert.False(t, IsPermanent(ErrTimeout))
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("kaboom")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "kaboom")

	cause := errors.New("inner")
	err = RecoverPanic(cause)
	assert.True(t, errors.Is(err, cause))
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrNotFound.WithDetail("id", "r9"))
	assert.Equal(t, "NOT_FOUND", resp["error_code"])
	assert.Equal(t, map[string]interface{}{"id": "r9"}, resp["details"])

	resp = ToErrorResponse(errors.New("plain"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
}
