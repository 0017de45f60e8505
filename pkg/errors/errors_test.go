package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("db down")
	err := Wrap(cause, ErrInternal.Code, ErrInternal.Status, "failed to list")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to list")
	assert.Contains(t, err.Error(), "db down")
}

func TestFromErrorNormalises(t *testing.T) {
	typed := Clone(ErrNotFound, "incident not found")
	assert.Equal(t, ErrNotFound.Code, FromError(typed).Code)

	wrapped := fmt.Errorf("context: %w", typed)
	assert.Equal(t, ErrNotFound.Code, FromError(wrapped).Code)

	plain := errors.New("boom")
	normalised := FromError(plain)
	assert.Equal(t, ErrInternal.Code, normalised.Code)
	assert.Equal(t, http.StatusInternalServerError, normalised.Status)

	assert.Nil(t, FromError(nil))
}

func TestCloneKeepsKind(t *testing.T) {
	clone := Clone(ErrForbidden, "custom message")
	assert.Equal(t, ErrForbidden.Code, clone.Code)
	assert.Equal(t, ErrForbidden.Status, clone.Status)
	assert.Equal(t, "custom message", clone.Message)

	// clones must not alias the sentinel
	assert.NotSame(t, ErrForbidden, clone)
	assert.Equal(t, "forbidden", ErrForbidden.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	assert.True(t, Is(Clone(ErrValidation, "bad input"), ErrValidation))
	assert.True(t, Is(fmt.Errorf("outer: %w", Clone(ErrConflict, "")), ErrConflict))
	assert.False(t, Is(Clone(ErrValidation, ""), ErrConflict))
	assert.False(t, Is(errors.New("plain"), ErrValidation))
	assert.False(t, Is(nil, ErrValidation))
}
