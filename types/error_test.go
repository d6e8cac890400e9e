package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrToolNotFound, "no such tool").WithComponent("web_search")
	assert.Equal(t, "[TOOL_NOT_FOUND] web_search: no such tool", err.Error())

	cause := errors.New("dial tcp: connection refused")
	err = NewError(ErrProviderUnavailable, "discovery failed").WithCause(cause)
	assert.Contains(t, err.Error(), "PROVIDER_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsCode_Chain(t *testing.T) {
	inner := NewError(ErrToolNotFound, "missing").WithComponent("search")
	outer := NewError(ErrBuild, "agent build failed").WithCause(inner)
	wrapped := fmt.Errorf("submit: %w", outer)

	assert.True(t, IsCode(wrapped, ErrBuild))
	assert.True(t, IsCode(wrapped, ErrToolNotFound))
	assert.False(t, IsCode(wrapped, ErrValidation))
	assert.Equal(t, ErrBuild, GetErrorCode(wrapped))
}

func TestValidationError_CollectsAll(t *testing.T) {
	verr := NewValidationError([]error{
		errors.New("duplicate agent role: researcher"),
		errors.New("task write: agent \"editor\" not found"),
	})

	require.Len(t, verr.Problems, 2)
	assert.Contains(t, verr.Error(), "2 problem(s)")
	assert.Contains(t, verr.Error(), "duplicate agent role")

	wrapped := fmt.Errorf("parse: %w", verr)
	got, ok := AsValidationError(wrapped)
	require.True(t, ok)
	assert.Equal(t, verr.Problems, got.Problems)
}
