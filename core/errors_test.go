package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := configErr("set mode", ErrUnknownMode, "1/3")
	assert.EqualError(t, err, "configuration_error: set mode: 1/3: unknown stepping mode")
	assert.ErrorIs(t, err, ConfigurationError)
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.NotErrorIs(t, err, UsageError)

	wrapped := fmt.Errorf("loading: %w", err)
	assert.ErrorIs(t, wrapped, ConfigurationError)
	assert.Equal(t, ConfigurationError, CodeOf(wrapped))

	var e *Error
	if assert.True(t, errors.As(wrapped, &e)) {
		assert.Equal(t, "set mode", e.Op)
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, UsageError, CodeOf(usageErr("start", ErrRunActive, "")))
	assert.Equal(t, UsageError, CodeOf(UsageError))
	assert.Equal(t, Unknown, CodeOf(errors.New("boom")))
}
