package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Message(t *testing.T) {
	err := Validation("x", "must be between 0 and 100, got %v", 150.0)
	assert.Equal(t, "x: must be between 0 and 100, got 150", err.Error())
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
}

func TestWrappedErrorsAreDetected(t *testing.T) {
	base := NotFound("annotation", "abc")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, `resolve: annotation "abc" not found`, wrapped.Error())
}

func TestExternalCallError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := External("generation", cause)

	assert.True(t, IsExternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "generation failed: timeout", err.Error())

	var ext *ExternalCallError
	assert.True(t, errors.As(err, &ext))
	assert.Equal(t, "generation", ext.Stage)
}

func TestConflictError_Message(t *testing.T) {
	err := Conflict("content item", "42", "scheduled", "canceled")
	assert.True(t, IsConflict(err))
	assert.Equal(t, `content item "42": expected state "scheduled", found "canceled"`, err.Error())

	bare := Conflict("pipeline", "p1", "", "")
	assert.Equal(t, `pipeline "p1" was modified concurrently`, bare.Error())
}

func TestStaleWrite_Message(t *testing.T) {
	moved := StaleWrite("content item", "42", "scheduled", "scheduled", 3, 4)
	assert.True(t, IsConflict(moved))
	assert.Equal(t, `content item "42": expected version 3, found 4 (state "scheduled")`, moved.Error())

	changed := StaleWrite("content item", "42", "scheduled", "canceled", 3, 4)
	assert.Equal(t, `content item "42": expected state "scheduled", found "canceled"`, changed.Error())
}
