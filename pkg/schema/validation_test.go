package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("blocks[0].type", ErrCodeValidation, "type is required")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "blocks[0].type", r.Errors[0].Path)
	assert.Equal(t, ErrCodeValidation, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_WarningsStayValid(t *testing.T) {
	r := &ValidationResult{}
	r.AddBlockWarning("b3", "blocks[2]", ErrCodeCycleDetected, "block is part of a cycle")

	assert.True(t, r.Valid())
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "b3", r.Warnings[0].BlockID)
	assert.True(t, r.HasCode(ErrCodeCycleDetected))
	assert.False(t, r.HasCode(ErrCodeNotFound))
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r1.AddWarning("/", ErrCodeValidation, "warn1")

	r2 := &ValidationResult{}
	r2.AddError("blocks[0]", ErrCodeInvalidYAML, "err2")
	r2.AddWarning("blocks[1]", ErrCodeValidation, "warn2")

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 2)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("a", ErrCodeValidation, "first")
	r.AddError("b", ErrCodeValidation, "second")

	err := r.ToError()
	require.Error(t, err)

	var se *StudioError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrCodeValidation, se.Code)
	assert.Contains(t, se.Message, "2 errors")
	assert.Equal(t, 2, se.Details["error_count"])
}

func TestStudioError_Format(t *testing.T) {
	cause := errors.New("disk full")
	err := NewErrorf(ErrCodeStore, "save %s", "p1").WithBlock("b2").WithCause(cause)

	assert.Equal(t, "[STORE_ERROR] block b2: save p1", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[NOT_FOUND] missing", NewError(ErrCodeNotFound, "missing").Error())
}
