package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")
	require.NotNil(t, err)
	require.Equal(t, ERR_NOT_FOUND, err.Code())
	require.Equal(t, "resource not found", err.Message())

	secondErr := New(ERR_INVALID_ARGUMENT, "[InsertBlock][%s] failed to apply: ", "_test_string_", err)
	thirdErr := New(ERR_BLOCK_INVALID, "[InsertBlock][%s] failed to apply: ", "_test_string_", secondErr)
	anotherErr := New(ERR_BLOCK_INVALID, "Another ERR, block is invalid")
	fourthErr := New(ERR_SERVICE_ERROR, "older error: ", thirdErr)

	require.Equal(t, "[InsertBlock][_test_string_] failed to apply: ", secondErr.Message())

	require.True(t, anotherErr.Is(thirdErr))
	require.True(t, fourthErr.Is(New(ERR_BLOCK_INVALID, "")))
	require.True(t, fourthErr.Is(ErrBlockInvalid))
	require.True(t, fourthErr.Is(err))

	require.False(t, anotherErr.Is(fourthErr))
	require.False(t, fourthErr.Is(ErrBlockNotFound))
}

func Test_FmtErrorCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")

	fmtError := fmt.Errorf("error: %w", err)
	require.True(t, errors.Is(fmtError, ErrNotFound))

	var tErr *Error
	require.True(t, As(fmtError, &tErr))
	require.Equal(t, ERR_NOT_FOUND, tErr.Code())
}

func Test_WrapsStandardErrors(t *testing.T) {
	err := NewStorageError("could not commit", context.Canceled)

	require.True(t, Is(err, ErrStorageError))
	require.True(t, Is(err, context.Canceled))
	require.ErrorIs(t, err.(*Error).Unwrap(), context.Canceled)
}

func Test_ErrorString(t *testing.T) {
	err := NewBlockNotFoundError("block %s", "abc")
	assert.Equal(t, "Error: BLOCK_NOT_FOUND (error code: 20), Message: block abc", err.Error())

	wrapped := NewStorageError("insert failed", err)
	assert.Contains(t, wrapped.Error(), "Wrapped err: Error: BLOCK_NOT_FOUND")

	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
}

func Test_InvalidCode(t *testing.T) {
	err := New(ERR(9999), "something")
	assert.Equal(t, "invalid error code", err.Message())
	assert.Equal(t, "ERR(9999)", ERR(9999).String())
}

func Test_Data(t *testing.T) {
	err := New(ERR_NOT_SYNCHRONIZED, "not synchronized")
	err.SetData("local", "aa")
	err.SetData("node", "bb")

	assert.Equal(t, "aa", err.GetData("local"))
	assert.Contains(t, err.Error(), "Data:")

	decoded, decodeErr := GetErrorData(err.Data().EncodeErrorData())
	require.NoError(t, decodeErr)
	assert.Equal(t, "bb", decoded.GetData("node"))
}

func Test_CodeOf(t *testing.T) {
	assert.Equal(t, ERR_TX_NOT_FOUND, CodeOf(fmt.Errorf("x: %w", ErrTxNotFound)))
	assert.Equal(t, ERR_UNKNOWN, CodeOf(errors.New("plain")))
}

func Test_Join(t *testing.T) {
	assert.Nil(t, Join(nil, nil))

	err := Join(errors.New("a"), nil, errors.New("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
}
