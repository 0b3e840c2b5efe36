package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", NewNetworkTimeoutError("rpc", context.DeadlineExceeded), false},
		{"network timeout", NewNetworkTimeoutError("rpc timed out"), true},
		{"service unavailable", NewServiceUnavailableError("node warming up"), true},
		{"storage error", NewStorageError("constraint"), false},
		{"plain connection refused", errors.New("dial tcp 127.0.0.1:8332: connect: connection refused"), true},
		{"plain other", errors.New("bad things"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "none", GetErrorCategory(nil))
	assert.Equal(t, "context", GetErrorCategory(context.Canceled))
	assert.Equal(t, "block", GetErrorCategory(ErrBlockNotFound))
	assert.Equal(t, "transaction", GetErrorCategory(ErrTxNotFound))
	assert.Equal(t, "storage", GetErrorCategory(NewStorageError("x")))
	assert.Equal(t, "service", GetErrorCategory(ErrNotSynchronized))
	assert.Equal(t, "network", GetErrorCategory(errors.New("unexpected EOF")))
	assert.Equal(t, "unknown", GetErrorCategory(errors.New("odd")))
}
