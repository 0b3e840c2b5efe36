package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(message string) func(context.Context, bool) (int, string, error) {
	return func(context.Context, bool) (int, string, error) {
		return http.StatusOK, message, nil
	}
}

func TestCheckAll(t *testing.T) {
	ctx := context.Background()

	status, details, err := CheckAll(ctx, false, []Check{
		{Name: "plain", Check: ok(`says "hi"`)},
		{Name: "nested", Check: ok(`{"status":"200"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	var body struct {
		Status       string                   `json:"status"`
		Dependencies []map[string]interface{} `json:"dependencies"`
	}

	require.NoError(t, json.Unmarshal([]byte(details), &body))
	assert.Equal(t, "200", body.Status)
	require.Len(t, body.Dependencies, 2)
	assert.Equal(t, `says "hi"`, body.Dependencies[0]["message"])
	assert.NotNil(t, body.Dependencies[1]["dependencies"])

	status, details, err = CheckAll(ctx, false, []Check{
		{Name: "plain", Check: ok("fine")},
		{Name: "broken", Check: func(context.Context, bool) (int, string, error) {
			return http.StatusServiceUnavailable, "down", errors.NewServiceError("boom")
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.True(t, json.Valid([]byte(details)))
	assert.Contains(t, details, "boom")
}

func TestCheckHTTPServer(t *testing.T) {
	var unhealthy atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/liveness", r.URL.Path)

		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_, _ = w.Write([]byte("state"))
	}))
	defer server.Close()

	check := CheckHTTPServer(server.URL+"/", "/health/liveness")

	status, message, err := check(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "state", message)

	unhealthy.Store(true)

	status, _, err = check(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	server.Close()

	status, _, err = check(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
