package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	app := newApp()

	names := make([]string, 0, len(app.Commands))
	for _, command := range app.Commands {
		names = append(names, command.Name)
	}

	assert.Equal(t, []string{"start", "list", "bestblock", "invalidate", "health", "settings"}, names)
}

func TestStoreCommands(t *testing.T) {
	app := newApp()

	require.NoError(t, app.Run([]string{progname, "bestblock", "--store", "memory://"}))
	require.NoError(t, app.Run([]string{progname, "list", "--store", "memory://", "-n", "5"}))

	err := app.Run([]string{progname, "invalidate", "--store", "memory://"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoBlockAvailable))

	err = app.Run([]string{progname, "list", "--store", "nosuchscheme://"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestHealthCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/readiness" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	app := newApp()

	require.NoError(t, app.Run([]string{progname, "health", "--address", server.URL, "--liveness"}))

	err := app.Run([]string{progname, "health", "--address", server.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))
}
