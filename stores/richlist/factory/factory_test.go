package factory

import (
	"context"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/settings"
	storelogger "github.com/bsv-blockchain/richlist/stores/richlist/logger"
	"github.com/bsv-blockchain/richlist/stores/richlist/memory"
	"github.com/bsv-blockchain/richlist/stores/richlist/tests"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreSchemes(t *testing.T) {
	ctx := context.Background()

	tSettings := settings.NewTestSettings()
	tSettings.DataFolder = t.TempDir()

	for _, raw := range []string{
		"memory://",
		"sqlitememory:///richlist",
		"sqlite:///richlist",
		"leveldbmemory:///",
		"leveldb:///richlist",
	} {
		t.Run(raw, func(t *testing.T) {
			storeURL, err := url.Parse(raw)
			require.NoError(t, err)

			s, err := NewStore(ctx, ulogger.TestLogger{}, tSettings, storeURL)
			require.NoError(t, err)

			defer func() {
				_ = s.Close(ctx)
			}()

			require.NoError(t, s.InsertBlock(ctx, tests.Block1))

			top, err := s.GetMostRichest(ctx, 100)
			require.NoError(t, err)
			assert.Equal(t, []string{"addr1=80", "addr2=4"}, tests.Pairs(top))
		})
	}
}

func TestNewStoreFallsBackToSettings(t *testing.T) {
	tSettings := settings.NewTestSettings()
	tSettings.RichList.StoreURL, _ = url.Parse("memory://")

	s, err := NewStore(context.Background(), ulogger.TestLogger{}, tSettings, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Memory{}, s)
}

func TestNewStoreLogging(t *testing.T) {
	storeURL, err := url.Parse("memory://?logging=true")
	require.NoError(t, err)

	s, err := NewStore(context.Background(), ulogger.TestLogger{}, settings.NewTestSettings(), storeURL)
	require.NoError(t, err)
	assert.IsType(t, &storelogger.Store{}, s)
}

func TestNewStoreUnknownScheme(t *testing.T) {
	storeURL, err := url.Parse("aerospike://localhost:3000/test")
	require.NoError(t, err)

	_, err = NewStore(context.Background(), ulogger.TestLogger{}, settings.NewTestSettings(), storeURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
