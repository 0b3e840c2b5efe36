package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node/memnode"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/stores/richlist/memory"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDaemon(t *testing.T, opts ...Option) (*Daemon, *settings.Settings) {
	t.Helper()

	tSettings := settings.NewTestSettings()
	tSettings.PrometheusListenAddress = "localhost:0"

	opts = append([]Option{WithLoggerFactory(func(string) ulogger.Logger { return ulogger.TestLogger{} })}, opts...)

	return New(opts...), tSettings
}

func TestDaemonRunsUntilStopped(t *testing.T) {
	n := memnode.New()
	_, err := n.AddBlock("b1", &model.Transaction{Hash: "t1", Outputs: []model.Output{{Address: "addr1", Satoshis: "80"}}})
	require.NoError(t, err)

	store := memory.New(ulogger.TestLogger{})

	d, tSettings := testDaemon(t, WithNode(n), WithStore(store))

	readyCh := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- d.Start(ulogger.TestLogger{}, tSettings, readyCh)
	}()

	select {
	case <-readyCh:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "daemon never became ready")
	}

	require.Eventually(t, func() bool {
		best, err := store.BestBlock(context.Background())
		return err == nil && best.Hash == "b1"
	}, 5*time.Second, 10*time.Millisecond)

	status, _, err := d.ServiceManager.HealthHandler(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 200, status)

	require.NoError(t, d.Stop())
	require.NoError(t, <-errCh)
	assert.Equal(t, 0, n.Subscribers())
}

func TestDaemonUnknownNotificationSource(t *testing.T) {
	d, tSettings := testDaemon(t, WithStore(memory.New(ulogger.TestLogger{})))
	tSettings.RichList.NotificationSource = "carrier-pigeon"

	err := d.Start(ulogger.TestLogger{}, tSettings)
	require.Error(t, err)

	// Stop on a daemon that already returned does not block
	require.NoError(t, d.Stop(time.Second))
}
