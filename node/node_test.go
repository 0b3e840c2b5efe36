package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/node"
	"github.com/bsv-blockchain/richlist/node/memnode"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingNotifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := memnode.New()
	p := node.NewPollingNotifier(ulogger.TestLogger{}, n, 5*time.Millisecond)

	ch, err := p.Subscribe(ctx, "test")
	require.NoError(t, err)

	// the first poll always reports the current tip
	select {
	case notification := <-ch:
		assert.Equal(t, memnode.GenesisHash, notification.Hash)
		assert.Equal(t, model.NotificationTypeBlock, notification.Type)
	case <-time.After(time.Second):
		t.Fatal("no notification for the initial tip")
	}

	_, err = n.AddBlock("b1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case notification := <-ch:
			return notification.Hash == "b1"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestPollingNotifierNeedsInterval(t *testing.T) {
	p := node.NewPollingNotifier(ulogger.TestLogger{}, memnode.New(), 0)

	_, err := p.Subscribe(context.Background(), "test")
	require.Error(t, err)
}

func TestWithNotifier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream := memnode.New()
	other := memnode.New()

	n := node.WithNotifier(upstream, other)

	ch, err := n.Subscribe(ctx, "test")
	require.NoError(t, err)

	assert.Equal(t, 0, upstream.Subscribers())
	assert.Equal(t, 1, other.Subscribers())

	other.Notify()

	notification := <-ch
	assert.Equal(t, memnode.GenesisHash, notification.Hash)

	// lookups still go to the wrapped node
	_, err = upstream.AddBlock("b1")
	require.NoError(t, err)

	best, err := n.GetBestBlockHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", best)
}
