// Package bitcoind adapts a bitcoind compatible JSON-RPC and ZMQ endpoint to node.Node.
package bitcoind

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util/retry"
	"github.com/jellydator/ttlcache/v3"
	"github.com/ordishs/go-bitcoin"
)

// coinDecimals is the number of decimals of the coin values reported by the node.
const coinDecimals = 8

type Node struct {
	logger   ulogger.Logger
	client   *bitcoin.Bitcoind
	zmqURL   *url.URL
	heights  *ttlcache.Cache[string, uint32]
	retries  int
	backoff  time.Duration
	rpcHost  string
	zmqTopic string
}

func New(logger ulogger.Logger, tSettings *settings.Settings) (*Node, error) {
	rpcURL := tSettings.RichList.NodeRPC
	if rpcURL == nil {
		return nil, errors.NewConfigurationError("richlist_nodeRPC is not set")
	}

	client, err := bitcoin.NewFromURL(rpcURL, rpcURL.Scheme == "https")
	if err != nil {
		return nil, errors.NewServiceError("could not create bitcoin client for %s", rpcURL.Host, err)
	}

	heights := ttlcache.New[string, uint32](
		ttlcache.WithTTL[string, uint32](tSettings.RichList.HeaderCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, uint32](),
	)

	go heights.Start()

	retries := tSettings.RichList.RPCRetries
	if retries < 1 {
		retries = 1
	}

	return &Node{
		logger:   logger.New("btcd"),
		client:   client,
		zmqURL:   tSettings.RichList.NodeZMQ,
		heights:  heights,
		retries:  retries,
		backoff:  tSettings.RichList.RPCBackoff,
		rpcHost:  rpcURL.Host,
		zmqTopic: "hashblock",
	}, nil
}

// Close stops the header cache janitor.
func (n *Node) Close() {
	n.heights.Stop()
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no such") ||
		strings.Contains(msg, "-5:") ||
		strings.Contains(msg, "-8:")
}

// call runs f with retries on transport failures. Not-found answers are returned at once,
// converted by notFound.
func call[T any](ctx context.Context, n *Node, what string, f func() (T, error), notFound func(err error) error) (T, error) {
	result, err := retry.Retry(ctx, n.logger, func() (T, error) {
		r, err := f()
		if err != nil && !isNotFound(err) {
			return r, errors.NewNetworkError("[bitcoind] %s failed", what, err)
		}

		return r, err
	},
		retry.WithRetryCount(n.retries),
		retry.WithBackoffDurationType(n.backoff),
		retry.WithExponentialBackoff(),
		retry.WithMessage("[bitcoind] "+what),
		retry.WithRetryIf(errors.IsRetryableError),
	)
	if err != nil && isNotFound(err) {
		var zero T
		return zero, notFound(err)
	}

	return result, err
}

func (n *Node) GetBestBlockHash(ctx context.Context) (string, error) {
	return call(ctx, n, "getbestblockhash", n.client.GetBestBlockHash, func(err error) error {
		return errors.NewServiceUnavailableError("node has no best block", err)
	})
}

func (n *Node) GetBlockHeader(ctx context.Context, hash string) (*model.BlockHeader, error) {
	header, err := call(ctx, n, "getblockheader "+hash, func() (*bitcoin.BlockHeader, error) {
		return n.client.GetBlockHeader(hash)
	}, func(err error) error {
		return errors.NewBlockNotFoundError("block %s not found", hash, err)
	})
	if err != nil {
		return nil, err
	}

	if header.Confirmations < 0 {
		// known, but no longer on the best chain
		header.NextBlockHash = ""
	}

	h := &model.BlockHeader{
		Hash:         header.Hash,
		Height:       uint32(header.Height), //nolint:gosec // block heights fit in uint32
		PreviousHash: header.PreviousBlockHash,
		NextHash:     header.NextBlockHash,
	}

	n.heights.Set(h.Hash, h.Height, ttlcache.DefaultTTL)

	return h, nil
}

func (n *Node) GetBlockHeaderByHeight(ctx context.Context, height uint32) (*model.BlockHeader, error) {
	hash, err := call(ctx, n, "getblockhash "+strconv.FormatUint(uint64(height), 10), func() (string, error) {
		return n.client.GetBlockHash(int(height))
	}, func(err error) error {
		return errors.NewBlockNotFoundError("no block at height %d", height, err)
	})
	if err != nil {
		return nil, err
	}

	return n.GetBlockHeader(ctx, hash)
}

func (n *Node) GetBlockOverview(ctx context.Context, hash string) (*model.BlockOverview, error) {
	block, err := call(ctx, n, "getblock "+hash, func() (*bitcoin.Block, error) {
		return n.client.GetBlock(hash)
	}, func(err error) error {
		return errors.NewBlockNotFoundError("block %s not found", hash, err)
	})
	if err != nil {
		return nil, err
	}

	overview := &model.BlockOverview{
		Hash:         block.Hash,
		Height:       uint32(block.Height), //nolint:gosec // block heights fit in uint32
		PreviousHash: block.PreviousBlockHash,
		TxIDs:        block.Tx,
	}

	n.heights.Set(overview.Hash, overview.Height, ttlcache.DefaultTTL)

	return overview, nil
}

// blockHeight resolves the height of the block a transaction was mined in, -1 when unconfirmed.
func (n *Node) blockHeight(ctx context.Context, blockHash string) (int64, error) {
	if blockHash == "" {
		return -1, nil
	}

	if item := n.heights.Get(blockHash); item != nil {
		return int64(item.Value()), nil
	}

	header, err := n.GetBlockHeader(ctx, blockHash)
	if err != nil {
		return 0, err
	}

	return int64(header.Height), nil
}

func coinsToSatoshis(v float64) json.Number {
	return json.Number(strconv.FormatFloat(v, 'f', coinDecimals, 64))
}

func scriptAddress(addresses []string) string {
	if len(addresses) != 1 {
		// bare multisig and non standard scripts have no single owner
		return ""
	}

	return addresses[0]
}

func (n *Node) GetDetailedTransaction(ctx context.Context, txid string) (*model.Transaction, error) {
	raw, err := call(ctx, n, "getrawtransaction "+txid, func() (*bitcoin.RawTransaction, error) {
		return n.client.GetRawTransaction(txid)
	}, func(err error) error {
		return errors.NewTxNotFoundError("tx %s not found", txid, err)
	})
	if err != nil {
		return nil, err
	}

	height, err := n.blockHeight(ctx, raw.BlockHash)
	if err != nil {
		return nil, err
	}

	tx := &model.Transaction{
		Hash:    raw.TxID,
		Height:  height,
		Inputs:  make([]model.Input, 0, len(raw.Vin)),
		Outputs: make([]model.Output, 0, len(raw.Vout)),
	}

	for _, in := range raw.Vin {
		tx.Inputs = append(tx.Inputs, model.Input{
			PrevTxID:    in.Txid,
			OutputIndex: uint32(in.Vout), //nolint:gosec // output indexes fit in uint32
		})
	}

	for _, out := range raw.Vout {
		satoshis, err := model.ParseAmountScaled(string(coinsToSatoshis(out.Value)), coinDecimals)
		if err != nil {
			return nil, errors.NewTxInvalidError("tx %s has invalid output value %v", txid, out.Value, err)
		}

		tx.Outputs = append(tx.Outputs, model.Output{
			Address:  scriptAddress(out.ScriptPubKey.Addresses),
			Satoshis: json.Number(satoshis.String()),
		})
	}

	return tx, nil
}

func (n *Node) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if _, err := n.GetBestBlockHash(ctx); err != nil {
		return http.StatusServiceUnavailable, "node " + n.rpcHost + " unavailable", err
	}

	return http.StatusOK, "OK", nil
}
