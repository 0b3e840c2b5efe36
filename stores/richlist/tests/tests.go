// Package tests holds behaviour every rich list store must share. Backend packages run it from
// their own tests against a fresh store per case.
package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a new, initialised and empty store.
type Factory func(t *testing.T) richlist.Store

func Out(address string, sats string) model.Output {
	return model.Output{Address: address, Satoshis: json.Number(sats)}
}

func In(txid string, idx uint32) model.Input {
	return model.Input{PrevTxID: txid, OutputIndex: idx}
}

func Tx(hash string, height uint32, inputs []model.Input, outputs ...model.Output) *model.Transaction {
	return &model.Transaction{Hash: hash, Height: int64(height), Inputs: inputs, Outputs: outputs}
}

func Block(hash string, height uint32, prev string, txs ...*model.Transaction) *model.Block {
	return &model.Block{Hash: hash, Height: height, PreviousHash: prev, Transactions: txs}
}

// Pairs renders balances as "address=amount" for readable comparisons.
func Pairs(balances []model.Balance) []string {
	result := make([]string, 0, len(balances))
	for _, b := range balances {
		result = append(result, fmt.Sprintf("%s=%s", b.Address, b.Balance))
	}

	return result
}

// Chain A and chain B share block 1 and fork at height 2.
var (
	Block1 = Block("b1", 1, "g",
		Tx("a1", 1, []model.Input{{}}, Out("addr1", "80"), Out("addr2", "4")),
	)
	Block2A = Block("b2a", 2, "b1",
		Tx("cb2a", 2, []model.Input{{}}),
		Tx("a2", 2, []model.Input{In("a1", 0)}, Out("addr3", "40"), Out("addr4", "40")),
	)
	Block2B = Block("b2b", 2, "b1",
		Tx("c2", 2, []model.Input{In("a1", 0)}, Out("addr5", "79.6")),
	)
	Block3B = Block("b3b", 3, "b2b",
		Tx("c3", 3, []model.Input{In("a1", 1), In("c2", 0)}, Out("addr2", "50"), Out("addr6", "34")),
	)
)

func RunAll(t *testing.T, factory Factory) {
	t.Run("empty store", func(t *testing.T) { Empty(t, factory(t)) })
	t.Run("reorg scenario", func(t *testing.T) { Reorg(t, factory(t)) })
	t.Run("insert then invalidate is identity", func(t *testing.T) { Idempotence(t, factory(t)) })
	t.Run("dust and addressless outputs", func(t *testing.T) { Dust(t, factory(t)) })
	t.Run("ordering", func(t *testing.T) { Ordering(t, factory(t)) })
	t.Run("successor checks", func(t *testing.T) { Successor(t, factory(t)) })
	t.Run("failed insert leaves state untouched", func(t *testing.T) { FailedInsert(t, factory(t)) })
	t.Run("spend within block", func(t *testing.T) { SpendWithinBlock(t, factory(t)) })
	t.Run("large amounts", func(t *testing.T) { LargeAmounts(t, factory(t)) })
	t.Run("random chain", func(t *testing.T) { RandomChain(t, factory(t)) })
}

func Empty(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	best, err := s.BestBlock(ctx)
	require.NoError(t, err)
	assert.True(t, best.IsGenesis())

	top, err := s.GetMostRichest(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = s.InvalidateLatestBlock(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoBlockAvailable))
}

func requireTop(t *testing.T, s richlist.Store, expected ...string) {
	t.Helper()

	top, err := s.GetMostRichest(context.Background(), 100)
	require.NoError(t, err)

	if expected == nil {
		expected = []string{}
	}

	require.Equal(t, expected, Pairs(top))
}

func requireBest(t *testing.T, s richlist.Store, hash string, height uint32) {
	t.Helper()

	best, err := s.BestBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.ChainPointer{Hash: hash, Height: height}, best)
}

func Reorg(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block1))
	requireBest(t, s, "b1", 1)
	requireTop(t, s, "addr1=80", "addr2=4")

	require.NoError(t, s.InsertBlock(ctx, Block2A))
	requireBest(t, s, "b2a", 2)
	requireTop(t, s, "addr3=40", "addr4=40", "addr2=4")

	best, err := s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ChainPointer{Hash: "b1", Height: 1}, best)
	requireBest(t, s, "b1", 1)
	requireTop(t, s, "addr1=80", "addr2=4")

	require.NoError(t, s.InsertBlock(ctx, Block2B))
	require.NoError(t, s.InsertBlock(ctx, Block3B))
	requireBest(t, s, "b3b", 3)
	requireTop(t, s, "addr2=50", "addr6=34")

	// unwind chain B completely
	_, err = s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)
	requireTop(t, s, "addr5=80", "addr2=4")

	_, err = s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)
	_, err = s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)

	requireBest(t, s, "", 0)
	requireTop(t, s)

	_, err = s.InvalidateLatestBlock(ctx)
	assert.True(t, errors.Is(err, errors.ErrNoBlockAvailable))

	// chain A replays cleanly after a full unwind
	require.NoError(t, s.InsertBlock(ctx, Block1))
	require.NoError(t, s.InsertBlock(ctx, Block2A))
	requireTop(t, s, "addr3=40", "addr4=40", "addr2=4")
}

func Idempotence(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block1))

	before, err := s.GetMostRichest(ctx, 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertBlock(ctx, Block2A))
		_, err = s.InvalidateLatestBlock(ctx)
		require.NoError(t, err)
	}

	after, err := s.GetMostRichest(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, Pairs(before), Pairs(after))
	requireBest(t, s, "b1", 1)

	// the output spent and restored by block 2a is spendable again
	require.NoError(t, s.InsertBlock(ctx, Block2B))
	requireTop(t, s, "addr5=80", "addr2=4")
}

func Dust(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block("d1", 1, "g",
		Tx("dust", 1, []model.Input{{}}, Out("tiny", "0.4"), Out("", "500"), Out("half", "0.5"), Out("none", "0")),
	)))

	requireTop(t, s, "half=1")

	// spending addressless or dust outputs changes nothing
	require.NoError(t, s.InsertBlock(ctx, Block("d2", 2, "d1",
		Tx("spend", 2, []model.Input{In("dust", 0), In("dust", 1), In("missing", 7)}, Out("half", "2")),
	)))

	requireTop(t, s, "half=3")
}

func Ordering(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block("o1", 1, "g",
		Tx("t1", 1, nil, Out("b", "7"), Out("B", "7"), Out("a", "7"), Out("aa", "7"), Out("rich", "1000"), Out("poor", "1")),
	)))

	requireTop(t, s, "rich=1000", "B=7", "a=7", "aa=7", "b=7", "poor=1")

	top, err := s.GetMostRichest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rich=1000", "B=7"}, Pairs(top))
}

func Successor(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	err := s.InsertBlock(ctx, Block2A)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockInvalid))

	require.NoError(t, s.InsertBlock(ctx, Block1))

	err = s.InsertBlock(ctx, Block("b1", 2, "b1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockExists))

	err = s.InsertBlock(ctx, Block("x2", 2, "not-b1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockInvalid))

	requireBest(t, s, "b1", 1)
	requireTop(t, s, "addr1=80", "addr2=4")
}

func FailedInsert(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block1))

	err := s.InsertBlock(ctx, Block("bad", 2, "b1",
		Tx("ok", 2, []model.Input{In("a1", 0)}, Out("addr9", "80")),
		Tx("broken", 2, nil, Out("addr9", "not-a-number")),
	))
	require.Error(t, err)

	requireBest(t, s, "b1", 1)
	requireTop(t, s, "addr1=80", "addr2=4")

	// a1:0 was not marked spent by the failed block
	require.NoError(t, s.InsertBlock(ctx, Block2A))
	requireTop(t, s, "addr3=40", "addr4=40", "addr2=4")
}

func SpendWithinBlock(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block1))
	require.NoError(t, s.InsertBlock(ctx, Block("w2", 2, "b1",
		Tx("w1", 2, []model.Input{In("a1", 0)}, Out("hop", "80")),
		Tx("w2", 2, []model.Input{In("w1", 0)}, Out("dest", "80")),
	)))

	requireTop(t, s, "dest=80", "addr2=4")

	_, err := s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)
	requireTop(t, s, "addr1=80", "addr2=4")

	require.NoError(t, s.InsertBlock(ctx, Block2A))
	requireTop(t, s, "addr3=40", "addr4=40", "addr2=4")
}

func LargeAmounts(t *testing.T, s richlist.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertBlock(ctx, Block("l1", 1, "g",
		Tx("big", 1, nil, Out("whale", "123456789012345678901234567890"), Out("minnow", "9223372036854775807")),
	)))
	require.NoError(t, s.InsertBlock(ctx, Block("l2", 2, "l1",
		Tx("more", 2, nil, Out("minnow", "9223372036854775807")),
	)))

	requireTop(t, s, "whale=123456789012345678901234567890", "minnow=18446744073709551614")

	// balances wider than forty digits still rank numerically
	require.NoError(t, s.InsertBlock(ctx, Block("l3", 3, "l2",
		Tx("wide", 3, nil,
			Out("shark", "9999999999999999999999999999999999999999"),
			Out("leviathan", "10000000000000000000000000000000000000000"),
		),
	)))

	requireTop(t, s,
		"leviathan=10000000000000000000000000000000000000000",
		"shark=9999999999999999999999999999999999999999",
		"whale=123456789012345678901234567890",
		"minnow=18446744073709551614",
	)

	_, err := s.InvalidateLatestBlock(ctx)
	require.NoError(t, err)
	requireTop(t, s, "whale=123456789012345678901234567890", "minnow=18446744073709551614")
}

// RandomChain applies a pseudo random chain, checks the ranking against a recomputation over the
// unspent outputs after every block and then unwinds it completely.
func RandomChain(t *testing.T, s richlist.Store) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))

	type utxo struct {
		txid    string
		idx     uint32
		address string
		amount  int64
	}

	var unspent []utxo

	const blocks = 25

	for h := uint32(1); h <= blocks; h++ {
		prev := fmt.Sprintf("r%d", h-1)
		if h == 1 {
			prev = "g"
		}

		var txs []*model.Transaction

		for n := 0; n < 4; n++ {
			txid := fmt.Sprintf("r%d-%d", h, n)

			var inputs []model.Input

			for k := 0; k < 2 && len(unspent) > 0; k++ {
				i := r.Intn(len(unspent))
				inputs = append(inputs, In(unspent[i].txid, unspent[i].idx))
				unspent = append(unspent[:i], unspent[i+1:]...)
			}

			var outputs []model.Output

			for k := 0; k < 3; k++ {
				address := fmt.Sprintf("addr%02d", r.Intn(12))
				amount := int64(r.Intn(100))
				outputs = append(outputs, Out(address, fmt.Sprintf("%d", amount)))

				if amount > 0 {
					unspent = append(unspent, utxo{txid, uint32(k), address, amount})
				}
			}

			txs = append(txs, Tx(txid, h, inputs, outputs...))
		}

		require.NoError(t, s.InsertBlock(ctx, Block(fmt.Sprintf("r%d", h), h, prev, txs...)))

		totals := make(map[string]int64)
		for _, u := range unspent {
			totals[u.address] += u.amount
		}

		type entry struct {
			address string
			amount  int64
		}

		entries := make([]entry, 0, len(totals))
		for a, v := range totals {
			entries = append(entries, entry{a, v})
		}

		sort.Slice(entries, func(i, j int) bool {
			if entries[i].amount != entries[j].amount {
				return entries[i].amount > entries[j].amount
			}

			return entries[i].address < entries[j].address
		})

		expected := make([]string, 0, len(entries))
		for _, e := range entries {
			expected = append(expected, fmt.Sprintf("%s=%d", e.address, e.amount))
		}

		requireTop(t, s, expected...)
	}

	for h := blocks; h > 0; h-- {
		_, err := s.InvalidateLatestBlock(ctx)
		require.NoError(t, err)
	}

	requireBest(t, s, "", 0)
	requireTop(t, s)
}
