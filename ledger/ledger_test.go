package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup map[OutPoint]*OutputRecord

func (m mapLookup) get(_ context.Context, op OutPoint) (*OutputRecord, error) {
	return m[op], nil
}

func out(address string, sats string) model.Output {
	return model.Output{Address: address, Satoshis: json.Number(sats)}
}

func in(txid string, idx uint32) model.Input {
	return model.Input{PrevTxID: txid, OutputIndex: idx}
}

func changesAsStrings(changes []Change) map[string]string {
	m := make(map[string]string, len(changes))
	for _, c := range changes {
		m[c.Address] = c.Delta.String()
	}

	return m
}

func TestBuildCreatesAndSpends(t *testing.T) {
	known := mapLookup{
		{TxID: "t1", Index: 0}: {OutPoint: OutPoint{TxID: "t1", Index: 0}, Address: "addr1", Amount: model.NewAmount(80), BlockHash: "b1"},
	}

	block := &model.Block{
		Hash:   "b2",
		Height: 2,
		Transactions: []*model.Transaction{
			{Hash: "cb2", Height: 2, Inputs: []model.Input{{}}, Outputs: []model.Output{out("addr2", "4")}},
			{Hash: "t2", Height: 2, Inputs: []model.Input{in("t1", 0)}, Outputs: []model.Output{out("addr3", "40"), out("addr4", "40")}},
		},
	}

	record, err := Build(context.Background(), block, known.get)
	require.NoError(t, err)

	assert.Len(t, record.Created, 3)
	require.Len(t, record.Spent, 1)
	assert.Equal(t, "b2", record.Spent[0].SpentBy)
	assert.Empty(t, known[OutPoint{TxID: "t1", Index: 0}].SpentBy, "lookup results must not be mutated")

	assert.Equal(t, map[string]string{"addr1": "-80", "addr2": "4", "addr3": "40", "addr4": "40"}, changesAsStrings(record.Changes(false)))
	assert.Equal(t, map[string]string{"addr1": "80", "addr2": "-4", "addr3": "-40", "addr4": "-40"}, changesAsStrings(record.Changes(true)))
	assert.Len(t, record.PriorSpent(), 1)
}

func TestBuildSkipsDustAndAddresslessOutputs(t *testing.T) {
	block := &model.Block{
		Hash: "b1",
		Transactions: []*model.Transaction{
			{Hash: "t1", Outputs: []model.Output{
				out("dust", "0.4"),
				out("", "1000"),
				out("rounded", "149.5"),
				out("zero", "0"),
			}},
		},
	}

	record, err := Build(context.Background(), block, mapLookup{}.get)
	require.NoError(t, err)

	require.Len(t, record.Created, 1)
	assert.Equal(t, "rounded", record.Created[0].Address)
	assert.Equal(t, "150", record.Created[0].Amount.String())
	assert.Equal(t, uint32(2), record.Created[0].Index)
}

func TestBuildInputsSkipped(t *testing.T) {
	spent := &OutputRecord{OutPoint: OutPoint{TxID: "old", Index: 0}, Address: "a", Amount: model.NewAmount(5), SpentBy: "bX"}

	block := &model.Block{
		Hash: "b1",
		Transactions: []*model.Transaction{
			{Hash: "t1", Inputs: []model.Input{
				{},                  // coinbase
				in("0000000000", 0), // zerocoin spend
				in("unknown", 3),    // never seen
				in("old", 0),        // already spent
			}},
		},
	}

	record, err := Build(context.Background(), block, mapLookup{{TxID: "old", Index: 0}: spent}.get)
	require.NoError(t, err)
	assert.Empty(t, record.Spent)
	assert.Empty(t, record.Changes(false))
}

func TestBuildSpendWithinBlock(t *testing.T) {
	block := &model.Block{
		Hash: "b1",
		Transactions: []*model.Transaction{
			{Hash: "t1", Outputs: []model.Output{out("a", "10")}},
			{Hash: "t2", Inputs: []model.Input{in("t1", 0), in("t1", 0)}, Outputs: []model.Output{out("b", "10")}},
		},
	}

	record, err := Build(context.Background(), block, mapLookup{}.get)
	require.NoError(t, err)

	require.Len(t, record.Spent, 1, "double reference is only spent once")
	assert.Equal(t, "b1", record.Created[0].SpentBy)
	assert.Empty(t, record.PriorSpent())
	assert.Equal(t, map[string]string{"b": "10"}, changesAsStrings(record.Changes(false)))
}

func TestBuildDoesNotRecreateKnownOutputs(t *testing.T) {
	known := mapLookup{
		{TxID: "dup", Index: 0}: {OutPoint: OutPoint{TxID: "dup", Index: 0}, Address: "a", Amount: model.NewAmount(50)},
	}

	block := &model.Block{
		Hash:         "b9",
		Transactions: []*model.Transaction{{Hash: "dup", Outputs: []model.Output{out("a", "50")}}},
	}

	record, err := Build(context.Background(), block, known.get)
	require.NoError(t, err)
	assert.Empty(t, record.Created)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), nil, mapLookup{}.get)
	require.True(t, errors.Is(err, errors.ErrInvalidArgument))

	failing := func(context.Context, OutPoint) (*OutputRecord, error) {
		return nil, errors.NewStorageUnavailableError("down")
	}

	_, err = Build(context.Background(), &model.Block{
		Hash:         "b1",
		Transactions: []*model.Transaction{{Hash: "t1", Outputs: []model.Output{out("a", "1")}}},
	}, failing)
	require.True(t, errors.Is(err, errors.ErrStorageError))

	_, err = Build(context.Background(), &model.Block{
		Hash:         "b1",
		Transactions: []*model.Transaction{{Hash: "t1", Outputs: []model.Output{out("a", "lots")}}},
	}, mapLookup{}.get)
	require.True(t, errors.Is(err, errors.ErrTxInvalid))
}

func TestBalancesApply(t *testing.T) {
	b := Balances{}

	b.Apply([]Change{{Address: "a", Delta: model.NewAmount(10)}, {Address: "b", Delta: model.NewAmount(3)}})
	result := b.Apply([]Change{{Address: "a", Delta: model.NewAmount(-10)}, {Address: "b", Delta: model.NewAmount(2)}})

	require.Len(t, result, 2)
	assert.True(t, result[0].Balance.IsZero())
	assert.Equal(t, "5", result[1].Balance.String())

	_, ok := b["a"]
	assert.False(t, ok)
	assert.Equal(t, "5", b["b"].String())
}

func TestResolve(t *testing.T) {
	current := map[string]model.Amount{"a": model.NewAmount(7)}

	result, err := Resolve(context.Background(), []Change{{Address: "a", Delta: model.NewAmount(-2)}, {Address: "n", Delta: model.NewAmount(1)}},
		func(_ context.Context, address string) (model.Amount, error) {
			return current[address], nil
		})
	require.NoError(t, err)
	assert.Equal(t, "5", result[0].Balance.String())
	assert.Equal(t, "1", result[1].Balance.String())
}

func TestCheckSuccessor(t *testing.T) {
	genesis := model.ChainPointer{}
	best := model.ChainPointer{Hash: "b1", Height: 1}

	require.NoError(t, CheckSuccessor(genesis, &model.Block{Hash: "b1", Height: 1, PreviousHash: "g"}))
	require.NoError(t, CheckSuccessor(best, &model.Block{Hash: "b2", Height: 2, PreviousHash: "b1"}))

	require.True(t, errors.Is(CheckSuccessor(best, &model.Block{Hash: "b3", Height: 3}), errors.ErrBlockInvalid))
	require.True(t, errors.Is(CheckSuccessor(best, &model.Block{Hash: "x2", Height: 2, PreviousHash: "other"}), errors.ErrBlockInvalid))
	require.True(t, errors.Is(CheckSuccessor(best, nil), errors.ErrInvalidArgument))
}
