// Package ledger derives the balance effect of a block: which outputs it creates, which
// previously known outputs it spends and the per-address deltas that follow from both.
package ledger

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
)

// OutPoint identifies an output by transaction id and output index.
type OutPoint struct {
	TxID  string `json:"txId"`
	Index uint32 `json:"index"`
}

func (o OutPoint) String() string {
	return o.TxID + ":" + strconv.FormatUint(uint64(o.Index), 10)
}

// OutputRecord is an output the ledger knows about. SpentBy is the hash of the block spending
// it, empty while unspent.
type OutputRecord struct {
	OutPoint
	Address   string       `json:"address"`
	Amount    model.Amount `json:"amount"`
	BlockHash string       `json:"blockHash"`
	SpentBy   string       `json:"spentBy,omitempty"`
}

func (o *OutputRecord) clone() *OutputRecord {
	c := *o
	return &c
}

// BlockRecord is everything needed to apply a block and to undo it again.
type BlockRecord struct {
	Hash         string          `json:"hash"`
	Height       uint32          `json:"height"`
	PreviousHash string          `json:"previousHash,omitempty"`
	Created      []*OutputRecord `json:"created"`
	// Spent holds the outputs this block spends, including outputs it created itself.
	Spent []*OutputRecord `json:"spent"`
}

// Pointer returns the chain pointer for this block.
func (b *BlockRecord) Pointer() model.ChainPointer {
	return model.ChainPointer{Hash: b.Hash, Height: b.Height}
}

// LookupFunc returns the persisted output for op, or nil when the ledger has never seen it.
type LookupFunc func(ctx context.Context, op OutPoint) (*OutputRecord, error)

// IsCoinbaseInput reports whether an input spends nothing the ledger could know about: coinbase
// inputs carry no previous txid and zerocoin spends carry an all-zero one.
func IsCoinbaseInput(in model.Input) bool {
	if in.PrevTxID == "" {
		return true
	}

	return strings.Trim(in.PrevTxID, "0") == ""
}

// Build resolves block against the known outputs. Amounts are rounded to integers before
// anything else; outputs that round to zero or have no address produce no record. Inputs
// referencing unknown or already spent outputs are ignored. Outputs created earlier in the same
// block are resolved before the lookup is consulted.
func Build(ctx context.Context, block *model.Block, lookup LookupFunc) (*BlockRecord, error) {
	if block == nil {
		return nil, errors.NewInvalidArgumentError("block is nil")
	}

	record := &BlockRecord{
		Hash:         block.Hash,
		Height:       block.Height,
		PreviousHash: block.PreviousHash,
		Created:      make([]*OutputRecord, 0),
		Spent:        make([]*OutputRecord, 0),
	}

	created := make(map[OutPoint]*OutputRecord)
	spent := make(map[OutPoint]struct{})

	for _, tx := range block.Transactions {
		if tx == nil {
			continue
		}

		for _, in := range tx.Inputs {
			if IsCoinbaseInput(in) {
				continue
			}

			op := OutPoint{TxID: in.PrevTxID, Index: in.OutputIndex}
			if _, ok := spent[op]; ok {
				continue
			}

			if out, ok := created[op]; ok {
				out.SpentBy = block.Hash
				record.Spent = append(record.Spent, out)
				spent[op] = struct{}{}

				continue
			}

			out, err := lookup(ctx, op)
			if err != nil {
				return nil, errors.NewStorageError("[Ledger] could not look up output %s", op, err)
			}

			if out == nil || out.SpentBy != "" {
				continue
			}

			out = out.clone()
			out.SpentBy = block.Hash
			record.Spent = append(record.Spent, out)
			spent[op] = struct{}{}
		}

		for idx, o := range tx.Outputs {
			if o.Address == "" {
				continue
			}

			amount, err := model.ParseAmount(o.Satoshis.String())
			if err != nil {
				return nil, errors.NewTxInvalidError("[Ledger] tx %s output %d has invalid amount", tx.Hash, idx, err)
			}

			if amount.Sign() <= 0 {
				continue
			}

			op := OutPoint{TxID: tx.Hash, Index: uint32(idx)} //nolint:gosec // output index fits in uint32
			if _, ok := created[op]; ok {
				continue
			}

			existing, err := lookup(ctx, op)
			if err != nil {
				return nil, errors.NewStorageError("[Ledger] could not look up output %s", op, err)
			}

			if existing != nil {
				continue
			}

			out := &OutputRecord{
				OutPoint:  op,
				Address:   o.Address,
				Amount:    amount,
				BlockHash: block.Hash,
			}
			created[op] = out
			record.Created = append(record.Created, out)
		}
	}

	return record, nil
}

// Change is the net balance delta of one address.
type Change struct {
	Address string
	Delta   model.Amount
}

// Changes returns the net delta per address implied by the record, sorted by address, without
// zero deltas. With inverse set the deltas undo the block.
func (b *BlockRecord) Changes(inverse bool) []Change {
	deltas := make(map[string]model.Amount)

	for _, out := range b.Created {
		deltas[out.Address] = deltas[out.Address].Add(out.Amount)
	}

	for _, out := range b.Spent {
		deltas[out.Address] = deltas[out.Address].Sub(out.Amount)
	}

	changes := make([]Change, 0, len(deltas))

	for address, delta := range deltas {
		if delta.IsZero() {
			continue
		}

		if inverse {
			delta = delta.Neg()
		}

		changes = append(changes, Change{Address: address, Delta: delta})
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Address < changes[j].Address
	})

	return changes
}

// CreatedSet returns the outpoints created by the block.
func (b *BlockRecord) CreatedSet() map[OutPoint]struct{} {
	set := make(map[OutPoint]struct{}, len(b.Created))
	for _, out := range b.Created {
		set[out.OutPoint] = struct{}{}
	}

	return set
}

// PriorSpent returns the spent outputs that were created by earlier blocks. These are the
// outputs whose spent marker has to be cleared when the block is undone.
func (b *BlockRecord) PriorSpent() []*OutputRecord {
	created := b.CreatedSet()
	prior := make([]*OutputRecord, 0, len(b.Spent))

	for _, out := range b.Spent {
		if _, ok := created[out.OutPoint]; !ok {
			prior = append(prior, out)
		}
	}

	return prior
}

// CheckSuccessor verifies that block directly extends best.
func CheckSuccessor(best model.ChainPointer, block *model.Block) error {
	if block == nil || block.Hash == "" {
		return errors.NewInvalidArgumentError("block has no hash")
	}

	if block.Height != best.Height+1 {
		return errors.NewBlockInvalidError("block %s has height %d, expected %d", block.Hash, block.Height, best.Height+1)
	}

	if !best.IsGenesis() && block.PreviousHash != "" && block.PreviousHash != best.Hash {
		return errors.NewBlockInvalidError("block %s does not extend %s", block.Hash, best.Hash)
	}

	return nil
}
