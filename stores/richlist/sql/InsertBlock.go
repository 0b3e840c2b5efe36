package sql

import (
	"context"
	"database/sql"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/ledger"
	"github.com/bsv-blockchain/richlist/model"
)

func (s *SQL) InsertBlock(ctx context.Context, block *model.Block) (err error) {
	defer func(start time.Time) { observe("InsertBlock", start, err) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("[InsertBlock] could not begin transaction", err)
	}

	defer func() {
		// no-op once committed
		_ = txn.Rollback()
	}()

	best, err := bestBlock(ctx, txn)
	if err != nil {
		return errors.NewStorageError("[InsertBlock] could not read best block", err)
	}

	if err = ledger.CheckSuccessor(best, block); err != nil {
		return err
	}

	var exists int

	err = txn.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE hash = $1`, block.Hash).Scan(&exists)
	if err == nil {
		return errors.NewBlockExistsError("[InsertBlock] block %s already applied", block.Hash)
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return errors.NewStorageError("[InsertBlock] could not check block %s", block.Hash, err)
	}

	record, err := ledger.Build(ctx, block, lookupOutput(txn))
	if err != nil {
		return err
	}

	if _, err = txn.ExecContext(ctx, `
		INSERT INTO blocks (height, hash, previous_hash) VALUES ($1, $2, $3)
	`, int64(record.Height), record.Hash, record.PreviousHash); err != nil {
		return errors.NewStorageError("[InsertBlock] could not insert block %s", block.Hash, err)
	}

	for _, out := range record.Created {
		var spentBy sql.NullString
		if out.SpentBy != "" {
			spentBy = sql.NullString{String: out.SpentBy, Valid: true}
		}

		if _, err = txn.ExecContext(ctx, `
			INSERT INTO outputs (tx_id, idx, address, satoshis, block_hash, spent_by) VALUES ($1, $2, $3, $4, $5, $6)
		`, out.TxID, int64(out.Index), out.Address, out.Amount.String(), out.BlockHash, spentBy); err != nil {
			return errors.NewStorageError("[InsertBlock] could not insert output %s", out.OutPoint, err)
		}
	}

	for _, out := range record.PriorSpent() {
		if _, err = txn.ExecContext(ctx, `
			UPDATE outputs SET spent_by = $1 WHERE tx_id = $2 AND idx = $3
		`, block.Hash, out.TxID, int64(out.Index)); err != nil {
			return errors.NewStorageError("[InsertBlock] could not spend output %s", out.OutPoint, err)
		}
	}

	if err = applyChanges(ctx, txn, record.Changes(false)); err != nil {
		return errors.NewStorageError("[InsertBlock] could not update balances for block %s", block.Hash, err)
	}

	if err = txn.Commit(); err != nil {
		return errors.NewStorageError("[InsertBlock] could not commit block %s", block.Hash, err)
	}

	return nil
}
