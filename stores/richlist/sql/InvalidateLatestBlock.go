package sql

import (
	"context"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/ledger"
	"github.com/bsv-blockchain/richlist/model"
)

func (s *SQL) InvalidateLatestBlock(ctx context.Context) (best model.ChainPointer, err error) {
	defer func(start time.Time) { observe("InvalidateLatestBlock", start, err) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not begin transaction", err)
	}

	defer func() {
		_ = txn.Rollback()
	}()

	latest, err := bestBlock(ctx, txn)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read best block", err)
	}

	if latest.IsGenesis() {
		return model.ChainPointer{}, errors.NewNoBlockAvailableError("[InvalidateLatestBlock] no block to invalidate")
	}

	record := &ledger.BlockRecord{Hash: latest.Hash, Height: latest.Height}

	record.Created, err = selectOutputs(ctx, txn, `
		SELECT tx_id, idx, address, satoshis, block_hash, spent_by
		FROM outputs
		WHERE block_hash = $1
	`, latest.Hash)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read outputs of %s", latest.Hash, err)
	}

	record.Spent, err = selectOutputs(ctx, txn, `
		SELECT tx_id, idx, address, satoshis, block_hash, spent_by
		FROM outputs
		WHERE spent_by = $1
	`, latest.Hash)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read outputs spent by %s", latest.Hash, err)
	}

	if err = applyChanges(ctx, txn, record.Changes(true)); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not revert balances of %s", latest.Hash, err)
	}

	if _, err = txn.ExecContext(ctx, `
		UPDATE outputs SET spent_by = NULL WHERE spent_by = $1 AND block_hash <> $1
	`, latest.Hash); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not unspend outputs", err)
	}

	if _, err = txn.ExecContext(ctx, `DELETE FROM outputs WHERE block_hash = $1`, latest.Hash); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not delete outputs", err)
	}

	if _, err = txn.ExecContext(ctx, `DELETE FROM blocks WHERE height = $1`, int64(latest.Height)); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not delete block", err)
	}

	best, err = bestBlock(ctx, txn)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not read new best block", err)
	}

	if err = txn.Commit(); err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[InvalidateLatestBlock] could not commit", err)
	}

	return best, nil
}
