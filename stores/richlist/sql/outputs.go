package sql

import (
	"context"
	"database/sql"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/ledger"
	"github.com/bsv-blockchain/richlist/model"
	"github.com/bsv-blockchain/richlist/util/usql"
)

// lookupOutput returns a LookupFunc reading outputs inside txn.
func lookupOutput(txn *usql.Tx) ledger.LookupFunc {
	return func(ctx context.Context, op ledger.OutPoint) (*ledger.OutputRecord, error) {
		var (
			satoshis string
			spentBy  sql.NullString
		)

		out := &ledger.OutputRecord{OutPoint: op}

		err := txn.QueryRowContext(ctx, `
			SELECT address, satoshis, block_hash, spent_by
			FROM outputs
			WHERE tx_id = $1 AND idx = $2
		`, op.TxID, int64(op.Index)).Scan(&out.Address, &satoshis, &out.BlockHash, &spentBy)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, err
		}

		if out.Amount, err = model.ParseAmount(satoshis); err != nil {
			return nil, err
		}

		out.SpentBy = spentBy.String

		return out, nil
	}
}

// selectOutputs reads every matching output before returning, so the transaction is free for
// the next statement.
func selectOutputs(ctx context.Context, txn *usql.Tx, query string, args ...interface{}) ([]*ledger.OutputRecord, error) {
	rows, err := txn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rows.Close()
	}()

	result := make([]*ledger.OutputRecord, 0)

	for rows.Next() {
		var (
			idx      int64
			satoshis string
			spentBy  sql.NullString
		)

		out := &ledger.OutputRecord{}

		if err = rows.Scan(&out.TxID, &idx, &out.Address, &satoshis, &out.BlockHash, &spentBy); err != nil {
			return nil, err
		}

		out.Index = uint32(idx) //nolint:gosec // stored from uint32
		out.SpentBy = spentBy.String

		if out.Amount, err = model.ParseAmount(satoshis); err != nil {
			return nil, err
		}

		result = append(result, out)
	}

	return result, rows.Err()
}

func getBalance(txn *usql.Tx) func(ctx context.Context, address string) (model.Amount, error) {
	return func(ctx context.Context, address string) (model.Amount, error) {
		var balance string

		err := txn.QueryRowContext(ctx, `SELECT balance FROM balances WHERE address = $1`, address).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.Amount{}, nil
			}

			return model.Amount{}, err
		}

		return parseBalance(balance)
	}
}

// applyChanges writes the new balance of every changed address, removing those that drop to
// zero or below.
func applyChanges(ctx context.Context, txn *usql.Tx, changes []ledger.Change) error {
	balances, err := ledger.Resolve(ctx, changes, getBalance(txn))
	if err != nil {
		return err
	}

	for _, b := range balances {
		if b.Balance.Sign() <= 0 {
			if _, err = txn.ExecContext(ctx, `DELETE FROM balances WHERE address = $1`, b.Address); err != nil {
				return err
			}

			continue
		}

		formatted, err := formatBalance(b.Balance)
		if err != nil {
			return err
		}

		if _, err = txn.ExecContext(ctx, `
			INSERT INTO balances (address, balance) VALUES ($1, $2)
			ON CONFLICT (address) DO UPDATE SET balance = excluded.balance
		`, b.Address, formatted); err != nil {
			return err
		}
	}

	return nil
}
