package sql

import (
	"context"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
)

func (s *SQL) GetMostRichest(ctx context.Context, n int) (result []model.Balance, err error) {
	defer func(start time.Time) { observe("GetMostRichest", start, err) }(time.Now())

	if n <= 0 {
		return []model.Balance{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.dbTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, balance
		FROM balances
		ORDER BY balance DESC, address ASC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, errors.NewStorageError("[GetMostRichest] could not query balances", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	result = make([]model.Balance, 0, n)

	for rows.Next() {
		var (
			b       model.Balance
			balance string
		)

		if err = rows.Scan(&b.Address, &balance); err != nil {
			return nil, errors.NewStorageError("[GetMostRichest] could not scan balance", err)
		}

		if b.Balance, err = parseBalance(balance); err != nil {
			return nil, errors.NewStorageError("[GetMostRichest] invalid balance for %s", b.Address, err)
		}

		result = append(result, b)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("[GetMostRichest] could not read balances", err)
	}

	return result, nil
}
