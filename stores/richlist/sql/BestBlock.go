package sql

import (
	"context"
	"time"

	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/model"
)

func observe(operation string, start time.Time, err error) {
	prometheusSQLDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		prometheusSQLErrors.WithLabelValues(operation).Inc()
	}
}

func (s *SQL) BestBlock(ctx context.Context) (best model.ChainPointer, err error) {
	defer func(start time.Time) { observe("BestBlock", start, err) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.dbTimeout)
	defer cancel()

	best, err = bestBlock(ctx, s.db)
	if err != nil {
		return model.ChainPointer{}, errors.NewStorageError("[BestBlock] could not read best block", err)
	}

	return best, nil
}
