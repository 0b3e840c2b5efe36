package ledger

import (
	"context"

	"github.com/bsv-blockchain/richlist/model"
)

// Balances is an in-memory address to amount map holding only positive balances.
type Balances map[string]model.Amount

// Apply adds the changes and returns the resulting balance of every touched address. A result
// at or below zero removes the address.
func (b Balances) Apply(changes []Change) []model.Balance {
	result := make([]model.Balance, 0, len(changes))

	for _, c := range changes {
		next := b[c.Address].Add(c.Delta)
		if next.Sign() <= 0 {
			delete(b, c.Address)
		} else {
			b[c.Address] = next
		}

		result = append(result, model.Balance{Address: c.Address, Balance: next})
	}

	return result
}

// Resolve computes the new balances for changes against balances held elsewhere, for example
// inside a database transaction. get returns the current balance, zero when absent.
func Resolve(ctx context.Context, changes []Change, get func(ctx context.Context, address string) (model.Amount, error)) ([]model.Balance, error) {
	result := make([]model.Balance, 0, len(changes))

	for _, c := range changes {
		current, err := get(ctx, c.Address)
		if err != nil {
			return nil, err
		}

		result = append(result, model.Balance{Address: c.Address, Balance: current.Add(c.Delta)})
	}

	return result, nil
}
