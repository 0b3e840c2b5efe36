// Package rank keeps addresses ordered by balance so the richest can be listed without sorting.
//
// An Index is not safe for concurrent use; the store owning it serialises access.
package rank

import (
	"github.com/bsv-blockchain/richlist/model"
)

type Index struct {
	root    *node
	amounts map[string]model.Amount
}

func New() *Index {
	return &Index{
		amounts: make(map[string]model.Amount),
	}
}

// Len returns the number of ranked addresses.
func (x *Index) Len() int {
	return len(x.amounts)
}

// Get returns the ranked amount of address.
func (x *Index) Get(address string) (model.Amount, bool) {
	a, ok := x.amounts[address]
	return a, ok
}

// Update moves address to the position for amount. A non-positive amount removes it.
func (x *Index) Update(address string, amount model.Amount) {
	if old, ok := x.amounts[address]; ok {
		if old.Cmp(amount) == 0 {
			return
		}

		_, _ = remove(key{amount: old, address: address}, &x.root)
		delete(x.amounts, address)
	}

	if amount.Sign() <= 0 {
		return
	}

	x.root, _, _ = insert(key{amount: amount, address: address}, x.root)
	x.amounts[address] = amount
}

// TopN returns up to n entries, richest first, ties ordered by address.
func (x *Index) TopN(n int) []model.Balance {
	if n <= 0 {
		return []model.Balance{}
	}

	size := n
	if len(x.amounts) < size {
		size = len(x.amounts)
	}

	result := make([]model.Balance, 0, size)
	stack := make([]*node, 0, 64)
	p := x.root

	for (p != nil || len(stack) > 0) && len(result) < n {
		for p != nil {
			stack = append(stack, p)
			p = p.left
		}

		p = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		result = append(result, model.Balance{Address: p.key.address, Balance: p.key.amount})
		p = p.right
	}

	return result
}

// Rebuild discards the index and ranks balances from scratch.
func (x *Index) Rebuild(balances map[string]model.Amount) {
	x.root = nil
	x.amounts = make(map[string]model.Amount, len(balances))

	for address, amount := range balances {
		x.Update(address, amount)
	}
}

// Check verifies that the tree is balanced and mirrors the address map.
func (x *Index) Check() bool {
	if depth(x.root) < 0 {
		return false
	}

	count := 0
	stack := make([]*node, 0, 64)
	p := x.root

	var prev *key

	for p != nil || len(stack) > 0 {
		for p != nil {
			stack = append(stack, p)
			p = p.left
		}

		p = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if prev != nil && prev.compare(p.key) >= 0 {
			return false
		}

		if a, ok := x.amounts[p.key.address]; !ok || a.Cmp(p.key.amount) != 0 {
			return false
		}

		k := p.key
		prev = &k
		count++
		p = p.right
	}

	return count == len(x.amounts)
}
