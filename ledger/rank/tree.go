package rank

import (
	"strings"

	"github.com/bsv-blockchain/richlist/model"
)

// key orders entries by amount descending, then address ascending (bytewise).
type key struct {
	amount  model.Amount
	address string
}

// compare returns -1 when k sorts before o, +1 when after and 0 when equal.
func (k key) compare(o key) int {
	if c := k.amount.Cmp(o.amount); c != 0 {
		return -c
	}

	return strings.Compare(k.address, o.address)
}

type node struct {
	left    *node
	right   *node
	balance int // -1, 0 or +1: height(right) - height(left)
	key     key
}

// insert adds k below p and returns the possibly new subtree root, whether a node was added
// and whether the subtree height grew.
func insert(k key, p *node) (*node, bool, bool) {
	if p == nil {
		return &node{key: k}, true, true
	}

	added := false
	h := false

	switch p.key.compare(k) {
	case +1: // p.key > k
		p.left, added, h = insert(k, p.left)
		if !h {
			break
		}

		// left branch has grown
		switch p.balance {
		case 1:
			p.balance = 0
			h = false
		case 0:
			p.balance = -1
		default:
			p1 := p.left
			if p1.balance == -1 {
				// single LL rotation
				p.left = p1.right
				p1.right = p
				p.balance = 0
				p = p1
			} else {
				// double LR rotation
				p2 := p1.right
				p1.right = p2.left
				p2.left = p1
				p.left = p2.right
				p2.right = p

				if p2.balance == -1 {
					p.balance = 1
				} else {
					p.balance = 0
				}

				if p2.balance == 1 {
					p1.balance = -1
				} else {
					p1.balance = 0
				}

				p = p2
			}

			p.balance = 0
			h = false
		}

	case -1: // p.key < k
		p.right, added, h = insert(k, p.right)
		if !h {
			break
		}

		// right branch has grown
		switch p.balance {
		case -1:
			p.balance = 0
			h = false
		case 0:
			p.balance = 1
		default:
			p1 := p.right
			if p1.balance == 1 {
				// single RR rotation
				p.right = p1.left
				p1.left = p
				p.balance = 0
				p = p1
			} else {
				// double RL rotation
				p2 := p1.left
				p1.left = p2.right
				p2.right = p1
				p.right = p2.left
				p2.left = p

				if p2.balance == 1 {
					p.balance = -1
				} else {
					p.balance = 0
				}

				if p2.balance == -1 {
					p1.balance = 1
				} else {
					p1.balance = 0
				}

				p = p2
			}

			p.balance = 0
			h = false
		}
	}

	return p, added, h
}

// balanceLeft restores balance after the left branch of *pp shrank. It reports whether the
// subtree height shrank as well.
func balanceLeft(pp **node) bool {
	h := true
	p := *pp

	switch p.balance {
	case -1:
		p.balance = 0
	case 0:
		p.balance = 1
		h = false
	default:
		p1 := p.right
		if p1.balance >= 0 {
			// single RR rotation
			p.right = p1.left
			p1.left = p

			if p1.balance == 0 {
				p.balance = 1
				p1.balance = -1
				h = false
			} else {
				p.balance = 0
				p1.balance = 0
			}

			*pp = p1
		} else {
			// double RL rotation
			p2 := p1.left
			p1.left = p2.right
			p2.right = p1
			p.right = p2.left
			p2.left = p

			if p2.balance == 1 {
				p.balance = -1
			} else {
				p.balance = 0
			}

			if p2.balance == -1 {
				p1.balance = 1
			} else {
				p1.balance = 0
			}

			p2.balance = 0
			*pp = p2
		}
	}

	return h
}

// balanceRight restores balance after the right branch of *pp shrank.
func balanceRight(pp **node) bool {
	h := true
	p := *pp

	switch p.balance {
	case 1:
		p.balance = 0
	case 0:
		p.balance = -1
		h = false
	default:
		p1 := p.left
		if p1.balance <= 0 {
			// single LL rotation
			p.left = p1.right
			p1.right = p

			if p1.balance == 0 {
				p.balance = -1
				p1.balance = 1
				h = false
			} else {
				p.balance = 0
				p1.balance = 0
			}

			*pp = p1
		} else {
			// double LR rotation
			p2 := p1.right
			p1.right = p2.left
			p2.left = p1
			p.left = p2.right
			p2.right = p

			if p2.balance == -1 {
				p.balance = 1
			} else {
				p.balance = 0
			}

			if p2.balance == 1 {
				p1.balance = -1
			} else {
				p1.balance = 0
			}

			p2.balance = 0
			*pp = p2
		}
	}

	return h
}

// del replaces the node at *qq with the rightmost node of the subtree at *rr.
func del(qq **node, rr **node) bool {
	if (*rr).right != nil {
		h := del(qq, &(*rr).right)
		if h {
			h = balanceRight(rr)
		}

		return h
	}

	q := *qq
	r := *rr
	rl := r.left

	if r != q.left {
		r.left = q.left
	}

	r.right = q.right
	r.balance = q.balance

	*qq = r
	*rr = rl

	return true
}

// remove deletes k from the subtree at *pp. It reports whether a node was removed and whether
// the subtree height shrank.
func remove(k key, pp **node) (bool, bool) {
	if *pp == nil {
		return false, false
	}

	removed := false
	h := false

	switch (*pp).key.compare(k) {
	case +1:
		removed, h = remove(k, &(*pp).left)
		if h {
			h = balanceLeft(pp)
		}
	case -1:
		removed, h = remove(k, &(*pp).right)
		if h {
			h = balanceRight(pp)
		}
	default:
		q := *pp
		switch {
		case q.right == nil:
			*pp = q.left
			h = true
		case q.left == nil:
			*pp = q.right
			h = true
		default:
			h = del(pp, &q.left)
			(*pp).left = q.left // *pp has changed, q.left holds the rebalanced left subtree
			if h {
				h = balanceLeft(pp)
			}
		}

		removed = true
	}

	return removed, h
}

// depth returns the height of the subtree and -1 if any node violates the AVL balance.
func depth(p *node) int {
	if p == nil {
		return 0
	}

	l := depth(p.left)
	r := depth(p.right)

	if l < 0 || r < 0 || r-l != p.balance {
		return -1
	}

	if l > r {
		return l + 1
	}

	return r + 1
}
