package model

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/bsv-blockchain/richlist/errors"
)

var bigTen = big.NewInt(10)

// Amount is an integer quantity of the smallest unit of the tracked asset. The zero value is 0.
// Amounts are immutable: every operation returns a new value.
type Amount struct {
	v *big.Int
}

func NewAmount(i int64) Amount {
	return Amount{v: big.NewInt(i)}
}

// NewAmountFromBig copies i.
func NewAmountFromBig(i *big.Int) Amount {
	if i == nil {
		return Amount{}
	}

	return Amount{v: new(big.Int).Set(i)}
}

// ParseAmount parses a decimal string such as "150", "149.5" or "1e3" and rounds it half away
// from zero to an integer.
func ParseAmount(s string) (Amount, error) {
	return ParseAmountScaled(s, 0)
}

// ParseAmountScaled parses a decimal string, multiplies it by 10^decimals and rounds the result
// half away from zero. It converts coin denominated values to the smallest unit.
func ParseAmountScaled(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, nil
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Amount{}, errors.NewInvalidArgumentError("invalid amount %q", s)
	}

	if decimals > 0 {
		r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(bigTen, big.NewInt(int64(decimals)), nil)))
	}

	return Amount{v: roundHalfAwayFromZero(r)}, nil
}

func roundHalfAwayFromZero(r *big.Rat) *big.Int {
	num := new(big.Int).Abs(r.Num())
	den := r.Denom()

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Lsh(rem, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	if r.Sign() < 0 {
		q.Neg(q)
	}

	return q
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}

	return a.v
}

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}
}

func (a Amount) Neg() Amount {
	return Amount{v: new(big.Int).Neg(a.big())}
}

func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) Sign() int {
	return a.big().Sign()
}

func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a Amount) String() string {
	return a.big().String()
}

// MarshalJSON writes the amount as a bare JSON integer.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.big().String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	var n json.Number
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		n = json.Number(s)
	} else {
		n = json.Number(data)
	}

	parsed, err := ParseAmount(n.String())
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
