package state

import (
	"errors"
	"math/big"
)

// ErrInsufficientBalance is returned when a debit would drive an account
// balance below zero.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// MustSubBalance debits amt from balance in place and returns a rollback
// closure restoring the previous value. The balance is left untouched on
// error.
func MustSubBalance(balance, amt *big.Int) (func(), error) {
	if balance == nil || amt == nil {
		return nil, errors.New("state: nil balance operand")
	}
	if amt.Sign() < 0 {
		return nil, errors.New("state: negative debit amount")
	}
	if balance.Cmp(amt) < 0 {
		return nil, ErrInsufficientBalance
	}
	prev := new(big.Int).Set(balance)
	balance.Sub(balance, amt)
	return func() { balance.Set(prev) }, nil
}

// MustAddBalance credits amt to balance in place and returns a rollback
// closure restoring the previous value.
func MustAddBalance(balance, amt *big.Int) (func(), error) {
	if balance == nil || amt == nil {
		return nil, errors.New("state: nil balance operand")
	}
	if amt.Sign() < 0 {
		return nil, errors.New("state: negative credit amount")
	}
	prev := new(big.Int).Set(balance)
	balance.Add(balance, amt)
	return func() { balance.Set(prev) }, nil
}
