package types

import "math/big"

// Account represents the ledger state stored for a single address. Balances
// are denominated in nits, the smallest unit of TIP.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// NewAccount returns an account with a zeroed, non-nil balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}
