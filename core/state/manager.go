package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"tipchain/core/types"
	"tipchain/storage"
)

// Manager provides keccak-keyed, RLP-encoded access to the account ledger and
// the jar records persisted in the backing key-value store.
//
// Manager methods are not safe for concurrent use; the node serializes access.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// storedAccount is the packed on-disk representation of an account.
type storedAccount struct {
	Nonce   uint64
	Balance *uint256.Int
}

func accountStateKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

// GetAccount reconstructs the account stored under the provided address. A
// missing record yields a zeroed account, matching ledger semantics where
// every address implicitly exists with a zero balance.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	data, err := m.db.Get(accountStateKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewAccount(), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return types.NewAccount(), nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account := &types.Account{Nonce: stored.Nonce, Balance: big.NewInt(0)}
	if stored.Balance != nil {
		account.Balance = stored.Balance.ToBig()
	}
	return account, nil
}

// PutAccount persists the account under the provided address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative account balance")
	}
	packed, overflow := uint256.FromBig(balance)
	if overflow {
		return fmt.Errorf("state: account balance overflows uint256")
	}
	stored := &storedAccount{Nonce: account.Nonce, Balance: packed}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(accountStateKey(addr), encoded)
}

// Transfer atomically moves amount between two accounts, rolling back on any
// partial failure so balances never diverge from the persisted records.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	if from == to {
		fromAcc, err := m.GetAccount(from[:])
		if err != nil {
			return err
		}
		if fromAcc.Balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		return nil
	}
	fromAcc, err := m.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := m.GetAccount(to[:])
	if err != nil {
		return err
	}
	originalFrom := cloneStateAccount(fromAcc)

	rollbacks := make([]func(), 0, 2)
	revert := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}
	rollback, err := MustSubBalance(fromAcc.Balance, amount)
	if err != nil {
		return err
	}
	rollbacks = append(rollbacks, rollback)
	rollback, err = MustAddBalance(toAcc.Balance, amount)
	if err != nil {
		revert()
		return err
	}
	rollbacks = append(rollbacks, rollback)

	if err := m.PutAccount(from[:], fromAcc); err != nil {
		revert()
		return err
	}
	if err := m.PutAccount(to[:], toAcc); err != nil {
		revert()
		if restoreErr := m.PutAccount(from[:], originalFrom); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback sender: %w", restoreErr))
		}
		return err
	}
	return nil
}

func cloneStateAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	cloned := *acc
	if acc.Balance != nil {
		cloned.Balance = new(big.Int).Set(acc.Balance)
	} else {
		cloned.Balance = big.NewInt(0)
	}
	return &cloned
}
