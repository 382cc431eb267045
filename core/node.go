package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tipchain/core/events"
	"tipchain/core/state"
	"tipchain/native/tipjar"
	"tipchain/storage"
)

var genesisAppliedKey = ethcrypto.Keccak256([]byte("genesis-applied"))

// Node owns the database, the state manager and the tip jar engine. All state
// access is funneled through a single mutex so every operation is one atomic
// read-modify-write against the store, which also serializes concurrent
// operations targeting the same jar record.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *tipjar.Engine
	emitter *events.RingEmitter
}

// NewNode wires a node on top of the provided database.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	engine := tipjar.NewEngine()
	engine.SetState(manager)
	emitter := events.NewRingEmitter(512)
	engine.SetEmitter(emitter)
	return &Node{
		db:      db,
		state:   manager,
		engine:  engine,
		emitter: emitter,
	}
}

// Engine exposes the underlying engine for test configuration.
func (n *Node) Engine() *tipjar.Engine { return n.engine }

// ApplyGenesis credits the provided allocations exactly once per database.
// Subsequent calls are no-ops.
func (n *Node) ApplyGenesis(allocs map[[20]byte]*big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	applied, err := n.db.Has(genesisAppliedKey)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for addr, amount := range allocs {
		if amount == nil || amount.Sign() < 0 {
			return fmt.Errorf("core: invalid genesis allocation for %x", addr)
		}
		account, err := n.state.GetAccount(addr[:])
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		if err := n.state.PutAccount(addr[:], account); err != nil {
			return err
		}
	}
	return n.db.Put(genesisAppliedKey, []byte{1})
}

// Balance returns the spendable balance for the address.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// TipJarInitialize creates a new jar for (owner, jarID).
func (n *Node) TipJarInitialize(owner [20]byte, jarID, description, category string, goal *big.Int, private bool) (*tipjar.TipJar, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Initialize(owner, jarID, description, category, goal, private)
}

// TipJarSendTip records a tip against the jar.
func (n *Node) TipJarSendTip(owner [20]byte, jarID string, sender [20]byte, amount *big.Int, visibility tipjar.Visibility, memo string) (*tipjar.Tip, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SendTip(owner, jarID, sender, amount, visibility, memo)
}

// TipJarStats returns the aggregate counters for the jar.
func (n *Node) TipJarStats(owner [20]byte, jarID string) (*tipjar.Stats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Stats(owner, jarID)
}

// TipJarListTips returns the bounded tip history, oldest first.
func (n *Node) TipJarListTips(owner [20]byte, jarID string) ([]tipjar.Tip, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ListTips(owner, jarID)
}

// TipJarClearHistory truncates the visible history.
func (n *Node) TipJarClearHistory(owner [20]byte, jarID string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ClearHistory(owner, jarID, caller)
}

// TipJarSetActive pauses or resumes the jar.
func (n *Node) TipJarSetActive(owner [20]byte, jarID string, caller [20]byte, active bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetActive(owner, jarID, caller, active)
}

// TipJarUpdate overwrites the jar's mutable metadata.
func (n *Node) TipJarUpdate(owner [20]byte, jarID string, caller [20]byte, description, category string, goal *big.Int, private bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Update(owner, jarID, caller, description, category, goal, private)
}

// TipJarWithdraw moves funds from the jar to its owner.
func (n *Node) TipJarWithdraw(owner [20]byte, jarID string, caller [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Withdraw(owner, jarID, caller, amount)
}

// TipJarClose sweeps the remaining balance and removes the record.
func (n *Node) TipJarClose(owner [20]byte, jarID string, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Close(owner, jarID, caller)
}

// Events lists recently emitted events matching the type prefix.
func (n *Node) Events(prefix string, limit int) []events.Recorded {
	return n.emitter.List(prefix, limit)
}

// WithState runs fn against the state manager under the node lock. Intended
// for genesis tooling and tests.
func (n *Node) WithState(fn func(*state.Manager) error) error {
	if fn == nil {
		return errors.New("core: nil state closure")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.state)
}
