package tipjar

import (
	"fmt"
	"math/big"
	"time"

	"tipchain/core/events"
)

type engineState interface {
	TipJarPut(*TipJar) error
	TipJarGet(owner [20]byte, jarID string) (*TipJar, bool)
	TipJarDelete(owner [20]byte, jarID string) error
	TipJarVaultAddress(owner [20]byte, jarID string) [20]byte
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Engine wires the tip jar business logic with external state and event
// emitters. Every operation is atomic against the backing store: it either
// applies fully or leaves the record and the funds ledger untouched.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a tip jar engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for tip timestamps. Primarily
// intended for tests to provide deterministic values.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadJar(owner [20]byte, jarID string) (*TipJar, string, error) {
	if e == nil || e.state == nil {
		return nil, "", ErrNilState
	}
	normalized, err := NormalizeJarID(jarID)
	if err != nil {
		return nil, "", err
	}
	jar, ok := e.state.TipJarGet(owner, normalized)
	if !ok {
		return nil, "", ErrNotFound
	}
	return jar, normalized, nil
}

// Initialize creates and persists a new jar for (owner, jarID). The record
// starts active with zeroed counters and an empty history.
func (e *Engine) Initialize(owner [20]byte, jarID, description, category string, goal *big.Int, private bool) (*TipJar, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeJarID(jarID)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetadata(description, category, goal); err != nil {
		return nil, err
	}
	if _, ok := e.state.TipJarGet(owner, normalized); ok {
		return nil, ErrAlreadyExists
	}
	jar := &TipJar{
		Owner:         owner,
		JarID:         normalized,
		Description:   description,
		Category:      category,
		Goal:          cloneAmount(goal),
		TotalReceived: big.NewInt(0),
		TipCount:      0,
		Balance:       big.NewInt(0),
		Active:        true,
		Private:       private,
		CreatedAt:     e.now(),
		History:       []Tip{},
	}
	if err := e.state.TipJarPut(jar); err != nil {
		return nil, err
	}
	e.emit(NewInitializedEvent(jar))
	return jar.Clone(), nil
}

// SendTip moves amount from the sender to the jar vault and records the tip.
// The ledger transfer is confirmed before the record is mutated; if the
// mutated record fails to persist the transfer is compensated so the two
// stores never diverge. History is FIFO-capped at MaxTipHistory entries.
func (e *Engine) SendTip(owner [20]byte, jarID string, sender [20]byte, amount *big.Int, visibility Visibility, memo string) (*Tip, error) {
	jar, normalized, err := e.loadJar(owner, jarID)
	if err != nil {
		return nil, err
	}
	if !jar.Active {
		return nil, ErrJarInactive
	}
	if jar.Private && sender != jar.Owner {
		return nil, ErrJarPrivate
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !visibility.Valid() {
		return nil, ErrInvalidVisibility
	}
	if len(memo) > MaxMemoLen {
		return nil, ErrMemoTooLong
	}
	amt := new(big.Int).Set(amount)
	vault := e.state.TipJarVaultAddress(owner, normalized)
	if err := e.state.Transfer(sender, vault, amt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	ts := e.now()
	if n := len(jar.History); n > 0 && ts < jar.History[n-1].Timestamp {
		ts = jar.History[n-1].Timestamp
	}
	tip := Tip{
		Sender:     sender,
		Amount:     amt,
		Timestamp:  ts,
		Visibility: visibility,
		Memo:       memo,
	}
	jar.History = append(jar.History, tip)
	if len(jar.History) > MaxTipHistory {
		jar.History = jar.History[len(jar.History)-MaxTipHistory:]
	}
	jar.TipCount++
	jar.TotalReceived = new(big.Int).Add(jar.TotalReceived, amt)
	jar.Balance = new(big.Int).Add(jar.Balance, amt)
	if err := e.state.TipJarPut(jar); err != nil {
		if refundErr := e.state.Transfer(vault, sender, amt); refundErr != nil {
			return nil, fmt.Errorf("tipjar: persist failed (%v), refund failed: %w", err, refundErr)
		}
		return nil, err
	}
	e.emit(NewTippedEvent(jar, &tip))
	out := tip.Clone()
	return &out, nil
}

// Stats returns the aggregate counters for the jar. Read-only.
func (e *Engine) Stats(owner [20]byte, jarID string) (*Stats, error) {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TipCount:      jar.TipCount,
		TotalReceived: cloneAmount(jar.TotalReceived),
		Balance:       cloneAmount(jar.Balance),
		Goal:          cloneAmount(jar.Goal),
		Active:        jar.Active,
		Private:       jar.Private,
	}, nil
}

// ListTips returns a copy of the bounded tip history, oldest first.
func (e *Engine) ListTips(owner [20]byte, jarID string) ([]Tip, error) {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return nil, err
	}
	out := make([]Tip, len(jar.History))
	for i := range jar.History {
		out[i] = jar.History[i].Clone()
	}
	return out, nil
}

// ClearHistory empties the visible tip history. Lifetime counters and the
// balance are untouched: TotalReceived and TipCount account for every tip
// ever accepted, not the entries currently listed.
func (e *Engine) ClearHistory(owner [20]byte, jarID string, caller [20]byte) error {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	jar.History = []Tip{}
	if err := e.state.TipJarPut(jar); err != nil {
		return err
	}
	e.emit(NewHistoryClearedEvent(jar))
	return nil
}

// SetActive pauses or resumes the jar. Setting the current state again is an
// idempotent no-op and emits no event.
func (e *Engine) SetActive(owner [20]byte, jarID string, caller [20]byte, active bool) error {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	if jar.Active == active {
		return nil
	}
	jar.Active = active
	if err := e.state.TipJarPut(jar); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(jar))
	return nil
}

// Pause stops the jar from accepting tips.
func (e *Engine) Pause(owner [20]byte, jarID string, caller [20]byte) error {
	return e.SetActive(owner, jarID, caller, false)
}

// Resume re-enables tipping on a paused jar.
func (e *Engine) Resume(owner [20]byte, jarID string, caller [20]byte) error {
	return e.SetActive(owner, jarID, caller, true)
}

// ToggleStatus flips the active flag.
func (e *Engine) ToggleStatus(owner [20]byte, jarID string, caller [20]byte) error {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	return e.SetActive(owner, jarID, caller, !jar.Active)
}

// Update overwrites the mutable metadata fields. Counters, balance and
// history are untouched.
func (e *Engine) Update(owner [20]byte, jarID string, caller [20]byte, description, category string, goal *big.Int, private bool) error {
	jar, _, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	if err := ValidateMetadata(description, category, goal); err != nil {
		return err
	}
	jar.Description = description
	jar.Category = category
	jar.Goal = cloneAmount(goal)
	jar.Private = private
	if err := e.state.TipJarPut(jar); err != nil {
		return err
	}
	e.emit(NewUpdatedEvent(jar))
	return nil
}

// Withdraw moves amount from the jar vault to the owner. TotalReceived is a
// lifetime aggregate and is not reduced.
func (e *Engine) Withdraw(owner [20]byte, jarID string, caller [20]byte, amount *big.Int) error {
	jar, normalized, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(jar.Balance) > 0 {
		return ErrInsufficientFunds
	}
	amt := new(big.Int).Set(amount)
	vault := e.state.TipJarVaultAddress(owner, normalized)
	if err := e.state.Transfer(vault, jar.Owner, amt); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	jar.Balance = new(big.Int).Sub(jar.Balance, amt)
	if err := e.state.TipJarPut(jar); err != nil {
		if refundErr := e.state.Transfer(jar.Owner, vault, amt); refundErr != nil {
			return fmt.Errorf("tipjar: persist failed (%v), refund failed: %w", err, refundErr)
		}
		return err
	}
	e.emit(NewWithdrawnEvent(jar, amt))
	return nil
}

// Close sweeps any remaining balance to the owner and removes the record.
// Subsequent operations on the same (owner, jarID) fail with ErrNotFound
// until a new Initialize.
func (e *Engine) Close(owner [20]byte, jarID string, caller [20]byte) error {
	jar, normalized, err := e.loadJar(owner, jarID)
	if err != nil {
		return err
	}
	if caller != jar.Owner {
		return ErrUnauthorized
	}
	remaining := cloneAmount(jar.Balance)
	vault := e.state.TipJarVaultAddress(owner, normalized)
	if remaining.Sign() > 0 {
		if err := e.state.Transfer(vault, jar.Owner, remaining); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if err := e.state.TipJarDelete(owner, normalized); err != nil {
		if remaining.Sign() > 0 {
			if refundErr := e.state.Transfer(jar.Owner, vault, remaining); refundErr != nil {
				return fmt.Errorf("tipjar: delete failed (%v), refund failed: %w", err, refundErr)
			}
		}
		return err
	}
	e.emit(NewClosedEvent(jar, remaining))
	return nil
}
