package tipjar

import (
	"math/big"
	"strconv"

	"tipchain/core/events"
	"tipchain/core/types"
	"tipchain/crypto"
)

const (
	EventTypeInitialized    = "tipjar.initialized"
	EventTypeTipped         = "tipjar.tipped"
	EventTypeHistoryCleared = "tipjar.history_cleared"
	EventTypeStatusChanged  = "tipjar.status_changed"
	EventTypeUpdated        = "tipjar.updated"
	EventTypeWithdrawn      = "tipjar.withdrawn"
	EventTypeClosed         = "tipjar.closed"
)

type jarEvent struct {
	evt *types.Event
}

func (e jarEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e jarEvent) Event() *types.Event { return e.evt }

func baseAttributes(j *TipJar) map[string]string {
	return map[string]string{
		"owner":  crypto.NewAddress(crypto.TipPrefix, j.Owner[:]).String(),
		"jarId":  j.JarID,
		"active": strconv.FormatBool(j.Active),
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewInitializedEvent returns the canonical payload for a newly created jar.
func NewInitializedEvent(j *TipJar) events.Event {
	attrs := baseAttributes(j)
	attrs["goal"] = formatAmount(j.Goal)
	attrs["private"] = strconv.FormatBool(j.Private)
	return jarEvent{evt: &types.Event{Type: EventTypeInitialized, Attributes: attrs}}
}

// NewTippedEvent returns the payload emitted when a tip is accepted. Senders
// of private tips are not included in the payload.
func NewTippedEvent(j *TipJar, tip *Tip) events.Event {
	attrs := baseAttributes(j)
	attrs["amount"] = formatAmount(tip.Amount)
	attrs["visibility"] = tip.Visibility.String()
	attrs["tipCount"] = strconv.FormatUint(j.TipCount, 10)
	attrs["totalReceived"] = formatAmount(j.TotalReceived)
	if tip.Visibility == VisibilityPublic {
		attrs["sender"] = crypto.NewAddress(crypto.TipPrefix, tip.Sender[:]).String()
	}
	return jarEvent{evt: &types.Event{Type: EventTypeTipped, Attributes: attrs}}
}

// NewHistoryClearedEvent returns the payload emitted when the visible history
// is truncated.
func NewHistoryClearedEvent(j *TipJar) events.Event {
	attrs := baseAttributes(j)
	attrs["tipCount"] = strconv.FormatUint(j.TipCount, 10)
	return jarEvent{evt: &types.Event{Type: EventTypeHistoryCleared, Attributes: attrs}}
}

// NewStatusChangedEvent returns the payload emitted on pause or resume.
func NewStatusChangedEvent(j *TipJar) events.Event {
	return jarEvent{evt: &types.Event{Type: EventTypeStatusChanged, Attributes: baseAttributes(j)}}
}

// NewUpdatedEvent returns the payload emitted when jar metadata changes.
func NewUpdatedEvent(j *TipJar) events.Event {
	attrs := baseAttributes(j)
	attrs["goal"] = formatAmount(j.Goal)
	attrs["category"] = j.Category
	attrs["private"] = strconv.FormatBool(j.Private)
	return jarEvent{evt: &types.Event{Type: EventTypeUpdated, Attributes: attrs}}
}

// NewWithdrawnEvent returns the payload emitted when the owner withdraws
// funds from the jar.
func NewWithdrawnEvent(j *TipJar, amount *big.Int) events.Event {
	attrs := baseAttributes(j)
	attrs["amount"] = formatAmount(amount)
	attrs["balance"] = formatAmount(j.Balance)
	return jarEvent{evt: &types.Event{Type: EventTypeWithdrawn, Attributes: attrs}}
}

// NewClosedEvent returns the payload emitted when a jar is closed, including
// the balance swept back to the owner.
func NewClosedEvent(j *TipJar, swept *big.Int) events.Event {
	attrs := baseAttributes(j)
	attrs["swept"] = formatAmount(swept)
	attrs["totalReceived"] = formatAmount(j.TotalReceived)
	return jarEvent{evt: &types.Event{Type: EventTypeClosed, Attributes: attrs}}
}
