package model

import "encoding/json"

// EventKind labels an audit event.
type EventKind string

const (
	EventDeposit           EventKind = "deposit"
	EventWithdraw          EventKind = "withdraw"
	EventIncreaseLiquidity EventKind = "increase_liquidity"
	EventDecreaseLiquidity EventKind = "decrease_liquidity"
	EventCollect           EventKind = "collect"
	EventCompound          EventKind = "compound"
	EventMoveRange         EventKind = "move_range"
	EventRepay             EventKind = "repay"
	EventSeize             EventKind = "seize"
	EventFlashFocus        EventKind = "flash_focus"
	EventPause             EventKind = "pause"
	EventSweep             EventKind = "sweep"
)

// Event is the normalized audit record emitted for every custody state
// change. Amounts are decimal strings at raw token scale.
type Event struct {
	Seq           uint64    `json:"seq"`
	Kind          EventKind `json:"kind"`
	Timestamp     uint64    `json:"ts"`
	Owner         string    `json:"owner,omitempty"`
	Counterparty  string    `json:"counterparty,omitempty"`
	PositionID    uint64    `json:"position_id,omitempty"`
	NewPositionID uint64    `json:"new_position_id,omitempty"`
	Amount0       string    `json:"amount0,omitempty"`
	Amount1       string    `json:"amount1,omitempty"`
	Liquidity     string    `json:"liquidity,omitempty"`
	Asset         string    `json:"asset,omitempty"`
	Paused        *bool     `json:"paused,omitempty"`
}

// MarshalJSON keeps the encoded field set stable.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes an Event from JSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)
	return nil
}
