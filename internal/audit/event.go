package audit

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxEventLen bounds the event identifier.
	MaxEventLen = 31

	// MaxReasonLen bounds the reason text.
	MaxReasonLen = 63

	// MaxDataLen bounds the auxiliary data field.
	MaxDataLen = 63
)

// EventType classifies a deterministic log event.
type EventType uint8

const (
	StateEntry EventType = iota
	StateExit
	Transition
	Error
	UserAction
	Timeout
)

var eventTypeNames = map[EventType]string{
	StateEntry: "STATE_ENTRY",
	StateExit:  "STATE_EXIT",
	Transition: "TRANSITION",
	Error:      "ERROR",
	UserAction: "USER_ACTION",
	Timeout:    "TIMEOUT",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalJSON encodes the event type as its name.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an event type name.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	typ, err := ParseEventType(name)
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// ParseEventType converts an event type name back into its value.
func ParseEventType(name string) (EventType, error) {
	for typ, n := range eventTypeNames {
		if n == name {
			return typ, nil
		}
	}
	return StateEntry, fmt.Errorf("unknown event type %q", name)
}

// Event is one entry of the deterministic audit stream. The sequence
// number is the sole ordering truth: it increases by exactly one per
// appended event, across evictions, until Clear resets it to zero.
type Event struct {
	Seq         uint32    `json:"seq"`
	TimestampMs uint32    `json:"timestamp_ms"`
	TimestampUs uint32    `json:"timestamp_us"`
	Type        EventType `json:"event_type"`
	State       string    `json:"state"`
	PrevState   string    `json:"prev_state"`
	Event       string    `json:"event"`
	Reason      string    `json:"reason"`
	Data        string    `json:"data"`
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
