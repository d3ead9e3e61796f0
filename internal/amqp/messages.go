package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action names the change that happened to an expense.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// ExpenseEventMessage is a lightweight change notification. It carries only
// the id and action; consumers read current state from the store.
type ExpenseEventMessage struct {
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEventMessage creates a new event message stamped with the current time
func NewExpenseEventMessage(id int64, action Action) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventMessageFromJSON decodes and checks a message.
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid expense id %d", msg.ID)
	}
	if !msg.Action.IsValid() {
		return nil, fmt.Errorf("invalid action %q", msg.Action)
	}
	return &msg, nil
}
