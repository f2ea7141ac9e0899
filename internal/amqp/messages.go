package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Goal lifecycle events published to the events queue.
const (
	EventGoalCreated   = "goal.created"
	EventGoalCompleted = "goal.completed"
	EventGoalFailed    = "goal.failed"
	EventGoalDeleted   = "goal.deleted"
)

// GoalEventMessage announces a goal lifecycle transition. It carries only
// identifiers; consumers fetch the full goal from the database.
type GoalEventMessage struct {
	EventID   string    `json:"event_id"`
	Event     string    `json:"event"`
	GoalID    int64     `json:"goal_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGoalEventMessage creates an event message with a fresh event ID
func NewGoalEventMessage(event string, goalID int64, userID string) *GoalEventMessage {
	return &GoalEventMessage{
		EventID:   uuid.NewString(),
		Event:     event,
		GoalID:    goalID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *GoalEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GoalEventMessageFromJSON creates a message from JSON bytes
func GoalEventMessageFromJSON(data []byte) (*GoalEventMessage, error) {
	var msg GoalEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TransactionRecordedMessage mirrors one transaction from the external
// money tracker into the local read model. OccurredOn is an ISO date
// (YYYY-MM-DD); the amount is a positive magnitude in cents and Income
// gives the sign.
type TransactionRecordedMessage struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Income      bool      `json:"income"`
	OccurredOn  string    `json:"occurred_on"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON creates a message from JSON bytes
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
