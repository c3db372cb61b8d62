package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DemandEvent names a transition in the fund demand workflow.
type DemandEvent string

const (
	EventSubmitted   DemandEvent = "demand.submitted"
	EventResubmitted DemandEvent = "demand.resubmitted"
	EventApproved    DemandEvent = "demand.approved"
	EventRejected    DemandEvent = "demand.rejected"
	EventReturned    DemandEvent = "demand.returned"
)

// DemandEventMessage is a lightweight notification of a demand change.
// It carries only ids and the version; consumers fetch the demand itself.
type DemandEventMessage struct {
	MessageID string      `json:"message_id"`
	Event     DemandEvent `json:"event"`
	DemandID  int64       `json:"demand_id"`
	WorkID    int64       `json:"work_id"`
	Version   int64       `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewDemandEventMessage stamps a new message with a random id.
func NewDemandEventMessage(event DemandEvent, demandID, workID, version int64) *DemandEventMessage {
	return &DemandEventMessage{
		MessageID: uuid.NewString(),
		Event:     event,
		DemandID:  demandID,
		WorkID:    workID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// IsDecision reports whether the event records a district decision.
func (m *DemandEventMessage) IsDecision() bool {
	switch m.Event {
	case EventApproved, EventRejected, EventReturned:
		return true
	}
	return false
}

// ToJSON converts the message to JSON bytes
func (m *DemandEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DemandEventMessageFromJSON parses and checks a message body.
func DemandEventMessageFromJSON(data []byte) (*DemandEventMessage, error) {
	var msg DemandEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.DemandID <= 0 || msg.Event == "" {
		return nil, fmt.Errorf("incomplete demand event: id=%d event=%q", msg.DemandID, msg.Event)
	}
	return &msg, nil
}
