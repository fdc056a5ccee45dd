package amqp

import (
	"encoding/json"
	"time"
)

// Event names carried by LedgerSavedMessage.
const (
	EventSaved    = "saved"
	EventRestored = "restored"
	EventCleared  = "cleared"
	EventImported = "imported"
)

// LedgerSavedMessage announces that a ledger revision reached the store.
// Consumers read the ledger back from the store; the message only carries
// what they need to decide whether to act. Revisions restart at zero with
// every server process, so they only order messages sharing a Boot.
type LedgerSavedMessage struct {
	Boot      string    `json:"boot,omitempty"`
	Revision  int64     `json:"revision"`
	Event     string    `json:"event"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerSavedMessage(revision int64, event string, size int) *LedgerSavedMessage {
	if event == "" {
		event = EventSaved
	}
	return &LedgerSavedMessage{
		Revision:  revision,
		Event:     event,
		Bytes:     size,
		Timestamp: time.Now(),
	}
}

func (m *LedgerSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSavedMessageFromJSON(data []byte) (*LedgerSavedMessage, error) {
	var msg LedgerSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
