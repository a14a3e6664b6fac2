package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names what happened to the ledger.
type EventKind string

const (
	TransactionCreated EventKind = "created"
	TransactionUpdated EventKind = "updated"
	TransactionDeleted EventKind = "deleted"
	SeriesCreated      EventKind = "series_created"
)

func (k EventKind) Valid() bool {
	switch k {
	case TransactionCreated, TransactionUpdated, TransactionDeleted, SeriesCreated:
		return true
	}
	return false
}

// TransactionEvent is a lightweight notification about a ledger write.
// Consumers fetch the rows themselves; series events carry the group id
// instead of a transaction id.
type TransactionEvent struct {
	Kind          EventKind `json:"kind"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	GroupID       string    `json:"group_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEvent(kind EventKind, userID, transactionID string) TransactionEvent {
	return TransactionEvent{
		Kind:          kind,
		UserID:        userID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

func NewSeriesEvent(userID, groupID string) TransactionEvent {
	return TransactionEvent{
		Kind:      SeriesCreated,
		UserID:    userID,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
}

func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, err
	}
	if !e.Kind.Valid() {
		return TransactionEvent{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.UserID == "" {
		return TransactionEvent{}, fmt.Errorf("event %s without user id", e.Kind)
	}
	if e.Kind == SeriesCreated && e.GroupID == "" {
		return TransactionEvent{}, fmt.Errorf("series event without group id")
	}
	if e.Kind != SeriesCreated && e.TransactionID == "" {
		return TransactionEvent{}, fmt.Errorf("event %s without transaction id", e.Kind)
	}
	return e, nil
}
