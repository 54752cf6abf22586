// Package events defines the messages the ledger emits after a commit and
// the requests the reconcile worker accepts.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"loanledger/internal/core"
)

// Posting operations.
const (
	OpPost          = "post"
	OpTransfer      = "transfer"
	OpJointPurchase = "joint_purchase"
	OpReconcile     = "reconcile"
)

// Publisher delivers posting events to a broker. Implementations must be
// safe for concurrent use.
type Publisher interface {
	PublishPosting(ctx context.Context, ev *PostingEvent) error
	Close() error
}

// Entry is the wire form of one committed ledger row.
type Entry struct {
	ID           int64  `json:"id"`
	Account      string `json:"account"`
	Date         string `json:"date"`
	Counterparty string `json:"counterparty"`
	Operation    string `json:"operation,omitempty"`
	DebitCents   int64  `json:"debit_cents"`
	CreditCents  int64  `json:"credit_cents"`
}

// PostingEvent groups the rows written by one ledger transaction.
type PostingEvent struct {
	ID           uuid.UUID `json:"id"`
	Operation    string    `json:"operation"`
	ObligationID int64     `json:"obligation_id,omitempty"`
	Entries      []Entry   `json:"entries"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPostingEvent creates an event with a fresh id for the given rows.
func NewPostingEvent(operation string, entries []core.LedgerEntry) *PostingEvent {
	ev := &PostingEvent{
		ID:        uuid.New(),
		Operation: operation,
		Entries:   make([]Entry, 0, len(entries)),
		Timestamp: time.Now().UTC(),
	}
	for _, e := range entries {
		ev.Entries = append(ev.Entries, Entry{
			ID:           e.ID,
			Account:      e.Account.String(),
			Date:         e.Date.String(),
			Counterparty: e.Counterparty,
			Operation:    e.Operation,
			DebitCents:   int64(e.Debit),
			CreditCents:  int64(e.Credit),
		})
	}
	return ev
}

// Key returns the partitioning key of the event.
func (m *PostingEvent) Key() string {
	if len(m.Entries) == 0 {
		return m.Operation
	}
	return m.Entries[0].Account
}

// ToJSON converts the message to JSON bytes
func (m *PostingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PostingEventFromJSON(data []byte) (*PostingEvent, error) {
	var msg PostingEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReconcileRequest asks the worker to reconcile obligations due before AsOf.
type ReconcileRequest struct {
	ID        uuid.UUID `json:"id"`
	AsOf      core.Date `json:"as_of"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReconcileRequest(asOf core.Date) *ReconcileRequest {
	return &ReconcileRequest{
		ID:        uuid.New(),
		AsOf:      asOf,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ReconcileRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReconcileRequestFromJSON(data []byte) (*ReconcileRequest, error) {
	var msg ReconcileRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
