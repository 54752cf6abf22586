package log

import "loanledger/internal/core"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldEventID      = "event_id"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldAccount      = "account"
	FieldCounterparty = "counterparty"
	FieldDate         = "date"
	FieldAsOf         = "as_of"
	FieldAmountCents  = "amount_cents"
	FieldShareA       = "share_a_cents"
	FieldShareB       = "share_b_cents"
	FieldObligationID = "obligation_id"
	FieldKind         = "kind"
	FieldMonth        = "month"
	FieldDuration     = "duration_ms"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentCLI       = "cli"
	ComponentLedger    = "ledger"
	ComponentReconcile = "reconcile"
	ComponentTimeline  = "timeline"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentKafka     = "kafka"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentBackend   = "backend"
	ComponentHTTP      = "http"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntry adds the fields of a ledger row.
func (f LogFields) WithEntry(e core.LedgerEntry) LogFields {
	f[FieldAccount] = e.Account.String()
	f[FieldDate] = e.Date.String()
	f[FieldCounterparty] = e.Counterparty
	f[FieldAmountCents] = int64(e.Signed())
	return f
}

// WithObligation adds the fields of a timeline obligation.
func (f LogFields) WithObligation(o core.Obligation) LogFields {
	f[FieldObligationID] = o.ID
	f[FieldKind] = o.Kind.String()
	f[FieldMonth] = o.Month
	f[FieldDate] = o.DueDate.String()
	f[FieldAmountCents] = int64(o.Amount)
	f[FieldShareA] = int64(o.ShareA)
	f[FieldShareB] = int64(o.ShareB)
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
