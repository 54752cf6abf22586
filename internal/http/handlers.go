package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/loan"
	"loanledger/internal/statement"
)

var defaultPercentage = decimal.NewFromInt(50)

// pathAccount reads the {account} path segment.
func pathAccount(r *http.Request) (core.Account, error) {
	return core.ParseAccount(r.PathValue("account"))
}

// parseBody parses the request body, writing a 400 on malformed input.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return nil, false
	}
	return p, true
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.ledger.Balances(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list balances", err)
		return
	}
	out := make([]balanceView, len(snaps))
	for i, snap := range snaps {
		out[i] = newBalanceView(snap, s.currency)
	}
	NewJSONResponse().Data(out).Write(w)
}

// handleBalance returns the snapshot of one account, or with ?as_of= the
// balance recomputed from the entries dated before that day.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	if asOf.IsZero() {
		snap, err := s.ledger.CurrentBalance(ctx, account)
		if err != nil {
			s.fail(w, r, "Failed to read balance", err)
			return
		}
		NewJSONResponse().Data(newBalanceView(snap, s.currency)).Write(w)
		return
	}

	bal, err := s.ledger.BalanceAsOf(ctx, account, asOf)
	if err != nil {
		s.fail(w, r, "Failed to compute balance", err)
		return
	}
	NewJSONResponse().Data(pointBalanceView{
		Account:      account.String(),
		Before:       asOf,
		Balance:      bal.String(),
		BalanceCents: int64(bal),
		Display:      bal.Format(s.currency),
	}).Write(w)
}

// handleEntries lists the entries of an account dated in [start, stop).
// Both bounds are optional.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	q := r.URL.Query()
	start, err := queryDate(q, "start")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	stop, err := queryDate(q, "stop")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	entries, err := s.ledger.History(r.Context(), account, start, stop)
	if err != nil {
		s.fail(w, r, "Failed to read entries", err)
		return
	}
	NewJSONResponse().Data(newEntryViews(entries)).Write(w)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	account := p.Account("account")
	amount := p.Amount("amount")
	date := p.Date("date")
	if err := p.Err(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	e, err := s.ledger.Post(r.Context(), account, amount, date, p.Get("counterparty"), p.Get("operation"))
	if err != nil {
		s.fail(w, r, "Failed to post entry", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(newEntryView(e)).Write(w)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	issuer := p.Account("from")
	recipient := p.Account("to")
	amount := p.Amount("amount")
	date := p.Date("date")
	if err := p.Err(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	entries, err := s.ledger.Transfer(r.Context(), issuer, recipient, amount, date)
	if err != nil {
		s.fail(w, r, "Failed to transfer", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(newEntryViews(entries)).Write(w)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	amount := p.Amount("amount")
	pct := p.Percentage("percentage_a", defaultPercentage)
	date := p.Date("date")
	recipient := p.Get("recipient")
	if recipient == "" {
		p.fail("recipient", errors.New("required"))
	}
	if err := p.Err(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	entries, err := s.ledger.JointPurchase(r.Context(), amount, recipient, pct, date, p.Get("note"))
	if err != nil {
		s.fail(w, r, "Failed to record purchase", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(newEntryViews(entries)).Write(w)
}

// handleSchedule returns the obligations the configured terms produce
// without storing them. ?kind= filters by obligation kind.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var kind core.ObligationKind
	if v := r.URL.Query().Get("kind"); v != "" {
		k, err := core.ParseKind(v)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		kind = k
	}

	obligations, err := loan.Schedule(s.terms)
	if err != nil {
		s.fail(w, r, "Failed to compute schedule", err)
		return
	}
	if kind != "" {
		filtered := obligations[:0]
		for _, o := range obligations {
			if o.Kind == kind {
				filtered = append(filtered, o)
			}
		}
		obligations = filtered
	}
	NewJSONResponse().Data(newObligationViews(obligations)).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.terms.Validate(); err != nil {
		s.fail(w, r, "Invalid loan terms", err)
		return
	}
	NewJSONResponse().Data(newSummaryViews(s.terms)).Write(w)
}

// handleTimeline lists the stored timeline; ?pending=true keeps only the
// unfulfilled obligations.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	pending, err := queryBool(r.URL.Query(), "pending")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	obligations, err := s.timeline.List(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list timeline", err)
		return
	}
	if pending {
		kept := obligations[:0]
		for _, o := range obligations {
			if !o.Fulfilled {
				kept = append(kept, o)
			}
		}
		obligations = kept
	}
	NewJSONResponse().Data(newObligationViews(obligations)).Write(w)
}

func (s *Server) handleGenerateTimeline(w http.ResponseWriter, r *http.Request) {
	obligations, err := s.timeline.Generate(r.Context(), s.terms)
	if err != nil {
		s.fail(w, r, "Failed to generate timeline", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(map[string]any{
		"stored":    len(obligations),
		"first_due": obligations[0].DueDate,
		"last_due":  obligations[len(obligations)-1].DueDate,
	}).Write(w)
}

// handleReconcile reconciles the obligations due before as_of (default
// today). With async it queues the request for the worker instead and
// answers 202.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	asOf := p.Date("as_of")
	async := false
	if v := p.Get("async"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail("async", fmt.Errorf("invalid boolean %q", v))
		}
		async = b
	}
	if err := p.Err(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx := r.Context()
	if async {
		if s.queue == nil {
			ErrorResponse(http.StatusServiceUnavailable, "asynchronous reconciliation needs the AMQP events backend").Write(w)
			return
		}
		req := events.NewReconcileRequest(asOf)
		if err := s.queue.PublishReconcileRequest(ctx, req); err != nil {
			s.fail(w, r, "Failed to queue reconcile request", err)
			return
		}
		NewJSONResponse().Status(http.StatusAccepted).Data(map[string]any{
			"request_id": req.ID,
			"as_of":      asOf,
		}).Write(w)
		return
	}

	report, err := s.reconciler.Reconcile(ctx, asOf)
	if err != nil {
		s.fail(w, r, "Reconciliation failed", err)
		return
	}
	NewJSONResponse().Data(newReportView(report)).Write(w)
}

// handleStatement builds the statement of an account for [start, stop).
// stop defaults to today and start to the month before it. With
// ?export=true the statement is also written to the configured sheet.
func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	account, err := pathAccount(r)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return
	}
	q := r.URL.Query()
	start, err := queryDate(q, "start")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	stop, err := queryDate(q, "stop")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if stop.IsZero() {
		stop = core.Today()
	}
	export, err := queryBool(q, "export")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if export && s.sheets == nil {
		ErrorResponse(http.StatusServiceUnavailable, "statement export is not configured").Write(w)
		return
	}

	ctx := r.Context()
	st, err := statement.Build(ctx, s.ledger, account, start, stop)
	if err != nil {
		s.fail(w, r, "Failed to build statement", err)
		return
	}
	view := newStatementView(st)
	if export {
		ref, err := s.sheets.WriteStatement(ctx, st)
		if err != nil {
			s.fail(w, r, "Failed to export statement", err)
			return
		}
		view.ExportedTo = ref
	}
	NewJSONResponse().Data(view).Write(w)
}

// handleVerify answers 200 when every snapshot matches its ledger rows and
// 409 with the drifting accounts otherwise.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	drifts, err := s.ledger.Verify(r.Context())
	if err != nil && len(drifts) == 0 {
		s.fail(w, r, "Failed to verify balances", err)
		return
	}
	out := make([]driftView, len(drifts))
	for i, d := range drifts {
		out[i] = driftView{
			Account:  d.Snapshot.Account.String(),
			Snapshot: d.Snapshot.Balance.String(),
			Ledger:   d.Computed.Balance.String(),
		}
	}
	code := http.StatusOK
	if len(drifts) > 0 {
		code = http.StatusConflict
	}
	NewJSONResponse().Status(code).Data(map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     out,
	}).Write(w)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.ledger.Rebuild(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to rebuild balances", err)
		return
	}
	out := make([]balanceView, len(snaps))
	for i, snap := range snaps {
		out[i] = newBalanceView(snap, s.currency)
	}
	NewJSONResponse().Data(out).Write(w)
}
