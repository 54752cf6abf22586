package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"loanledger/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/balances/joint").
		Data(map[string]int{"stored": 3}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/balances/joint" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Body.String(); got != "{\"stored\":3}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestJSONResponseBuilder_EmptyAndUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("empty response = %d %q", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	NewJSONResponse().Data(make(chan int)).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("unencodable data status = %d, want 500", w.Code)
	}
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{fmt.Errorf("post: %w", core.ErrUnknownAccount), http.StatusBadRequest, "post: unknown account"},
		{fmt.Errorf("post: %w", core.ErrZeroAmount), http.StatusUnprocessableEntity, "post: zero amount"},
		{fmt.Errorf("transfer: %w", core.ErrInvalidTransferRoute), http.StatusUnprocessableEntity, "transfer: invalid transfer route"},
		{fmt.Errorf("generate: %w", core.ErrTimelineExists), http.StatusConflict, "generate: timeline already generated"},
		{core.ErrNotFound, http.StatusNotFound, "not found"},
		{fmt.Errorf("%w: begin: db down", core.ErrStorageUnavailable), http.StatusServiceUnavailable, "Service Unavailable"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			DomainError(tt.err).Write(w)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decode[errorBody](t, w).Error; got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}
