// Package http serves the ledger as a JSON API.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON objects or form-encoded; both are read through the same
// RequestBodyParser so handlers never care which one the client sent.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
)

// maxBodyBytes bounds request bodies; postings are a handful of fields.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// Typed getters record a field error instead of returning it, so a handler
// can read every field and report all problems at once through Err.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
	fieldErrs   []error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("invalid JSON body: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Account reads a required account field.
func (p *RequestBodyParser) Account(key string) core.Account {
	a, err := core.ParseAccount(p.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return a
}

// Amount reads a required decimal amount in major units.
func (p *RequestBodyParser) Amount(key string) core.Cents {
	c, err := core.ParseAmount(p.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return c
}

// Date reads an ISO date. An absent date is today.
func (p *RequestBodyParser) Date(key string) core.Date {
	d, err := core.ParseDate(p.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// Percentage reads a percentage such as "60" or "60%", returning def when
// the field is absent.
func (p *RequestBodyParser) Percentage(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSuffix(p.Get(key), "%")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, fmt.Errorf("%w: %q", core.ErrInvalidPercentage, v))
		return def
	}
	return d
}

func (p *RequestBodyParser) fail(key string, err error) {
	p.fieldErrs = append(p.fieldErrs, fmt.Errorf("%s: %w", key, err))
}

// Err returns the field errors recorded by the typed getters.
func (p *RequestBodyParser) Err() error {
	return errors.Join(p.fieldErrs...)
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// queryDate parses an optional date query parameter. Absent is the zero Date.
func queryDate(q url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(q url.Values, key string) (bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// sanitizeInput trims s and drops control characters except tab, newline
// and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
