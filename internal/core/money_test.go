package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out Cents
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"-5", -500, true},
		{"+2.5", 250, true},
		{"1.005", 100, true}, // half to even
		{"1.015", 102, true}, // half to even
		{"1.0051", 101, true},
		{" 2.50 ", 250, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestToMinorRoundsHalfToEven(t *testing.T) {
	cases := map[string]Cents{
		"12.345":  1234,
		"12.355":  1236,
		"-12.345": -1234,
		"0.005":   0,
		"0.015":   2,
		"462.91":  46291,
	}
	for in, want := range cases {
		if got := ToMinor(decimal.RequireFromString(in)); got != want {
			t.Errorf("ToMinor(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestMinorRoundTrip(t *testing.T) {
	for _, c := range []Cents{0, 1, -1, 99, 100, 123456789, -987654321, 1<<53 + 1} {
		if got := ToMinor(FromMinor(c)); got != c {
			t.Fatalf("round trip of %d gave %d", c, got)
		}
	}
}

func TestFromMinorIsExact(t *testing.T) {
	if got := FromMinor(12345).String(); got != "123.45" {
		t.Fatalf("FromMinor(12345) = %s", got)
	}
	if got := Cents(-5).String(); got != "-0.05" {
		t.Fatalf("Cents(-5).String() = %s", got)
	}
}

func TestCentsFormat(t *testing.T) {
	if got := Cents(123456).Format("EUR"); !strings.Contains(got, "1,234.56") {
		t.Fatalf("EUR format = %q", got)
	}
	if got, want := Cents(100).Format("XXX-unknown"), Cents(100).Format(DefaultCurrency); got != want {
		t.Fatalf("fallback format = %q, want %q", got, want)
	}
}
