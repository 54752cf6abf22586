package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
)

// OpWire labels the legs of a transfer between the fixed accounts.
const OpWire = "wire"

// Leg is one posting of a money movement. Amount is signed: negative
// debits the account, positive credits it.
type Leg struct {
	Account      core.Account
	Amount       core.Cents
	Counterparty string
	Operation    string
}

type accountKind int

const (
	individual accountKind = iota
	joint
	kindCount
)

func kindOf(a core.Account) accountKind {
	if a.IsJoint() {
		return joint
	}
	return individual
}

// route builds the legs of a transfer of amount (> 0) from issuer to recipient.
type route func(issuer, recipient core.Account, amount core.Cents) []Leg

// routes is indexed by issuer kind then recipient kind. A nil cell is an
// unsupported pairing.
//
// A joint account paying an individual debits both sides: the money leaves
// the joint account and is spent by the holder on the joint's behalf.
var routes = [kindCount][kindCount]route{
	individual: {
		individual: debitIssuerCreditRecipient,
		joint:      debitIssuerCreditRecipient,
	},
	joint: {
		individual: debitBoth,
	},
}

func debitIssuerCreditRecipient(issuer, recipient core.Account, amount core.Cents) []Leg {
	return []Leg{
		{Account: issuer, Amount: -amount, Counterparty: recipient.String(), Operation: OpWire},
		{Account: recipient, Amount: amount, Counterparty: issuer.String(), Operation: OpWire},
	}
}

func debitBoth(issuer, recipient core.Account, amount core.Cents) []Leg {
	return []Leg{
		{Account: issuer, Amount: -amount, Counterparty: recipient.String(), Operation: OpWire},
		{Account: recipient, Amount: -amount, Counterparty: issuer.String(), Operation: OpWire},
	}
}

// Route returns the postings that move amount from issuer to recipient.
func Route(issuer, recipient core.Account, amount core.Cents) ([]Leg, error) {
	if !issuer.Valid() {
		return nil, fmt.Errorf("issuer: %w: %q", core.ErrUnknownAccount, issuer)
	}
	if !recipient.Valid() {
		return nil, fmt.Errorf("recipient: %w: %q", core.ErrUnknownAccount, recipient)
	}
	switch {
	case amount == 0:
		return nil, core.ErrZeroAmount
	case amount < 0:
		return nil, fmt.Errorf("%w: transfer of %s", core.ErrInvalidAmount, amount)
	}
	if issuer == recipient {
		return nil, fmt.Errorf("%w: %s to itself", core.ErrInvalidTransferRoute, issuer)
	}

	r := routes[kindOf(issuer)][kindOf(recipient)]
	if r == nil {
		return nil, fmt.Errorf("%w: %s to %s", core.ErrInvalidTransferRoute, issuer, recipient)
	}
	return r(issuer, recipient, amount), nil
}

var hundred = decimal.NewFromInt(100)

// SplitPurchase divides amount between the holders. Holder A's share is
// rounded to the cent; holder B gets the remainder so the shares always add
// up to amount.
func SplitPurchase(amount core.Cents, percentageA decimal.Decimal) (shareA, shareB core.Cents, err error) {
	if percentageA.IsNegative() || percentageA.GreaterThan(hundred) {
		return 0, 0, fmt.Errorf("%w: %s", core.ErrInvalidPercentage, percentageA)
	}
	shareA = core.ToMinor(amount.Decimal().Mul(percentageA).Div(hundred))
	return shareA, amount - shareA, nil
}
