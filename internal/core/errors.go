package core

import "errors"

var (
	ErrUnknownAccount       = errors.New("unknown account")
	ErrInvalidTransferRoute = errors.New("invalid transfer route")
	ErrAmountMismatch       = errors.New("shares do not sum to amount")
	ErrStorageUnavailable   = errors.New("storage unavailable")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrZeroAmount        = errors.New("zero amount")
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidKind       = errors.New("invalid obligation kind")
	ErrTimelineExists    = errors.New("timeline already generated")
	ErrSnapshotDrift     = errors.New("balance snapshot differs from ledger")
	ErrNotFound          = errors.New("not found")
)
