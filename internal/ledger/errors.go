package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyListed       = errors.New("already listed")
	ErrNotListed           = errors.New("not listed")
	ErrNotOwner            = errors.New("not owner")
	ErrNotApproved         = errors.New("not approved for marketplace")
	ErrInvalidPrice        = errors.New("price must be above zero")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrNoProceeds          = errors.New("no proceeds")
	ErrTransferFailed      = errors.New("transfer failed")
)

// TransferError is returned when an external payment or asset transfer fails.
// It matches ErrTransferFailed and unwraps to the collaborator's error.
type TransferError struct {
	Step string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransferFailed, e.Step, e.Err)
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
