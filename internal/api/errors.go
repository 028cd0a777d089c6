package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/ledger"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/registry"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/wallet"
	"github.com/nu7hatch/gouuid"
)

var ErrBadRequest = errors.New("bad request")

// Error is the body of every failed response. Server side failures carry an
// incident id that is also logged.
type Error struct {
	Time     time.Time `json:"time"`
	Status   int       `json:"status"`
	Error    string    `json:"error"`
	Incident string    `json:"incident,omitempty"`
}

func NewError(status int, err error) Error {
	e := Error{
		Time:   time.Now().UTC(),
		Status: status,
		Error:  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		u, _ := uuid.NewV4()
		if u != nil {
			e.Incident = u.String()
		}
	}

	return e
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotListed),
		errors.Is(err, registry.ErrTokenNotFound):
		return http.StatusNotFound

	case errors.Is(err, ledger.ErrAlreadyListed),
		errors.Is(err, registry.ErrTokenExists):
		return http.StatusConflict

	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusBadGateway

	case errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, ledger.ErrNotApproved),
		errors.Is(err, registry.ErrNotTokenOwner):
		return http.StatusForbidden

	case errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInsufficientPayment),
		errors.Is(err, ledger.ErrNoProceeds),
		errors.Is(err, entity.ErrInvalidAddress),
		errors.Is(err, entity.ErrInvalidTokenId),
		errors.Is(err, entity.ErrInvalidAmount),
		errors.Is(err, registry.ErrInvalidOwner),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
