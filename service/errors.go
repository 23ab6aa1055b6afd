package service

import (
	"errors"
)

// Domain errors. Callers match them with errors.Is; messages carry no ledger internals.
var (
	ErrUnknownAccount      = errors.New("unknown account")
	ErrAccountSuspended    = errors.New("account is not active")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrIntegrityFault      = errors.New("ledger integrity fault")

	// ErrDuplicateOperation is returned by repositories when an idempotency key
	// is already stored. The coordinator turns it into a duplicate result.
	ErrDuplicateOperation = errors.New("operation already applied")

	ErrInvalidOperation      = errors.New("invalid operation")
	ErrUnknownGame           = errors.New("unknown game")
	ErrBetOutOfRange         = errors.New("bet amount out of range")
	ErrUnknownMethod         = errors.New("unknown payment method")
	ErrAmountOutOfRange      = errors.New("amount out of range")
	ErrRequestNotFound       = errors.New("payment request not found")
	ErrRequestAlreadyDecided = errors.New("request already processed")
	ErrRequestNotExpired     = errors.New("payment request has not expired")
	ErrRoundNotFound         = errors.New("game round not found")
	ErrRoundAlreadySettled   = errors.New("game round already settled")
	ErrOutcomeUnavailable    = errors.New("game outcome could not be computed")
	ErrBonusAlreadyClaimed   = errors.New("bonus already claimed")
	ErrTrxIDRequired         = errors.New("transfer id required")
	ErrDuplicateTransfer     = errors.New("transfer already used by another request")
)

// UserMessage maps an error to a plain decline suitable for the chat layer
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient balance"
	case errors.Is(err, ErrAccountSuspended), errors.Is(err, ErrIntegrityFault):
		return "your account is temporarily unavailable"
	case errors.Is(err, ErrUnknownAccount):
		return "account not found"
	case errors.Is(err, ErrUnsupportedCurrency):
		return "currency not supported"
	case errors.Is(err, ErrLimitExceeded):
		return "limit exceeded, try again after the daily reset"
	case errors.Is(err, ErrRequestAlreadyDecided), errors.Is(err, ErrRoundAlreadySettled):
		return "request already processed"
	case errors.Is(err, ErrBonusAlreadyClaimed):
		return "bonus already claimed, come back after the daily reset"
	case errors.Is(err, ErrUnknownGame):
		return "unknown game"
	case errors.Is(err, ErrBetOutOfRange):
		return "bet amount is outside the allowed range"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown payment method"
	case errors.Is(err, ErrAmountOutOfRange):
		return "amount is outside the allowed range"
	case errors.Is(err, ErrTrxIDRequired):
		return "send the transaction id of your transfer"
	case errors.Is(err, ErrDuplicateTransfer):
		return "this transaction id was already used"
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrRoundNotFound):
		return "not found"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid request"
	default:
		return "something went wrong, please try again"
	}
}
