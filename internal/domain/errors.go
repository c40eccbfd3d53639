package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Error kinds
// ──────────────────────────────────────────────────────────────────────────────

// Kind classifies an Error so callers can pick a policy (abort, reject, retry,
// alert) without inspecting individual codes.
type Kind string

const (
	KindFatal      Kind = "fatal"      // startup or cryptographic failure; do not continue
	KindValidation Kind = "validation" // caller supplied something unacceptable
	KindResource   Kind = "resource"   // not enough funds
	KindTransient  Kind = "transient"  // network or storage trouble; caller may retry
	KindIntegrity  Kind = "integrity"  // stored state contradicts an invariant
)

// Code identifies one specific failure inside a Kind.
type Code string

const (
	CodeCustodyUnavailable    Code = "CUSTODY_UNAVAILABLE"
	CodeDerivationFailed      Code = "DERIVATION_FAILED"
	CodeInvalidMarketSpec     Code = "INVALID_MARKET_SPEC"
	CodeMarketNotFound        Code = "MARKET_NOT_FOUND"
	CodeMarketNotActive       Code = "MARKET_NOT_ACTIVE"
	CodeMarketAlreadyResolved Code = "MARKET_ALREADY_RESOLVED"
	CodeInvalidOption         Code = "INVALID_OPTION"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInvalidAddress        Code = "INVALID_ADDRESS"
	CodeInvalidIdentifier     Code = "INVALID_IDENTIFIER"
	CodeInvalidIntent         Code = "INVALID_INTENT"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeLedgerUnreachable     Code = "LEDGER_UNREACHABLE"
	CodeTransferRejected      Code = "TRANSFER_REJECTED"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeIntegrityViolation    Code = "INTEGRITY_VIOLATION"
)

// Error is the only error type that crosses the custody and ledger boundaries.
type Error struct {
	Kind    Kind           `json:"kind"`
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so the sentinels
// below match errors that carry extra details or causes.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code
}

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors: compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Custody errors
var (
	// ErrCustodyUnavailable is returned when custody cannot start: the master
	// secret is missing or malformed, or the network ledger is unreachable.
	ErrCustodyUnavailable = &Error{Kind: KindFatal, Code: CodeCustodyUnavailable, Message: "wallet custody is unavailable"}

	// ErrDerivationFailed is returned for inputs no HD derivation can satisfy.
	ErrDerivationFailed = &Error{Kind: KindFatal, Code: CodeDerivationFailed, Message: "key derivation failed"}

	// ErrInsufficientFunds is returned when a balance snapshot does not cover
	// the requested amount.
	ErrInsufficientFunds = &Error{Kind: KindResource, Code: CodeInsufficientFunds, Message: "insufficient funds"}

	// ErrLedgerUnreachable is returned when the network ledger did not answer
	// in time.
	ErrLedgerUnreachable = &Error{Kind: KindTransient, Code: CodeLedgerUnreachable, Message: "network ledger is unreachable"}

	// ErrTransferRejected is returned when submission failed. The transfer may
	// still have reached the network; do not resubmit blindly.
	ErrTransferRejected = &Error{Kind: KindTransient, Code: CodeTransferRejected, Message: "transfer was rejected"}

	ErrInvalidAddress    = &Error{Kind: KindValidation, Code: CodeInvalidAddress, Message: "invalid destination address"}
	ErrInvalidIdentifier = &Error{Kind: KindValidation, Code: CodeInvalidIdentifier, Message: "identifier must not be empty"}
)

// Market / bet errors
var (
	ErrInvalidMarketSpec     = &Error{Kind: KindValidation, Code: CodeInvalidMarketSpec, Message: "invalid market specification"}
	ErrMarketNotFound        = &Error{Kind: KindValidation, Code: CodeMarketNotFound, Message: "market not found"}
	ErrMarketNotActive       = &Error{Kind: KindValidation, Code: CodeMarketNotActive, Message: "market is not active"}
	ErrMarketAlreadyResolved = &Error{Kind: KindValidation, Code: CodeMarketAlreadyResolved, Message: "market is already resolved"}
	ErrInvalidOption         = &Error{Kind: KindValidation, Code: CodeInvalidOption, Message: "option is not offered by this market"}
	ErrInvalidAmount         = &Error{Kind: KindValidation, Code: CodeInvalidAmount, Message: "amount must be a positive value with at most 18 decimals"}
	ErrInvalidIntent         = &Error{Kind: KindValidation, Code: CodeInvalidIntent, Message: "intent is malformed"}
)

// Infrastructure errors
var (
	ErrStoreUnavailable   = &Error{Kind: KindTransient, Code: CodeStoreUnavailable, Message: "storage is unavailable"}
	ErrIntegrityViolation = &Error{Kind: KindIntegrity, Code: CodeIntegrityViolation, Message: "stored state violates an invariant"}
)

// Store errors. These never leave the service layer; services translate them
// into the *Error values above.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists for identifier")
	ErrIndexTaken     = errors.New("derivation index already assigned")
	ErrStatusConflict = errors.New("market status changed concurrently")
)

// ──────────────────────────────────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────────────────────────────────

// Wrap copies sentinel and attaches cause. Details from sentinel are not shared.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     cause,
	}
}

// Reject copies sentinel with a more specific message and optional details.
func Reject(sentinel *Error, message string, details map[string]any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: message,
		Details: details,
	}
}

// InsufficientFunds builds the resource rejection including the shortfall so
// the presentation layer can tell the user how much is missing.
func InsufficientFunds(balance, required decimal.Decimal) *Error {
	shortfall := required.Sub(balance)
	return &Error{
		Kind: KindResource,
		Code: CodeInsufficientFunds,
		Message: fmt.Sprintf("insufficient balance: have %s ETH, need %s ETH",
			balance.StringFixed(4), required.String()),
		Details: map[string]any{
			"balance":   balance.String(),
			"required":  required.String(),
			"shortfall": shortfall.String(),
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsNotFound returns true when err is an "entity not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMarketNotFound)
}

// IsRetryable returns true for transient errors a caller may retry. Transfer
// rejections are excluded: the submission may already be on the network.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient && !errors.Is(err, ErrTransferRejected)
}
