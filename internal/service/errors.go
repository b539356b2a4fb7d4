package service

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownTier  = errors.New("unknown tier")
)

// Configuration errors, surfaced before a match exists
var (
	ErrTooManyBooksSelected = errors.New("too many books selected")
	ErrWagerOutOfRange      = errors.New("wager out of range")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDailyLimitReached    = errors.New("daily match limit reached")
)

// Round errors. Non-fatal, the submission is simply not accepted.
var (
	ErrDuplicateSubmission       = errors.New("duplicate submission")
	ErrSubmissionAfterResolution = errors.New("submission after resolution")
)

// Settlement errors
var (
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)

// Match service specific errors
var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchNotActive    = errors.New("match is not in progress")
	ErrActiveMatchExists = errors.New("player already has an active match")
	ErrNoQuestions       = errors.New("not enough questions available")
)

// ConfigErrorCode machine readable reason a match could not be configured
type ConfigErrorCode string

const (
	CodeTooManyBooksSelected ConfigErrorCode = "TOO_MANY_BOOKS_SELECTED"
	CodeWagerOutOfRange      ConfigErrorCode = "WAGER_OUT_OF_RANGE"
	CodeInsufficientFunds    ConfigErrorCode = "INSUFFICIENT_FUNDS"
	CodeDailyLimitReached    ConfigErrorCode = "DAILY_LIMIT_REACHED"
)

// ConfigError rejection of a match configuration. Unwraps to the matching sentinel.
type ConfigError struct {
	Code   ConfigErrorCode
	Detail string
	err    error
}

func newConfigError(code ConfigErrorCode, sentinel error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Code: code, Detail: fmt.Sprintf(format, args...), err: sentinel}
}

func (e *ConfigError) Error() string {
	if e.err == nil {
		return string(e.Code)
	}
	if e.Detail == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.err.Error(), e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.err
}
