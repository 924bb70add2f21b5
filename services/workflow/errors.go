package workflow

import (
	"errors"
	"fmt"
	"time"

	"gigchat/database/repository"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindEconomic   Kind = "economic"
	KindNotFound   Kind = "not_found"
	KindThrottled  Kind = "throttled"
	KindInternal   Kind = "internal"
)

// Error is returned by every workflow operation. Code is machine-readable;
// Details carries computed thresholds for economic failures.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation          = &Error{Code: "VALIDATION", Kind: KindValidation, Message: "invalid request"}
	ErrMissingVoiceMessage = &Error{Code: "MISSING_VOICE_MESSAGE", Kind: KindValidation, Message: "a voice message is required before a job can be created"}
	ErrNotFound            = &Error{Code: "NOT_FOUND", Kind: KindNotFound, Message: "record not found"}
	ErrJobNotCategorized   = &Error{Code: "JOB_NOT_CATEGORIZED", Kind: KindConflict, Message: "job is not open for bidding yet"}
	ErrJobClosed           = &Error{Code: "JOB_CLOSED", Kind: KindConflict, Message: "job is no longer accepting bids"}
	ErrDuplicateBid        = &Error{Code: "DUPLICATE_BID", Kind: KindConflict, Message: "worker already bid on this job"}
	ErrAlreadyCategorized  = &Error{Code: "ALREADY_CATEGORIZED", Kind: KindConflict, Message: "job already has a subcategory"}
	ErrAlreadyCompleted    = &Error{Code: "ALREADY_COMPLETED", Kind: KindConflict, Message: "job is already completed"}
	ErrAlreadyCancelled    = &Error{Code: "ALREADY_CANCELLED", Kind: KindConflict, Message: "job is already cancelled"}
	ErrNotOwner            = &Error{Code: "NOT_OWNER", Kind: KindConflict, Message: "user does not own this resource"}
	ErrWorkerNotEligible   = &Error{Code: "WORKER_NOT_ELIGIBLE", Kind: KindConflict, Message: "worker is not eligible for this job"}
	ErrInvalidState        = &Error{Code: "INVALID_STATE", Kind: KindConflict, Message: "operation not allowed in the current state"}
	ErrDuplicateRating     = &Error{Code: "DUPLICATE_RATING", Kind: KindConflict, Message: "rating already submitted"}
	ErrCodeAlreadyUsed     = &Error{Code: "CODE_ALREADY_USED", Kind: KindConflict, Message: "code was already used"}
	ErrInsufficientBalance = &Error{Code: "INSUFFICIENT_BALANCE", Kind: KindEconomic, Message: "worker balance is too low to bid"}
	ErrBidBelowMinimum     = &Error{Code: "BID_BELOW_MINIMUM", Kind: KindEconomic, Message: "bid is below the minimum amount"}
	ErrTooManyAttempts     = &Error{Code: "TOO_MANY_ATTEMPTS", Kind: KindThrottled, Message: "too many code attempts, try again later"}
	ErrInternal            = &Error{Code: "INTERNAL", Kind: KindInternal, Message: "internal error"}
)

// BidNotDueError is returned by ExpireBid when the bid still has Wait left.
type BidNotDueError struct {
	BidID string
	Wait  time.Duration
}

func (e *BidNotDueError) Error() string {
	return fmt.Sprintf("bid %s expires in %s", e.BidID, e.Wait)
}

// RetryAfter is when the expiry should run again.
func (e *BidNotDueError) RetryAfter() time.Duration { return e.Wait }

// fail copies a sentinel with a specific message.
func fail(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) with(details map[string]any) *Error {
	e.Details = details
	return e
}

func notFound(what, id string) *Error {
	return fail(ErrNotFound, "%s %s not found", what, id)
}

// storeErr translates a repository failure. Already-typed errors pass through.
func storeErr(op string, err error) error {
	var werr *Error
	if errors.As(err, &werr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ErrNotFound, "%s: record not found", op)
	}
	return &Error{Code: ErrInternal.Code, Kind: KindInternal, Message: op + " failed", Err: err}
}

func isNotFound(err error) bool  { return errors.Is(err, repository.ErrNotFound) }
func isConflict(err error) bool  { return errors.Is(err, repository.ErrConflict) }
func isDuplicate(err error) bool { return errors.Is(err, repository.ErrDuplicate) }

func isConflictKind(err error) bool {
	var werr *Error
	return errors.As(err, &werr) && werr.Kind == KindConflict
}
