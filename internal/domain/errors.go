package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidInput  = errors.New("invalid input")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")
)

// Auction rule violations. Every one is returned before the aggregate is
// touched, so a rejected call never leaves partial state behind.
var (
	ErrInvalidState       = errors.New("invalid state")
	ErrAuctionNotActive   = errors.New("auction not active")
	ErrTurnViolation      = errors.New("not this participant's turn")
	ErrItemUnavailable    = errors.New("item unavailable")
	ErrWrongItem          = errors.New("item is not up for bidding")
	ErrBidTooLow          = errors.New("bid too low")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrNotAParticipant    = errors.New("not a participant")
	ErrNoActiveItem       = errors.New("no active item")
	ErrRosterFull         = errors.New("roster full")
)

// AuctionError carries a machine-readable code and a human message around
// one of the rule sentinels above.
type AuctionError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuctionError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AuctionError) Unwrap() error { return e.Err }

var errorCodes = map[error]string{
	ErrInvalidState:       "INVALID_STATE",
	ErrAuctionNotActive:   "AUCTION_NOT_ACTIVE",
	ErrTurnViolation:      "TURN_VIOLATION",
	ErrItemUnavailable:    "ITEM_UNAVAILABLE",
	ErrWrongItem:          "WRONG_ITEM",
	ErrBidTooLow:          "BID_TOO_LOW",
	ErrInsufficientBudget: "INSUFFICIENT_BUDGET",
	ErrNotAParticipant:    "NOT_A_PARTICIPANT",
	ErrNoActiveItem:       "NO_ACTIVE_ITEM",
	ErrRosterFull:         "ROSTER_FULL",
}

// NewAuctionError wraps a rule sentinel with its code and a message.
func NewAuctionError(sentinel error, msg string) *AuctionError {
	return &AuctionError{Code: errorCodes[sentinel], Message: msg, Err: sentinel}
}

// ErrorCode returns the code of an AuctionError anywhere in err's chain.
func ErrorCode(err error) string {
	var ae *AuctionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
