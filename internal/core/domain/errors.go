package domain

import "errors"

// Code is a machine-readable error code. Every code maps to one actor-facing
// message category.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validation and mode
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"

	// Shop side
	CodeShopOutOfStock Code = "SHOP_OUT_OF_STOCK"
	CodeShopOutOfSpace Code = "SHOP_OUT_OF_SPACE"

	// Ledger
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientBalanceToSell Code = "INSUFFICIENT_BALANCE_TO_SELL"

	// Player side
	CodePlayerOutOfInventorySpace Code = "PLAYER_OUT_OF_INVENTORY_SPACE"
	CodePlayerOutOfStock          Code = "PLAYER_OUT_OF_STOCK"

	// Storage and lookups
	CodeUnrecoverableStorage Code = "UNRECOVERABLE_STORAGE"
	CodeNotFound             Code = "NOT_FOUND"
	CodeLocationInUse        Code = "LOCATION_IN_USE"

	// Sessions and requests
	CodeNoEditSession    Code = "NO_EDIT_SESSION"
	CodeDuplicateRequest Code = "DUPLICATE_REQUEST"
)

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Internal message (for logs)
	Cause   error  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Storage wraps an I/O failure as an unrecoverable storage error.
func Storage(message string, cause error) *Error {
	return Wrap(CodeUnrecoverableStorage, message, cause)
}

var (
	ErrPermissionDenied          = New(CodePermissionDenied, "permission denied")
	ErrUnsupportedOperation      = New(CodeUnsupportedOperation, "unsupported operation")
	ErrInvalidArgument           = New(CodeInvalidArgument, "invalid argument")
	ErrShopOutOfStock            = New(CodeShopOutOfStock, "shop is out of stock")
	ErrShopOutOfSpace            = New(CodeShopOutOfSpace, "shop is out of space")
	ErrInsufficientBalance       = New(CodeInsufficientBalance, "insufficient balance to buy")
	ErrInsufficientBalanceToSell = New(CodeInsufficientBalanceToSell, "owners have insufficient balance to buy from client")
	ErrPlayerOutOfInventorySpace = New(CodePlayerOutOfInventorySpace, "player is out of inventory space")
	ErrPlayerOutOfStock          = New(CodePlayerOutOfStock, "player does not hold enough items")
	ErrUnrecoverableStorage      = New(CodeUnrecoverableStorage, "unrecoverable storage error")
	ErrNotFound                  = New(CodeNotFound, "not found")
	ErrLocationInUse             = New(CodeLocationInUse, "location is already used by another shop")
	ErrNoEditSession             = New(CodeNoEditSession, "no pending edit session")
	ErrDuplicateRequest          = New(CodeDuplicateRequest, "duplicate request")
)

// Category returns the code of the outermost domain error in err's chain.
func Category(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}
