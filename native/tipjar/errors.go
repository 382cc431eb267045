package tipjar

import "errors"

var (
	ErrAlreadyExists     = errors.New("tipjar: jar already exists")
	ErrNotFound          = errors.New("tipjar: jar not found")
	ErrJarInactive       = errors.New("tipjar: jar is paused")
	ErrJarPrivate        = errors.New("tipjar: jar only accepts tips from its owner")
	ErrInvalidAmount     = errors.New("tipjar: amount must be positive")
	ErrInsufficientFunds = errors.New("tipjar: amount exceeds jar balance")
	ErrUnauthorized      = errors.New("tipjar: caller is not the jar owner")
	ErrTransferFailed    = errors.New("tipjar: funds transfer failed")
	ErrInvalidJarID      = errors.New("tipjar: invalid jar id")
	ErrInvalidMetadata   = errors.New("tipjar: metadata exceeds bounds")
	ErrMemoTooLong       = errors.New("tipjar: memo exceeds bounds")
	ErrInvalidVisibility = errors.New("tipjar: invalid visibility")
	ErrInvalidHistory    = errors.New("tipjar: corrupt history record")
	ErrNilState          = errors.New("tipjar: state not configured")
)
