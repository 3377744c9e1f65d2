package stake

import (
	"errors"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("no active stake accounts")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrWalletNotProvided = errors.New("wallet not connected")
)
