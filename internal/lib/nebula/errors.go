package nebula

import (
	"errors"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrNoSigner       = errors.New("no local key available for wallet")
)
