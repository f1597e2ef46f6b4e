package model

import (
	"errors"
)

var (
	ErrUnsupportedVersion = errors.New("config version is not supported, expected 0")
	ErrNonPositive        = errors.New("value must be positive")
	ErrISOFormat          = errors.New("invalid ISO8601 duration")
	ErrOverflow           = errors.New("duration overflow")
)
