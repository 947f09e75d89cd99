package dberrors

import "errors"

var (
	ErrNotFound          = errors.New("entitydb: not found")
	ErrClosed            = errors.New("entitydb: closed")
	ErrInvalidArgument   = errors.New("entitydb: invalid argument")
	ErrUnknownCollection = errors.New("entitydb: unknown collection")
	ErrUnknownIndex      = errors.New("entitydb: unknown index")
)
