package domain

import "errors"

var (
	ErrCallNotFound    = errors.New("call not found")
	ErrUnauthorized    = errors.New("not allowed on this call")
	ErrInvalidState    = errors.New("invalid call state")
	ErrInvalidArgument = errors.New("invalid argument")
)
