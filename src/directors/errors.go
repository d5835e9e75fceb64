package directors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidParent = errors.New("invalid parent folder")
	ErrCycle         = errors.New("a folder cannot be moved into itself or its descendants")
)
