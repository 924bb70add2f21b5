package admin

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidUser     = errors.New("operation does not apply to this user")
	ErrDuplicate       = errors.New("record already exists")
)
