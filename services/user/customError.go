package user

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidSkill = errors.New("skills must be existing top-level categories")
)
