package domain

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrInvalidToken      = errors.New("invalid token")
	ErrSessionClosed     = errors.New("peer session closed")
	ErrChannelNotReady   = errors.New("data channel not ready")
)
