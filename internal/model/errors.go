package model

import "errors"

var (
	// Session related errors
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrRefreshRejected  = errors.New("token refresh rejected")
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrUnexpectedResult = errors.New("backend reported failure")
	ErrSessionChanged   = errors.New("session changed while refreshing")

	// Account related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPassword    = errors.New("invalid password")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")

	// Cart related errors
	ErrUnknownProduct = errors.New("unknown product")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
