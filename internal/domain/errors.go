package domain

import "errors"

// 业务错误（传输层按 errors.Is 映射到 HTTP 状态码）
var (
	ErrValidation   = errors.New("validation failed")
	ErrDuplicate    = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUpstream     = errors.New("upstream failure")
)
