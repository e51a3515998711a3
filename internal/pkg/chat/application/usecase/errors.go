package usecase

import "errors"

var (
	// ErrPersistence indicates an infrastructure/repository failure inside a use case
	ErrPersistence = errors.New("chat use case persistence error")
	// ErrNotFound indicates the addressed conversation or message does not exist
	ErrNotFound = errors.New("chat use case: not found")
	// ErrInvalidInput indicates a missing or malformed request field
	ErrInvalidInput = errors.New("chat use case: invalid input")
	// ErrConflict indicates the row being created already exists
	ErrConflict = errors.New("chat use case: already exists")
)
