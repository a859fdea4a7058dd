package app

import (
	"errors"
	"fmt"
	"net/http"

	"docflow/internal/lockmgr"
	"docflow/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func errNotOwner(message string) *DomainError {
	return domainError(http.StatusForbidden, "NOT_OWNER", message, nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

// coerceError maps storage and locking failures onto the public taxonomy.
// Errors that are already domain errors pass through unchanged.
func coerceError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, store.ErrNotFound) {
		return errNotFound("Record not found.")
	}
	if errors.Is(err, store.ErrExists) {
		return errConflict("Record already exists.")
	}
	if errors.Is(err, lockmgr.ErrConflict) {
		return domainError(http.StatusConflict, "CONCURRENCY_CONFLICT", "Resource is busy; retry the operation.", nil)
	}
	return domainError(http.StatusInternalServerError, "IO_ERROR", "Storage operation failed.", map[string]any{"cause": err.Error()})
}
