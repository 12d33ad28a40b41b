package app

import (
	"fmt"
	"net/http"
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

func errAssistInProgress(scope string) *DomainError {
	return domainError(http.StatusConflict, "assist_in_progress", "An assist request is already running", map[string]any{"scope": scope})
}

func errUnknownIdentity(id string) *DomainError {
	return domainError(http.StatusBadRequest, "unknown_identity", "Unknown identity", map[string]any{"userId": id})
}
