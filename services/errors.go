package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// ErrorCode classifies every failure the services return
type ErrorCode string

const (
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeAlreadyImported       ErrorCode = "ALREADY_IMPORTED"
	CodeRegionClosed          ErrorCode = "REGION_CLOSED"
	CodeNoCapacityFound       ErrorCode = "NO_CAPACITY_FOUND"
	CodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	CodeTechnicianUnavailable ErrorCode = "TECHNICIAN_UNAVAILABLE"
	CodeMixedTechnician       ErrorCode = "MIXED_TECHNICIAN"
	CodeNoPhoneOnFile         ErrorCode = "NO_PHONE_ON_FILE"
	CodeConflict              ErrorCode = "CONFLICT"
	CodePartialFailure        ErrorCode = "PARTIAL_FAILURE"
	CodeTimeout               ErrorCode = "TIMEOUT"
	CodeStoreError            ErrorCode = "STORE_ERROR"
)

// OrderError is the single error type returned by the services. Two
// OrderErrors match under errors.Is when their codes are equal.
type OrderError struct {
	Code    ErrorCode
	Message string
	ID      string
	Err     error
}

func (e *OrderError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.ID != "" {
		b.WriteString(" [")
		b.WriteString(e.ID)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func (e *OrderError) Is(target error) bool {
	t, ok := target.(*OrderError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidInput          = &OrderError{Code: CodeInvalidInput}
	ErrNotFound              = &OrderError{Code: CodeNotFound}
	ErrAlreadyImported       = &OrderError{Code: CodeAlreadyImported}
	ErrRegionClosed          = &OrderError{Code: CodeRegionClosed}
	ErrNoCapacityFound       = &OrderError{Code: CodeNoCapacityFound}
	ErrInvalidTransition     = &OrderError{Code: CodeInvalidTransition}
	ErrTechnicianUnavailable = &OrderError{Code: CodeTechnicianUnavailable}
	ErrMixedTechnician       = &OrderError{Code: CodeMixedTechnician}
	ErrNoPhoneOnFile         = &OrderError{Code: CodeNoPhoneOnFile}
	ErrConflict              = &OrderError{Code: CodeConflict}
	ErrTimeout               = &OrderError{Code: CodeTimeout}
	ErrStore                 = &OrderError{Code: CodeStoreError}
)

func newError(code ErrorCode, id, format string, args ...interface{}) *OrderError {
	return &OrderError{Code: code, ID: id, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...interface{}) *OrderError {
	return newError(CodeInvalidInput, "", format, args...)
}

func invalidTransition(id, format string, args ...interface{}) *OrderError {
	return newError(CodeInvalidTransition, id, format, args...)
}

// classify maps a collaborator error onto an OrderError. OrderErrors pass
// through untouched.
func classify(err error, id string) error {
	if err == nil {
		return nil
	}
	var oe *OrderError
	if errors.As(err, &oe) {
		if oe.ID == "" && id != "" {
			cp := *oe
			cp.ID = id
			return &cp
		}
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &OrderError{Code: CodeTimeout, ID: id, Message: "store did not respond in time", Err: err}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &OrderError{Code: CodeNotFound, ID: id, Message: "record not found", Err: err}
	}
	return &OrderError{Code: CodeStoreError, ID: id, Err: err}
}

// CodeOf extracts the error code, or "" for nil and foreign errors
func CodeOf(err error) ErrorCode {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Code
	}
	if err != nil {
		return CodeStoreError
	}
	return ""
}

// PartialFailure is the outcome of every batch operation. It is returned even
// when nothing failed; Failed is keyed by id.
type PartialFailure struct {
	Succeeded []string
	Failed    map[string]error
}

// DeletionReport is the result of a permanent deletion batch
type DeletionReport = PartialFailure

func newPartialFailure() *PartialFailure {
	return &PartialFailure{Succeeded: []string{}, Failed: map[string]error{}}
}

// OK reports whether every id succeeded
func (p *PartialFailure) OK() bool {
	return len(p.Failed) == 0
}

// FailedIDs returns the failed ids in sorted order
func (p *PartialFailure) FailedIDs() []string {
	ids := make([]string, 0, len(p.Failed))
	for id := range p.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", CodePartialFailure, len(p.Succeeded), len(p.Failed))
}
