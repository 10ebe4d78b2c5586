package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies the kind of rejection. Every code is a recoverable,
// local outcome except CodeInvariantViolation.
type Code string

const (
	CodeInvalidParameter         Code = "INVALID_PARAMETER"
	CodeLimitExceeded            Code = "LIMIT_EXCEEDED"
	CodeCorrelationLimitExceeded Code = "CORRELATION_LIMIT_EXCEEDED"
	CodeOrderNotFound            Code = "ORDER_NOT_FOUND"
	CodeInvalidOrderState        Code = "INVALID_ORDER_STATE"
	CodeInsufficientFunds        Code = "INSUFFICIENT_FUNDS"
	CodePositionNotFound         Code = "POSITION_NOT_FOUND"
	CodeInvariantViolation       Code = "INVARIANT_VIOLATION"
)

// Sentinels for errors.Is. A *RiskError matches the sentinel with the same code.
var (
	ErrInvalidParameter         = &RiskError{Code: CodeInvalidParameter}
	ErrLimitExceeded            = &RiskError{Code: CodeLimitExceeded}
	ErrCorrelationLimitExceeded = &RiskError{Code: CodeCorrelationLimitExceeded}
	ErrOrderNotFound            = &RiskError{Code: CodeOrderNotFound}
	ErrInvalidOrderState        = &RiskError{Code: CodeInvalidOrderState}
	ErrInsufficientFunds        = &RiskError{Code: CodeInsufficientFunds}
	ErrPositionNotFound         = &RiskError{Code: CodePositionNotFound}
	ErrInvariantViolation       = &RiskError{Code: CodeInvariantViolation}
)

// RiskError represents a categorized rejection with context
type RiskError struct {
	Code       Code
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
}

// Error implements the error interface
func (e *RiskError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Code, e.Component, e.Operation, e.Message, e.Underlying)
	}
	if e.Component == "" && e.Operation == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Code, e.Component, e.Operation, e.Message)
}

// Reason returns the human readable message without the code prefix,
// suitable for direct display.
func (e *RiskError) Reason() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Unwrap returns the underlying error for error unwrapping
func (e *RiskError) Unwrap() error {
	return e.Underlying
}

// Is matches any *RiskError carrying the same code.
func (e *RiskError) Is(target error) bool {
	t, ok := target.(*RiskError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsDefect reports whether the error signals a broken ledger invariant
// rather than a business rejection.
func (e *RiskError) IsDefect() bool {
	return e.Code == CodeInvariantViolation
}

// WithContext adds context information to the error
func (e *RiskError) WithContext(key string, value interface{}) *RiskError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a categorized error.
func New(code Code, component, operation, format string, args ...interface{}) *RiskError {
	return &RiskError{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
		Context:   make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a code.
func Wrap(err error, code Code, component, operation string) *RiskError {
	if err == nil {
		return nil
	}
	return &RiskError{
		Code:       code,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func InvalidParameter(component, operation, format string, args ...interface{}) *RiskError {
	return New(CodeInvalidParameter, component, operation, format, args...)
}

func LimitExceeded(component, operation, format string, args ...interface{}) *RiskError {
	return New(CodeLimitExceeded, component, operation, format, args...)
}

func CorrelationLimitExceeded(component, operation, format string, args ...interface{}) *RiskError {
	return New(CodeCorrelationLimitExceeded, component, operation, format, args...)
}

func OrderNotFound(component, operation, orderID string) *RiskError {
	return New(CodeOrderNotFound, component, operation, "order %s not found", orderID).WithContext("order_id", orderID)
}

func InvalidOrderState(component, operation, format string, args ...interface{}) *RiskError {
	return New(CodeInvalidOrderState, component, operation, format, args...)
}

func InsufficientFunds(component, operation string, required, available float64) *RiskError {
	return New(CodeInsufficientFunds, component, operation,
		"insufficient funds: required %.8f, available %.8f", required, available).
		WithContext("required", required).
		WithContext("available", available)
}

func PositionNotFound(component, operation, positionID string) *RiskError {
	return New(CodePositionNotFound, component, operation, "position %s not found", positionID).WithContext("position_id", positionID)
}

func InvariantViolation(component, operation, format string, args ...interface{}) *RiskError {
	return New(CodeInvariantViolation, component, operation, format, args...)
}

// CodeOf extracts the code of err, or "" when err is not a *RiskError.
func CodeOf(err error) Code {
	var re *RiskError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// ReasonOf returns a display string for any error.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var re *RiskError
	if stderrors.As(err, &re) {
		return re.Reason()
	}
	return err.Error()
}

// ErrorStats tracks error statistics
type ErrorStats struct {
	TotalErrors     int
	ErrorsByCode    map[Code]int
	RecentErrors    []*RiskError
	MaxRecentErrors int
}

// NewErrorStats creates a new error statistics tracker
func NewErrorStats(maxRecentErrors int) *ErrorStats {
	if maxRecentErrors <= 0 {
		maxRecentErrors = 50
	}
	return &ErrorStats{
		ErrorsByCode:    make(map[Code]int),
		RecentErrors:    make([]*RiskError, 0, maxRecentErrors),
		MaxRecentErrors: maxRecentErrors,
	}
}

// RecordError records an error in the statistics. Non-RiskError values are ignored.
func (es *ErrorStats) RecordError(err error) {
	var re *RiskError
	if !stderrors.As(err, &re) {
		return
	}
	es.TotalErrors++
	es.ErrorsByCode[re.Code]++

	es.RecentErrors = append(es.RecentErrors, re)
	if len(es.RecentErrors) > es.MaxRecentErrors {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate returns the share of recorded errors with the given code
func (es *ErrorStats) GetErrorRate(code Code) float64 {
	if es.TotalErrors == 0 {
		return 0.0
	}
	return float64(es.ErrorsByCode[code]) / float64(es.TotalErrors)
}

// HasRecentErrors checks if there have been at least count recent errors with the code
func (es *ErrorStats) HasRecentErrors(code Code, count int) bool {
	recentCount := 0
	for _, err := range es.RecentErrors {
		if err.Code == code {
			recentCount++
		}
	}
	return recentCount >= count
}
