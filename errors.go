/*
Package record – error types.

Every failure surfaced by the package is an *Error carrying a Code from the
taxonomy below, plus the logical attribute path or operation index that caused
it when one applies.
*/
package record

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a well-known error category string.
type ErrorCode string

const (
	CodeTypeMismatch         ErrorCode = "TypeMismatch"
	CodePrecisionLoss        ErrorCode = "PrecisionLoss"
	CodeUnknownAttribute     ErrorCode = "UnknownAttribute"
	CodeEmptyExpression      ErrorCode = "EmptyExpression"
	CodeTooManyClauses       ErrorCode = "TooManyClauses"
	CodePayloadTooLarge      ErrorCode = "PayloadTooLarge"
	CodeTransactionTooLarge  ErrorCode = "TransactionTooLarge"
	CodeConditionCheckFailed ErrorCode = "ConditionCheckFailed"
	CodePartialBatchFailure  ErrorCode = "PartialBatchFailure"
	CodeTransportFailure     ErrorCode = "TransportFailure"
	CodeArgument             ErrorCode = "ArgumentError"
	CodeInvalidState         ErrorCode = "InvalidState"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrTypeMismatch         = &Error{Code: CodeTypeMismatch, Index: -1}
	ErrPrecisionLoss        = &Error{Code: CodePrecisionLoss, Index: -1}
	ErrUnknownAttribute     = &Error{Code: CodeUnknownAttribute, Index: -1}
	ErrEmptyExpression      = &Error{Code: CodeEmptyExpression, Index: -1}
	ErrTooManyClauses       = &Error{Code: CodeTooManyClauses, Index: -1}
	ErrPayloadTooLarge      = &Error{Code: CodePayloadTooLarge, Index: -1}
	ErrTransactionTooLarge  = &Error{Code: CodeTransactionTooLarge, Index: -1}
	ErrConditionCheckFailed = &Error{Code: CodeConditionCheckFailed, Index: -1}
	ErrPartialBatchFailure  = &Error{Code: CodePartialBatchFailure, Index: -1}
	ErrTransportFailure     = &Error{Code: CodeTransportFailure, Index: -1}
	ErrArgument             = &Error{Code: CodeArgument, Index: -1}
	ErrInvalidState         = &Error{Code: CodeInvalidState, Index: -1}
)

// Error is the general error type. Path is the logical attribute path and
// Index the caller-supplied operation index (-1 when not applicable).
type Error struct {
	Message string
	Code    ErrorCode
	Path    string
	Index   int
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path %q)", e.Path)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " (operation %d)", e.Index)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError constructs an Error.
func NewError(msg string, opts ...func(*Error)) *Error {
	err := &Error{Message: msg, Index: -1}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*Error) {
	return func(e *Error) { e.Code = c }
}

// WithPath records the logical attribute path.
func WithPath(p string) func(*Error) {
	return func(e *Error) { e.Path = p }
}

// WithIndex records the operation index within a batch or transaction.
func WithIndex(i int) func(*Error) {
	return func(e *Error) { e.Index = i }
}

// WithContext attaches a context map.
func WithContext(ctx map[string]any) func(*Error) {
	return func(e *Error) { e.Context = ctx }
}

// WithCause wraps an underlying error.
func WithCause(cause error) func(*Error) {
	return func(e *Error) { e.Cause = cause }
}

// NewArgError is for invalid argument / configuration errors.
func NewArgError(msg string) *Error {
	return NewError(msg, WithCode(CodeArgument))
}

func typeMismatch(path, format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...), WithCode(CodeTypeMismatch), WithPath(path))
}

func precisionLoss(path, format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...), WithCode(CodePrecisionLoss), WithPath(path))
}

// atPath fills in the path on err if it is an *Error without one.
func atPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}

// atIndex fills in the operation index on err if it is an *Error without one.
func atIndex(err error, index int) error {
	var e *Error
	if errors.As(err, &e) && e.Index < 0 {
		cp := *e
		cp.Index = index
		return &cp
	}
	return err
}

// PartialBatchError reports the batch items that were not applied. It is
// returned together with a usable result: every index not listed succeeded.
type PartialBatchError struct {
	// Unprocessed lists original indices the service kept returning as
	// unprocessed after all retries.
	Unprocessed []int
	// Failed lists original indices whose chunk hit a transport error.
	Failed []int
	Causes []error
}

func (e *PartialBatchError) Error() string {
	msg := fmt.Sprintf("[%s] %d unprocessed, %d failed items", CodePartialBatchFailure, len(e.Unprocessed), len(e.Failed))
	if len(e.Causes) > 0 {
		msg += ": " + e.Causes[0].Error()
	}
	return msg
}

func (e *PartialBatchError) Unwrap() []error { return e.Causes }

// Is matches ErrPartialBatchFailure.
func (e *PartialBatchError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodePartialBatchFailure
}

// Indices returns unprocessed and failed indices merged in ascending order.
func (e *PartialBatchError) Indices() []int {
	return mergeSorted(e.Unprocessed, e.Failed)
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
