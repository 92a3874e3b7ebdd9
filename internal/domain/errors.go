package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// SourceUnavailableError covers network failures, auth failures, 5xx
// responses, timeouts and undecodable pages.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// RateLimitedError is returned when a source asks us to back off.
// RetryAfter is zero when the source gave no hint.
type RateLimitedError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("source %s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("source %s rate limited", e.Source)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// MalformedRecordError describes a single payload that could not be mapped.
type MalformedRecordError struct {
	Source string
	Ref    string // native id when known, else position in the batch
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("malformed %s record %s: %s", e.Source, e.Ref, e.Reason)
	}
	return fmt.Sprintf("malformed %s record: %s", e.Source, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// Malformed builds a MalformedRecordError.
func Malformed(source, ref, format string, args ...any) error {
	return &MalformedRecordError{Source: source, Ref: ref, Reason: fmt.Sprintf(format, args...)}
}

// StorageError wraps a storage failure so callers can match ErrStorageUnavailable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// ErrorKind names the taxonomy bucket of err, or "" if it is not one of ours.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "unknown"
	}
}
