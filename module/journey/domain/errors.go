package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	ErrCodeInvalidCoordinates ErrorCode = "validation_invalid_coordinates"
	ErrCodeMissingField       ErrorCode = "validation_missing_field"
	ErrCodeUnknownSource      ErrorCode = "validation_unknown_source"
	ErrCodeInvalidRoute       ErrorCode = "validation_invalid_route"
	ErrCodeInvalidTimeRange   ErrorCode = "validation_invalid_time_range"
	ErrCodeFutureTimestamp    ErrorCode = "validation_future_timestamp"

	ErrCodeJourneyNotFound  ErrorCode = "not_found_journey"
	ErrCodePositionNotFound ErrorCode = "not_found_position"

	ErrCodeJourneyNotActive ErrorCode = "conflict_journey_not_active"
	ErrCodeJourneyExists    ErrorCode = "conflict_journey_exists"
	ErrCodeConcurrentUpdate ErrorCode = "conflict_concurrent_modification"
	ErrCodeDuplicateReport  ErrorCode = "conflict_duplicate_report"

	ErrCodePersistence ErrorCode = "internal_persistence_failure"
	ErrCodeInternal    ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps a code to the status the API layer answers with.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable is true for failures where resubmitting the same report may succeed.
func (e *AppError) Retryable() bool {
	return e.Code == ErrCodePersistence || e.Code == ErrCodeConcurrentUpdate
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

var (
	ErrJourneyNotFound  = NewAppError(ErrCodeJourneyNotFound, "journey not found", nil)
	ErrJourneyNotActive = NewAppError(ErrCodeJourneyNotActive, "this trip has ended", nil)
	ErrVersionConflict  = NewAppError(ErrCodeConcurrentUpdate, "journey was modified concurrently", nil)
	ErrNoPositions      = NewAppError(ErrCodePositionNotFound, "no position recorded for journey", nil)
	ErrDuplicateReport  = NewAppError(ErrCodeDuplicateReport, "position report already recorded", nil)
)

// CodeOf extracts the ErrorCode of err, or ErrCodeInternal when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is lets errors.Is match AppErrors by code, so wrapped sentinels compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
