package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a layerdeck error code.
type ErrorCode string

const (
	ErrFormat           ErrorCode = "FORMAT_ERROR"            // 422, fatal for a decode
	ErrTruncatedInput   ErrorCode = "TRUNCATED_INPUT"         // 422, fatal for a decode
	ErrGeometry         ErrorCode = "GEOMETRY_ERROR"          // 422, one layer dropped
	ErrChannelDecode    ErrorCode = "CHANNEL_DECODE_ERROR"    // 422, one layer dropped
	ErrTextDecode       ErrorCode = "TEXT_DECODE_ERROR"       // non-fatal
	ErrUnknownRecord    ErrorCode = "UNKNOWN_RECORD"          // non-fatal, info severity
	ErrFontResolution   ErrorCode = "FONT_RESOLUTION_FAILURE" // non-fatal
	ErrRenderCancelled  ErrorCode = "RENDER_CANCELLED"        // 499
	ErrInvalidScale     ErrorCode = "INVALID_SCALE"           // 400
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"         // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"               // 404
	ErrConflict         ErrorCode = "CONFLICT"                // 409
	ErrAssetUnavailable ErrorCode = "ASSET_UNAVAILABLE"       // 502
	ErrInternal         ErrorCode = "INTERNAL"                // 500
	ErrCancelled        ErrorCode = "CANCELLED"               // 499
	ErrValidation       ErrorCode = "VALIDATION_ERROR"        // 422
)

// DeckError represents a structured error with code, status, and details.
type DeckError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *DeckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DeckError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on code: a target DeckError with only Code set
// matches any DeckError carrying the same code.
func (e *DeckError) Is(target error) bool {
	t, ok := target.(*DeckError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Fatal reports whether the code aborts a whole decode.
func (c ErrorCode) Fatal() bool {
	return c == ErrFormat || c == ErrTruncatedInput
}

// NewFormat creates an error for a bad signature, version or section header.
func NewFormat(msg string) *DeckError {
	return &DeckError{
		Code:    ErrFormat,
		Status:  422,
		Message: msg,
	}
}

// NewTruncatedInput creates an error for a length prefix that exceeds the remaining bytes.
func NewTruncatedInput(section string, offset int, err error) *DeckError {
	return &DeckError{
		Code:    ErrTruncatedInput,
		Status:  422,
		Message: fmt.Sprintf("truncated %s at offset %d", section, offset),
		Details: map[string]any{"section": section, "offset": offset},
		Err:     err,
	}
}

// NewGeometry creates an error for an inverted or non-finite layer rectangle.
func NewGeometry(msg string) *DeckError {
	return &DeckError{
		Code:    ErrGeometry,
		Status:  422,
		Message: msg,
	}
}

// NewChannelDecode creates an error for corrupt channel image data.
func NewChannelDecode(channel int, err error) *DeckError {
	msg := fmt.Sprintf("channel %d", channel)
	if err != nil {
		msg = fmt.Sprintf("channel %d: %v", channel, err)
	}
	return &DeckError{
		Code:    ErrChannelDecode,
		Status:  422,
		Message: msg,
		Details: map[string]any{"channel": channel},
		Err:     err,
	}
}

// NewTextDecode creates an error for an unreadable text descriptor.
func NewTextDecode(err error) *DeckError {
	return &DeckError{
		Code:    ErrTextDecode,
		Status:  422,
		Message: fmt.Sprintf("text descriptor: %v", err),
		Err:     err,
	}
}

// NewUnknownRecord creates an error for a skipped, unrecognized record kind.
func NewUnknownRecord(key string, length int) *DeckError {
	return &DeckError{
		Code:    ErrUnknownRecord,
		Status:  200,
		Message: fmt.Sprintf("skipped unknown record %q (%d bytes)", key, length),
		Details: map[string]any{"key": key, "length": length},
	}
}

// NewFontResolution creates an error for a font that could not be resolved.
func NewFontResolution(family string, err error) *DeckError {
	msg := fmt.Sprintf("font %q not resolved, using fallback", family)
	if err != nil {
		msg = fmt.Sprintf("font %q not resolved, using fallback: %v", family, err)
	}
	return &DeckError{
		Code:    ErrFontResolution,
		Status:  200,
		Message: msg,
		Details: map[string]any{"family": family},
		Err:     err,
	}
}

// NewRenderCancelled creates an error for a render stopped by its context.
func NewRenderCancelled(emitted, total int, err error) *DeckError {
	return &DeckError{
		Code:    ErrRenderCancelled,
		Status:  499,
		Message: fmt.Sprintf("render cancelled after %d of %d elements", emitted, total),
		Details: map[string]any{"emitted": emitted, "total": total},
		Err:     err,
	}
}

// NewInvalidScale creates a 400 error for a non-positive or non-finite scale.
func NewInvalidScale(scale float64) *DeckError {
	return &DeckError{
		Code:    ErrInvalidScale,
		Status:  400,
		Message: fmt.Sprintf("scale must be a positive finite number, got %v", scale),
		Details: map[string]any{"scale": scale},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *DeckError {
	return &DeckError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewValidation creates a 422 error for model values that violate an invariant.
func NewValidation(msg string) *DeckError {
	return &DeckError{
		Code:    ErrValidation,
		Status:  422,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing template, slide or asset.
func NewNotFound(kind, identifier string) *DeckError {
	return &DeckError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *DeckError {
	return &DeckError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewAssetUnavailable creates an error for an asset the resolver could not deliver.
func NewAssetUnavailable(locator string, err error) *DeckError {
	return &DeckError{
		Code:    ErrAssetUnavailable,
		Status:  502,
		Message: fmt.Sprintf("asset %s unavailable: %v", locator, err),
		Details: map[string]any{"locator": locator},
		Err:     err,
	}
}

// NewCancelled creates an error for an operation stopped by its context.
func NewCancelled(operation string) *DeckError {
	return &DeckError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *DeckError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &DeckError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if an error is, or wraps, a DeckError with the given code.
func Is(err error, code ErrorCode) bool {
	var dErr *DeckError
	if stderrors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first DeckError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var dErr *DeckError
	if stderrors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrInternal
}
