package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestDeckError_Error(t *testing.T) {
	err := &DeckError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "slide not found",
	}

	expected := "NOT_FOUND: slide not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewFormat(t *testing.T) {
	err := NewFormat("bad signature")

	if err.Code != ErrFormat {
		t.Errorf("Code = %q, want %q", err.Code, ErrFormat)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if !err.Code.Fatal() {
		t.Error("FORMAT_ERROR should be fatal")
	}
}

func TestNewTruncatedInput(t *testing.T) {
	cause := fmt.Errorf("short read")
	err := NewTruncatedInput("layer info", 120, cause)

	if err.Code != ErrTruncatedInput {
		t.Errorf("Code = %q, want %q", err.Code, ErrTruncatedInput)
	}
	if err.Details["offset"] != 120 {
		t.Errorf("Details[offset] = %v, want 120", err.Details["offset"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !err.Code.Fatal() {
		t.Error("TRUNCATED_INPUT should be fatal")
	}
}

func TestLayerErrorsAreNotFatal(t *testing.T) {
	codes := []ErrorCode{ErrGeometry, ErrChannelDecode, ErrTextDecode, ErrUnknownRecord, ErrFontResolution}
	for _, code := range codes {
		if code.Fatal() {
			t.Errorf("%s should not be fatal", code)
		}
	}
}

func TestNewChannelDecode(t *testing.T) {
	err := NewChannelDecode(-1, fmt.Errorf("run overflows row"))

	if err.Code != ErrChannelDecode {
		t.Errorf("Code = %q, want %q", err.Code, ErrChannelDecode)
	}
	if err.Message != "channel -1: run overflows row" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["channel"] != -1 {
		t.Errorf("Details[channel] = %v, want -1", err.Details["channel"])
	}
}

func TestNewFontResolution(t *testing.T) {
	err := NewFontResolution("Inter", nil)

	if err.Code != ErrFontResolution {
		t.Errorf("Code = %q, want %q", err.Code, ErrFontResolution)
	}
	if err.Details["family"] != "Inter" {
		t.Errorf("Details[family] = %v, want %q", err.Details["family"], "Inter")
	}
}

func TestNewRenderCancelled(t *testing.T) {
	err := NewRenderCancelled(2, 5, nil)

	if err.Code != ErrRenderCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrRenderCancelled)
	}
	if err.Message != "render cancelled after 2 of 5 elements" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInvalidScale(t *testing.T) {
	err := NewInvalidScale(-1)

	if err.Code != ErrInvalidScale {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidScale)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("slide", "01HX")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "slide not found: 01HX" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "01HX" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01HX")
	}
}

func TestNewInternal(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "with error", err: fmt.Errorf("disk full"), wantMsg: "disk full"},
		{name: "nil error", err: nil, wantMsg: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewInternal(tt.err)
			if err.Code != ErrInternal {
				t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{name: "matching code", err: NewFormat("x"), code: ErrFormat, want: true},
		{name: "non-matching code", err: NewFormat("x"), code: ErrGeometry, want: false},
		{name: "wrapped", err: fmt.Errorf("decode: %w", NewGeometry("x")), code: ErrGeometry, want: true},
		{name: "plain error", err: fmt.Errorf("plain"), code: ErrInternal, want: false},
		{name: "nil error", err: nil, code: ErrInternal, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStdlibIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewChannelDecode(0, nil))
	if !stderrors.Is(err, &DeckError{Code: ErrChannelDecode}) {
		t.Error("errors.Is should match a code-only target")
	}
	if stderrors.Is(err, &DeckError{Code: ErrFormat}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", NewInvalidScale(0))); got != ErrInvalidScale {
		t.Errorf("CodeOf() = %q, want %q", got, ErrInvalidScale)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("CodeOf() = %q, want %q", got, ErrInternal)
	}
}
