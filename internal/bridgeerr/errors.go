// Package bridgeerr defines the error taxonomy shared by every layer of the
// bridge and its JSON wire form.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Codes carried on the wire.
const (
	CodeTransportDisconnected  = "transport_disconnected"
	CodeRequestTimeout         = "request_timeout"
	CodeElementNotFound        = "element_not_found"
	CodeElementAmbiguous       = "element_ambiguous"
	CodeElementNotInteractable = "element_not_interactable"
	CodeInvalidSelector        = "invalid_selector"
	CodeFrameUnreachable       = "frame_unreachable"
	CodeComboBoxNotDetected    = "combobox_not_detected"
	CodeNoOptionsHarvested     = "no_options_harvested"
	CodeInvalidRequest         = "invalid_request"
	CodeUnknownAction          = "unknown_action"
	CodeTabNotFound            = "tab_not_found"
	CodeUnsupported            = "unsupported"
	CodeInternal               = "internal"
)

var (
	ErrTransportDisconnected  = errors.New("transport disconnected")
	ErrRequestTimeout         = errors.New("request timeout")
	ErrElementNotFound        = errors.New("element not found")
	ErrElementAmbiguous       = errors.New("element ambiguous")
	ErrElementNotInteractable = errors.New("element not interactable")
	ErrInvalidSelector        = errors.New("invalid selector")
	ErrFrameUnreachable       = errors.New("frame unreachable")
	ErrComboBoxNotDetected    = errors.New("combo-box not detected")
	ErrNoOptionsHarvested     = errors.New("no options harvested")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnknownAction          = errors.New("unknown action")
	ErrTabNotFound            = errors.New("tab not found")
	ErrUnsupported            = errors.New("unsupported")
)

var sentinels = map[string]error{
	CodeTransportDisconnected:  ErrTransportDisconnected,
	CodeRequestTimeout:         ErrRequestTimeout,
	CodeElementNotFound:        ErrElementNotFound,
	CodeElementAmbiguous:       ErrElementAmbiguous,
	CodeElementNotInteractable: ErrElementNotInteractable,
	CodeInvalidSelector:        ErrInvalidSelector,
	CodeFrameUnreachable:       ErrFrameUnreachable,
	CodeComboBoxNotDetected:    ErrComboBoxNotDetected,
	CodeNoOptionsHarvested:     ErrNoOptionsHarvested,
	CodeInvalidRequest:         ErrInvalidRequest,
	CodeUnknownAction:          ErrUnknownAction,
	CodeTabNotFound:            ErrTabNotFound,
	CodeUnsupported:            ErrUnsupported,
}

// Error is a taxonomy error with actionable context for the caller.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error. err is usually one of the package sentinels.
func New(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Newf creates an Error whose sentinel is derived from code.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: sentinels[code]}
}

// With attaches a detail and returns e for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the taxonomy code for err, or CodeInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) && be.Code != "" {
		return be.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return CodeInternal
}

// Wire is the JSON shape of an error reply.
type Wire struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToWire converts err to its wire form.
func ToWire(err error) *Wire {
	if err == nil {
		return nil
	}
	w := &Wire{Code: CodeOf(err), Message: err.Error()}
	var be *Error
	if errors.As(err, &be) {
		w.Details = be.Details
	}
	return w
}

// FromWire rebuilds an error from its wire form so errors.Is keeps working
// after a hop across a channel.
func FromWire(w *Wire) error {
	if w == nil {
		return nil
	}
	code := w.Code
	if code == "" {
		code = CodeInternal
	}
	return &Error{Code: code, Message: w.Message, Details: w.Details, Err: sentinels[code]}
}

// IsConnectionError reports whether err means the transport went away.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrTransportDisconnected)
}
