package transport

import (
	"encoding/json"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
)

// Frame types that carry no correlation id.
const (
	TypeIdentify = "identify"
	TypeMutation = "mutation"
)

// Message is one JSON frame on either channel. Outbound requests carry
// ID, Action and Payload; replies carry ID and Response or Error.
type Message struct {
	ID       int64           `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Action   string          `json:"action,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *WireError      `json:"error,omitempty"`

	Name       string `json:"name,omitempty"`
	Version    string `json:"version,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
}

// WireError accepts both the structured error object and the bare string
// some bridges send.
type WireError bridgeerr.Wire

func (w *WireError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*w = WireError{Code: bridgeerr.CodeInternal, Message: s}
		return nil
	}
	var obj bridgeerr.Wire
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*w = WireError(obj)
	return nil
}

func (w *WireError) err() error {
	if w == nil {
		return nil
	}
	ww := bridgeerr.Wire(*w)
	return bridgeerr.FromWire(&ww)
}

func wireErr(err error) *WireError {
	w := bridgeerr.ToWire(err)
	if w == nil {
		return nil
	}
	we := WireError(*w)
	return &we
}

// Identity is sent once per channel in the identify frame.
type Identity struct {
	Name      string
	Version   string
	UserAgent string
}
