package relay

import (
	"encoding/json"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
	"github.com/mj1618/web-bridge/internal/model"
)

// Source tags. Each direction carries a fixed tag and anything else is dropped.
const (
	SourceRelay = "web-bridge:relay"
	SourcePage  = "web-bridge:page"
)

// EventKind classifies an UpEvent.
type EventKind string

const (
	KindReady    EventKind = "ready"
	KindReply    EventKind = "reply"
	KindMutation EventKind = "mutation"
)

// DownCommand travels from the relay into the page context.
type DownCommand struct {
	Source    string          `json:"source"`
	RequestID string          `json:"requestId"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// UpEvent travels from the page context to the relay.
type UpEvent struct {
	Source    string                `json:"source"`
	Kind      EventKind             `json:"kind"`
	RequestID string                `json:"requestId,omitempty"`
	Result    json.RawMessage       `json:"result,omitempty"`
	Error     *bridgeerr.Wire       `json:"error,omitempty"`
	Mutation  *model.MutationReport `json:"mutation,omitempty"`
}
