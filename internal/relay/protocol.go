package relay

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types.
const (
	FrameEstablish = "establish"
	FrameMessage   = "message"
)

// frameError is the type of outbound error frames.
const frameError = "error"

// Error frame codes.
const (
	CodeBadFrame       = "bad_frame"
	CodeUnknownType    = "unknown_type"
	CodeSenderMismatch = "sender_mismatch"
	CodeRateLimited    = "rate_limited"
	CodeDeliveryFailed = "delivery_failed"
)

// Frame is a decoded inbound frame. Name is set for establish frames;
// Sender, Recipient and Content for message frames.
type Frame struct {
	Type      string
	Name      string
	Sender    string
	Recipient string
	Content   string
}

// wireFrame mirrors the JSON shape; pointers tell absent fields from empty
// ones.
type wireFrame struct {
	Type      *string `json:"type"`
	Name      *string `json:"name"`
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
	Content   *string `json:"content"`
}

// Delivery is the outbound payload pushed to both recipient and origin. The
// two cases are indistinguishable on the wire.
type Delivery struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ErrorFrame reports a rejected inbound frame or a failed delivery.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProtocolError is returned by ParseFrame; Code is one of the Code*
// constants.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string { return e.Code + ": " + e.Message }

func badFrame(format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: CodeBadFrame, Message: fmt.Sprintf(format, args...)}
}

// ParseFrame decodes a text frame. Invalid JSON, wrong field types, a
// missing type or missing required fields yield CodeBadFrame; an unknown
// type yields CodeUnknownType. Empty strings are valid field values.
func ParseFrame(data []byte) (*Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, badFrame("invalid JSON frame")
	}
	if w.Type == nil {
		return nil, badFrame("frame type is required")
	}

	f := &Frame{Type: *w.Type}
	switch f.Type {
	case FrameEstablish:
		if w.Name == nil {
			return nil, badFrame("establish frame requires name")
		}
		f.Name = *w.Name
	case FrameMessage:
		switch {
		case w.Sender == nil:
			return nil, badFrame("message frame requires sender")
		case w.Recipient == nil:
			return nil, badFrame("message frame requires recipient")
		case w.Content == nil:
			return nil, badFrame("message frame requires content")
		}
		f.Sender, f.Recipient, f.Content = *w.Sender, *w.Recipient, *w.Content
	default:
		return nil, &ProtocolError{Code: CodeUnknownType, Message: fmt.Sprintf("unknown frame type %q", f.Type)}
	}
	return f, nil
}

// EncodeDelivery renders the {sender, content} payload.
func EncodeDelivery(sender, content string) []byte {
	b, _ := json.Marshal(Delivery{Sender: sender, Content: content})
	return b
}

// EncodeError renders an error frame.
func EncodeError(code, message string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: frameError, Code: code, Message: message})
	return b
}
