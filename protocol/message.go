// File: protocol/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// JSON message types carried in TagJSON frames.

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/internal/jsoncodec"
)

// Responder delivers the response of a request back to its origin.
type Responder interface {
	SendResponse(resp *Response) error
}

// Request is a correlated call. When HasPayload is set on the payload
// channel, Payload carries the binary frame that followed the header.
type Request struct {
	ID         uint32          `json:"id"`
	Method     string          `json:"method"`
	Internal   json.RawMessage `json:"internal,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	HasPayload bool            `json:"payload,omitempty"`
	Payload    []byte          `json:"-"`

	responder Responder
	replied   bool
}

// Notification is an uncorrelated message.
type Notification struct {
	TargetID   string          `json:"targetId,omitempty"`
	Method     string          `json:"method"`
	Internal   json.RawMessage `json:"internal,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	HasPayload bool            `json:"payload,omitempty"`
	Payload    []byte          `json:"-"`
}

// Response answers a Request with the same ID. Exactly one of Accepted or
// Error is set.
type Response struct {
	ID       uint32          `json:"id"`
	Accepted bool            `json:"accepted,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// message is the union of everything a TagJSON frame may hold. ID is a
// pointer so that a missing id can be told apart from id 0.
type message struct {
	ID         *uint32         `json:"id"`
	TargetID   string          `json:"targetId"`
	Method     string          `json:"method"`
	Internal   json.RawMessage `json:"internal"`
	Data       json.RawMessage `json:"data"`
	HasPayload bool            `json:"payload"`
}

func decodeMessage(body []byte) (*message, error) {
	var m message
	if err := jsoncodec.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode message: %v: %w", err, api.ErrDecode)
	}
	if m.Method == "" {
		return nil, fmt.Errorf("decode message: missing method: %w", api.ErrDecode)
	}
	return &m, nil
}

func (m *message) request() *Request {
	return &Request{
		ID:         *m.ID,
		Method:     m.Method,
		Internal:   m.Internal,
		Data:       m.Data,
		HasPayload: m.HasPayload,
	}
}

func (m *message) notification() *Notification {
	return &Notification{
		TargetID:   m.TargetID,
		Method:     m.Method,
		Internal:   m.Internal,
		Data:       m.Data,
		HasPayload: m.HasPayload,
	}
}

// DecodeRequest parses a request body. id and method are required.
func DecodeRequest(body []byte) (*Request, error) {
	m, err := decodeMessage(body)
	if err != nil {
		return nil, err
	}
	if m.ID == nil {
		return nil, fmt.Errorf("decode request %q: missing id: %w", m.Method, api.ErrDecode)
	}
	return m.request(), nil
}

// DecodeMessage parses a body that may hold either a Request (id present)
// or a Notification. Exactly one of the results is non-nil on success.
func DecodeMessage(body []byte) (*Request, *Notification, error) {
	m, err := decodeMessage(body)
	if err != nil {
		return nil, nil, err
	}
	if m.ID != nil {
		return m.request(), nil, nil
	}
	return nil, m.notification(), nil
}

// DecodeResponse parses a response body.
func DecodeResponse(body []byte) (*Response, error) {
	var r Response
	if err := jsoncodec.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %v: %w", err, api.ErrDecode)
	}
	return &r, nil
}

// Bind attaches the responder used by Accept, Error and TypeError.
func (r *Request) Bind(resp Responder) { r.responder = resp }

// Replied reports whether a response was already sent.
func (r *Request) Replied() bool { return r.replied }

// Accept replies successfully. data may be nil, a json.RawMessage or any
// value jsoncodec can marshal.
func (r *Request) Accept(data any) error {
	resp := &Response{ID: r.ID, Accepted: true}
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		resp.Data = v
	default:
		raw, err := jsoncodec.Marshal(v)
		if err != nil {
			return fmt.Errorf("accept request %d: %w", r.ID, err)
		}
		resp.Data = raw
	}
	return r.reply(resp)
}

// Error replies with a generic error.
func (r *Request) Error(reason string) error {
	return r.reply(&Response{ID: r.ID, Error: ErrorKindError, Reason: reason})
}

// TypeError replies with an argument type error.
func (r *Request) TypeError(reason string) error {
	return r.reply(&Response{ID: r.ID, Error: ErrorKindTypeError, Reason: reason})
}

func (r *Request) reply(resp *Response) error {
	if r.replied {
		return fmt.Errorf("reply to request %d: %w", r.ID, api.ErrAlreadyReplied)
	}
	if r.responder == nil {
		return fmt.Errorf("reply to request %d: no responder: %w", r.ID, api.ErrInvalidArgument)
	}
	r.replied = true
	return r.responder.SendResponse(resp)
}
