// Package models defines the core data structures for the booking bot.
//
// It includes conversation state, catalog items, bookings, and the message and
// receipt types shared between the transport, flow, store and API modules.
package models

import (
	"errors"
	"fmt"
)

// Validation errors for conversation state and booking drafts.
var (
	ErrEmptyIdentifier    = errors.New("identifier cannot be empty")
	ErrInvalidPhase       = errors.New("invalid conversation phase")
	ErrInvalidKind        = errors.New("invalid booking kind")
	ErrMissingCategory    = errors.New("selection has candidates but no category")
	ErrChosenWithoutList  = errors.New("chosen item set without a candidate list")
	ErrChosenNotCandidate = errors.New("chosen item is not in the candidate list")
	ErrSelectionNotEmpty  = errors.New("selection must be empty in this phase")
	ErrMissingCandidates  = errors.New("phase requires a candidate list")
	ErrMissingChosenItem  = errors.New("phase requires a chosen item")
	ErrPhaseKindMismatch  = errors.New("selection kind does not match phase")
	ErrEmptyBookingItem   = errors.New("booking item cannot be empty")
	ErrEmptyBookingDate   = errors.New("booking date cannot be empty")
)

// MessageStatus is the delivery state of an outbound reply.
type MessageStatus string

// Delivery states reported by the transports. WhatsApp reports all of them;
// Twilio sends are only ever marked sent.
const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// APIStatus is the "status" field of the HTTP envelope.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// Receipt reports a delivery state change for a reply sent to To.
// Time is a Unix timestamp in seconds.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response is one inbound chat message. From is the canonical phone number of
// the sender and MessageID the transport's id, empty when the transport has none.
type Response struct {
	MessageID string `json:"message_id,omitempty"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
}

// APIResponse is the JSON envelope of every HTTP API reply.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps result in an "ok" envelope.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error wraps a human readable message in an "error" envelope.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Errorf is Error with fmt formatting.
func Errorf(format string, args ...interface{}) APIResponse {
	return Error(fmt.Sprintf(format, args...))
}
