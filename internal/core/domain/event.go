package domain

import "time"

type CallEventType string

const (
	EventCallCreated  CallEventType = "call.created"
	EventMemberJoined CallEventType = "call.member_joined"
	EventMemberLeft   CallEventType = "call.member_left"
	EventCallEnded    CallEventType = "call.ended"
)

// CallEvent describes a lifecycle change of a call for consumers outside
// the signaling path (chat history, push notifications).
type CallEvent struct {
	Type     CallEventType `json:"type"`
	CallID   CallID        `json:"call_id"`
	Chat     string        `json:"chat,omitempty"`
	CallType CallType      `json:"call_type"`
	Member   UserID        `json:"member,omitempty"`
	Members  Members       `json:"members"`
	Reason   string        `json:"reason,omitempty"`
	At       time.Time     `json:"at"`
}
