package domain

import "encoding/json"

// Payloads pushed to call members. Every payload names its call so that
// clients can route it to the right handle.

type RingPayload struct {
	Call   CallID   `json:"call"`
	Caller UserID   `json:"caller"`
	Chat   string   `json:"chat,omitempty"`
	Type   CallType `json:"type"`
}

type MembersPayload struct {
	Call    CallID  `json:"call"`
	Members Members `json:"members"`
}

type SDPsPayload struct {
	Call   CallID   `json:"call"`
	SDPs   SDPTable `json:"sdps"`
	Forced bool     `json:"forced,omitempty"`
}

type IceCandidatePayload struct {
	Call CallID `json:"call"`
	// Member is the sender of the candidate.
	Member    UserID          `json:"member"`
	Candidate json.RawMessage `json:"candidate"`
}

type EndPayload struct {
	Call CallID `json:"call"`
}
