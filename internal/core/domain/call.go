package domain

import "time"

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// ParseCallType maps anything that is not explicitly a video call to voice.
func ParseCallType(s string) CallType {
	if CallType(s) == CallTypeVideo {
		return CallTypeVideo
	}
	return CallTypeVoice
}

// Members tracks who was invited to a call and how they responded.
// Invited is fixed at creation. Acknowledged and Rejected only grow.
type Members struct {
	Invited      []UserID `json:"invited"`
	Acknowledged []UserID `json:"acknowledged"`
	Rejected     []UserID `json:"rejected"`
}

// RealMembers are the members that joined and have not left since.
func (m Members) RealMembers() []UserID {
	return WithoutUsers(m.Acknowledged, m.Rejected...)
}

// Active are the invited members that have not left; they still care
// about the state of the call.
func (m Members) Active() []UserID {
	return WithoutUsers(m.Invited, m.Rejected...)
}

// Ringing are invited members that neither joined nor left.
func (m Members) Ringing() []UserID {
	return WithoutUsers(m.Active(), m.Acknowledged...)
}

func (m Members) Clone() Members {
	return Members{
		Invited:      append([]UserID{}, m.Invited...),
		Acknowledged: append([]UserID{}, m.Acknowledged...),
		Rejected:     append([]UserID{}, m.Rejected...),
	}
}

type CallTime struct {
	Created int64 `json:"created"`
}

type Call struct {
	ID      CallID   `json:"id"`
	Chat    string   `json:"chat,omitempty"`
	Caller  UserID   `json:"caller"`
	Type    CallType `json:"type"`
	Members Members  `json:"members"`
	Rooms   []Room   `json:"rooms"`
	Time    CallTime `json:"time"`
	// Revision counts the stored mutations of the call.
	Revision uint64 `json:"revision"`
}

func NewCall(caller UserID, chat string, t CallType, invited []UserID, now time.Time) *Call {
	return &Call{
		ID:     NewCallID(),
		Chat:   chat,
		Caller: caller,
		Type:   t,
		Members: Members{
			Invited:      UnionUsers(invited, caller),
			Acknowledged: []UserID{},
			Rejected:     []UserID{},
		},
		Rooms: []Room{},
		Time:  CallTime{Created: now.UnixMilli()},
	}
}

func (c *Call) Clone() *Call {
	out := *c
	out.Members = c.Members.Clone()
	out.Rooms = append([]Room{}, c.Rooms...)
	return &out
}

// Paired reports whether a and b already share a room.
func (c *Call) Paired(a, b UserID) bool {
	for _, r := range c.Rooms {
		if r.Involves(a) && r.Involves(b) {
			return true
		}
	}
	return false
}

// SDPTableFor builds the view of every room involving member, keyed by
// the other member of the room.
func (c *Call) SDPTableFor(member UserID) SDPTable {
	table := SDPTable{}
	for _, r := range c.Rooms {
		if !r.Involves(member) {
			continue
		}
		table[r.Other(member)] = SDPView{
			Offer:      r.Offer,
			Answer:     r.Answer,
			OfferTime:  r.OfferTime,
			AnswerTime: r.AnswerTime,
			IsSuperior: r.Superior == member,
		}
	}
	return table
}

type Profile struct {
	ID    UserID `json:"id"`
	Label string `json:"label,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// CallInfo is a call snapshot enriched with the profiles of its members.
type CallInfo struct {
	Call
	Profiles []Profile `json:"profiles"`
}
