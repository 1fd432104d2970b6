package domain

// Room is the negotiation state between exactly two call members. The
// superior joined the pair second and is the only side that creates
// offers; the junior answers. Roles never change once assigned.
type Room struct {
	Superior   UserID `json:"superior"`
	Junior     UserID `json:"junior"`
	Offer      string `json:"offer"`
	Answer     string `json:"answer"`
	OfferTime  int64  `json:"offerTime,omitempty"`
	AnswerTime int64  `json:"answerTime,omitempty"`
}

func (r Room) Involves(id UserID) bool {
	return r.Superior == id || r.Junior == id
}

// Other returns the member of the room that is not id.
func (r Room) Other(id UserID) UserID {
	if r.Superior == id {
		return r.Junior
	}
	return r.Superior
}

// KindFor returns the SDP field member writes in this room.
func (r Room) KindFor(member UserID) (SDPKind, bool) {
	switch member {
	case r.Superior:
		return SDPOffer, true
	case r.Junior:
		return SDPAnswer, true
	}
	return "", false
}

// Write stores sdp into the field owned by member, stamping it with a
// time strictly greater than the previous stamp of that field.
func (r *Room) Write(member UserID, sdp string, now int64) (SDPKind, bool) {
	kind, ok := r.KindFor(member)
	if !ok {
		return "", false
	}
	switch kind {
	case SDPOffer:
		r.Offer = sdp
		r.OfferTime = nextStamp(r.OfferTime, now)
	case SDPAnswer:
		r.Answer = sdp
		r.AnswerTime = nextStamp(r.AnswerTime, now)
	}
	return kind, true
}

func nextStamp(prev, now int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}
