package domain

type SDPKind string

const (
	SDPOffer  SDPKind = "offer"
	SDPAnswer SDPKind = "answer"
)

// SDPFragment carries one SDP string per peer the sender negotiates with.
type SDPFragment map[UserID]string

// SDPUpdateResults tells the sender which field it wrote for each peer.
type SDPUpdateResults map[UserID]SDPKind

// SDPView is one room as seen by one of its members.
type SDPView struct {
	Offer      string `json:"offer"`
	Answer     string `json:"answer"`
	OfferTime  int64  `json:"offerTime,omitempty"`
	AnswerTime int64  `json:"answerTime,omitempty"`
	IsSuperior bool   `json:"isSuperior"`
}

// SDPTable maps the other member of each room to its view.
type SDPTable map[UserID]SDPView
