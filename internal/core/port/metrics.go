package port

import (
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type CallMetrics interface {
	CallStarted(t domain.CallType)
	CallEnded(t domain.CallType, lifetime time.Duration)
	MemberJoined()
	MemberLeft()
	SDPWritten(kind domain.SDPKind)
}
