package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type CallEventPublisher interface {
	Publish(ctx context.Context, ev domain.CallEvent) error
}
