package messenger

import (
	"context"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// Forward hands every committed envelope to publisher. It listens to the
// per-invocation batch rather than to each event type so envelopes reach the
// broker in ledger order. Publishing happens after the ledger committed, so a
// failure is logged and never affects the invocation.
func Forward(manager *event.Manager, publisher Publisher) {
	manager.AddEventListener(event.InvocationCommittedEvent, func(msg interface{}) {
		envelopes, ok := msg.([]event.Envelope)
		if !ok {
			return
		}

		for _, envelope := range envelopes {
			publish(publisher, envelope)
		}
	})
}

func publish(publisher Publisher, envelope event.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := publisher.Publish(ctx, envelope); err != nil {
		zap.L().With(
			zap.Error(err),
			zap.String("id", envelope.Id),
			zap.String("type", string(envelope.Type)),
		).Error("Messenger: Failed to forward event")
	}
}
