package websocket

import (
	"context"
	"encoding/json"

	"github.com/rl-arena/arena-match-engine/internal/service"
	"go.uber.org/zap"
)

// Publisher forwards frames to the other engine instances
type Publisher interface {
	Publish(ctx context.Context, userID string, payload interface{}) error
}

type remoteFrame struct {
	userID string
	data   json.RawMessage
}

// Relay turns engine events into socket frames for the local hub and, when a
// publisher is set, for players connected to other instances.
type Relay struct {
	hub       *Hub
	publisher Publisher
	outbox    chan remoteFrame
	logger    *zap.Logger
}

func NewRelay(hub *Hub, publisher Publisher, logger *zap.Logger) *Relay {
	return &Relay{
		hub:       hub,
		publisher: publisher,
		outbox:    make(chan remoteFrame, 1024),
		logger:    logger,
	}
}

// HandleEvent is an EventBroker subscriber. It does not block.
func (r *Relay) HandleEvent(e service.Event) {
	data, err := json.Marshal(Message{Type: string(e.Type), Payload: e})
	if err != nil {
		r.logger.Error("Failed to encode event",
			zap.String("type", string(e.Type)),
			zap.Error(err))
		return
	}

	r.deliverLocal(e.UserID, data)

	if r.publisher == nil {
		return
	}
	select {
	case r.outbox <- remoteFrame{userID: e.UserID, data: data}:
	default:
		r.logger.Warn("Relay outbox full, event not forwarded",
			zap.String("userId", e.UserID),
			zap.String("type", string(e.Type)))
	}
}

// HandleRemote delivers a frame published by another instance
func (r *Relay) HandleRemote(userID string, payload []byte) {
	r.deliverLocal(userID, payload)
}

// deliverLocal skips players with no socket on this instance, which is most
// of the bus traffic once several instances run
func (r *Relay) deliverLocal(userID string, data []byte) {
	if !r.hub.Connected(userID) {
		return
	}
	r.hub.SendRaw(userID, data)
}

// Run publishes queued frames until ctx is done
func (r *Relay) Run(ctx context.Context) {
	if r.publisher == nil {
		return
	}
	for {
		select {
		case f := <-r.outbox:
			if err := r.publisher.Publish(ctx, f.userID, f.data); err != nil {
				r.logger.Warn("Failed to forward event",
					zap.String("userId", f.userID),
					zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
