package natsx

import (
	"context"

	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Message is a received NATS message.
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain composes mws around h; mws[0] is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a handler panic into an error and logs failures.
func Recover(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (err error) {
			defer safe.Recover(log, &err, zap.String("subject", msg.Subject))
			if err = next(ctx, msg); err != nil {
				log.Warn("handle message failed", zap.String("subject", msg.Subject), zap.Error(err))
			}
			return err
		}
	}
}
