package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Dispatcher routes client events through an explicit handler table.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	out      Emitter
	log      *zap.Logger
}

func NewDispatcher(out Emitter, log *zap.Logger) *Dispatcher {
	safe.MustNotNil(out, "emitter")
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{handlers: make(map[string]HandlerFunc), out: out, log: log.Named("dispatch")}
}

// Register binds event to h. Registering an event twice panics at startup.
func (d *Dispatcher) Register(event string, h HandlerFunc) {
	if _, dup := d.handlers[event]; dup {
		panic(fmt.Sprintf("chat: handler for %q registered twice", event))
	}
	d.handlers[event] = h
}

// Events lists registered event names.
func (d *Dispatcher) Events() []string {
	out := make([]string, 0, len(d.handlers))
	for e := range d.handlers {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Handle parses one raw frame and dispatches it. Failures are logged and
// nothing reaches the client.
func (d *Dispatcher) Handle(ctx context.Context, s *Session, raw []byte) error {
	in, err := ParseInbound(raw)
	if err != nil {
		d.report(s, "", err, 0)
		return err
	}
	return d.Dispatch(ctx, s, in)
}

// Dispatch runs the handler of in.Event and applies its outcome in order.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, in *Inbound) (err error) {
	start := time.Now()
	defer func() { d.report(s, in.Event, err, time.Since(start)) }()

	h, ok := d.handlers[in.Event]
	if !ok {
		return errs.ErrValidation.WrapMsg("unknown event", "event", in.Event)
	}
	out, err := d.run(ctx, h, s, in)
	if err != nil {
		return err
	}
	// writes are committed; a failed target does not stop the rest
	var failed []error
	for _, b := range out.Broadcasts {
		if eerr := d.out.Emit(b); eerr != nil {
			d.log.Error("broadcast failed", zap.String("event", b.Event), zap.Stringer("target", b.Target),
				zap.String("key", b.Key), zap.String("connId", s.ConnID), zap.Error(eerr))
			failed = append(failed, eerr)
		}
	}
	if in.AckID != "" {
		ack := ToConn(s.ConnID, EventAck, out.Reply)
		ack.AckID = in.AckID
		failed = append(failed, d.out.Emit(ack))
	}
	return errors.Join(failed...)
}

func (d *Dispatcher) run(ctx context.Context, h HandlerFunc, s *Session, in *Inbound) (out Outcome, err error) {
	defer safe.Recover(d.log, &err, zap.String("event", in.Event), zap.String("connId", s.ConnID))
	return h(ctx, s, in.Data)
}

func (d *Dispatcher) report(s *Session, event string, err error, took time.Duration) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("connId", s.ConnID),
		zap.String("userId", s.UserID),
		zap.Duration("took", took),
	}
	switch {
	case err == nil:
		d.log.Debug("handled", fields...)
	case errors.Is(err, errs.ErrValidation):
		d.log.Warn("event rejected", append(fields, zap.Error(err))...)
	case errors.Is(err, errs.ErrForbidden):
		d.log.Warn("event not authorized", append(fields, zap.Error(err))...)
	case errors.Is(err, errs.ErrNotFound):
		d.log.Info("event target missing", append(fields, zap.Error(err))...)
	default:
		d.log.Error("event failed", append(fields, zap.Error(err))...)
	}
}
