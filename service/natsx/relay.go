package natsx

import (
	"context"
	"encoding/json"
	"time"

	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idemTTL = 2 * time.Minute

// Deliverer fans a delivery out to local connections; *chat.Router implements it.
type Deliverer interface {
	Deliver(d chat.Delivery) int
}

type publisher interface {
	Publish(subject string, data []byte, hdr map[string]string) error
}

type subscriber interface {
	Subscribe(subject, queue string, h Handler) error
}

// Relay connects the routers of all nodes: local broadcasts are published on
// one subject and every node delivers what its peers published.
type Relay struct {
	pub     publisher
	sub     subscriber
	subject string
	node    string
	local   Deliverer
	idem    IdemStore
	log     *zap.Logger
}

func NewRelay(c *Client, subject, nodeID string, local Deliverer, idem IdemStore, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{pub: c, sub: c, subject: subject, node: nodeID, local: local, idem: idem, log: log.Named("relay")}
}

// Forward publishes d stamped with this node as origin.
func (r *Relay) Forward(d chat.Delivery) error {
	d.Origin = r.node
	b, err := json.Marshal(d)
	if err != nil {
		return errs.ErrInternal.Wrap(err)
	}
	return r.pub.Publish(r.subject, b, map[string]string{headerMsgID: uuid.NewString()})
}

// Start subscribes without a queue group so every node sees every delivery.
func (r *Relay) Start() error {
	mws := []Middleware{Recover(r.log)}
	if r.idem != nil {
		mws = append(mws, Idempotent(r.idem, idemTTL))
	}
	return r.sub.Subscribe(r.subject, "", Chain(r.handle, mws...))
}

func (r *Relay) handle(_ context.Context, msg Message) error {
	var d chat.Delivery
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		return errs.ErrValidation.Wrap(err, "subject", msg.Subject)
	}
	if d.Origin == r.node {
		return nil
	}
	n := r.local.Deliver(d)
	r.log.Debug("relayed", zap.String("origin", d.Origin), zap.String("room", d.Room), zap.Int("delivered", n))
	return nil
}
