package gateway

import (
	"context"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/event"
	"github.com/ncatbot/ncatbot-go/eventbus"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Dispatcher turns raw gateway payloads into typed events bound to an
// API handle and publishes them on the bus. It is the concrete wiring
// for Client's Dispatch callback.
type Dispatcher struct {
	bus *eventbus.Bus
	api event.API
}

// NewDispatcher constructs a Dispatcher publishing onto bus, binding api
// to every parsed event.
func NewDispatcher(bus *eventbus.Bus, api event.API) *Dispatcher {
	return &Dispatcher{bus: bus, api: api}
}

// Dispatch parses payload and publishes it, matching Client's
// Options.Dispatch signature. Unknown event combinations are logged and
// dropped rather than propagated, per the parser's contract.
func (d *Dispatcher) Dispatch(ctx context.Context, payload map[string]any) {
	ev, err := event.Parse(payload, d.api)
	if err != nil {
		if errors.Is(err, event.ErrUnknownEvent) || errors.Is(err, event.ErrMissingPostType) {
			logger.GatewayWarnw("dropping unparseable gateway payload", logger.FieldError, err)
			return
		}
		logger.GatewayWarnw("failed to parse gateway payload", logger.FieldError, err)
		return
	}
	d.bus.Publish(ctx, ev)
}
