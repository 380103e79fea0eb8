package chat

import (
	"context"

	"github.com/pkg/errors"
)

// HandlerFunc processes one inbound event for one connection.
type HandlerFunc func(ctx context.Context, c *Conn, payload map[string]any) error

// Dispatcher routes inbound frames to their handlers by event name.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, f *Frame) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return errors.Errorf("no handler for event %q", f.Event)
	}
	return h(ctx, c, f.Data)
}
