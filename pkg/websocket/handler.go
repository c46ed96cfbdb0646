package websocket

import "context"

// Handler processes one inbound frame and optionally returns a reply frame.
type Handler interface {
	Handle(ctx context.Context, frame *Frame) (*Frame, error)
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, frame *Frame) (*Frame, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, frame *Frame) (*Frame, error) {
	return f(ctx, frame)
}

// Dispatcher routes inbound frames to a handler registered for their type.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher creates an empty frame dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register registers a handler for a frame type.
func (d *Dispatcher) Register(frameType string, handler Handler) {
	d.handlers[frameType] = handler
}

// RegisterFunc registers a handler function for a frame type.
func (d *Dispatcher) RegisterFunc(frameType string, handler HandlerFunc) {
	d.handlers[frameType] = handler
}

// Dispatch routes a frame to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, frame *Frame) (*Frame, error) {
	handler, ok := d.handlers[frame.Type]
	if !ok {
		return NewErrorFrame(ErrorCodeUnknownAction, "unknown frame type: "+frame.Type)
	}
	return handler.Handle(ctx, frame)
}

// HasHandler returns true if a handler is registered for the frame type.
func (d *Dispatcher) HasHandler(frameType string) bool {
	_, ok := d.handlers[frameType]
	return ok
}
