package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/gorilla/websocket"
	ws "github.com/Andy963/ads-sub001/pkg/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB, generous enough for a base64 image batch
)

// queuedPrompt is one prompt frame waiting its turn under the
// single-writer discipline (spec.md §4.8, §5).
type queuedPrompt struct {
	frameID string
	payload ws.PromptPayload
}

// Client is one live WebSocket connection, bound to exactly one session id.
type Client struct {
	SessionID string

	gw   *Gateway
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	mu           sync.Mutex
	closed       bool
	reviewLocked bool

	promptQueue chan queuedPrompt
	busy        bool

	cancelMu     sync.Mutex
	cancelActive context.CancelFunc

	idleTimeout time.Duration
	lastActive  chan struct{}
}

// NewClient wraps an upgraded connection for sessionID.
func NewClient(sessionID string, conn *websocket.Conn, gw *Gateway, idleTimeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		SessionID:   sessionID,
		gw:          gw,
		conn:        conn,
		send:        make(chan []byte, 256),
		log:         log.WithFields(zap.String("session_id", sessionID)),
		promptQueue: make(chan queuedPrompt, 64),
		idleTimeout: idleTimeout,
		lastActive:  make(chan struct{}, 1),
	}
}

// Run drives the connection until it closes: read pump, write pump, prompt
// worker, and (if configured) the idle timer all run concurrently.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump()
	go c.promptWorker(ctx)
	if c.idleTimeout > 0 {
		go c.idleWatch(ctx)
	}
	c.readPump(ctx)
}

func (c *Client) touch() {
	select {
	case c.lastActive <- struct{}{}:
	default:
	}
}

func (c *Client) idleWatch(ctx context.Context) {
	timer := time.NewTimer(c.idleTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.lastActive:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.idleTimeout)
		case <-timer.C:
			c.closeWithCode(ws.CloseCodeIdleLock, "idle timeout")
			return
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.gw.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		var frame ws.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("", ws.ErrorCodeValidation, "invalid frame")
			continue
		}
		c.handleFrame(ctx, &frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame *ws.Frame) {
	if c.reviewLockActive() && frame.Type == ws.FrameTypeCommand {
		var payload ws.CommandPayload
		_ = frame.ParsePayload(&payload)
		if !reviewSafeCommands[payload.Text] {
			c.sendError(frame.ID, ws.ErrorCodeValidation, "review in progress: command blocked")
			return
		}
	}

	switch frame.Type {
	case ws.FrameTypePrompt:
		payload, err := frame.PromptText()
		if err != nil {
			c.sendError(frame.ID, ws.ErrorCodeValidation, "invalid prompt payload")
			return
		}
		if frame.ID != "" && c.gw.st != nil {
			_ = c.gw.sessMgr.SavePendingPrompt(ctx, "web_pending", c.SessionID, payload.Text)
			c.sendAck(frame.ID)
		}
		select {
		case c.promptQueue <- queuedPrompt{frameID: frame.ID, payload: payload}:
		default:
			c.sendError(frame.ID, ws.ErrorCodeValidation, "prompt queue full")
		}

	case ws.FrameTypeCommand:
		var payload ws.CommandPayload
		if err := frame.ParsePayload(&payload); err != nil {
			c.sendError(frame.ID, ws.ErrorCodeValidation, "invalid command payload")
			return
		}
		c.handleCommand(ctx, frame.ID, payload.Text)

	case ws.FrameTypeInterrupt:
		c.handleInterrupt(frame.ID)

	case ws.FrameTypeClearHistory:
		c.handleClearHistory(ctx, frame.ID)

	default:
		c.sendError(frame.ID, ws.ErrorCodeValidation, "unknown frame type: "+frame.Type)
	}
}

// promptWorker drains promptQueue one prompt at a time, enforcing the
// single-writer discipline: additional prompts received mid-turn wait here
// rather than interleaving with the active turn.
func (c *Client) promptWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qp := <-c.promptQueue:
			c.setBusy(true)
			c.runTurn(ctx, qp)
			c.setBusy(false)
			if qp.frameID != "" && c.gw.st != nil {
				_ = c.gw.sessMgr.ClearPendingPrompt(ctx, "web_pending", c.SessionID)
			}
		}
	}
}

func (c *Client) setBusy(v bool) {
	c.mu.Lock()
	c.busy = v
	c.mu.Unlock()
}

func (c *Client) runTurn(ctx context.Context, qp queuedPrompt) {
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancelMu.Lock()
	c.cancelActive = cancel
	c.cancelMu.Unlock()
	defer func() {
		c.cancelMu.Lock()
		c.cancelActive = nil
		c.cancelMu.Unlock()
		cancel()
	}()

	gs, err := c.gw.sessionFor(turnCtx, c.SessionID)
	if err != nil {
		c.sendError(qp.frameID, ws.ErrorCodeInternal, err.Error())
		return
	}

	var attachments []savedAttachment
	if len(qp.payload.Images) > 0 {
		attachments, err = persistImages(c.gw.cfg.TempDir, qp.payload.Images)
		if err != nil {
			c.sendError(qp.frameID, ws.ErrorCodeValidation, err.Error())
			return
		}
		defer cleanupImages(attachments)
	}

	input := adapter.Input{Text: qp.payload.Text}
	if len(attachments) > 0 {
		parts := []adapter.Part{{Text: qp.payload.Text}}
		for _, a := range attachments {
			parts = append(parts, adapter.Part{LocalImagePath: a.StoredPath})
		}
		input = adapter.Input{Parts: parts}
	}

	output, err := c.gw.runPrompt(turnCtx, gs, c.SessionID, input, c.forwardEvent)
	if err != nil {
		if turnCtx.Err() != nil {
			c.sendResult(qp.frameID, false, "interrupted, output may be partial")
			return
		}
		c.sendError(qp.frameID, ws.ErrorCodeAdapterFailed, err.Error())
		return
	}
	c.sendResult(qp.frameID, true, output)
}

// forwardEvent translates one orchestrator event into an outbound frame.
func (c *Client) forwardEvent(ev adapter.Event) {
	switch ev.Phase {
	case adapter.PhaseDelta:
		c.sendFrame(ws.FrameTypeDelta, ws.DeltaPayload{Text: ev.Text})
	case adapter.PhaseCommand:
		if ev.Command != nil {
			c.sendFrame(ws.FrameTypeCommand, ev.Command)
		}
	case adapter.PhasePlan:
		if ev.Plan != nil {
			c.sendFrame(ws.FrameTypePlan, ev.Plan)
		}
	case adapter.PhasePatch:
		if ev.Patch != nil {
			c.sendFrame(ws.FrameTypePatch, ev.Patch)
		}
	case adapter.PhaseError:
		if ev.Err != nil {
			c.sendFrame(ws.FrameTypeError, ws.ErrorPayload{Message: ev.Err.Error()})
		}
	}
}

func (c *Client) handleInterrupt(frameID string) {
	c.cancelMu.Lock()
	cancel := c.cancelActive
	c.cancelMu.Unlock()
	if cancel == nil {
		c.sendError(frameID, ws.ErrorCodeValidation, "nothing is running")
		return
	}
	cancel()
	c.sendResult(frameID, false, "interrupted")
}

func (c *Client) handleClearHistory(ctx context.Context, frameID string) {
	if c.gw.st != nil {
		if err := c.gw.st.ClearHistory(ctx, "web", c.SessionID); err != nil {
			c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
			return
		}
	}
	c.sendResult(frameID, true, "history cleared")
}

func (c *Client) reviewLockActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gw.reviewLocked
}

func (c *Client) sendFrame(frameType string, payload interface{}) {
	f, err := ws.NewFrame(frameType, payload)
	if err != nil {
		c.log.Error("marshal frame", zap.Error(err))
		return
	}
	c.enqueue(f)
}

func (c *Client) sendAck(frameID string) {
	f, _ := ws.NewFrameWithID(ws.FrameTypeAck, frameID, ws.AckPayload{MessageID: frameID})
	c.enqueue(f)
}

func (c *Client) sendResult(frameID string, ok bool, output string) {
	f, _ := ws.NewFrameWithID(ws.FrameTypeResult, frameID, ws.ResultPayload{OK: ok, Output: output})
	c.enqueue(f)
}

func (c *Client) sendError(frameID, code, message string) {
	f, _ := ws.NewFrameWithID(ws.FrameTypeError, frameID, ws.ErrorPayload{Code: code, Message: message})
	c.enqueue(f)
}

func (c *Client) enqueue(f *ws.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Error("marshal outbound frame", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping frame", zap.String("type", f.Type))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWithCode sends a native WebSocket close control frame with code,
// used for capacity/handover closes decided before the normal write pump
// would get to it.
func (c *Client) closeWithCode(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func (c *Client) stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}
