package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Andy963/ads-sub001/internal/common/httpmw"
	ws "github.com/Andy963/ads-sub001/pkg/websocket"
)

const landingHTML = `<!DOCTYPE html>
<html><head><title>ads</title></head>
<body><h1>ads</h1><p>agent dispatch server is running.</p></body>
</html>`

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Router builds the gin engine exposing the WebSocket upgrade endpoint and
// the two REST routes named in spec.md §6 (GET /healthz, GET * landing).
func (gw *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmw.RequestLogger(gw.log, "ads-web"))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws", gw.handleUpgrade)
	r.NoRoute(func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(landingHTML)) })

	return r
}

// handleUpgrade negotiates the ads-token/ads-session sub-protocols,
// enforces auth and capacity, and hands the connection off to a Client
// (spec.md §4.8, §6).
func (gw *Gateway) handleUpgrade(c *gin.Context) {
	offered := gorillaws.Subprotocols(c.Request)
	auth := parseSubProtocols(offered)

	if err := checkToken(gw.cfg.Token, auth.Token); err != nil {
		gw.rejectUpgrade(c, err)
		return
	}

	sessionID := auth.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	upgrader.Subprotocols = offered
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		gw.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(sessionID, conn, gw, idleDuration(gw.cfg.IdleMinutes), gw.log)
	if err := gw.hub.Register(client); err != nil {
		gw.rejectAfterUpgrade(client, err)
		return
	}

	gw.sendWelcome(c.Request.Context(), client)
	client.Run(c.Request.Context())
}

func idleDuration(minutes int) time.Duration {
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// rejectUpgrade handles an auth failure discovered before the HTTP
// connection has been upgraded: complete the upgrade anyway (required to
// send a WebSocket close frame with a specific code) and immediately close.
func (gw *Gateway) rejectUpgrade(c *gin.Context, cause error) {
	offered := gorillaws.Subprotocols(c.Request)
	upgrader.Subprotocols = offered
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	code := ws.CloseCodeAuthRejected
	_ = conn.WriteControl(gorillaws.CloseMessage,
		gorillaws.FormatCloseMessage(code, cause.Error()), time.Now().Add(writeWait))
	_ = conn.Close()
}

func (gw *Gateway) rejectAfterUpgrade(client *Client, cause error) {
	client.closeWithCode(ws.CloseCodeAtCapacity, cause.Error())
	_ = client.conn.Close()
}

func (gw *Gateway) sendWelcome(ctx context.Context, client *Client) {
	snapshot := map[string]any{
		"sessionId": client.SessionID,
		"workspace": gw.cfg.Workspace,
	}
	client.sendFrame(ws.FrameTypeWelcome, snapshot)

	if gw.st != nil {
		entries, err := gw.st.GetHistory(ctx, "web", client.SessionID)
		if err == nil && len(entries) > 0 {
			client.sendFrame(ws.FrameTypeHistory, entries)
		}
		if pending, ok, err := gw.sessMgr.TakePendingPrompt(ctx, "web_pending", client.SessionID); err == nil && ok && pending != "" {
			select {
			case client.promptQueue <- queuedPrompt{payload: ws.PromptPayload{Text: pending}}:
			default:
			}
		}
	}
}
