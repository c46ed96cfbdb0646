package gateway

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/db"
	"github.com/Andy963/ads-sub001/internal/session"
	"github.com/Andy963/ads-sub001/internal/store"
	"github.com/Andy963/ads-sub001/internal/tools"
	gorillaws "github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	ws "github.com/Andy963/ads-sub001/pkg/websocket"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	writer, err := db.OpenSQLite(dbPath)
	require.NoError(t, err)
	reader, err := db.OpenSQLiteReader(dbPath)
	require.NoError(t, err)
	pool := db.NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3"))
	t.Cleanup(func() { _ = pool.Close() })

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx, pool.Writer(), "sqlite3"))
	return store.New(pool, "sqlite3")
}

func newTestGateway(t *testing.T, cfg Config, mock *adapter.MockAdapter) *Gateway {
	t.Helper()
	st := newTestStore(t)
	sessMgr := session.NewManager(func() []adapter.Adapter { return []adapter.Adapter{mock} }, st, logger.Default())
	policy := tools.Policy{Workspace: cfg.Workspace}
	return New(cfg, st, sessMgr, policy, nil, logger.Default())
}

func dialWithSubprotocols(t *testing.T, url string, protocols []string) *gorillaws.Conn {
	t.Helper()
	dialer := gorillaws.Dialer{Subprotocols: protocols, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestGatewayPromptRoundTripStreamsDeltaAndResult(t *testing.T) {
	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseDelta, Text: "thinking..."},
		{Phase: adapter.PhaseDone, Output: "hello from agent"},
	})
	gw := newTestGateway(t, Config{MaxClients: 1, Workspace: t.TempDir(), TempDir: t.TempDir()}, mock)

	srv := httptest.NewServer(gw.Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn := dialWithSubprotocols(t, wsURL, []string{"ads-session:test-session"})
	defer conn.Close()

	// welcome frame first
	var welcome ws.Frame
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, ws.FrameTypeWelcome, welcome.Type)

	prompt, err := ws.NewFrameWithID(ws.FrameTypePrompt, "m1", "hello")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(prompt))

	var ack ws.Frame
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, ws.FrameTypeAck, ack.Type)

	var sawDelta, sawResult bool
	var resultPayload ws.ResultPayload
	for i := 0; i < 5; i++ {
		var frame ws.Frame
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		switch frame.Type {
		case ws.FrameTypeDelta:
			sawDelta = true
		case ws.FrameTypeResult:
			sawResult = true
			require.NoError(t, frame.ParsePayload(&resultPayload))
		}
		if sawResult {
			break
		}
	}

	require.True(t, sawDelta, "expected at least one delta frame")
	require.True(t, sawResult, "expected a result frame")
	require.True(t, resultPayload.OK)
	require.Equal(t, "hello from agent", resultPayload.Output)
}

func TestGatewayRejectsMismatchedToken(t *testing.T) {
	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseDone, Output: "ok"},
	})
	gw := newTestGateway(t, Config{Token: "secret", MaxClients: 1, Workspace: t.TempDir(), TempDir: t.TempDir()}, mock)

	srv := httptest.NewServer(gw.Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn := dialWithSubprotocols(t, wsURL, []string{"ads-token:wrong-token", "ads-session:s1"})
	defer conn.Close()

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*gorillaws.CloseError)
	require.True(t, ok, "expected a close error, got %T: %v", err, err)
	require.Equal(t, ws.CloseCodeAuthRejected, closeErr.Code)
}

func TestGatewaySecondConnectionEvictsFirstForSameSession(t *testing.T) {
	mock := adapter.NewMockAdapter("claude", "Claude", []adapter.ScriptedEvent{
		{Phase: adapter.PhaseDone, Output: "ok"},
	})
	gw := newTestGateway(t, Config{MaxClients: 2, Workspace: t.TempDir(), TempDir: t.TempDir()}, mock)

	srv := httptest.NewServer(gw.Router())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	first := dialWithSubprotocols(t, wsURL, []string{"ads-session:shared"})
	defer first.Close()
	var w1 ws.Frame
	require.NoError(t, first.ReadJSON(&w1))

	second := dialWithSubprotocols(t, wsURL, []string{"ads-session:shared"})
	defer second.Close()
	var w2 ws.Frame
	require.NoError(t, second.ReadJSON(&w2))

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err, "expected the first connection to be evicted")
}
