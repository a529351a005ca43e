package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"course_messaging/internal/config"
	"course_messaging/internal/domain"
	"course_messaging/pkg/logger"

	"github.com/gorilla/websocket"
)

type tokenTable map[string]domain.Identity

func (t tokenTable) ValidateToken(_ context.Context, token string) (*domain.Identity, error) {
	identity, ok := t[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &identity, nil
}

type membership map[int64][]int64

func (m membership) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	for _, id := range m[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

var testTokens = tokenTable{
	"token-a": {UserID: 1, Role: domain.RoleStudent},
	"token-b": {UserID: 2, Role: domain.RoleInstructor},
	"token-c": {UserID: 3, Role: domain.RoleStudent},
}

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	cfg := config.RealtimeConfig{
		WriteWait:      time.Second,
		PongWait:       time.Minute,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}
	gw := NewGateway(testTokens, membership{10: {1, 2}}, nil, cfg, logger.Nop())
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := gw.Authenticate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.Serve(ws, *identity)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		srv.Close()
	})
	return gw, srv
}

func dial(t *testing.T, gw *Gateway, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	userID := testTokens[token].UserID
	before := len(gw.Hub().Connections())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	waitUntil(t, func() bool {
		return gw.Presence().Snapshot(userID).Online && len(gw.Hub().Connections()) > before
	})
	return ws
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func emit(t *testing.T, ws *websocket.Conn, event string, data interface{}) {
	t.Helper()
	if err := ws.WriteJSON(map[string]interface{}{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// next reads frames until one named event arrives and decodes its data into out.
func next(t *testing.T, ws *websocket.Conn, event string, out interface{}) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(frame.Data, out); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

func nextNonPresence(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame Frame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame.Event != EventPresenceUpdate {
			return frame
		}
	}
}

func join(t *testing.T, gw *Gateway, ws *websocket.Conn, conversationID int64, size int) {
	t.Helper()
	emit(t, ws, EventJoinConversation, conversationID)
	waitUntil(t, func() bool { return gw.Hub().GroupSize(conversationID) >= size })
}

func TestGatewayRefusesInvalidToken(t *testing.T) {
	gw, srv := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=forged"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
	if len(gw.Hub().Connections()) != 0 {
		t.Fatalf("refused handshake must not register a connection")
	}
}

func TestGatewayPresenceBroadcast(t *testing.T) {
	gw, srv := newTestGateway(t)
	a := dial(t, gw, srv, "token-a")
	b := dial(t, gw, srv, "token-b")

	var online domain.Presence
	next(t, a, EventPresenceUpdate, &online)
	for online.UserID != 2 {
		next(t, a, EventPresenceUpdate, &online)
	}
	if !online.Online {
		t.Fatalf("expected user 2 online: %+v", online)
	}

	_ = b.Close()

	var offline domain.Presence
	next(t, a, EventPresenceUpdate, &offline)
	if offline.UserID != 2 || offline.Online || offline.LastSeen == nil {
		t.Fatalf("expected user 2 offline with last_seen: %+v", offline)
	}
}

func TestGatewayTypingSkipsSender(t *testing.T) {
	gw, srv := newTestGateway(t)
	a := dial(t, gw, srv, "token-a")
	b := dial(t, gw, srv, "token-b")
	join(t, gw, a, 10, 1)
	join(t, gw, b, 10, 2)

	emit(t, a, EventTypingStart, map[string]interface{}{"conversation_id": 10})

	var seenByB typingPayload
	next(t, b, EventTypingUpdate, &seenByB)
	if seenByB.UserID != 1 || !seenByB.Typing || seenByB.ConversationID != 10 {
		t.Fatalf("unexpected typing update: %+v", seenByB)
	}

	emit(t, b, EventTypingStop, map[string]interface{}{"conversation_id": "10"})

	// Frames arrive in order, so an echo of A's own typing would come first.
	var seenByA typingPayload
	next(t, a, EventTypingUpdate, &seenByA)
	if seenByA.UserID != 2 || seenByA.Typing {
		t.Fatalf("sender received its own typing echo: %+v", seenByA)
	}
}

func TestGatewayReadReceiptRequiresParticipant(t *testing.T) {
	gw, srv := newTestGateway(t)
	a := dial(t, gw, srv, "token-a")
	b := dial(t, gw, srv, "token-b")
	c := dial(t, gw, srv, "token-c")
	join(t, gw, a, 10, 1)
	join(t, gw, b, 10, 2)
	join(t, gw, c, 10, 3)

	// C's typing frame is handled after its receipt, so B sees any relayed receipt first.
	emit(t, c, EventMessageRead, map[string]interface{}{"conversation_id": 10, "last_read_message_id": 99})
	emit(t, c, EventTypingStart, map[string]interface{}{"conversation_id": 10})

	if frame := nextNonPresence(t, b); frame.Event != EventTypingUpdate {
		t.Fatalf("expected non-participant receipt to be dropped, got %s", frame.Event)
	}

	emit(t, a, EventMessageRead, map[string]interface{}{"conversation_id": 10, "last_read_message_id": 5})

	var receipt readPayload
	next(t, b, EventReadUpdate, &receipt)
	if receipt.UserID != 1 || receipt.LastReadMessageID != 5 || receipt.ReadAt.IsZero() {
		t.Fatalf("expected the participant's receipt only, got %+v", receipt)
	}
}

func TestGatewayNotifications(t *testing.T) {
	gw, srv := newTestGateway(t)
	a := dial(t, gw, srv, "token-a")
	b := dial(t, gw, srv, "token-b")
	join(t, gw, b, 10, 1)

	created := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	gw.MessageCreated(&domain.Message{ID: 3, ConversationID: 10, SenderID: 1, SenderUsername: "a", Body: "Hello", CreatedAt: created})
	gw.ConversationUpdated(1, domain.ConversationUpdate{ID: 10, LastMessage: "Hello", LastTime: created})

	var msg domain.Message
	next(t, b, EventMessageNew, &msg)
	if msg.Body != "Hello" || msg.SenderID != 1 || !msg.CreatedAt.Equal(created) {
		t.Fatalf("unexpected message:new payload: %+v", msg)
	}

	// A never joined the group but still gets its inbox refresh.
	var update domain.ConversationUpdate
	next(t, a, EventConversationUpdate, &update)
	if update.ID != 10 || update.LastMessage != "Hello" {
		t.Fatalf("unexpected conversation:update payload: %+v", update)
	}
}

func TestGatewayShutdownRunsDisconnect(t *testing.T) {
	gw, srv := newTestGateway(t)
	dial(t, gw, srv, "token-a")
	dial(t, gw, srv, "token-a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	snapshot := gw.Presence().Snapshot(1)
	if snapshot.Online || snapshot.LastSeen == nil {
		t.Fatalf("expected user offline after shutdown: %+v", snapshot)
	}
	if len(gw.Hub().Connections()) != 0 {
		t.Fatalf("expected no tracked connections after shutdown")
	}
}

func TestGatewayRefusesConnectionsAfterShutdown(t *testing.T) {
	gw, srv := newTestGateway(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=token-a"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if len(gw.Hub().Connections()) != 0 {
		t.Fatalf("expected refused connection to stay untracked")
	}
	if gw.Presence().Snapshot(1).Online {
		t.Fatalf("expected refused connection not to mark the user online")
	}
}

func TestGatewayShutdownDuringConnects(t *testing.T) {
	gw, srv := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=token-b"

	dialed := make(chan *websocket.Conn, 20)
	for i := 0; i < 20; i++ {
		go func() {
			ws, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				dialed <- nil
				return
			}
			dialed <- ws
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown left connections running: %v", err)
	}

	for i := 0; i < 20; i++ {
		if ws := <-dialed; ws != nil {
			_ = ws.Close()
		}
	}
	waitUntil(t, func() bool { return len(gw.Hub().Connections()) == 0 })
	waitUntil(t, func() bool { return !gw.Presence().Snapshot(2).Online })
}
