package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"course_messaging/internal/config"
	"course_messaging/internal/domain"
	"course_messaging/pkg/logger"

	"github.com/gorilla/websocket"
)

const receiptCheckTimeout = 5 * time.Second

type TokenVerifier interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.Identity, error)
}

type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
}

// Gateway owns the realtime side: connection lifecycle, presence, inbound
// event dispatch and fan-out of messaging notifications.
type Gateway struct {
	hub           *Hub
	presence      PresenceRegistry
	verifier      TokenVerifier
	conversations ParticipantChecker
	cfg           config.RealtimeConfig
	log           logger.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewGateway(verifier TokenVerifier, conversations ParticipantChecker, presence PresenceRegistry, cfg config.RealtimeConfig, log logger.Logger) *Gateway {
	if presence == nil {
		presence = NewMemoryPresence()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		hub:           NewHub(),
		presence:      presence,
		verifier:      verifier,
		conversations: conversations,
		cfg:           cfg,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) Presence() PresenceRegistry {
	return g.presence
}

// Authenticate verifies a handshake credential before the transport is upgraded.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	identity, err := g.verifier.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Serve runs an upgraded connection until the transport closes. Disconnect
// handling runs exactly once whatever ends the connection.
func (g *Gateway) Serve(ws *websocket.Conn, identity domain.Identity) {
	conn := newConnection(ws, g.cfg)

	if identity.UserID <= 0 || !conn.authenticate(identity) {
		conn.Close(websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	// Attach under mu so Shutdown either sees the connection or refuses it.
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close(websocket.CloseGoingAway, "server shutdown")
		return
	}
	g.wg.Add(1)
	g.hub.Attach(conn)
	g.mu.Unlock()
	defer g.wg.Done()

	conn.start()
	defer g.disconnect(conn)

	g.log.Info("Realtime connection opened", "connection_id", conn.ID, "user_id", conn.UserID)
	g.broadcastPresence(g.presence.Connect(conn.UserID, conn.ID))

	g.readLoop(conn)
}

func (g *Gateway) readLoop(conn *Connection) {
	ws := conn.ws
	ws.SetReadLimit(g.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) && conn.State() != StateClosed {
				g.log.Debug("Realtime read ended", "connection_id", conn.ID, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := DecodeInbound(data)
		if err != nil {
			g.log.Debug("Ignoring inbound frame", "connection_id", conn.ID, "error", err)
			continue
		}
		g.dispatch(conn, event)
	}
}

func (g *Gateway) dispatch(conn *Connection, event InboundEvent) {
	switch ev := event.(type) {
	case JoinConversation:
		if ev.ConversationID > 0 {
			g.hub.Join(ev.ConversationID, conn)
		}
	case LeaveConversation:
		if ev.ConversationID > 0 {
			g.hub.Leave(ev.ConversationID, conn)
		}
	case TypingStart:
		g.relayTyping(conn, ev.ConversationID, true)
	case TypingStop:
		g.relayTyping(conn, ev.ConversationID, false)
	case ReadReceipt:
		g.relayRead(conn, ev)
	default:
		g.log.Warn("Unhandled inbound event", "connection_id", conn.ID, "event", event)
	}
}

func (g *Gateway) relayTyping(conn *Connection, conversationID int64, typing bool) {
	if conversationID <= 0 {
		return
	}
	g.broadcastGroup(conversationID, EventTypingUpdate, typingPayload{
		ConversationID: conversationID,
		UserID:         conn.UserID,
		Typing:         typing,
	}, conn)
}

func (g *Gateway) relayRead(conn *Connection, receipt ReadReceipt) {
	if receipt.ConversationID <= 0 || receipt.LastReadMessageID <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, receiptCheckTimeout)
	defer cancel()

	ok, err := g.conversations.IsParticipant(ctx, receipt.ConversationID, conn.UserID)
	if err != nil {
		g.log.Warn("Read receipt check failed", "conversation_id", receipt.ConversationID, "user_id", conn.UserID, "error", err)
		return
	}
	if !ok {
		g.log.Debug("Dropping read receipt from non-participant", "conversation_id", receipt.ConversationID, "user_id", conn.UserID)
		return
	}

	g.broadcastGroup(receipt.ConversationID, EventReadUpdate, readPayload{
		ConversationID:    receipt.ConversationID,
		UserID:            conn.UserID,
		LastReadMessageID: receipt.LastReadMessageID,
		ReadAt:            g.now(),
	}, conn)
}

func (g *Gateway) disconnect(conn *Connection) {
	conn.Close(websocket.CloseNormalClosure, "session closed")
	if !g.hub.Detach(conn) {
		return
	}
	g.log.Info("Realtime connection closed", "connection_id", conn.ID, "user_id", conn.UserID)
	g.broadcastPresence(g.presence.Disconnect(conn.UserID, conn.ID))
}

// MessageCreated fans a persisted message out to its conversation group.
func (g *Gateway) MessageCreated(msg *domain.Message) {
	g.broadcastGroup(msg.ConversationID, EventMessageNew, msg, nil)
}

// ConversationUpdated refreshes the inbox of one participant on every device.
func (g *Gateway) ConversationUpdated(userID int64, update domain.ConversationUpdate) {
	payload, err := encodeFrame(EventConversationUpdate, update)
	if err != nil {
		g.log.Error("Failed to encode realtime frame", "event", EventConversationUpdate, "error", err)
		return
	}
	g.hub.NotifyUser(userID, payload)
}

func (g *Gateway) broadcastPresence(presence domain.Presence) {
	payload, err := encodeFrame(EventPresenceUpdate, presence)
	if err != nil {
		g.log.Error("Failed to encode realtime frame", "event", EventPresenceUpdate, "error", err)
		return
	}
	g.hub.BroadcastAll(payload)
}

func (g *Gateway) broadcastGroup(conversationID int64, event string, data interface{}, exclude *Connection) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		g.log.Error("Failed to encode realtime frame", "event", event, "error", err)
		return
	}
	g.hub.BroadcastGroup(conversationID, payload, exclude)
}

// Shutdown closes every live connection and waits for their disconnect
// handling to finish or for ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	for _, conn := range g.hub.Connections() {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
