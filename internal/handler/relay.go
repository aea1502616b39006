package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scanbridge/relay-server-go/internal/config"
	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/middleware"
	"github.com/scanbridge/relay-server-go/internal/relay"
	"github.com/scanbridge/relay-server-go/internal/service"
)

// Client-to-server event types.
const (
	eventCreateSession = "create-session"
	eventJoinSession   = "join-session"
	eventScanData      = "scan-data"
)

type clientMessage struct {
	Type        string  `json:"type"`
	RequestedID *string `json:"requestedId,omitempty"`
	Name        *string `json:"name,omitempty"`
	SessionID   string  `json:"sessionId,omitempty"`
	Code        string  `json:"code,omitempty"`
	Timestamp   *int64  `json:"timestamp,omitempty"` // producer clock, epoch millis
}

type RelayHandler struct {
	hub            *relay.Hub
	sessionService *service.SessionService
	scanService    *service.ScanService
	policyService  *service.AccessPolicyService
	upgrader       websocket.Upgrader
}

func NewRelayHandler(
	hub *relay.Hub,
	sessionService *service.SessionService,
	scanService *service.ScanService,
	policyService *service.AccessPolicyService,
	allowedOrigin string,
) *RelayHandler {
	return &RelayHandler{
		hub:            hub,
		sessionService: sessionService,
		scanService:    scanService,
		policyService:  policyService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// relayConn wraps one websocket with a single-writer outbound queue. Direct
// replies and hub broadcasts both travel through send, keeping gorilla's
// one-writer rule intact.
type relayConn struct {
	ws     *websocket.Conn
	send   chan relay.Event
	mu     sync.Mutex
	closed bool
}

func (c *relayConn) queue(event relay.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- event:
	default:
		log.Warn().Msg("relay connection send buffer full, dropping event")
	}
}

func (c *relayConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// GET /v1/relay — websocket upgrade.
func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	actor := middleware.GetActor(r.Context())
	conn := &relayConn{
		ws:   ws,
		send: make(chan relay.Event, config.RelaySendBuffer),
	}

	go h.writePump(conn)
	h.readLoop(conn, actor)
}

// readLoop drives the connection state machine: unjoined -> joined -> closed.
// Protocol errors go back to this connection only and never close it; only a
// transport error ends the loop.
func (h *RelayHandler) readLoop(conn *relayConn, actor *string) {
	defer conn.close()

	var client *relay.Client
	defer func() {
		if client != nil {
			h.hub.Leave(client)
		}
	}()

	conn.ws.SetReadLimit(config.RelayMaxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(config.RelayPongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(config.RelayPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("relay connection closed unexpectedly")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(conn, apperrors.ValidationError("Invalid JSON message"))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.ServerRequestTimeout)

		switch msg.Type {
		case eventCreateSession:
			client = h.handleCreate(ctx, conn, client, actor, msg)
		case eventJoinSession:
			client = h.handleJoin(ctx, conn, client, msg)
		case eventScanData:
			h.handleScan(ctx, conn, msg)
		default:
			h.sendError(conn, apperrors.InvalidInput("type", "unknown event"))
		}

		cancel()
	}
}

func (h *RelayHandler) handleCreate(ctx context.Context, conn *relayConn, client *relay.Client, actor *string, msg clientMessage) *relay.Client {
	if client != nil {
		h.sendError(conn, apperrors.Conflict("Connection has already joined a session"))
		return client
	}

	session, err := h.sessionService.Create(ctx, actor, service.CreateSessionParams{
		RequestedID: msg.RequestedID,
		Name:        msg.Name,
	})
	if err != nil {
		h.sendError(conn, err)
		return nil
	}

	client = h.hub.Join(session.ID)
	h.sendEvent(conn, relay.EventSessionCreated, map[string]any{
		"sessionId": session.ID,
	})
	go forwardEvents(client, conn, 0)
	return client
}

func (h *RelayHandler) handleJoin(ctx context.Context, conn *relayConn, client *relay.Client, msg clientMessage) *relay.Client {
	if client != nil {
		h.sendError(conn, apperrors.Conflict("Connection has already joined a session"))
		return client
	}
	if msg.SessionID == "" {
		h.sendError(conn, apperrors.MissingRequired("sessionId"))
		return nil
	}

	// Deleted-but-not-purged sessions remain joinable so the trash view can
	// replay history; Get only fails once the row is gone.
	if _, err := h.sessionService.Get(ctx, msg.SessionID); err != nil {
		h.sendError(conn, err)
		return nil
	}

	policy, err := h.policyService.Get(ctx, msg.SessionID)
	if err != nil {
		h.sendError(conn, err)
		return nil
	}
	// Cap is enforced per relay instance; a shared deployment-wide count
	// would need a Redis counter.
	if policy.MaxParticipants != nil && h.hub.ClientCount(msg.SessionID) >= *policy.MaxParticipants {
		h.sendError(conn, apperrors.Conflict("Session is full"))
		return nil
	}

	// Join before snapshotting so a scan landing in between is buffered on
	// the client instead of lost; anything already in the snapshot is
	// filtered out of the stream by id.
	client = h.hub.Join(msg.SessionID)
	snapshot, err := h.scanService.ListBySession(ctx, msg.SessionID)
	if err != nil {
		h.hub.Leave(client)
		h.sendError(conn, err)
		return nil
	}

	var lastID int64
	if len(snapshot) > 0 {
		lastID = snapshot[len(snapshot)-1].ID
	}

	h.sendEvent(conn, relay.EventSessionJoined, map[string]any{
		"sessionId":    msg.SessionID,
		"existingData": snapshot,
	})
	go forwardEvents(client, conn, lastID)
	return client
}

func (h *RelayHandler) handleScan(ctx context.Context, conn *relayConn, msg clientMessage) {
	if msg.Timestamp == nil {
		h.sendError(conn, apperrors.MissingRequired("timestamp"))
		return
	}

	// The new-scan echo reaches the sender through its broadcast group; the
	// append itself gets no direct reply.
	_, err := h.scanService.Append(ctx, service.AppendScanParams{
		SessionID:     msg.SessionID,
		Code:          msg.Code,
		ScanTimestamp: time.UnixMilli(*msg.Timestamp),
	})
	if err != nil {
		h.sendError(conn, err)
	}
}

func (h *RelayHandler) sendEvent(conn *relayConn, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("failed to marshal relay event")
		return
	}
	conn.queue(relay.Event{Type: eventType, Data: payload})
}

func (h *RelayHandler) sendError(conn *relayConn, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}
	payload, _ := json.Marshal(map[string]string{
		"code":    string(appErr.Code),
		"message": appErr.Message,
	})
	conn.queue(relay.Event{Type: relay.EventError, Data: payload})
}

// forwardEvents moves hub broadcasts onto the connection's outbound queue
// until the client leaves its group. Scans with ids at or below afterID were
// already delivered in the join snapshot; record ids are monotonic, so the
// filter only ever suppresses that overlap.
func forwardEvents(client *relay.Client, conn *relayConn, afterID int64) {
	for {
		select {
		case <-client.Done:
			return
		case event := <-client.Events:
			if afterID > 0 && event.Type == relay.EventNewScan {
				var record struct {
					ID int64 `json:"id"`
				}
				if err := json.Unmarshal(event.Data, &record); err == nil && record.ID <= afterID {
					continue
				}
			}
			conn.queue(event)
		}
	}
}

// writePump owns all websocket writes: queued events plus keepalive pings.
func (h *RelayHandler) writePump(conn *relayConn) {
	ticker := time.NewTicker(config.RelayPingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case event, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(config.RelayWriteWait))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(config.RelayWriteWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
