package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	redisclient "github.com/scanbridge/relay-server-go/internal/redis"
)

// Server-to-client event types.
const (
	EventSessionCreated = "session-created"
	EventSessionJoined  = "session-joined"
	EventNewScan        = "new-scan"
	EventError          = "error"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is one live observer registered in a session's broadcast group.
type Client struct {
	SessionID string
	Events    chan Event
	Done      chan struct{}
}

// group is one session's set of live clients plus the cancel for its Redis
// subscriber. The subscription lives exactly as long as the group: cancelled
// when the last client leaves, so a rejoin starts a single fresh subscriber
// instead of stacking one per join/leave cycle.
type group struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
}

// Hub owns the broadcast-group registry: session id -> set of live clients.
// Membership is rebuilt purely from connections and is never a source of
// truth for session existence. Events travel through Redis pub/sub so that
// every server instance fans out in publish order.
type Hub struct {
	redis  *redisclient.Client
	groups map[string]*group
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:  redisClient,
		groups: make(map[string]*group),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Join registers a new client in the session's broadcast group.
func (h *Hub) Join(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Events:    make(chan Event, 100),
		Done:      make(chan struct{}),
	}

	h.mu.Lock()
	g, ok := h.groups[sessionID]
	if !ok {
		subCtx, subCancel := context.WithCancel(h.ctx)
		g = &group{
			clients: make(map[*Client]bool),
			cancel:  subCancel,
		}
		h.groups[sessionID] = g
		go h.subscribeToRedis(subCtx, sessionID)
	}
	g.clients[client] = true
	clientCount := len(g.clients)
	h.mu.Unlock()

	log.Info().
		Str("sessionId", sessionID).
		Int("clientCount", clientCount).
		Msg("relay client joined")

	return client
}

// Leave drops the client from its group. The group's Redis subscription is
// torn down with the last client.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if g, ok := h.groups[client.SessionID]; ok {
		delete(g.clients, client)
		close(client.Done)

		if len(g.clients) == 0 {
			g.cancel()
			delete(h.groups, client.SessionID)
		}

		log.Info().
			Str("sessionId", client.SessionID).
			Int("clientCount", len(g.clients)).
			Msg("relay client left")
	}
}

func (h *Hub) Publish(ctx context.Context, sessionID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.ScanChannel(sessionID)
	return h.redis.Publish(ctx, channel, data).Err()
}

func (h *Hub) subscribeToRedis(ctx context.Context, sessionID string) {
	channel := redisclient.ScanChannel(sessionID)
	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("sessionId", sessionID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal relay event")
				continue
			}

			h.broadcast(sessionID, event)
		}
	}
}

// broadcast is non-blocking best-effort delivery; a slow observer loses
// events rather than stalling the group.
func (h *Hub) broadcast(sessionID string, event Event) {
	h.mu.RLock()
	var clients []*Client
	if g, ok := h.groups[sessionID]; ok {
		for client := range g.clients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("sessionId", sessionID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, g := range h.groups {
		for client := range g.clients {
			close(client.Done)
		}
	}
	h.groups = make(map[string]*group)
}

// ClientCount reports this instance's live clients for one session. Other
// relay instances keep their own counts; only broadcasts span instances.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g, ok := h.groups[sessionID]; ok {
		return len(g.clients)
	}
	return 0
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, g := range h.groups {
		total += len(g.clients)
	}
	return total
}
