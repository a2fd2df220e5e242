package ws

import (
	"log/slog"
	"sync"
)

const (
	// broadcastBuffer bounds events waiting for the hub loop.
	broadcastBuffer = 256
	// subscriberBuffer bounds events queued for one connection. A subscriber
	// that falls this far behind is disconnected.
	subscriberBuffer = 32
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans task events out to the live connections of their owner. Every
// subscriber is written to from its own goroutine, so a slow connection only
// ever delays itself.
type Hub struct {
	logger    *slog.Logger
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopOnce  sync.Once
}

type message struct {
	ownerID string
	payload []byte
}

type subscription struct {
	ownerID string
	client  Subscriber
}

type countRequest struct {
	ownerID string
	reply   chan int
}

// peer is the hub-side outbound queue of one subscriber.
type peer struct {
	client Subscriber
	send   chan []byte
}

// NewHub creates an initialized Hub and starts its event loop.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		clients:   make(map[string]map[Subscriber]*peer),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, broadcastBuffer),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for ownerID, peers := range h.clients {
				for _, p := range peers {
					h.drop(p)
				}
				delete(h.clients, ownerID)
			}
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.ownerID]; !ok {
				h.clients[sub.ownerID] = make(map[Subscriber]*peer)
			}
			if _, exists := h.clients[sub.ownerID][sub.client]; exists {
				continue
			}
			p := &peer{client: sub.client, send: make(chan []byte, subscriberBuffer)}
			h.clients[sub.ownerID][sub.client] = p
			go h.writeLoop(sub.ownerID, p)
		case sub := <-h.unreg:
			h.remove(sub.ownerID, sub.client)
		case req := <-h.count:
			req.reply <- len(h.clients[req.ownerID])
		case msg := <-h.broadcast:
			for c, p := range h.clients[msg.ownerID] {
				select {
				case p.send <- msg.payload:
				default:
					h.logger.Warn("task stream subscriber too slow, disconnecting", "user_id", msg.ownerID)
					h.remove(msg.ownerID, c)
				}
			}
		}
	}
}

// remove must only be called from run.
func (h *Hub) remove(ownerID string, client Subscriber) {
	peers, ok := h.clients[ownerID]
	if !ok {
		return
	}
	if p, ok := peers[client]; ok {
		delete(peers, client)
		h.drop(p)
	}
	if len(peers) == 0 {
		delete(h.clients, ownerID)
	}
}

func (h *Hub) drop(p *peer) {
	close(p.send)
	p.client.Close()
}

// writeLoop delivers queued payloads to one subscriber until its queue is
// closed or a write fails.
func (h *Hub) writeLoop(ownerID string, p *peer) {
	for payload := range p.send {
		if err := p.client.Send(payload); err != nil {
			p.client.Close()
			h.Unregister(ownerID, p.client)
			for range p.send {
			}
			return
		}
	}
}

// Register adds a client to an owner's stream.
func (h *Hub) Register(ownerID string, client Subscriber) {
	select {
	case h.register <- subscription{ownerID: ownerID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(ownerID string, client Subscriber) {
	select {
	case h.unreg <- subscription{ownerID: ownerID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every connection of the owner. It never blocks;
// when the hub is saturated the event is dropped.
func (h *Hub) Broadcast(ownerID string, payload []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- message{ownerID: ownerID, payload: payload}:
	default:
		h.logger.Warn("task stream backlog full, dropping event", "user_id", ownerID)
	}
}

// Subscribers reports how many connections the owner currently has.
func (h *Hub) Subscribers(ownerID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{ownerID: ownerID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Stop closes every connection and terminates the event loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
