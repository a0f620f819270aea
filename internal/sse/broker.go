// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Event types.
const (
	TypeViewUpdated   = "view.updated"
	TypeStatusUpdated = "status.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type publishReq struct {
	topic string
	event Event
}

type subscribeReq struct {
	topic string
	ch    chan []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// Every client listens on one topic: a session id, or "" for the global
// stream. Status events go to every client and the latest one is replayed
// to new subscribers.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + last status). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	statusCh      chan string
	dropCh        chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan publishReq, 256),
		statusCh:      make(chan string, 16),
		dropCh:        make(chan string),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastStatus string
	var statusMsg []byte

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; skip to avoid blocking broker loop.
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = req.topic
			if statusMsg != nil {
				send(req.ch, statusMsg)
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.publishCh:
			raw := encode(req.event)
			if raw == nil {
				continue
			}
			for ch, topic := range clients {
				if topic == req.topic {
					send(ch, raw)
				}
			}

		case text := <-b.statusCh:
			if text == lastStatus && statusMsg != nil {
				continue
			}
			lastStatus = text
			statusMsg = encode(Event{Type: TypeStatusUpdated, Data: map[string]string{"status": text}})
			for ch := range clients {
				send(ch, statusMsg)
			}

		case topic := <-b.dropCh:
			for ch, t := range clients {
				if t == topic {
					delete(clients, ch)
					close(ch)
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client on topic and returns its channel.
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{topic: topic, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all clients of topic.
func (b *Broker) Publish(topic string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- publishReq{topic: topic, event: event}:
	case <-b.stopped:
	}
}

// PublishStatus broadcasts a database status change to every client.
// Repeated texts are dropped.
func (b *Broker) PublishStatus(text string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.statusCh <- text:
	case <-b.stopped:
	}
}

// Drop disconnects every client of topic.
func (b *Broker) Drop(topic string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.dropCh <- topic:
	case <-b.stopped:
	}
}

// ServeHTTP is the global SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.ServeTopic(w, r, "")
}

// ServeTopic streams the events of topic until the client goes away or the
// topic is dropped.
func (b *Broker) ServeTopic(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
