// Package sse streams cleaner activity to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/notionclean/internal/models"
)

// Event types sent to clients besides the per-file "file.*" events.
const (
	TypeRunFinished = "run.finished"
	TypeTreeUpdated = "tree.updated"
)

const (
	clientBuffer = 64
	keepAlive    = 15 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type fileEvent struct {
	kind string
	rec  models.FileRecord
}

// subscriber is one connected client. A nil accept set receives every type.
type subscriber struct {
	ch     chan []byte
	accept map[string]bool
}

func (s *subscriber) wants(typ string) bool {
	return s.accept == nil || s.accept[typ]
}

// hub is the state owned by the broker loop.
type hub struct {
	clients  map[chan []byte]*subscriber
	seq      uint64
	pending  int
	lastTree time.Time
}

// send frames ev with the next event id and hands it to every interested
// client. Clients whose buffer is full miss the event.
func (h *hub) send(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, ev.Type, payload))
	for ch, s := range h.clients {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case ch <- frame:
		default:
		}
	}
}

// flushTree reports how many files changed since the last tree.updated.
func (h *hub) flushTree(now time.Time) {
	h.send(Event{Type: TypeTreeUpdated, Data: map[string]int{"changed": h.pending}})
	h.pending = 0
	h.lastTree = now
}

// Broker fans cleaner events out to SSE clients.
//
// A single loop goroutine owns the hub; the public methods talk to it over
// channels. File events are forwarded as they come and summarised by a
// tree.updated event at most once per throttle interval. Changes that land
// inside the interval are reported by a trailing tree.updated when it ends.
type Broker struct {
	treeEvery time.Duration

	subs   chan *subscriber
	unsubs chan chan []byte
	events chan Event
	files  chan fileEvent
	counts chan chan int

	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker that sends tree.updated at most once per
// treeThrottle (two seconds when zero or negative).
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}
	b := &Broker{
		treeEvery: treeThrottle,
		subs:      make(chan *subscriber),
		unsubs:    make(chan chan []byte),
		events:    make(chan Event, 256),
		files:     make(chan fileEvent, 256),
		counts:    make(chan chan int),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	h := &hub{clients: make(map[chan []byte]*subscriber)}
	var trailing *time.Timer
	var trailingC <-chan time.Time

	for {
		select {
		case <-b.stop:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range h.clients {
				close(ch)
			}
			return

		case s := <-b.subs:
			h.clients[s.ch] = s

		case ch := <-b.unsubs:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			h.send(ev)

		case fe := <-b.files:
			h.send(Event{Type: fe.kind, Data: fe.rec})
			h.pending++
			now := time.Now()
			wait := b.treeEvery - now.Sub(h.lastTree)
			if wait <= 0 {
				h.flushTree(now)
			} else if trailingC == nil {
				trailing = time.NewTimer(wait)
				trailingC = trailing.C
			}

		case now := <-trailingC:
			trailingC = nil
			if h.pending > 0 {
				h.flushTree(now)
			}

		case resp := <-b.counts:
			resp <- len(h.clients)
		}
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.done
}

// Subscribe registers a client for the given event types, or for all of
// them when none are named. The returned channel is closed on Unsubscribe
// or Close.
func (b *Broker) Subscribe(types ...string) chan []byte {
	s := &subscriber{ch: make(chan []byte, clientBuffer)}
	if len(types) > 0 {
		s.accept = make(map[string]bool, len(types))
		for _, t := range types {
			s.accept[t] = true
		}
	}
	if b.closed.Load() {
		close(s.ch)
		return s.ch
	}
	select {
	case b.subs <- s:
	case <-b.done:
		close(s.ch)
	}
	return s.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubs <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends an event to all interested clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// PublishFileEvent forwards the outcome of one file under the given event
// type, for example "file.cleaned", and counts it towards tree.updated.
func (b *Broker) PublishFileEvent(kind string, rec models.FileRecord) {
	if b.closed.Load() {
		return
	}
	select {
	case b.files <- fileEvent{kind: kind, rec: rec}:
	case <-b.done:
	}
}

// PublishRunFinished publishes the summary of a completed run.
func (b *Broker) PublishRunFinished(summary interface{}) {
	b.Publish(Event{Type: TypeRunFinished, Data: summary})
}

// ServeHTTP streams events to one client (GET /api/events). The optional
// "types" query parameter is a comma-separated list of event types to
// receive. Idle streams get a comment line every keepAlive so proxies keep
// the connection open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(parseTypes(r.URL.Query().Get("types"))...)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

func parseTypes(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
