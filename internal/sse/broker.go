// Package sse implements a Server-Sent Events broker for library and progress updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/catread/internal/models"
)

// Event types emitted by the broker.
const (
	TypeBookAdded       = "book.added"
	TypeBookUpdated     = "book.updated"
	TypeBookDeleted     = "book.deleted"
	TypeProgressUpdated = "progress.updated"
	TypeProgressRemoved = "progress.removed"
	TypeCatalogUpdated  = "catalog.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// BookData is the payload of book.* events.
type BookData struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Author   string `json:"author"`
}

// ProgressData is the payload of progress.* events.
type ProgressData struct {
	UserID         int64 `json:"user_id"`
	BookID         int64 `json:"book_id"`
	ChapterIndex   int   `json:"chapter_index"`
	ParagraphIndex int   `json:"paragraph_index"`
}

type bookEventReq struct {
	kind string
	book models.Book
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the catalog throttle
// timestamp. Public methods talk to it through channels.
type Broker struct {
	catalogMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	bookEventCh   chan bookEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given catalog.updated throttle interval.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		bookEventCh:   make(chan bookEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCatalog time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.bookEventCh:
			broadcast(Event{Type: req.kind, Data: BookData{
				ID:       req.book.ID,
				Filename: req.book.Filename,
				Title:    req.book.Title,
				Author:   req.book.Author,
			}})

			now := time.Now()
			if now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
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

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBookEvent publishes a book.* event of the given type followed by a
// throttled catalog.updated.
func (b *Broker) PublishBookEvent(kind string, book models.Book) {
	if b.closed.Load() {
		return
	}
	select {
	case b.bookEventCh <- bookEventReq{kind: kind, book: book}:
	case <-b.stopped:
	}
}

// PublishProgress publishes a progress.updated event for rec.
func (b *Broker) PublishProgress(rec models.ProgressRecord) {
	b.Publish(Event{Type: TypeProgressUpdated, Data: ProgressData{
		UserID:         rec.UserID,
		BookID:         rec.BookID,
		ChapterIndex:   rec.ChapterIndex,
		ParagraphIndex: rec.ParagraphIndex,
	}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
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
