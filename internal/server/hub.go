package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/ilnaes/linepad/internal/common"
)

var ErrDuplicateClient = errors.New("client id already connected")

// hub tracks connected clients. It has its own lock so storage goroutines
// can reply without going through the document goroutine.
type hub struct {
	clients map[string]*Client
	pub     Publisher

	mu sync.RWMutex // protects clients
}

func newHub(pub Publisher) *hub {
	return &hub{
		clients: make(map[string]*Client),
		pub:     pub,
	}
}

func (h *hub) add(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; ok {
		return ErrDuplicateClient
	}
	h.clients[c.id] = c
	return nil
}

// remove reports whether c was still registered
func (h *hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.id] != c {
		return false
	}
	delete(h.clients, c.id)
	return true
}

func (h *hub) has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll hangs up on everyone; their sessions end through leave
func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}

func encode(msg common.Message) ([]byte, error) {
	env, err := common.Wrap(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// broadcast sends msg to every client, the originator included
func (h *hub) broadcast(msg common.Message) {
	buf, err := encode(msg)
	if err != nil {
		log.Printf("broadcast %s: %v", msg.Kind(), err)
		return
	}

	h.mu.RLock()
	for _, c := range h.clients {
		c.enqueue(buf)
	}
	h.mu.RUnlock()

	if h.pub != nil {
		if err := h.pub.Publish(buf); err != nil {
			log.Printf("publish %s: %v", msg.Kind(), err)
		}
	}
}

// send delivers msg to c only
func (h *hub) send(c *Client, msg common.Message) {
	buf, err := encode(msg)
	if err != nil {
		log.Printf("send %s to %s: %v", msg.Kind(), c.id, err)
		return
	}
	c.enqueue(buf)
}
