package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ilnaes/linepad/internal/common"
)

const writeWait = 10 * time.Second

// Conn is a websocket connection to a linepad server.
type Conn struct {
	ws *websocket.Conn

	mu sync.Mutex // one writer at a time
}

// Dial connects to a server's /ws endpoint. header may carry an
// Authorization bearer token.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Send(msg common.Message) error {
	env, err := common.Wrap(msg)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, buf)
}

// Run feeds every frame into m until the connection closes.
func (c *Conn) Run(m *Mirror) error {
	for {
		_, buf, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var env common.Envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			log.Printf("mirror %s: bad frame: %v", m.ID(), err)
			continue
		}
		if err := m.Handle(env); err != nil {
			log.Printf("mirror %s: %v", m.ID(), err)
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

// Connect dials url and returns a mirror kept up to date by a background
// reader. The reader stops when the connection is closed.
func Connect(ctx context.Context, url, clientID string, header http.Header) (*Mirror, *Conn, error) {
	c, err := Dial(ctx, url, header)
	if err != nil {
		return nil, nil, err
	}
	m := New(clientID, c)
	go func() {
		if err := c.Run(m); err != nil {
			log.Printf("mirror %s: %v", clientID, err)
		}
	}()
	return m, c, nil
}
