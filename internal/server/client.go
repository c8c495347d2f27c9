package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ilnaes/linepad/internal/common"
)

const (
	writeWait = 10 * time.Second
)

// Client is one connected editor session.
type Client struct {
	s    *Server
	id   string
	conn *websocket.Conn

	send chan []byte   // frames waiting for the write pump
	done chan struct{} // closed once the session is over
	once sync.Once
}

func (s *Server) NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		s:    s,
		id:   id,
		conn: conn,
		send: make(chan []byte, s.sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// enqueue never blocks; a client too slow to keep up is disconnected,
// which releases its lock like any other departure
func (c *Client) enqueue(buf []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- buf:
	default:
		log.Printf("client %s: send queue full, disconnecting", c.id)
		c.close()
	}
}

// write queues a message for this client only
func (c *Client) write(msg common.Message) {
	c.s.hub.send(c, msg)
}

func (c *Client) writePump() {
	for {
		select {
		case buf := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// reads requests until the connection drops
func (c *Client) interact() {
	defer c.s.leave(c)

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("client %s: %v", c.id, err)
			}
			return
		}

		var env common.Envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			log.Printf("client %s: bad frame: %v", c.id, err)
			c.write(&common.ErrorMessage{Message: "malformed message"})
			continue
		}
		if !env.Type.IsRequest() {
			log.Printf("client %s: unexpected %s", c.id, env.Type)
			c.write(&common.ErrorMessage{Message: "not a request: " + env.Type.String()})
			continue
		}
		msg, err := env.Unwrap()
		if err != nil {
			log.Printf("client %s: %v", c.id, err)
			c.write(&common.ErrorMessage{Message: err.Error()})
			continue
		}

		c.s.submit(c, msg)
	}
}
