package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/config"
	"github.com/ilnaes/linepad/internal/document"
	"github.com/ilnaes/linepad/internal/storage"
)

const (
	StorageTimeout = 10 * time.Second
)

var ErrStopped = errors.New("server stopped")

// Server owns the active document. Every mutation runs as a job on the
// goroutine started by Run, in arrival order; nothing else touches doc.
type Server struct {
	doc   *document.Document // active document, replaced wholesale on load
	docID string             // stored id of the active document, "" if never loaded

	hub        *hub
	store      storage.Store
	secret     []byte
	sendBuffer int

	jobs    chan func()
	stopped chan struct{}
}

func NewServer(store storage.Store, cfg config.Config, pub Publisher) *Server {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Server{
		doc:        document.New(),
		hub:        newHub(pub),
		store:      store,
		secret:     []byte(cfg.AuthSecret),
		sendBuffer: buf,
		jobs:       make(chan func()),
		stopped:    make(chan struct{}),
	}
}

// Run processes jobs until ctx is done.
func (s *Server) Run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			job()
		}
	}
}

// do queues job for the document goroutine
func (s *Server) do(job func()) error {
	select {
	case s.jobs <- job:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}

// call runs job on the document goroutine and waits for it
func (s *Server) call(job func()) error {
	done := make(chan struct{})
	err := s.do(func() {
		defer close(done)
		job()
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}

// Snapshot returns a copy of the active document.
func (s *Server) Snapshot() (document.Snapshot, error) {
	var snap document.Snapshot
	err := s.call(func() { snap = s.doc.Snapshot() })
	return snap, err
}

// join registers c and pushes the current document to everyone
func (s *Server) join(c *Client) error {
	var err error
	callErr := s.call(func() {
		if err = s.hub.add(c); err != nil {
			return
		}
		log.Printf("client %s joined", c.id)
		s.hub.broadcast(common.FromSnapshot(s.doc.Snapshot()))
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// leave drops c and frees whatever line it held
func (s *Server) leave(c *Client) {
	c.close()
	err := s.do(func() {
		if !s.hub.remove(c) {
			return
		}
		old := s.doc.ReleaseAll(c.id)
		log.Printf("client %s left, released line %d", c.id, old)
		s.hub.broadcast(&common.ClientReleaseNotice{ClientID: c.id})
	})
	if err != nil {
		log.Printf("client %s left after shutdown", c.id)
	}
}

// submit queues a client request
func (s *Server) submit(c *Client, msg common.Message) {
	if err := s.do(func() { s.handle(c, msg) }); err != nil {
		log.Printf("client %s: %s dropped: %v", c.id, msg.Kind(), err)
	}
}

// install replaces the active document with a stored one, all lines free
func (s *Server) install(rec storage.Record) {
	doc := document.New()
	if err := doc.PushSnapshot(rec.Snapshot); err != nil {
		log.Printf("load %s: %v", rec.ID, err)
		return
	}
	doc.ResetAllLocks()

	s.doc = doc
	s.docID = rec.ID
	log.Printf("loaded document %s (%q), %d lines", rec.ID, rec.Title, doc.Len())
	s.hub.broadcast(common.FromSnapshot(doc.Snapshot()))
}

func storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), StorageTimeout)
}
