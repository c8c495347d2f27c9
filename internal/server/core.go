package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/config"
	"github.com/ilnaes/linepad/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Router serves the websocket endpoint plus a few plain HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.ws)
	r.HandleFunc("/login", s.login).Methods("POST")
	r.HandleFunc("/documents", s.documents).Methods("GET")
	r.HandleFunc("/health", s.health).Methods("GET")
	return r
}

// set up websocket
func (s *Server) ws(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if errors.Is(err, ErrInvalidToken) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.hub.has(id) {
		http.Error(w, ErrDuplicateClient.Error(), http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	c := s.NewClient(id, conn)
	go c.writePump()

	if err := s.join(c); err != nil {
		// lost a race with another connection under the same id
		log.Printf("client %s: %v", id, err)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if buf, encErr := encode(&common.ErrorMessage{Message: err.Error()}); encErr == nil {
			conn.WriteMessage(websocket.TextMessage, buf)
		}
		c.close()
		return
	}

	c.interact()
}

func (s *Server) documentList(ctx context.Context) (*common.DocumentList, error) {
	metas, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	list := &common.DocumentList{Documents: make([]common.DocumentMeta, 0, len(metas))}
	for _, m := range metas {
		list.Documents = append(list.Documents, common.DocumentMeta{ID: m.ID, Title: m.Title})
	}
	return list, nil
}

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), StorageTimeout)
	defer cancel()

	list, err := s.documentList(ctx)
	if err != nil {
		log.Printf("list documents: %v", err)
		http.Error(w, "Cannot list documents", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

type Health struct {
	Clients  int    `json:"clients"`
	Document string `json:"document,omitempty"`
	Lines    int    `json:"lines"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	var h Health
	err := s.call(func() {
		h.Clients = s.hub.size()
		h.Document = s.docID
		h.Lines = s.doc.Len()
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

// Run wires storage and events from cfg and serves until ctx is done.
func Run(ctx context.Context, cfg config.Config) error {
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	store, err := storage.Open(ctx, cfg, rdb)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}
	defer store.Close()

	var pub Publisher
	if cfg.Events == "redis" {
		pub = NewRedisPublisher(rdb, EventChannel)
	}

	s := NewServer(store, cfg, pub)
	go s.Run(ctx)

	srv := &http.Server{
		Handler:      s.Router(),
		Addr:         cfg.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("linepad listening on %s (%s storage)", cfg.Addr, cfg.Storage)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdown)
	s.hub.closeAll()
	if err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("linepad stopped")
	return nil
}
