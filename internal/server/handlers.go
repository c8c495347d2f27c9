package server

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/document"
)

type handler func(s *Server, c *Client, msg common.Message)

// one entry per request kind; kinds only the server sends stay nil
var handlers = [common.NumKinds]handler{
	common.KindMoveLock:      (*Server).handleMoveLock,
	common.KindEditLine:      (*Server).handleEditLine,
	common.KindInsertAfter:   (*Server).handleInsertAfter,
	common.KindSplitLine:     (*Server).handleSplitLine,
	common.KindMergeNext:     (*Server).handleMergeNext,
	common.KindMergePrev:     (*Server).handleMergePrev,
	common.KindDeleteLine:    (*Server).handleDeleteLine,
	common.KindLoadDocument:  (*Server).handleLoadDocument,
	common.KindSaveDocument:  (*Server).handleSaveDocument,
	common.KindListDocuments: (*Server).handleListDocuments,
}

// processes one request; runs on the document goroutine
func (s *Server) handle(c *Client, msg common.Message) {
	k := msg.Kind()
	if k < 0 || k >= common.NumKinds || handlers[k] == nil {
		log.Printf("client %s: no handler for %s", c.id, k)
		return
	}
	handlers[k](s, c, msg)
}

// drop logs a request that was refused without changing anything
func (s *Server) drop(c *Client, k common.Kind, line int64, err error) {
	log.Printf("drop %s from %s on line %d: %v", k, c.id, line, err)
}

func (s *Server) handleMoveLock(c *Client, msg common.Message) {
	m := msg.(*common.MoveLockRequest)

	res := s.doc.MoveLock(m.TargetLineID, c.id)
	s.hub.broadcast(&common.MoveLockResult{
		ClientID:  c.id,
		OldLineID: res.Old,
		NewLineID: res.New,
	})
}

func (s *Server) handleEditLine(c *Client, msg common.Message) {
	m := msg.(*common.EditLine)

	claim, err := s.doc.UpdateLine(m.LineID, m.Content, c.id)
	if claim.New != document.None {
		// typing on a free line moved the lock, tell everyone first
		s.hub.broadcast(&common.MoveLockResult{
			ClientID:  c.id,
			OldLineID: claim.Old,
			NewLineID: claim.New,
		})
	}
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.EditLine{
		LineID:   m.LineID,
		Content:  m.Content,
		ClientID: c.id,
	})
}

func (s *Server) handleInsertAfter(c *Client, msg common.Message) {
	m := msg.(*common.InsertAfter)

	if !s.doc.Holds(m.LineID, c.id) {
		s.drop(c, m.Kind(), m.LineID, document.ErrNotHolder)
		return
	}
	newID, err := s.doc.InsertLineAfter(m.LineID, "", c.id)
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.InsertAfter{
		LineID:    m.LineID,
		NewLineID: newID,
		ClientID:  c.id,
	})
}

func (s *Server) handleSplitLine(c *Client, msg common.Message) {
	m := msg.(*common.SplitLine)

	newID, err := s.doc.SplitLine(m.LineID, m.SplitIndex, c.id)
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.SplitLine{
		LineID:     m.LineID,
		SplitIndex: m.SplitIndex,
		NewLineID:  newID,
		ClientID:   c.id,
	})
}

func (s *Server) handleMergeNext(c *Client, msg common.Message) {
	m := msg.(*common.MergeNext)

	if !s.doc.Holds(m.LineID, c.id) {
		s.drop(c, m.Kind(), m.LineID, document.ErrNotHolder)
		return
	}
	// the client merged what it saw; refuse if the next line changed since
	if _, next := s.doc.Neighbors(m.LineID); next != m.NextLineID {
		s.drop(c, m.Kind(), m.LineID, document.ErrStale)
		return
	}
	removed, merged, err := s.doc.MergeWithNext(m.LineID, c.id)
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.MergeNext{
		LineID:        m.LineID,
		NextLineID:    removed,
		MergedContent: merged,
		ClientID:      c.id,
	})
}

func (s *Server) handleMergePrev(c *Client, msg common.Message) {
	m := msg.(*common.MergePrev)

	if prev, _ := s.doc.Neighbors(m.LineID); prev != m.PrevLineID {
		s.drop(c, m.Kind(), m.LineID, document.ErrStale)
		return
	}
	prev, merged, err := s.doc.MergeWithPrevious(m.LineID, c.id)
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.MergePrev{
		LineID:        m.LineID,
		PrevLineID:    prev,
		MergedContent: merged,
		ClientID:      c.id,
	})
}

func (s *Server) handleDeleteLine(c *Client, msg common.Message) {
	m := msg.(*common.DeleteLine)

	acquired, err := s.doc.DeleteLine(m.LineID, c.id)
	if err != nil {
		s.drop(c, m.Kind(), m.LineID, err)
		return
	}

	s.hub.broadcast(&common.DeleteLine{
		LineID:         m.LineID,
		AcquiredLineID: acquired,
		ClientID:       c.id,
	})
}

// storage is read off the document goroutine; the result comes back as a
// job so the swap is ordered with every other mutation
func (s *Server) handleLoadDocument(c *Client, msg common.Message) {
	m := msg.(*common.LoadDocument)

	go func() {
		ctx, cancel := storageContext()
		defer cancel()

		rec, err := s.store.Load(ctx, m.DocID)
		if err != nil {
			log.Printf("client %s: load %s: %v", c.id, m.DocID, err)
			c.write(&common.ErrorMessage{Message: "load " + m.DocID + ": " + err.Error()})
			return
		}
		if err := s.do(func() { s.install(rec) }); err != nil {
			log.Printf("load %s: %v", m.DocID, err)
		}
	}()
}

// the snapshot is taken here, in order; writing it happens afterwards
func (s *Server) handleSaveDocument(c *Client, msg common.Message) {
	m := msg.(*common.SaveDocument)

	title := strings.TrimSpace(m.Title)
	if title == "" {
		c.write(&common.ErrorMessage{Message: "save: empty title"})
		return
	}
	snap := s.doc.Snapshot()
	id := uuid.NewString()

	go func() {
		ctx, cancel := storageContext()
		defer cancel()

		if err := s.store.Save(ctx, id, title, snap); err != nil {
			log.Printf("client %s: save %q: %v", c.id, title, err)
			c.write(&common.ErrorMessage{Message: "save: " + err.Error()})
			return
		}
		log.Printf("client %s saved document %s (%q)", c.id, id, title)

		list, err := s.documentList(ctx)
		if err != nil {
			log.Printf("list documents: %v", err)
			return
		}
		s.hub.broadcast(list)
	}()
}

func (s *Server) handleListDocuments(c *Client, _ common.Message) {
	go func() {
		ctx, cancel := storageContext()
		defer cancel()

		list, err := s.documentList(ctx)
		if err != nil {
			log.Printf("client %s: list documents: %v", c.id, err)
			c.write(&common.ErrorMessage{Message: "list: " + err.Error()})
			return
		}
		c.write(list)
	}()
}
