// Package mirror keeps a client's replica of the shared document.
//
// The replica only changes when a broadcast arrives; intents turn into
// requests and the client waits for the server's answer. The one exception
// is the pending edit: the last content this client typed is shown over the
// confirmed line until the server echoes it back or overrides it.
package mirror

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/document"
)

var (
	ErrNotEditable = errors.New("selected line is not held by this client")
	ErrNextLocked  = errors.New("next line is held by another client")
	ErrPrevLocked  = errors.New("previous line is held by another client")
)

// Sender delivers requests to the server.
type Sender interface {
	Send(msg common.Message) error
}

type pendingEdit struct {
	line    int64
	content string
}

type Mirror struct {
	id  string
	out Sender

	mu        sync.Mutex // protects everything below
	doc       *document.Document
	selected  int64
	held      int64
	requested int64 // target of a move-lock still in flight, or None
	pending   *pendingEdit
	docs      []common.DocumentMeta
	lastErr   string

	changed chan struct{}
}

func New(clientID string, out Sender) *Mirror {
	return &Mirror{
		id:        clientID,
		out:       out,
		doc:       document.New(),
		selected:  document.None,
		held:      document.None,
		requested: document.None,
		changed:   make(chan struct{}, 1),
	}
}

func (m *Mirror) ID() string {
	return m.id
}

// Changed fires after a broadcast has been applied. Signals coalesce.
func (m *Mirror) Changed() <-chan struct{} {
	return m.changed
}

func (m *Mirror) editable() bool {
	return m.held != document.None && m.selected == m.held
}

// Editable reports whether content intents are allowed right now.
func (m *Mirror) Editable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editable()
}

func (m *Mirror) Selected() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

func (m *Mirror) Held() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// View returns the lines as this client should display them.
func (m *Mirror) View() []document.LineData {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.doc.Lines()
	res := make([]document.LineData, len(lines))
	for i, l := range lines {
		res[i] = document.LineData{ID: l.ID, Content: l.Content, Holder: l.Holder}
		if m.pending != nil && m.pending.line == l.ID {
			res[i].Content = m.pending.content
		}
	}
	return res
}

// Documents is the last document list received.
func (m *Mirror) Documents() []common.DocumentMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]common.DocumentMeta(nil), m.docs...)
}

// LastError is the last error message the server sent this client.
func (m *Mirror) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// content of id as shown, pending edit included
func (m *Mirror) shown(id int64) string {
	if m.pending != nil && m.pending.line == id {
		return m.pending.content
	}
	l, _ := m.doc.Line(id)
	return l.Content
}

// intent builds a request under the lock and sends it after unlocking
func (m *Mirror) intent(build func() (common.Message, error)) error {
	m.mu.Lock()
	msg, err := build()
	m.mu.Unlock()

	if err != nil || msg == nil {
		return err
	}
	return m.out.Send(msg)
}

// gated is intent for operations that need the selected line held
func (m *Mirror) gated(build func() (common.Message, error)) error {
	return m.intent(func() (common.Message, error) {
		if !m.editable() {
			return nil, ErrNotEditable
		}
		return build()
	})
}

// Select moves the cursor to id and asks for its lock.
func (m *Mirror) Select(id int64) error {
	return m.intent(func() (common.Message, error) {
		if _, ok := m.doc.Line(id); !ok {
			return nil, document.ErrLineNotFound
		}
		m.selected = id
		if m.held == id {
			return nil, nil
		}
		m.requested = id
		return &common.MoveLockRequest{ClientID: m.id, TargetLineID: id}, nil
	})
}

// Type replaces the content of the held line.
func (m *Mirror) Type(content string) error {
	return m.gated(func() (common.Message, error) {
		m.pending = &pendingEdit{line: m.held, content: content}
		return &common.EditLine{LineID: m.held, Content: content, ClientID: m.id}, nil
	})
}

// Enter splits the held line at splitIndex (in characters).
func (m *Mirror) Enter(splitIndex int64) error {
	return m.gated(func() (common.Message, error) {
		if splitIndex < 0 || splitIndex > int64(len([]rune(m.shown(m.held)))) {
			return nil, document.ErrSplitIndex
		}
		return &common.SplitLine{LineID: m.held, SplitIndex: splitIndex, ClientID: m.id}, nil
	})
}

// InsertBelow opens an empty line after the held one.
func (m *Mirror) InsertBelow() error {
	return m.gated(func() (common.Message, error) {
		return &common.InsertAfter{LineID: m.held, ClientID: m.id}, nil
	})
}

// DeleteForward joins the next line onto the held one.
func (m *Mirror) DeleteForward() error {
	return m.gated(func() (common.Message, error) {
		_, next := m.doc.Neighbors(m.held)
		if next == document.None {
			return nil, document.ErrNoNextLine
		}
		l, _ := m.doc.Line(next)
		if l.Holder != "" && l.Holder != m.id {
			return nil, ErrNextLocked
		}
		return &common.MergeNext{
			LineID:        m.held,
			NextLineID:    next,
			MergedContent: m.shown(m.held) + l.Content,
			ClientID:      m.id,
		}, nil
	})
}

// Backspace at the start of the held line joins it onto the previous one.
func (m *Mirror) Backspace() error {
	return m.gated(func() (common.Message, error) {
		prev, _ := m.doc.Neighbors(m.held)
		if prev == document.None {
			return nil, document.ErrNoPrevLine
		}
		l, _ := m.doc.Line(prev)
		if l.Holder != "" && l.Holder != m.id {
			return nil, ErrPrevLocked
		}
		return &common.MergePrev{
			LineID:        m.held,
			PrevLineID:    prev,
			MergedContent: l.Content + m.shown(m.held),
			ClientID:      m.id,
		}, nil
	})
}

// DeleteLine removes the held line.
func (m *Mirror) DeleteLine() error {
	return m.gated(func() (common.Message, error) {
		if m.doc.Len() == 1 {
			return nil, document.ErrLastLine
		}
		return &common.DeleteLine{LineID: m.held, AcquiredLineID: document.None, ClientID: m.id}, nil
	})
}

func (m *Mirror) Load(docID string) error {
	return m.out.Send(&common.LoadDocument{DocID: docID})
}

func (m *Mirror) Save(title string) error {
	return m.out.Send(&common.SaveDocument{Title: title})
}

func (m *Mirror) ListDocuments() error {
	return m.out.Send(&common.ListDocuments{})
}

// Handle applies one frame from the server. A follow-up move-lock is sent
// when the selected line has just become free.
func (m *Mirror) Handle(env common.Envelope) error {
	msg, err := env.Unwrap()
	if err != nil {
		return err
	}

	m.mu.Lock()
	err = m.apply(msg)
	retry := m.settle()
	m.mu.Unlock()

	select {
	case m.changed <- struct{}{}:
	default:
	}

	if err != nil {
		return fmt.Errorf("apply %s: %w", msg.Kind(), err)
	}
	if retry != nil {
		return m.out.Send(retry)
	}
	return nil
}

// where the cursor goes when line id is about to disappear
func (m *Mirror) fallback(id int64) int64 {
	prev, next := m.doc.Neighbors(id)
	if prev != document.None {
		return prev
	}
	return next
}

func (m *Mirror) apply(msg common.Message) error {
	switch msg := msg.(type) {
	case *common.MoveLockResult:
		m.doc.ApplyMove(msg.ClientID, document.MoveResult{Old: msg.OldLineID, New: msg.NewLineID})
		if msg.ClientID == m.id {
			m.requested = document.None
		}

	case *common.EditLine:
		if !m.doc.ForceUpdateContent(msg.LineID, msg.Content) {
			return document.ErrLineNotFound
		}
		if p := m.pending; p != nil && p.line == msg.LineID {
			// our own echo confirms the edit unless we have typed since
			if msg.ClientID != m.id || p.content == msg.Content {
				m.pending = nil
			}
		}

	case *common.InsertAfter:
		if err := m.doc.ApplyInsertAfter(msg.LineID, msg.NewLineID, "", msg.ClientID); err != nil {
			return err
		}
		if msg.ClientID == m.id {
			m.selected = msg.NewLineID
		}

	case *common.SplitLine:
		if err := m.doc.ApplySplit(msg.LineID, msg.SplitIndex, msg.NewLineID); err != nil {
			return err
		}
		if msg.ClientID == m.id {
			m.selected = msg.NewLineID
		}

	case *common.MergeNext:
		if m.selected == msg.NextLineID {
			m.selected = msg.LineID
		}
		if err := m.doc.ApplyMergeNext(msg.LineID, msg.NextLineID, msg.MergedContent); err != nil {
			return err
		}

	case *common.MergePrev:
		if msg.ClientID == m.id || m.selected == msg.LineID {
			m.selected = msg.PrevLineID
		}
		if err := m.doc.ApplyMergePrevious(msg.LineID, msg.PrevLineID, msg.MergedContent, msg.ClientID); err != nil {
			return err
		}

	case *common.DeleteLine:
		if msg.ClientID == m.id || m.selected == msg.LineID {
			if msg.ClientID == m.id && msg.AcquiredLineID != document.None {
				m.selected = msg.AcquiredLineID
			} else {
				m.selected = m.fallback(msg.LineID)
			}
		}
		if err := m.doc.ApplyDelete(msg.LineID, msg.AcquiredLineID, msg.ClientID); err != nil {
			return err
		}

	case *common.DocumentSnapshot:
		doc := document.New()
		if err := doc.PushSnapshot(msg.Snapshot()); err != nil {
			return err
		}
		m.doc = doc
		m.pending = nil
		m.requested = document.None
		if held := doc.HolderOf(m.id); held != document.None {
			m.selected = held
		}

	case *common.ClientReleaseNotice:
		m.doc.ReleaseClient(msg.ClientID)

	case *common.DocumentList:
		m.docs = msg.Documents

	case *common.ErrorMessage:
		m.lastErr = msg.Message

	default:
		return fmt.Errorf("%w: %s", common.ErrUnknownKind, msg.Kind())
	}
	return nil
}

// settle re-derives held from the replica, drops a pending edit the server
// has overridden and decides whether to ask again for the selected line
func (m *Mirror) settle() common.Message {
	m.held = m.doc.HolderOf(m.id)
	if m.pending != nil && m.pending.line != m.held {
		m.pending = nil
	}

	if _, ok := m.doc.Line(m.selected); !ok {
		m.selected = m.doc.Lines()[0].ID
	}

	if m.held != document.None || m.requested != document.None {
		return nil
	}
	if l, _ := m.doc.Line(m.selected); l.Locked() {
		return nil
	}
	m.requested = m.selected
	return &common.MoveLockRequest{ClientID: m.id, TargetLineID: m.selected}
}
