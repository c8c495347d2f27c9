package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ilnaes/linepad/internal/document"
)

// ServerID is the coordinator's own identity; no client may use it.
const ServerID = "SERVER"

var ErrUnknownKind = errors.New("unknown message kind")

type Kind int

const (
	KindMoveLock Kind = iota
	KindMoveLockResult
	KindEditLine
	KindInsertAfter
	KindSplitLine
	KindMergeNext
	KindMergePrev
	KindDeleteLine
	KindSnapshot
	KindClientRelease
	KindLoadDocument
	KindSaveDocument
	KindListDocuments
	KindDocumentList
	KindError

	NumKinds
)

var kindNames = [NumKinds]string{
	KindMoveLock:       "move_lock",
	KindMoveLockResult: "move_lock_result",
	KindEditLine:       "edit_line",
	KindInsertAfter:    "insert_after",
	KindSplitLine:      "split_line",
	KindMergeNext:      "merge_next",
	KindMergePrev:      "merge_prev",
	KindDeleteLine:     "delete_line",
	KindSnapshot:       "snapshot",
	KindClientRelease:  "client_release",
	KindLoadDocument:   "load_document",
	KindSaveDocument:   "save_document",
	KindListDocuments:  "list_documents",
	KindDocumentList:   "document_list",
	KindError:          "error",
}

func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || k >= NumKinds {
		return nil, ErrUnknownKind
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, b)
}

// IsRequest reports whether clients may send this kind to the server.
func (k Kind) IsRequest() bool {
	switch k {
	case KindMoveLock, KindEditLine, KindInsertAfter, KindSplitLine, KindMergeNext,
		KindMergePrev, KindDeleteLine, KindLoadDocument, KindSaveDocument, KindListDocuments:
		return true
	}
	return false
}

// Message is any payload that can travel in an Envelope.
type Message interface {
	Kind() Kind
}

// Envelope is one websocket frame: a kind tag plus its payload.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Wrap encodes msg into an envelope.
func Wrap(msg Message) (Envelope, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return Envelope{Type: msg.Kind(), Data: data}, nil
}

// Unwrap decodes an envelope into the message type its kind names.
func (e Envelope) Unwrap() (Message, error) {
	var msg Message
	switch e.Type {
	case KindMoveLock:
		msg = &MoveLockRequest{}
	case KindMoveLockResult:
		msg = &MoveLockResult{}
	case KindEditLine:
		msg = &EditLine{}
	case KindInsertAfter:
		msg = &InsertAfter{}
	case KindSplitLine:
		msg = &SplitLine{}
	case KindMergeNext:
		msg = &MergeNext{}
	case KindMergePrev:
		msg = &MergePrev{}
	case KindDeleteLine:
		msg = &DeleteLine{}
	case KindSnapshot:
		msg = &DocumentSnapshot{}
	case KindClientRelease:
		msg = &ClientReleaseNotice{}
	case KindLoadDocument:
		msg = &LoadDocument{}
	case KindSaveDocument:
		msg = &SaveDocument{}
	case KindListDocuments:
		msg = &ListDocuments{}
	case KindDocumentList:
		msg = &DocumentList{}
	case KindError:
		msg = &ErrorMessage{}
	default:
		return nil, ErrUnknownKind
	}

	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Type, err)
		}
	}
	return msg, nil
}

// TargetLineID of -1 asks for a release only.
type MoveLockRequest struct {
	ClientID     string `json:"clientId"`
	TargetLineID int64  `json:"targetLineId"`
}

// OldLineID is -1 when nothing was released, NewLineID -1 when the acquire
// failed or was not asked for.
type MoveLockResult struct {
	ClientID  string `json:"clientId"`
	OldLineID int64  `json:"oldLineId"`
	NewLineID int64  `json:"newLineId"`
}

type EditLine struct {
	LineID   int64  `json:"lineId"`
	Content  string `json:"content"`
	ClientID string `json:"clientId"`
}

// NewLineID is filled in by the server.
type InsertAfter struct {
	LineID    int64  `json:"lineId"`
	NewLineID int64  `json:"newLineId,omitempty"`
	ClientID  string `json:"clientId"`
}

// NewLineID is filled in by the server.
type SplitLine struct {
	LineID     int64  `json:"lineId"`
	SplitIndex int64  `json:"splitIndex"`
	NewLineID  int64  `json:"newLineId,omitempty"`
	ClientID   string `json:"clientId"`
}

type MergeNext struct {
	LineID        int64  `json:"lineId"`
	NextLineID    int64  `json:"nextLineId"`
	MergedContent string `json:"mergedContent"`
	ClientID      string `json:"clientId"`
}

// MergePrev folds LineID into PrevLineID (backspace at the start of a line).
type MergePrev struct {
	LineID        int64  `json:"lineId"`
	PrevLineID    int64  `json:"prevLineId"`
	MergedContent string `json:"mergedContent"`
	ClientID      string `json:"clientId"`
}

// AcquiredLineID is filled in by the server: the predecessor the client
// took over, or -1.
type DeleteLine struct {
	LineID         int64  `json:"lineId"`
	AcquiredLineID int64  `json:"acquiredLineId"`
	ClientID       string `json:"clientId"`
}

type DocumentSnapshot struct {
	TopLineID int64               `json:"topLineId"`
	Lines     []document.LineData `json:"lines"`
}

type ClientReleaseNotice struct {
	ClientID string `json:"clientId"`
}

type LoadDocument struct {
	DocID string `json:"docId"`
}

type SaveDocument struct {
	Title string `json:"title"`
}

type ListDocuments struct{}

type DocumentMeta struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type DocumentList struct {
	Documents []DocumentMeta `json:"documents"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func (*MoveLockRequest) Kind() Kind     { return KindMoveLock }
func (*MoveLockResult) Kind() Kind      { return KindMoveLockResult }
func (*EditLine) Kind() Kind            { return KindEditLine }
func (*InsertAfter) Kind() Kind         { return KindInsertAfter }
func (*SplitLine) Kind() Kind           { return KindSplitLine }
func (*MergeNext) Kind() Kind           { return KindMergeNext }
func (*MergePrev) Kind() Kind           { return KindMergePrev }
func (*DeleteLine) Kind() Kind          { return KindDeleteLine }
func (*DocumentSnapshot) Kind() Kind    { return KindSnapshot }
func (*ClientReleaseNotice) Kind() Kind { return KindClientRelease }
func (*LoadDocument) Kind() Kind        { return KindLoadDocument }
func (*SaveDocument) Kind() Kind        { return KindSaveDocument }
func (*ListDocuments) Kind() Kind       { return KindListDocuments }
func (*DocumentList) Kind() Kind        { return KindDocumentList }
func (*ErrorMessage) Kind() Kind        { return KindError }

// FromSnapshot converts a document snapshot to its wire form.
func FromSnapshot(s document.Snapshot) *DocumentSnapshot {
	return &DocumentSnapshot{TopLineID: s.TopLineID, Lines: s.Lines}
}

func (m *DocumentSnapshot) Snapshot() document.Snapshot {
	return document.Snapshot{TopLineID: m.TopLineID, Lines: m.Lines}
}
