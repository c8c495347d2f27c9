// Package document holds the line-identity document model: an ordered
// sequence of lines, each with a permanent id and an exclusive edit lock.
//
// A Document is not safe for concurrent use. Its owner (the server actor or
// a client mirror) serializes every call.
package document

import (
	"errors"
	"strings"

	"golang.org/x/exp/slices"
)

// None stands for "no line" in lock outcomes and requests.
const None int64 = -1

var (
	ErrLineNotFound = errors.New("line not found")
	ErrNotHolder    = errors.New("client does not hold the line")
	ErrLocked       = errors.New("line is locked by another client")
	ErrNoNextLine   = errors.New("no next line")
	ErrNoPrevLine   = errors.New("no previous line")
	ErrLastLine     = errors.New("cannot delete the only line")
	ErrSplitIndex   = errors.New("split index out of range")
	ErrStale        = errors.New("stale line reference")
	ErrBadSnapshot  = errors.New("snapshot has no lines or repeats an id")
)

// MoveResult is the outcome of a lock move. Old is the line released
// (None if the client held nothing), New the line acquired (None if the
// acquire failed or only a release was asked for).
type MoveResult struct {
	Old int64
	New int64
}

// LineData is the transferable form of a line.
type LineData struct {
	ID      int64  `json:"id" bson:"id"`
	Content string `json:"content" bson:"content"`
	Holder  string `json:"holder,omitempty" bson:"holder,omitempty"`
}

// Snapshot is a full ordered copy of a document plus its id counter.
type Snapshot struct {
	TopLineID int64      `json:"topLineId" bson:"topLineId"`
	Lines     []LineData `json:"lines" bson:"lines"`
}

type Document struct {
	lines []*Line
	top   int64 // last id handed out
}

// New returns a document holding a single empty line with id 1.
func New() *Document {
	d := &Document{}
	d.lines = []*Line{d.newLine("")}
	return d
}

func (d *Document) newLine(content string) *Line {
	d.top++
	l := &Line{ID: d.top}
	l.SetContent(content)
	return l
}

// keeps the counter ahead of ids chosen elsewhere
func (d *Document) observe(id int64) {
	if id > d.top {
		d.top = id
	}
}

func (d *Document) index(id int64) int {
	return slices.IndexFunc(d.lines, func(l *Line) bool { return l.ID == id })
}

func (d *Document) find(id int64) *Line {
	if i := d.index(id); i >= 0 {
		return d.lines[i]
	}
	return nil
}

func (d *Document) held(clientID string) *Line {
	if clientID == "" {
		return nil
	}
	for _, l := range d.lines {
		if l.Holder == clientID {
			return l
		}
	}
	return nil
}

func (d *Document) remove(i int) {
	d.lines = slices.Delete(d.lines, i, i+1)
}

// TopID returns the last id allocated.
func (d *Document) TopID() int64 {
	return d.top
}

func (d *Document) Len() int {
	return len(d.lines)
}

// Lines returns copies of the lines in order.
func (d *Document) Lines() []Line {
	res := make([]Line, len(d.lines))
	for i, l := range d.lines {
		res[i] = *l
	}
	return res
}

func (d *Document) Line(id int64) (Line, bool) {
	if l := d.find(id); l != nil {
		return *l, true
	}
	return Line{}, false
}

// Neighbors returns the ids before and after id, None where missing.
func (d *Document) Neighbors(id int64) (prev, next int64) {
	prev, next = None, None
	i := d.index(id)
	if i < 0 {
		return
	}
	if i > 0 {
		prev = d.lines[i-1].ID
	}
	if i < len(d.lines)-1 {
		next = d.lines[i+1].ID
	}
	return
}

// Text joins all lines with newlines.
func (d *Document) Text() string {
	parts := make([]string, len(d.lines))
	for i, l := range d.lines {
		parts[i] = l.Content
	}
	return strings.Join(parts, "\n")
}

// HolderOf returns the line clientID holds, or None.
func (d *Document) HolderOf(clientID string) int64 {
	if l := d.held(clientID); l != nil {
		return l.ID
	}
	return None
}

// Holds reports whether clientID holds line id.
func (d *Document) Holds(id int64, clientID string) bool {
	l := d.find(id)
	return l != nil && clientID != "" && l.Holder == clientID
}

// MoveLock releases whatever clientID holds and then tries to acquire
// target. It is release-then-acquire: when the acquire loses, the client is
// left holding nothing and the result still reports the release.
func (d *Document) MoveLock(target int64, clientID string) MoveResult {
	res := MoveResult{Old: None, New: None}
	if clientID == "" {
		return res
	}

	if l := d.held(clientID); l != nil {
		l.TryRelease(clientID)
		res.Old = l.ID
	}

	if target == None {
		return res
	}
	if l := d.find(target); l != nil && l.TryAcquire(clientID) {
		res.New = target
	}
	return res
}

// ReleaseAll frees the line clientID holds and returns its id, or None.
func (d *Document) ReleaseAll(clientID string) int64 {
	return d.MoveLock(None, clientID).Old
}

// UpdateLine edits a line for clientID. A free line is claimed first, which
// moves the client's lock there; the returned MoveResult describes that
// claim (both fields None when no claim happened). A line held by someone
// else is never touched.
func (d *Document) UpdateLine(id int64, content, clientID string) (MoveResult, error) {
	claim := MoveResult{Old: None, New: None}

	l := d.find(id)
	if l == nil {
		return claim, ErrLineNotFound
	}
	if clientID == "" {
		return claim, ErrNotHolder
	}
	if !l.Locked() {
		claim = d.MoveLock(id, clientID)
	}
	if l.Holder != clientID {
		return claim, ErrLocked
	}

	l.SetContent(content)
	return claim, nil
}

// ForceUpdateContent replaces a line's text without any ownership check.
func (d *Document) ForceUpdateContent(id int64, content string) bool {
	l := d.find(id)
	if l == nil {
		return false
	}
	l.SetContent(content)
	return true
}

// InsertLineAfter adds a line after id and moves clientID's lock onto it.
func (d *Document) InsertLineAfter(id int64, content, clientID string) (int64, error) {
	i := d.index(id)
	if i < 0 {
		return None, ErrLineNotFound
	}

	l := d.newLine(content)
	d.lines = slices.Insert(d.lines, i+1, l)
	d.MoveLock(l.ID, clientID)
	return l.ID, nil
}

// SplitLine cuts line id at splitIndex (counted in characters). The left
// part keeps id, the right part becomes a new line right after it. The new
// line takes the holder of the original, so the lock follows the cursor
// onto the new line.
func (d *Document) SplitLine(id, splitIndex int64, clientID string) (int64, error) {
	l := d.find(id)
	if l == nil {
		return None, ErrLineNotFound
	}
	if clientID == "" || l.Holder != clientID {
		return None, ErrNotHolder
	}
	runes := []rune(l.Content)
	if splitIndex < 0 || splitIndex > int64(len(runes)) {
		return None, ErrSplitIndex
	}

	nl := d.newLine(string(runes[splitIndex:]))
	d.splitInto(l, nl, string(runes[:splitIndex]))
	return nl.ID, nil
}

func (d *Document) splitInto(l, nl *Line, left string) {
	holder := l.Holder
	l.SetContent(left)
	d.lines = slices.Insert(d.lines, d.index(l.ID)+1, nl)
	if holder != "" {
		l.TryRelease(holder)
		nl.TryAcquire(holder)
	}
}

// MergeWithNext appends the following line onto id and removes it. The
// next line must be free or held by clientID. The lock on id is untouched.
func (d *Document) MergeWithNext(id int64, clientID string) (int64, string, error) {
	i := d.index(id)
	if i < 0 {
		return None, "", ErrLineNotFound
	}
	if i == len(d.lines)-1 {
		return None, "", ErrNoNextLine
	}
	l, next := d.lines[i], d.lines[i+1]
	if next.Locked() && next.Holder != clientID {
		return None, "", ErrLocked
	}

	merged := l.Content + next.Content
	l.SetContent(merged)
	d.remove(i + 1)
	return next.ID, merged, nil
}

// MergeWithPrevious appends id onto the line before it, removes id and
// moves clientID's lock to the surviving line. clientID must hold id and
// the previous line must be free or already its own.
func (d *Document) MergeWithPrevious(id int64, clientID string) (int64, string, error) {
	i := d.index(id)
	if i < 0 {
		return None, "", ErrLineNotFound
	}
	l := d.lines[i]
	if clientID == "" || l.Holder != clientID {
		return None, "", ErrNotHolder
	}
	if i == 0 {
		return None, "", ErrNoPrevLine
	}
	prev := d.lines[i-1]
	if prev.Locked() && prev.Holder != clientID {
		return None, "", ErrLocked
	}

	merged := prev.Content + l.Content
	prev.SetContent(merged)
	l.TryRelease(clientID)
	d.remove(i)
	prev.TryAcquire(clientID)
	return prev.ID, merged, nil
}

// DeleteLine removes a line clientID holds and then tries to take the line
// before it. Losing that acquire is not an error: the returned id is None
// and the client holds nothing.
func (d *Document) DeleteLine(id int64, clientID string) (int64, error) {
	i := d.index(id)
	if i < 0 {
		return None, ErrLineNotFound
	}
	if clientID == "" || d.lines[i].Holder != clientID {
		return None, ErrNotHolder
	}
	if len(d.lines) == 1 {
		return None, ErrLastLine
	}

	d.remove(i)
	if i > 0 && d.lines[i-1].TryAcquire(clientID) {
		return d.lines[i-1].ID, nil
	}
	return None, nil
}

// Snapshot copies the document including lock holders.
func (d *Document) Snapshot() Snapshot {
	s := Snapshot{TopLineID: d.top, Lines: make([]LineData, len(d.lines))}
	for i, l := range d.lines {
		s.Lines[i] = l.data()
	}
	return s
}

// PushSnapshot replaces every line with the snapshot's, carrying whatever
// holders it names. The counter never moves below an id already in use.
func (d *Document) PushSnapshot(s Snapshot) error {
	if len(s.Lines) == 0 {
		return ErrBadSnapshot
	}

	seen := make(map[int64]bool, len(s.Lines))
	holders := make(map[string]bool)
	lines := make([]*Line, 0, len(s.Lines))
	top := s.TopLineID
	for _, ld := range s.Lines {
		if seen[ld.ID] || ld.ID <= 0 {
			return ErrBadSnapshot
		}
		seen[ld.ID] = true

		l := &Line{ID: ld.ID}
		l.SetContent(ld.Content)
		// a holder named twice keeps only its first line
		if ld.Holder != "" && !holders[ld.Holder] {
			holders[ld.Holder] = true
			l.Holder = ld.Holder
		}
		lines = append(lines, l)
		if ld.ID > top {
			top = ld.ID
		}
	}

	d.lines = lines
	d.top = top
	return nil
}

// ResetAllLocks frees every line.
func (d *Document) ResetAllLocks() {
	for _, l := range d.lines {
		l.ForceSetLockState(false, "")
	}
}
