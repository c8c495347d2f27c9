package document

import "time"

// Line is one addressable unit of text. Its ID never changes and is never
// handed out again by the document that created it.
type Line struct {
	ID           int64
	Content      string
	Holder       string // client holding the edit lock, "" when free
	LastModified time.Time
}

// Locked reports whether some client holds the line.
func (l *Line) Locked() bool {
	return l.Holder != ""
}

// TryAcquire takes the lock for clientID. Holding it already counts as
// success; a line held by anyone else is left alone.
func (l *Line) TryAcquire(clientID string) bool {
	if clientID == "" {
		return false
	}
	if l.Holder == clientID {
		return true
	}
	if l.Holder != "" {
		return false
	}
	l.Holder = clientID
	return true
}

// TryRelease clears the lock only when clientID is the holder.
func (l *Line) TryRelease(clientID string) bool {
	if l.Holder == "" || l.Holder != clientID {
		return false
	}
	l.Holder = ""
	return true
}

// SetContent replaces the text without looking at the lock.
func (l *Line) SetContent(content string) {
	l.Content = content
	l.LastModified = time.Now()
}

// ForceSetLockState overrides the lock, used when the server pushes lock
// state (snapshots, replayed lock moves).
func (l *Line) ForceSetLockState(held bool, clientID string) {
	if !held {
		l.Holder = ""
		return
	}
	l.Holder = clientID
}

func (l *Line) data() LineData {
	return LineData{ID: l.ID, Content: l.Content, Holder: l.Holder}
}
