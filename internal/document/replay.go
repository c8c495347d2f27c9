package document

import "golang.org/x/exp/slices"

// The Apply methods replay outcomes the server already validated. They do
// no ownership checks and take ids from the outcome instead of allocating,
// so a replica ends up with the same ids as the server.

// ApplyMove replays a lock move for clientID.
func (d *Document) ApplyMove(clientID string, res MoveResult) {
	if res.Old != None {
		if l := d.find(res.Old); l != nil && l.Holder == clientID {
			l.ForceSetLockState(false, "")
		}
	}
	if res.New != None {
		d.forceHolder(res.New, clientID)
	}
}

// gives id to clientID, dropping any other line it held in this replica
func (d *Document) forceHolder(id int64, clientID string) {
	l := d.find(id)
	if l == nil {
		return
	}
	if old := d.held(clientID); old != nil && old != l {
		old.ForceSetLockState(false, "")
	}
	l.ForceSetLockState(true, clientID)
}

// ReleaseClient frees every line held by clientID.
func (d *Document) ReleaseClient(clientID string) {
	for _, l := range d.lines {
		if l.Holder == clientID {
			l.ForceSetLockState(false, "")
		}
	}
}

// ApplyInsertAfter inserts newID after id with the lock moved to clientID.
func (d *Document) ApplyInsertAfter(id, newID int64, content, clientID string) error {
	i := d.index(id)
	if i < 0 {
		return ErrLineNotFound
	}
	if d.index(newID) >= 0 {
		return ErrStale
	}

	d.observe(newID)
	l := &Line{ID: newID}
	l.SetContent(content)
	d.lines = slices.Insert(d.lines, i+1, l)
	d.forceHolder(newID, clientID)
	return nil
}

// ApplySplit splits id at splitIndex into a new line newID.
func (d *Document) ApplySplit(id, splitIndex, newID int64) error {
	l := d.find(id)
	if l == nil {
		return ErrLineNotFound
	}
	if d.index(newID) >= 0 {
		return ErrStale
	}
	runes := []rune(l.Content)
	if splitIndex < 0 || splitIndex > int64(len(runes)) {
		return ErrSplitIndex
	}

	d.observe(newID)
	nl := &Line{ID: newID}
	nl.SetContent(string(runes[splitIndex:]))
	d.splitInto(l, nl, string(runes[:splitIndex]))
	return nil
}

// ApplyMergeNext sets id to merged and drops nextID.
func (d *Document) ApplyMergeNext(id, nextID int64, merged string) error {
	l := d.find(id)
	j := d.index(nextID)
	if l == nil || j < 0 {
		return ErrLineNotFound
	}
	l.SetContent(merged)
	d.remove(j)
	return nil
}

// ApplyMergePrevious sets prevID to merged, drops id and gives prevID to
// clientID.
func (d *Document) ApplyMergePrevious(id, prevID int64, merged, clientID string) error {
	i := d.index(id)
	prev := d.find(prevID)
	if i < 0 || prev == nil {
		return ErrLineNotFound
	}
	prev.SetContent(merged)
	d.remove(i)
	d.forceHolder(prevID, clientID)
	return nil
}

// ApplyDelete drops id and, when acquired is a line, gives it to clientID.
func (d *Document) ApplyDelete(id, acquired int64, clientID string) error {
	i := d.index(id)
	if i < 0 {
		return ErrLineNotFound
	}
	d.remove(i)
	if acquired != None {
		d.forceHolder(acquired, clientID)
	}
	return nil
}
