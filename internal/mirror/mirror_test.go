package mirror

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/document"
)

type recorder struct {
	mu   sync.Mutex
	sent []common.Message
}

func (r *recorder) Send(msg common.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recorder) last() common.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func feed(t *testing.T, m *Mirror, msg common.Message) {
	t.Helper()
	env, err := common.Wrap(msg)
	require.NoError(t, err)
	require.NoError(t, m.Handle(env))
}

// three lines, bob holding the middle one
func threeLines() *common.DocumentSnapshot {
	return &common.DocumentSnapshot{
		TopLineID: 3,
		Lines: []document.LineData{
			{ID: 1, Content: "one"},
			{ID: 2, Content: "two", Holder: "bob"},
			{ID: 3, Content: "three"},
		},
	}
}

func moved(client string, old, new int64) *common.MoveLockResult {
	return &common.MoveLockResult{ClientID: client, OldLineID: old, NewLineID: new}
}

// alice has joined and holds line 1
func joined(t *testing.T) (*Mirror, *recorder) {
	t.Helper()
	out := &recorder{}
	m := New("alice", out)
	feed(t, m, threeLines())
	feed(t, m, moved("alice", document.None, 1))
	require.True(t, m.Editable())
	return m, out
}

func contents(lines []document.LineData) []string {
	res := make([]string, len(lines))
	for i, l := range lines {
		res[i] = l.Content
	}
	return res
}

func TestSnapshotAsksForLock(t *testing.T) {
	out := &recorder{}
	m := New("alice", out)

	feed(t, m, threeLines())
	assert.Equal(t, int64(1), m.Selected())
	assert.Equal(t, document.None, m.Held())
	assert.False(t, m.Editable())
	assert.Equal(t, &common.MoveLockRequest{ClientID: "alice", TargetLineID: 1}, out.last())

	feed(t, m, moved("alice", document.None, 1))
	assert.Equal(t, int64(1), m.Held())
	assert.True(t, m.Editable())
	assert.Equal(t, 1, out.count())
}

func TestSnapshotKeepsHeldLine(t *testing.T) {
	out := &recorder{}
	m := New("bob", out)

	feed(t, m, threeLines())
	assert.Equal(t, int64(2), m.Selected())
	assert.True(t, m.Editable())
	assert.Zero(t, out.count())
}

func TestGate(t *testing.T) {
	out := &recorder{}
	m := New("alice", out)
	feed(t, m, threeLines())
	sent := out.count()

	assert.ErrorIs(t, m.Type("x"), ErrNotEditable)
	assert.ErrorIs(t, m.Enter(0), ErrNotEditable)
	assert.ErrorIs(t, m.InsertBelow(), ErrNotEditable)
	assert.ErrorIs(t, m.DeleteForward(), ErrNotEditable)
	assert.ErrorIs(t, m.Backspace(), ErrNotEditable)
	assert.ErrorIs(t, m.DeleteLine(), ErrNotEditable)
	assert.Equal(t, sent, out.count())

	assert.ErrorIs(t, m.Select(42), document.ErrLineNotFound)
}

func TestPendingEdit(t *testing.T) {
	m, out := joined(t)

	require.NoError(t, m.Type("uno"))
	assert.Equal(t, &common.EditLine{LineID: 1, Content: "uno", ClientID: "alice"}, out.last())
	assert.Equal(t, "uno", m.View()[0].Content)

	t.Run("newer typing survives an older echo", func(t *testing.T) {
		require.NoError(t, m.Type("unos"))
		feed(t, m, &common.EditLine{LineID: 1, Content: "uno", ClientID: "alice"})
		assert.Equal(t, "unos", m.View()[0].Content)

		feed(t, m, &common.EditLine{LineID: 1, Content: "unos", ClientID: "alice"})
		assert.Equal(t, "unos", m.View()[0].Content)
	})

	t.Run("snapshot overrides", func(t *testing.T) {
		require.NoError(t, m.Type("lost"))
		snap := threeLines()
		snap.Lines[0].Holder = "alice"
		feed(t, m, snap)
		assert.Equal(t, "one", m.View()[0].Content)
		assert.True(t, m.Editable())
	})

	t.Run("losing the line drops it", func(t *testing.T) {
		require.NoError(t, m.Type("gone"))
		feed(t, m, moved("alice", 1, document.None))
		assert.Equal(t, "one", m.View()[0].Content)
	})
}

func TestRetryOnRelease(t *testing.T) {
	m, out := joined(t)

	require.NoError(t, m.Select(2))
	assert.Equal(t, &common.MoveLockRequest{ClientID: "alice", TargetLineID: 2}, out.last())

	// release went through, bob still has line 2
	feed(t, m, moved("alice", 1, document.None))
	assert.False(t, m.Editable())
	sent := out.count()

	// someone else's unrelated move changes nothing
	feed(t, m, moved("carol", document.None, 3))
	assert.Equal(t, sent, out.count())

	feed(t, m, moved("bob", 2, 1))
	assert.Equal(t, sent+1, out.count())
	assert.Equal(t, &common.MoveLockRequest{ClientID: "alice", TargetLineID: 2}, out.last())

	feed(t, m, moved("alice", document.None, 2))
	assert.Equal(t, int64(2), m.Held())
	assert.True(t, m.Editable())
}

func TestRetryOnDisconnect(t *testing.T) {
	out := &recorder{}
	m := New("alice", out)
	feed(t, m, threeLines())
	feed(t, m, moved("alice", document.None, 1))

	require.NoError(t, m.Select(2))
	feed(t, m, moved("alice", 1, document.None))
	sent := out.count()

	feed(t, m, &common.ClientReleaseNotice{ClientID: "bob"})
	assert.Equal(t, sent+1, out.count())
	assert.Equal(t, &common.MoveLockRequest{ClientID: "alice", TargetLineID: 2}, out.last())
	assert.Empty(t, m.View()[1].Holder)
}

func TestStructuralIntents(t *testing.T) {
	t.Run("enter", func(t *testing.T) {
		m, out := joined(t)
		assert.ErrorIs(t, m.Enter(4), document.ErrSplitIndex)

		require.NoError(t, m.Enter(1))
		assert.Equal(t, &common.SplitLine{LineID: 1, SplitIndex: 1, ClientID: "alice"}, out.last())

		feed(t, m, &common.SplitLine{LineID: 1, SplitIndex: 1, NewLineID: 4, ClientID: "alice"})
		assert.Equal(t, []string{"o", "ne", "two", "three"}, contents(m.View()))
		assert.Equal(t, int64(4), m.Held())
		assert.Equal(t, int64(4), m.Selected())
		assert.True(t, m.Editable())
	})

	t.Run("insert below", func(t *testing.T) {
		m, out := joined(t)
		require.NoError(t, m.InsertBelow())
		assert.Equal(t, &common.InsertAfter{LineID: 1, ClientID: "alice"}, out.last())

		feed(t, m, &common.InsertAfter{LineID: 1, NewLineID: 4, ClientID: "alice"})
		assert.Equal(t, []string{"one", "", "two", "three"}, contents(m.View()))
		assert.Equal(t, int64(4), m.Held())
	})

	t.Run("delete forward onto a held line", func(t *testing.T) {
		m, _ := joined(t)
		assert.ErrorIs(t, m.DeleteForward(), ErrNextLocked)
		assert.ErrorIs(t, m.Backspace(), document.ErrNoPrevLine)
	})

	t.Run("delete forward", func(t *testing.T) {
		m, out := joined(t)
		feed(t, m, moved("bob", 2, document.None))
		require.NoError(t, m.DeleteForward())
		assert.Equal(t, &common.MergeNext{LineID: 1, NextLineID: 2, MergedContent: "onetwo", ClientID: "alice"}, out.last())

		feed(t, m, &common.MergeNext{LineID: 1, NextLineID: 2, MergedContent: "onetwo", ClientID: "alice"})
		assert.Equal(t, []string{"onetwo", "three"}, contents(m.View()))
		assert.True(t, m.Editable())
	})

	t.Run("backspace", func(t *testing.T) {
		m, out := joined(t)
		require.NoError(t, m.Select(3))
		feed(t, m, moved("alice", 1, 3))
		require.True(t, m.Editable())

		assert.ErrorIs(t, m.Backspace(), ErrPrevLocked)
		feed(t, m, moved("bob", 2, document.None))
		require.NoError(t, m.Backspace())
		assert.Equal(t, &common.MergePrev{LineID: 3, PrevLineID: 2, MergedContent: "twothree", ClientID: "alice"}, out.last())

		feed(t, m, &common.MergePrev{LineID: 3, PrevLineID: 2, MergedContent: "twothree", ClientID: "alice"})
		assert.Equal(t, []string{"one", "twothree"}, contents(m.View()))
		assert.Equal(t, int64(2), m.Held())
		assert.Equal(t, int64(2), m.Selected())
	})

	t.Run("delete line", func(t *testing.T) {
		m, out := joined(t)
		require.NoError(t, m.DeleteLine())
		assert.Equal(t, &common.DeleteLine{LineID: 1, AcquiredLineID: document.None, ClientID: "alice"}, out.last())

		// nothing before line 1, so the cursor lands on bob's line
		feed(t, m, &common.DeleteLine{LineID: 1, AcquiredLineID: document.None, ClientID: "alice"})
		assert.Equal(t, []string{"two", "three"}, contents(m.View()))
		assert.Equal(t, int64(2), m.Selected())
		assert.False(t, m.Editable())
	})
}

func TestOthersEdits(t *testing.T) {
	m, out := joined(t)
	require.NoError(t, m.Select(3))
	feed(t, m, moved("alice", 1, 3))

	feed(t, m, &common.EditLine{LineID: 2, Content: "TWO", ClientID: "bob"})
	feed(t, m, &common.SplitLine{LineID: 2, SplitIndex: 1, NewLineID: 7, ClientID: "bob"})
	assert.Equal(t, []string{"one", "T", "WO", "three"}, contents(m.View()))
	assert.Equal(t, "bob", m.View()[2].Holder)

	// bob merges the line alice has selected: the cursor follows the text
	feed(t, m, moved("alice", 3, document.None))
	assert.Equal(t, &common.MoveLockRequest{ClientID: "alice", TargetLineID: 3}, out.last())
	sent := out.count()

	feed(t, m, &common.MergeNext{LineID: 7, NextLineID: 3, MergedContent: "WOthree", ClientID: "bob"})
	assert.Equal(t, int64(7), m.Selected())
	assert.Equal(t, []string{"one", "T", "WOthree"}, contents(m.View()))
	assert.Equal(t, sent, out.count())

	// when bob deletes it the cursor moves up a line
	feed(t, m, &common.DeleteLine{LineID: 7, AcquiredLineID: 2, ClientID: "bob"})
	assert.Equal(t, int64(2), m.Selected())
	assert.Equal(t, "bob", m.View()[1].Holder)
	assert.Equal(t, sent, out.count())
}

func TestServerNotices(t *testing.T) {
	m, _ := joined(t)

	feed(t, m, &common.DocumentList{Documents: []common.DocumentMeta{{ID: "x", Title: "notes"}}})
	assert.Equal(t, []common.DocumentMeta{{ID: "x", Title: "notes"}}, m.Documents())

	feed(t, m, &common.ErrorMessage{Message: "load x: document not found"})
	assert.Equal(t, "load x: document not found", m.LastError())

	env, err := common.Wrap(&common.InsertAfter{LineID: 99, NewLineID: 100, ClientID: "bob"})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Handle(env), document.ErrLineNotFound)
}
