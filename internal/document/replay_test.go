package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReplayMatchesAuthority applies each authoritative outcome to a
// replica and expects both documents to stay identical.
func TestReplayMatchesAuthority(t *testing.T) {
	server := New()
	replica := New()

	same := func() {
		t.Helper()
		assert.Equal(t, server.Snapshot(), replica.Snapshot())
	}

	res := server.MoveLock(1, "a")
	replica.ApplyMove("a", res)
	same()

	server.UpdateLine(1, "hello", "a")
	replica.ForceUpdateContent(1, "hello")
	same()

	newID, err := server.SplitLine(1, 2, "a")
	require.NoError(t, err)
	require.NoError(t, replica.ApplySplit(1, 2, newID))
	same()

	ins, err := server.InsertLineAfter(newID, "", "a")
	require.NoError(t, err)
	require.NoError(t, replica.ApplyInsertAfter(newID, ins, "", "a"))
	same()

	res = server.MoveLock(1, "b")
	replica.ApplyMove("b", res)
	same()

	prev, merged, err := server.MergeWithPrevious(ins, "a")
	require.NoError(t, err)
	require.NoError(t, replica.ApplyMergePrevious(ins, prev, merged, "a"))
	same()

	res = server.MoveLock(None, "a")
	replica.ApplyMove("a", res)
	same()

	removed, merged, err := server.MergeWithNext(1, "b")
	require.NoError(t, err)
	require.NoError(t, replica.ApplyMergeNext(1, removed, merged))
	same()

	last, err := server.InsertLineAfter(1, "tail", "b")
	require.NoError(t, err)
	require.NoError(t, replica.ApplyInsertAfter(1, last, "tail", "b"))
	same()

	acquired, err := server.DeleteLine(last, "b")
	require.NoError(t, err)
	require.NoError(t, replica.ApplyDelete(last, acquired, "b"))
	same()

	server.ReleaseAll("b")
	replica.ReleaseClient("b")
	same()
}

func TestReplayRejectsStale(t *testing.T) {
	d := New()
	assert.ErrorIs(t, d.ApplyInsertAfter(5, 6, "", "a"), ErrLineNotFound)
	assert.ErrorIs(t, d.ApplyInsertAfter(1, 1, "", "a"), ErrStale)
	assert.ErrorIs(t, d.ApplySplit(1, 3, 2), ErrSplitIndex)
	assert.ErrorIs(t, d.ApplyMergeNext(1, 9, ""), ErrLineNotFound)
	assert.ErrorIs(t, d.ApplyDelete(9, None, "a"), ErrLineNotFound)
	assert.Equal(t, int64(1), d.TopID())
}
