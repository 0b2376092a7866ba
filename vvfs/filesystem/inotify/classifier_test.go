package inotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliverAll(c *Correlator, recs ...RawRecord) []string {
	svc := &recordingService{}
	for _, rec := range recs {
		for _, a := range c.Apply(rec) {
			Deliver(svc, a)
		}
	}
	return svc.Calls()
}

func TestCorrelator_Classification(t *testing.T) {
	tests := []struct {
		name string
		recs []RawRecord
		want []string
	}{
		{
			name: "created file",
			recs: []RawRecord{recCreate(1, "x")},
			want: []string{"create(1,x)"},
		},
		{
			name: "created directory",
			recs: []RawRecord{asDir(recCreate(1, "sub"))},
			want: []string{"createDirectory(1,sub)"},
		},
		{
			name: "modify",
			recs: []RawRecord{{WatchID: 2, Mask: InModify, Name: "f"}},
			want: []string{"modify(2,f)"},
		},
		{
			name: "attrib on directory is still modify",
			recs: []RawRecord{{WatchID: 2, Mask: InAttrib | InIsDir, Name: "d"}},
			want: []string{"modify(2,d)"},
		},
		{
			name: "modify wins over create",
			recs: []RawRecord{{WatchID: 1, Mask: InCreate | InAttrib, Name: "f"}},
			want: []string{"modify(1,f)"},
		},
		{
			name: "delete file",
			recs: []RawRecord{{WatchID: 3, Mask: InDelete, Name: "gone"}},
			want: []string{"remove(3,gone)"},
		},
		{
			name: "delete child directory reports the name",
			recs: []RawRecord{{WatchID: 3, Mask: InDelete | InIsDir, Name: "sub"}},
			want: []string{"remove(3,sub)"},
		},
		{
			name: "delete self without name",
			recs: []RawRecord{{WatchID: 4, Mask: InDeleteSelf}},
			want: []string{"removeDirectory(4)"},
		},
		{
			name: "watch invalidated",
			recs: []RawRecord{{WatchID: 5, Mask: InIgnored}},
			want: []string{"removeDirectory(5)"},
		},
		{
			name: "empty name is spurious",
			recs: []RawRecord{recCreate(1, "")},
			want: nil,
		},
		{
			name: "control character name is spurious",
			recs: []RawRecord{recCreate(1, "\x1fbad"), {WatchID: 1, Mask: InModify, Name: "\tx"}},
			want: nil,
		},
		{
			name: "unknown kinds are ignored",
			recs: []RawRecord{{WatchID: 1, Mask: InAccess, Name: "f"}, {WatchID: 1, Mask: InOpen | InIsDir, Name: "d"}},
			want: nil,
		},
		{
			name: "queue overflow has no name and is dropped",
			recs: []RawRecord{{WatchID: -1, Mask: InQOverflow}},
			want: nil,
		},
		{
			name: "rename pair",
			recs: []RawRecord{recMovedFrom(1, 7, "x"), recMovedTo(1, 7, "y")},
			want: []string{"rename(1,x,y)"},
		},
		{
			name: "rename across directories keeps the source watch",
			recs: []RawRecord{recMovedFrom(1, 9, "x"), recMovedTo(2, 9, "y")},
			want: []string{"rename(1,x,y)"},
		},
		{
			name: "directory rename uses the moved-from directory flag",
			recs: []RawRecord{asDir(recMovedFrom(1, 8, "a")), recMovedTo(1, 8, "b")},
			want: []string{"renameDirectory(1,a,b)"},
		},
		{
			name: "mismatched cookies",
			recs: []RawRecord{recMovedFrom(1, 10, "a"), recMovedTo(1, 11, "b")},
			want: []string{"remove(1,a)", "create(1,b)"},
		},
		{
			name: "mismatched cookies on directories",
			recs: []RawRecord{asDir(recMovedFrom(1, 10, "a")), asDir(recMovedTo(2, 11, "b"))},
			want: []string{"removeDirectory(1)", "createDirectory(2,b)"},
		},
		{
			name: "moved-to without cookie is a create",
			recs: []RawRecord{recMovedFrom(1, 12, "a"), recMovedTo(1, 0, "b")},
			want: []string{"create(1,b)"},
		},
		{
			name: "moved-to with unknown cookie and nothing pending",
			recs: []RawRecord{asDir(recMovedTo(6, 44, "in"))},
			want: []string{"createDirectory(6,in)"},
		},
		{
			name: "moved-from without cookie is a remove",
			recs: []RawRecord{recMovedFrom(1, 0, "a"), asDir(recMovedFrom(1, 0, "d"))},
			want: []string{"remove(1,a)", "removeDirectory(1)"},
		},
		{
			name: "overlapping renames with distinct cookies",
			recs: []RawRecord{
				recMovedFrom(1, 20, "a"),
				asDir(recMovedFrom(2, 21, "d")),
				recMovedTo(2, 21, "e"),
				recMovedTo(1, 20, "b"),
			},
			want: []string{"renameDirectory(2,d,e)", "rename(1,a,b)"},
		},
		{
			name: "moved-from with a reused cookie overwrites",
			recs: []RawRecord{recMovedFrom(1, 30, "a"), recMovedFrom(1, 30, "b"), recMovedTo(1, 30, "c")},
			want: []string{"rename(1,b,c)"},
		},
		{
			name: "order is preserved around a rename",
			recs: []RawRecord{
				recCreate(1, "a"),
				recMovedFrom(1, 40, "a"),
				recMovedTo(1, 40, "b"),
				{WatchID: 1, Mask: InModify, Name: "b"},
			},
			want: []string{"create(1,a)", "rename(1,a,b)", "modify(1,b)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deliverAll(NewCorrelator(0), tt.recs...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCorrelator_MovedToWithoutCookieKeepsPending(t *testing.T) {
	c := NewCorrelator(0)

	got := deliverAll(c, recMovedFrom(1, 12, "a"), recMovedTo(1, 0, "b"))
	assert.Equal(t, []string{"create(1,b)"}, got)
	assert.Equal(t, 1, c.Pending())

	got = deliverAll(c, recMovedTo(1, 12, "c"))
	assert.Equal(t, []string{"rename(1,a,c)"}, got)
	assert.Zero(t, c.Pending())
}

func TestCorrelator_PendingRenameStart(t *testing.T) {
	c := NewCorrelator(0)

	actions := c.Apply(recMovedFrom(3, 5, "src"))
	require.Len(t, actions, 1)
	assert.Equal(t, ActionPendingRenameStart, actions[0].Kind)
	assert.False(t, Deliver(&recordingService{}, actions[0]))
	assert.Equal(t, 1, c.Pending())
}

func TestCorrelator_MaxPendingAbandonsOldest(t *testing.T) {
	c := NewCorrelator(2)

	got := deliverAll(c,
		recMovedFrom(1, 1, "a"),
		asDir(recMovedFrom(1, 2, "b")),
		recMovedFrom(1, 3, "c"),
	)
	assert.Equal(t, []string{"remove(1,a)"}, got)
	assert.Equal(t, 2, c.Pending())

	got = deliverAll(c, recMovedTo(1, 3, "z"), recMovedTo(1, 2, "y"))
	assert.Equal(t, []string{"rename(1,c,z)", "renameDirectory(1,b,y)"}, got)
}

func TestCorrelator_UnmatchedMovedToFlushesInArrivalOrder(t *testing.T) {
	c := NewCorrelator(0)

	got := deliverAll(c,
		recMovedFrom(1, 1, "a"),
		recMovedFrom(2, 2, "b"),
		recMovedTo(3, 99, "c"),
	)
	assert.Equal(t, []string{"remove(1,a)", "remove(2,b)", "create(3,c)"}, got)
	assert.Zero(t, c.Pending())
}

func TestCorrelator_ResetIsSilent(t *testing.T) {
	c := NewCorrelator(0)
	deliverAll(c, recMovedFrom(1, 1, "a"))

	c.Reset()
	assert.Zero(t, c.Pending())

	got := deliverAll(c, recMovedTo(1, 1, "b"))
	assert.Equal(t, []string{"create(1,b)"}, got)
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "rename_directory", ActionRenameDirectory.String())
	assert.Equal(t, "pending_rename_start", ActionPendingRenameStart.String())
	assert.Equal(t, "unknown", ActionKind(99).String())
}

func TestDeliver_DirectoryEntryRemover(t *testing.T) {
	c := NewCorrelator(0)
	svc := &entryRemovingService{}

	recs := []RawRecord{
		asDir(recMovedFrom(1, 4, "gone")),
		recMovedTo(1, 5, "new"),
		asDir(recMovedFrom(2, 0, "plain")),
		{WatchID: 3, Mask: InDeleteSelf},
	}
	for _, rec := range recs {
		for _, a := range c.Apply(rec) {
			Deliver(svc, a)
		}
	}

	assert.Equal(t, []string{
		"removeDirectoryEntry(1,gone)",
		"create(1,new)",
		"removeDirectoryEntry(2,plain)",
		"removeDirectory(3)",
	}, svc.Calls())
}

func TestDeliver_CrossRenamer(t *testing.T) {
	c := NewCorrelator(0)
	svc := &crossRenamingService{}

	recs := []RawRecord{
		recMovedFrom(1, 4, "a"),
		recMovedTo(2, 4, "b"),
		asDir(recMovedFrom(1, 5, "d")),
		asDir(recMovedTo(3, 5, "e")),
		recMovedFrom(1, 6, "same"),
		recMovedTo(1, 6, "watch"),
	}
	for _, rec := range recs {
		for _, a := range c.Apply(rec) {
			Deliver(svc, a)
		}
	}

	assert.Equal(t, []string{
		"renameAcross(1,a,2,b)",
		"renameDirectoryAcross(1,d,3,e)",
		"rename(1,same,watch)",
	}, svc.Calls())
}

func TestCorrelator_CrossWatchRenameWithoutExtension(t *testing.T) {
	got := deliverAll(NewCorrelator(0), recMovedFrom(1, 4, "a"), recMovedTo(2, 4, "b"))
	assert.Equal(t, []string{"rename(1,a,b)"}, got)

	c := NewCorrelator(0)
	c.Apply(recMovedFrom(1, 4, "a"))
	actions := c.Apply(recMovedTo(2, 4, "b"))
	require.Len(t, actions, 1)
	assert.Equal(t, Action{Kind: ActionRename, WatchID: 1, ToWatchID: 2, OldName: "a", Name: "b"}, actions[0])
}

func TestCorrelator_PendingEntryNeedsName(t *testing.T) {
	c := NewCorrelator(0)

	assert.Empty(t, c.startRename(RawRecord{WatchID: 1, Mask: InMovedFrom, Cookie: 3}))
	assert.Zero(t, c.Pending())

	// the spurious filter drops it before it gets there
	assert.Empty(t, c.Apply(RawRecord{WatchID: 1, Mask: InMovedFrom, Cookie: 3}))
	assert.Zero(t, c.Pending())
}
