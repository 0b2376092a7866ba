package inotify

import "slices"

// DefaultMaxPending bounds the number of moved-from records held while
// waiting for their partner.
const DefaultMaxPending = 1024

// ActionKind is the outcome of classifying one record.
type ActionKind int

const (
	ActionIgnore ActionKind = iota
	ActionCreate
	ActionCreateDirectory
	ActionModify
	ActionRemove
	ActionRemoveDirectory
	ActionRename
	ActionRenameDirectory
	ActionPendingRenameStart
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionCreate:
		return "create"
	case ActionCreateDirectory:
		return "create_directory"
	case ActionModify:
		return "modify"
	case ActionRemove:
		return "remove"
	case ActionRemoveDirectory:
		return "remove_directory"
	case ActionRename:
		return "rename"
	case ActionRenameDirectory:
		return "rename_directory"
	case ActionPendingRenameStart:
		return "pending_rename_start"
	default:
		return "unknown"
	}
}

// Action is a resolved classification. OldName is only set for renames, and
// for them WatchID is the watch the entry left while ToWatchID is the watch
// it arrived in.
type Action struct {
	Kind      ActionKind
	WatchID   int
	ToWatchID int
	Name      string
	OldName   string
}

// Deliver invokes the Service method matching a. Ignore and
// PendingRenameStart invoke nothing and report false. A directory removal
// resolved from a moved-from record carries the entry name, it goes to
// RemoveDirectoryEntry when svc implements DirectoryEntryRemover. A rename
// between two watches goes to CrossRenamer when svc implements it.
func Deliver(svc Service, a Action) bool {
	switch a.Kind {
	case ActionCreate:
		svc.Create(a.WatchID, a.Name)
	case ActionCreateDirectory:
		svc.CreateDirectory(a.WatchID, a.Name)
	case ActionModify:
		svc.Modify(a.WatchID, a.Name)
	case ActionRemove:
		svc.Remove(a.WatchID, a.Name)
	case ActionRemoveDirectory:
		if r, ok := svc.(DirectoryEntryRemover); ok && a.Name != "" {
			r.RemoveDirectoryEntry(a.WatchID, a.Name)
			break
		}
		svc.RemoveDirectory(a.WatchID)
	case ActionRename:
		if r, ok := svc.(CrossRenamer); ok && a.ToWatchID != a.WatchID {
			r.RenameAcross(a.WatchID, a.OldName, a.ToWatchID, a.Name)
			break
		}
		svc.Rename(a.WatchID, a.OldName, a.Name)
	case ActionRenameDirectory:
		if r, ok := svc.(CrossRenamer); ok && a.ToWatchID != a.WatchID {
			r.RenameDirectoryAcross(a.WatchID, a.OldName, a.ToWatchID, a.Name)
			break
		}
		svc.RenameDirectory(a.WatchID, a.OldName, a.Name)
	default:
		return false
	}
	return true
}

// Correlator classifies records in stream order and pairs moved-from and
// moved-to records by cookie. It is not safe for concurrent use.
type Correlator struct {
	pending    map[uint32]PendingRename
	order      []uint32 // cookies in arrival order
	maxPending int
}

// NewCorrelator returns a Correlator holding at most maxPending unpaired
// moved-from records. Zero selects DefaultMaxPending.
func NewCorrelator(maxPending int) *Correlator {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Correlator{
		pending:    make(map[uint32]PendingRename),
		maxPending: maxPending,
	}
}

// Pending returns the number of moved-from records waiting for a partner.
func (c *Correlator) Pending() int {
	return len(c.pending)
}

// Reset drops all pending renames without producing any action.
func (c *Correlator) Reset() {
	clear(c.pending)
	c.order = c.order[:0]
}

// Apply classifies rec and returns the actions it produces, in the order they
// must be delivered. The result is empty for spurious and unknown records.
func (c *Correlator) Apply(rec RawRecord) []Action {
	if !rec.IsSelfRemoval() && (rec.Name == "" || rec.Name[0] <= 31) {
		return nil
	}

	switch {
	case rec.Mask.Has(InAttrib | InModify):
		return []Action{{Kind: ActionModify, WatchID: rec.WatchID, Name: rec.Name}}

	case rec.Mask.Has(InCreate):
		return []Action{created(rec)}

	case rec.Mask.Has(InDelete | InDeleteSelf | InIgnored):
		if rec.IsSelfRemoval() {
			return []Action{{Kind: ActionRemoveDirectory, WatchID: rec.WatchID}}
		}
		return []Action{{Kind: ActionRemove, WatchID: rec.WatchID, Name: rec.Name}}

	case rec.Mask.Has(InMovedTo):
		if rec.Cookie == 0 {
			return []Action{created(rec)}
		}
		return c.finishRename(rec)

	case rec.Mask.Has(InMovedFrom):
		if rec.Cookie == 0 {
			return []Action{removed(PendingRename{WatchID: rec.WatchID, Name: rec.Name, IsDir: rec.IsDir()})}
		}
		return c.startRename(rec)
	}

	return nil
}

func (c *Correlator) startRename(rec RawRecord) []Action {
	if rec.Name == "" {
		// a pending entry always names what departed
		return nil
	}

	var out []Action
	if _, ok := c.pending[rec.Cookie]; ok {
		c.dropOrder(rec.Cookie)
	} else if len(c.pending) >= c.maxPending {
		oldest := c.order[0]
		out = append(out, removed(c.pending[oldest]))
		delete(c.pending, oldest)
		c.order = c.order[1:]
	}

	c.pending[rec.Cookie] = PendingRename{
		Cookie:  rec.Cookie,
		WatchID: rec.WatchID,
		Name:    rec.Name,
		IsDir:   rec.IsDir(),
	}
	c.order = append(c.order, rec.Cookie)

	return append(out, Action{Kind: ActionPendingRenameStart, WatchID: rec.WatchID, Name: rec.Name})
}

func (c *Correlator) finishRename(rec RawRecord) []Action {
	if p, ok := c.pending[rec.Cookie]; ok {
		delete(c.pending, rec.Cookie)
		c.dropOrder(rec.Cookie)

		kind := ActionRename
		if p.IsDir {
			kind = ActionRenameDirectory
		}
		return []Action{{Kind: kind, WatchID: p.WatchID, ToWatchID: rec.WatchID, OldName: p.Name, Name: rec.Name}}
	}

	// The kernel queues both halves of a rename back to back, so an unmatched
	// moved-to means every earlier moved-from lost its partner.
	out := make([]Action, 0, len(c.order)+1)
	for _, cookie := range c.order {
		out = append(out, removed(c.pending[cookie]))
	}
	c.Reset()
	return append(out, created(rec))
}

func (c *Correlator) dropOrder(cookie uint32) {
	if i := slices.Index(c.order, cookie); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

func created(rec RawRecord) Action {
	if rec.IsDir() {
		return Action{Kind: ActionCreateDirectory, WatchID: rec.WatchID, Name: rec.Name}
	}
	return Action{Kind: ActionCreate, WatchID: rec.WatchID, Name: rec.Name}
}

func removed(p PendingRename) Action {
	if p.IsDir {
		return Action{Kind: ActionRemoveDirectory, WatchID: p.WatchID, Name: p.Name}
	}
	return Action{Kind: ActionRemove, WatchID: p.WatchID, Name: p.Name}
}
