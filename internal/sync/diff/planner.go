// Package diff computes the three-way plan for one sync folder.
package diff

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dl-alexandre/docsync/internal/remote"
	"github.com/dl-alexandre/docsync/internal/sync/exclude"
	"github.com/dl-alexandre/docsync/internal/sync/integrity"
	"github.com/dl-alexandre/docsync/internal/types"
)

// Input is everything the planner compares
type Input struct {
	FolderID  string
	Direction types.SyncDirection
	Root      types.RemoteNode
	Snapshot  map[string]types.SnapshotEntry
	Local     map[string]types.LocalNode
	Remote    map[string]types.RemoteNode
	// Denied remote paths (and everything below them) are skipped
	Denied map[string]string
	// Exclude keeps remote items matching local ignore patterns out of the plan
	Exclude *exclude.Matcher
}

// Plan is the ordered list of items for one pass
type Plan struct {
	FolderID  string              `json:"folderId"`
	Direction types.SyncDirection `json:"direction"`
	Items     []Item              `json:"items"`

	root   types.RemoteNode
	local  map[string]types.LocalNode
	remote map[string]types.RemoteNode
}

// Compute classifies every path seen locally, remotely or in the snapshot
func Compute(in Input) *Plan {
	paths := make(map[string]struct{})
	for p := range in.Local {
		paths[p] = struct{}{}
	}
	for p := range in.Remote {
		paths[p] = struct{}{}
	}
	for p := range in.Snapshot {
		paths[p] = struct{}{}
	}

	plan := &Plan{
		FolderID:  in.FolderID,
		Direction: in.Direction,
		root:      in.Root,
		local:     in.Local,
		remote:    in.Remote,
	}

	for p := range paths {
		item := Item{Path: p}
		if l, ok := in.Local[p]; ok {
			item.Local = &l
		}
		if r, ok := in.Remote[p]; ok {
			item.Remote = &r
		}
		if b, ok := in.Snapshot[p]; ok {
			item.Base = &b
		}
		item.IsDir = (item.Local != nil && item.Local.IsDir) ||
			(item.Local == nil && item.Remote != nil && item.Remote.IsFolder()) ||
			(item.Local == nil && item.Remote == nil && item.Base != nil && item.Base.IsDir)

		if reason := deniedReason(in.Denied, p); reason != "" {
			item.Action = ActionNone
			item.SkipReason = reason
		} else if item.Local == nil && item.Remote != nil && in.Exclude.IsExcluded(p, item.Remote.IsFolder()) {
			item.Action = ActionNone
			item.SkipReason = "excluded by local pattern"
		} else {
			classify(&item)
			plan.constrain(&item)
		}
		plan.Items = append(plan.Items, item)
	}

	plan.keepNonEmptyDirs()
	plan.sort()
	return plan
}

func deniedReason(denied map[string]string, p string) string {
	for current := p; current != "." && current != ""; current = path.Dir(current) {
		if reason, ok := denied[current]; ok {
			return reason
		}
	}
	return ""
}

func classify(item *Item) {
	l, r, b := item.Local, item.Remote, item.Base
	item.Action = ActionNone

	switch {
	case l != nil && r != nil:
		if l.IsDir != r.IsFolder() {
			item.SkipReason = "local and remote items differ in kind"
			return
		}
		if l.IsDir {
			if b == nil || !b.IsDir || b.RemoteID != r.ID {
				item.Baseline = BaselineRefresh
			}
			return
		}
		if integrity.Equal(l.Checksum, r.Checksum) {
			if baselineStale(l, r, b) {
				item.Baseline = BaselineRefresh
			}
			return
		}
		localChanged := localModified(l, b)
		remoteChanged := remoteModified(r, b)
		switch {
		case localChanged && remoteChanged:
			item.Action = ActionConflict
		case localChanged:
			item.Action = ActionUploadUpdate
		case remoteChanged:
			item.Action = ActionDownloadUpdate
		}

	case r != nil:
		// an edit on one side wins over a deletion on the other
		switch {
		case b == nil || b.RemoteID == "" || b.IsDir != r.IsFolder():
			item.Action = ActionDownloadNew
		case !r.IsFolder() && remoteModified(r, b):
			item.Action = ActionDownloadNew
		default:
			item.Action = ActionDeleteRemote
		}

	case l != nil:
		switch {
		case b == nil || b.RemoteID == "" || b.IsDir != l.IsDir:
			item.Action = ActionUploadNew
		case !l.IsDir && localModified(l, b):
			item.Action = ActionUploadNew
		default:
			item.Action = ActionDeleteLocal
		}

	case b != nil:
		item.Baseline = BaselineForget
	}
}

func localModified(l *types.LocalNode, b *types.SnapshotEntry) bool {
	if b == nil {
		return true
	}
	return !integrity.Equal(l.Checksum, b.Checksum)
}

func remoteModified(r *types.RemoteNode, b *types.SnapshotEntry) bool {
	if b == nil {
		return true
	}
	if b.RemoteID != "" && r.ID != b.RemoteID {
		return true
	}
	if r.Checksum != "" {
		return !integrity.Equal(r.Checksum, b.Checksum)
	}
	return r.Version != b.RemoteVersion
}

func baselineStale(l *types.LocalNode, r *types.RemoteNode, b *types.SnapshotEntry) bool {
	if b == nil {
		return true
	}
	return !integrity.Equal(b.Checksum, l.Checksum) ||
		b.RemoteID != r.ID ||
		b.RemoteVersion != r.Version ||
		b.LocalSize != l.Size ||
		b.LocalModTime != l.ModifiedAt.UnixNano()
}

// constrain demotes an item's effective action to none when the folder's
// direction or the remote capabilities forbid it
func (p *Plan) constrain(item *Item) {
	action := item.Effective()
	reason := p.forbidden(item, action)
	if reason == "" {
		if res := item.Resolution; res != nil && res.UploadOriginal {
			if !p.Direction.AllowsUpload() || item.Remote == nil || !remote.CanEdit(*item.Remote) {
				res.UploadOriginal = false
			}
		}
		return
	}

	item.SkipReason = reason
	if item.Action == ActionConflict && item.Resolution != nil {
		item.Resolution.Action = ActionNone
		item.Resolution.CopyPath = ""
		item.Resolution.UploadOriginal = false
		return
	}
	item.Action = ActionNone
	item.Baseline = ""
}

func (p *Plan) forbidden(item *Item, action Action) string {
	if action.ChangesLocal() && !p.Direction.AllowsDownload() {
		return fmt.Sprintf("direction %s does not modify local files", p.Direction)
	}
	if action.ChangesRemote() && !p.Direction.AllowsUpload() {
		return fmt.Sprintf("direction %s does not modify remote files", p.Direction)
	}

	switch action {
	case ActionUploadUpdate:
		if item.Remote != nil && !remote.CanEdit(*item.Remote) {
			return remote.DeniedReason(types.CapEditDocumentContent)
		}
	case ActionUploadNew:
		if parent := p.nearestRemoteFolder(item.Path); !remote.CanCreateIn(parent) {
			return remote.DeniedReason(types.CapCreateDocument)
		}
	case ActionDeleteRemote:
		if item.Remote != nil && !remote.CanDelete(*item.Remote) {
			return remote.DeniedReason(types.CapDeleteDocument)
		}
	}
	return ""
}

// nearestRemoteFolder returns the closest existing remote ancestor of rel
func (p *Plan) nearestRemoteFolder(rel string) types.RemoteNode {
	for dir := path.Dir(rel); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		if node, ok := p.remote[dir]; ok && node.IsFolder() {
			return node
		}
	}
	return p.root
}

// keepNonEmptyDirs demotes a directory deletion when anything below it is
// not being deleted the same way
func (p *Plan) keepNonEmptyDirs() {
	var dirs []int
	for i, item := range p.Items {
		if item.IsDir && item.Effective().IsDelete() {
			dirs = append(dirs, i)
		}
	}
	// deepest first so a kept directory also keeps its parents
	sort.Slice(dirs, func(a, b int) bool {
		return depth(p.Items[dirs[a]].Path) > depth(p.Items[dirs[b]].Path)
	})

	for _, i := range dirs {
		dir := &p.Items[i]
		action := dir.Effective()
		prefix := dir.Path + "/"
		for _, child := range p.Items {
			if !strings.HasPrefix(child.Path, prefix) || gone(child) {
				continue
			}
			if child.Effective() != action || child.Skipped() {
				dir.Action = ActionNone
				dir.SkipReason = "directory still holds items that are not being deleted"
				break
			}
		}
	}
}

// gone reports an item that only drops a stale snapshot entry
func gone(item Item) bool {
	return item.Baseline == BaselineForget && item.Local == nil && item.Remote == nil
}

// sort orders directory creations first (shallowest first), then transfers
// and no-ops by path, then deletions (deepest first)
func (p *Plan) sort() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		a, b := p.Items[i], p.Items[j]
		pa, pb := phase(a), phase(b)
		if pa != pb {
			return pa < pb
		}
		da, db := depth(a.Path), depth(b.Path)
		switch pa {
		case 0:
			if da != db {
				return da < db
			}
		case 2:
			if da != db {
				return da > db
			}
		}
		return a.Path < b.Path
	})
}

func phase(item Item) int {
	action := item.Effective()
	switch {
	case item.IsDir && (action == ActionDownloadNew || action == ActionUploadNew):
		return 0
	case action.IsDelete():
		return 2
	}
	return 1
}

func depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// Resolve attaches a conflict resolution to item i and re-applies the
// direction and capability limits to it. A copy path already taken on
// either side gets a numeric suffix.
func (p *Plan) Resolve(i int, res Resolution) {
	item := &p.Items[i]
	if res.CopyPath != "" {
		res.CopyPath = p.freePath(res.CopyPath)
	}
	item.Resolution = &res
	item.SkipReason = ""
	p.constrain(item)
}

func (p *Plan) freePath(candidate string) string {
	taken := func(rel string) bool {
		if _, ok := p.local[rel]; ok {
			return true
		}
		if _, ok := p.remote[rel]; ok {
			return true
		}
		for _, item := range p.Items {
			if item.Resolution != nil && item.Resolution.CopyPath == rel {
				return true
			}
		}
		return false
	}
	if !taken(candidate) {
		return candidate
	}
	ext := path.Ext(candidate)
	stem := strings.TrimSuffix(candidate, ext)
	for n := 2; ; n++ {
		next := fmt.Sprintf("%s %d%s", stem, n, ext)
		if !taken(next) {
			return next
		}
	}
}

// Counts tallies effective actions
func (p *Plan) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, item := range p.Items {
		counts[item.Effective()]++
	}
	return counts
}

// IsNoop reports whether the plan changes nothing on either side
func (p *Plan) IsNoop() bool {
	for _, item := range p.Items {
		if item.Effective() != ActionNone {
			return false
		}
	}
	return true
}

// Conflicts returns the indexes of conflict items
func (p *Plan) Conflicts() []int {
	var idx []int
	for i, item := range p.Items {
		if item.Action == ActionConflict {
			idx = append(idx, i)
		}
	}
	return idx
}
