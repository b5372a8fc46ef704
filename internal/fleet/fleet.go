// Package fleet implements the fleet-wide supervisor of spec §4.5: startup
// reconciliation against the marketplace, one concurrent worker per
// configured node, a periodic snapshot printer, and hot config reload.
package fleet

import (
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/marketfleet/supervisor/internal/worknode"
)

// member is one entry the Fleet tracks: the running WorkNode plus the
// plumbing the supervisor needs to stop it.
type member struct {
	node *worknode.WorkNode
	stop chan struct{}
	done chan struct{}
}

// Fleet is the supervisor's ordered set of WorkNodeStates, keyed by
// NodeTag (§3). Membership is derived from config; the supervisor adds
// members and each worker goroutine removes its own member when it exits.
// All access goes through mu, so Snapshots is safe to call concurrently
// from the printer.
type Fleet struct {
	mu      sync.RWMutex
	members map[string]*member
}

// NewFleet returns an empty Fleet.
func NewFleet() *Fleet {
	return &Fleet{members: make(map[string]*member)}
}

// Tags returns every tracked tag in natural-key order (tag_2 before
// tag_10), the order the printer and reconciliation use for determinism.
func (f *Fleet) Tags() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tags := make([]string, 0, len(f.members))
	for t := range f.members {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return naturalLess(tags[i], tags[j]) })
	return tags
}

// Has reports whether tag is currently tracked.
func (f *Fleet) Has(tag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.members[tag]
	return ok
}

// Snapshots returns a point-in-time view of every tracked node, in
// natural-key tag order — what the 60s fleet printer renders (§4.5, §7).
func (f *Fleet) Snapshots() []worknode.Snapshot {
	tags := f.Tags()
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]worknode.Snapshot, 0, len(tags))
	for _, t := range tags {
		if m, ok := f.members[t]; ok {
			out = append(out, m.node.Snapshot())
		}
	}
	return out
}

// add registers a newly constructed member under tag. The caller must
// not call add twice for the same tag without a prior remove.
func (f *Fleet) add(tag string, m *member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[tag] = m
}

// remove drops tag from the fleet, e.g. after WORK_COMPLETED or a reload
// that retired the node.
func (f *Fleet) remove(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, tag)
}

func (f *Fleet) get(tag string) (*member, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.members[tag]
	return m, ok
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// naturalLess orders tags of the form "<task>_<ordinal>" by task prefix,
// then numerically by ordinal, so "gpu_2" sorts before "gpu_10".
func naturalLess(a, b string) bool {
	aPrefix, aNum, aOK := splitOrdinal(a)
	bPrefix, bNum, bOK := splitOrdinal(b)
	if aOK && bOK && aPrefix == bPrefix {
		return aNum < bNum
	}
	return a < b
}

func splitOrdinal(tag string) (prefix string, ordinal int, ok bool) {
	loc := trailingDigits.FindStringIndex(tag)
	if loc == nil {
		return tag, 0, false
	}
	n, err := strconv.Atoi(tag[loc[0]:loc[1]])
	if err != nil {
		return tag, 0, false
	}
	return tag[:loc[0]], n, true
}
