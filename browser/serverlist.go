package browser

import (
	"net/netip"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay/discovery"
)

// ChangeFunc is called after an entry was added, updated or pruned. The
// description is the merged entry; removed reports a pruned entry.
type ChangeFunc func(desc discovery.ServerDescription, removed bool)

// ServerList merges discovery results into one entry per server ID.
// It implements discovery.Observer and is safe for concurrent use.
type ServerList struct {
	mu       sync.RWMutex
	servers  map[uuid.UUID]*discovery.ServerDescription
	onChange ChangeFunc
	store    *Store
	clock    clock.Clock
}

// NewServerList returns an empty list using the wall clock.
func NewServerList() *ServerList {
	return NewServerListWithClock(clock.New())
}

// NewServerListWithClock returns an empty list whose Prune uses clk.
func NewServerListWithClock(clk clock.Clock) *ServerList {
	return &ServerList{
		servers: make(map[uuid.UUID]*discovery.ServerDescription),
		clock:   clk,
	}
}

// OnChange registers the change callback. It runs on the goroutine that
// merged the entry, outside the list's lock.
func (l *ServerList) OnChange(fn ChangeFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// AttachStore makes every merged entry persist to s.
func (l *ServerList) AttachStore(s *Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store = s
}

// OnServerFound merges desc.
func (l *ServerList) OnServerFound(desc discovery.ServerDescription) {
	l.Merge(desc)
}

// Merge adds desc or folds it into the existing entry with the same ID.
// The newer sighting provides the fields, endpoints accumulate and IsLocal
// stays set once seen. It returns the merged entry.
func (l *ServerList) Merge(desc discovery.ServerDescription) discovery.ServerDescription {
	l.mu.Lock()
	cur, ok := l.servers[desc.ID]
	if !ok {
		cp := desc
		cp.EndPoints = slices.Clone(desc.EndPoints)
		cur = &cp
		l.servers[desc.ID] = cur
	} else {
		endpoints := mergeEndPoints(cur.EndPoints, desc.EndPoints)
		local := cur.IsLocal || desc.IsLocal
		if !desc.LastSeen.Before(cur.LastSeen) {
			*cur = desc
		}
		cur.EndPoints = endpoints
		cur.IsLocal = local
	}
	merged := *cur
	merged.EndPoints = slices.Clone(cur.EndPoints)
	onChange, store := l.onChange, l.store
	l.mu.Unlock()

	if store != nil {
		if err := store.Put(merged); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "ServerList.Merge",
				"server_id": merged.ID.String(),
				"error":     err.Error(),
			}).Warn("Failed to persist server")
		}
	}
	if onChange != nil {
		onChange(merged, false)
	}
	return merged
}

func mergeEndPoints(have, add []netip.AddrPort) []netip.AddrPort {
	out := slices.Clone(have)
	for _, ep := range add {
		if !slices.Contains(out, ep) {
			out = append(out, ep)
		}
	}
	return out
}

// Get returns the entry for id.
func (l *ServerList) Get(id uuid.UUID) (discovery.ServerDescription, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cur, ok := l.servers[id]
	if !ok {
		return discovery.ServerDescription{}, false
	}
	d := *cur
	d.EndPoints = slices.Clone(cur.EndPoints)
	return d, true
}

// Len returns the number of known servers.
func (l *ServerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.servers)
}

// List returns every entry sorted by name, then ID.
func (l *ServerList) List() []discovery.ServerDescription {
	l.mu.RLock()
	out := make([]discovery.ServerDescription, 0, len(l.servers))
	for _, cur := range l.servers {
		d := *cur
		d.EndPoints = slices.Clone(cur.EndPoints)
		out = append(out, d)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Prune removes entries not seen for maxAge and returns how many were removed.
func (l *ServerList) Prune(maxAge time.Duration) int {
	cutoff := l.clock.Now().Add(-maxAge)

	l.mu.Lock()
	var removed []discovery.ServerDescription
	for id, cur := range l.servers {
		if cur.LastSeen.Before(cutoff) {
			removed = append(removed, *cur)
			delete(l.servers, id)
		}
	}
	onChange := l.onChange
	l.mu.Unlock()

	if len(removed) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "ServerList.Prune",
			"removed":  len(removed),
			"max_age":  maxAge.String(),
		}).Debug("Pruned stale servers")
	}
	if onChange != nil {
		for _, d := range removed {
			onChange(d, true)
		}
	}
	return len(removed)
}
