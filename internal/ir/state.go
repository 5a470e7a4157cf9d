package ir

import (
	"sort"

	"github.com/google/uuid"
)

// SnapshotVersion is the current state format version.
const SnapshotVersion = 1

// Snapshot is the persisted record of last-applied resource attributes,
// keyed by resource address. Serial increases on every save; lineage ties
// every serial to the snapshot's first creation.
type Snapshot struct {
	Version   int              `json:"version"`
	Serial    uint64           `json:"serial"`
	Lineage   string           `json:"lineage"`
	Checksum  string           `json:"checksum,omitempty"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

// NewSnapshot returns an empty snapshot with a fresh lineage.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SnapshotVersion, Lineage: uuid.NewString()}
}

// ResourceState is the last-applied record of one resource. Every value in
// Inputs and Outputs is concrete.
type ResourceState struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Provider string         `json:"provider"`
	ID       string         `json:"id"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	// Dependencies records the addresses this resource referred to when it
	// was applied, so destroy ordering works without the declaration.
	Dependencies []string `json:"dependencies,omitempty"`
}

func (rs *ResourceState) Addr() string {
	return rs.Type + "." + rs.Name
}

// Resource returns the entry at addr, or nil.
func (s *Snapshot) Resource(addr string) *ResourceState {
	for _, rs := range s.Resources {
		if rs.Addr() == addr {
			return rs
		}
	}
	return nil
}

// Put inserts or replaces the entry for rs.Addr(). The list stays sorted by
// address so serialized snapshots are stable.
func (s *Snapshot) Put(rs *ResourceState) {
	addr := rs.Addr()
	for i, cur := range s.Resources {
		if cur.Addr() == addr {
			s.Resources[i] = rs
			return
		}
	}
	s.Resources = append(s.Resources, rs)
	sort.Slice(s.Resources, func(i, j int) bool {
		return s.Resources[i].Addr() < s.Resources[j].Addr()
	})
}

// Remove drops the entry at addr if present.
func (s *Snapshot) Remove(addr string) {
	for i, cur := range s.Resources {
		if cur.Addr() == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}
