// Package topo keeps the stable integer identities of kernel sub-shapes.
//
// Each topological kind has its own Registry. Registries are partitioned
// into generation groups: group 0 is the root model and every local frame
// pushed on the model opens a new group. Indices come from one counter per
// kind, shared by all groups, and are never reused.
package topo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/chazu/brepseq/pkg/kernel"
)

// EntityID identifies one registered sub-shape.
type EntityID struct {
	Kind  kernel.Kind `json:"kind" msgpack:"kind"`
	Group int         `json:"group" msgpack:"group"`
	Index int         `json:"index" msgpack:"index"`
}

var idPrefix = map[kernel.Kind]string{
	kernel.Vertex: "p",
	kernel.Edge:   "l",
	kernel.Wire:   "w",
	kernel.Face:   "f",
	kernel.Shell:  "sh",
	kernel.Solid:  "v",
}

// String renders the id the way bare references are written ("l3"). Ids in
// a local group carry the group ("l3@1").
func (id EntityID) String() string {
	s := idPrefix[id.Kind] + strconv.Itoa(id.Index)
	if id.Group != 0 {
		s += "@" + strconv.Itoa(id.Group)
	}
	return s
}

// IsZero reports whether id was never issued.
func (id EntityID) IsZero() bool { return id.Index == 0 }

// Oriented is an entity reference with a direction, written "-l3" when
// reversed.
type Oriented struct {
	ID       EntityID `json:"id" msgpack:"id"`
	Reversed bool     `json:"reversed,omitempty" msgpack:"reversed,omitempty"`
}

func (o Oriented) String() string {
	if o.Reversed {
		return "-" + o.ID.String()
	}
	return o.ID.String()
}

// Less orders ids Solid < Shell < Face < Wire < Edge < Vertex, then by
// group and index.
func Less(a, b EntityID) bool {
	if a.Kind != b.Kind {
		return a.Kind > b.Kind
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Index < b.Index
}

// Sort orders ids in place with Less.
func Sort(ids []EntityID) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// HighestDim keeps only the ids of the highest dimension present.
func HighestDim(ids []EntityID) []EntityID {
	best := -1
	for _, id := range ids {
		best = max(best, id.Kind.Dim())
	}
	var out []EntityID
	for _, id := range ids {
		if id.Kind.Dim() == best {
			out = append(out, id)
		}
	}
	return out
}

var refPattern = regexp.MustCompile(`^(-?)([plfv])(\d+)$`)

// ParseRef parses a bare typed reference such as "p3", "l3", "f3", "v3" or
// "-l3". The group is left at 0; callers resolve it.
func ParseRef(s string) (Oriented, bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return Oriented{}, false
	}
	idx, err := strconv.Atoi(m[3])
	if err != nil || idx == 0 {
		return Oriented{}, false
	}
	var kind kernel.Kind
	switch m[2] {
	case "p":
		kind = kernel.Vertex
	case "l":
		kind = kernel.Edge
	case "f":
		kind = kernel.Face
	case "v":
		kind = kernel.Solid
	}
	return Oriented{ID: EntityID{Kind: kind, Index: idx}, Reversed: m[1] == "-"}, true
}

// SyncMode selects the passes of Registry.Synchronize.
type SyncMode uint8

const (
	// SyncRemove drops slots whose handle is no longer live.
	SyncRemove SyncMode = 1 << iota
	// SyncAdd registers live handles not yet known.
	SyncAdd
	// SyncBoth runs the removal pass, then the addition pass.
	SyncBoth = SyncRemove | SyncAdd
)

func (m SyncMode) String() string {
	switch m {
	case SyncRemove:
		return "remove"
	case SyncAdd:
		return "add"
	case SyncBoth:
		return "both"
	}
	return fmt.Sprintf("SyncMode(%d)", uint8(m))
}
