// Package names binds user-visible object names to registry entities.
//
// Auto-generated names are a stable prefix plus a numeric suffix. Every name
// ever issued stays in a history shared by a table and its duplicates, so a
// freed suffix is never handed out again, neither in the table nor in any
// nested scope.
package names

import (
	"strconv"
	"strings"

	"github.com/chazu/brepseq/pkg/topo"
)

// Entry is one binding in insertion order.
type Entry struct {
	Name string        `json:"name" yaml:"name" msgpack:"name"`
	ID   topo.EntityID `json:"id" yaml:"id" msgpack:"id"`
}

type history struct {
	// highest suffix issued per prefix
	max  map[string]int
	seen map[string]bool
}

// Table maps names to entity ids. It is not safe for concurrent use.
type Table struct {
	ids   map[string]topo.EntityID
	order []string
	hist  *history
}

// New returns an empty table with a fresh history.
func New() *Table {
	return &Table{
		ids:  make(map[string]topo.EntityID),
		hist: &history{max: make(map[string]int), seen: make(map[string]bool)},
	}
}

// Prefix strips the trailing digits of name.
func Prefix(name string) string {
	return strings.TrimRightFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
}

func (h *history) record(name string) {
	h.seen[name] = true
	p := Prefix(name)
	if p == name {
		return
	}
	n, err := strconv.Atoi(name[len(p):])
	if err != nil {
		return
	}
	if n > h.max[p] {
		h.max[p] = n
	}
}

func (h *history) next(prefix string) string {
	n := h.max[prefix] + 1
	for {
		name := prefix + strconv.Itoa(n)
		if !h.seen[name] {
			return name
		}
		n++
	}
}

// AddObject binds id under the next free name of the family of desired and
// returns that name. "ln", "ln7" and "ln" all draw from family "ln".
func (t *Table) AddObject(id topo.EntityID, desired string) string {
	name := t.hist.next(Prefix(desired))
	t.set(name, id)
	return name
}

// Bind binds name to id, replacing an existing binding of that name.
func (t *Table) Bind(name string, id topo.EntityID) {
	t.set(name, id)
}

func (t *Table) set(name string, id topo.EntityID) {
	if _, ok := t.ids[name]; !ok {
		t.order = append(t.order, name)
	}
	t.ids[name] = id
	t.hist.record(name)
}

// Lookup returns the id bound to name.
func (t *Table) Lookup(name string) (topo.EntityID, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Delete releases name. Its suffix stays reserved.
func (t *Table) Delete(name string) bool {
	if _, ok := t.ids[name]; !ok {
		return false
	}
	delete(t.ids, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// DeleteID releases every name bound to id and returns them.
func (t *Table) DeleteID(id topo.EntityID) []string {
	var out []string
	for _, n := range t.order {
		if t.ids[n] == id {
			out = append(out, n)
		}
	}
	for _, n := range out {
		t.Delete(n)
	}
	return out
}

// NameOf returns the first name bound to id.
func (t *Table) NameOf(id topo.EntityID) (string, bool) {
	for _, n := range t.order {
		if t.ids[n] == id {
			return n, true
		}
	}
	return "", false
}

// Names lists the bound names in insertion order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Entries lists the bindings in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.order))
	for i, n := range t.order {
		out[i] = Entry{Name: n, ID: t.ids[n]}
	}
	return out
}

// Len returns the number of bound names.
func (t *Table) Len() int { return len(t.ids) }

// Clear drops every binding. The history is kept.
func (t *Table) Clear() {
	t.ids = make(map[string]topo.EntityID)
	t.order = nil
}

// Duplicate returns a copy of the bindings sharing this table's history.
func (t *Table) Duplicate() *Table {
	d := &Table{
		ids:   make(map[string]topo.EntityID, len(t.ids)),
		order: append([]string(nil), t.order...),
		hist:  t.hist,
	}
	for n, id := range t.ids {
		d.ids[n] = id
	}
	return d
}
