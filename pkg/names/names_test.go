package names

import (
	"fmt"
	"testing"

	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edge(i int) topo.EntityID { return topo.EntityID{Kind: kernel.Edge, Index: i} }

func TestLineNamingSkipsDeleted(t *testing.T) {
	tbl := New()
	for i := 1; i <= 3; i++ {
		assert.Equal(t, fmt.Sprintf("ln%d", i), tbl.AddObject(edge(i), "ln"))
	}
	require.True(t, tbl.Delete("ln2"))
	assert.Equal(t, "ln4", tbl.AddObject(edge(4), "ln"))
	assert.Equal(t, []string{"ln1", "ln3", "ln4"}, tbl.Names())
}

func TestPrefix(t *testing.T) {
	tests := map[string]string{
		"ln":    "ln",
		"ln12":  "ln",
		"bx1":   "bx",
		"a1b2":  "a1b",
		"123":   "",
		"wp_ex": "wp_ex",
	}
	for in, want := range tests {
		assert.Equal(t, want, Prefix(in), in)
	}
}

func TestAddObjectNeverCollides(t *testing.T) {
	tbl := New()
	seen := map[string]bool{}
	prefixes := []string{"bx", "bx7", "ln", "bx", "ln2", "bx3"}
	for i := 0; i < 60; i++ {
		name := tbl.AddObject(edge(i+1), prefixes[i%len(prefixes)])
		require.False(t, seen[name], "name %s reused", name)
		seen[name] = true
		if i%4 == 0 {
			tbl.Delete(name)
		}
	}
	// an explicit binding is part of the history as well
	tbl.Bind("ln100", edge(500))
	assert.Equal(t, "ln101", tbl.AddObject(edge(501), "ln"))
}

func TestBindOutOfOrderSuffix(t *testing.T) {
	tbl := New()
	tbl.Bind("bx5", edge(1))
	tbl.Bind("bx", edge(2))
	assert.Equal(t, "bx6", tbl.AddObject(edge(3), "bx"))
}

func TestDuplicateSharesHistory(t *testing.T) {
	outer := New()
	outer.AddObject(edge(1), "ln")
	inner := outer.Duplicate()
	inner.Clear()
	assert.Equal(t, 0, inner.Len())
	assert.Equal(t, 1, outer.Len())

	assert.Equal(t, "ln2", inner.AddObject(edge(2), "ln"))
	assert.Equal(t, "ln3", outer.AddObject(edge(3), "ln"))
}

func TestEntriesAndRebind(t *testing.T) {
	tbl := New()
	tbl.AddObject(edge(1), "ln")
	tbl.AddObject(edge(2), "ln")
	tbl.Bind("ln1", edge(9))

	want := []Entry{{Name: "ln1", ID: edge(9)}, {Name: "ln2", ID: edge(2)}}
	if diff := cmp.Diff(want, tbl.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	n, ok := tbl.NameOf(edge(2))
	require.True(t, ok)
	assert.Equal(t, "ln2", n)

	assert.Equal(t, []string{"ln1"}, tbl.DeleteID(edge(9)))
	_, ok = tbl.Lookup("ln1")
	assert.False(t, ok)
	assert.False(t, tbl.Delete("ln1"))
}
