package codegen

import (
	"fmt"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/util"
)

type slot struct {
	reg  int
	kind string
}

// RegisterAllocator maps SSA values onto native locals. Every version of a
// Dalvik register that has the same C declaration type shares one local,
// which is what makes phis free: their operands already live in the phi's
// local.
type RegisterAllocator struct {
	slots  map[slot]int
	values map[ir.ValueID]int
	order  []slot
}

// NewRegisterAllocator numbers the locals in the order f.Vars lists them.
func NewRegisterAllocator(f *ir.Func, log *util.Logger) *RegisterAllocator {
	ra := &RegisterAllocator{slots: make(map[slot]int), values: make(map[ir.ValueID]int)}
	for _, id := range f.Vars {
		v := f.Values[id]
		s := slot{v.Register, dex.CDeclType(v.Type)}
		n, ok := ra.slots[s]
		if !ok {
			n = len(ra.order)
			ra.slots[s] = n
			ra.order = append(ra.order, s)
		}
		ra.values[id] = n
		log.Debugf("%s -> v%d:%s", v, n, s.kind)
	}
	return ra
}

// Slot returns the local number of v.
func (ra *RegisterAllocator) Slot(v ir.ValueID) (int, bool) {
	n, ok := ra.values[v]
	return n, ok
}

// Len is the number of distinct locals.
func (ra *RegisterAllocator) Len() int { return len(ra.order) }

// Kind is the C declaration type of local n.
func (ra *RegisterAllocator) Kind(n int) string { return ra.order[n].kind }

// tmpnames hands out cls0, cls1, ... for the class, field and method
// handles a method caches.
type tmpnames struct {
	prefix string
	names  map[string]int
}

func newTmpnames(prefix string, items []string) *tmpnames {
	t := &tmpnames{prefix: prefix, names: make(map[string]int)}
	for _, it := range items {
		if _, ok := t.names[it]; !ok { t.names[it] = len(t.names) }
	}
	return t
}

func (t *tmpnames) name(item string) (string, bool) {
	n, ok := t.names[item]
	if !ok { return "", false }
	return fmt.Sprintf("%s%d", t.prefix, n), true
}

func (t *tmpnames) all() []string {
	out := make([]string, len(t.names))
	for _, n := range t.names {
		out[n] = fmt.Sprintf("%s%d", t.prefix, n)
	}
	return out
}
