package cfg

import (
	"github.com/xplshn/dcc/pkg/ir"
)

// VerifySSA checks that every instruction operand is defined on all paths
// reaching its use and that each phi carries one operand per predecessor,
// defined in a block dominating that predecessor.
func VerifySSA(f *ir.Func) error {
	g := f.Graph
	if g.IDom == nil { g.IDom = Dominators(g, len(f.Blocks)) }

	type site struct {
		block ir.BlockID
		index int // -1 for parameters and phis: defined at block entry
	}
	defs := make(map[ir.ValueID]site)
	for _, id := range f.MoveParams {
		defs[f.Instrs[id].Result] = site{g.Entry, -1}
	}
	for _, b := range f.Blocks {
		for _, p := range b.Phis {
			defs[p] = site{b.ID, -1}
		}
		for i, id := range b.Instrs {
			if in := f.Instrs[id]; in.Result != ir.NoValue { defs[in.Result] = site{b.ID, i} }
		}
	}

	dominated := func(v ir.ValueID, b ir.BlockID, index int) bool {
		if f.Values[v].IsConstant() { return true }
		d, ok := defs[v]
		if !ok { return false }
		if d.block == b { return d.index < index }
		return g.Dominates(d.block, b)
	}

	for _, b := range f.Blocks {
		for i, id := range b.Instrs {
			in := f.Instrs[id]
			for _, a := range in.Args {
				if !dominated(a, b.ID, i) {
					return ir.Structuref("%s: operand %s of %q is not dominated by its definition", b, f.Values[a], f.FormatInstr(in))
				}
			}
		}
		preds := g.AllPreds(b.ID)
		for _, p := range b.Phis {
			phi := f.Values[p]
			if len(phi.Operands) != len(preds) {
				return ir.Structuref("%s: phi %s has %d operands for %d predecessors", b, phi, len(phi.Operands), len(preds))
			}
			for _, pred := range preds {
				v, ok := phi.Operand(pred)
				if !ok { return ir.Structuref("%s: phi %s misses predecessor %s", b, phi, f.Blocks[pred]) }
				if !dominated(v, pred, len(f.Blocks[pred].Instrs)) {
					return ir.Structuref("%s: phi %s operand %s does not reach %s", b, phi, f.Values[v], f.Blocks[pred])
				}
			}
		}
	}
	return nil
}
