// Package ssa turns the decoded blocks of a method into SSA form while it
// translates them, following Braun et al., "Simple and Efficient
// Construction of Static Single Assignment Form".
package ssa

import (
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/typeChecker"
	"github.com/xplshn/dcc/pkg/util"
)

// Builder holds the per-method construction state. The graph must already
// be built by cfg.Build.
type Builder struct {
	f   *ir.Func
	g   *ir.Graph
	cur *ir.Block
	log *util.Logger
}

func NewBuilder(f *ir.Func, log *util.Logger) *Builder {
	return &Builder{f: f, g: f.Graph, log: log}
}

// Build defines the parameters, fills every block breadth-first from the
// entry and prunes trivial phis.
func Build(f *ir.Func, log *util.Logger) error {
	return NewBuilder(f, log).Build()
}

func (b *Builder) Build() error {
	if err := b.defineParams(); err != nil { return err }

	entry := b.f.Entry()
	entry.Sealed = true
	todo := []ir.BlockID{entry.ID}
	for len(todo) > 0 {
		blk := b.f.Blocks[todo[0]]
		todo = todo[1:]
		if blk.Filled { continue }
		b.cur = blk
		if err := b.fill(blk); err != nil { return err }
		if err := b.trySeal(blk); err != nil { return err }
		todo = append(todo, b.g.AllSuccs(blk.ID)...)
	}
	return RemoveTrivialPhis(b.f)
}

// defineParams binds the incoming registers at the entry. The receiver
// sits at registers-ins, arguments follow; wide arguments take two
// registers.
func (b *Builder) defineParams() error {
	f, m := b.f, b.f.Method
	entry := f.Entry()
	reg := m.Registers - m.Ins
	bind := func(t string) {
		v := f.NewVariable(reg)
		typeChecker.SetType(v, t)
		in := f.NewInstr(ir.OpMoveParam, v.ID)
		in.Type = t
		f.MoveParams = append(f.MoveParams, in.ID)
		f.ParamValues = append(f.ParamValues, v.ID)
		f.Vars = append(f.Vars, v.ID)
		entry.SetDef(reg, v.ID)
	}
	if !f.Static {
		bind(f.Class)
		reg++
	}
	for _, p := range f.Params {
		bind(p)
		reg += dex.TypeSize(p)
	}
	return nil
}

func (b *Builder) trySeal(blk *ir.Block) error {
	for _, succ := range b.g.AllSuccs(blk.ID) {
		ready := true
		for _, p := range b.g.AllPreds(succ) {
			if !b.f.Blocks[p].Filled {
				ready = false
				break
			}
		}
		if ready {
			if err := b.seal(b.f.Blocks[succ]); err != nil { return err }
		}
	}
	return nil
}

// seal completes the phis created while blk still had unknown
// predecessors.
func (b *Builder) seal(blk *ir.Block) error {
	if blk.Sealed && len(blk.Incomplete) == 0 { return nil }
	blk.Sealed = true
	for _, id := range blk.Incomplete {
		phi := b.f.Values[id]
		for _, pred := range b.g.AllPreds(blk.ID) {
			v, err := b.ReadVariable(phi.Register, b.f.Blocks[pred])
			if err != nil { return err }
			b.f.AddPhiOperand(phi, pred, v)
		}
		blk.Phis = append(blk.Phis, id)
	}
	blk.Incomplete = nil
	return nil
}

// WriteVariable defines a fresh version of reg in the current block.
func (b *Builder) WriteVariable(reg int) *ir.Value {
	v := b.f.NewVariable(reg)
	b.cur.SetDef(reg, v.ID)
	return v
}

func (b *Builder) WriteResult() *ir.Value { return b.WriteVariable(ir.ResultRegister) }

// ReadResult returns the pending invoke or filled-new-array value.
func (b *Builder) ReadResult() (*ir.Value, error) {
	id, err := b.ReadVariable(ir.ResultRegister, b.cur)
	if err != nil { return nil, err }
	v := b.f.Values[id]
	if v.IsPhi() { return nil, ir.Structuref("invoke result is a phi node: %s", v) }
	return v, nil
}

// Read is ReadVariable in the current block.
func (b *Builder) Read(reg int) (*ir.Value, error) {
	id, err := b.ReadVariable(reg, b.cur)
	if err != nil { return nil, err }
	return b.f.Values[id], nil
}

func (b *Builder) ReadVariable(reg int, blk *ir.Block) (ir.ValueID, error) {
	if v, ok := blk.Def(reg); ok { return v, nil }
	return b.readRecursive(reg, blk)
}

func (b *Builder) readRecursive(reg int, blk *ir.Block) (ir.ValueID, error) {
	f := b.f
	preds := b.g.AllPreds(blk.ID)
	var v ir.ValueID
	switch {
	case !blk.Sealed:
		phi := f.NewPhi(blk.ID, reg)
		blk.Incomplete = append(blk.Incomplete, phi.ID)
		v = phi.ID
	case len(preds) == 0:
		return ir.NoValue, ir.Structuref("read of undefined register v%d in %s", reg, blk)
	case len(preds) == 1 && !blk.Resolving(reg):
		blk.SetResolving(reg, true)
		var err error
		v, err = b.ReadVariable(reg, f.Blocks[preds[0]])
		blk.SetResolving(reg, false)
		if err != nil { return ir.NoValue, err }
	default:
		// Also reached when a single-predecessor chain loops back here.
		phi := f.NewPhi(blk.ID, reg)
		blk.SetDef(reg, phi.ID)
		blk.Phis = append(blk.Phis, phi.ID)
		for _, p := range preds {
			in, err := b.ReadVariable(reg, f.Blocks[p])
			if err != nil { return ir.NoValue, err }
			f.AddPhiOperand(phi, p, in)
		}
		v = phi.ID
	}
	blk.SetDef(reg, v)
	return v, nil
}

// RemoveTrivialPhis replaces every phi whose operands are one value besides
// itself with that value, until nothing changes. A phi fed only by itself
// reads a register that is never written and is rejected.
func RemoveTrivialPhis(f *ir.Func) error {
	for changed := true; changed; {
		changed = false
		for _, id := range f.Graph.RPO {
			blk := f.Blocks[id]
			for _, p := range append([]ir.ValueID(nil), blk.Phis...) {
				removed, err := removeTrivial(f, f.Values[p])
				if err != nil { return err }
				changed = changed || removed
			}
		}
	}
	return nil
}

func removeTrivial(f *ir.Func, phi *ir.Value) (bool, error) {
	same := ir.NoValue
	for _, op := range phi.Operands {
		if op.Value == same || op.Value == phi.ID { continue }
		if same != ir.NoValue { return false, nil }
		same = op.Value
	}
	if same == ir.NoValue { return false, ir.Structuref("read of undefined register v%d: %s only merges itself", phi.Register, phi) }

	for _, op := range phi.Operands {
		f.RemoveUse(op.Value, ir.PhiUse(phi.ID))
	}
	f.ReplaceAllUses(phi.ID, same)
	f.Blocks[phi.Block].RemovePhi(phi.ID)
	return true, nil
}
