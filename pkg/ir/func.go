package ir

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/xplshn/dcc/pkg/dex"
)

// Func is the per-method arena. Values, instructions and blocks are
// addressed by index and live exactly as long as the Func.
type Func struct {
	Method *dex.Method
	Class  string
	Name   string
	Proto  string
	Params []string
	Return string
	Static bool

	Values []*Value
	Instrs []*Instruction
	Blocks []*Block
	Graph  *Graph

	versions map[int]int

	// Filled in by the SSA builder and type inference.
	ParamValues []ValueID
	MoveParams  []InstrID
	Vars        []ValueID
	Classes     []string
	Fields      []string
	Methods     []string
}

func NewFunc(m *dex.Method) *Func {
	return &Func{
		Method: m,
		Class:  m.Class.Name,
		Name:   m.Name,
		Proto:  m.Proto,
		Params: m.Params,
		Return: m.Return,
		Static: m.IsStatic(),
		Graph:  NewGraph(),

		versions: make(map[int]int),
	}
}

func (f *Func) Value(id ValueID) *Value            { return f.Values[id] }
func (f *Func) Instr(id InstrID) *Instruction      { return f.Instrs[id] }
func (f *Func) Block(id BlockID) *Block            { return f.Blocks[id] }
func (f *Func) TypeOf(id ValueID) string           { return f.Values[id].Type }
func (f *Func) Entry() *Block                      { return f.Blocks[f.Graph.Entry] }
func (f *Func) Result(i *Instruction) *Value       { if i.Result == NoValue { return nil }; return f.Values[i.Result] }
func (f *Func) Arg(i *Instruction, n int) *Value   { return f.Values[i.Args[n]] }

func (f *Func) newValue(v *Value) *Value {
	v.ID = ValueID(len(f.Values))
	v.uses = mapset.NewThreadUnsafeSet[Use]()
	f.Values = append(f.Values, v)
	return v
}

// nextVersion hands out SSA version numbers per register; phis and plain
// variables share the counter.
func (f *Func) nextVersion(reg int) int {
	v := f.versions[reg]
	f.versions[reg] = v + 1
	return v
}

func (f *Func) NewVariable(reg int) *Value {
	return f.newValue(&Value{Kind: KindVariable, Register: reg, Version: f.nextVersion(reg), Block: NoBlock})
}

func (f *Func) NewPhi(block BlockID, reg int) *Value {
	return f.newValue(&Value{Kind: KindPhi, Register: reg, Version: f.nextVersion(reg), Block: block})
}

// NewConstant creates a literal operand. A non-empty typ is applied with
// refinement semantics, so it does not seal the constant.
func (f *Func) NewConstant(kind ConstKind, n int64, s, typ string) *Value {
	v := f.newValue(&Value{Kind: KindConstant, Register: ResultRegister, Block: NoBlock, IsConst: true, Const: kind, Int: n, Str: s})
	if typ != "" { v.Type = typ }
	return v
}

func (f *Func) NewBlock(src *dex.Block) *Block {
	b := &Block{
		ID: BlockID(len(f.Blocks)), Src: src, Start: -1,
		defs: make(map[int]ValueID), resolving: make(map[int]bool),
	}
	if src != nil { b.Start = src.Start }
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewInstr allocates an instruction that is not yet placed in a block.
func (f *Func) NewInstr(op Op, result ValueID, args ...ValueID) *Instruction {
	in := &Instruction{ID: InstrID(len(f.Instrs)), Op: op, Result: result, Block: NoBlock}
	f.Instrs = append(f.Instrs, in)
	for _, a := range args {
		f.AddArg(in, a)
	}
	return in
}

// AddArg appends an operand and records the use.
func (f *Func) AddArg(in *Instruction, v ValueID) {
	in.Args = append(in.Args, v)
	if f.Values[v].Kind != KindConstant || in.Op != OpLoadConst {
		f.Values[v].uses.Add(InstrUse(in.ID))
	}
}

func (f *Func) Append(b *Block, in *Instruction) {
	in.Block = b.ID
	b.Instrs = append(b.Instrs, in.ID)
}

// InsertBefore places in ahead of the instruction at in b.
func (f *Func) InsertBefore(b *Block, at InstrID, in *Instruction) {
	in.Block = b.ID
	for i, id := range b.Instrs {
		if id == at {
			b.Instrs = append(b.Instrs[:i], append([]InstrID{in.ID}, b.Instrs[i:]...)...)
			return
		}
	}
	b.Instrs = append(b.Instrs, in.ID)
}

// Remove detaches in from its block and drops the uses it holds.
func (f *Func) Remove(in *Instruction) {
	if in.Block != NoBlock {
		b := f.Blocks[in.Block]
		out := b.Instrs[:0]
		for _, id := range b.Instrs {
			if id != in.ID { out = append(out, id) }
		}
		b.Instrs = out
	}
	for _, a := range in.Args {
		f.Values[a].uses.Remove(InstrUse(in.ID))
	}
	in.Block = NoBlock
}

func (f *Func) AddPhiOperand(phi *Value, pred BlockID, v ValueID) {
	for i, op := range phi.Operands {
		if op.Pred == pred {
			phi.Operands[i].Value = v
			f.Values[v].uses.Add(PhiUse(phi.ID))
			return
		}
	}
	phi.Operands = append(phi.Operands, PhiOperand{Pred: pred, Value: v})
	f.Values[v].uses.Add(PhiUse(phi.ID))
}

// Uses lists the consumers of v, instructions first, each group in creation
// order.
func (f *Func) Uses(v ValueID) []Use {
	uses := f.Values[v].uses.ToSlice()
	sort.Slice(uses, func(i, j int) bool {
		a, b := uses[i], uses[j]
		if a.IsPhi() != b.IsPhi() { return !a.IsPhi() }
		if a.IsPhi() { return a.Phi < b.Phi }
		return a.Instr < b.Instr
	})
	return uses
}

func (f *Func) RemoveUse(v ValueID, u Use) { f.Values[v].uses.Remove(u) }

// ReplaceUse rewires every operand slot of user that holds old to new.
func (f *Func) ReplaceUse(u Use, old, new ValueID) {
	if u.IsPhi() {
		phi := f.Values[u.Phi]
		for i, op := range phi.Operands {
			if op.Value == old { phi.Operands[i].Value = new }
		}
	} else {
		in := f.Instrs[u.Instr]
		for i, a := range in.Args {
			if a == old { in.Args[i] = new }
		}
	}
	f.Values[old].uses.Remove(u)
	f.Values[new].uses.Add(u)
}

// ReplaceAllUses moves every consumer of old over to new.
func (f *Func) ReplaceAllUses(old, new ValueID) {
	for _, u := range f.Uses(old) {
		f.ReplaceUse(u, old, new)
	}
	f.Values[old].uses.Clear()
}

// Phis returns every phi still attached to a block.
func (f *Func) Phis() []*Value {
	var out []*Value
	for _, b := range f.Blocks {
		for _, id := range b.Phis {
			out = append(out, f.Values[id])
		}
	}
	return out
}

