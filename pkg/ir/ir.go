package ir

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/xplshn/dcc/pkg/dex"
)

type (
	ValueID int32
	InstrID int32
	BlockID int32
)

const (
	NoValue ValueID = -1
	NoInstr InstrID = -1
	NoBlock BlockID = -1
)

// ResultRegister is the pseudo register holding the value produced by an
// invoke or filled-new-array until the following move-result reads it.
const ResultRegister = -1

type Op int

const (
	OpNop Op = iota
	OpLoadConst
	OpMoveParam
	OpMove
	OpMoveResult
	OpMoveException
	OpArrayStore
	OpArrayLoad
	OpArrayLength
	OpNewArray
	OpFilledNewArray
	OpFillArray
	OpPutStatic
	OpPutField
	OpGetStatic
	OpGetField
	OpNewInstance
	OpInvoke
	OpReturn
	OpGoto
	OpSwitch
	OpCheckCast
	OpInstanceOf
	OpMonitorEnter
	OpMonitorExit
	OpThrow
	OpBinary
	OpCompare
	OpUnary
	OpCast
	OpIf
	OpIfZ
)

var opNames = [...]string{
	OpNop: "nop", OpLoadConst: "const", OpMoveParam: "param", OpMove: "move",
	OpMoveResult: "move-result", OpMoveException: "move-exception",
	OpArrayStore: "astore", OpArrayLoad: "aload", OpArrayLength: "alength",
	OpNewArray: "new-array", OpFilledNewArray: "filled-new-array", OpFillArray: "fill-array",
	OpPutStatic: "sput", OpPutField: "iput", OpGetStatic: "sget", OpGetField: "iget",
	OpNewInstance: "new", OpInvoke: "invoke", OpReturn: "return", OpGoto: "goto",
	OpSwitch: "switch", OpCheckCast: "check-cast", OpInstanceOf: "instance-of",
	OpMonitorEnter: "monitor-enter", OpMonitorExit: "monitor-exit", OpThrow: "throw",
	OpBinary: "binary", OpCompare: "cmp", OpUnary: "unary", OpCast: "cast",
	OpIf: "if", OpIfZ: "ifz",
}

func (op Op) String() string {
	if int(op) < len(opNames) { return opNames[op] }
	return fmt.Sprintf("op(%d)", int(op))
}

// ArithOp selects the operator of OpBinary, OpUnary and OpCompare.
type ArithOp int

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithRem
	ArithAnd
	ArithOr
	ArithXor
	ArithShl
	ArithShr
	ArithUShr
	ArithNeg
	ArithNot
	ArithCmp
	ArithCmpL
	ArithCmpG
)

var arithSymbols = [...]string{
	ArithAdd: "+", ArithSub: "-", ArithMul: "*", ArithDiv: "/", ArithRem: "%",
	ArithAnd: "&", ArithOr: "|", ArithXor: "^", ArithShl: "<<", ArithShr: ">>",
	ArithUShr: ">>>", ArithNeg: "-", ArithNot: "~", ArithCmp: "cmp", ArithCmpL: "cmpl",
	ArithCmpG: "cmpg",
}

func (a ArithOp) String() string { return arithSymbols[a] }

type CondOp int

const (
	CondEq CondOp = iota
	CondNe
	CondLt
	CondGe
	CondGt
	CondLe
)

var condSymbols = [...]string{CondEq: "==", CondNe: "!=", CondLt: "<", CondGe: ">=", CondGt: ">", CondLe: "<="}

func (c CondOp) String() string { return condSymbols[c] }

type InvokeKind int

const (
	InvokeVirtual InvokeKind = iota
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
)

func (k InvokeKind) String() string {
	return [...]string{"virtual", "super", "direct", "static", "interface"}[k]
}

type ValueKind uint8

const (
	KindVariable ValueKind = iota
	KindPhi
	KindConstant
)

type ConstKind uint8

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstClass
)

// Use names one consumer of a value: an instruction or a phi.
type Use struct {
	Instr InstrID
	Phi   ValueID
}

func InstrUse(id InstrID) Use { return Use{Instr: id, Phi: NoValue} }
func PhiUse(id ValueID) Use   { return Use{Instr: NoInstr, Phi: id} }
func (u Use) IsPhi() bool     { return u.Phi != NoValue }

type PhiOperand struct {
	Pred  BlockID
	Value ValueID
}

// Value is an SSA variable, a phi, or a literal constant operand. Register
// is ResultRegister for call results.
type Value struct {
	ID       ValueID
	Kind     ValueKind
	Register int
	Version  int
	Type     string
	Sealed   bool
	IsConst  bool

	Const ConstKind
	Int   int64
	Str   string

	Block    BlockID // phis only
	Operands []PhiOperand

	uses mapset.Set[Use]
}

func (v *Value) IsPhi() bool      { return v.Kind == KindPhi }
func (v *Value) IsConstant() bool { return v.Kind == KindConstant }
func (v *Value) HasUses() bool    { return v.uses.Cardinality() > 0 }
func (v *Value) NumUses() int     { return v.uses.Cardinality() }

func (v *Value) String() string {
	switch v.Kind {
	case KindConstant:
		switch v.Const {
		case ConstString: return fmt.Sprintf("%q", v.Str)
		case ConstClass: return v.Str + ".class"
		}
		return fmt.Sprintf("#%d", v.Int)
	}
	if v.Register == ResultRegister { return fmt.Sprintf("vResult_%d", v.Version) }
	return fmt.Sprintf("v%d_%d", v.Register, v.Version)
}

// Operand returns the phi operand coming from pred.
func (v *Value) Operand(pred BlockID) (ValueID, bool) {
	for _, op := range v.Operands {
		if op.Pred == pred { return op.Value, true }
	}
	return NoValue, false
}

type Case struct {
	Key    int32
	Target int // absolute code-unit offset
}

// Instruction is one IR operation. Operand layout by Op:
//
//	LoadConst     Result, Args{constant}
//	Move          Result, Args{src}        MoveResult: Args{result temp}
//	ArrayStore    Args{value, array, index}; Type = element type or ""
//	ArrayLoad     Result, Args{array, index}; Type = element type or ""
//	ArrayLength   Result, Args{array}
//	NewArray      Result, Args{size}; Type = array type
//	FilledNewArray Result, Args{elements...}; Type = array type
//	FillArray     Args{array}; Array
//	PutStatic     Args{value}; Field       PutField: Args{object, value}
//	GetStatic     Result; Field            GetField: Result, Args{object}
//	NewInstance   Result; Type
//	Invoke        Result or NoValue, Args{[this], args...}; Method, Invoke
//	Return        Args{} or Args{value}; Type = return type
//	Switch        Args{key}; Cases
//	CheckCast     Args{object}; Type      InstanceOf: Result, Args{object}; Type
//	MoveException Result; Type
//	Monitor*, Throw Args{object}
//	Binary/Compare Result, Args{a, b}; Arith; Type = operand type
//	Unary         Result, Args{a}; Arith; Type
//	Cast          Result, Args{a}; Type = destination, SrcType = source
//	If            Args{a, b}; Cond; Target   IfZ: Args{a}; Cond; Target
type Instruction struct {
	ID         InstrID
	Op         Op
	Block      BlockID
	Offset     int
	NextOffset int
	Result     ValueID
	Args       []ValueID

	Type    string
	SrcType string
	Field   *dex.FieldRef
	Method  *dex.MethodRef
	Invoke  InvokeKind
	Arith   ArithOp
	Cond    CondOp
	Target  int
	Cases   []Case
	Array   *dex.ArrayData

	Source *dex.Instruction
}

func (i *Instruction) HasResult() bool { return i.Result != NoValue }

// Block is a CFG node wrapping one decoded basic block.
type Block struct {
	ID        BlockID
	Start     int
	Src       *dex.Block
	RPO       int // reverse post-order number
	Num       int // emission order, the label number
	Instrs    []InstrID
	Filled    bool
	Sealed    bool
	InCatch   bool
	CatchType string

	Phis       []ValueID
	Incomplete []ValueID
	defs       map[int]ValueID
	resolving  map[int]bool
}

func (b *Block) String() string { return fmt.Sprintf("B%d@%x", b.ID, b.Start) }

// Def returns the current definition of register reg in b.
func (b *Block) Def(reg int) (ValueID, bool) { v, ok := b.defs[reg]; return v, ok }
func (b *Block) SetDef(reg int, v ValueID) { b.defs[reg] = v }

// Resolving marks reg as being looked up through b's predecessors.
func (b *Block) Resolving(reg int) bool          { return b.resolving[reg] }
func (b *Block) SetResolving(reg int, on bool) {
	if on { b.resolving[reg] = true } else { delete(b.resolving, reg) }
}

func (b *Block) RemovePhi(id ValueID) {
	b.Phis = removeValue(b.Phis, id)
}

func removeValue(s []ValueID, id ValueID) []ValueID {
	out := s[:0]
	for _, v := range s {
		if v != id { out = append(out, v) }
	}
	return out
}

type Handler struct {
	Type   string
	Target BlockID
}

// LandingPad dispatches a pending exception for every block sharing one try
// item. Handlers keep catch-clause order.
type LandingPad struct {
	Node      BlockID // first protected block reached; names the label
	Exception *dex.ExceptionAnalysis
	Handlers  []Handler
}

// Handler returns the target registered for typ.
func (lp *LandingPad) Handler(typ string) (BlockID, bool) {
	for _, h := range lp.Handlers {
		if h.Type == typ { return h.Target, true }
	}
	return NoBlock, false
}
