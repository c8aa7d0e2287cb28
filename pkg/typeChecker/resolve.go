package typeChecker

import (
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

// resolver applies the typing rule of one instruction or phi and reports
// whether any type changed.
type resolver struct {
	f       *ir.Func
	changed bool
	err     error
}

func (r *resolver) val(id ir.ValueID) *ir.Value { return r.f.Values[id] }

func (r *resolver) refine(id ir.ValueID, t string) {
	if r.err != nil { return }
	ok, err := Refine(r.f.Values[id], t)
	r.changed = r.changed || ok
	r.err = err
}

func (r *resolver) set(id ir.ValueID, t string) {
	if r.err != nil { return }
	r.changed = SetType(r.f.Values[id], t) || r.changed
}

// elemType is the element type an array access agrees on: the explicit
// variant type, else the merge of the array's element type with other.
func (r *resolver) elemType(in *ir.Instruction, array ir.ValueID, other string) string {
	if in.Type != "" { return in.Type }
	var fromArray string
	if t := r.val(array).Type; dex.IsArray(t) { fromArray = t[1:] }
	return dex.MergeType(fromArray, other)
}

func isShift(op ir.ArithOp) bool { return op == ir.ArithShl || op == ir.ArithShr || op == ir.ArithUShr }

func (r *resolver) instr(in *ir.Instruction) {
	f := r.f
	switch in.Op {
	case ir.OpMove, ir.OpMoveResult:
		src, dst := r.val(in.Args[0]), r.val(in.Result)
		t := dex.MergeType(src.Type, dst.Type)
		if t == "" { return }
		if src.Sealed {
			r.set(dst.ID, t)
		} else {
			r.refine(dst.ID, t)
			r.refine(src.ID, t)
		}
	case ir.OpMoveException:
		r.refine(in.Result, in.Type)
	case ir.OpArrayStore:
		value, array, index := in.Args[0], in.Args[1], in.Args[2]
		r.set(index, "I")
		if elem := r.elemType(in, array, r.val(value).Type); elem != "" {
			r.refine(value, elem)
			r.refine(array, "["+elem)
		}
	case ir.OpArrayLoad:
		array, index := in.Args[0], in.Args[1]
		if elem := r.elemType(in, array, r.val(in.Result).Type); elem != "" {
			r.refine(in.Result, elem)
			r.refine(array, "["+elem)
		}
		r.refine(index, "I")
	case ir.OpArrayLength:
		r.set(in.Result, "I")
	case ir.OpNewArray:
		r.set(in.Result, in.Type)
		r.set(in.Args[0], "I")
	case ir.OpFilledNewArray:
		r.set(in.Result, in.Type)
		for _, a := range in.Args {
			r.refine(a, in.Type[1:])
		}
	case ir.OpPutStatic:
		r.refine(in.Args[0], in.Field.Type)
	case ir.OpPutField:
		r.refine(in.Args[0], in.Field.Class)
		r.refine(in.Args[1], in.Field.Type)
	case ir.OpGetStatic:
		r.set(in.Result, in.Field.Type)
	case ir.OpGetField:
		r.set(in.Result, in.Field.Type)
		r.refine(in.Args[0], in.Field.Class)
	case ir.OpNewInstance:
		r.set(in.Result, in.Type)
	case ir.OpInvoke:
		args := in.Args
		if in.Invoke != ir.InvokeStatic {
			if r.val(args[0]).Type != in.Method.Class { r.refine(args[0], in.Method.Class) }
			args = args[1:]
		}
		for i, a := range args {
			r.refine(a, in.Method.Params[i])
		}
		if in.Result != ir.NoValue { r.set(in.Result, in.Method.Return) }
	case ir.OpReturn:
		if len(in.Args) > 0 && in.Type != "" { r.refine(in.Args[0], in.Type) }
	case ir.OpSwitch:
		r.refine(in.Args[0], "I")
	case ir.OpCheckCast:
		r.refine(in.Args[0], in.Type)
	case ir.OpInstanceOf:
		r.refine(in.Args[0], in.Type)
		r.set(in.Result, "Z")
	case ir.OpMonitorEnter, ir.OpMonitorExit:
		r.refine(in.Args[0], dex.TypeObject)
	case ir.OpThrow:
		r.set(in.Args[0], dex.TypeThrowable)
	case ir.OpBinary:
		r.refine(in.Result, in.Type)
		r.refine(in.Args[0], in.Type)
		// Shift distances are ints for every operand width.
		if isShift(in.Arith) { r.refine(in.Args[1], "I") } else { r.refine(in.Args[1], in.Type) }
	case ir.OpCompare:
		r.refine(in.Result, "I")
		r.refine(in.Args[0], in.Type)
		r.refine(in.Args[1], in.Type)
	case ir.OpUnary:
		r.set(in.Result, in.Type)
	case ir.OpCast:
		r.refine(in.Result, in.Type)
		r.refine(in.Args[0], in.SrcType)
	case ir.OpIf:
		a, b := r.val(in.Args[0]).Type, r.val(in.Args[1]).Type
		if dex.IsRef(a) && dex.IsRef(b) { return }
		t := dex.MergeType(a, b)
		r.refine(in.Args[0], t)
		r.refine(in.Args[1], t)
	case ir.OpLoadConst, ir.OpIfZ, ir.OpFillArray, ir.OpGoto, ir.OpNop, ir.OpMoveParam:
	default:
		r.err = ir.Structuref("no typing rule for %s", f.FormatInstr(in))
	}
}

// phi merges the types of every non-literal operand and pushes the result
// onto the phi and those operands.
func (r *resolver) phi(phi *ir.Value) {
	var same string
	for _, op := range phi.Operands {
		v := r.val(op.Value)
		if v.IsConstant() { continue }
		if same != "" && v.Type != same {
			same = dex.MergeType(same, v.Type)
		} else {
			same = v.Type
		}
	}
	t := same
	if t == "" { t = phi.Type }
	if t == "" { return }
	if phi.Type != t { r.refine(phi.ID, t) }
	for _, op := range phi.Operands {
		if !r.val(op.Value).IsConstant() { r.refine(op.Value, t) }
	}
}
