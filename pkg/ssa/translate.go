package ssa

import (
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/typeChecker"
)

// handler translates one decoded instruction into the current block.
type handler func(b *Builder, ins *dex.Instruction) (*ir.Instruction, error)

var handlers map[dex.Opcode]handler

func init() {
	handlers = make(map[dex.Opcode]handler)
	reg := func(h handler, ops ...dex.Opcode) {
		for _, op := range ops {
			handlers[op] = h
		}
	}
	span := func(lo, hi dex.Opcode) []dex.Opcode {
		var ops []dex.Opcode
		for op := lo; op <= hi; op++ {
			ops = append(ops, op)
		}
		return ops
	}

	reg(nop, dex.OpNop)
	reg(move, span(dex.OpMove, dex.OpMoveObject16)...)
	reg(moveResult, dex.OpMoveResult, dex.OpMoveResultWide, dex.OpMoveResultObject)
	reg(moveException, dex.OpMoveException)
	reg(returnVoid, dex.OpReturnVoid)
	reg(returnValue, dex.OpReturn, dex.OpReturnWide, dex.OpReturnObject)
	reg(constant, span(dex.OpConst4, dex.OpConstWideHigh16)...)
	reg(constString, dex.OpConstString, dex.OpConstStringJumbo)
	reg(constClass, dex.OpConstClass)
	reg(monitor(ir.OpMonitorEnter), dex.OpMonitorEnter)
	reg(monitor(ir.OpMonitorExit), dex.OpMonitorExit)
	reg(checkCast, dex.OpCheckCast)
	reg(instanceOf, dex.OpInstanceOf)
	reg(arrayLength, dex.OpArrayLength)
	reg(newInstance, dex.OpNewInstance)
	reg(newArray, dex.OpNewArray)
	reg(filledNewArray, dex.OpFilledNewArray, dex.OpFilledNewArrayRng)
	reg(fillArrayData, dex.OpFillArrayData)
	reg(throw, dex.OpThrow)
	reg(gotoOp, span(dex.OpGoto, dex.OpGoto32)...)
	reg(switchOp, dex.OpPackedSwitch, dex.OpSparseSwitch)
	reg(compare, span(dex.OpCmplFloat, dex.OpCmpLong)...)
	reg(ifOp, span(dex.OpIfEq, dex.OpIfLe)...)
	reg(ifZero, span(dex.OpIfEqz, dex.OpIfLez)...)
	reg(arrayGet, span(dex.OpAget, dex.OpAgetShort)...)
	reg(arrayPut, span(dex.OpAput, dex.OpAputShort)...)
	reg(instanceGet, span(dex.OpIget, dex.OpIgetShort)...)
	reg(instancePut, span(dex.OpIput, dex.OpIputShort)...)
	reg(staticGet, span(dex.OpSget, dex.OpSgetShort)...)
	reg(staticPut, span(dex.OpSput, dex.OpSputShort)...)
	reg(invoke, span(dex.OpInvokeVirtual, dex.OpInvokeInterface)...)
	reg(invoke, span(dex.OpInvokeVirtualRange, dex.OpInvokeInterfaceRng)...)
	reg(unary, span(dex.OpNegInt, dex.OpNegInt+5)...)
	reg(cast, span(dex.OpNegInt+6, dex.OpIntToShort)...)
	reg(binary, span(dex.OpAddInt, dex.OpRemDouble)...)
	reg(binary2Addr, span(dex.OpAddInt2Addr, dex.OpRemDouble2Addr)...)
	reg(binaryLit, span(dex.OpAddIntLit16, dex.OpUshrIntLit8)...)
}

// fill translates every instruction of blk and marks it filled.
func (b *Builder) fill(blk *ir.Block) error {
	f := b.f
	var code []*dex.Instruction
	if blk.Src != nil { code = blk.Src.Instructions }
	for _, ins := range code {
		h, ok := handlers[ins.Op]
		if !ok { return ir.Unsupportedf("unsupported instruction %s at %#x", ins.Name(), ins.Offset) }
		in, err := h(b, ins)
		if err != nil { return err }
		in.Offset, in.NextOffset, in.Source = ins.Offset, ins.NextOffset(), ins
		f.Append(blk, in)

		// A reference loaded from an array or a field lands in a temporary
		// first, so the destination register may share a local with the
		// array or object operand without the operand's release clobbering it.
		if ins.Op == dex.OpAgetObject || ins.Op == dex.OpIgetObject {
			val := in.Result
			tmp := b.WriteResult()
			in.Result = tmp.ID
			f.Append(blk, f.NewInstr(ir.OpMoveResult, val, tmp.ID))
		}
	}
	blk.Filled = true
	b.log.Debugf("filled %s with %d instructions", blk, len(blk.Instrs))
	return nil
}

func refine(v *ir.Value, t string) error {
	_, err := typeChecker.Refine(v, t)
	return err
}

func nop(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	return b.f.NewInstr(ir.OpNop, ir.NoValue), nil
}

func move(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	src, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	return b.f.NewInstr(ir.OpMove, dst.ID, src.ID), nil
}

func moveResult(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	dst := b.WriteVariable(ins.A)
	res, err := b.ReadResult()
	if err != nil { return nil, err }
	return b.f.NewInstr(ir.OpMoveResult, dst.ID, res.ID), nil
}

func moveException(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, b.cur.CatchType); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpMoveException, dst.ID)
	in.Type = b.cur.CatchType
	return in, nil
}

func returnVoid(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	in := b.f.NewInstr(ir.OpReturn, ir.NoValue)
	in.Type = "V"
	return in, nil
}

func returnValue(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	v, err := b.Read(ins.A)
	if err != nil { return nil, err }
	if ins.Op == dex.OpReturnWide {
		if err := refine(v, b.f.Return); err != nil { return nil, err }
	}
	in := b.f.NewInstr(ir.OpReturn, ir.NoValue, v.ID)
	in.Type = b.f.Return
	return in, nil
}

// loadConst defines register a from c. The defined value is a literal too,
// so inference may still turn it into a float or a null reference.
func loadConst(b *Builder, a int, c *ir.Value) (*ir.Instruction, error) {
	dst := b.WriteVariable(a)
	if err := refine(dst, c.Type); err != nil { return nil, err }
	dst.IsConst = true
	return b.f.NewInstr(ir.OpLoadConst, dst.ID, c.ID), nil
}

// constant covers the numeric loads. The decoder already sign-extends the
// literal and applies the high16 shifts.
func constant(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	return loadConst(b, ins.A, b.f.NewConstant(ir.ConstNumber, ins.Literal, "", ""))
}

func constString(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	return loadConst(b, ins.A, b.f.NewConstant(ir.ConstString, 0, ins.String, dex.TypeString))
}

func constClass(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	return loadConst(b, ins.A, b.f.NewConstant(ir.ConstClass, 0, ins.Type, dex.TypeClass))
}

func monitor(op ir.Op) handler {
	return func(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
		v, err := b.Read(ins.A)
		if err != nil { return nil, err }
		return b.f.NewInstr(op, ir.NoValue, v.ID), nil
	}
}

func checkCast(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	v, err := b.Read(ins.A)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpCheckCast, ir.NoValue, v.ID)
	in.Type = ins.Type
	return in, nil
}

func instanceOf(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	obj, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	in := b.f.NewInstr(ir.OpInstanceOf, dst.ID, obj.ID)
	in.Type = ins.Type
	return in, nil
}

func arrayLength(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	arr, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	return b.f.NewInstr(ir.OpArrayLength, dst.ID, arr.ID), nil
}

func newInstance(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, ins.Type); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpNewInstance, dst.ID)
	in.Type = ins.Type
	return in, nil
}

func newArray(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	size, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	in := b.f.NewInstr(ir.OpNewArray, dst.ID, size.ID)
	in.Type = ins.Type
	return in, nil
}

func filledNewArray(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	if !dex.IsArray(ins.Type) { return nil, ir.Unsupportedf("filled-new-array of non-array type %s", ins.Type) }
	args := make([]ir.ValueID, 0, len(ins.Args))
	for _, r := range ins.Args {
		v, err := b.Read(r)
		if err != nil { return nil, err }
		args = append(args, v.ID)
	}
	dst := b.WriteResult()
	if err := refine(dst, ins.Type); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpFilledNewArray, dst.ID, args...)
	in.Type = ins.Type
	return in, nil
}

func fillArrayData(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	arr, err := b.Read(ins.A)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpFillArray, ir.NoValue, arr.ID)
	in.Array = ins.Array
	return in, nil
}

func throw(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	v, err := b.Read(ins.A)
	if err != nil { return nil, err }
	return b.f.NewInstr(ir.OpThrow, ir.NoValue, v.ID), nil
}

func gotoOp(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	in := b.f.NewInstr(ir.OpGoto, ir.NoValue)
	in.Target = ins.Offset + ins.Target
	return in, nil
}

func switchOp(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	key, err := b.Read(ins.A)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpSwitch, ir.NoValue, key.ID)
	for i, k := range ins.Switch.Keys {
		in.Cases = append(in.Cases, ir.Case{Key: k, Target: ins.Offset + ins.Switch.Targets[i]})
	}
	return in, nil
}

var compareOps = map[dex.Opcode]struct {
	op  ir.ArithOp
	typ string
}{
	0x2d: {ir.ArithCmpL, "F"}, 0x2e: {ir.ArithCmpG, "F"},
	0x2f: {ir.ArithCmpL, "D"}, 0x30: {ir.ArithCmpG, "D"},
	0x31: {ir.ArithCmp, "J"},
}

func compare(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	c := compareOps[ins.Op]
	lhs, err := b.Read(ins.B)
	if err != nil { return nil, err }
	rhs, err := b.Read(ins.C)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, "I"); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpCompare, dst.ID, lhs.ID, rhs.ID)
	in.Arith, in.Type = c.op, c.typ
	return in, nil
}

var condOps = [...]ir.CondOp{ir.CondEq, ir.CondNe, ir.CondLt, ir.CondGe, ir.CondGt, ir.CondLe}

func ifOp(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	lhs, err := b.Read(ins.A)
	if err != nil { return nil, err }
	rhs, err := b.Read(ins.B)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpIf, ir.NoValue, lhs.ID, rhs.ID)
	in.Cond, in.Target = condOps[ins.Op-dex.OpIfEq], ins.Offset+ins.Target
	return in, nil
}

func ifZero(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	v, err := b.Read(ins.A)
	if err != nil { return nil, err }
	cond := condOps[ins.Op-dex.OpIfEqz]
	if cond == ir.CondGe {
		if err := refine(v, "I"); err != nil { return nil, err }
	}
	in := b.f.NewInstr(ir.OpIfZ, ir.NoValue, v.ID)
	in.Cond, in.Target = cond, ins.Offset+ins.Target
	return in, nil
}

// arrayElem is the element type implied by the aget/aput variant; the
// untyped forms leave it to inference.
func arrayElem(op, base dex.Opcode) string {
	return [...]string{"", "", "", "Z", "B", "C", "S"}[op-base]
}

func arrayGet(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	arr, err := b.Read(ins.B)
	if err != nil { return nil, err }
	idx, err := b.Read(ins.C)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	in := b.f.NewInstr(ir.OpArrayLoad, dst.ID, arr.ID, idx.ID)
	in.Type = arrayElem(ins.Op, dex.OpAget)
	return in, nil
}

func arrayPut(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	val, err := b.Read(ins.A)
	if err != nil { return nil, err }
	arr, err := b.Read(ins.B)
	if err != nil { return nil, err }
	idx, err := b.Read(ins.C)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpArrayStore, ir.NoValue, val.ID, arr.ID, idx.ID)
	in.Type = arrayElem(ins.Op, dex.OpAput)
	return in, nil
}

func instanceGet(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	obj, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	in := b.f.NewInstr(ir.OpGetField, dst.ID, obj.ID)
	in.Field = ins.Field
	return in, nil
}

func instancePut(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	val, err := b.Read(ins.A)
	if err != nil { return nil, err }
	obj, err := b.Read(ins.B)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpPutField, ir.NoValue, obj.ID, val.ID)
	in.Field = ins.Field
	return in, nil
}

func staticGet(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, ins.Field.Type); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpGetStatic, dst.ID)
	in.Field = ins.Field
	return in, nil
}

func staticPut(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	val, err := b.Read(ins.A)
	if err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpPutStatic, ir.NoValue, val.ID)
	in.Field = ins.Field
	return in, nil
}

var invokeKinds = map[dex.Opcode]ir.InvokeKind{
	0x6e: ir.InvokeVirtual, 0x6f: ir.InvokeSuper, 0x70: ir.InvokeDirect, 0x71: ir.InvokeStatic, 0x72: ir.InvokeInterface,
	0x74: ir.InvokeVirtual, 0x75: ir.InvokeSuper, 0x76: ir.InvokeDirect, 0x77: ir.InvokeStatic, 0x78: ir.InvokeInterface,
}

// invoke reads the receiver and one register per argument, skipping the
// high half of wide arguments.
func invoke(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	m := ins.Method
	kind := invokeKinds[ins.Op]
	regs := ins.Args
	var args []ir.ValueID
	if kind != ir.InvokeStatic {
		if len(regs) == 0 { return nil, ir.Structuref("%s %s without a receiver", ins.Name(), m) }
		this, err := b.Read(regs[0])
		if err != nil { return nil, err }
		args = append(args, this.ID)
		regs = regs[1:]
	}
	words := 0
	for _, p := range m.Params {
		words += dex.TypeSize(p)
	}
	if words != len(regs) { return nil, ir.Structuref("%s %s passes %d argument registers, want %d", ins.Name(), m, len(regs), words) }
	n := 0
	for _, p := range m.Params {
		v, err := b.Read(regs[n])
		if err != nil { return nil, err }
		args = append(args, v.ID)
		n += dex.TypeSize(p)
	}

	result := ir.NoValue
	if m.Return != "V" {
		dst := b.WriteResult()
		if err := refine(dst, m.Return); err != nil { return nil, err }
		result = dst.ID
	}
	in := b.f.NewInstr(ir.OpInvoke, result, args...)
	in.Method, in.Invoke = m, kind
	return in, nil
}

func unary(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	k := ins.Op - dex.OpNegInt
	ops := [...]ir.ArithOp{ir.ArithNeg, ir.ArithNot, ir.ArithNeg, ir.ArithNot, ir.ArithNeg, ir.ArithNeg}
	types := [...]string{"I", "I", "J", "J", "F", "D"}
	src, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, types[k]); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpUnary, dst.ID, src.ID)
	in.Arith, in.Type = ops[k], types[k]
	return in, nil
}

// castTypes lists (source, destination) for int-to-long .. int-to-short.
var castTypes = [...][2]string{
	{"I", "J"}, {"I", "F"}, {"I", "D"},
	{"J", "I"}, {"J", "F"}, {"J", "D"},
	{"F", "I"}, {"F", "J"}, {"F", "D"},
	{"D", "I"}, {"D", "J"}, {"D", "F"},
	{"I", "B"}, {"I", "C"}, {"I", "S"},
}

func cast(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	t := castTypes[ins.Op-dex.OpNegInt-6]
	src, err := b.Read(ins.B)
	if err != nil { return nil, err }
	if err := refine(src, t[0]); err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, t[1]); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpCast, dst.ID, src.ID)
	in.SrcType, in.Type = t[0], t[1]
	return in, nil
}

var arithOrder = [...]ir.ArithOp{
	ir.ArithAdd, ir.ArithSub, ir.ArithMul, ir.ArithDiv, ir.ArithRem,
	ir.ArithAnd, ir.ArithOr, ir.ArithXor, ir.ArithShl, ir.ArithShr, ir.ArithUShr,
}

// binaryKind decodes the op and operand type of the 23x and 12x arithmetic
// groups: eleven int ops, eleven long ops, then five float and five double.
func binaryKind(k int) (ir.ArithOp, string) {
	switch {
	case k < 11: return arithOrder[k], "I"
	case k < 22: return arithOrder[k-11], "J"
	case k < 27: return arithOrder[k-22], "F"
	}
	return arithOrder[k-27], "D"
}

func binary(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	op, typ := binaryKind(int(ins.Op - dex.OpAddInt))
	rhs, err := b.Read(ins.C)
	if err != nil { return nil, err }
	lhs, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, typ); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpBinary, dst.ID, lhs.ID, rhs.ID)
	in.Arith, in.Type = op, typ
	return in, nil
}

func binary2Addr(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	op, typ := binaryKind(int(ins.Op - dex.OpAddInt2Addr))
	lhs, err := b.Read(ins.A)
	if err != nil { return nil, err }
	rhs, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, typ); err != nil { return nil, err }
	in := b.f.NewInstr(ir.OpBinary, dst.ID, lhs.ID, rhs.ID)
	in.Arith, in.Type = op, typ
	return in, nil
}

// binaryLit covers the lit16 and lit8 forms. rsub-int computes lit - vB;
// add-int/lit8 with a negative literal is emitted as a subtraction.
func binaryLit(b *Builder, ins *dex.Instruction) (*ir.Instruction, error) {
	k := int(ins.Op - dex.OpAddIntLit16)
	if ins.Op >= dex.OpAddIntLit8 { k = int(ins.Op - dex.OpAddIntLit8) }
	op := arithOrder[k]

	src, err := b.Read(ins.B)
	if err != nil { return nil, err }
	dst := b.WriteVariable(ins.A)
	if err := refine(dst, "I"); err != nil { return nil, err }

	lit, litType := ins.Literal, "I"
	if ins.Op == dex.OpAddIntLit8 && lit < 0 {
		op, lit, litType = ir.ArithSub, -lit, "B"
	}
	c := b.f.NewConstant(ir.ConstNumber, lit, "", litType)
	lhs, rhs := src.ID, c.ID
	if op == ir.ArithSub && (ins.Op == dex.OpAddIntLit16+1 || ins.Op == dex.OpAddIntLit8+1) {
		lhs, rhs = c.ID, src.ID
	}
	in := b.f.NewInstr(ir.OpBinary, dst.ID, lhs, rhs)
	in.Arith, in.Type = op, "I"
	return in, nil
}
