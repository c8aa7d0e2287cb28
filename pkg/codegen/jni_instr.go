package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

func (w *jniWriter) genInstr(in *ir.Instruction) {
	switch in.Op {
	case ir.OpNop, ir.OpMoveParam:
	case ir.OpLoadConst:
		w.genLoadConst(in)
	case ir.OpMove:
		w.genMove(in)
	case ir.OpMoveResult:
		w.genTrace(in)
		w.kill(in.Result, false)
		fmt.Fprintf(w.out, "%s = (%s) %s;\n", w.local(in.Result), dex.CDeclType(w.f.TypeOf(in.Result)), w.operand(in.Args[0]))
	case ir.OpMoveException:
		w.genTrace(in)
		w.kill(in.Result, false)
		fmt.Fprintf(w.out, "%s = exception;\n", w.local(in.Result))
	case ir.OpArrayStore:
		w.genArrayStore(in)
	case ir.OpArrayLoad:
		w.genArrayLoad(in)
	case ir.OpArrayLength:
		w.genTrace(in)
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		w.notNull(in.Args[0])
		fmt.Fprintf(w.out, "%s = env->GetArrayLength((jarray) %s);\n", w.local(in.Result), w.local(in.Args[0]))
		w.undefineExHandle()
		w.out.WriteString("}\n")
	case ir.OpNewArray:
		w.genNewArray(in)
	case ir.OpFilledNewArray:
		w.genFilledNewArray(in)
	case ir.OpFillArray:
		w.genFillArray(in)
	case ir.OpPutStatic, ir.OpPutField, ir.OpGetStatic, ir.OpGetField:
		w.genField(in)
	case ir.OpNewInstance:
		w.genTrace(in)
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		// Released after the class lookup can throw, so a landing pad never
		// sees the old reference twice.
		w.kill(in.Result, false)
		fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
		fmt.Fprintf(w.out, "D2C_RESOLVE_CLASS(clz,\"%s\");\n", dex.JavaName(in.Type))
		fmt.Fprintf(w.out, "%s = (%s) env->AllocObject(clz);\n", w.local(in.Result), dex.NativeType(w.f.TypeOf(in.Result)))
		w.undefineExHandle()
		w.out.WriteString("}\n")
	case ir.OpInvoke:
		w.genInvoke(in)
	case ir.OpReturn:
		if len(in.Args) == 0 || w.f.Return == "V" {
			w.out.WriteString("return;\n")
			return
		}
		fmt.Fprintf(w.out, "return (%s) %s;\n", dex.NativeType(w.f.Return), w.operand(in.Args[0]))
	case ir.OpGoto:
		fmt.Fprintf(w.out, "goto %s;\n", w.label(in.Target))
	case ir.OpSwitch:
		fmt.Fprintf(w.out, "switch (%s) {\n", w.operand(in.Args[0]))
		for _, c := range in.Cases {
			fmt.Fprintf(w.out, "case %d: goto %s;\n", c.Key, w.label(c.Target))
		}
		w.out.WriteString("}\n")
	case ir.OpCheckCast, ir.OpInstanceOf:
		w.genTrace(in)
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
		fmt.Fprintf(w.out, "D2C_RESOLVE_CLASS(clz,\"%s\");\n", dex.JavaName(in.Type))
		if in.Op == ir.OpCheckCast {
			fmt.Fprintf(w.out, "D2C_CHECK_CAST(%s, clz, \"%s\");\n", w.operand(in.Args[0]), dex.JavaName(in.Type))
		} else {
			fmt.Fprintf(w.out, "%s = d2c_is_instance_of(env, %s, clz);\n", w.local(in.Result), w.local(in.Args[0]))
		}
		w.undefineExHandle()
		w.out.WriteString("}\n")
	case ir.OpMonitorEnter:
		w.genTrace(in)
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		w.notNull(in.Args[0])
		fmt.Fprintf(w.out, "env->MonitorEnter(%s);\n", w.operand(in.Args[0]))
		w.undefineExHandle()
		w.out.WriteString("}\n")
	case ir.OpMonitorExit:
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		fmt.Fprintf(w.out, "if (env->MonitorExit(%s) != JNI_OK) {\n", w.operand(in.Args[0]))
		w.undefineExHandle()
		w.out.WriteString("}\n")
		w.out.WriteString("}\n")
	case ir.OpThrow:
		w.genTrace(in)
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		w.notNull(in.Args[0])
		fmt.Fprintf(w.out, "env->Throw((jthrowable) %s);\n", w.local(in.Args[0]))
		w.undefineExHandle()
		w.out.WriteString("}\n")
	case ir.OpBinary:
		w.genBinary(in)
	case ir.OpCompare:
		w.genCompare(in)
	case ir.OpUnary:
		w.genTrace(in)
		fmt.Fprintf(w.out, "%s = (%s %s);\n", w.local(in.Result), in.Arith, w.operand(in.Args[0]))
	case ir.OpCast:
		w.genCast(in)
	case ir.OpIf:
		w.genIf(in)
	case ir.OpIfZ:
		w.genIfZ(in)
	default:
		w.fail(ir.Unsupportedf("cannot emit %s", w.f.FormatInstr(in)))
	}
}

func (w *jniWriter) genLoadConst(in *ir.Instruction) {
	c := w.f.Values[in.Args[0]]
	dst := w.local(in.Result)
	typ := w.f.TypeOf(in.Result)
	w.genTrace(in)
	w.kill(in.Result, false)
	switch {
	case typ == "F":
		fmt.Fprintf(w.out, "%s = d2c_bitcast_to_float(%s);\n", dst, intLiteral(c.Int))
	case typ == "D":
		fmt.Fprintf(w.out, "%s = d2c_bitcast_to_double(%s);\n", dst, intLiteral(c.Int))
	case c.Const == ir.ConstString:
		fmt.Fprintf(w.out, "%s = (%s) env->NewStringUTF(\"%s\");\n", dst, dex.NativeType(typ), dex.HexEscape(c.Str))
	case c.Const == ir.ConstClass:
		w.out.WriteString("{\n")
		w.defineExHandle(in)
		fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
		fmt.Fprintf(w.out, "D2C_RESOLVE_CLASS(clz,\"%s\");\n", dex.JavaName(c.Str))
		fmt.Fprintf(w.out, "%s = env->NewLocalRef(clz);\n", dst)
		w.undefineExHandle()
		w.out.WriteString("}\n")
	default:
		fmt.Fprintf(w.out, "%s = %s;\n", dst, w.operand(in.Args[0]))
	}
}

func (w *jniWriter) genMove(in *ir.Instruction) {
	src := in.Args[0]
	w.kill(in.Result, false)
	fmt.Fprintf(w.out, "%s = ", w.local(in.Result))
	if dex.IsPrimitive(w.f.TypeOf(src)) {
		w.out.WriteString(w.operand(src))
	} else {
		fmt.Fprintf(w.out, "(%s) env->NewLocalRef(%s)", dex.CDeclType(w.f.TypeOf(in.Result)), w.local(src))
	}
	w.out.WriteString(";\n")
}

// elemType is the element type of an array access: the one the opcode
// names, else the one inference gave the array.
func (w *jniWriter) elemType(in *ir.Instruction, array ir.ValueID, fallback string) string {
	if in.Type != "" { return in.Type }
	if t := w.f.TypeOf(array); dex.IsArray(t) { return t[1:] }
	return fallback
}

func (w *jniWriter) genArrayStore(in *ir.Instruction) {
	value, array, index := in.Args[0], in.Args[1], in.Args[2]
	elem := w.elemType(in, array, w.f.TypeOf(value))
	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	w.notNull(array)
	if dex.IsPrimitive(elem) {
		nt := dex.NativeType(elem)
		fmt.Fprintf(w.out, "{%s val = %s;", nt, w.operand(value))
		fmt.Fprintf(w.out, "env->Set%sArrayRegion((%sArray) %s, (jint) %s, 1, &val);", dex.TypeDescriptor(elem), nt, w.local(array), w.operand(index))
		w.out.WriteString("}\n")
	} else {
		fmt.Fprintf(w.out, "env->SetObjectArrayElement((jobjectArray) %s, (jint) %s, %s);", w.local(array), w.operand(index), w.operand(value))
	}
	w.undefineExHandle()
	w.out.WriteString("}\n")
}

func (w *jniWriter) genArrayLoad(in *ir.Instruction) {
	array, index := in.Args[0], in.Args[1]
	elem := w.elemType(in, array, w.f.TypeOf(in.Result))
	dst := w.local(in.Result)
	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	w.notNull(array)
	if dex.IsPrimitive(elem) {
		nt := dex.NativeType(elem)
		fmt.Fprintf(w.out, "{%s val;", nt)
		fmt.Fprintf(w.out, "env->Get%sArrayRegion((%sArray) %s, (jint) %s, 1, &val);", dex.TypeDescriptor(elem), nt, w.local(array), w.operand(index))
		fmt.Fprintf(w.out, "%s = val;}", dst)
	} else {
		w.kill(in.Result, false)
		fmt.Fprintf(w.out, "%s = (%s) env->GetObjectArrayElement((jobjectArray) %s, (jint) %s);", dst, dex.NativeType(w.f.TypeOf(in.Result)), w.local(array), w.operand(index))
	}
	w.out.WriteString("\n")
	w.undefineExHandle()
	w.out.WriteString("}\n")
}

func (w *jniWriter) genNewArray(in *ir.Instruction) {
	size := w.operand(in.Args[0])
	elem := in.Type[1:]
	dst := w.local(in.Result)
	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	fmt.Fprintf(w.out, "if (%s < 0) {\n", size)
	w.out.WriteString("d2c_throw_exception(env, \"java/lang/NegativeArraySizeException\", \"negative array size\");\n")
	w.out.WriteString("goto EX_HANDLE;\n")
	w.out.WriteString("}\n")
	w.kill(in.Result, false)
	if dex.IsPrimitive(elem) {
		fmt.Fprintf(w.out, "%s = (%s) env->New%sArray((jint) %s);\n", dst, dex.NativeType(w.f.TypeOf(in.Result)), dex.TypeDescriptor(elem), size)
	} else {
		fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
		fmt.Fprintf(w.out, "D2C_RESOLVE_CLASS(clz,\"%s\");\n", dex.JavaName(elem))
		fmt.Fprintf(w.out, "%s = env->NewObjectArray((jint) %s, clz, NULL);\n", dst, size)
	}
	w.undefineExHandle()
	w.out.WriteString("}\n")
}

func (w *jniWriter) genFilledNewArray(in *ir.Instruction) {
	elem := in.Type[1:]
	if dex.IsWide(elem) {
		w.fail(ir.Unsupportedf("filled-new-array of %s", in.Type))
		return
	}
	params := make([]string, len(in.Args))
	for i, a := range in.Args {
		params[i] = w.operand(a)
	}
	dst := w.local(in.Result)
	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	w.kill(in.Result, false)
	if dex.IsPrimitive(elem) {
		fmt.Fprintf(w.out, "%s = env->New%sArray((jint) %d);\n", dst, dex.TypeDescriptor(elem), len(params))
	} else {
		fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
		fmt.Fprintf(w.out, "D2C_RESOLVE_CLASS(clz,\"%s\");\n", dex.JavaName(elem))
		fmt.Fprintf(w.out, "%s = env->NewObjectArray((jint) %d, clz, NULL);\n", dst, len(params))
	}
	if len(params) > 0 {
		fmt.Fprintf(w.out, "d2c_filled_new_array(env, (jarray) %s, \"%s\", %d, %s);\n", dst, elem, len(params), strings.Join(params, ", "))
	}
	w.undefineExHandle()
	w.out.WriteString("}\n")
}

func (w *jniWriter) genFillArray(in *ir.Instruction) {
	array := in.Args[0]
	elem := w.elemType(in, array, "")
	if !dex.IsPrimitive(elem) {
		w.fail(ir.Typef("fill-array-data into %s", w.f.TypeOf(array)))
		return
	}
	data := in.Array
	n := data.Size * data.ElementWidth
	if n > len(data.Data) { n = len(data.Data) }
	bytes := make([]string, n)
	for i := 0; i < n; i++ {
		bytes[i] = fmt.Sprintf("%d", data.Data[i])
	}
	nt := dex.NativeType(elem)
	w.genTrace(in)
	w.out.WriteString("{\n")
	fmt.Fprintf(w.out, "static const unsigned char data[] = {%s};\n", strings.Join(bytes, ", "))
	fmt.Fprintf(w.out, "env->Set%sArrayRegion((%sArray) %s, 0, %d, (const %s *) data);\n", dex.TypeDescriptor(elem), nt, w.local(array), data.Size, nt)
	w.out.WriteString("}\n")
}

func (w *jniWriter) genField(in *ir.Instruction) {
	fd := in.Field
	class := dex.JavaName(fd.Class)
	desc := dex.TypeDescriptor(fd.Type)
	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	static := in.Op == ir.OpPutStatic || in.Op == ir.OpGetStatic
	if !static { w.notNull(in.Args[0]) }
	if in.Op == ir.OpGetStatic || in.Op == ir.OpGetField { w.kill(in.Result, false) }
	fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
	fmt.Fprintf(w.out, "jfieldID &fld = %s;\n", w.fieldHandle(in))
	if static {
		fmt.Fprintf(w.out, "D2C_RESOLVE_STATIC_FIELD(clz, fld, \"%s\", \"%s\", \"%s\");\n", class, fd.Name, fd.Type)
	} else {
		fmt.Fprintf(w.out, "D2C_RESOLVE_FIELD(clz, fld, \"%s\", \"%s\", \"%s\");\n", class, fd.Name, fd.Type)
	}
	switch in.Op {
	case ir.OpPutStatic:
		fmt.Fprintf(w.out, "env->SetStatic%sField(clz,fld,(%s) %s);\n", desc, dex.NativeType(fd.Type), w.operand(in.Args[0]))
	case ir.OpPutField:
		fmt.Fprintf(w.out, "env->Set%sField(%s,fld,(%s) %s);\n", desc, w.local(in.Args[0]), dex.NativeType(fd.Type), w.operand(in.Args[1]))
	case ir.OpGetStatic:
		fmt.Fprintf(w.out, "%s = (%s) env->GetStatic%sField(clz,fld);\n", w.local(in.Result), dex.NativeType(w.f.TypeOf(in.Result)), desc)
	case ir.OpGetField:
		fmt.Fprintf(w.out, "%s = (%s) env->Get%sField(%s,fld);\n", w.local(in.Result), dex.NativeType(w.f.TypeOf(in.Result)), desc, w.local(in.Args[0]))
	}
	w.undefineExHandle()
	w.out.WriteString("}\n")
}

// jvalueField is the jvalue member and cast used to pass an argument of
// type t through a Call*MethodA array.
func jvalueField(t string) (string, string) {
	switch t[0] {
	case 'L', '[': return "l", ""
	case 'Z': return "z", "(jboolean) "
	case 'B': return "b", "(jbyte) "
	case 'C': return "c", "(jchar) "
	case 'S': return "s", "(jshort) "
	case 'I': return "i", ""
	case 'J': return "j", "(jlong) "
	case 'F': return "f", ""
	case 'D': return "d", ""
	}
	return "", ""
}

func (w *jniWriter) genInvoke(in *ir.Instruction) {
	m := in.Method
	args := in.Args
	var base ir.ValueID = ir.NoValue
	if in.Invoke != ir.InvokeStatic {
		base, args = args[0], args[1:]
	}
	if len(args) != len(m.Params) {
		w.fail(ir.Structuref("%s takes %d arguments, got %d", m, len(m.Params), len(args)))
		return
	}

	w.genTrace(in)
	w.out.WriteString("{\n")
	w.defineExHandle(in)
	if base != ir.NoValue { fmt.Fprintf(w.out, "D2C_NOT_NULL(%s);\n", w.local(base)) }
	fmt.Fprintf(w.out, "jclass &clz = %s;\n", w.classHandle(in))
	fmt.Fprintf(w.out, "jmethodID &mid = %s;\n", w.methodHandle(in))
	resolve := "D2C_RESOLVE_METHOD"
	if in.Invoke == ir.InvokeStatic { resolve = "D2C_RESOLVE_STATIC_METHOD" }
	fmt.Fprintf(w.out, "%s(clz, mid, \"%s\", \"%s\", \"(%s)%s\");\n", resolve, dex.JavaName(m.Class), m.Name, strings.Join(m.Params, ""), m.Return)

	vals := make([]string, len(args))
	for i, a := range args {
		field, cast := jvalueField(m.Params[i])
		vals[i] = fmt.Sprintf("{.%s = %s%s}", field, cast, w.operand(a))
	}
	fmt.Fprintf(w.out, "jvalue args[] = {%s};\n", strings.Join(vals, ","))

	if m.Return != "V" && in.Result != ir.NoValue {
		w.kill(in.Result, false)
		fmt.Fprintf(w.out, "%s = (%s) ", w.local(in.Result), dex.NativeType(w.f.TypeOf(in.Result)))
	}
	desc := dex.TypeDescriptor(m.Return)
	switch in.Invoke {
	case ir.InvokeSuper:
		fmt.Fprintf(w.out, "env->CallNonvirtual%sMethodA(%s, clz, mid, args);\n", desc, w.local(base))
	case ir.InvokeStatic:
		fmt.Fprintf(w.out, "env->CallStatic%sMethodA(clz, mid, args);\n", desc)
	default:
		fmt.Fprintf(w.out, "env->Call%sMethodA(%s, mid, args);\n", desc, w.local(base))
	}
	w.undefineExHandle()
	w.out.WriteString("}\n")
	if m.Return != "V" { w.killDead(in.Result) }
}

func (w *jniWriter) genBinary(in *ir.Instruction) {
	dst := w.local(in.Result)
	a, b := w.operand(in.Args[0]), w.operand(in.Args[1])
	w.genTrace(in)

	if in.Arith == ir.ArithDiv || in.Arith == ir.ArithRem {
		w.out.WriteString("{\n")
		if dex.IsFloat(in.Type) {
			// IEEE remainder; % is not defined for floating operands.
			switch {
			case in.Arith == ir.ArithDiv: fmt.Fprintf(w.out, "%s = %s / %s;\n", dst, a, b)
			case in.Type == "F": fmt.Fprintf(w.out, "%s = fmodf(%s, %s);\n", dst, a, b)
			default: fmt.Fprintf(w.out, "%s = fmod(%s, %s);\n", dst, a, b)
			}
		} else {
			w.defineExHandle(in)
			fmt.Fprintf(w.out, "if (%s == 0) {\n", b)
			w.out.WriteString("d2c_throw_exception(env, \"java/lang/ArithmeticException\", \"divide by zero\");\n")
			w.out.WriteString("goto EX_HANDLE;\n")
			w.out.WriteString("}\n")
			w.out.WriteString("#undef EX_HANDLE\n")
			fmt.Fprintf(w.out, "%s = %s %s %s;\n", dst, a, in.Arith, b)
		}
		w.out.WriteString("}\n")
		return
	}

	mask := "0x1f"
	if dex.IsLong(in.Type) { mask = "0x3f" }
	switch in.Arith {
	case ir.ArithShr:
		fmt.Fprintf(w.out, "%s = (%s) >> (%s & %s);\n", dst, a, b, mask)
	case ir.ArithShl:
		fmt.Fprintf(w.out, "%s = (%s) << (%s & %s);\n", dst, a, b, mask)
	case ir.ArithUShr:
		unsigned := "uint32_t"
		if dex.IsLong(in.Type) { unsigned = "uint64_t" }
		fmt.Fprintf(w.out, "%s = ((%s) %s) >> (%s & %s);\n", dst, unsigned, a, b, mask)
	default:
		fmt.Fprintf(w.out, "%s = (%s %s %s);\n", dst, a, in.Arith, b)
	}
}

// genCompare keeps the NaN bias of cmpl and cmpg: an unordered pair makes
// cmpl yield -1 and cmpg yield 1.
func (w *jniWriter) genCompare(in *ir.Instruction) {
	dst := w.local(in.Result)
	a, b := w.operand(in.Args[0]), w.operand(in.Args[1])
	w.genTrace(in)
	if in.Arith == ir.ArithCmpG {
		fmt.Fprintf(w.out, "%s = (%s == %s) ? 0 : (%s < %s) ? -1 : 1;\n", dst, a, b, a, b)
		return
	}
	fmt.Fprintf(w.out, "%s = (%s == %s) ? 0 : (%s > %s) ? 1 : -1;\n", dst, a, b, a, b)
}

var saturatingCasts = map[[2]string]string{
	{"D", "J"}: "d2c_double_to_long",
	{"D", "I"}: "d2c_double_to_int",
	{"F", "J"}: "d2c_float_to_long",
	{"F", "I"}: "d2c_float_to_int",
}

func (w *jniWriter) genCast(in *ir.Instruction) {
	dst := w.local(in.Result)
	if fn, ok := saturatingCasts[[2]string{in.SrcType, in.Type}]; ok {
		fmt.Fprintf(w.out, "%s = %s(%s);\n", dst, fn, w.local(in.Args[0]))
		return
	}
	fmt.Fprintf(w.out, "%s = (%s)(%s);\n", dst, dex.NativeType(in.Type), w.operand(in.Args[0]))
}

func (w *jniWriter) genIf(in *ir.Instruction) {
	a, b := in.Args[0], in.Args[1]
	w.genTrace(in)
	w.out.WriteString("if(")
	if dex.IsPrimitive(w.f.TypeOf(a)) {
		fmt.Fprintf(w.out, "%s %s %s", w.operand(a), in.Cond, w.operand(b))
	} else {
		if in.Cond == ir.CondNe { w.out.WriteString("!") }
		fmt.Fprintf(w.out, "d2c_is_same_object(env,%s,%s)", w.operand(a), w.operand(b))
	}
	w.out.WriteString(") {\n")
	w.genBranches(in)
}

func (w *jniWriter) genIfZ(in *ir.Instruction) {
	a := in.Args[0]
	w.genTrace(in)
	zero := "NULL"
	if dex.IsPrimitive(w.f.TypeOf(a)) { zero = "0" }
	fmt.Fprintf(w.out, "if(%s %s %s){\n", w.operand(a), in.Cond, zero)
	w.genBranches(in)
}

func (w *jniWriter) genBranches(in *ir.Instruction) {
	fmt.Fprintf(w.out, "goto %s;\n", w.label(in.Target))
	w.out.WriteString("}\n")
	w.out.WriteString("else {\n")
	fmt.Fprintf(w.out, "goto %s;\n", w.label(in.NextOffset))
	w.out.WriteString("}\n")
}
