package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/util"
)

// jniBackend writes C++ against the JNI function table. The macros and
// d2c_* helpers it calls come from Dex2C.h.
type jniBackend struct {
	log *util.Logger
}

func NewJNIBackend(log *util.Logger) Backend { return &jniBackend{log: log} }

// jniWriter is the state of one Generate call.
type jniWriter struct {
	out *strings.Builder
	f   *ir.Func
	ra  *RegisterAllocator
	cls *tmpnames
	fld *tmpnames
	mth *tmpnames

	trace      bool
	localRefGC bool
	err        error
}

func (b *jniBackend) Generate(f *ir.Func, cfg *config.Config) (*Unit, error) {
	w := &jniWriter{
		out:        &strings.Builder{},
		f:          f,
		ra:         NewRegisterAllocator(f, b.log),
		cls:        newTmpnames("cls", f.Classes),
		fld:        newTmpnames("fld", f.Fields),
		mth:        newTmpnames("mth", f.Methods),
		trace:      cfg.IsFeatureEnabled(config.FeatTrace),
		localRefGC: cfg.IsFeatureEnabled(config.FeatLocalRefGC),
	}
	unit := &Unit{Name: dex.JniLongName(f.Class, f.Name, f.Proto)}
	proto := w.genHeader(unit.Name, cfg.IsFeatureEnabled(config.FeatDynamicRegister))
	if cfg.IsFeatureEnabled(config.FeatDynamicRegister) { unit.Prototype = proto }
	w.genBody()
	if w.err != nil { return nil, w.err }
	unit.Source = w.out.String()
	return unit, nil
}

func (w *jniWriter) fail(err error) {
	if w.err == nil { w.err = err }
}

// genHeader writes the comment and signature of the function and returns
// the prototype without the trailing brace.
func (w *jniWriter) genHeader(name string, dynamic bool) string {
	f := w.f
	fmt.Fprintf(w.out, "\n/* %s->%s%s */\n", f.Class, f.Name, f.Proto)

	var proto strings.Builder
	rtype := dex.NativeType(f.Return)
	if dynamic {
		fmt.Fprintf(&proto, "%s ", rtype)
	} else {
		fmt.Fprintf(w.out, "extern \"C\" JNIEXPORT %s JNICALL\n", rtype)
	}
	proto.WriteString(name)

	params := f.MoveParams
	if !f.Static && len(params) > 0 { params = params[1:] }
	decls := make([]string, 0, len(params))
	for _, id := range params {
		v := f.Values[f.Instrs[id].Result]
		decls = append(decls, fmt.Sprintf("%s p%d", dex.NativeType(v.Type), v.Register))
	}
	if len(decls) > 0 {
		fmt.Fprintf(&proto, "(JNIEnv *env, jobject thiz, %s)", strings.Join(decls, ", "))
	} else {
		proto.WriteString("(JNIEnv *env, jobject thiz)")
	}

	w.out.WriteString(proto.String())
	w.out.WriteString("{\n")
	if !dynamic { return "" }
	return proto.String()
}

func (w *jniWriter) genBody() {
	f := w.f
	for i, id := range f.Graph.Order {
		b := f.Blocks[id]
		if i == 0 { w.genDecls() }
		fmt.Fprintf(w.out, "L%d:\n", b.Num)
		for _, iid := range b.Instrs {
			w.genInstr(f.Instrs[iid])
		}
	}

	for _, lp := range f.Graph.LandingPads {
		w.out.WriteString("\n")
		w.genLandingPad(lp)
	}

	switch {
	case f.Return == "V":
		w.out.WriteString("EX_UnwindBlock: return;\n")
	case dex.IsRef(f.Return):
		w.out.WriteString("EX_UnwindBlock: return NULL;\n")
	default:
		fmt.Fprintf(w.out, "EX_UnwindBlock: return (%s)0;\n", dex.NativeType(f.Return))
	}
	w.out.WriteString("}\n")
}

// genDecls declares every local and cache handle up front; C++ does not
// allow a goto to jump over an initialised declaration.
func (w *jniWriter) genDecls() {
	f := w.f
	for n := 0; n < w.ra.Len(); n++ {
		kind := w.ra.Kind(n)
		fmt.Fprintf(w.out, "%s v%d", kind, n)
		if kind == "jobject" { w.out.WriteString(" = NULL") }
		w.out.WriteString(";\n")
	}
	if len(f.Graph.LandingPads) > 0 { w.out.WriteString("jthrowable exception;\n") }

	handles := func(ctype string, t *tmpnames, sep string) {
		names := t.all()
		if len(names) == 0 { return }
		for i, n := range names {
			names[i] = n + " = NULL"
		}
		fmt.Fprintf(w.out, "%s %s;\n", ctype, strings.Join(names, sep))
	}
	handles("jclass", w.cls, ",")
	handles("jfieldID", w.fld, ",")
	handles("jmethodID", w.mth, ", ")

	for i, id := range f.MoveParams {
		v := f.Values[f.Instrs[id].Result]
		fmt.Fprintf(w.out, "%s = (%s)", w.local(v.ID), dex.CDeclType(v.Type))
		switch {
		case i == 0 && !f.Static:
			w.out.WriteString("env->NewLocalRef(thiz)")
		case dex.IsNativeRef(v.Type):
			fmt.Fprintf(w.out, "env->NewLocalRef(p%d)", v.Register)
		default:
			fmt.Fprintf(w.out, "p%d", v.Register)
		}
		w.out.WriteString(";\n")
	}
}

func (w *jniWriter) genLandingPad(lp *ir.LandingPad) {
	fmt.Fprintf(w.out, "EX_LandingPad_%d:\n", w.f.Blocks[lp.Node].Num)
	w.out.WriteString("D2C_GET_PENDING_EX\n")
	for _, h := range lp.Handlers {
		fmt.Fprintf(w.out, "if(d2c_is_instance_of(env, exception, \"%s\")) {\n", dex.JavaName(h.Type))
		fmt.Fprintf(w.out, "goto L%d;\n", w.f.Blocks[h.Target].Num)
		w.out.WriteString("}\n")
	}
	w.out.WriteString("D2C_GOTO_UNWINDBLOCK\n")
}

// local names the native variable holding v.
func (w *jniWriter) local(id ir.ValueID) string {
	n, ok := w.ra.Slot(id)
	if !ok {
		w.fail(ir.Structuref("no local allocated for %s", w.f.Values[id]))
		return "v?"
	}
	return fmt.Sprintf("v%d", n)
}

// operand renders a local or a literal.
func (w *jniWriter) operand(id ir.ValueID) string {
	v := w.f.Values[id]
	if !v.IsConstant() { return w.local(id) }
	switch {
	case v.Const == ir.ConstString:
		return "\"" + dex.HexEscape(v.Str) + "\""
	case v.Type == "F":
		return "d2c_bitcast_to_float(" + intLiteral(v.Int) + ")"
	case v.Type == "D":
		return "d2c_bitcast_to_double(" + intLiteral(v.Int) + ")"
	}
	return intLiteral(v.Int)
}

// intLiteral spells n as a C++ literal. The most negative long has no
// literal of its own.
func intLiteral(n int64) string {
	if n == math.MinInt64 { return "(-9223372036854775807LL - 1)" }
	return fmt.Sprintf("%d", n)
}

// label is the label of the block starting at offset.
func (w *jniWriter) label(offset int) string {
	id, ok := w.f.Graph.OffsetToNode[offset]
	if !ok {
		w.fail(ir.Structuref("no block starts at %#x", offset))
		return "L?"
	}
	return fmt.Sprintf("L%d", w.f.Blocks[id].Num)
}

func (w *jniWriter) genTrace(in *ir.Instruction) {
	if !w.trace || in.Source == nil { return }
	fmt.Fprintf(w.out, "LOGD(\"%x:%s %s\");\n", in.Source.Offset, in.Source.Name(), dex.HexEscape(in.Source.Text))
}

// kill releases the reference a named register holds before it is
// overwritten. Temporaries are only released when tmp is set.
func (w *jniWriter) kill(id ir.ValueID, tmp bool) {
	if id == ir.NoValue { return }
	v := w.f.Values[id]
	if !dex.IsNativeRef(v.Type) { return }
	if !tmp && v.Register < 0 { return }
	r := w.local(id)
	fmt.Fprintf(w.out, "if (%s) {\n", r)
	fmt.Fprintf(w.out, "LOGD(\"env->DeleteLocalRef(%%p):%s\", %s);\n", r, r)
	fmt.Fprintf(w.out, "env->DeleteLocalRef(%s);\n", r)
	w.out.WriteString("}\n")
}

// killDead releases a call result nobody reads.
func (w *jniWriter) killDead(id ir.ValueID) {
	if !w.localRefGC || id == ir.NoValue { return }
	if v := w.f.Values[id]; !v.HasUses() && v.Register < 0 { w.kill(id, true) }
}

func (w *jniWriter) defineExHandle(in *ir.Instruction) {
	if lp := w.f.Graph.LandingPadFor(in.Block); lp != nil {
		fmt.Fprintf(w.out, "#define EX_HANDLE EX_LandingPad_%d\n", w.f.Blocks[lp.Node].Num)
		return
	}
	w.out.WriteString("#define EX_HANDLE EX_UnwindBlock\n")
}

func (w *jniWriter) undefineExHandle() {
	w.out.WriteString("D2C_CHECK_PENDING_EX;\n")
	w.out.WriteString("#undef EX_HANDLE\n")
}

func (w *jniWriter) notNull(id ir.ValueID) {
	fmt.Fprintf(w.out, "D2C_NOT_NULL(%s);\n", w.operand(id))
}

func (w *jniWriter) classHandle(in *ir.Instruction) string {
	key := w.f.ClassOf(in)
	n, ok := w.cls.name(key)
	if !ok { w.fail(ir.Structuref("class %s was not collected", key)) }
	return n
}

func (w *jniWriter) fieldHandle(in *ir.Instruction) string {
	key := w.f.FieldOf(in)
	n, ok := w.fld.name(key)
	if !ok { w.fail(ir.Structuref("field %s was not collected", key)) }
	return n
}

func (w *jniWriter) methodHandle(in *ir.Instruction) string {
	key := w.f.MethodOf(in)
	n, ok := w.mth.name(key)
	if !ok { w.fail(ir.Structuref("method %s was not collected", key)) }
	return n
}
