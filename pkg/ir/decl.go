package ir

import (
	"strings"

	"github.com/xplshn/dcc/pkg/dex"
)

// ClassOf names the class whose jclass handle in needs, or "".
func (f *Func) ClassOf(in *Instruction) string {
	switch in.Op {
	case OpLoadConst:
		if c := f.Values[in.Args[0]]; c.Const == ConstClass { return c.Str }
	case OpPutStatic, OpPutField, OpGetStatic, OpGetField:
		return in.Field.Class
	case OpInvoke:
		return in.Method.Class
	case OpNewInstance, OpCheckCast, OpInstanceOf:
		return in.Type
	case OpNewArray, OpFilledNewArray:
		if elem := in.Type[1:]; dex.IsRef(elem) { return elem }
	}
	return ""
}

// FieldOf is the cache key of the jfieldID in resolves, or "".
func (f *Func) FieldOf(in *Instruction) string {
	switch in.Op {
	case OpPutStatic, OpPutField, OpGetStatic, OpGetField:
		return in.Field.Class + "." + in.Field.Name
	}
	return ""
}

// MethodOf is the cache key of the jmethodID in resolves, or "".
func (f *Func) MethodOf(in *Instruction) string {
	if in.Op != OpInvoke { return "" }
	m := in.Method
	return m.Class + "->" + m.Name + "(" + strings.Join(m.Params, "") + ")"
}
