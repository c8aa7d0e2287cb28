package typeChecker

import (
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

// SetType pins v to t and seals it. A sealed value ignores every later
// SetType and any Refine within its type family.
func SetType(v *ir.Value, t string) bool {
	if t == "" || v.Sealed { return false }
	v.Sealed = true
	if v.Type == t { return false }
	v.Type = t
	return true
}

// Refine moves v toward t on the type lattice and reports whether its type
// changed. Integral and floating types widen within their family; a literal
// may turn from integral into floating or reference; a non-literal integral
// value never becomes a reference. Moving a sealed value to another family
// is an error.
func Refine(v *ir.Value, t string) (bool, error) {
	if t == "" || v.Type == t { return false, nil }
	if v.Sealed {
		if v.Type != "" && !dex.SameFamily(v.Type, t) { return false, ir.Typef("unable to refine %s from %s to %s", v, v.Type, t) }
		return false, nil
	}
	if v.Type == "" {
		v.Type = t
		return true, nil
	}
	cur := v.Type
	if dex.IsRef(cur) && dex.IsObject(t) { return false, nil }
	if dex.IsObject(cur) && dex.IsRef(t) { return false, nil }

	switch {
	case dex.IsInt(cur) && dex.IsInt(t), dex.IsFloat(cur) && dex.IsFloat(t):
		return adopt(v, dex.BiggerType(cur, t)), nil
	case dex.IsInt(cur) && (dex.IsFloat(t) || dex.IsRef(t)):
		if v.IsConst {
			v.Type = t
			return true, nil
		}
		if dex.IsFloat(t) { return false, nil }
		return false, ir.Typef("unable to refine %s from %s to %s", v, cur, t)
	}
	merged := dex.MergeType(cur, t)
	if merged == "" { return false, ir.Typef("unable to refine %s from %s to %s", v, cur, t) }
	return adopt(v, merged), nil
}

func adopt(v *ir.Value, t string) bool {
	if t == v.Type { return false }
	v.Type = t
	return true
}
