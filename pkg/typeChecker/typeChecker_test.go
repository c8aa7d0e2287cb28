package typeChecker_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/cfg"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/ssa"
	"github.com/xplshn/dcc/pkg/typeChecker"
)

func lower(t *testing.T, proto, flags string, regs int, code string) *ir.Func {
	t.Helper()
	m, err := dex.NewMethod("Lcom/a/B;", "f", proto, flags, regs, code)
	require.NoError(t, err)
	f := ir.NewFunc(m)
	require.NoError(t, cfg.Build(f))
	require.NoError(t, ssa.Build(f, nil))
	return f
}

func infer(t *testing.T, proto string, regs int, code string) (*ir.Func, error) {
	t.Helper()
	f := lower(t, proto, "static", regs, code)
	return f, typeChecker.Infer(f, typeChecker.DefaultOptions(), nil)
}

func loads(f *ir.Func) []*ir.Instruction {
	var out []*ir.Instruction
	for _, id := range f.Graph.Order {
		for _, iid := range f.Blocks[id].Instrs {
			if in := f.Instrs[iid]; in.Op == ir.OpLoadConst { out = append(out, in) }
		}
	}
	return out
}

func TestRefineWidensWithinFamily(t *testing.T) {
	f := &ir.Func{}
	v := f.NewConstant(ir.ConstNumber, 1, "", "")
	v.IsConst = false

	changed, err := typeChecker.Refine(v, "B")
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = typeChecker.Refine(v, "I")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "I", v.Type)

	changed, err = typeChecker.Refine(v, "S")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "I", v.Type)

	changed, err = typeChecker.Refine(v, "F")
	require.NoError(t, err)
	require.False(t, changed)

	_, err = typeChecker.Refine(v, dex.TypeString)
	require.Equal(t, ir.ErrType, errors.Cause(err))
}

func TestRefineLiteralBecomesReference(t *testing.T) {
	f := &ir.Func{}
	v := f.NewConstant(ir.ConstNumber, 0, "", "I")
	changed, err := typeChecker.Refine(v, dex.TypeString)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, dex.TypeString, v.Type)
}

func TestSetTypeSeals(t *testing.T) {
	f := &ir.Func{}
	v := f.NewConstant(ir.ConstNumber, 0, "", "")
	require.True(t, typeChecker.SetType(v, "J"))
	require.True(t, v.Sealed)
	require.False(t, typeChecker.SetType(v, "I"))

	changed, err := typeChecker.Refine(v, "I")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "J", v.Type)

	_, err = typeChecker.Refine(v, "D")
	require.Equal(t, ir.ErrType, errors.Cause(err))
	require.Equal(t, "J", v.Type)
}

func TestSealedReferenceUsedAsIntIsRejected(t *testing.T) {
	_, err := infer(t, "()I", 2, `
		new-instance v0, Lcom/a/B;
		add-int v1, v0, v0
		return v1
	`)
	require.Error(t, err)
	require.Equal(t, ir.ErrType, errors.Cause(err))
}

func TestMergeIsCommutative(t *testing.T) {
	types := []string{"", "Z", "B", "S", "C", "I", "J", "F", "D", dex.TypeObject, dex.TypeString, "[I", "[Ljava/lang/String;"}
	for _, a := range types {
		for _, b := range types {
			require.Equal(t, dex.MergeType(a, b), dex.MergeType(b, a), "merge(%q, %q)", a, b)
		}
	}
}

func TestStraightLineAddIsInt(t *testing.T) {
	f, err := infer(t, "(II)I", 3, `
		add-int v0, p0, p1
		return v0
	`)
	require.NoError(t, err)
	add := f.Instrs[f.Entry().Instrs[0]]
	require.Equal(t, "I", f.Result(add).Type)
	require.Contains(t, f.Vars, add.Result)
}

func TestZeroServesAsNullAndInt(t *testing.T) {
	code := `
		const/4 v0, 0
		invoke-static {v0}, Lcom/a/B;->g(Ljava/lang/Object;)V
		add-int/lit8 v1, v0, 1
		return v1
	`
	f, err := infer(t, "()I", 2, code)
	require.NoError(t, err)
	ls := loads(f)
	require.Len(t, ls, 2)
	var got []string
	for _, in := range ls {
		v := f.Result(in)
		require.True(t, v.IsConst)
		got = append(got, v.Type)
	}
	require.ElementsMatch(t, []string{dex.TypeObject, "I"}, got)

	f = lower(t, "()I", "static", 2, code)
	err = typeChecker.Infer(f, typeChecker.Options{SplitConstants: false}, nil)
	require.Equal(t, ir.ErrType, errors.Cause(err))
}

func TestUnusedConstantDefaults(t *testing.T) {
	f, err := infer(t, "()V", 4, `
		const/4 v0, 7
		const-wide v2, 0x100000000L
		return-void
	`)
	require.NoError(t, err)
	ls := loads(f)
	require.Len(t, ls, 0, "constants without users are dropped by splitting")

	f = lower(t, "()V", "static", 4, `
		const/4 v0, 7
		const-wide v2, 0x100000000L
		return-void
	`)
	require.NoError(t, typeChecker.Infer(f, typeChecker.Options{}, nil))
	ls = loads(f)
	require.Len(t, ls, 2)
	require.Equal(t, "I", f.Result(ls[0]).Type)
	require.Equal(t, "J", f.Result(ls[1]).Type)
}

func TestPhiTakesMergedType(t *testing.T) {
	f, err := infer(t, "(ZBI)I", 4, `
		if-eqz p0, :else
		move v0, p1
		goto :join
		:else
		move v0, p2
		:join
		return v0
	`)
	require.NoError(t, err)
	phis := f.Phis()
	require.Len(t, phis, 1)
	require.Equal(t, "I", phis[0].Type)
}

func TestArrayElementFlowsToStore(t *testing.T) {
	f, err := infer(t, "([JI)V", 4, `
		const-wide/16 v0, 5
		aput-wide v0, p0, p1
		return-void
	`)
	require.NoError(t, err)
	require.Equal(t, "J", f.Result(loads(f)[0]).Type)
}

func TestObjectAndIntPhiIsRejected(t *testing.T) {
	_, err := infer(t, "(ZLjava/lang/String;I)V", 4, `
		if-eqz p0, :else
		move-object v0, p1
		goto :join
		:else
		move v0, p2
		:join
		invoke-static {v0}, Lcom/a/B;->g(I)V
		return-void
	`)
	require.Error(t, err)
	require.Equal(t, ir.ErrType, errors.Cause(err))
}

func TestDeclarationsAreCollectedOnce(t *testing.T) {
	f, err := infer(t, "()V", 2, `
		sget-object v0, Lcom/a/C;->x:Ljava/lang/String;
		sget-object v1, Lcom/a/C;->x:Ljava/lang/String;
		invoke-static {v0, v1}, Lcom/a/D;->h(Ljava/lang/String;Ljava/lang/String;)V
		return-void
	`)
	require.NoError(t, err)
	require.Equal(t, []string{"Lcom/a/C;", "Lcom/a/D;"}, f.Classes)
	require.Equal(t, []string{"Lcom/a/C;.x"}, f.Fields)
	require.Equal(t, []string{"Lcom/a/D;->h(Ljava/lang/String;Ljava/lang/String;)"}, f.Methods)
}

func TestIterationCeiling(t *testing.T) {
	f := lower(t, "(I)I", "static", 3, `
		const/4 v0, 1
		add-int v1, v0, p0
		return v1
	`)
	err := typeChecker.Infer(f, typeChecker.Options{MaxIterations: 1, SplitConstants: true}, nil)
	require.Equal(t, ir.ErrDiverged, errors.Cause(err))
}
