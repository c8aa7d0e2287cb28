package ssa

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/cfg"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

func build(t *testing.T, proto string, regs int, code string) (*ir.Func, error) {
	t.Helper()
	m, err := dex.NewMethod("Lcom/a/B;", "f", proto, "static", regs, code)
	require.NoError(t, err)
	f := ir.NewFunc(m)
	require.NoError(t, cfg.Build(f))
	return f, Build(f, nil)
}

func mustBuild(t *testing.T, proto string, regs int, code string) *ir.Func {
	t.Helper()
	f, err := build(t, proto, regs, code)
	require.NoError(t, err)
	return f
}

func blockAt(t *testing.T, f *ir.Func, off int) *ir.Block {
	t.Helper()
	id, ok := f.Graph.OffsetToNode[off]
	require.True(t, ok, "no block at %#x", off)
	return f.Blocks[id]
}

func ops(f *ir.Func, b *ir.Block) []ir.Op {
	var out []ir.Op
	for _, id := range b.Instrs {
		out = append(out, f.Instrs[id].Op)
	}
	return out
}

func TestStraightLineAdd(t *testing.T) {
	f := mustBuild(t, "(II)I", 3, `
		add-int v0, p0, p1
		return v0
	`)
	require.Len(t, f.Graph.Nodes, 1)
	require.Empty(t, f.Phis())

	entry := f.Entry()
	require.Equal(t, []ir.Op{ir.OpBinary, ir.OpReturn}, ops(f, entry))
	add := f.Instrs[entry.Instrs[0]]
	require.Equal(t, ir.ArithAdd, add.Arith)
	require.Equal(t, "I", add.Type)
	require.Equal(t, "I", f.Result(add).Type)
	require.Equal(t, f.ParamValues, add.Args)
	require.Equal(t, 0, add.Offset)
	require.Equal(t, 2, add.NextOffset)

	ret := f.Instrs[entry.Instrs[1]]
	require.Equal(t, []ir.ValueID{add.Result}, ret.Args)
	require.True(t, entry.Filled)
	require.True(t, entry.Sealed)
}

func TestDiamondKeepsPhi(t *testing.T) {
	f := mustBuild(t, "(Z)I", 2, `
		if-eqz p0, :else
		const/4 v0, 1
		goto :join
		:else
		const/4 v0, 2
		:join
		return v0
	`)
	join := blockAt(t, f, 5)
	require.Len(t, join.Phis, 1)
	phi := f.Values[join.Phis[0]]
	require.Len(t, phi.Operands, 2)
	require.NotEqual(t, phi.Operands[0].Value, phi.Operands[1].Value)
	require.Equal(t, 0, phi.Register)

	ret := f.Instrs[join.Instrs[0]]
	require.Equal(t, []ir.ValueID{phi.ID}, ret.Args)
	require.Len(t, f.Phis(), 1)
}

func TestLoopPhi(t *testing.T) {
	f := mustBuild(t, "(I)I", 2, `
		const/4 v0, 0
		:loop
		if-ge v0, p0, :end
		add-int/lit8 v0, v0, 1
		goto :loop
		:end
		return v0
	`)
	header := blockAt(t, f, 1)
	require.Len(t, header.Phis, 1)
	phi := f.Values[header.Phis[0]]
	require.Len(t, phi.Operands, 2)

	body := blockAt(t, f, 3)
	add := f.Instrs[body.Instrs[0]]
	require.Equal(t, phi.ID, add.Args[0])
	got, ok := phi.Operand(body.ID)
	require.True(t, ok)
	require.Equal(t, add.Result, got)

	end := blockAt(t, f, 6)
	require.Equal(t, []ir.ValueID{phi.ID}, f.Instrs[end.Instrs[0]].Args)
}

func TestLoopAtEntryGetsHeaderPhi(t *testing.T) {
	f := mustBuild(t, "(I)I", 1, `
		:loop
		if-lez p0, :end
		add-int/lit8 p0, p0, -1
		goto :loop
		:end
		return p0
	`)
	pre, header := f.Entry(), blockAt(t, f, 0)
	require.NotEqual(t, pre.ID, header.ID)
	require.Empty(t, pre.Instrs)
	require.True(t, header.Sealed)

	require.Len(t, header.Phis, 1)
	phi := f.Values[header.Phis[0]]
	param, ok := phi.Operand(pre.ID)
	require.True(t, ok)
	require.Equal(t, f.ParamValues[0], param)

	body := blockAt(t, f, 2)
	dec := f.Instrs[body.Instrs[0]]
	require.Equal(t, phi.ID, dec.Args[0])
	back, ok := phi.Operand(body.ID)
	require.True(t, ok)
	require.Equal(t, dec.Result, back)

	require.Equal(t, []ir.ValueID{phi.ID}, f.Instrs[blockAt(t, f, 5).Instrs[0]].Args)
	require.Equal(t, []ir.ValueID{phi.ID}, f.Instrs[header.Instrs[0]].Args)
	require.NoError(t, cfg.VerifySSA(f))
}

func TestLoopInvariantPhiIsPruned(t *testing.T) {
	f := mustBuild(t, "(I)I", 2, `
		const/4 v0, 0
		:loop
		if-eqz p0, :end
		goto :loop
		:end
		return v0
	`)
	require.Empty(t, f.Phis())
	cond := f.Instrs[blockAt(t, f, 1).Instrs[0]]
	require.Equal(t, f.ParamValues[0], cond.Args[0])
	zero := f.Instrs[f.Entry().Instrs[0]]
	require.Equal(t, []ir.ValueID{zero.Result}, f.Instrs[blockAt(t, f, 4).Instrs[0]].Args)

	require.NoError(t, RemoveTrivialPhis(f))
	require.Empty(t, f.Phis())
}

func TestLiteralOperands(t *testing.T) {
	f := mustBuild(t, "(I)I", 2, `
		add-int/lit8 v0, p0, -3
		rsub-int v0, v0, 7
		return v0
	`)
	entry := f.Entry()
	sub := f.Instrs[entry.Instrs[0]]
	require.Equal(t, ir.ArithSub, sub.Arith)
	c := f.Arg(sub, 1)
	require.True(t, c.IsConstant())
	require.EqualValues(t, 3, c.Int)
	require.Equal(t, "B", c.Type)

	rsub := f.Instrs[entry.Instrs[1]]
	require.Equal(t, ir.ArithSub, rsub.Arith)
	require.True(t, f.Arg(rsub, 0).IsConstant())
	require.EqualValues(t, 7, f.Arg(rsub, 0).Int)
	require.Equal(t, sub.Result, rsub.Args[1])
}

func TestObjectLoadGoesThroughTemporary(t *testing.T) {
	f := mustBuild(t, "([Ljava/lang/String;)Ljava/lang/String;", 2, `
		const/4 v0, 0
		aget-object v0, p0, v0
		return-object v0
	`)
	entry := f.Entry()
	require.Equal(t, []ir.Op{ir.OpLoadConst, ir.OpArrayLoad, ir.OpMoveResult, ir.OpReturn}, ops(f, entry))
	load := f.Instrs[entry.Instrs[1]]
	move := f.Instrs[entry.Instrs[2]]
	require.Equal(t, ir.ResultRegister, f.Result(load).Register)
	require.Equal(t, []ir.ValueID{load.Result}, move.Args)
	require.Equal(t, 0, f.Result(move).Register)
	require.Equal(t, []ir.ValueID{move.Result}, f.Instrs[entry.Instrs[3]].Args)
}

func TestInvokeArgumentsSkipWideHalves(t *testing.T) {
	f := mustBuild(t, "(JI)J", 5, `
		invoke-static {p0, p1, p2}, Lcom/a/B;->g(JI)J
		move-result-wide v0
		return-wide v0
	`)
	entry := f.Entry()
	call := f.Instrs[entry.Instrs[0]]
	require.Equal(t, ir.InvokeStatic, call.Invoke)
	require.Equal(t, f.ParamValues, call.Args)
	require.Equal(t, "J", f.Result(call).Type)
}

func TestResultAcrossMergeIsRejected(t *testing.T) {
	_, err := build(t, "(Z)I", 2, `
		if-eqz p0, :b
		invoke-static {}, Lcom/a/B;->g()I
		goto :j
		:b
		invoke-static {}, Lcom/a/B;->g()I
		:j
		move-result v0
		return v0
	`)
	require.Error(t, err)
	require.Equal(t, ir.ErrStructure, errors.Cause(err))
}

func TestUndefinedRegister(t *testing.T) {
	_, err := build(t, "()I", 1, `
		return v0
	`)
	require.Error(t, err)
	require.Equal(t, ir.ErrStructure, errors.Cause(err))
}
