package cfg

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

func build(t *testing.T, proto, flags string, regs int, code string) *ir.Func {
	t.Helper()
	m, err := dex.NewMethod("Lcom/a/B;", "f", proto, flags, regs, code)
	require.NoError(t, err)
	f := ir.NewFunc(m)
	require.NoError(t, Build(f))
	return f
}

func blockAt(t *testing.T, f *ir.Func, off int) *ir.Block {
	t.Helper()
	id, ok := f.Graph.OffsetToNode[off]
	require.True(t, ok, "no block at %#x", off)
	return f.Blocks[id]
}

func TestBuildStraightLine(t *testing.T) {
	f := build(t, "(II)I", "static", 3, `
		add-int v0, p0, p1
		return v0
	`)
	g := f.Graph
	require.Len(t, g.Nodes, 1)
	require.Empty(t, g.LandingPads)
	require.Equal(t, []ir.BlockID{g.Entry}, g.RPO)
	require.Equal(t, 1, f.Entry().RPO)
	require.Equal(t, ir.NoBlock, g.IDom[g.Entry])
}

func TestBuildDiamond(t *testing.T) {
	f := build(t, "(Z)I", "static", 2, `
		if-eqz p0, :else
		const/4 v0, 1
		goto :join
		:else
		const/4 v0, 2
		:join
		return v0
	`)
	g := f.Graph
	require.Len(t, g.Nodes, 4)
	entry := f.Entry()
	thenB, elseB, join := blockAt(t, f, 2), blockAt(t, f, 4), blockAt(t, f, 5)

	require.ElementsMatch(t, []ir.BlockID{thenB.ID, elseB.ID}, g.Preds(join.ID))
	require.Equal(t, entry.ID, g.IDom[thenB.ID])
	require.Equal(t, entry.ID, g.IDom[elseB.ID])
	require.Equal(t, entry.ID, g.IDom[join.ID])
	require.True(t, g.Dominates(entry.ID, join.ID))
	require.False(t, g.Dominates(thenB.ID, join.ID))

	// Every predecessor precedes its successor in RPO except along back edges.
	require.Less(t, entry.RPO, thenB.RPO)
	require.Less(t, thenB.RPO, join.RPO)
	require.Less(t, elseB.RPO, join.RPO)

	// Emission order follows start offsets.
	require.Equal(t, []int{0, 1, 2, 3}, []int{entry.Num, thenB.Num, elseB.Num, join.Num})
}

func TestBuildLoopDominators(t *testing.T) {
	f := build(t, "(I)I", "static", 2, `
		const/4 v0, 0
		:head
		if-ge v0, p0, :done
		add-int/lit8 v0, v0, 1
		goto :head
		:done
		return v0
	`)
	g := f.Graph
	head, body, done := blockAt(t, f, 1), blockAt(t, f, 3), blockAt(t, f, 6)
	require.Equal(t, f.Entry().ID, g.IDom[head.ID])
	require.Equal(t, head.ID, g.IDom[body.ID])
	require.Equal(t, head.ID, g.IDom[done.ID])
	require.ElementsMatch(t, []ir.BlockID{f.Entry().ID, body.ID}, g.Preds(head.ID))
}

func TestBuildLoopAtEntry(t *testing.T) {
	f := build(t, "(I)I", "static", 1, `
		:loop
		if-lez p0, :end
		add-int/lit8 p0, p0, -1
		goto :loop
		:end
		return p0
	`)
	g := f.Graph
	pre, head := f.Entry(), blockAt(t, f, 0)
	require.Nil(t, pre.Src)
	require.Empty(t, g.AllPreds(pre.ID))
	require.Equal(t, []ir.BlockID{head.ID}, g.Succs(pre.ID))
	require.ElementsMatch(t, []ir.BlockID{pre.ID, blockAt(t, f, 2).ID}, g.Preds(head.ID))
	require.Equal(t, pre.ID, g.IDom[head.ID])
	require.Equal(t, 0, pre.Num)
	require.Equal(t, 1, head.Num)
}

func TestBuildStraightLineHasNoPreEntry(t *testing.T) {
	f := build(t, "()V", "static", 0, "return-void")
	require.NotNil(t, f.Entry().Src)
	require.Equal(t, 0, f.Entry().Start)
}

func TestBuildLandingPad(t *testing.T) {
	f := build(t, "(Lcom/a/B;)V", "static", 2, `
		:try_start
		const/4 v0, 1
		iput v0, p0, Lcom/a/B;->x:I
		:try_end
		return-void
		:handler
		move-exception v0
		return-void
		.catch Ljava/lang/IllegalStateException; {:try_start .. :try_end} :handler
	`)
	g := f.Graph
	require.Len(t, g.LandingPads, 1)
	pad := g.LandingPads[0]
	require.Equal(t, g.Entry, pad.Node)
	require.Len(t, pad.Handlers, 1)
	require.Equal(t, "Ljava/lang/IllegalStateException;", pad.Handlers[0].Type)

	handler := f.Blocks[pad.Handlers[0].Target]
	require.True(t, handler.InCatch)
	require.Equal(t, "Ljava/lang/IllegalStateException;", handler.CatchType)
	require.Equal(t, []ir.BlockID{handler.ID}, g.CatchSuccs(g.Entry))
	require.Same(t, pad, g.LandingPadFor(g.Entry))
	require.Nil(t, g.LandingPadFor(handler.ID))
	require.Contains(t, g.AllPreds(handler.ID), g.Entry)
	require.Equal(t, g.Entry, g.IDom[handler.ID])
}

func TestBuildSharedLandingPad(t *testing.T) {
	f := build(t, "(I)I", "static", 2, `
		:try_start
		div-int/lit8 v0, p0, 3
		if-eqz v0, :zero
		div-int/lit8 v0, v0, 2
		:zero
		:try_end
		return v0
		:handler
		const/4 v0, -1
		return v0
		.catchall {:try_start .. :try_end} :handler
	`)
	g := f.Graph
	require.Len(t, g.LandingPads, 1)
	first := g.LandingPadFor(g.Entry)
	second := g.LandingPadFor(blockAt(t, f, 4).ID)
	require.NotNil(t, first)
	require.Same(t, first, second)
	require.Equal(t, dex.TypeThrowable, first.Handlers[0].Type)
}

func TestDuplicateCatchHandle(t *testing.T) {
	m, err := dex.NewMethod("Lcom/a/B;", "f", "()V", "static", 1, `
		:a
		nop
		:b
		return-void
		:h1
		return-void
		:h2
		return-void
		.catch Ljava/io/IOException; {:a .. :b} :h1
		.catch Ljava/io/IOException; {:a .. :b} :h2
	`)
	require.NoError(t, err)
	err = Build(ir.NewFunc(m))
	require.Error(t, err)
	require.Equal(t, ir.ErrStructure, errors.Cause(err))
	require.Contains(t, err.Error(), "duplicate catch handle for Ljava/io/IOException;")
}

func TestDuplicateThrowableIsAccepted(t *testing.T) {
	f := build(t, "()V", "static", 1, `
		:a
		nop
		:b
		return-void
		:h1
		return-void
		:h2
		return-void
		.catchall {:a .. :b} :h1
		.catchall {:a .. :b} :h2
	`)
	pad := f.Graph.LandingPads[0]
	require.Len(t, pad.Handlers, 1)
	require.Equal(t, blockAt(t, f, 2).ID, pad.Handlers[0].Target)
}

func TestInCatchPropagates(t *testing.T) {
	f := build(t, "()I", "static", 1, `
		:a
		nop
		:b
		const/4 v0, 0
		return v0
		:handler
		const/4 v0, 1
		goto :after
		:after
		return v0
		.catchall {:a .. :b} :handler
	`)
	handler, after := blockAt(t, f, 3), blockAt(t, f, 5)
	require.True(t, handler.InCatch)
	require.True(t, after.InCatch)
	require.False(t, blockAt(t, f, 1).InCatch)
}
