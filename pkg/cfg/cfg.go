package cfg

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
)

type builder struct {
	f     *ir.Func
	g     *ir.Graph
	nodes map[*dex.Block]ir.BlockID
	pads  map[*dex.ExceptionAnalysis]*ir.LandingPad
}

// Build discovers every block reachable from the method entry and records
// the nodes, normal edges, catch edges and landing pads on f.Graph. It then
// numbers the graph, marks catch-only regions, computes dominators and the
// emission order. When the first block is a branch target, an empty block
// without predecessors is placed ahead of it to hold the parameters.
func Build(f *ir.Func) error {
	m := f.Method
	if m == nil || m.Entry() == nil { return ir.Structuref("%s has no code", f.Name) }

	b := &builder{
		f:     f,
		g:     f.Graph,
		nodes: make(map[*dex.Block]ir.BlockID),
		pads:  make(map[*dex.ExceptionAnalysis]*ir.LandingPad),
	}
	for _, blk := range bfs(m.Entry()) {
		if err := b.visit(blk); err != nil { return err }
	}
	b.g.Entry = b.nodes[m.Entry()]
	if len(b.g.AllPreds(b.g.Entry)) > 0 {
		pre := f.NewBlock(nil)
		b.g.AddNode(pre.ID)
		b.g.AddEdge(pre.ID, b.g.Entry)
		b.g.Entry = pre.ID
	}

	ComputeRPO(f)
	for _, id := range b.g.RPO {
		if blk := f.Blocks[id]; blk.Start >= 0 { b.g.OffsetToNode[blk.Start] = id }
	}
	markInCatch(f)
	b.g.IDom = Dominators(b.g, len(f.Blocks))
	ComputeBlockOrder(f)
	return nil
}

// bfs lists blocks breadth-first from start. Exception handlers are queued
// ahead of normal successors.
func bfs(start *dex.Block) []*dex.Block {
	visited := mapset.NewThreadUnsafeSet(start)
	queue := []*dex.Block{start}
	var order []*dex.Block
	for len(queue) > 0 {
		blk := queue[0]
		queue = queue[1:]
		order = append(order, blk)
		var next []*dex.Block
		if blk.Exception != nil {
			for _, h := range blk.Exception.Handlers {
				next = append(next, h.Block)
			}
		}
		next = append(next, blk.Succs...)
		for _, n := range next {
			if n == nil || visited.Contains(n) { continue }
			visited.Add(n)
			queue = append(queue, n)
		}
	}
	return order
}

func (b *builder) node(blk *dex.Block) ir.BlockID {
	if id, ok := b.nodes[blk]; ok { return id }
	id := b.f.NewBlock(blk).ID
	b.nodes[blk] = id
	return id
}

func (b *builder) visit(blk *dex.Block) error {
	id := b.node(blk)
	b.g.AddNode(id)

	if exc := blk.Exception; exc != nil {
		pad, ok := b.pads[exc]
		if !ok {
			pad = &ir.LandingPad{Node: id, Exception: exc}
			b.pads[exc] = pad
			b.g.LandingPads = append(b.g.LandingPads, pad)
			for _, h := range exc.Handlers {
				if h.Block == nil { return ir.Structuref("handler %#x for %s is not a block", h.Target, h.Type) }
				target := b.f.Blocks[b.node(h.Block)]
				target.CatchType = h.Type
				target.InCatch = true
				if err := addHandler(pad, h.Type, target.ID); err != nil { return err }
			}
		}
		for _, h := range exc.Handlers {
			b.g.AddCatchEdge(id, b.nodes[h.Block])
		}
		b.g.NodeToLandingPad[id] = pad
	}

	for _, succ := range blk.Succs {
		b.g.AddEdge(id, b.node(succ))
	}
	return nil
}

// addHandler registers a catch clause. The first clause for a type wins;
// repeating a type other than Throwable is an error.
func addHandler(pad *ir.LandingPad, typ string, target ir.BlockID) error {
	if _, dup := pad.Handler(typ); dup {
		if typ != dex.TypeThrowable { return ir.Structuref("duplicate catch handle for %s", typ) }
		return nil
	}
	pad.Handlers = append(pad.Handlers, ir.Handler{Type: typ, Target: target})
	return nil
}

// ComputeRPO numbers nodes by reverse post-order over normal and catch
// edges and stores the sorted sequence in Graph.RPO.
func ComputeRPO(f *ir.Func) {
	g := f.Graph
	visited := make(map[ir.BlockID]bool, len(g.Nodes))
	po := 1
	var visit func(n ir.BlockID)
	visit = func(n ir.BlockID) {
		visited[n] = true
		for _, s := range g.AllSuccs(n) {
			if !visited[s] { visit(s) }
		}
		f.Blocks[n].RPO = len(g.Nodes) + 1 - po
		po++
	}
	visit(g.Entry)

	g.RPO = append(g.RPO[:0], g.Nodes...)
	sort.SliceStable(g.RPO, func(i, j int) bool { return f.Blocks[g.RPO[i]].RPO < f.Blocks[g.RPO[j]].RPO })
}

// markInCatch flags nodes whose every earlier predecessor is only reached
// through exception dispatch.
func markInCatch(f *ir.Func) {
	g := f.Graph
	for _, id := range g.RPO {
		node := f.Blocks[id]
		earlier, allCatch := 0, true
		for _, p := range g.AllPreds(id) {
			pred := f.Blocks[p]
			if pred.RPO >= node.RPO { continue }
			earlier++
			if !pred.InCatch { allCatch = false }
		}
		if earlier > 0 && allCatch { node.InCatch = true }
	}
}

// ComputeBlockOrder sorts nodes by start offset and numbers them; the number
// names each block's label.
func ComputeBlockOrder(f *ir.Func) []ir.BlockID {
	g := f.Graph
	g.Order = append(g.Order[:0], g.Nodes...)
	sort.SliceStable(g.Order, func(i, j int) bool { return f.Blocks[g.Order[i]].Start < f.Blocks[g.Order[j]].Start })
	for num, id := range g.Order {
		f.Blocks[id].Num = num
	}
	return g.Order
}
