package ir

// Graph holds the control-flow edges of one method. Normal and catch edges
// are kept apart; dominance and SSA treat them as one relation.
type Graph struct {
	Entry BlockID
	Nodes []BlockID

	succs, preds           map[BlockID][]BlockID
	catchSuccs, catchPreds map[BlockID][]BlockID

	LandingPads      []*LandingPad
	NodeToLandingPad map[BlockID]*LandingPad
	OffsetToNode     map[int]BlockID

	RPO   []BlockID // nodes sorted by reverse post-order number
	Order []BlockID // emission order, ascending start offset
	IDom  map[BlockID]BlockID
}

func NewGraph() *Graph {
	return &Graph{
		Entry:            NoBlock,
		succs:            make(map[BlockID][]BlockID),
		preds:            make(map[BlockID][]BlockID),
		catchSuccs:       make(map[BlockID][]BlockID),
		catchPreds:       make(map[BlockID][]BlockID),
		NodeToLandingPad: make(map[BlockID]*LandingPad),
		OffsetToNode:     make(map[int]BlockID),
	}
}

func (g *Graph) AddNode(b BlockID) { g.Nodes = append(g.Nodes, b) }

func appendUnique(s []BlockID, b BlockID) []BlockID {
	for _, x := range s {
		if x == b { return s }
	}
	return append(s, b)
}

func (g *Graph) AddEdge(from, to BlockID) {
	g.succs[from] = appendUnique(g.succs[from], to)
	g.preds[to] = appendUnique(g.preds[to], from)
}

func (g *Graph) AddCatchEdge(from, to BlockID) {
	g.catchSuccs[from] = appendUnique(g.catchSuccs[from], to)
	g.catchPreds[to] = appendUnique(g.catchPreds[to], from)
}

func (g *Graph) Succs(b BlockID) []BlockID       { return g.succs[b] }
func (g *Graph) Preds(b BlockID) []BlockID       { return g.preds[b] }
func (g *Graph) CatchSuccs(b BlockID) []BlockID  { return g.catchSuccs[b] }

// AllSuccs is normal successors followed by catch successors.
func (g *Graph) AllSuccs(b BlockID) []BlockID {
	out := make([]BlockID, 0, len(g.succs[b])+len(g.catchSuccs[b]))
	out = append(out, g.succs[b]...)
	return append(out, g.catchSuccs[b]...)
}

// AllPreds is normal predecessors followed by catch predecessors.
func (g *Graph) AllPreds(b BlockID) []BlockID {
	out := make([]BlockID, 0, len(g.preds[b])+len(g.catchPreds[b]))
	out = append(out, g.preds[b]...)
	return append(out, g.catchPreds[b]...)
}

// Dominates reports whether a dominates b in the computed dominator tree.
func (g *Graph) Dominates(a, b BlockID) bool {
	for {
		if a == b { return true }
		next, ok := g.IDom[b]
		if !ok || next == NoBlock { return false }
		b = next
	}
}

// LandingPadFor returns the pad protecting b, or nil.
func (g *Graph) LandingPadFor(b BlockID) *LandingPad { return g.NodeToLandingPad[b] }
