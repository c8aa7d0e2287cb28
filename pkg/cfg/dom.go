package cfg

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/xplshn/dcc/pkg/ir"
)

// Dominators computes immediate dominators with the Lengauer-Tarjan
// algorithm over normal and catch successors. The entry maps to NoBlock;
// unreachable nodes are absent.
func Dominators(g *ir.Graph, nblocks int) map[ir.BlockID]ir.BlockID {
	// Work in DFS-number space; 0 means none.
	num := make([]int, nblocks)
	vertex := []ir.BlockID{ir.NoBlock}
	parent := []int{0}

	var dfs func(v ir.BlockID, p int)
	dfs = func(v ir.BlockID, p int) {
		num[v] = len(vertex)
		vertex = append(vertex, v)
		parent = append(parent, p)
		for _, w := range g.AllSuccs(v) {
			if num[w] == 0 { dfs(w, num[v]) }
		}
	}
	dfs(g.Entry, 0)

	n := len(vertex) - 1
	preds := make([]mapset.Set[int], n+1)
	for i := 1; i <= n; i++ {
		preds[i] = mapset.NewThreadUnsafeSet[int]()
	}
	for i := 1; i <= n; i++ {
		for _, w := range g.AllSuccs(vertex[i]) {
			preds[num[w]].Add(i)
		}
	}

	semi := make([]int, n+1)
	label := make([]int, n+1)
	ancestor := make([]int, n+1)
	dom := make([]int, n+1)
	bucket := make([][]int, n+1)
	for i := 1; i <= n; i++ {
		semi[i], label[i] = i, i
	}

	var compress func(v int)
	compress = func(v int) {
		u := ancestor[v]
		if ancestor[u] == 0 { return }
		compress(u)
		if semi[label[u]] < semi[label[v]] { label[v] = label[u] }
		ancestor[v] = ancestor[u]
	}
	eval := func(v int) int {
		if ancestor[v] == 0 { return v }
		compress(v)
		return label[v]
	}

	for w := n; w >= 2; w-- {
		preds[w].Each(func(v int) bool {
			if u := eval(v); semi[u] < semi[w] { semi[w] = semi[u] }
			return false
		})
		bucket[semi[w]] = append(bucket[semi[w]], w)
		pw := parent[w]
		ancestor[w] = pw
		for _, v := range bucket[pw] {
			if u := eval(v); semi[u] < semi[v] {
				dom[v] = u
			} else {
				dom[v] = pw
			}
		}
		bucket[pw] = nil
	}
	for w := 2; w <= n; w++ {
		if dom[w] != semi[w] { dom[w] = dom[dom[w]] }
	}

	idom := make(map[ir.BlockID]ir.BlockID, n)
	idom[g.Entry] = ir.NoBlock
	for w := 2; w <= n; w++ {
		idom[vertex[w]] = vertex[dom[w]]
	}
	return idom
}
