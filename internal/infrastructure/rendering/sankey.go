// Package rendering lays out and rasterizes analytics visualizations: the
// epinet Sankey flow diagram and the per-day activity chart.
package rendering

import (
	"sort"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

// SankeyOptions controls diagram geometry.
type SankeyOptions struct {
	Width       int
	Height      int
	NodeWidth   float64
	NodePadding float64
	Margin      float64
}

// DefaultSankeyOptions returns the console's standard diagram geometry.
func DefaultSankeyOptions() SankeyOptions {
	return SankeyOptions{
		Width:       960,
		Height:      540,
		NodeWidth:   15,
		NodePadding: 10,
		Margin:      10,
	}
}

// LayoutNode is a positioned node. Depth is the node's column.
type LayoutNode struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Depth int     `json:"depth"`
	Value int     `json:"value"`
	X0    float64 `json:"x0"`
	X1    float64 `json:"x1"`
	Y0    float64 `json:"y0"`
	Y1    float64 `json:"y1"`
}

// LayoutLink is a positioned link. Y0 and Y1 are the band centres at the
// source and target ends.
type LayoutLink struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Value  int     `json:"value"`
	Y0     float64 `json:"y0"`
	Y1     float64 `json:"y1"`
	Width  float64 `json:"width"`
}

// SankeyLayout is a diagram ready to draw.
type SankeyLayout struct {
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Nodes   []LayoutNode `json:"nodes"`
	Links   []LayoutLink `json:"links"`
	Dropped int          `json:"dropped"`
}

// Layout positions a diagram's nodes in columns by longest-path depth with
// heights proportional to flow. Self links, links with out-of-range
// endpoints or non-positive values, and links that would close a cycle are
// dropped and counted.
func Layout(d *analytics.SankeyDiagram, opts SankeyOptions) SankeyLayout {
	out := SankeyLayout{Width: opts.Width, Height: opts.Height}
	if d == nil || len(d.Nodes) == 0 {
		return out
	}

	n := len(d.Nodes)
	links, dropped := acyclicLinks(n, d.Links)
	out.Dropped = dropped

	in := make([]int, n)
	outv := make([]int, n)
	for _, l := range links {
		outv[l.Source] += l.Value
		in[l.Target] += l.Value
	}

	depth := longestPathDepth(n, links)
	maxDepth := 0
	for _, dp := range depth {
		maxDepth = max(maxDepth, dp)
	}

	nodes := make([]LayoutNode, n)
	for i, node := range d.Nodes {
		nodes[i] = LayoutNode{
			ID:    node.ID,
			Title: node.Title,
			Depth: depth[i],
			Value: max(in[i], outv[i]),
		}
	}

	innerW := float64(opts.Width) - 2*opts.Margin
	innerH := float64(opts.Height) - 2*opts.Margin

	columns := make([][]int, maxDepth+1)
	for i := range nodes {
		columns[nodes[i].Depth] = append(columns[nodes[i].Depth], i)
	}

	// One scale for every column so equal flows get equal heights
	ky := -1.0
	for _, col := range columns {
		total := 0
		for _, i := range col {
			total += nodes[i].Value
		}
		if total == 0 {
			continue
		}
		avail := innerH - float64(len(col)-1)*opts.NodePadding
		if k := avail / float64(total); ky < 0 || k < ky {
			ky = k
		}
	}
	if ky < 0 {
		ky = 0
	}

	step := 0.0
	if maxDepth > 0 {
		step = (innerW - opts.NodeWidth) / float64(maxDepth)
	}
	for _, col := range columns {
		y := opts.Margin
		for _, i := range col {
			h := float64(nodes[i].Value) * ky
			nodes[i].X0 = opts.Margin + float64(nodes[i].Depth)*step
			nodes[i].X1 = nodes[i].X0 + opts.NodeWidth
			nodes[i].Y0 = y
			nodes[i].Y1 = y + h
			y += h + opts.NodePadding
		}
	}

	out.Nodes = nodes
	out.Links = placeLinks(nodes, links, ky)
	return out
}

// acyclicLinks keeps links in input order, skipping any whose target can
// already reach its source.
func acyclicLinks(n int, links []analytics.SankeyLink) ([]analytics.SankeyLink, int) {
	adj := make([][]int, n)
	kept := make([]analytics.SankeyLink, 0, len(links))
	dropped := 0

	for _, l := range links {
		if l.Source < 0 || l.Source >= n || l.Target < 0 || l.Target >= n ||
			l.Source == l.Target || l.Value <= 0 || reachable(adj, l.Target, l.Source) {
			dropped++
			continue
		}
		adj[l.Source] = append(adj[l.Source], l.Target)
		kept = append(kept, l)
	}
	return kept, dropped
}

func reachable(adj [][]int, from, to int) bool {
	seen := make([]bool, len(adj))
	stack := []int{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, adj[cur]...)
	}
	return false
}

// longestPathDepth assigns each node the length of the longest path reaching it.
func longestPathDepth(n int, links []analytics.SankeyLink) []int {
	indeg := make([]int, n)
	adj := make([][]int, n)
	for _, l := range links {
		adj[l.Source] = append(adj[l.Source], l.Target)
		indeg[l.Target]++
	}

	depth := make([]int, n)
	queue := make([]int, 0, n)
	for i := range n {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			depth[next] = max(depth[next], depth[cur]+1)
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return depth
}

// placeLinks stacks link bands on each node, ordered by the position of the
// node at the other end so bands do not cross at the node.
func placeLinks(nodes []LayoutNode, links []analytics.SankeyLink, ky float64) []LayoutLink {
	out := make([]LayoutLink, len(links))
	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	for i, l := range links {
		out[i] = LayoutLink{Source: l.Source, Target: l.Target, Value: l.Value, Width: float64(l.Value) * ky}
		outgoing[l.Source] = append(outgoing[l.Source], i)
		incoming[l.Target] = append(incoming[l.Target], i)
	}

	for ni := range nodes {
		sort.SliceStable(outgoing[ni], func(a, b int) bool {
			return nodes[out[outgoing[ni][a]].Target].Y0 < nodes[out[outgoing[ni][b]].Target].Y0
		})
		y := nodes[ni].Y0
		for _, li := range outgoing[ni] {
			out[li].Y0 = y + out[li].Width/2
			y += out[li].Width
		}

		sort.SliceStable(incoming[ni], func(a, b int) bool {
			return nodes[out[incoming[ni][a]].Source].Y0 < nodes[out[incoming[ni][b]].Source].Y0
		})
		y = nodes[ni].Y0
		for _, li := range incoming[ni] {
			out[li].Y1 = y + out[li].Width/2
			y += out[li].Width
		}
	}
	return out
}
