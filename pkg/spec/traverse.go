package spec

// Order selects the traversal discipline (spec.md §4.4 "traverse").
type Order uint8

const (
	Preorder Order = iota
	Postorder
	Topological
	Breadth
)

// Cover selects whether traverse visits each node once or each edge once.
type Cover uint8

const (
	CoverNodes Cover = iota
	CoverEdges
)

// Direction selects which edge set traverse follows.
type Direction uint8

const (
	DirectionChildren Direction = iota
	DirectionParents
)

// TraverseOptions configures Traverse.
type TraverseOptions struct {
	Order     Order
	Cover     Cover
	Direction Direction
	DepTypes  DepTypeFlags // zero means "any"
}

func (o TraverseOptions) matches(dt DepTypeFlags) bool {
	return o.DepTypes == 0 || dt&o.DepTypes != 0
}

func (s *Spec) edgesFor(opts TraverseOptions) []*Edge {
	if opts.Direction == DirectionParents {
		return s.Dependents
	}
	return s.Dependencies
}

func (e *Edge) otherEnd(opts TraverseOptions) *Spec {
	if opts.Direction == DirectionParents {
		return e.Parent
	}
	return e.Child
}

// Traverse walks the DAG rooted at s per opts and calls visit with each
// node it reaches. With CoverNodes each node is visited once; with
// CoverEdges the preorder, postorder and breadth-first orders visit a node
// once per selected edge that reaches it (visit still receives the node,
// not the edge), while topological order visits each node once. Traverse
// stops and returns the first visitor error.
func (s *Spec) Traverse(opts TraverseOptions, visit func(n *Spec) error) error {
	switch opts.Order {
	case Postorder:
		return s.traversePost(opts, map[*Spec]bool{}, visit)
	case Topological:
		return s.traverseTopo(opts, visit)
	case Breadth:
		return s.traverseBreadth(opts, visit)
	default:
		return s.traversePre(opts, map[*Spec]bool{}, visit)
	}
}

func (s *Spec) traversePre(opts TraverseOptions, seen map[*Spec]bool, visit func(*Spec) error) error {
	if opts.Cover == CoverNodes {
		if seen[s] {
			return nil
		}
		seen[s] = true
	}
	if err := visit(s); err != nil {
		return err
	}
	for _, e := range s.edgesFor(opts) {
		if !opts.matches(e.DepTypes) {
			continue
		}
		next := e.otherEnd(opts)
		if opts.Cover == CoverEdges {
			if err := next.traversePre(opts, seen, visit); err != nil {
				return err
			}
			continue
		}
		if err := next.traversePre(opts, seen, visit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spec) traversePost(opts TraverseOptions, seen map[*Spec]bool, visit func(*Spec) error) error {
	if opts.Cover == CoverNodes {
		if seen[s] {
			return nil
		}
		seen[s] = true
	}
	for _, e := range s.edgesFor(opts) {
		if !opts.matches(e.DepTypes) {
			continue
		}
		if err := e.otherEnd(opts).traversePost(opts, seen, visit); err != nil {
			return err
		}
	}
	return visit(s)
}

func (s *Spec) traverseBreadth(opts TraverseOptions, visit func(*Spec) error) error {
	seen := map[*Spec]bool{s: true}
	queue := []*Spec{s}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if err := visit(n); err != nil {
			return err
		}
		for _, e := range n.edgesFor(opts) {
			if !opts.matches(e.DepTypes) {
				continue
			}
			next := e.otherEnd(opts)
			if opts.Cover == CoverNodes {
				if seen[next] {
					continue
				}
				seen[next] = true
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// traverseTopo visits every node exactly once such that no node is emitted
// before any of its selected-edge predecessors (spec.md §4.4 "topo must
// never emit a node before any of its selected-edge predecessors"),
// implemented as a Kahn's-algorithm style in-degree count restricted to the
// reachable subgraph and the selected edge set.
func (s *Spec) traverseTopo(opts TraverseOptions, visit func(*Spec) error) error {
	reachable := map[*Spec]bool{}
	var collect func(*Spec)
	collect = func(n *Spec) {
		if reachable[n] {
			return
		}
		reachable[n] = true
		for _, e := range n.edgesFor(opts) {
			if opts.matches(e.DepTypes) {
				collect(e.otherEnd(opts))
			}
		}
	}
	collect(s)

	indeg := map[*Spec]int{}
	for n := range reachable {
		indeg[n] = 0
	}
	for n := range reachable {
		for _, e := range n.edgesFor(opts) {
			if opts.matches(e.DepTypes) {
				indeg[e.otherEnd(opts)]++
			}
		}
	}

	var ready []*Spec
	for n := range reachable {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	visited := map[*Spec]bool{}
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		if err := visit(n); err != nil {
			return err
		}
		for _, e := range n.edgesFor(opts) {
			if !opts.matches(e.DepTypes) {
				continue
			}
			next := e.otherEnd(opts)
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return nil
}
