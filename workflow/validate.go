package workflow

import (
	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/node"
)

// validateConnectionsExist checks that every connection target names a node
// present in the schema.
func validateConnectionsExist(s *Schema) error {
	for _, cfg := range s.Nodes {
		for _, to := range cfg.Connections {
			if _, ok := s.Nodes[to]; !ok {
				return errs.NodeNotFound(string(to))
			}
		}
	}
	return nil
}

// color is the three-color DFS marking used for cycle detection.
type color int

const (
	white color = iota // unvisited
	grey               // on the current DFS stack
	black              // fully explored
)

// validateAcyclic runs a depth-first search with three-color marking over
// the connection graph (parent -> each connection), raising CycleDetected
// with the offending path the moment a back-edge (an edge into a grey node)
// is found. Router branches are mutually exclusive alternatives at runtime
// but still count as edges for this check, per spec.md §3.
func validateAcyclic(s *Schema) error {
	colors := make(map[node.TypeID]color, len(s.Nodes))
	var path []node.TypeID

	var visit func(id node.TypeID) error
	visit = func(id node.TypeID) error {
		colors[id] = grey
		path = append(path, id)

		cfg := s.Nodes[id]
		for _, to := range cfg.Connections {
			switch colors[to] {
			case white:
				if err := visit(to); err != nil {
					return err
				}
			case grey:
				cycle := append(append([]node.TypeID(nil), path...), to)
				return errs.CycleDetected(typeIDsToStrings(cycle))
			case black:
				// already fully explored via another path; not a back-edge
			}
		}

		path = path[:len(path)-1]
		colors[id] = black
		return nil
	}

	for id := range s.Nodes {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func typeIDsToStrings(ids []node.TypeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// validateReachable checks that every node other than start is reachable
// from start via forward edges. Router nodes expand to all of their branches
// for this traversal — reachability only requires that SOME branch lead to
// each node, even though at runtime only one branch of a router fires.
func validateReachable(s *Schema) error {
	visited := make(map[node.TypeID]bool, len(s.Nodes))
	queue := []node.TypeID{s.Start}
	visited[s.Start] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		cfg, ok := s.Nodes[id]
		if !ok {
			continue
		}
		for _, to := range cfg.Connections {
			if !visited[to] {
				visited[to] = true
				queue = append(queue, to)
			}
		}
	}

	var unreachable []string
	for id := range s.Nodes {
		if !visited[id] {
			unreachable = append(unreachable, string(id))
		}
	}
	if len(unreachable) > 0 {
		return errs.UnreachableNodes(unreachable)
	}
	return nil
}

// validateRouterArity enforces is_router iff connections.len() >= 2. Config
// already derives IsRouter at build time (node.Builder.Build), so this pass
// mainly guards against Config values constructed by hand outside the
// builder (e.g. assembled directly in tests or by alternative tooling).
func validateRouterArity(s *Schema) error {
	for id, cfg := range s.Nodes {
		isRouter := len(cfg.Connections) >= 2
		if cfg.IsRouter != isRouter {
			return errs.InvalidRouter(string(id), "is_router must hold iff connections.len() >= 2")
		}
	}
	return nil
}
