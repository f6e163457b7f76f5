package workflow

import (
	"testing"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/node"
)

func TestValidateRouterArityRejectsHandBuiltMismatch(t *testing.T) {
	s := &Schema{
		Start: "a",
		Nodes: map[node.TypeID]*node.Config{
			"a": {Type: "a", Connections: []node.TypeID{"b", "c"}, IsRouter: false},
			"b": {Type: "b"},
			"c": {Type: "c"},
		},
	}
	err := validateRouterArity(s)
	if !errs.Is(err, errs.KindInvalidRouter) {
		t.Fatalf("expected InvalidRouter, got %v", err)
	}
}

func TestValidateAcyclicSelfLoop(t *testing.T) {
	s := &Schema{
		Start: "a",
		Nodes: map[node.TypeID]*node.Config{
			"a": {Type: "a", Connections: []node.TypeID{"a"}},
		},
	}
	err := validateAcyclic(s)
	if !errs.Is(err, errs.KindCycleDetected) {
		t.Fatalf("expected CycleDetected for self loop, got %v", err)
	}
}

func TestValidateReachableAllowsDiamond(t *testing.T) {
	s := &Schema{
		Start: "a",
		Nodes: map[node.TypeID]*node.Config{
			"a": {Type: "a", Connections: []node.TypeID{"b", "c"}},
			"b": {Type: "b", Connections: []node.TypeID{"d"}},
			"c": {Type: "c", Connections: []node.TypeID{"d"}},
			"d": {Type: "d"},
		},
	}
	if err := validateReachable(s); err != nil {
		t.Fatalf("expected diamond graph reachable, got %v", err)
	}
}
