package workflow

import (
	"testing"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/node"
)

func cfg(t *testing.T, id node.TypeID, conns ...node.TypeID) *node.Config {
	t.Helper()
	c, err := node.NewConfigBuilder(id).ConnectsTo(conns...).Build()
	if err != nil {
		t.Fatalf("build config %s: %v", id, err)
	}
	return c
}

func TestBuildLinearWorkflow(t *testing.T) {
	b := NewBuilder("linear")
	b.AddNode(cfg(t, "a", "b"))
	b.AddNode(cfg(t, "b", "c"))
	b.AddNode(cfg(t, "c"))
	b.StartAt("a")

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Start != "a" {
		t.Fatalf("expected start=a, got %s", s.Start)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	b := NewBuilder("cyclic")
	b.AddNode(cfg(t, "a", "b"))
	b.AddNode(cfg(t, "b", "a"))
	b.StartAt("a")

	_, err := b.Build()
	if !errs.Is(err, errs.KindCycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestBuildDetectsUnreachable(t *testing.T) {
	b := NewBuilder("orphan")
	b.AddNode(cfg(t, "a"))
	b.AddNode(cfg(t, "orphan"))
	b.StartAt("a")

	_, err := b.Build()
	if !errs.Is(err, errs.KindUnreachableNodes) {
		t.Fatalf("expected UnreachableNodes, got %v", err)
	}
}

func TestBuildDetectsMissingConnectionTarget(t *testing.T) {
	b := NewBuilder("dangling")
	b.AddNode(cfg(t, "a", "ghost"))
	b.StartAt("a")

	_, err := b.Build()
	if !errs.Is(err, errs.KindNodeNotFound) {
		t.Fatalf("expected NodeNotFound, got %v", err)
	}
}

func TestBuildRouterReachabilityTreatsBranchesAsAlternatives(t *testing.T) {
	b := NewBuilder("router")
	b.AddNode(cfg(t, "start", "route"))
	b.AddNode(cfg(t, "route", "branch-a", "branch-b"))
	b.AddNode(cfg(t, "branch-a"))
	b.AddNode(cfg(t, "branch-b"))
	b.StartAt("start")

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	routeCfg, _ := s.Config("route")
	if !routeCfg.IsRouter {
		t.Fatalf("expected route node to be a router")
	}
}

func TestBuildRejectsEmptyName(t *testing.T) {
	b := NewBuilder("")
	b.AddNode(cfg(t, "a"))
	_, err := b.Build()
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestBuildRejectsBadVersion(t *testing.T) {
	b := NewBuilder("v")
	b.Version("not-a-version")
	b.AddNode(cfg(t, "a"))
	_, err := b.Build()
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected Validation error for bad version, got %v", err)
	}
}

func TestBuildAcceptsSemverVersion(t *testing.T) {
	b := NewBuilder("v")
	b.Version("1.2.3")
	b.AddNode(cfg(t, "a"))
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestWithValidatorAppendsCustomPredicate(t *testing.T) {
	called := false
	b := NewBuilder("custom")
	b.AddNode(cfg(t, "a"))
	b.WithValidator(func(s *Schema) error {
		called = true
		return nil
	})
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !called {
		t.Fatalf("expected custom validator to run")
	}
}
