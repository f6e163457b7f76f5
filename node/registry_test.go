package node

import (
	"context"
	"testing"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/taskctx"
)

func noop(id TypeID) Node {
	return Func{ID: id, Run: func(ctx context.Context, tc *taskctx.Context) (*taskctx.Context, error) {
		return tc, nil
	}}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(noop("fetch")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	impl, ok := r.Lookup("fetch")
	if !ok {
		t.Fatalf("expected lookup hit")
	}
	if impl.TypeID() != "fetch" {
		t.Fatalf("got %s, want fetch", impl.TypeID())
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(noop("fetch")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register(noop("fetch"))
	if !errs.Is(err, errs.KindConfiguration) {
		t.Fatalf("expected Configuration error on duplicate, got %v", err)
	}
}

func TestMustLookupMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.MustLookup("missing")
	if !errs.Is(err, errs.KindNodeNotFound) {
		t.Fatalf("expected NodeNotFound error, got %v", err)
	}
}

func TestRouteRoundTrip(t *testing.T) {
	tc := taskctx.New()
	if err := SetRoute(tc, "branch-b"); err != nil {
		t.Fatalf("SetRoute: %v", err)
	}
	got, ok := GetRoute(tc)
	if !ok || got != "branch-b" {
		t.Fatalf("expected branch-b, got %q ok=%v", got, ok)
	}
}
