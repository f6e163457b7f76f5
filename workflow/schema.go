// Package workflow builds and validates workflow graphs: a mapping from node
// type identifier to NodeConfig plus a designated start node, checked at
// build time for structural soundness (acyclic, fully reachable, router
// arity consistent).
package workflow

import (
	"regexp"
	"time"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/node"
)

// Schema is an immutable, validated workflow graph: a mapping from node type
// identifier to NodeConfig, plus a designated start node. Build via Builder.
type Schema struct {
	Name    string
	Version string
	Start   node.TypeID
	Nodes   map[node.TypeID]*node.Config
}

// Config returns the NodeConfig for id, if present.
func (s *Schema) Config(id node.TypeID) (*node.Config, bool) {
	cfg, ok := s.Nodes[id]
	return cfg, ok
}

// Builder constructs a Schema, mirroring the teacher's Add/StartAt/Connect
// trio (graph/engine.go) but deferring all structural validation to Build().
type Builder struct {
	name       string
	version    string
	start      node.TypeID
	startSet   bool
	nodes      map[node.TypeID]*node.Config
	order      []node.TypeID
	validators []Validator
}

// NewBuilder starts building a schema named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:       name,
		nodes:      make(map[node.TypeID]*node.Config),
		validators: defaultValidators(),
	}
}

// Version sets the schema's semantic-version-like version string.
func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

// AddNode registers cfg's node under its type identifier. The first node
// added becomes the start node unless StartAt is called explicitly.
func (b *Builder) AddNode(cfg *node.Config) *Builder {
	b.nodes[cfg.Type] = cfg
	b.order = append(b.order, cfg.Type)
	if !b.startSet && b.start == "" {
		b.start = cfg.Type
	}
	return b
}

// StartAt designates id as the start node explicitly.
func (b *Builder) StartAt(id node.TypeID) *Builder {
	b.start = id
	b.startSet = true
	return b
}

// WithValidator appends an additional structural predicate to run at Build
// time, alongside the five the core always runs.
func (b *Builder) WithValidator(v Validator) *Builder {
	b.validators = append(b.validators, v)
	return b
}

var semverLike = regexp.MustCompile(`^\d+\.\d+(\.\d+)?([-+].+)?$`)

// Build runs the full validation pipeline (§4.4) and returns the finished
// Schema, or the first validation error encountered.
func (b *Builder) Build() (*Schema, error) {
	if b.name == "" {
		return nil, errs.Validation("name", "must be non-empty")
	}
	if b.version != "" && !semverLike.MatchString(b.version) {
		return nil, errs.Validation("version", "must be a semantic-version-like string")
	}
	if len(b.nodes) == 0 {
		return nil, errs.Validation("nodes", "schema must declare at least one node")
	}
	if b.start == "" {
		return nil, errs.Validation("start", "schema must designate a start node")
	}
	if _, ok := b.nodes[b.start]; !ok {
		return nil, errs.NodeNotFound(string(b.start))
	}

	s := &Schema{Name: b.name, Version: b.version, Start: b.start, Nodes: b.nodes}
	for _, v := range b.validators {
		if err := v(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Validator is a pluggable structural predicate run over a candidate Schema
// at Build time. The core ships five (four in validate.go, plus
// validateMetadata below); callers may append
// more via Builder.WithValidator.
type Validator func(*Schema) error

func defaultValidators() []Validator {
	return []Validator{
		validateConnectionsExist,
		validateAcyclic,
		validateReachable,
		validateRouterArity,
		validateMetadata,
	}
}

// validateMetadata enforces the per-node timeout constraint: a set timeout
// must be at least 1ms. Name and version are checked in Build.
func validateMetadata(s *Schema) error {
	for id, cfg := range s.Nodes {
		if cfg.Timeout < 0 {
			return errs.Validation("timeout", "must be strictly positive if set ("+string(id)+")")
		}
		if cfg.Timeout > 0 && cfg.Timeout < time.Millisecond {
			return errs.Validation("timeout", "must be at least 1ms if set ("+string(id)+")")
		}
	}
	return nil
}
