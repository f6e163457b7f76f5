// Package taskctx provides the typed key/value bag threaded through a single
// workflow execution: metadata set by callers, and per-node output recorded
// as each node completes. Values are stored as raw JSON under the hood so the
// bag stays serializable without requiring every node to agree on a single Go
// type, while gjson/sjson give callers ergonomic typed access on top.
package taskctx

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/flowcore/wfengine/errs"
)

// Context is the per-execution context threaded through a workflow run. The
// zero value is not usable; construct with New.
//
// Reads never fail — a missing key yields the zero Value and found=false.
// Writes never fail for well-typed (JSON-marshalable) values; malformed
// input returns a Serialization error rather than panicking.
type Context struct {
	EventID   string
	Metadata  map[string]json.RawMessage
	Nodes     map[string]json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an empty Context with a freshly generated event id.
func New() *Context {
	now := time.Now().UTC()
	return &Context{
		EventID:   uuid.NewString(),
		Metadata:  make(map[string]json.RawMessage),
		Nodes:     make(map[string]json.RawMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Value is an opaque JSON value returned by the getters below. Use Raw to
// access the underlying bytes, or one of the As* helpers for typed access.
type Value struct {
	raw json.RawMessage
}

// Raw returns the underlying JSON bytes.
func (v Value) Raw() json.RawMessage { return v.raw }

// String returns the value as a string via gjson, without requiring the
// value be JSON-quoted text — matches gjson.Result.String semantics.
func (v Value) String() string {
	return gjson.ParseBytes(v.raw).String()
}

// Int returns the value as an int64 via gjson.
func (v Value) Int() int64 {
	return gjson.ParseBytes(v.raw).Int()
}

// Float returns the value as a float64 via gjson.
func (v Value) Float() float64 {
	return gjson.ParseBytes(v.raw).Float()
}

// Bool returns the value as a bool via gjson.
func (v Value) Bool() bool {
	return gjson.ParseBytes(v.raw).Bool()
}

// As unmarshals the value into dst, which must be a pointer.
func (v Value) As(dst any) error {
	if err := json.Unmarshal(v.raw, dst); err != nil {
		return errs.Serialization("taskctx: decode value: " + err.Error())
	}
	return nil
}

func encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, errs.Serialization("taskctx: encode value: " + err.Error())
	}
	return b, nil
}

// GetMetadata returns the metadata value for key, if present.
func (c *Context) GetMetadata(key string) (Value, bool) {
	raw, ok := c.Metadata[key]
	if !ok {
		return Value{}, false
	}
	return Value{raw: raw}, true
}

// SetMetadata records value under key, overwriting any previous value.
func (c *Context) SetMetadata(key string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	c.Metadata[key] = raw
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// GetNodeOutput returns the recorded output of node id, if present.
func (c *Context) GetNodeOutput(id string) (Value, bool) {
	raw, ok := c.Nodes[id]
	if !ok {
		return Value{}, false
	}
	return Value{raw: raw}, true
}

// SetNodeOutput records value as the output of node id, overwriting any
// previous output for that node.
func (c *Context) SetNodeOutput(id string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	c.Nodes[id] = raw
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// PatchMetadata sets a single JSON path within the metadata value at key
// using sjson path syntax, without requiring the caller to round-trip the
// whole value through Go types. Useful for node implementations that only
// need to amend one field of a larger structured value.
func (c *Context) PatchMetadata(key, path string, value any) error {
	existing := []byte("{}")
	if raw, ok := c.Metadata[key]; ok {
		existing = raw
	}
	updated, err := sjson.SetBytes(existing, path, value)
	if err != nil {
		return errs.Serialization("taskctx: patch metadata: " + err.Error())
	}
	c.Metadata[key] = updated
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Merge folds other into c using last-writer-wins semantics per key: any key
// present in other overwrites the same key in c. other's EventID is ignored;
// c keeps its own identity. UpdatedAt takes other's value when that is
// later than c's, and the current time otherwise.
func (c *Context) Merge(other *Context) {
	if other == nil {
		return
	}
	for k, v := range other.Metadata {
		c.Metadata[k] = v
	}
	for k, v := range other.Nodes {
		c.Nodes[k] = v
	}
	if other.UpdatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = other.UpdatedAt
	} else {
		c.UpdatedAt = time.Now().UTC()
	}
}

// wireContext is the JSON-on-the-wire shape for Context, kept distinct from
// the in-memory struct so field renames don't silently change serialization.
type wireContext struct {
	EventID   string                     `json:"event_id"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
	Nodes     map[string]json.RawMessage `json:"nodes"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Serialize renders c as canonical JSON bytes.
func (c *Context) Serialize() ([]byte, error) {
	w := wireContext{
		EventID:   c.EventID,
		Metadata:  c.Metadata,
		Nodes:     c.Nodes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Serialization("taskctx: serialize: " + err.Error())
	}
	return b, nil
}

// Deserialize parses bytes produced by Serialize back into a Context.
func Deserialize(data []byte) (*Context, error) {
	var w wireContext
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Serialization("taskctx: deserialize: " + err.Error())
	}
	if w.Metadata == nil {
		w.Metadata = make(map[string]json.RawMessage)
	}
	if w.Nodes == nil {
		w.Nodes = make(map[string]json.RawMessage)
	}
	return &Context{
		EventID:   w.EventID,
		Metadata:  w.Metadata,
		Nodes:     w.Nodes,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}, nil
}

// Clone returns a deep copy of c, safe to mutate independently.
func (c *Context) Clone() *Context {
	out := &Context{
		EventID:   c.EventID,
		Metadata:  make(map[string]json.RawMessage, len(c.Metadata)),
		Nodes:     make(map[string]json.RawMessage, len(c.Nodes)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for k, v := range c.Metadata {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out.Metadata[k] = cp
	}
	for k, v := range c.Nodes {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out.Nodes[k] = cp
	}
	return out
}
