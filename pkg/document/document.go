// Package document holds the loader-side view of an OpenAPI or Swagger
// document: a generic tree that keeps mapping keys in declaration order, plus
// a resolver for local $ref pointers.
//
// Declaration order matters to the normalizer (paths, methods and request body
// content types are all walked in the order the author wrote them), which is
// why documents are decoded through yaml.v3 nodes rather than into plain maps.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Object is an ordered string-keyed mapping.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set stores v under key, appending key to the order if it is new.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns the keys in declaration order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// String returns the value under key if it is a string, otherwise "".
func (o *Object) String(key string) string {
	v, _ := o.Get(key)
	s, _ := v.(string)
	return s
}

// Object returns the value under key if it is a mapping, otherwise nil.
func (o *Object) Object(key string) *Object {
	v, _ := o.Get(key)
	obj, _ := v.(*Object)
	return obj
}

// Array returns the value under key if it is a sequence, otherwise nil.
func (o *Object) Array(key string) []any {
	v, _ := o.Get(key)
	arr, _ := v.([]any)
	return arr
}

func (o *Object) Bool(key string) bool {
	v, _ := o.Get(key)
	b, _ := v.(bool)
	return b
}

// MarshalJSON encodes the object with its keys in declaration order. It does
// not guard against cycles; use ToPlain on resolved trees.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes a JSON or YAML document whose root is a mapping.
func Parse(data []byte) (*Object, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("document is empty")
	}
	dec := &decoder{
		expanding: make(map[*yaml.Node]bool),
		budget:    aliasBudget(root.Content[0]),
	}
	v, err := dec.fromNode(root.Content[0])
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("document root must be a mapping, got %T", v)
	}
	return obj, nil
}

// maxAliasGrowth bounds how many nodes alias expansion may add per node
// written in the document.
const (
	maxAliasGrowth = 10
	minAliasBudget = 10000
)

// decoder converts yaml nodes into the ordered tree. Aliases are expanded in
// place; an alias reached again while its anchor is still being expanded is
// an error, and so is a document whose expansion exceeds budget nodes.
type decoder struct {
	expanding map[*yaml.Node]bool
	decoded   int
	budget    int
}

// aliasBudget counts the nodes written in the document, without following
// aliases, and derives the expansion limit from it.
func aliasBudget(root *yaml.Node) int {
	written := 0
	var count func(n *yaml.Node)
	count = func(n *yaml.Node) {
		written++
		if n.Kind == yaml.AliasNode {
			return
		}
		for _, c := range n.Content {
			count(c)
		}
	}
	count(root)
	return written*maxAliasGrowth + minAliasBudget
}

func (d *decoder) fromNode(n *yaml.Node) (any, error) {
	d.decoded++
	if d.decoded > d.budget {
		return nil, fmt.Errorf("line %d: document expands to more than %d nodes through aliases", n.Line, d.budget)
	}
	switch n.Kind {
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key must be a scalar", key.Line)
			}
			v, err := d.fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(key.Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.fromNode(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d: unknown anchor %q", n.Line, n.Value)
		}
		if d.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: alias *%s refers to itself", n.Line, n.Value)
		}
		d.expanding[n.Alias] = true
		v, err := d.fromNode(n.Alias)
		delete(d.expanding, n.Alias)
		return v, err
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// ToPlain converts a tree into plain maps and slices suitable for
// encoding/json. A mapping that is reached again while it is still being
// converted (a cyclic schema) is cut to {"type": "object"}.
func ToPlain(v any) any {
	return toPlain(v, make(map[*Object]bool))
}

func toPlain(v any, active map[*Object]bool) any {
	switch n := v.(type) {
	case *Object:
		if active[n] {
			return map[string]any{"type": "object"}
		}
		active[n] = true
		m := make(map[string]any, len(n.keys))
		for _, k := range n.keys {
			m[k] = toPlain(n.values[k], active)
		}
		delete(active, n)
		return m
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = toPlain(e, active)
		}
		return out
	default:
		return v
	}
}
