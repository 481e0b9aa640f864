package document

import (
	"strconv"
	"strings"
)

// maxRefHops bounds chains of refs that point at other refs.
const maxRefHops = 32

// ResolveRefs replaces every local reference object ({"$ref": "#/..."}) in
// the tree with the node it points to. Referenced nodes are shared, not
// copied, so recursive schemas become cycles in the resolved tree.
//
// References that are external (no leading "#") or point at nothing are left
// in place; their targets are returned so the caller can report them.
func ResolveRefs(root *Object) []string {
	r := &resolver{root: root, visited: make(map[*Object]bool)}
	r.walk(root)
	return r.unresolved
}

type resolver struct {
	root       *Object
	visited    map[*Object]bool
	unresolved []string
	depth      int
}

func (r *resolver) walk(v any) any {
	switch n := v.(type) {
	case *Object:
		if ref, ok := refOf(n); ok {
			target := r.follow(ref)
			if target == nil {
				r.unresolved = append(r.unresolved, ref)
				return n
			}
			return r.walk(target)
		}
		if r.visited[n] {
			return n
		}
		r.visited[n] = true
		for _, k := range n.keys {
			n.values[k] = r.walk(n.values[k])
		}
		return n
	case []any:
		for i := range n {
			n[i] = r.walk(n[i])
		}
		return n
	default:
		return v
	}
}

// follow dereferences ref, chasing ref-to-ref chains. It returns nil when
// the ref is external, dangling or part of a chain that never lands.
func (r *resolver) follow(ref string) any {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxRefHops {
		return nil
	}
	for hop := 0; hop < maxRefHops; hop++ {
		target, ok := r.lookup(ref)
		if !ok {
			return nil
		}
		obj, isObj := target.(*Object)
		if !isObj {
			return target
		}
		next, isRef := refOf(obj)
		if !isRef {
			return obj
		}
		ref = next
	}
	return nil
}

func (r *resolver) lookup(ref string) (any, bool) {
	if !strings.HasPrefix(ref, "#") {
		return nil, false
	}
	pointer := strings.TrimPrefix(ref, "#")
	if pointer == "" {
		return r.root, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	var cur any = r.root
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		if obj, ok := cur.(*Object); ok {
			if inner, isRef := refOf(obj); isRef {
				resolved := r.follow(inner)
				if resolved == nil {
					return nil, false
				}
				cur = resolved
			}
		}
		switch n := cur.(type) {
		case *Object:
			v, ok := n.Get(token)
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			cur = n[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func refOf(o *Object) (string, bool) {
	v, ok := o.Get("$ref")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
