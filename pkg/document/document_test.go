package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"json", `{"zeta": 1, "alpha": {"b": true, "a": [1, "x"]}, "mid": null}`},
		{"yaml", "zeta: 1\nalpha:\n  b: true\n  a: [1, x]\nmid: null\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Keys())
			assert.Equal(t, []string{"b", "a"}, doc.Object("alpha").Keys())
			assert.True(t, doc.Object("alpha").Bool("b"))
			assert.Len(t, doc.Object("alpha").Array("a"), 2)
			assert.True(t, doc.Has("mid"))
		})
	}
}

func TestParseRejectsNonMappingRoot(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	require.Error(t, err)

	_, err = Parse([]byte(``))
	require.Error(t, err)
}

func TestParseExpandsAliases(t *testing.T) {
	doc, err := Parse([]byte("defs:\n  pet: &pet {type: object}\nbody: *pet\nlist: [*pet, *pet]\n"))
	require.NoError(t, err)
	assert.Equal(t, "object", doc.Object("body").String("type"))
	assert.Len(t, doc.Array("list"), 2)
}

func TestParseRejectsSelfReferencingAlias(t *testing.T) {
	for _, data := range []string{
		"a: &x\n  b: *x\n",
		"a: &x [1, *x]\n",
		"a: &x\n  b:\n    c: &y\n      d: *x\n",
	} {
		_, err := Parse([]byte(data))
		assert.ErrorContains(t, err, "refers to itself", data)
	}
}

func TestParseRejectsAliasExpansionBomb(t *testing.T) {
	var b strings.Builder
	b.WriteString("l0: &l0 [x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i <= 7; i++ {
		refs := strings.TrimSuffix(strings.Repeat(fmt.Sprintf("*l%d, ", i-1), 9), ", ")
		fmt.Fprintf(&b, "l%d: &l%d [%s]\n", i, i, refs)
	}

	start := time.Now()
	_, err := Parse([]byte(b.String()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "through aliases")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAccessorsOnMissingOrWrongType(t *testing.T) {
	doc, err := Parse([]byte(`{"s": 3, "o": "text"}`))
	require.NoError(t, err)

	assert.Equal(t, "", doc.String("s"))
	assert.Nil(t, doc.Object("o"))
	assert.Nil(t, doc.Array("missing"))
	assert.False(t, doc.Bool("missing"))

	var nilObj *Object
	assert.Equal(t, 0, nilObj.Len())
	assert.Nil(t, nilObj.Keys())
	assert.Equal(t, "", nilObj.String("x"))
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	doc, err := Parse([]byte("b: 1\na:\n  - c: x\n"))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":[{"c":"x"}]}`, string(out))
}

func TestResolveRefs(t *testing.T) {
	doc, err := Parse([]byte(`{
		"paths": {"/pets": {"get": {"parameters": [{"$ref": "#/components/parameters/limit"}]}}},
		"components": {
			"parameters": {"limit": {"name": "limit", "in": "query", "schema": {"$ref": "#/components/schemas/Count"}}},
			"schemas": {
				"Count": {"type": "integer"},
				"Alias": {"$ref": "#/components/schemas/Count"},
				"a~b/c": {"type": "string"}
			}
		},
		"extra": {"alias": {"$ref": "#/components/schemas/Alias"}, "escaped": {"$ref": "#/components/schemas/a~0b~1c"}}
	}`))
	require.NoError(t, err)

	unresolved := ResolveRefs(doc)
	assert.Empty(t, unresolved)

	param := doc.Object("paths").Object("/pets").Object("get").Array("parameters")[0].(*Object)
	assert.Equal(t, "limit", param.String("name"))
	assert.Equal(t, "integer", param.Object("schema").String("type"))
	assert.Equal(t, "integer", doc.Object("extra").Object("alias").String("type"))
	assert.Equal(t, "string", doc.Object("extra").Object("escaped").String("type"))
}

func TestResolveRefsReportsExternalAndDangling(t *testing.T) {
	doc, err := Parse([]byte(`{
		"a": {"$ref": "other.yaml#/Foo"},
		"b": {"$ref": "#/nowhere"},
		"loop1": {"$ref": "#/loop2"},
		"loop2": {"$ref": "#/loop1"}
	}`))
	require.NoError(t, err)

	unresolved := ResolveRefs(doc)
	assert.ElementsMatch(t, []string{"other.yaml#/Foo", "#/nowhere", "#/loop2", "#/loop1"}, unresolved)
	assert.Equal(t, "other.yaml#/Foo", doc.Object("a").String("$ref"))
}

func TestResolveRefsCyclicSchema(t *testing.T) {
	doc, err := Parse([]byte(`{
		"schemas": {
			"Node": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"children": {"type": "array", "items": {"$ref": "#/schemas/Node"}}
				}
			}
		}
	}`))
	require.NoError(t, err)
	require.Empty(t, ResolveRefs(doc))

	node := doc.Object("schemas").Object("Node")
	items := node.Object("properties").Object("children").Object("items")
	assert.Same(t, node, items)

	plain := ToPlain(node).(map[string]any)
	children := plain["properties"].(map[string]any)["children"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "object"}, children["items"])

	_, err = json.Marshal(plain)
	require.NoError(t, err)
}
