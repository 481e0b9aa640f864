package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/document"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
)

const consoleSpec = `openapi: 3.0.3
info: {title: Pets, version: "1"}
paths:
  /pets/{id}:
    get:
      operationId: getPet
      summary: Get a pet
      tags: [pet]
      parameters:
        - {name: id, in: path, required: true, schema: {type: integer}}
      responses: {"200": {description: ok}}
  /orders:
    post:
      operationId: placeOrder
      summary: Place an order
      tags: [store]
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [petId]
              properties:
                petId: {type: integer}
      responses: {"200": {description: ok}}
`

func newTestConsole(t *testing.T, mode openapi2mcp.Mode) (*console, *bytes.Buffer) {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/pets/5":
			fmt.Fprint(w, `{"id":5}`)
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			fmt.Fprint(w, "ordered")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)

	doc, err := document.Parse([]byte(consoleSpec))
	require.NoError(t, err)
	document.ResolveRefs(doc)
	spec, err := openapi2mcp.Normalize(doc)
	require.NoError(t, err)

	d := openapi2mcp.NewDispatcher(openapi2mcp.BuildTools(spec.Endpoints, nil), openapi2mcp.DispatcherOptions{
		Mode:       mode,
		BaseURL:    api.URL,
		HTTPClient: api.Client(),
	})
	var out bytes.Buffer
	return newConsole(func() *openapi2mcp.Dispatcher { return d }, &out), &out
}

func TestConsoleTools(t *testing.T) {
	c, out := newTestConsole(t, openapi2mcp.ModeFull)

	require.NoError(t, c.exec(context.Background(), "tools"))
	assert.Contains(t, out.String(), "get_pet")
	assert.Contains(t, out.String(), "place_order")
	assert.Contains(t, out.String(), "2 tools")

	out.Reset()
	require.NoError(t, c.exec(context.Background(), "tools /orders"))
	assert.NotContains(t, out.String(), "get_pet")
	assert.Contains(t, out.String(), "1 tools")
}

func TestConsoleSearch(t *testing.T) {
	c, out := newTestConsole(t, openapi2mcp.ModeFull)

	require.NoError(t, c.exec(context.Background(), "search pet"))
	assert.Contains(t, out.String(), "get_pet")
	assert.Contains(t, out.String(), "Get a pet")

	out.Reset()
	require.NoError(t, c.exec(context.Background(), "search order --method GET"))
	assert.Equal(t, "No endpoints found matching 'order'. Available tags: pet, store\n", out.String())

	out.Reset()
	require.NoError(t, c.exec(context.Background(), "search order --tag store --limit 1"))
	assert.Contains(t, out.String(), "place_order")
}

func TestConsoleCall(t *testing.T) {
	for _, mode := range []openapi2mcp.Mode{openapi2mcp.ModeFull, openapi2mcp.ModeSearch} {
		t.Run(string(mode), func(t *testing.T) {
			c, out := newTestConsole(t, mode)

			require.NoError(t, c.exec(context.Background(), `call get_pet {"id": 5}`))
			assert.Contains(t, out.String(), `"id": 5`)

			out.Reset()
			require.NoError(t, c.exec(context.Background(), `call get_pet {"id": 6}`))
			assert.Contains(t, out.String(), "error:")
		})
	}
}

func TestConsoleCallCheck(t *testing.T) {
	c, out := newTestConsole(t, openapi2mcp.ModeFull)

	err := c.exec(context.Background(), `call --check place_order {"petId": "seven"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
	assert.Empty(t, out.String())

	require.NoError(t, c.exec(context.Background(), `call --check place_order {"petId": -7}`))
	assert.Contains(t, out.String(), "ordered")
}

func TestConsoleErrors(t *testing.T) {
	c, _ := newTestConsole(t, openapi2mcp.ModeFull)
	ctx := context.Background()

	assert.ErrorContains(t, c.exec(ctx, "call nope"), `unknown tool "nope"`)
	assert.ErrorContains(t, c.exec(ctx, "call get_pet {not json"), "JSON object")
	assert.ErrorContains(t, c.exec(ctx, "schema nope"), "unknown tool")
	assert.Error(t, c.exec(ctx, "frobnicate"))
	assert.NoError(t, c.exec(ctx, "   "))
}

func TestConsoleSchemaSummaryQuit(t *testing.T) {
	c, out := newTestConsole(t, openapi2mcp.ModeFull)
	ctx := context.Background()

	require.NoError(t, c.exec(ctx, "schema get_pet"))
	assert.Contains(t, out.String(), `"required"`)

	out.Reset()
	require.NoError(t, c.exec(ctx, "summary"))
	assert.Contains(t, out.String(), "Total tools: 2")

	assert.False(t, c.quit)
	require.NoError(t, c.exec(ctx, "exit"))
	assert.True(t, c.quit)
}

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"id"},
		"properties": map[string]any{
			"id": map[string]any{"type": "number"},
		},
	}
	assert.NoError(t, validateArgs(schema, map[string]any{"id": 1.0}))
	err := validateArgs(schema, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}
