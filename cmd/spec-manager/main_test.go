package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/services"
)

func TestPrintSpecs(t *testing.T) {
	var buf bytes.Buffer
	printSpecs(&buf, nil)
	assert.Equal(t, "No specs found in the database.\n", buf.String())

	weather := models.NewOpenAPISpec("weather", "weather.yaml", "openapi: 3.0.0")
	weather.ID = 1
	weather.Title = models.OptionalString("A very long weather forecast API title")
	weather.Mode = models.OptionalString("search")
	weather.BaseURL = models.OptionalString("https://weather.test")

	legacy := models.NewOpenAPISpec("legacy", "legacy.json", "{}")
	legacy.ID = 2
	legacy.IsActive = false

	buf.Reset()
	printSpecs(&buf, []*models.OpenAPISpec{weather, legacy})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "A very long weather forecast...")
	assert.Contains(t, lines[2], "search")
	assert.Contains(t, lines[2], "https://weather.test")
	assert.Contains(t, lines[3], "false")
	assert.Contains(t, lines[3], " - ")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 8))
	assert.Equal(t, "exactly8", truncate("exactly8", 8))
	assert.Equal(t, "too-long...", truncate("too-long-name", 8))
}

func TestReport(t *testing.T) {
	spec := models.NewOpenAPISpec("pets", "pets.yaml", "openapi: 3.0.0")
	ok := &services.ImportResult{Spec: spec, Endpoints: 4, Warnings: []string{"unresolved reference #/x"}}

	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	require.NoError(t, report(cmd, []*services.ImportResult{ok}, []error{errors.New("bad.yaml: broken")}))
	assert.Contains(t, out.String(), "✓ Imported pets.yaml as 'pets' (active, 4 endpoints)")
	assert.Contains(t, out.String(), "warning: unresolved reference #/x")
	assert.Contains(t, out.String(), "1 specs imported successfully")
	assert.Contains(t, errOut.String(), "Warning: bad.yaml: broken")

	assert.Error(t, report(cmd, nil, []error{errors.New("x")}))
	assert.NoError(t, report(cmd, nil, nil))
}

type lookupStub map[string]*models.OpenAPISpec

func (l lookupStub) Get(name string) (*models.OpenAPISpec, error) {
	if spec, ok := l[name]; ok {
		return spec, nil
	}
	return nil, errors.New("not found")
}

func (l lookupStub) GetByID(id int) (*models.OpenAPISpec, error) {
	for _, spec := range l {
		if spec.ID == id {
			return spec, nil
		}
	}
	return nil, errors.New("not found")
}

func TestLookupSpec(t *testing.T) {
	weather := models.NewOpenAPISpec("weather", "weather.yaml", "openapi: 3.0.0")
	weather.ID = 3
	specs := lookupStub{"weather": weather}

	got, err := lookupSpec(specs, "weather", false)
	require.NoError(t, err)
	assert.Same(t, weather, got)

	got, err = lookupSpec(specs, "3", true)
	require.NoError(t, err)
	assert.Same(t, weather, got)

	_, err = lookupSpec(specs, "3", false)
	assert.Error(t, err, "without --id the argument is a name")

	_, err = lookupSpec(specs, "weather", true)
	assert.ErrorContains(t, err, "invalid spec id")
}

func TestCommandsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := newRootCmd()
	root.SetArgs([]string{"list"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
