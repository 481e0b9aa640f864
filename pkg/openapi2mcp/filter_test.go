package openapi2mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterEndpoints(t *testing.T) {
	endpoints := []*EndpointDescriptor{
		{OperationID: "getPetById", Method: "GET", Path: "/pet/{petId}", Tags: []string{"pet"}},
		{OperationID: "deletePet", Method: "DELETE", Path: "/pet/{petId}", Tags: []string{"pet"}},
		{OperationID: "getInventory", Method: "GET", Path: "/store/inventory", Tags: []string{"Store"}},
		{OperationID: "createUser", Method: "POST", Path: "/user"},
	}
	ids := func(eps []*EndpointDescriptor) []string {
		var out []string
		for _, ep := range eps {
			out = append(out, ep.OperationID)
		}
		return out
	}

	tests := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{"no filter", FilterOptions{}, []string{"getPetById", "deletePet", "getInventory", "createUser"}},
		{"tags are case-insensitive", FilterOptions{Tags: []string{"store", " "}}, []string{"getInventory"}},
		{"include matches operation id", FilterOptions{Include: "^get"}, []string{"getPetById", "getInventory"}},
		{"include matches path", FilterOptions{Include: "^/user"}, []string{"createUser"}},
		{"exclude", FilterOptions{Exclude: "(?i)delete"}, []string{"getPetById", "getInventory", "createUser"}},
		{"combined", FilterOptions{Tags: []string{"pet"}, Exclude: "delete"}, []string{"getPetById"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterEndpoints(endpoints, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterEndpointsInvalidPattern(t *testing.T) {
	_, err := FilterEndpoints(nil, FilterOptions{Include: "("})
	assert.ErrorContains(t, err, "include")

	_, err = FilterEndpoints(nil, FilterOptions{Exclude: "[a-"})
	assert.ErrorContains(t, err, "exclude")
}
