package utcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoreira/graphflow/process/dsl"
)

func manifestFor(baseURL string) map[string]dsl.ToolManifestDef {
	return map[string]dsl.ToolManifestDef{
		"crm": {
			Description:  "CRM tool surface",
			ProviderType: "http",
			ProviderConfig: dsl.ToolProviderConfigDef{
				BaseURL: baseURL,
				Auth:    dsl.ToolAuthDef{Type: "bearer", Secret: "UTCP_TEST_TOKEN"},
			},
			Tools: []dsl.ToolOperationDef{
				{Name: "get_lead", Description: "Fetch one lead", Endpoint: "/leads/{id}", Method: "GET"},
				{Name: "create_lead", Description: "Create a lead", Endpoint: "/leads", Method: "POST"},
			},
		},
	}
}

func TestInvokeGETSubstitutesPathAndSendsBearer(t *testing.T) {
	t.Setenv("UTCP_TEST_TOKEN", "sekrit")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads/42", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		io.WriteString(w, `{"id": 42, "name": "Ada"}`)
	}))
	defer srv.Close()

	reg, err := NewRegistry(manifestFor(srv.URL), time.Second)
	require.NoError(t, err)

	body, err := reg.Invoke(context.Background(), "crm", "get_lead", map[string]any{"id": 42})
	require.NoError(t, err)
	assert.Contains(t, body, "Ada")
}

func TestInvokePOSTSendsArgsAsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Ada", payload["name"])
		io.WriteString(w, `{"id": 1}`)
	}))
	defer srv.Close()

	reg, err := NewRegistry(manifestFor(srv.URL), time.Second)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "crm", "create_lead", map[string]any{"name": "Ada"})
	require.NoError(t, err)
}

func TestInvokeSurfacesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "lead not found", http.StatusNotFound)
	}))
	defer srv.Close()

	reg, err := NewRegistry(manifestFor(srv.URL), time.Second)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "crm", "get_lead", map[string]any{"id": 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestInvokeUnknownManifestOrOperation(t *testing.T) {
	reg, err := NewRegistry(manifestFor("http://localhost:0"), time.Second)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "ghost", "get_lead", nil)
	assert.Error(t, err)

	_, err = reg.Invoke(context.Background(), "crm", "ghost_op", nil)
	assert.Error(t, err)
}

func TestSchemasListsOperations(t *testing.T) {
	reg, err := NewRegistry(manifestFor("http://localhost:0"), time.Second)
	require.NoError(t, err)

	ops, err := reg.Schemas("crm")
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	assert.Equal(t, "Fetch one lead", ops["get_lead"])
	assert.True(t, reg.Has("crm"))
	assert.False(t, reg.Has("erp"))
}
