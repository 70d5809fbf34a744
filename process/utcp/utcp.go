// Package utcp compiles the HTTP tool manifests declared at process
// top-level into callable operations for the utcp_agent kind. The
// manifest is fully inline in the YAML document, so "fetching" it means
// compiling it once at construction rather than retrieving it over the
// network.
package utcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmoreira/graphflow/process/dsl"
)

// Operation is one compiled, callable endpoint within a manifest.
type Operation struct {
	Name        string
	Description string
	Method      string
	Endpoint    string
	Parameters  map[string]any
}

// Manifest is a compiled tool manifest: a base URL, an auth decorator and
// its operations, indexed by name.
type Manifest struct {
	Name       string
	BaseURL    string
	authType   string
	authSecret string
	Operations map[string]Operation
}

// Registry compiles and caches manifests declared in a process document,
// and rate-limits outbound calls per host so a misbehaving process can't
// hammer a third-party tool provider.
type Registry struct {
	httpClient *http.Client

	mu        sync.Mutex
	manifests map[string]*Manifest
	limiters  map[string]*rate.Limiter
}

// NewRegistry builds a Registry from the tools section of a loaded
// document. Each manifest is compiled exactly once; source is the
// manifest name, so a process referencing the same manifest from
// multiple utcp_agent nodes shares one compiled entry and one rate
// limiter.
func NewRegistry(defs map[string]dsl.ToolManifestDef, timeout time.Duration) (*Registry, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	r := &Registry{
		httpClient: &http.Client{Timeout: timeout},
		manifests:  make(map[string]*Manifest, len(defs)),
		limiters:   make(map[string]*rate.Limiter),
	}
	for name, def := range defs {
		m, err := compileManifest(name, def)
		if err != nil {
			return nil, fmt.Errorf("utcp: compile manifest %q: %w", name, err)
		}
		r.manifests[name] = m
		r.limiterFor(m.BaseURL)
	}
	return r, nil
}

func compileManifest(name string, def dsl.ToolManifestDef) (*Manifest, error) {
	m := &Manifest{
		Name:       name,
		BaseURL:    strings.TrimRight(def.ProviderConfig.BaseURL, "/"),
		authType:   def.ProviderConfig.Auth.Type,
		authSecret: def.ProviderConfig.Auth.Secret,
		Operations: make(map[string]Operation, len(def.Tools)),
	}
	for _, op := range def.Tools {
		m.Operations[op.Name] = Operation{
			Name:        op.Name,
			Description: op.Description,
			Method:      strings.ToUpper(op.Method),
			Endpoint:    op.Endpoint,
			Parameters:  op.Parameters,
		}
	}
	return m, nil
}

// limiterFor returns the shared rate limiter for a host, creating one at
// a conservative default (5 req/s, burst 5) on first use.
func (r *Registry) limiterFor(baseURL string) *rate.Limiter {
	host := hostOf(baseURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(5), 5)
	r.limiters[host] = l
	return l
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Host
}

// Has reports whether a manifest with the given name was compiled.
// Satisfies validation of utcp_agent.tools references.
func (r *Registry) Has(name string) bool {
	_, ok := r.manifests[name]
	return ok
}

// Schemas returns each operation's description keyed by operation name,
// for surfacing to the model. Operation parameters are not included.
func (r *Registry) Schemas(manifestName string) (map[string]string, error) {
	m, ok := r.manifests[manifestName]
	if !ok {
		return nil, fmt.Errorf("utcp: unknown manifest %q", manifestName)
	}
	out := make(map[string]string, len(m.Operations))
	for n, op := range m.Operations {
		out[n] = op.Description
	}
	return out, nil
}

// Invoke calls a named operation within a manifest, substituting args
// into the endpoint's path placeholders and, for methods other than
// GET/DELETE, also sending all args as the JSON body, honoring the
// manifest's per-host rate limit.
func (r *Registry) Invoke(ctx context.Context, manifestName, opName string, args map[string]any) (string, error) {
	r.mu.Lock()
	m, ok := r.manifests[manifestName]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("utcp: unknown manifest %q", manifestName)
	}
	op, ok := m.Operations[opName]
	if !ok {
		return "", fmt.Errorf("utcp: unknown operation %q in manifest %q", opName, manifestName)
	}

	limiter := r.limiterFor(m.BaseURL)
	if err := limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("utcp: rate limit wait: %w", err)
	}

	endpoint := m.BaseURL + substitutePath(op.Endpoint, args)

	var body io.Reader
	method := op.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodDelete {
		payload, err := json.Marshal(args)
		if err != nil {
			return "", fmt.Errorf("utcp: encode body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyAuth(httpReq, m)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("utcp: request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("utcp: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("utcp: %s %s returned status %d: %s", method, endpoint, resp.StatusCode, string(data))
	}
	return string(data), nil
}

func applyAuth(req *http.Request, m *Manifest) {
	if m.authType != "bearer" || m.authSecret == "" {
		return
	}
	token := os.Getenv(m.authSecret)
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// substitutePath replaces {key} placeholders in an endpoint path with
// stringified argument values, in the style of a path-parameter OpenAPI
// operation; args without a matching placeholder are ignored here.
func substitutePath(endpoint string, args map[string]any) string {
	for k, v := range args {
		endpoint = strings.ReplaceAll(endpoint, "{"+k+"}", fmt.Sprint(v))
	}
	return endpoint
}
