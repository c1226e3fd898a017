package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/cache"
)

// RemoteProvider fetches the dependency graph from an external topology
// service, optionally caching snapshots through a cache.Provider.
type RemoteProvider struct {
	baseURL    string
	graphPath  string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
}

// NewRemoteProvider constructs a provider targeting the configured endpoint.
func NewRemoteProvider(baseURL, graphPath string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *RemoteProvider {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &RemoteProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		graphPath: graphPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    cacheProvider,
		cacheTTL: cacheTTL,
	}
}

type remoteGraphResponse struct {
	Nodes       []string           `json:"nodes"`
	Edges       []Edge             `json:"edges"`
	Criticality map[string]float64 `json:"criticality"`
}

// Snapshot retrieves the current topology, serving from cache when fresh.
func (p *RemoteProvider) Snapshot(ctx context.Context) (*Graph, error) {
	if p == nil {
		return nil, fmt.Errorf("remote graph provider not initialised")
	}
	if p.baseURL == "" {
		return nil, fmt.Errorf("remote graph base URL not configured")
	}

	// The cache provider owns key namespacing.
	const cacheKey = "dependency-graph"
	if payload, err := p.cache.Get(ctx, cacheKey); err == nil {
		var cached remoteGraphResponse
		if err := json.Unmarshal(payload, &cached); err == nil {
			return New(cached.Nodes, cached.Edges, cached.Criticality), nil
		}
	}

	var response remoteGraphResponse
	if err := p.getJSON(ctx, p.graphURL(), &response); err != nil {
		return nil, fmt.Errorf("dependency graph request failed: %w", err)
	}
	if len(response.Edges) == 0 && len(response.Nodes) == 0 {
		return nil, fmt.Errorf("dependency graph endpoint returned an empty topology")
	}

	if p.cacheTTL > 0 {
		if payload, err := json.Marshal(response); err == nil {
			_ = p.cache.Set(ctx, cacheKey, payload, p.cacheTTL)
		}
	}

	return New(response.Nodes, response.Edges, response.Criticality), nil
}

func (p *RemoteProvider) graphURL() string {
	if p.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p.graphPath, "/")
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return p.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (p *RemoteProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("topology service returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
