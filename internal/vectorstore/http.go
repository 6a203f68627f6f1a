package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// HTTPConfig addresses a direct host/port vector-store endpoint.
type HTTPConfig struct {
	Host    string
	Port    int
	SSL     bool
	Headers map[string]string
	Timeout time.Duration
}

// CloudConfig addresses a managed, multi-tenant vector-store endpoint.
type CloudConfig struct {
	Tenant   string
	Database string
	APIKey   string
	Host     string
	Port     int
	SSL      bool
	Timeout  time.Duration
}

// NewHTTPClient constructs a Client against a direct HTTP(S) endpoint.
func NewHTTPClient(cfg HTTPConfig) (Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("vectorstore: host is required")
	}
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	return &httpClient{
		baseURL: base,
		headers: cfg.Headers,
		http:    &http.Client{Timeout: timeout},
		handles: map[string]*httpCollection{},
	}, nil
}

// NewCloudClient constructs a Client against a tenant/database/api-key
// managed endpoint.
func NewCloudClient(cfg CloudConfig) (Client, error) {
	if cfg.Tenant == "" || cfg.Database == "" {
		return nil, fmt.Errorf("vectorstore: tenant and database are required")
	}
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base := fmt.Sprintf("%s://%s:%d/tenants/%s/databases/%s", scheme, cfg.Host, cfg.Port, url.PathEscape(cfg.Tenant), url.PathEscape(cfg.Database))
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &httpClient{
		baseURL: base,
		headers: headers,
		http:    &http.Client{Timeout: timeout},
		handles: map[string]*httpCollection{},
	}, nil
}

type httpClient struct {
	baseURL string
	headers map[string]string
	http    *http.Client

	mu      sync.Mutex
	handles map[string]*httpCollection
}

func (c *httpClient) Collection(ctx context.Context, name string, createIfAbsent bool) (Collection, error) {
	c.mu.Lock()
	if h, ok := c.handles[name]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h := &httpCollection{client: c, name: name}
	if createIfAbsent {
		if err := h.ensureExists(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	// Re-check: a concurrent caller may have created the same handle while
	// this one was hitting the network; both resolve to the same logical
	// collection, so re-registering is idempotent.
	if existing, ok := c.handles[name]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.handles[name] = h
	c.mu.Unlock()
	return h, nil
}

func (c *httpClient) Close() error { return nil }

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("vectorstore: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("vectorstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vectorstore: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var payload struct {
			Message string   `json:"message"`
			IDs     []string `json:"ids"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &DuplicateIDError{IDs: payload.IDs, Msg: payload.Message}
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return fmt.Errorf("vectorstore: %s %s: status %d: %s", method, path, resp.StatusCode, payload.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vectorstore: decode response for %s %s: %w", method, path, err)
	}
	return nil
}

type httpCollection struct {
	client *httpClient
	name   string
}

func (h *httpCollection) Name() string { return h.name }

func (h *httpCollection) ensureExists(ctx context.Context) error {
	return h.client.do(ctx, http.MethodPost, "/collections", map[string]any{"name": h.name, "get_or_create": true}, nil)
}

func (h *httpCollection) Upsert(ctx context.Context, ids []string, documents []string, metadatas []map[string]any) error {
	body := map[string]any{"ids": ids, "documents": documents, "metadatas": metadatas}
	return h.client.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(h.name)+"/upsert", body, nil)
}

func (h *httpCollection) Get(ctx context.Context, req GetRequest) (GetResult, error) {
	body := map[string]any{
		"ids": req.IDs, "where": req.Where, "where_document": req.WhereDocument,
		"limit": req.Limit, "offset": req.Offset, "include": req.Include,
	}
	var out GetResult
	if err := h.client.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(h.name)+"/get", body, &out); err != nil {
		return GetResult{}, err
	}
	return out, nil
}

func (h *httpCollection) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	body := map[string]any{
		"query_texts": req.QueryTexts, "query_embeddings": req.QueryEmbeddings,
		"n_results": req.NResults, "where": req.Where, "where_document": req.WhereDocument,
		"include": req.Include,
	}
	var out QueryResult
	if err := h.client.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(h.name)+"/query", body, &out); err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

func (h *httpCollection) Count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := h.client.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(h.name)+"/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
