// Package pinecone is a minimal client for the Pinecone data-plane REST
// API: namespaced upsert and similarity query against one index.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	indexHost  string
	apiKey     string
	httpClient *http.Client
}

// New returns a client for the index served at indexHost
// (e.g. "https://my-index-abc123.svc.us-east-1.pinecone.io").
func New(indexHost, apiKey string) *Client {
	return &Client{
		indexHost:  strings.TrimRight(indexHost, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Vector is one entry to upsert. IDs are minted by the caller; upserting
// a fresh id for identical content creates a duplicate entry, it does not
// merge.
type Vector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is one ranked query result. Score is similarity, higher is more
// similar; results come back in descending score order.
type Match struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Upsert writes vectors into the given namespace.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"vectors":   vectors,
		"namespace": namespace,
	}
	raw, err := c.post(ctx, "/vectors/upsert", payload)
	if err != nil {
		return fmt.Errorf("upsert vectors failed: %w", err)
	}

	var parsed struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse upsert response failed: %w", err)
	}
	if parsed.UpsertedCount != len(vectors) {
		return fmt.Errorf("upsert count mismatch: sent %d, stored %d", len(vectors), parsed.UpsertedCount)
	}
	return nil
}

// Query returns the topK nearest vectors in the namespace, with metadata,
// ranked by descending similarity. Queries never cross namespaces.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	payload := map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"namespace":       namespace,
		"includeMetadata": true,
	}
	raw, err := c.post(ctx, "/query", payload)
	if err != nil {
		return nil, fmt.Errorf("query vectors failed: %w", err)
	}

	var parsed struct {
		Matches []Match `json:"matches"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse query response failed: %w", err)
	}
	return parsed.Matches, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.indexHost+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
