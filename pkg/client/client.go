// Package client provides a small Go client for the auditmesh HTTP API,
// used by auditctl and other operational tooling.
package client

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

// Event mirrors the event record returned by the service.
type Event struct {
	ID         int64           `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	ActorType  string          `json:"actor_type"`
	ActorID    *string         `json:"actor_id,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	EventHash  string          `json:"event_hash"`
	InBlock    bool            `json:"in_block"`
}

// Block mirrors a sealed block header.
type Block struct {
	Index         int64     `json:"index"`
	CreatedAt     time.Time `json:"created_at"`
	PrevBlockHash *string   `json:"prev_block_hash"`
	MerkleRoot    string    `json:"merkle_root"`
	BlockHash     string    `json:"block_hash"`
}

// Membership mirrors one event's place in a block.
type Membership struct {
	BlockIndex int64  `json:"block_index"`
	EventID    int64  `json:"event_id"`
	LeafIndex  int    `json:"leaf_index"`
	LeafHash   string `json:"leaf_hash"`
}

// BlockDetail is a block plus its memberships in leaf order.
type BlockDetail struct {
	Block       Block        `json:"block"`
	Memberships []Membership `json:"memberships"`
}

// Report is the outcome of a chain verification.
type Report struct {
	OK     bool   `json:"ok"`
	Blocks int    `json:"blocks"`
	Where  string `json:"where,omitempty"`
}

// Overview summarises the ledger.
type Overview struct {
	Events   int64   `json:"events"`
	Unsealed int64   `json:"unsealed"`
	Blocks   int64   `json:"blocks"`
	TipHash  *string `json:"tip_hash"`
}

// RecordEventRequest is the payload for RecordEvent.
type RecordEventRequest struct {
	ActorType  string          `json:"actor_type"`
	ActorID    *string         `json:"actor_id,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// Client talks to an auditmesh service.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordEvent durably witnesses one business fact.
func (c *Client) RecordEvent(ctx context.Context, req RecordEventRequest) (*Event, error) {
	var event Event
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Verify replays the whole chain on the server and returns its report.
func (c *Client) Verify(ctx context.Context) (*Report, error) {
	var report Report
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Overview returns ledger counts and the chain tip.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var ov Overview
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// GetBlock returns one block and its memberships.
func (c *Client) GetBlock(ctx context.Context, index int64) (*BlockDetail, error) {
	var detail BlockDetail
	path := fmt.Sprintf("/api/v1/ledger/blocks/%d", index)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error, preferring the
// service's {"error": "..."} body when present.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
