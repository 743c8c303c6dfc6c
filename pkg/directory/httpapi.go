// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/logger"
	"github.com/LeeDigitalWorks/subsync/pkg/types"

	"golang.org/x/time/rate"
)

// APIConfig configures the panel HTTP API backend.
type APIConfig struct {
	// BaseURL of the management API, e.g. "http://localhost:2095/app/apiv2"
	BaseURL string `mapstructure:"base_url"`
	// Token is the static auth token sent in the Token header.
	Token string `mapstructure:"token"`

	Timeout time.Duration `mapstructure:"timeout"`
	// WriteRPS paces save calls; 0 disables pacing.
	WriteRPS float64 `mapstructure:"write_rps"`

	// Inbounds assigned to newly created entries.
	Inbounds []int `mapstructure:"inbounds"`
}

// DefaultAPIConfig returns sensible defaults for a local panel.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:  "http://localhost:2095/app/apiv2",
		Timeout:  15 * time.Second,
		WriteRPS: 20,
		Inbounds: []int{1},
	}
}

// APIClient talks to the panel's management HTTP API.
type APIClient struct {
	cfg     APIConfig
	httpc   *http.Client
	limiter *rate.Limiter
}

var _ Client = (*APIClient)(nil)

// NewAPIClient builds an API-backed directory client.
func NewAPIClient(cfg APIConfig) *APIClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.WriteRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WriteRPS), 1)
	}
	return &APIClient{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// NewAPIClientWithHTTP builds a client around an existing http.Client. Used
// in tests.
func NewAPIClientWithHTTP(cfg APIConfig, httpc *http.Client) *APIClient {
	c := NewAPIClient(cfg)
	c.httpc = httpc
	return c
}

// Close is a no-op; the API client holds no connection state worth releasing.
func (c *APIClient) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

// apiResponse is the panel's envelope for every endpoint.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// List fetches all directory entries via GET {base}/clients.
func (c *APIClient) List(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/clients", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build list request: %v", types.ErrTransport, err)
	}
	req.Header.Set("Token", c.cfg.Token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list clients: %v", types.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list clients: status %d", types.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read list response: %v", types.ErrTransport, err)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %v", types.ErrTransport, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: list clients: %s", types.ErrRejected, env.Msg)
	}

	var obj struct {
		Clients []Entry `json:"clients"`
	}
	if len(env.Obj) > 0 {
		if err := json.Unmarshal(env.Obj, &obj); err != nil {
			return nil, fmt.Errorf("%w: decode clients: %v", types.ErrTransport, err)
		}
	}
	return obj.Clients, nil
}

// Create adds a new entry with zero counters via action=new. The panel's
// duplicate-name rejection is treated as already satisfied.
func (c *APIClient) Create(ctx context.Context, name string, cfg types.ClientConfig, links []types.Link) bool {
	if links == nil {
		links = []types.Link{}
	}
	inbounds := c.cfg.Inbounds
	if inbounds == nil {
		inbounds = []int{}
	}
	payload := map[string]interface{}{
		"enable":   true,
		"name":     name,
		"config":   cfg,
		"inbounds": inbounds,
		"links":    links,
		"volume":   0,
		"expiry":   0,
		"up":       0,
		"down":     0,
		"desc":     "",
		"group":    "",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("name", name).Msg("marshal create payload")
		return false
	}

	if err := c.save(ctx, "new", string(data)); err != nil {
		if isAlreadyExists(err) {
			logger.Debug().Str("name", name).Msg("entry already exists, create satisfied")
			return true
		}
		logger.Error().Err(err).Str("name", name).Msg("create directory entry")
		return false
	}
	return true
}

// Delete removes the entry via action=del with the internal id as payload.
func (c *APIClient) Delete(ctx context.Context, id int64) bool {
	if err := c.save(ctx, "del", strconv.FormatInt(id, 10)); err != nil {
		logger.Error().Err(err).Int64("id", id).Msg("delete directory entry")
		return false
	}
	return true
}

// ResetCounters writes the snapshot back via action=edit with down/up zeroed.
// The panel's edit semantics replace the whole record, so the complete
// snapshot is sent rather than a partial update or a re-fetched record.
func (c *APIClient) ResetCounters(ctx context.Context, entry Entry) bool {
	entry.Down = 0
	entry.Up = 0
	data, err := json.Marshal(entry)
	if err != nil {
		logger.Error().Err(err).Str("name", entry.Name).Msg("marshal reset payload")
		return false
	}

	if err := c.save(ctx, "edit", string(data)); err != nil {
		logger.Error().Err(err).Str("name", entry.Name).Msg("reset directory counters")
		return false
	}
	return true
}

// save posts a multipart form to {base}/save with the panel's
// object/action/data fields.
func (c *APIClient) save(ctx context.Context, action, data string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate wait: %v", types.ErrTransport, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"object": "clients",
		"action": action,
		"data":   data,
	} {
		if err := mw.WriteField(field, value); err != nil {
			return fmt.Errorf("%w: write form field: %v", types.ErrTransport, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%w: close form: %v", types.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/save", &buf)
	if err != nil {
		return fmt.Errorf("%w: build save request: %v", types.ErrTransport, err)
	}
	req.Header.Set("Token", c.cfg.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", types.ErrTransport, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: save %s: status %d", types.ErrTransport, action, resp.StatusCode)
	}

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode save response: %v", types.ErrTransport, err)
	}
	if !env.Success {
		return fmt.Errorf("%w: save %s: %s", types.ErrRejected, action, env.Msg)
	}
	return nil
}

// isAlreadyExists matches uniqueness rejections from either backend: the
// panel API's message, MySQL's "Duplicate entry" and SQLite's "UNIQUE
// constraint failed".
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "exist") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint")
}
