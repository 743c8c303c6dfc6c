// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/credentials"
	"github.com/LeeDigitalWorks/subsync/pkg/logger"
)

// Config configures the subscription-link endpoint.
type Config struct {
	// UpstreamURL is the panel subscription base, e.g. "http://host:2096/sub".
	// The token is appended as a path segment.
	UpstreamURL string `mapstructure:"upstream_url"`

	Timeout time.Duration `mapstructure:"timeout"`

	Names        map[string]string `mapstructure:"names"`
	DefaultVmess string            `mapstructure:"default_vmess"`
}

// Handler serves GET /link/{token}.
type Handler struct {
	cfg      Config
	rewriter *Rewriter
	httpc    *http.Client
}

// NewHandler builds the subscription handler.
func NewHandler(cfg Config, servers []credentials.Server) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Handler{
		cfg: cfg,
		rewriter: &Rewriter{
			Servers:      servers,
			Names:        cfg.Names,
			DefaultVmess: cfg.DefaultVmess,
		},
		httpc: &http.Client{Timeout: timeout},
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /link/{token}", h.handleLink)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	query := r.URL.Query().Get("client")

	upstream := fmt.Sprintf("%s/%s?client=all", h.cfg.UpstreamURL, token)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream, nil)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusBadRequest)
		return
	}
	resp, err := h.httpc.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("fetch upstream subscription")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "upstream read failed", http.StatusBadGateway)
		return
	}

	subInfo := resp.Header.Get("subscription-userinfo")
	interval := resp.Header.Get("profile-update-interval")
	if interval == "" {
		interval = "24"
	}

	content, err := h.rewriter.Rewrite(body, ParseExpire(subInfo), query)
	if err != nil {
		logger.Error().Err(err).Msg("rewrite subscription")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/octet-stream; charset=utf-8")
	hdr.Set("Content-Disposition", "attachment; filename*=UTF-8''Config.txt")
	hdr.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Strict-Transport-Security", "max-age=31536000")
	if subInfo != "" {
		hdr.Set("subscription-userinfo", subInfo)
	}
	hdr.Set("profile-update-interval", interval)

	w.WriteHeader(http.StatusOK)
	w.Write(content)
}
