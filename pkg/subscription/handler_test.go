// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LeeDigitalWorks/subsync/pkg/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Link(t *testing.T) {
	blob := encodeBlob("trojan://tok-123@198.51.100.4:443#alpha")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sub/tok-123", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("client"), "upstream always gets the full set")
		w.Header().Set("subscription-userinfo", "upload=0;download=5;total=50;expire=1700000000")
		w.Write(blob)
	}))
	defer upstream.Close()

	h := NewHandler(Config{
		UpstreamURL: upstream.URL + "/sub",
		Names:       map[string]string{"ios": "iOS"},
	}, []credentials.Server{{Name: "eu-1", Address: "h", Port: 443}})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/link/tok-123?client=ios")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upload=0;download=5;total=50;expire=1700000000",
		resp.Header.Get("subscription-userinfo"), "usage header passes through for client UIs")
	assert.Equal(t, "24", resp.Header.Get("profile-update-interval"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Config.txt")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := decodeBlob(t, body)
	require.Len(t, lines, 2)
	assert.Equal(t, "trojan://tok-123@198.51.100.4:443#alpha | iOS", lines[0])
	assert.Contains(t, lines[1], "hysteria2://tok-123@h:443")
}

func TestHandler_UpstreamDown(t *testing.T) {
	h := NewHandler(Config{UpstreamURL: "http://127.0.0.1:1/sub"}, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/link/tok", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandler_BadUpstreamBlob(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "!!not base64!!")
	}))
	defer upstream.Close()

	h := NewHandler(Config{UpstreamURL: upstream.URL}, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/link/tok", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
