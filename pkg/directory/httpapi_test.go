// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LeeDigitalWorks/subsync/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePanel emulates the panel's /clients and /save endpoints.
type fakePanel struct {
	t *testing.T

	token   string
	clients []Entry
	nextID  int64

	rejectMsg string // when set, /save answers success=false with this msg
	saves     []savedForm
}

type savedForm struct {
	Action string
	Data   string
}

func newFakePanel(t *testing.T) *fakePanel {
	return &fakePanel{t: t, token: "secret", nextID: 1}
}

func (p *fakePanel) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clients", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Token") != p.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]interface{}{
			"success": true,
			"msg":     "",
			"obj":     map[string]interface{}{"clients": p.clients},
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /save", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Token") != p.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(p.t, r.ParseMultipartForm(1<<20))
		assert.Equal(p.t, "clients", r.FormValue("object"))

		form := savedForm{Action: r.FormValue("action"), Data: r.FormValue("data")}
		p.saves = append(p.saves, form)

		if p.rejectMsg != "" {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": p.rejectMsg})
			return
		}

		switch form.Action {
		case "new":
			var e Entry
			require.NoError(p.t, json.Unmarshal([]byte(form.Data), &e))
			e.ID = p.nextID
			p.nextID++
			p.clients = append(p.clients, e)
		case "del":
			var id int64
			fmt.Sscanf(form.Data, "%d", &id)
			for i, e := range p.clients {
				if e.ID == id {
					p.clients = append(p.clients[:i], p.clients[i+1:]...)
					break
				}
			}
		case "edit":
			var e Entry
			require.NoError(p.t, json.Unmarshal([]byte(form.Data), &e))
			for i := range p.clients {
				if p.clients[i].ID == e.ID {
					p.clients[i] = e
				}
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "msg": ""})
	})
	return mux
}

func newTestClient(t *testing.T, panel *fakePanel) *APIClient {
	t.Helper()
	srv := httptest.NewServer(panel.handler())
	t.Cleanup(srv.Close)

	cfg := DefaultAPIConfig()
	cfg.BaseURL = srv.URL
	cfg.Token = panel.token
	cfg.Inbounds = []int{3, 4}
	return NewAPIClient(cfg)
}

func TestAPIClient_List(t *testing.T) {
	panel := newFakePanel(t)
	panel.clients = []Entry{
		{ID: 1, Enable: true, Name: "alpha", Down: 100, Up: 50,
			Config: json.RawMessage(`{"vmess":{"uuid":"u1"}}`)},
		{ID: 2, Enable: true, Name: "beta"},
	}
	client := newTestClient(t, panel)

	entries, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, int64(100), entries[0].Down)
	assert.JSONEq(t, `{"vmess":{"uuid":"u1"}}`, string(entries[0].Config))
}

func TestAPIClient_List_Empty(t *testing.T) {
	client := newTestClient(t, newFakePanel(t))

	entries, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "zero entries is an empty sequence, not an error")
}

func TestAPIClient_List_TransportError(t *testing.T) {
	cfg := DefaultAPIConfig()
	cfg.BaseURL = "http://127.0.0.1:1" // nothing listens here
	client := NewAPIClient(cfg)

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransport))
}

func TestAPIClient_List_BadToken(t *testing.T) {
	panel := newFakePanel(t)
	client := newTestClient(t, panel)
	panel.token = "rotated"

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransport))
}

func TestAPIClient_Create(t *testing.T) {
	panel := newFakePanel(t)
	client := newTestClient(t, panel)

	cfg := types.ClientConfig{
		VMess: types.VMessUser{Name: "alpha", UUID: "u-1"},
	}
	links := []types.Link{{Remark: "hysteria2-443", Type: "local", URI: "hysteria2://alpha@h:443#alpha"}}

	ok := client.Create(context.Background(), "alpha", cfg, links)
	require.True(t, ok)
	require.Len(t, panel.clients, 1)

	created := panel.clients[0]
	assert.Equal(t, "alpha", created.Name)
	assert.True(t, created.Enable)
	assert.Zero(t, created.Down, "new entries start with zero counters")
	assert.Zero(t, created.Up)
	assert.JSONEq(t, `[3,4]`, string(created.Inbounds))

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(panel.saves[0].Data), &payload))
	assert.Contains(t, string(payload["config"]), `"u-1"`)
}

func TestAPIClient_Create_AlreadyExists(t *testing.T) {
	panel := newFakePanel(t)
	panel.rejectMsg = "client already exists"
	client := newTestClient(t, panel)

	ok := client.Create(context.Background(), "alpha", types.ClientConfig{}, nil)
	assert.True(t, ok, "uniqueness rejection counts as already satisfied")
}

func TestAPIClient_Create_Rejected(t *testing.T) {
	panel := newFakePanel(t)
	panel.rejectMsg = "invalid inbound"
	client := newTestClient(t, panel)

	ok := client.Create(context.Background(), "alpha", types.ClientConfig{}, nil)
	assert.False(t, ok, "rejections fail silently, never raise")
}

func TestAPIClient_Delete(t *testing.T) {
	panel := newFakePanel(t)
	panel.clients = []Entry{{ID: 7, Name: "alpha"}}
	panel.nextID = 8
	client := newTestClient(t, panel)

	ok := client.Delete(context.Background(), 7)
	require.True(t, ok)
	assert.Empty(t, panel.clients)
	assert.Equal(t, "7", panel.saves[0].Data, "delete payload is the bare internal id")
}

func TestAPIClient_ResetCounters_FullSnapshotWriteBack(t *testing.T) {
	// The reset must rebuild the complete record from the snapshot: partial
	// updates or re-fetched records would drop sub-objects or discard
	// traffic accrued since the snapshot.
	rawConfig := json.RawMessage(`{"vmess":{"uuid":"u1"},"custom_field":{"keep":"me"}}`)
	panel := newFakePanel(t)
	panel.clients = []Entry{{
		ID: 3, Enable: true, Name: "alpha",
		Config:   rawConfig,
		Inbounds: json.RawMessage(`[1]`),
		Links:    json.RawMessage(`[]`),
		Volume:   5, Expiry: 99, Down: 1234, Up: 567,
		Desc: "note", Group: "g",
	}}
	panel.nextID = 4
	client := newTestClient(t, panel)

	snapshot, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	ok := client.ResetCounters(context.Background(), snapshot[0])
	require.True(t, ok)

	after := panel.clients[0]
	assert.Zero(t, after.Down)
	assert.Zero(t, after.Up)
	assert.JSONEq(t, string(rawConfig), string(after.Config),
		"unknown config fields must round-trip untouched")
	assert.Equal(t, int64(5), after.Volume)
	assert.Equal(t, int64(99), after.Expiry)
	assert.Equal(t, "note", after.Desc)
	assert.Equal(t, "g", after.Group)
	assert.Equal(t, "edit", panel.saves[0].Action)
}
