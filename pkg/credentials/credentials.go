// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package credentials generates per-protocol credential bundles and share
// links for directory entries. Generation is pure apart from randomness:
// no I/O, no state between calls.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/LeeDigitalWorks/subsync/pkg/types"

	"github.com/google/uuid"
)

// Server identifies one proxy endpoint for link generation.
type Server struct {
	Name         string
	Address      string
	Port         int
	Obfs         string
	ObfsPassword string
}

// Generator builds credential bundles parameterized by the deployment's
// servers. Secrets are regenerated fresh on every call: re-creating a
// previously removed identifier yields new material, not a restored identity.
type Generator struct {
	servers []Server
}

// NewGenerator returns a Generator producing one share link per server.
func NewGenerator(servers []Server) *Generator {
	return &Generator{servers: servers}
}

// Generate builds the full protocol bundle for one subscriber. name is the
// display identity, token the shared bearer secret; in this deployment the
// account identifier serves as both.
func (g *Generator) Generate(name, token string) (types.ClientConfig, []types.Link) {
	clientUUID := uuid.NewString()
	ssPassword := randomSecret(32)
	ss16Password := randomSecret(16)

	cfg := types.ClientConfig{
		Mixed:        types.UserPass{Username: name, Password: token},
		Socks:        types.UserPass{Username: name, Password: token},
		HTTP:         types.UserPass{Username: name, Password: token},
		Shadowsocks:  types.NamePass{Name: name, Password: ssPassword},
		Shadowsocks2: types.NamePass{Name: name, Password: ss16Password},
		ShadowTLS:    types.NamePass{Name: name, Password: ssPassword},
		VMess:        types.VMessUser{Name: name, UUID: clientUUID, AlterID: 0},
		VLESS:        types.VLESSUser{Name: name, UUID: clientUUID, Flow: "xtls-rprx-vision"},
		Trojan:       types.NamePass{Name: name, Password: token},
		Naive:        types.UserPass{Username: name, Password: token},
		Hysteria:     types.AuthUser{Name: name, AuthStr: token},
		TUIC:         types.TUICUser{Name: name, UUID: clientUUID, Password: token},
		Hysteria2:    types.NamePass{Name: name, Password: token},
	}

	return cfg, g.Hysteria2Links(name, token)
}

// Hysteria2Links builds one hysteria2 share link per configured server. The
// identifier is URL-embedded as the fragment label; the token itself is
// never modified.
func (g *Generator) Hysteria2Links(name, token string) []types.Link {
	links := make([]types.Link, 0, len(g.servers))
	for _, srv := range g.servers {
		links = append(links, types.Link{
			Remark: fmt.Sprintf("hysteria2-%d", srv.Port),
			Type:   "local",
			URI:    Hysteria2URI(srv, name, token),
		})
	}
	return links
}

// Hysteria2URI formats a single hysteria2 share URI for srv.
func Hysteria2URI(srv Server, name, token string) string {
	return fmt.Sprintf("hysteria2://%s@%s:%d?fastopen=0&obfs=%s&obfs-password=%s#%s",
		token, srv.Address, srv.Port,
		url.QueryEscape(srv.Obfs), url.QueryEscape(srv.ObfsPassword),
		url.PathEscape(name))
}

// randomSecret returns n random bytes, base64-encoded.
func randomSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform RNG is broken; generating
		// a predictable credential instead would be worse than stopping.
		panic(fmt.Sprintf("credentials: read random: %v", err))
	}
	return base64.StdEncoding.EncodeToString(b)
}
