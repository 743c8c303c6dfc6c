// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package subscription serves subscriber-facing subscription links: it
// fetches the upstream panel's config blob, rewrites the display entries,
// appends per-server hysteria2 links, and re-encodes the result. The
// transform is stateless; no counters or identities are touched.
package subscription

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/subsync/pkg/credentials"
)

// Rewriter transforms an upstream subscription blob for display.
type Rewriter struct {
	// Servers to advertise as hysteria2 endpoints.
	Servers []credentials.Server

	// Names maps the ?client= query value to a display name.
	Names map[string]string

	// DefaultVmess is a base64 vmess payload prepended to every
	// subscription, typically an informational entry.
	DefaultVmess string
}

// DisplayName resolves the ?client= query value to a display name.
func (r *Rewriter) DisplayName(query string) string {
	if name, ok := r.Names[query]; ok {
		return name
	}
	return "Default"
}

// Rewrite decodes the upstream base64 blob, rewrites each line, and returns
// the re-encoded result. expire is the subscription expiry unix timestamp
// (0 when unknown) used for the countdown label on vmess entries.
func (r *Rewriter) Rewrite(body []byte, expire int64, query string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("decode subscription blob: %w", err)
	}

	name := r.DisplayName(query)
	var out strings.Builder

	if r.DefaultVmess != "" {
		out.WriteString("vmess://" + r.DefaultVmess + "\n")
	}

	var hysteriaToken string
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "vmess://") {
			rewritten, err := rewriteVmess(line, expire)
			if err != nil {
				// Pass unparseable entries through untouched.
				out.WriteString(line + "\n")
				continue
			}
			out.WriteString(rewritten + "\n")
			continue
		}

		out.WriteString(line + " | " + name + "\n")
		if hysteriaToken == "" {
			hysteriaToken = uriToken(line)
		}
	}

	if hysteriaToken != "" {
		for _, srv := range r.Servers {
			label := name + " - " + srv.Name
			out.WriteString(credentials.Hysteria2URI(srv, label, hysteriaToken) + "\n")
		}
	}

	return []byte(base64.StdEncoding.EncodeToString([]byte(out.String()))), nil
}

// rewriteVmess decodes a vmess:// line, updates its display name, and
// re-encodes it.
func rewriteVmess(line string, expire int64) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(line[len("vmess://"):])
	if err != nil {
		return "", err
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return "", err
	}

	ps, _ := cfg["ps"].(string)
	if strings.Contains(ps, "Expire:") && expire > 0 {
		ps = Remaining(expire, time.Now())
	}
	ps = strings.ReplaceAll(ps, "Used", "Used ")
	ps = strings.ReplaceAll(ps, "Total", "Total ")
	cfg["ps"] = ps

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(encoded), nil
}

// Remaining formats the time left until the unix timestamp expire as a
// countdown label.
func Remaining(expire int64, now time.Time) string {
	diff := time.Unix(expire, 0).Sub(now)
	if diff < 0 {
		return "(Expired)"
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		minutes := int(diff.Minutes()) - hours*60
		return fmt.Sprintf("⏳ %dh %dm remaining", hours, minutes)
	}
	days := int(diff.Hours()) / 24
	hours := int(diff.Hours()) - days*24
	return fmt.Sprintf("⏳ %dd %dh remaining", days, hours)
}

// ParseExpire extracts the expire timestamp from a subscription-userinfo
// header value like "upload=0;download=0;total=0;expire=1700000000".
// Returns 0 when absent or malformed.
func ParseExpire(subInfo string) int64 {
	for _, part := range strings.Split(subInfo, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != "expire" {
			continue
		}
		expire, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return expire
	}
	return 0
}

// uriToken extracts the userinfo token from a share URI like
// "scheme://token@host:port?...". Empty when the line has no such shape.
func uriToken(line string) string {
	rest, ok := strings.CutPrefix(line, schemePrefix(line))
	if !ok || rest == "" {
		return ""
	}
	token, _, ok := strings.Cut(rest, "@")
	if !ok {
		return ""
	}
	return token
}

func schemePrefix(line string) string {
	idx := strings.Index(line, "://")
	if idx < 0 {
		return line + "\x00" // never matches in CutPrefix
	}
	return line[:idx+len("://")]
}
