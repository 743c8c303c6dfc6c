// Copyright 2025 SubSync Authors
// SPDX-License-Identifier: Apache-2.0

// Package types holds wire and domain types shared between the credential
// generator, the directory clients, and the sync engine.
package types

// ClientConfig is the per-protocol credential bundle stored in the panel's
// `config` blob. Field names and nesting must round-trip the panel's JSON
// exactly; the panel's edit action rejects records with missing sub-objects.
type ClientConfig struct {
	Mixed        UserPass  `json:"mixed"`
	Socks        UserPass  `json:"socks"`
	HTTP         UserPass  `json:"http"`
	Shadowsocks  NamePass  `json:"shadowsocks"`
	Shadowsocks2 NamePass  `json:"shadowsocks16"`
	ShadowTLS    NamePass  `json:"shadowtls"`
	VMess        VMessUser `json:"vmess"`
	VLESS        VLESSUser `json:"vless"`
	Trojan       NamePass  `json:"trojan"`
	Naive        UserPass  `json:"naive"`
	Hysteria     AuthUser  `json:"hysteria"`
	TUIC         TUICUser  `json:"tuic"`
	Hysteria2    NamePass  `json:"hysteria2"`
}

type UserPass struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type NamePass struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type VMessUser struct {
	Name    string `json:"name"`
	UUID    string `json:"uuid"`
	AlterID int    `json:"alterId"`
}

type VLESSUser struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
	Flow string `json:"flow"`
}

type AuthUser struct {
	Name    string `json:"name"`
	AuthStr string `json:"auth_str"`
}

type TUICUser struct {
	Name     string `json:"name"`
	UUID     string `json:"uuid"`
	Password string `json:"password"`
}

// Link is a shareable connection URI attached to a directory entry.
type Link struct {
	Remark string `json:"remark"`
	Type   string `json:"type"`
	URI    string `json:"uri"`
}
