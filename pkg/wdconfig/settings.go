// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wdconfig reads settings.json from the config directory and
// watches it for changes.
package wdconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/wavetermdev/wavedom/pkg/util/utilfn"
)

const SettingsFile = "settings.json"

const DefaultListenAddr = "127.0.0.1:8193"
const DefaultReadLimit = 1024 * 1024
const DefaultPendingTimeoutMs = 10000

type SettingsType struct {
	WsListenAddr           string `json:"ws:listenaddr,omitempty" jsonschema:"description=address the websocket server listens on"`
	WsReadLimit            int64  `json:"ws:readlimit,omitempty" jsonschema:"minimum=1024"`
	PatchAutoDetach        bool   `json:"patch:autodetach,omitempty" jsonschema:"description=detach component registry entries when their wrapper is removed"`
	JournalEnabled         bool   `json:"journal:enabled,omitempty"`
	RenderPendingTimeoutMs int    `json:"render:pendingtimeoutms,omitempty" jsonschema:"minimum=0"`
}

func DefaultSettings() SettingsType {
	return SettingsType{
		WsListenAddr:           DefaultListenAddr,
		WsReadLimit:            DefaultReadLimit,
		JournalEnabled:         true,
		RenderPendingTimeoutMs: DefaultPendingTimeoutMs,
	}
}

func (s SettingsType) PendingRenderTimeout() time.Duration {
	return time.Duration(s.RenderPendingTimeoutMs) * time.Millisecond
}

func SettingsPath(configDir string) string {
	return filepath.Join(configDir, SettingsFile)
}

// ReadSettings overlays settings.json onto the defaults. A missing file is
// not an error.
func ReadSettings(configDir string) (SettingsType, error) {
	rtn := DefaultSettings()
	barr, err := os.ReadFile(SettingsPath(configDir))
	if errors.Is(err, fs.ErrNotExist) {
		return rtn, nil
	}
	if err != nil {
		return rtn, fmt.Errorf("reading %s: %w", SettingsFile, err)
	}
	err = json.Unmarshal(barr, &rtn)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("parsing %s: %w", SettingsFile, err)
	}
	if rtn.WsListenAddr == "" {
		rtn.WsListenAddr = DefaultListenAddr
	}
	if rtn.WsReadLimit <= 0 {
		rtn.WsReadLimit = DefaultReadLimit
	}
	return rtn, nil
}

// GenerateSchema returns the JSON schema for settings.json.
func GenerateSchema() (string, error) {
	schema := jsonschema.Reflect(&SettingsType{})
	return utilfn.MarshalIndentNoHTMLString(schema, "", "  ")
}
