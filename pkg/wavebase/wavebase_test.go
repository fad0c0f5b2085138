// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wavebase

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCacheEnvVars(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(WavedomConfigHomeEnvVar, filepath.Join(tmpDir, "config"))
	t.Setenv(WavedomDataHomeEnvVar, filepath.Join(tmpDir, "data"))
	t.Setenv(WavedomDevVarName, "1")
	if err := CacheEnvVars(); err != nil {
		t.Fatalf("CacheEnvVars: %v", err)
	}
	if GetWavedomConfigDir() != filepath.Join(tmpDir, "config") {
		t.Errorf("unexpected config dir %q", GetWavedomConfigDir())
	}
	if !IsDevMode() {
		t.Errorf("expected dev mode")
	}
	if err := EnsureWavedomDBDir(); err != nil {
		t.Fatalf("EnsureWavedomDBDir: %v", err)
	}
	if info, err := os.Stat(filepath.Join(tmpDir, "data", WavedomDBDir)); err != nil || !info.IsDir() {
		t.Errorf("db dir not created: %v", err)
	}
}

func TestExpandHomeDir(t *testing.T) {
	home := GetHomeDir()
	path, err := ExpandHomeDir("~/x/y")
	if err != nil || path != filepath.Join(home, "x", "y") {
		t.Errorf("unexpected expansion %q %v", path, err)
	}
	path, err = ExpandHomeDir("/abs/path")
	if err != nil || path != "/abs/path" {
		t.Errorf("absolute path changed: %q %v", path, err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock semantics")
	}
	DataHome_VarCache = t.TempDir()
	lock, err := AcquireWavedomLock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer lock.Close()
	if second, err := AcquireWavedomLock(); err == nil {
		second.Close()
		t.Errorf("second lock should fail while the first is held")
	}
}
