// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wavebase

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// set by the build
var WavedomVersion = "0.0.0"
var BuildTime = "0"

const (
	WavedomConfigHomeEnvVar = "WAVEDOM_CONFIG_HOME"
	WavedomDataHomeEnvVar   = "WAVEDOM_DATA_HOME"
	WavedomDevVarName       = "WAVEDOM_DEV"
)

var ConfigHome_VarCache string // caches WAVEDOM_CONFIG_HOME
var DataHome_VarCache string   // caches WAVEDOM_DATA_HOME
var Dev_VarCache string        // caches WAVEDOM_DEV

const WavedomLockFile = "wavedom.lock"
const WavedomDBDir = "db"
const DotEnvFile = ".env"

var baseLock = &sync.Mutex{}
var ensureDirCache = map[string]bool{}

type FDLock interface {
	Close() error
}

// CacheEnvVars loads .env from the working directory (if present) and caches
// the WAVEDOM_* variables, falling back to XDG-style defaults under the home
// directory. Variables already set in the environment win over .env.
func CacheEnvVars() error {
	err := godotenv.Load(DotEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", DotEnvFile, err)
	}
	ConfigHome_VarCache = os.Getenv(WavedomConfigHomeEnvVar)
	if ConfigHome_VarCache == "" {
		ConfigHome_VarCache = filepath.Join(GetHomeDir(), ".config", "wavedom")
	}
	DataHome_VarCache = os.Getenv(WavedomDataHomeEnvVar)
	if DataHome_VarCache == "" {
		DataHome_VarCache = filepath.Join(GetHomeDir(), ".local", "share", "wavedom")
	}
	ConfigHome_VarCache = ExpandHomeDirSafe(ConfigHome_VarCache)
	DataHome_VarCache = ExpandHomeDirSafe(DataHome_VarCache)
	Dev_VarCache = os.Getenv(WavedomDevVarName)
	if IsDevMode() {
		log.Printf("[config] dev mode, config:%s data:%s\n", ConfigHome_VarCache, DataHome_VarCache)
	}
	return nil
}

func IsDevMode() bool {
	return Dev_VarCache != ""
}

func GetWavedomDataDir() string {
	return DataHome_VarCache
}

func GetWavedomConfigDir() string {
	return ConfigHome_VarCache
}

func GetHomeDir() string {
	homeVar, err := os.UserHomeDir()
	if err != nil {
		return "/"
	}
	return homeVar
}

func ExpandHomeDir(pathStr string) (string, error) {
	if pathStr != "~" && !strings.HasPrefix(pathStr, "~/") && (!strings.HasPrefix(pathStr, `~\`) || runtime.GOOS != "windows") {
		return filepath.Clean(pathStr), nil
	}
	homeDir := GetHomeDir()
	if pathStr == "~" {
		return homeDir, nil
	}
	expandedPath := filepath.Clean(filepath.Join(homeDir, pathStr[2:]))
	if !strings.HasPrefix(expandedPath, homeDir) {
		return "", fmt.Errorf("potential path traversal detected for path %s", pathStr)
	}
	return expandedPath, nil
}

func ExpandHomeDirSafe(pathStr string) string {
	path, err := ExpandHomeDir(pathStr)
	if err != nil {
		return pathStr
	}
	return path
}

func EnsureWavedomDataDir() error {
	return CacheEnsureDir(GetWavedomDataDir(), "wavedomdata", 0700, "wavedom data directory")
}

func EnsureWavedomDBDir() error {
	return CacheEnsureDir(filepath.Join(GetWavedomDataDir(), WavedomDBDir), "wavedomdb", 0700, "wavedom db directory")
}

func EnsureWavedomConfigDir() error {
	return CacheEnsureDir(GetWavedomConfigDir(), "wavedomconfig", 0700, "wavedom config directory")
}

func CacheEnsureDir(dirName string, cacheKey string, perm os.FileMode, dirDesc string) error {
	baseLock.Lock()
	ok := ensureDirCache[cacheKey]
	baseLock.Unlock()
	if ok {
		return nil
	}
	err := TryMkdirs(dirName, perm, dirDesc)
	if err != nil {
		return err
	}
	baseLock.Lock()
	ensureDirCache[cacheKey] = true
	baseLock.Unlock()
	return nil
}

func TryMkdirs(dirName string, perm os.FileMode, dirDesc string) error {
	info, err := os.Stat(dirName)
	if errors.Is(err, fs.ErrNotExist) {
		err = os.MkdirAll(dirName, perm)
		if err != nil {
			return fmt.Errorf("cannot make %s %q: %w", dirDesc, dirName, err)
		}
		info, err = os.Stat(dirName)
	}
	if err != nil {
		return fmt.Errorf("error trying to stat %s: %w", dirDesc, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q must be a directory", dirDesc, dirName)
	}
	return nil
}
