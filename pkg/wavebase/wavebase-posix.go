// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package wavebase

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// AcquireWavedomLock keeps two servers from sharing one data directory.
func AcquireWavedomLock() (FDLock, error) {
	lockFileName := filepath.Join(GetWavedomDataDir(), WavedomLockFile)
	log.Printf("[config] acquiring lock on %s\n", lockFileName)
	fd, err := os.OpenFile(lockFileName, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	err = unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("another wavedom server holds %s: %w", lockFileName, err)
	}
	return fd, nil
}
