// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/wavetermdev/wavedom/cmd/wavedom/cmd"
	"github.com/wavetermdev/wavedom/pkg/wavebase"
)

// these are set at build time
var WavedomVersion = "0.0.0"
var BuildTime = "0"

func main() {
	wavebase.WavedomVersion = WavedomVersion
	wavebase.BuildTime = BuildTime
	cmd.Execute()
}
