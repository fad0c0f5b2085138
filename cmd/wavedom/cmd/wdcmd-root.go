// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/wavebase"
	"golang.org/x/term"
)

var (
	rootCmd = &cobra.Command{
		Use:               "wavedom",
		Short:             "live tree consumer for incremental UI batches",
		Long:              `wavedom serves tree consumers over websocket, replays recorded sessions and encodes HTML into batches`,
		SilenceUsage:      true,
		PersistentPreRunE: preRunCacheEnv,
	}
)

var WrappedStdout io.Writer = os.Stdout
var WrappedStderr io.Writer = os.Stderr
var ExitCode int

func WriteStderr(fmtStr string, args ...any) {
	WrappedStderr.Write([]byte(fmt.Sprintf(fmtStr, args...)))
}

func WriteStdout(fmtStr string, args ...any) {
	WrappedStdout.Write([]byte(fmt.Sprintf(fmtStr, args...)))
}

func preRunCacheEnv(cmd *cobra.Command, args []string) error {
	return wavebase.CacheEnvVars()
}

func getIsTty() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Execute executes the root command.
func Execute() {
	defer func() {
		r := recover()
		if r != nil {
			WriteStderr("[panic] %v\n", r)
			debug.PrintStack()
			os.Exit(1)
		}
		os.Exit(ExitCode)
	}()
	err := rootCmd.Execute()
	if err != nil {
		ExitCode = 1
	}
}
