// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/patchjournal"
	"github.com/wavetermdev/wavedom/pkg/treeconsumer"
	"github.com/wavetermdev/wavedom/pkg/treepatch"
	"github.com/wavetermdev/wavedom/pkg/wavebase"
	"github.com/wavetermdev/wavedom/pkg/wdconfig"
	"github.com/wavetermdev/wavedom/pkg/wslink"
	"golang.org/x/sync/errgroup"
)

var serveListenAddr string
var serveNoJournal bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket server; each connection gets its own live tree",
	RunE:  runServeCmd,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenAddr, "listen", "l", "", "listen address (overrides ws:listenaddr)")
	serveCmd.Flags().BoolVar(&serveNoJournal, "no-journal", false, "do not record batches")
	rootCmd.AddCommand(serveCmd)
}

func serverOptsFromSettings(settings wdconfig.SettingsType, recorder treeconsumer.BatchRecorder) wslink.Options {
	return wslink.Options{
		ReadLimit:            settings.WsReadLimit,
		Recorder:             recorder,
		Patch:                treepatch.Options{AutoDetach: settings.PatchAutoDetach},
		PendingRenderTimeout: settings.PendingRenderTimeout(),
	}
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	err := wavebase.EnsureWavedomDataDir()
	if err != nil {
		return err
	}
	err = wavebase.EnsureWavedomConfigDir()
	if err != nil {
		return err
	}
	lock, err := wavebase.AcquireWavedomLock()
	if err != nil {
		return err
	}
	defer lock.Close()
	watcher, err := wdconfig.MakeWatcher(wavebase.GetWavedomConfigDir())
	if err != nil {
		return err
	}
	defer watcher.Close()
	settings := watcher.GetSettings()
	var recorder treeconsumer.BatchRecorder
	if settings.JournalEnabled && !serveNoJournal {
		err = patchjournal.InitJournal()
		if err != nil {
			return err
		}
		defer patchjournal.CloseJournal()
		recorder = patchjournal.Recorder{}
	}
	server := wslink.MakeServer(serverOptsFromSettings(settings, recorder))
	watcher.RegisterUpdateHandler(func(settings wdconfig.SettingsType) {
		server.SetOptions(serverOptsFromSettings(settings, recorder))
	})
	listenAddr := serveListenAddr
	if listenAddr == "" {
		listenAddr = settings.WsListenAddr
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	ctx, stopFn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopFn()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.RunServer(egCtx, listener)
	})
	eg.Go(func() error {
		return watcher.Run(egCtx)
	})
	err = eg.Wait()
	log.Printf("[ws] server stopped\n")
	return err
}
