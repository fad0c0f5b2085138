// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/patchjournal"
	"github.com/wavetermdev/wavedom/pkg/util/utilfn"
)

var journalPruneDays int
var journalListJson bool

var journalCmd = &cobra.Command{
	Use:               "journal",
	Short:             "Inspect and clean up recorded sessions",
	PersistentPreRunE: preRunInitJournal,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  runJournalListCmd,
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDeleteCmd,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete batches older than --days",
	Args:  cobra.NoArgs,
	RunE:  runJournalPruneCmd,
}

func init() {
	journalListCmd.Flags().BoolVar(&journalListJson, "json", false, "print sessions as JSON")
	journalPruneCmd.Flags().IntVar(&journalPruneDays, "days", 7, "keep batches newer than this many days")
	journalCmd.AddCommand(journalListCmd, journalDeleteCmd, journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}

func preRunInitJournal(cmd *cobra.Command, args []string) error {
	err := preRunCacheEnv(cmd, args)
	if err != nil {
		return err
	}
	return patchjournal.InitJournal()
}

func runJournalListCmd(cmd *cobra.Command, args []string) error {
	defer patchjournal.CloseJournal()
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	sessions, err := patchjournal.ListSessions(ctx)
	if err != nil {
		return err
	}
	if journalListJson {
		WriteStdout("%s\n", utilfn.MustPrettyPrintJSON(sessions))
		return nil
	}
	for _, s := range sessions {
		lastTs := time.UnixMilli(s.LastTs).Format(time.DateTime)
		WriteStdout("%-36s  %6d batches  last %s\n", s.SessionId, s.NumBatches, lastTs)
	}
	return nil
}

func runJournalDeleteCmd(cmd *cobra.Command, args []string) error {
	defer patchjournal.CloseJournal()
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	return patchjournal.DeleteSession(ctx, args[0])
}

func runJournalPruneCmd(cmd *cobra.Command, args []string) error {
	defer patchjournal.CloseJournal()
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	cutoff := time.Now().Add(-time.Duration(journalPruneDays) * 24 * time.Hour).UnixMilli()
	count, err := patchjournal.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	WriteStdout("pruned %d batches\n", count)
	return nil
}
