// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/livedom"
	"github.com/wavetermdev/wavedom/pkg/patchjournal"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
	"github.com/wavetermdev/wavedom/pkg/treeconsumer"
	"github.com/wavetermdev/wavedom/pkg/treepatch"
)

var replayAutoDetach bool
var replayOpen bool

var replayCmd = &cobra.Command{
	Use:   "replay <session>",
	Short: "Rebuild a recorded session's live tree and print it as HTML",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplayCmd,
}

func init() {
	replayCmd.Flags().BoolVar(&replayAutoDetach, "autodetach", false, "detach components when their wrapper is removed")
	replayCmd.Flags().BoolVar(&replayOpen, "open", false, "write the result to a temp file and open it in the browser")
	rootCmd.AddCommand(replayCmd)
}

type replayResult struct {
	HTML    string
	Applied int
	Errors  []string
}

// replayBatches applies journaled entries in seq order to a fresh document.
// Control operations (attachroot, detach, reset) are redone as recorded.
// Journals that carry no attachroot entries predate them, so there any
// component that nothing has attached is treated as a root. Failed entries are
// reported and skipped, the same way the live consumer moved past them.
func replayBatches(entries []patchjournal.BatchEntry, opts treepatch.Options) replayResult {
	doc := livedom.MakeMemDocument()
	consumer := treeconsumer.MakeConsumer(treeconsumer.Options{SessionId: "replay", Doc: doc, Patch: opts})
	defer consumer.Close()
	implicitRoots := !slices.ContainsFunc(entries, func(e patchjournal.BatchEntry) bool {
		return e.Op == patchjournal.Op_AttachRoot
	})
	var rtn replayResult
	for _, entry := range entries {
		err := replayEntry(consumer, entry, implicitRoots)
		if err != nil {
			rtn.Errors = append(rtn.Errors, fmt.Sprintf("%s %d: %v", entryOp(entry), entry.Seq, err))
			continue
		}
		rtn.Applied++
	}
	rtn.HTML = doc.InnerHTML(doc.Body())
	return rtn
}

func entryOp(entry patchjournal.BatchEntry) string {
	if entry.Op == "" {
		return patchjournal.Op_Batch
	}
	return entry.Op
}

func replayEntry(consumer *treeconsumer.Consumer, entry patchjournal.BatchEntry, implicitRoots bool) error {
	switch entryOp(entry) {
	case patchjournal.Op_AttachRoot:
		return consumer.AttachRoot(entry.ComponentId)
	case patchjournal.Op_Detach:
		if !consumer.Detach(entry.ComponentId) {
			return fmt.Errorf("component %d is not attached", entry.ComponentId)
		}
		return nil
	case patchjournal.Op_Reset:
		return consumer.ResetComponent(entry.ComponentId)
	case patchjournal.Op_Batch:
	default:
		return fmt.Errorf("unknown journal op %q", entry.Op)
	}
	batch, err := rendertree.DecodeBatch(entry.Data)
	if err != nil {
		return err
	}
	if implicitRoots && !slices.Contains(consumer.AttachedComponents(), batch.ComponentId) {
		err = consumer.AttachRoot(batch.ComponentId)
		if err != nil {
			return err
		}
	}
	return consumer.ApplyBatch(batch)
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	err := patchjournal.InitJournal()
	if err != nil {
		return err
	}
	defer patchjournal.CloseJournal()
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()
	batches, err := patchjournal.GetBatches(ctx, args[0])
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return fmt.Errorf("no batches recorded for session %q", args[0])
	}
	result := replayBatches(batches, treepatch.Options{AutoDetach: replayAutoDetach})
	for _, errStr := range result.Errors {
		WriteStderr("%s\n", errStr)
	}
	WriteStderr("applied %d of %d journal entries\n", result.Applied, len(batches))
	if !replayOpen {
		WriteStdout("%s\n", result.HTML)
		return nil
	}
	fileName := filepath.Join(os.TempDir(), fmt.Sprintf("wavedom-replay-%s.html", args[0]))
	err = os.WriteFile(fileName, []byte("<!DOCTYPE html>\n"+result.HTML+"\n"), 0600)
	if err != nil {
		return err
	}
	WriteStderr("wrote %s\n", fileName)
	return open.Run(fileName)
}
