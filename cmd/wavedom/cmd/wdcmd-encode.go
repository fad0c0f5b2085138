// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/rendertree"
)

var encodeComponentId int
var encodeOutput string

var encodeCmd = &cobra.Command{
	Use:   "encode <file.html>",
	Short: "Encode an HTML fragment as a full-render batch",
	Long:  "Encode an HTML fragment as a full-render batch. on* attributes become event handlers and <component id=\"N\"/> becomes a child component.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEncodeCmd,
}

func init() {
	encodeCmd.Flags().IntVarP(&encodeComponentId, "component", "c", 1, "component id the batch renders")
	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(encodeCmd)
}

func encodeHTML(htmlStr string, componentId int) ([]byte, error) {
	nodes, err := rendertree.FromHTML(htmlStr)
	if err != nil {
		return nil, err
	}
	return rendertree.EncodeBatch(rendertree.Batch{
		ComponentId: componentId,
		Nodes:       nodes,
		Edits:       rendertree.FullRenderScript(nodes),
	})
}

func runEncodeCmd(cmd *cobra.Command, args []string) error {
	htmlBytes, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	data, err := encodeHTML(string(htmlBytes), encodeComponentId)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", args[0], err)
	}
	if encodeOutput != "" {
		return os.WriteFile(encodeOutput, data, 0644)
	}
	if getIsTty() {
		return fmt.Errorf("refusing to write a binary batch to a terminal, use -o")
	}
	_, err = WrappedStdout.Write(data)
	return err
}
