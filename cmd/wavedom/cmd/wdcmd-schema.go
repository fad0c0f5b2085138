// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/wavedom/pkg/util/utilfn"
	"github.com/wavetermdev/wavedom/pkg/wavebase"
	"github.com/wavetermdev/wavedom/pkg/wdconfig"
)

const settingsSchemaFile = "settings.schema.json"

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write the JSON schema for settings.json",
	RunE:  runSchemaCmd,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "output file (default <configdir>/"+settingsSchemaFile+")")
	rootCmd.AddCommand(schemaCmd)
}

func runSchemaCmd(cmd *cobra.Command, args []string) error {
	schema, err := wdconfig.GenerateSchema()
	if err != nil {
		return err
	}
	outFile := schemaOutput
	if outFile == "" {
		err = wavebase.EnsureWavedomConfigDir()
		if err != nil {
			return err
		}
		outFile = filepath.Join(wavebase.GetWavedomConfigDir(), settingsSchemaFile)
	}
	written, err := utilfn.WriteFileIfDifferent(outFile, []byte(schema+"\n"))
	if err != nil {
		return err
	}
	if written {
		WriteStdout("wrote %s\n", outFile)
	} else {
		WriteStdout("%s is up to date\n", outFile)
	}
	return nil
}
