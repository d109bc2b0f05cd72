/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/telrun/internal/schedule"
	"github.com/friendsincode/telrun/internal/scheduling"
)

var validateMaxIdle float64

var validateCmd = &cobra.Command{
	Use:   "validate <schedule.ecsv>",
	Short: "Check an exported schedule for overlaps, gaps and coverage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		meta, rows, err := schedule.ReadECSV(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		v := scheduling.NewValidator(logger)
		v.MaxIdleFraction = validateMaxIdle
		result := v.ValidateRows(meta.Window(), rows)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d entries, run %s\n", args[0], len(rows), meta.RunID)
		for _, group := range [][]scheduling.Violation{result.Errors, result.Warnings, result.Info} {
			for _, viol := range group {
				fmt.Fprintf(out, "  %-7s %-11s %s\n", viol.Severity, viol.Rule, viol.Message)
			}
		}
		if !result.Valid {
			return fmt.Errorf("%d validation errors", len(result.Errors))
		}
		fmt.Fprintln(out, "  ok")
		return nil
	},
}

func init() {
	validateCmd.Flags().Float64Var(&validateMaxIdle, "max-idle", 0, "warn when the unallocated share exceeds this fraction (0 disables)")
	rootCmd.AddCommand(validateCmd)
}
