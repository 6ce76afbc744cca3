package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/genqa/internal/record"
)

func collectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "collect <input_dir> <output.csv>",
		Short: "Merge every *_qa.json record in a directory into one CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(g)
			if err != nil {
				return err
			}
			return runCollect(cmd, args[0], args[1], log.With("input_dir", args[0]))
		},
	}
}

func runCollect(cmd *cobra.Command, dir, outPath string, log *slog.Logger) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("input directory: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	stats, err := record.Collect(dir, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", outPath, cerr)
	}
	if err != nil {
		os.Remove(outPath)
		return err
	}

	log.Info("collected records", "files", stats.Files, "rows", stats.Rows, "output", outPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows from %d records to %s\n", stats.Rows, stats.Files, outPath)
	return nil
}
