package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newExportCmd creates the 'export' subcommand which downloads the raw
// workbook and leaves it on disk, skipping the rest of the pipeline.
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Downloads the raw report workbook",
		Long: `Probes the public report and drives the headless browser export. The
unprocessed workbook is written to the configured download directory and its
path printed to stdout.`,
		RunE: runExportCommand,
	}
}

func runExportCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if err := a.Prober.Probe(cmd.Context()); err != nil {
		return fmt.Errorf("probe report: %w", err)
	}
	path, err := a.Exporter.Export(cmd.Context())
	if err != nil {
		return fmt.Errorf("export workbook: %w", err)
	}

	a.Logger.Info("workbook exported", zap.String("path", path))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
