package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/analysis"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/db"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <dir>...",
		Short: "Compute ddG and dG values from finished flex ddG output folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			analyzer := &analysis.Analyzer{
				ReadScores:      db.ReadScores,
				OutputDir:       cfg.AnalysisDir,
				Stride:          cfg.BackrubTrajectoryStride,
				Concurrency:     cfg.ConcurrentJobs,
				Compress:        cfg.Compress,
				ReporterOptions: reporterOptions("structures"),
			}

			for _, dir := range args {
				if !isDir(dir) {
					logrus.Errorf("%s is not a directory", dir)
					continue
				}
				report, err := analyzer.Analyze(cmd.Context(), dir)
				if err != nil {
					return err
				}
				if report == nil {
					continue
				}
				if err := analysis.WriteSummary(cmd.OutOrStdout(), report.Results); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
