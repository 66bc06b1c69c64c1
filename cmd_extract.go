package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/processor"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <dir>...",
		Short: "Extract structures from struct.db3 files into PDB files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			extractor := &rosetta.Extractor{
				ScoreJD2Path: cfg.ScoreJD2Path,
				Stride:       cfg.BackrubTrajectoryStride,
				Runner:       rosetta.SystemRunner{},
			}

			for _, dir := range args {
				if !isDir(dir) {
					logrus.Errorf("%s is not a directory", dir)
					continue
				}
				dbs, err := processor.FindStructDBs(dir)
				if err != nil {
					return err
				}
				logrus.Infof("Found %d structure database files to extract", len(dbs))

				reporter := utils.NewProgressReporter("extracting structure database files", reporterOptions(".db3 files")...)
				result := processor.ExtractAll(cmd.Context(), extractor, dbs, cfg.ConcurrentJobs, reporter)
				reporter.Done()
				if err := reporter.Err(); err != nil {
					return fmt.Errorf("write progress: %w", err)
				}

				var failed int
				for _, code := range utils.ListResultsAs[int](reporter) {
					if code != 0 {
						failed++
					}
				}
				if failed > 0 || result.Failed > 0 {
					logrus.Warnf("%d of %d extractions in %s did not succeed", failed+result.Failed, len(dbs), dir)
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
