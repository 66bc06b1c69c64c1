package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/config"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/db"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/processor"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/rosetta"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

func newRunCmd() *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run flex ddG for every input case and mutant amino acid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runJobs(cmd, cfg, fresh)
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Forget journaled results and rerun every job")
	return cmd
}

func runJobs(cmd *cobra.Command, cfg *config.Config, fresh bool) error {
	if !cfg.DryRun {
		if _, err := os.Stat(cfg.RosettaScriptsPath); err != nil {
			return fmt.Errorf("rosetta_scripts not found at %s (set --rosetta-scripts)", cfg.RosettaScriptsPath)
		}
	}

	mutation, err := rosetta.ParseMutation(cfg.Mutation)
	if err != nil {
		return err
	}
	cases, err := rosetta.DiscoverCases(cfg.InputsDir)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no input cases found in %s", cfg.InputsDir)
	}
	jobs := rosetta.SaturationJobs(cases, mutation, cfg.MutantAAs, cfg.NStruct, cfg.OutputDir)

	logrus.Infof("Flex ddG saturation mutagenesis of %s", mutation)
	logrus.Infof("Cases: %d, mutant amino acids: %s, structures: %d", len(cases), cfg.MutantAAs, cfg.NStruct)
	logrus.Infof("Output directory: %s", cfg.OutputDir)
	if cfg.DryRun {
		logrus.Infof("Running in DRY-RUN mode (no jobs will be run)")
	}

	batch := &processor.Batch{
		Runner: rosetta.SystemRunner{},
		Params: rosetta.Params{
			RosettaScriptsPath:        cfg.RosettaScriptsPath,
			ProtocolPath:              cfg.ProtocolPath,
			OutputDir:                 cfg.OutputDir,
			NumberBackrubTrials:       cfg.NumberBackrubTrials,
			MaxMinimizationIter:       cfg.MaxMinimizationIter,
			AbsScoreConvergenceThresh: cfg.AbsScoreConvergenceThresh,
			BackrubTrajectoryStride:   cfg.BackrubTrajectoryStride,
		},
		Concurrency: cfg.ConcurrentJobs,
		DryRun:      cfg.DryRun,
	}

	var journal *db.Journal
	if cfg.Journal != "" {
		journal, err = openJournal(cfg.Journal, fresh)
		if err != nil {
			return err
		}
		defer journal.Close()
		batch.Journal = journal
	}

	logrus.Infof("Starting %d jobs with %d concurrent workers...", len(jobs), cfg.ConcurrentJobs)
	reporter := utils.NewProgressReporter("running flex ddG jobs", reporterOptions("jobs")...)
	result := batch.Run(cmd.Context(), jobs, reporter)
	reporter.Done()
	if err := reporter.Err(); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}

	logrus.Infof("Run completed in %s", utils.FormatDuration(result.EndTime.Sub(result.StartTime)))
	logrus.Infof("Succeeded: %d", result.Succeeded)
	logrus.Infof("Failed: %d", result.Failed)
	logrus.Infof("Skipped: %d", result.Skipped)

	if journal != nil {
		logFailedJobs(journal)
	}
	if err := cmd.Context().Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", result.Failed, result.Submitted)
	}
	return nil
}

func openJournal(path string, fresh bool) (*db.Journal, error) {
	journal, err := db.InitJournal(path)
	if err != nil {
		return nil, err
	}
	if fresh {
		if err := journal.DropAll(); err != nil {
			journal.Close()
			return nil, fmt.Errorf("clear journal: %w", err)
		}
		logrus.Infof("Cleared journal %s", path)
		return journal, nil
	}
	// Jobs still marked running were interrupted by an earlier run.
	n, err := journal.ResetFailed()
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("reset journal: %w", err)
	}
	if n > 0 {
		logrus.Infof("Retrying %d failed or interrupted jobs from %s", n, path)
	}
	return journal, nil
}

func logFailedJobs(journal *db.Journal) {
	failed, err := journal.Failed()
	if err != nil {
		logrus.Warnf("Could not read failed jobs from journal: %v", err)
		return
	}
	for _, rec := range failed {
		logrus.Errorf("Job %s failed: %s", rec.Key, rec.ErrorMessage)
	}
}
