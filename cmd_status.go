package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/db"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-key...]",
		Short: "Show journaled job counts, or the records of the given jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Journal == "" {
				return errors.New("no journal configured (set --journal)")
			}
			journal, err := db.InitJournal(cfg.Journal)
			if err != nil {
				return err
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				stats, err := journal.Stats()
				if err != nil {
					return err
				}
				for _, status := range []db.JobStatus{db.StatusPending, db.StatusRunning, db.StatusCompleted, db.StatusFailed} {
					fmt.Fprintf(out, "%-10s %d\n", status, stats[status])
				}
				return nil
			}

			for _, key := range args {
				rec, err := journal.Get(key)
				if errors.Is(err, db.ErrNotFound) {
					fmt.Fprintf(out, "%s: not run\n", key)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s (exit code %d) %s updated %s\n",
					rec.Key, rec.Status, rec.ExitCode, rec.OutputDir, rec.UpdatedAt)
				if rec.ErrorMessage != "" {
					fmt.Fprintf(out, "  %s\n", rec.ErrorMessage)
				}
			}
			return nil
		},
	}
}
