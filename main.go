package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/config"
	"github.com/Kortemme-Lab/flex-ddG-tutorial/pkg/utils"
)

// progressOutput receives progress reporter lines.
var progressOutput io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "flexddg",
		Short:         "Run and analyze Rosetta flex ddG saturation mutagenesis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	logrus.Debugf("Loading configuration...")
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Configuration loaded successfully")
	return cfg, nil
}

// reporterOptions configures progress output for stdout: lines overwrite
// each other on a terminal and are newline terminated otherwise.
func reporterOptions(entries string) []utils.ReporterOption {
	eol := "\n"
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		eol = "\r"
	}
	return []utils.ReporterOption{
		utils.WithEntries(entries),
		utils.WithLineTerminator(eol),
		utils.WithOutput(progressOutput),
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
