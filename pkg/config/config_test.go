package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newFlagSet(t))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.NStruct != 3 {
		t.Errorf("NStruct = %d, want 3", cfg.NStruct)
	}
	if cfg.BackrubTrajectoryStride != 5 {
		t.Errorf("BackrubTrajectoryStride = %d, want 5", cfg.BackrubTrajectoryStride)
	}
	if cfg.AbsScoreConvergenceThresh != 200.0 {
		t.Errorf("AbsScoreConvergenceThresh = %v, want 200", cfg.AbsScoreConvergenceThresh)
	}
	if cfg.MutantAAs != CanonicalAminoAcids {
		t.Errorf("MutantAAs = %q, want %q", cfg.MutantAAs, CanonicalAminoAcids)
	}
	if cfg.ConcurrentJobs < 1 || cfg.ConcurrentJobs > 2 {
		t.Errorf("ConcurrentJobs = %d, want 1 or 2", cfg.ConcurrentJobs)
	}
	if !filepath.IsAbs(cfg.OutputDir) || filepath.Base(cfg.OutputDir) != "output_saturation" {
		t.Errorf("OutputDir = %q, want absolute output_saturation", cfg.OutputDir)
	}
	home, err := os.UserHomeDir()
	if err == nil && !strings.HasPrefix(cfg.RosettaScriptsPath, home) {
		t.Errorf("RosettaScriptsPath = %q, want it under %q", cfg.RosettaScriptsPath, home)
	}
	if cfg.Journal != "" {
		t.Errorf("Journal = %q, want empty", cfg.Journal)
	}
}

func TestLoadConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flexddg.yaml")
	content := "nstruct: 35\nnumber_backrub_trials: 35000\nmutation: A12B\nmutant_aas: avw\nconcurrent_jobs: 8\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(newFlagSet(t, "--config", path, "-j", "3"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.NStruct != 35 {
		t.Errorf("NStruct = %d, want 35 from file", cfg.NStruct)
	}
	if cfg.NumberBackrubTrials != 35000 {
		t.Errorf("NumberBackrubTrials = %d, want 35000 from file", cfg.NumberBackrubTrials)
	}
	if cfg.Mutation != "A12B" {
		t.Errorf("Mutation = %q, want A12B", cfg.Mutation)
	}
	if cfg.MutantAAs != "AVW" {
		t.Errorf("MutantAAs = %q, want upper-cased AVW", cfg.MutantAAs)
	}
	if cfg.ConcurrentJobs != 3 {
		t.Errorf("ConcurrentJobs = %d, want flag value 3", cfg.ConcurrentJobs)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(newFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"zero nstruct", []string{"--nstruct", "0"}, "NStruct"},
		{"zero jobs", []string{"--jobs", "0"}, "ConcurrentJobs"},
		{"bad amino acid", []string{"--mutant-aas", "AXB"}, "MutantAAs"},
		{"empty mutation", []string{"--mutation", ""}, "Mutation is required"},
		{"unknown compression", []string{"--compress", "bz2"}, "Compress"},
		{"non-positive threshold", []string{"--abs-score-convergence-thresh", "0"}, "AbsScoreConvergenceThresh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(newFlagSet(t, tt.args...))
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if !strings.Contains(cfgErr.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", cfgErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoadConfigUnregisteredFlag(t *testing.T) {
	fs := pflag.NewFlagSet("bare", pflag.ContinueOnError)
	var cfgErr *ConfigError
	if _, err := LoadConfig(fs); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
}

func TestAbsPathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := absPath("~/rosetta/bin")
	if err != nil {
		t.Fatalf("absPath: %v", err)
	}
	if got != filepath.Join(home, "rosetta", "bin") {
		t.Errorf("absPath = %q, want %q", got, filepath.Join(home, "rosetta", "bin"))
	}
}
