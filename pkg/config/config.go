package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CanonicalAminoAcids lists the one-letter codes accepted as mutation targets.
const CanonicalAminoAcids = "ACDEFGHIKLMNPQRSTVWY"

type Config struct {
	RosettaScriptsPath        string  `mapstructure:"rosetta_scripts_path" validate:"required"`
	ScoreJD2Path              string  `mapstructure:"score_jd2_path" validate:"required"`
	ProtocolPath              string  `mapstructure:"protocol_path" validate:"required"`
	InputsDir                 string  `mapstructure:"inputs_dir" validate:"required"`
	OutputDir                 string  `mapstructure:"output_dir" validate:"required"`
	AnalysisDir               string  `mapstructure:"analysis_dir" validate:"required"`
	NStruct                   int     `mapstructure:"nstruct" validate:"min=1"`
	MaxMinimizationIter       int     `mapstructure:"max_minimization_iter" validate:"min=1"`
	AbsScoreConvergenceThresh float64 `mapstructure:"abs_score_convergence_thresh" validate:"gt=0"`
	NumberBackrubTrials       int     `mapstructure:"number_backrub_trials" validate:"min=1"`
	BackrubTrajectoryStride   int     `mapstructure:"backrub_trajectory_stride" validate:"min=1"`
	Mutation                  string  `mapstructure:"mutation" validate:"required"`
	MutantAAs                 string  `mapstructure:"mutant_aas" validate:"required,aminoacids"`
	ConcurrentJobs            int     `mapstructure:"concurrent_jobs" validate:"min=1"`
	Journal                   string  `mapstructure:"journal"`
	Compress                  string  `mapstructure:"compress" validate:"omitempty,oneof=zstd"`
	DryRun                    bool    `mapstructure:"dry_run"`
	Verbose                   bool    `mapstructure:"verbose"`
	LogFile                   string  `mapstructure:"log_file"`
}

// flagKeys maps config keys to the flag that overrides them.
var flagKeys = map[string]string{
	"rosetta_scripts_path":         "rosetta-scripts",
	"score_jd2_path":               "score-jd2",
	"protocol_path":                "protocol",
	"inputs_dir":                   "inputs",
	"output_dir":                   "output",
	"analysis_dir":                 "analysis-output",
	"nstruct":                      "nstruct",
	"max_minimization_iter":        "max-minimization-iter",
	"abs_score_convergence_thresh": "abs-score-convergence-thresh",
	"number_backrub_trials":        "backrub-trials",
	"backrub_trajectory_stride":    "trajectory-stride",
	"mutation":                     "mutation",
	"mutant_aas":                   "mutant-aas",
	"concurrent_jobs":              "jobs",
	"journal":                      "journal",
	"compress":                     "compress",
	"dry_run":                      "dry-run",
	"verbose":                      "verbose",
	"log_file":                     "log-file",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("aminoacids", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !strings.ContainsRune(CanonicalAminoAcids, r) {
				return false
			}
		}
		return true
	})
	return v
}

// BindFlags registers every configuration flag on fs.
func BindFlags(fs *pflag.FlagSet) {
	// Rosetta takes about 2 GB of memory per instance, so stay below the core count.
	jobs := min(2, runtime.NumCPU())

	fs.String("config", "", "Path to configuration file (YAML/JSON/TOML)")
	fs.String("rosetta-scripts", "~/rosetta/source/bin/rosetta_scripts", "Path to the rosetta_scripts binary")
	fs.String("score-jd2", "~/rosetta/source/bin/score_jd2", "Path to the score_jd2 binary")
	fs.String("protocol", "ddG-backrub.xml", "RosettaScripts flex ddG protocol XML")
	fs.String("inputs", "inputs", "Directory of input cases, one subdirectory per case")
	fs.String("output", "output_saturation", "Directory receiving job output")
	fs.String("analysis-output", "analysis_output", "Directory receiving analysis CSV files")
	fs.Int("nstruct", 3, "Number of independent structures per mutant (normally 35)")
	fs.Int("max-minimization-iter", 5, "Maximum minimization iterations (normally 5000)")
	fs.Float64("abs-score-convergence-thresh", 200.0, "Absolute score convergence threshold (normally 1.0)")
	fs.Int("backrub-trials", 10, "Number of backrub trials (normally 35000)")
	fs.Int("trajectory-stride", 5, "Backrub trajectory stride between saved checkpoints")
	fs.String("mutation", "B49", "Residue to mutate as <chain><resnum>[icode]")
	fs.String("mutant-aas", CanonicalAminoAcids, "One-letter amino acids to mutate to")
	fs.IntP("jobs", "j", jobs, "Number of concurrent jobs")
	fs.String("journal", "", "SQLite journal used to skip completed jobs")
	fs.String("compress", "", "Compress CSV output (zstd)")
	fs.BoolP("dry-run", "d", false, "Print the jobs without running them")
	fs.BoolP("verbose", "v", false, "Enable verbose logging")
	fs.StringP("log-file", "l", "", "Log file path")
}

// LoadConfig merges defaults, an optional config file, FLEXDDG_* environment
// variables and explicitly set flags, in increasing order of precedence.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("flexddg")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			return nil, &ConfigError{fmt.Sprintf("flag --%s is not registered", name)}
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		logrus.Debugf("Loaded configuration from file: %s", f.Value.String())
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.MutantAAs = strings.ToUpper(config.MutantAAs)

	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, &ConfigError{describe(verrs)}
		}
		return nil, err
	}

	for _, p := range []*string{
		&config.RosettaScriptsPath, &config.ScoreJD2Path, &config.ProtocolPath,
		&config.InputsDir, &config.OutputDir, &config.AnalysisDir,
		&config.Journal, &config.LogFile,
	} {
		if *p == "" {
			continue
		}
		abs, err := absPath(*p)
		if err != nil {
			return nil, err
		}
		*p = abs
	}

	setupLogger(config)

	return config, nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "aminoacids":
			msgs = append(msgs, fmt.Sprintf("%s must only contain %s, got %q", fe.Field(), CanonicalAminoAcids, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// absPath expands a leading ~ and makes p absolute.
func absPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

func setupLogger(config *Config) {
	if config.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			fileHook := &FileHook{
				Writer: file,
				LogLevels: []logrus.Level{
					logrus.PanicLevel,
					logrus.FatalLevel,
					logrus.ErrorLevel,
					logrus.WarnLevel,
					logrus.InfoLevel,
					logrus.DebugLevel,
				},
			}

			// Logs go to both stderr and the file
			logrus.AddHook(fileHook)

			logrus.Infof("Logging to file: %s", config.LogFile)
		} else {
			logrus.Errorf("Failed to log to file: %v", err)
		}
	}
}

// FileHook sends logs to a file while maintaining console output
type FileHook struct {
	Writer    io.Writer
	LogLevels []logrus.Level
}

// Fire writes the log entry to the file
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = hook.Writer.Write([]byte(line))
	return err
}

// Levels returns the log levels this hook is enabled for
func (hook *FileHook) Levels() []logrus.Level {
	return hook.LogLevels
}

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
