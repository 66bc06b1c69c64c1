package rosetta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Command describes one external program invocation. Stdout and stderr are
// both written to LogPath.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	LogPath string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner executes a Command and reports its exit code. A non-zero exit is
// not an error; errors mean the program could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (int, error)
}

// SystemRunner runs commands as child processes.
type SystemRunner struct{}

func (SystemRunner) Run(ctx context.Context, c Command) (int, error) {
	logFile, err := os.Create(c.LogPath)
	if err != nil {
		return -1, fmt.Errorf("create log %s: %w", c.LogPath, err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	err = cmd.Run()
	logrus.Debugf("%s finished in %s", c.Path, time.Since(start).Round(time.Millisecond))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("run %s: %w", c.Path, err)
	}
	return 0, nil
}

// RunJob prepares the job's directory and runs rosetta_scripts on it.
func RunJob(ctx context.Context, runner Runner, job *FlexDDGJob, p Params) (int, error) {
	if err := job.Prepare(p); err != nil {
		return -1, fmt.Errorf("job %s: %w", job.Key(), err)
	}

	cmd := job.Command(p)
	logrus.Debugf("Running Rosetta with args: %s", cmd)
	logrus.Debugf("Output logged to: %s", cmd.LogPath)

	code, err := runner.Run(ctx, cmd)
	if err != nil {
		return code, fmt.Errorf("job %s: %w", job.Key(), err)
	}
	return code, nil
}
