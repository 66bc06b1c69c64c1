package rosetta

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and lets tests simulate the program's effects.
type fakeRunner struct {
	mu       sync.Mutex
	commands []Command
	exitCode int
	err      error
	effect   func(Command)
}

func (f *fakeRunner) Run(_ context.Context, c Command) (int, error) {
	f.mu.Lock()
	f.commands = append(f.commands, c)
	f.mu.Unlock()
	if f.err != nil {
		return -1, f.err
	}
	if err := os.WriteFile(c.LogPath, []byte("log\n"), 0644); err != nil {
		return -1, err
	}
	if f.effect != nil {
		f.effect(c)
	}
	return f.exitCode, nil
}

func TestSystemRunnerCapturesOutputAndExitCode(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	code, err := SystemRunner{}.Run(context.Background(), Command{
		Path:    sh,
		Args:    []string{"-c", "pwd; echo oops >&2; exit 3"},
		Dir:     dir,
		LogPath: logPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "oops")
	assert.Contains(t, string(data), filepath.Base(dir))
}

func TestSystemRunnerMissingBinary(t *testing.T) {
	dir := t.TempDir()
	_, err := SystemRunner{}.Run(context.Background(), Command{
		Path:    filepath.Join(dir, "does-not-exist"),
		Dir:     dir,
		LogPath: filepath.Join(dir, "out.log"),
	})
	assert.Error(t, err)
}

func TestRunJob(t *testing.T) {
	out := t.TempDir()
	c := Case{Name: "1JTG", InputPDB: "/in/1JTG.pdb", ChainsToMove: "B"}
	job := SaturationJobs([]Case{c}, Mutation{"B", 49, ""}, "A", 1, out)[0]
	runner := &fakeRunner{exitCode: 0}

	code, err := RunJob(context.Background(), runner, job, testParams(out))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, job.OutputDir, runner.commands[0].Dir)
	assert.FileExists(t, job.ResfilePath())
	assert.FileExists(t, job.LogPath())
}

func TestRunJobRunnerError(t *testing.T) {
	out := t.TempDir()
	job := SaturationJobs([]Case{{Name: "X", InputPDB: "/x.pdb", ChainsToMove: "A"}}, Mutation{"A", 1, ""}, "G", 1, out)[0]
	boom := errors.New("exec format error")

	_, err := RunJob(context.Background(), &fakeRunner{err: boom}, job, testParams(out))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), job.Key())
}
